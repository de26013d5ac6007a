package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-mem-payout/internal/app/core/adapter/out/singpay"
	"github.com/JoeShih716/go-mem-payout/pkg/mysql"
)

// LedgerEngine 設定使用哪種 Ledger
type LedgerEngine string

const (
	LedgerEngineMutex LedgerEngine = "mutex"
	LedgerEngineLMAX  LedgerEngine = "lmax"
)

// JournalDriver 出款紀錄存放位置
type JournalDriver string

const (
	JournalNone  JournalDriver = "none"
	JournalWAL   JournalDriver = "wal"
	JournalMySQL JournalDriver = "mysql"
)

const (
	DefaultGatewayBase    = "https://gateway.singpay.ga/v1"
	DefaultAppName        = "Lyra Banque"
	DefaultInitialBalance = "1000000000000000" // 1 quatrillion
)

type Config struct {
	App     AppConfig      `yaml:"app"`
	Log     LogConfig      `yaml:"log"`
	Ledger  LedgerConfig   `yaml:"ledger"`
	PSP     singpay.Config `yaml:"psp"`
	Journal JournalConfig  `yaml:"journal"`
}

type AppConfig struct {
	Name     string `yaml:"name" env:"APP_NAME"`
	HTTPAddr string `yaml:"http_addr" env:"HTTP_ADDR"`
	// Port 託管平台給的 PORT，有設定時覆蓋 HTTPAddr
	Port     string `yaml:"port" env:"PORT"`
	GRPCAddr string `yaml:"grpc_addr" env:"GRPC_ADDR"`
	// StaticDir 靜態頁面目錄，空字串代表不提供
	StaticDir string `yaml:"static_dir" env:"STATIC_DIR"`

	EnableWithdrawal bool `yaml:"enable_withdrawal" env:"ENABLE_WITHDRAWAL"`

	KeepAliveHost     string        `yaml:"keepalive_host" env:"RENDER_EXTERNAL_HOSTNAME"`
	KeepAliveInterval time.Duration `yaml:"keepalive_interval" env:"KEEPALIVE_INTERVAL"`
}

type LogConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT"`
}

type LedgerConfig struct {
	Engine         LedgerEngine `yaml:"engine" env:"LEDGER_ENGINE"`
	InitialBalance string       `yaml:"initial_balance" env:"LEDGER_INITIAL_BALANCE"`
}

type JournalConfig struct {
	Driver  JournalDriver `yaml:"driver" env:"JOURNAL_DRIVER"`
	WALPath string        `yaml:"wal_path" env:"JOURNAL_WAL_PATH"`
	MySQL   mysql.Config  `yaml:"mysql"`
}

// Load 讀取設定：預設值 -> YAML 檔 (可不存在) -> .env -> 環境變數
func Load(path string) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			EnableWithdrawal: true,
		},
		PSP: singpay.Config{
			StrictUSSDSuccess: true,
		},
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// 只靠環境變數也能啟動
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// .env 不存在不是錯誤；已存在的環境變數不會被覆蓋
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults 補全設定檔沒寫的欄位
func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = DefaultAppName
	}
	if c.App.Port != "" {
		c.App.HTTPAddr = ":" + c.App.Port
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":3000"
	}
	if c.App.GRPCAddr == "" {
		c.App.GRPCAddr = ":50051"
	}
	if c.App.KeepAliveInterval == 0 {
		c.App.KeepAliveInterval = 13 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Ledger.Engine == "" {
		c.Ledger.Engine = LedgerEngineMutex
	}
	if c.Ledger.InitialBalance == "" {
		c.Ledger.InitialBalance = DefaultInitialBalance
	}
	if c.PSP.GatewayBase == "" {
		c.PSP.GatewayBase = DefaultGatewayBase
	}
	if c.PSP.Currency == "" {
		c.PSP.Currency = "XAF"
	}
	if c.PSP.WalletTimeout == 0 {
		c.PSP.WalletTimeout = singpay.DefaultWalletTimeout
	}
	if c.PSP.PayoutTimeout == 0 {
		c.PSP.PayoutTimeout = singpay.DefaultPayoutTimeout
	}
	if c.Journal.Driver == "" {
		c.Journal.Driver = JournalNone
	}
	if c.Journal.WALPath == "" {
		c.Journal.WALPath = "withdrawals.log"
	}
	if c.Journal.MySQL.Port == 0 {
		c.Journal.MySQL.Port = 3306
	}
	if c.Journal.MySQL.MaxOpenConns == 0 {
		c.Journal.MySQL.MaxOpenConns = 20
	}
	if c.Journal.MySQL.MaxIdleConns == 0 {
		c.Journal.MySQL.MaxIdleConns = 5
	}
	if c.Journal.MySQL.ConnMaxLifetime == 0 {
		c.Journal.MySQL.ConnMaxLifetime = 30 * time.Minute
	}
}

// Validate 檢查列舉值與初始餘額
func (c *Config) Validate() error {
	switch c.Ledger.Engine {
	case LedgerEngineMutex, LedgerEngineLMAX:
	default:
		return fmt.Errorf("invalid ledger engine %q", c.Ledger.Engine)
	}
	switch c.Journal.Driver {
	case JournalNone, JournalWAL, JournalMySQL:
	default:
		return fmt.Errorf("invalid journal driver %q", c.Journal.Driver)
	}
	balance, err := c.InitialBalance()
	if err != nil {
		return err
	}
	if balance.IsNegative() {
		return fmt.Errorf("initial balance must not be negative: %s", balance)
	}
	return nil
}

// InitialBalance 解析初始餘額
func (c *Config) InitialBalance() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Ledger.InitialBalance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid initial balance %q: %w", c.Ledger.InitialBalance, err)
	}
	return d, nil
}

// KeepAliveURL 未設定主機時回傳空字串
func (c *Config) KeepAliveURL() string {
	if c.App.KeepAliveHost == "" {
		return ""
	}
	return "https://" + c.App.KeepAliveHost + "/api/test"
}
