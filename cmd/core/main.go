package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	grpc_adapter "github.com/JoeShih716/go-mem-payout/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-mem-payout/internal/app/core/adapter/in/rest"
	journal_adapter "github.com/JoeShih716/go-mem-payout/internal/app/core/adapter/out/journal"
	"github.com/JoeShih716/go-mem-payout/internal/app/core/adapter/out/keepalive"
	memory_adapter "github.com/JoeShih716/go-mem-payout/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-mem-payout/internal/app/core/adapter/out/mysql"
	"github.com/JoeShih716/go-mem-payout/internal/app/core/adapter/out/singpay"
	"github.com/JoeShih716/go-mem-payout/internal/app/core/usecase"
	"github.com/JoeShih716/go-mem-payout/internal/config"
	"github.com/JoeShih716/go-mem-payout/internal/metrics"
	"github.com/JoeShih716/go-mem-payout/pkg/logger"
	"github.com/JoeShih716/go-mem-payout/pkg/mysql"
	"github.com/JoeShih716/go-mem-payout/pkg/wal"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// 1. 載入設定
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 初始化帳本
	initial, _ := cfg.InitialBalance()
	ledger, stopLedger := startLedger(cfg.Ledger.Engine, initial)
	metrics.LedgerBalance.Set(initial.InexactFloat64())
	zl.Info("ledger ready",
		zap.String("engine", string(cfg.Ledger.Engine)),
		zap.String("balance", initial.String()))

	// 3. 出款紀錄
	journal, closeJournal, err := openJournal(ctx, cfg.Journal, zl)
	if err != nil {
		zl.Fatal("Failed to open withdrawal journal", zap.Error(err))
	}
	defer closeJournal()

	// 4. 初始化 UseCase
	gateway := singpay.NewClient(cfg.PSP, cfg.App.Name, zl.Named("singpay"))
	withdraw := usecase.NewWithdrawUseCase(ledger, gateway, zl,
		usecase.WithJournal(journal),
		usecase.WithWithdrawalsEnabled(cfg.App.EnableWithdrawal))
	if !cfg.App.EnableWithdrawal {
		zl.Warn("withdrawals are disabled")
	}

	// 5. HTTP
	handler := rest.NewHandler(withdraw, cfg.App.Name, cfg.PSP.GatewayBase, zl.Named("http"))
	httpServer := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           rest.NewRouter(handler, cfg.App.StaticDir),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zl.Info("Starting HTTP server", zap.String("addr", cfg.App.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("failed to serve http", zap.Error(err))
		}
	}()

	// 6. gRPC
	var grpcServer *grpc.Server
	if cfg.App.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.App.GRPCAddr)
		if err != nil {
			zl.Fatal("failed to listen", zap.String("addr", cfg.App.GRPCAddr), zap.Error(err))
		}
		grpcServer = grpc_adapter.NewServer(grpc_adapter.NewGrpcServer(withdraw, zl.Named("grpc")))
		reflection.Register(grpcServer)
		go func() {
			zl.Info("Starting gRPC server", zap.String("addr", cfg.App.GRPCAddr))
			if err := grpcServer.Serve(lis); err != nil {
				zl.Fatal("failed to serve grpc", zap.Error(err))
			}
		}()
	}

	// 7. keep-alive
	if url := cfg.KeepAliveURL(); url != "" {
		pinger := keepalive.NewPinger(url, cfg.App.KeepAliveInterval, zl.Named("keepalive"))
		go pinger.Run(ctx)
		zl.Info("keep-alive enabled", zap.String("url", url), zap.Duration("interval", cfg.App.KeepAliveInterval))
	}

	<-ctx.Done()
	zl.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 35*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zl.Error("http shutdown", zap.Error(err))
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	// 進行中的出款都結束了才停帳本，補回分錄才寫得進去
	stopLedger()
	zl.Info("Server exited")
}

// startLedger 建立帳本；LMAX 引擎用自己的 context，不跟著關閉信號停止
//
// 回傳:
//
//	usecase.Ledger: 帳本
//	func(): 停止帳本並等核心迴圈把剩下的分錄處理完，必須在 server 都停止後才呼叫
func startLedger(engine config.LedgerEngine, initial decimal.Decimal) (usecase.Ledger, func()) {
	switch engine {
	case config.LedgerEngineLMAX:
		ctx, cancel := context.WithCancel(context.Background())
		lmax := memory_adapter.NewLMAXLedger(initial)
		lmax.Start(ctx)
		return lmax, func() {
			cancel()
			<-lmax.Done()
		}
	default:
		return memory_adapter.NewMutexLedger(initial), func() {}
	}
}

// openJournal 依設定建立出款紀錄，回傳的 close 函數一定不為 nil
func openJournal(ctx context.Context, cfg config.JournalConfig, zl *zap.Logger) (usecase.Journal, func(), error) {
	switch cfg.Driver {
	case config.JournalWAL:
		w, err := wal.NewWAL(cfg.WALPath)
		if err != nil {
			return nil, nil, err
		}
		zl.Info("journal: wal", zap.String("path", cfg.WALPath))
		return journal_adapter.NewWALJournal(w), func() { _ = w.Close() }, nil

	case config.JournalMySQL:
		client, err := mysql.NewClient(cfg.MySQL, zl.Named("mysql"))
		if err != nil {
			return nil, nil, err
		}
		j := mysql_adapter.NewMySQLJournal(client)
		if err := j.Migrate(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		zl.Info("journal: mysql", zap.String("host", cfg.MySQL.Host), zap.String("database", cfg.MySQL.DBName))
		return j, func() { _ = client.Close() }, nil

	default:
		return journal_adapter.Nop{}, func() {}, nil
	}
}
