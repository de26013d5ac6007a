package keepalive

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-mem-payout/internal/metrics"
)

// DefaultInterval 免費方案 15 分鐘沒流量就休眠，提早一點打
const DefaultInterval = 13 * time.Minute

// Pinger 定期打自己的 /api/test，讓託管平台不會把服務休眠
type Pinger struct {
	url        string
	interval   time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

func NewPinger(url string, interval time.Duration, logger *zap.Logger) *Pinger {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Pinger{
		url:        url,
		interval:   interval,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Run 阻塞直到 ctx 結束
func (p *Pinger) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ping(ctx)
		}
	}
}

// ping 結果只記錄不處理
func (p *Pinger) ping(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.logger.Debug("keep-alive ping failed", zap.Error(err))
		metrics.KeepAlivePingsTotal.WithLabelValues("error").Inc()
		return
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Debug("keep-alive ping failed", zap.String("url", p.url), zap.Error(err))
		metrics.KeepAlivePingsTotal.WithLabelValues("error").Inc()
		return
	}
	resp.Body.Close()
	metrics.KeepAlivePingsTotal.WithLabelValues("ok").Inc()
	p.logger.Info("keep-alive ping sent", zap.String("url", p.url), zap.Int("status", resp.StatusCode))
}
