package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"urlshortener.local/internal/app/shortlink"
	"urlshortener.local/internal/platform/metrics"
)

// GaugeRefresher 按 cron 表达式刷新 shortlink_links{status} 指标。
// 过期是按时间推导出来的，没有事件可以触发，只能定时统计。
type GaugeRefresher struct {
	c       *cron.Cron
	counter shortlink.StatusCounter
	spec    string
	now     func() time.Time
}

// NewGaugeRefresher spec 使用 5 段标准 cron 语法，也支持 "@every 1m" 这类描述符。
func NewGaugeRefresher(counter shortlink.StatusCounter, spec string) *GaugeRefresher {
	c := cron.New(cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	return &GaugeRefresher{c: c, counter: counter, spec: spec, now: time.Now}
}

func (g *GaugeRefresher) Start(ctx context.Context) error {
	if _, err := g.c.AddFunc(g.spec, func() { g.Refresh(ctx) }); err != nil {
		return err
	}
	g.c.Start()
	slog.Info("link status gauge refresher started", "spec", g.spec)
	// 启动时先刷一次
	go g.Refresh(ctx)

	go func() {
		<-ctx.Done()
		stopCtx := g.c.Stop()
		<-stopCtx.Done()
	}()
	return nil
}

func (g *GaugeRefresher) Refresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	active, expired, err := g.counter.CountByStatus(ctx, g.now())
	if err != nil {
		slog.Error("refresh link status gauge failed", "err", err)
		return
	}
	metrics.LinksByStatus.WithLabelValues(string(shortlink.StatusActive)).Set(float64(active))
	metrics.LinksByStatus.WithLabelValues(string(shortlink.StatusExpired)).Set(float64(expired))
}
