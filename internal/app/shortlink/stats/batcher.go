package stats

import (
	"context"
	"log/slog"
	"time"

	"urlshortener.local/internal/app/shortlink"
)

// batcher 按条数或时间间隔把点击事件批量写入 ClickStore。
type batcher struct {
	store     shortlink.ClickStore
	source    string
	batchSize int
	interval  time.Duration
}

func newBatcher(store shortlink.ClickStore, source string) batcher {
	return batcher{store: store, source: source, batchSize: 100, interval: time.Second}
}

// drain 消费 in 直到 ctx 结束或 in 关闭。
// ctx 结束时先把 in 里已经缓冲的事件取完，再写最后一批。
func (b *batcher) drain(ctx context.Context, in <-chan shortlink.ClickEvent) {
	pending := make([]shortlink.ClickEvent, 0, b.batchSize)
	tick := time.NewTicker(b.interval)
	defer tick.Stop()

	write := func() {
		b.write(pending)
		pending = pending[:0]
	}
	defer func() { b.write(pending) }()

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-in:
					if !ok {
						return
					}
					if pending = append(pending, ev); len(pending) >= b.batchSize {
						write()
					}
				default:
					return
				}
			}
		case ev, ok := <-in:
			if !ok {
				return
			}
			if pending = append(pending, ev); len(pending) >= b.batchSize {
				write()
			}
		case <-tick.C:
			write()
		}
	}
}

// write 用独立的 context，ctx 已取消时最后一批也要落库
func (b *batcher) write(events []shortlink.ClickEvent) {
	if len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.store.InsertClickEvents(ctx, events); err != nil {
		slog.Error("click events write failed", "source", b.source, "count", len(events), "err", err)
		return
	}
	slog.Debug("click events written", "source", b.source, "count", len(events))
}
