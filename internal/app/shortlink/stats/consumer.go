package stats

import (
	"context"

	"urlshortener.local/internal/app/shortlink"
)

// Consumer 把进程内 ChannelCollector 收到的点击落库。
type Consumer struct {
	batcher
	collector *ChannelCollector
}

func NewConsumer(store shortlink.ClickStore, collector *ChannelCollector) *Consumer {
	return &Consumer{batcher: newBatcher(store, "channel"), collector: collector}
}

// Run 阻塞直到 ctx 结束或 collector 关闭。
func (c *Consumer) Run(ctx context.Context) {
	c.drain(ctx, c.collector.Events())
}
