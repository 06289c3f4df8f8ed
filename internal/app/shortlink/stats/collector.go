package stats

import (
	"sync"

	"urlshortener.local/internal/app/shortlink"
	"urlshortener.local/internal/platform/metrics"
)

// Collector 接收跳转产生的点击明细。Collect 不能拖慢跳转，处理不过来就丢。
type Collector interface {
	Collect(event shortlink.ClickEvent)
	Close()
}

// ChannelCollector 是单实例部署用的进程内队列，由 Consumer 落库。
type ChannelCollector struct {
	events chan shortlink.ClickEvent

	// 读锁保护发送，写锁保护 close，避免向已关闭的 channel 发送
	mu   sync.RWMutex
	done bool
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	return &ChannelCollector{events: make(chan shortlink.ClickEvent, bufferSize)}
}

func (c *ChannelCollector) Collect(event shortlink.ClickEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.done {
		return
	}
	select {
	case c.events <- event:
	default:
		metrics.ClickEventsDropped.Inc()
	}
}

func (c *ChannelCollector) Events() <-chan shortlink.ClickEvent { return c.events }

// Close 可以重复调用。之后 Collect 什么都不做，Events 排空后关闭。
func (c *ChannelCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		c.done = true
		close(c.events)
	}
}
