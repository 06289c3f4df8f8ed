package stats

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urlshortener.local/internal/app/shortlink"
	"urlshortener.local/internal/platform/metrics"
)

type memStore struct {
	mu     sync.Mutex
	events []shortlink.ClickEvent
}

func (m *memStore) InsertClickEvents(_ context.Context, events []shortlink.ClickEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *memStore) ListClicks(context.Context, int64, int, int64) (shortlink.ClickPage, error) {
	return shortlink.ClickPage{}, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestChannelCollector_DropsWhenFull(t *testing.T) {
	c := NewChannelCollector(2)
	before := testutil.ToFloat64(metrics.ClickEventsDropped)

	for i := 0; i < 5; i++ {
		c.Collect(shortlink.ClickEvent{LinkID: int64(i + 1)})
	}
	assert.Len(t, c.Events(), 2)
	assert.Equal(t, before+3, testutil.ToFloat64(metrics.ClickEventsDropped))

	c.Close()
	c.Close()
	// 关闭后 Collect 是空操作，不会 panic
	c.Collect(shortlink.ClickEvent{LinkID: 9})
}

func TestConsumer_FlushesRemainingOnClose(t *testing.T) {
	store := &memStore{}
	collector := NewChannelCollector(100)
	consumer := NewConsumer(store, collector)

	done := make(chan struct{})
	go func() {
		consumer.Run(context.Background())
		close(done)
	}()

	for i := 0; i < 10; i++ {
		collector.Collect(shortlink.ClickEvent{LinkID: 1, ShortCode: "abc", ClickedAt: time.Now()})
	}
	collector.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop after collector closed")
	}
	assert.Equal(t, 10, store.count())
}

func TestConsumer_FlushesOnTicker(t *testing.T) {
	store := &memStore{}
	collector := NewChannelCollector(100)
	consumer := NewConsumer(store, collector)
	consumer.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumer.Run(ctx)

	collector.Collect(shortlink.ClickEvent{LinkID: 1, ShortCode: "abc"})
	require.Eventually(t, func() bool { return store.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestDecodeEvent(t *testing.T) {
	event, ok := decodeEvent(kafka.Message{Value: []byte(`{"link_id":7,"short_code":"abc","ip":"1.2.3.4"}`)})
	require.True(t, ok)
	assert.Equal(t, int64(7), event.LinkID)
	assert.Equal(t, "1.2.3.4", event.IP)

	_, ok = decodeEvent(kafka.Message{Value: []byte(`not json`)})
	assert.False(t, ok)
	_, ok = decodeEvent(kafka.Message{Value: []byte(`{"short_code":"abc"}`)})
	assert.False(t, ok)
}

type fixedCounter struct{ active, expired int64 }

func (f fixedCounter) CountByStatus(context.Context, time.Time) (int64, int64, error) {
	return f.active, f.expired, nil
}

func TestGaugeRefresher(t *testing.T) {
	g := NewGaugeRefresher(fixedCounter{active: 3, expired: 2}, "@every 1m")
	g.Refresh(context.Background())

	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.LinksByStatus.WithLabelValues("active")))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.LinksByStatus.WithLabelValues("expired")))

	bad := NewGaugeRefresher(fixedCounter{}, "not a cron spec")
	assert.Error(t, bad.Start(context.Background()))
}

func TestBatcher_WritesFullBatchesImmediately(t *testing.T) {
	store := &memStore{}
	b := newBatcher(store, "test")
	b.batchSize = 3
	b.interval = time.Hour

	in := make(chan shortlink.ClickEvent)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.drain(ctx, in)
		close(done)
	}()

	for i := 0; i < 4; i++ {
		in <- shortlink.ClickEvent{LinkID: int64(i + 1)}
	}
	require.Eventually(t, func() bool { return store.count() == 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 4, store.count())
}

func TestConsumer_CancelKeepsBufferedEvents(t *testing.T) {
	store := &memStore{}
	collector := NewChannelCollector(100)
	for i := 0; i < 7; i++ {
		collector.Collect(shortlink.ClickEvent{LinkID: int64(i + 1), ShortCode: "abc"})
	}
	consumer := NewConsumer(store, collector)
	consumer.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	consumer.Run(ctx)

	assert.Equal(t, 7, store.count())
	assert.Empty(t, collector.Events())
}
