package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"urlshortener.local/internal/app/shortlink"
	"urlshortener.local/internal/platform/metrics"
)

// KafkaCollector 把点击事件写到 topic，多实例时由 KafkaConsumer 统一落库。
type KafkaCollector struct {
	w *kafka.Writer
}

func NewKafkaCollector(brokers []string, topic string) *KafkaCollector {
	return &KafkaCollector{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // 同一短码进同一分区
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Completion:   onKafkaWrite,
	}}
}

func onKafkaWrite(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	metrics.ClickEventsDropped.Add(float64(len(msgs)))
	slog.Error("kafka write failed", "count", len(msgs), "err", err)
}

func (k *KafkaCollector) Collect(event shortlink.ClickEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		slog.Error("encode click event failed", "code", event.ShortCode, "err", err)
		return
	}
	// Async 模式下只会在入队时报错
	if err := k.w.WriteMessages(context.Background(), kafka.Message{Key: []byte(event.ShortCode), Value: value}); err != nil {
		metrics.ClickEventsDropped.Inc()
		slog.Error("kafka enqueue failed", "code", event.ShortCode, "err", err)
	}
}

func (k *KafkaCollector) Close() {
	if err := k.w.Close(); err != nil {
		slog.Error("kafka writer close failed", "err", err)
	}
}
