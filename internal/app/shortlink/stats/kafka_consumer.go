package stats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"urlshortener.local/internal/app/shortlink"
)

const clickConsumerGroup = "shortlink-click-events"

// KafkaConsumer 从 topic 读点击事件，和 Consumer 一样攒批落库。
type KafkaConsumer struct {
	batcher
	reader *kafka.Reader
}

func NewKafkaConsumer(brokers []string, topic string, store shortlink.ClickStore) *KafkaConsumer {
	return &KafkaConsumer{
		batcher: newBatcher(store, "kafka"),
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  clickConsumerGroup,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
	}
}

// decodeEvent 解析一条消息，坏消息跳过
func decodeEvent(msg kafka.Message) (shortlink.ClickEvent, bool) {
	var ev shortlink.ClickEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		slog.Error("decode click event failed", "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return ev, false
	}
	return ev, ev.LinkID != 0
}

func (k *KafkaConsumer) Run(ctx context.Context) {
	events := make(chan shortlink.ClickEvent, k.batchSize)
	go k.read(ctx, events)
	k.drain(ctx, events)
}

// read 阻塞在 ReadMessage 上，ctx 结束时关闭 out
func (k *KafkaConsumer) read(ctx context.Context, out chan<- shortlink.ClickEvent) {
	defer close(out)
	for ctx.Err() == nil {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("kafka read failed", "topic", k.reader.Config().Topic, "err", err)
			}
			continue
		}
		ev, ok := decodeEvent(msg)
		if !ok {
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}
}

func (k *KafkaConsumer) Close() {
	if err := k.reader.Close(); err != nil {
		slog.Error("kafka reader close failed", "err", err)
	}
}
