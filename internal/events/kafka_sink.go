package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/halladj/vtc-sahra/internal/observability"
)

// KafkaSink writes events keyed by ride id so one ride's events stay ordered
// within a partition. The writer is async with a single attempt.
type KafkaSink struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  1,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				observability.EventsPublished.WithLabelValues("kafka", "error").Add(float64(len(messages)))
				logger.Warn("ride_event_write_failed", "messages", len(messages), "error", err)
				return
			}
			observability.EventsPublished.WithLabelValues("kafka", "ok").Add(float64(len(messages)))
		},
	}
	return &KafkaSink{writer: w, logger: logger}
}

func (k *KafkaSink) Emit(ctx context.Context, ev RideEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		k.logger.Error("ride_event_encode_failed", "type", ev.Type, "ride_id", ev.RideID, "error", err)
		return
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.RideID), Value: b}); err != nil {
		observability.EventsPublished.WithLabelValues("kafka", "error").Inc()
		k.logger.Warn("ride_event_enqueue_failed", "type", ev.Type, "ride_id", ev.RideID, "error", err)
	}
}

func (k *KafkaSink) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
