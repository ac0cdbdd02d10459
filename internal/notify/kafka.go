package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"chatdesk/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes events as JSON to a topic, keyed by ticket id so one ticket's
// events stay ordered within a partition. Without brokers or topic it is a
// no-op.
type Kafka struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewKafka builds an async writer; delivery errors are logged from the
// completion callback.
func NewKafka(brokers []string, topic string, logger *zap.Logger) *Kafka {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(brokers) == 0 || topic == "" {
		return &Kafka{logger: logger}
	}
	return &Kafka{
		topic:  topic,
		logger: logger,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			Async:        true,
			Completion: func(msgs []kafka.Message, err error) {
				if err != nil {
					logger.Warn("kafka: deliver ticket events", zap.Int("count", len(msgs)), zap.Error(err))
				}
			},
		},
	}
}

// Enabled reports whether events are actually sent.
func (k *Kafka) Enabled() bool { return k.writer != nil }

func (k *Kafka) Publish(ctx context.Context, ev domain.Event) {
	if k.writer == nil {
		return
	}
	body, err := json.Marshal(ev)
	if err != nil {
		k.logger.Warn("kafka: marshal ticket event", zap.String("event", ev.Name), zap.Error(err))
		return
	}
	msg := kafka.Message{
		Key:   []byte(ev.TicketID),
		Value: body,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(ev.Name)},
			{Key: "tenant_id", Value: []byte(ev.TenantID)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.logger.Warn("kafka: write ticket event", zap.String("event", ev.Name), zap.Error(err))
	}
}

// Close flushes pending messages.
func (k *Kafka) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// ParseBrokers splits "host1:9092,host2:9092" into addresses.
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
