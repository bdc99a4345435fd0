package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"portal-api/internal/config"
	"portal-api/internal/util"
)

// Event types published to the portal topic.
const (
	TypeBookingCreated    = "booking.created"
	TypeLeadCreated       = "lead.created"
	TypeLeadStatusChanged = "lead.status_changed"
)

// Event is the envelope written to the broker. ID is unique per emission so
// consumers can deduplicate retried writes.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

// Publisher emits domain events. With no brokers configured it degrades to
// structured log lines so callers never need to care whether a broker is
// attached.
type Publisher struct {
	writer *kafka.Writer
	topic  string
}

func NewPublisher(cfg config.EventsConfig) *Publisher {
	if len(cfg.Brokers) == 0 {
		util.Info("event publisher running in log-only mode")
		return &Publisher{topic: cfg.Topic}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		MaxAttempts:  3,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				util.Error("failed to write event messages",
					util.ErrorField(err), util.Int("message_count", len(messages)))
			}
		},
	}
	util.Info("event publisher initialized",
		util.Any("brokers", cfg.Brokers), util.String("topic", cfg.Topic))
	return &Publisher{writer: writer, topic: cfg.Topic}
}

// Publish emits one event. Failures are logged, never returned: domain
// events are best-effort and must not fail the request that produced them.
func (p *Publisher) Publish(ctx context.Context, eventType, key string, payload any) {
	event := Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}

	body, err := json.Marshal(event)
	if err != nil {
		util.Error("marshal event failed", util.String("type", eventType), util.ErrorField(err))
		return
	}

	if p.writer == nil {
		util.Info("event (log-only)", util.String("type", eventType), util.String("key", key))
		return
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: body,
	}); err != nil {
		util.Error("publish event failed", util.String("type", eventType), util.ErrorField(err))
	}
}

func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		util.Error("failed to close event publisher", util.ErrorField(err))
		return err
	}
	util.Info("event publisher closed")
	return nil
}
