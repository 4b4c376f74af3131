// Package events publishes paid-payment notifications to Kafka for
// downstream consumers (fulfillment, analytics). Publishing is
// best-effort: the paid transition is already durable when an event
// goes out.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/dayvson009/compraslivre.tec/internal/payment"
)

// Writer is the subset of kafka.Writer we use; it keeps the publisher testable.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PaidEvent is the wire format of a confirmed payment.
type PaidEvent struct {
	EventID     string    `json:"event_id"`
	PaymentID   string    `json:"payment_id"`
	AmountCents int64     `json:"amount"`
	Description string    `json:"description,omitempty"`
	Email       string    `json:"email,omitempty"`
	ProductURL  string    `json:"product_url,omitempty"`
	PaidAt      time.Time `json:"paid_at"`
}

// Publisher implements payment.EventPublisher on a kafka writer.
type Publisher struct {
	writer Writer
	log    *zap.Logger
}

func NewPublisher(brokerURL, topic string, log *zap.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokerURL),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &Publisher{writer: w, log: log}
}

// NewPublisherWithWriter allows injecting a test writer.
func NewPublisherWithWriter(w Writer, log *zap.Logger) *Publisher {
	return &Publisher{writer: w, log: log}
}

// PaymentPaid emits one event for the record's paid transition, keyed
// by payment id so replays for the same payment stay ordered.
func (p *Publisher) PaymentPaid(ctx context.Context, rec *payment.Record) error {
	evt := PaidEvent{
		EventID:     uuid.NewString(),
		PaymentID:   rec.PaymentID,
		AmountCents: rec.AmountCents,
		Description: rec.Description,
		Email:       rec.Email,
		ProductURL:  rec.ProductURL,
	}
	if rec.PaidAt != nil {
		evt.PaidAt = *rec.PaidAt
	}

	value, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := kafka.Message{Key: []byte(rec.PaymentID), Value: value}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("kafka write failed", zap.String("payment_id", rec.PaymentID), zap.Error(err))
		return err
	}
	return nil
}

// Close closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
