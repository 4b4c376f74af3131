package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/dayvson009/compraslivre.tec/internal/payment"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func paidRecord() *payment.Record {
	paidAt := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	return &payment.Record{
		PaymentID:   "p1",
		AmountCents: 5700,
		Description: "Licença Digital",
		Status:      payment.StatusPaid,
		Email:       "buyer@example.com",
		ProductURL:  "https://docs.example.com/l1",
		PaidAt:      &paidAt,
	}
}

func TestPaymentPaid(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisherWithWriter(w, zap.NewNop())

	if err := p.PaymentPaid(context.Background(), paidRecord()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}

	msg := w.msgs[0]
	if string(msg.Key) != "p1" {
		t.Fatalf("key = %q, want the payment id", msg.Key)
	}
	var evt PaidEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.EventID == "" {
		t.Fatal("missing event id")
	}
	if evt.PaymentID != "p1" || evt.AmountCents != 5700 || evt.Email != "buyer@example.com" {
		t.Fatalf("event = %+v", evt)
	}
	if evt.PaidAt.IsZero() {
		t.Fatal("missing paid_at")
	}
}

func TestPaymentPaidPropagatesWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewPublisherWithWriter(w, zap.NewNop())

	if err := p.PaymentPaid(context.Background(), paidRecord()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCloseClosesWriter(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisherWithWriter(w, zap.NewNop())
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !w.closed {
		t.Fatal("writer not closed")
	}
}
