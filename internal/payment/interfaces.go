package payment

import (
	"context"
	"time"
)

// Gateway abstracts the remote payment provider (Mercado Pago). It is
// the only component allowed to talk to the provider's API.
type Gateway interface {
	// CreatePixPayment creates a PIX charge. The idempotency key must be
	// fresh per logical checkout attempt so client retries never create
	// a duplicate remote payment.
	CreatePixPayment(ctx context.Context, req PixRequest, idempotencyKey string) (*PixPayment, error)

	// GetPaymentStatus fetches the current remote status for a payment id.
	GetPaymentStatus(ctx context.Context, paymentID string) (string, error)
}

// RecordStore is the durable table of payment records. Every mutation
// is a single-row atomic operation; callers never need a
// read-modify-write critical section.
type RecordStore interface {
	// Create persists a new pending record. Returns ErrDuplicate when the
	// payment id or access token is already taken.
	Create(ctx context.Context, rec *Record) error

	GetByPaymentID(ctx context.Context, paymentID string) (*Record, error)
	GetByAccessToken(ctx context.Context, token string) (*Record, error)

	// MarkPaid transitions the record to paid, setting paid_at and
	// access_password only where they are still absent. It reports
	// whether this call performed the pending->paid transition; repeated
	// calls are no-ops. An unknown payment id is a no-op, not an error.
	MarkPaid(ctx context.Context, paymentID, password string, paidAt time.Time) (bool, error)

	// EnsureAccessPassword sets the password to candidate only if none is
	// stored yet, and returns the durably stored value. The returned
	// password may differ from candidate when a concurrent writer won.
	EnsureAccessPassword(ctx context.Context, token, candidate string) (string, error)

	// ListPendingIDs returns up to limit payment ids still pending and
	// created within the lookback window, most recent first.
	ListPendingIDs(ctx context.Context, lookback time.Duration, limit int) ([]string, error)

	// SetEmail updates the contact email for the record behind token.
	SetEmail(ctx context.Context, token, email string) error

	// ListPaidByCredentials returns paid records matching the given email
	// and access password, newest first, capped at limit.
	ListPaidByCredentials(ctx context.Context, email, password string, limit int) ([]Record, error)
}

// EventPublisher receives a notification on the first pending->paid
// transition of a record. Implementations must be safe for concurrent use.
type EventPublisher interface {
	PaymentPaid(ctx context.Context, rec *Record) error
}
