package payment

import (
	"errors"
	"time"
)

// Standard domain errors.
var (
	ErrNotFound     = errors.New("payment record not found")
	ErrDuplicate    = errors.New("payment record already exists")
	ErrNoPixPayload = errors.New("gateway response is missing the PIX payload")
)

// Status is the lifecycle state of a payment record. The only
// transition is pending -> paid; a paid record never reverts.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

// GatewayStatusApproved is the only remote status that confirms a payment.
// Everything else ("in_process", "rejected", ...) leaves the record pending.
const GatewayStatusApproved = "approved"

// Record is the unit of reconciliation: one PIX payment and the
// access credential sold behind it.
type Record struct {
	PaymentID      string     `json:"payment_id"`
	AmountCents    int64      `json:"amount"`
	Description    string     `json:"description"`
	Status         Status     `json:"status"`
	TargetURL      string     `json:"target_url"`
	AccessToken    string     `json:"access_token"`
	Email          string     `json:"email,omitempty"`
	AccessPassword string     `json:"-"`
	ProductURL     string     `json:"product_url,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
}

// Payer identifies who is paying. CPF is optional unless the
// deployment requires it.
type Payer struct {
	Email     string
	FirstName string
	LastName  string
	CPF       string
}

// PixRequest carries everything the gateway needs to create a PIX charge.
type PixRequest struct {
	Amount          float64 // decimal units, not cents
	Description     string
	Payer           Payer
	NotificationURL string
}

// PixPayment is the gateway's view of a freshly created charge.
type PixPayment struct {
	ID           string
	Status       string
	QRCode       string
	QRCodeBase64 string
	TicketURL    string
}
