// Package gateway holds the Mercado Pago REST client. It is the only
// package that knows the provider's wire format; the rest of the
// service talks in payment domain types.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/dayvson009/compraslivre.tec/internal/payment"
)

// DefaultBaseURL is the production Mercado Pago API endpoint.
const DefaultBaseURL = "https://api.mercadopago.com"

// ErrTimeout marks a create/get call abandoned after its deadline. The
// checkout flow reports these as "try again" instead of a hard failure.
var ErrTimeout = errors.New("mercadopago: request timed out")

// TokenKind classifies an access token by its prefix, for the startup
// log line that distinguishes sandbox from live credentials.
func TokenKind(token string) string {
	switch {
	case strings.HasPrefix(token, "TEST-"):
		return "TEST"
	case strings.HasPrefix(token, "APP_USR-"):
		return "LIVE"
	default:
		return "UNKNOWN"
	}
}

// IsLiveToken reports whether the credential charges real money.
func IsLiveToken(token string) bool {
	return strings.HasPrefix(token, "APP_USR-")
}

// MercadoPago implements payment.Gateway against the /v1/payments API.
type MercadoPago struct {
	http          *resty.Client
	createTimeout time.Duration
	getTimeout    time.Duration
	log           *zap.Logger
}

func NewMercadoPago(baseURL, accessToken string, createTimeout, getTimeout time.Duration, log *zap.Logger) *MercadoPago {
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(accessToken).
		SetHeader("Content-Type", "application/json")
	return &MercadoPago{
		http:          client,
		createTimeout: createTimeout,
		getTimeout:    getTimeout,
		log:           log,
	}
}

type identificationPayload struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type payerPayload struct {
	Email          string                 `json:"email"`
	FirstName      string                 `json:"first_name,omitempty"`
	LastName       string                 `json:"last_name,omitempty"`
	Identification *identificationPayload `json:"identification,omitempty"`
}

type createPaymentPayload struct {
	TransactionAmount float64      `json:"transaction_amount"`
	PaymentMethodID   string       `json:"payment_method_id"`
	Description       string       `json:"description,omitempty"`
	Payer             payerPayload `json:"payer"`
	NotificationURL   string       `json:"notification_url,omitempty"`
}

type paymentResponse struct {
	ID                 json.Number `json:"id"`
	Status             string      `json:"status"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
			TicketURL    string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

type apiError struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error"`
	Status    int    `json:"status"`
}

// CreatePixPayment creates a PIX charge under the given idempotency
// key. The call is bounded by the configured creation timeout.
func (g *MercadoPago) CreatePixPayment(ctx context.Context, req payment.PixRequest, idempotencyKey string) (*payment.PixPayment, error) {
	cctx, cancel := context.WithTimeout(ctx, g.createTimeout)
	defer cancel()

	body := createPaymentPayload{
		TransactionAmount: req.Amount,
		PaymentMethodID:   "pix",
		Description:       req.Description,
		Payer: payerPayload{
			Email:     req.Payer.Email,
			FirstName: req.Payer.FirstName,
			LastName:  req.Payer.LastName,
		},
		NotificationURL: req.NotificationURL,
	}
	if req.Payer.CPF != "" {
		body.Payer.Identification = &identificationPayload{Type: "CPF", Number: req.Payer.CPF}
	}

	var out paymentResponse
	var apiErr apiError
	started := time.Now()
	resp, err := g.http.R().
		SetContext(cctx).
		SetHeader("X-Idempotency-Key", idempotencyKey).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/payments")
	if err != nil {
		return nil, g.wrapTransportError("payment.create", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("mercadopago: payment.create returned %d: %s", resp.StatusCode(), apiErr.Message)
	}
	g.log.Debug("pix payment created",
		zap.String("payment_id", out.ID.String()),
		zap.Duration("took", time.Since(started)))

	pix := out.PointOfInteraction.TransactionData
	return &payment.PixPayment{
		ID:           out.ID.String(),
		Status:       out.Status,
		QRCode:       pix.QRCode,
		QRCodeBase64: pix.QRCodeBase64,
		TicketURL:    pix.TicketURL,
	}, nil
}

// GetPaymentStatus fetches the current remote status for a payment id,
// bounded by the configured lookup timeout.
func (g *MercadoPago) GetPaymentStatus(ctx context.Context, paymentID string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, g.getTimeout)
	defer cancel()

	var out paymentResponse
	var apiErr apiError
	resp, err := g.http.R().
		SetContext(cctx).
		SetResult(&out).
		SetError(&apiErr).
		Get("/v1/payments/" + paymentID)
	if err != nil {
		return "", g.wrapTransportError("payment.get", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("mercadopago: payment.get returned %d: %s", resp.StatusCode(), apiErr.Message)
	}
	return out.Status, nil
}

func (g *MercadoPago) wrapTransportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return fmt.Errorf("mercadopago: %s: %w", op, err)
}
