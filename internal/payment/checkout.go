package payment

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// TestCPF is Mercado Pago's published test document, used for the
// sandbox payer and to detect test payers sent against live credentials.
const TestCPF = "19119119100"

const (
	// Sandbox payer used when the caller supplies none.
	sandboxPayerEmail = "test_user_123456@testuser.com"

	webhookPath  = "/webhook/mercadopago"
	qrFallbackPx = 256
)

// CheckoutOptions carries the deployment-level knobs of the checkout flow.
type CheckoutOptions struct {
	// PublicBaseURL, when set, is used to register the webhook
	// notification URL with the gateway at creation time.
	PublicBaseURL string

	// DefaultPayerEmail overrides the sandbox payer email.
	DefaultPayerEmail string
}

// CheckoutInput is one logical purchase attempt.
type CheckoutInput struct {
	Amount      float64
	Description string
	TargetURL   string // optional; defaults to the thank-you page for the token
	Payer       *Payer // optional; sandbox payer is used when absent
	Email       string
	ProductURL  string
}

// CheckoutResult is what the buyer needs to pay and later redeem access.
type CheckoutResult struct {
	PaymentID    string  `json:"payment_id"`
	QRCode       string  `json:"qr_code"`
	QRCodeBase64 string  `json:"qr_code_base64"`
	AccessToken  string  `json:"token_de_acesso"`
	StatusURL    string  `json:"status_url"`
	AccessURL    string  `json:"acesso_url"`
	Amount       float64 `json:"amount"`
	Description  string  `json:"description"`
}

// CheckoutService creates PIX charges at the gateway and persists the
// matching pending record.
type CheckoutService struct {
	store   RecordStore
	gateway Gateway
	opts    CheckoutOptions
	log     *zap.Logger
}

func NewCheckoutService(store RecordStore, gateway Gateway, opts CheckoutOptions, log *zap.Logger) *CheckoutService {
	return &CheckoutService{store: store, gateway: gateway, opts: opts, log: log}
}

// Create performs one checkout attempt: creates the remote PIX charge
// under a fresh idempotency key, then persists the pending record with
// a new access token.
func (s *CheckoutService) Create(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("invalid amount %.2f", in.Amount)
	}
	amount := math.Round(in.Amount*100) / 100
	idempotencyKey := uuid.NewString()

	req := PixRequest{
		Amount:      amount,
		Description: in.Description,
		Payer:       s.resolvePayer(in.Payer),
	}
	if s.opts.PublicBaseURL != "" {
		req.NotificationURL = strings.TrimRight(s.opts.PublicBaseURL, "/") + webhookPath
	}

	s.log.Info("creating pix payment",
		zap.String("description", in.Description),
		zap.Float64("amount", amount),
		zap.String("idempotency_key", idempotencyKey))

	pix, err := s.gateway.CreatePixPayment(ctx, req, idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("create pix payment: %w", err)
	}
	if pix.ID == "" || pix.QRCode == "" {
		return nil, ErrNoPixPayload
	}

	token := NewAccessToken()
	target := in.TargetURL
	if target == "" {
		target = "/obrigado/" + token
	}

	rec := &Record{
		PaymentID:   pix.ID,
		AmountCents: int64(math.Round(amount * 100)),
		Description: in.Description,
		Status:      StatusPending,
		TargetURL:   target,
		AccessToken: token,
		Email:       in.Email,
		ProductURL:  in.ProductURL,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist payment record: %w", err)
	}

	qrBase64 := pix.QRCodeBase64
	if qrBase64 == "" {
		qrBase64 = s.renderQRFallback(pix.QRCode)
	}

	return &CheckoutResult{
		PaymentID:    pix.ID,
		QRCode:       pix.QRCode,
		QRCodeBase64: qrBase64,
		AccessToken:  token,
		StatusURL:    "/status/" + pix.ID,
		AccessURL:    "/acesso/" + token,
		Amount:       amount,
		Description:  in.Description,
	}, nil
}

func (s *CheckoutService) resolvePayer(p *Payer) Payer {
	if p != nil && p.Email != "" {
		return *p
	}
	email := s.opts.DefaultPayerEmail
	if email == "" {
		email = sandboxPayerEmail
	}
	return Payer{
		Email:     email,
		FirstName: "Test",
		LastName:  "User",
		CPF:       TestCPF,
	}
}

// renderQRFallback synthesizes the base64 PNG locally when the gateway
// response carries only the copy-paste payload.
func (s *CheckoutService) renderQRFallback(payload string) string {
	png, err := qrcode.Encode(payload, qrcode.Medium, qrFallbackPx)
	if err != nil {
		s.log.Warn("qr code fallback render failed", zap.Error(err))
		return ""
	}
	return base64.StdEncoding.EncodeToString(png)
}
