// Package handler exposes the HTTP surface: checkout, webhook intake,
// status/access queries, and the members area. Responses are JSON; the
// access redemption endpoint redirects.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/dayvson009/compraslivre.tec/internal/catalog"
	"github.com/dayvson009/compraslivre.tec/internal/config"
	"github.com/dayvson009/compraslivre.tec/internal/gateway"
	"github.com/dayvson009/compraslivre.tec/internal/payment"
	"github.com/dayvson009/compraslivre.tec/internal/webhook"
)

const (
	maxWebhookBody = 1 << 20
	membersLimit   = 50
)

type Server struct {
	checkout   *payment.CheckoutService
	reconciler *payment.Reconciler
	store      payment.RecordStore
	catalog    *catalog.Catalog
	cfg        *config.Config
	log        *zap.Logger
}

func New(checkout *payment.CheckoutService, reconciler *payment.Reconciler, store payment.RecordStore, cat *catalog.Catalog, cfg *config.Config, log *zap.Logger) *Server {
	return &Server{
		checkout:   checkout,
		reconciler: reconciler,
		store:      store,
		catalog:    cat,
		cfg:        cfg,
		log:        log,
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	r.HandleFunc("/products", s.handleProducts).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}", s.handleProduct).Methods(http.MethodGet)
	r.HandleFunc("/buy/{id}", s.handleBuy).Methods(http.MethodPost)
	r.HandleFunc("/checkout", s.handleCheckout).Methods(http.MethodPost)
	r.HandleFunc("/webhook/mercadopago", s.handleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/status/{payment_id}", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/acesso/{token}", s.handleAccess).Methods(http.MethodGet)
	r.HandleFunc("/obrigado/{token}", s.handleThanks).Methods(http.MethodGet)
	r.HandleFunc("/obrigado/{token}/email", s.handleThanksEmail).Methods(http.MethodPost)
	r.HandleFunc("/membros", s.handleMembers).Methods(http.MethodPost)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"defaultAmount":      s.cfg.DefaultAmount,
		"defaultDescription": s.cfg.DefaultDescription,
		"baseUrlPublica":     s.cfg.PublicBaseURL,
		"version":            "mvp-frontend-1",
	})
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.All())
}

func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := s.catalog.Find(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "Produto não encontrado")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type buyRequest struct {
	Email string `json:"email"`
	CPF   string `json:"cpf"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	product, ok := s.catalog.Find(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "Produto não encontrado")
		return
	}

	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "Corpo inválido")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "E-mail é obrigatório")
		return
	}
	cpf := digitsOnly(req.CPF)
	if s.cfg.MPRequireCPF && len(cpf) < 11 {
		writeError(w, http.StatusBadRequest, "CPF é obrigatório para este produto")
		return
	}

	payer := &payment.Payer{Email: req.Email}
	if s.cfg.MPRequireCPF && cpf != "" {
		payer.CPF = cpf
	}

	result, err := s.checkout.Create(r.Context(), payment.CheckoutInput{
		Amount:      product.Price,
		Description: product.Name,
		Payer:       payer,
		Email:       req.Email,
		ProductURL:  product.ProductURL,
	})
	if err != nil {
		s.writeCheckoutError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data":    result,
		"product": product,
	})
}

type checkoutRequest struct {
	Amount      float64        `json:"amount"`
	Description string         `json:"description"`
	TargetURL   string         `json:"targetUrl"`
	Payer       *checkoutPayer `json:"payer"`
}

type checkoutPayer struct {
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Identification *struct {
		Type   string `json:"type"`
		Number string `json:"number"`
	} `json:"identification"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Corpo inválido")
		return
	}
	if req.Amount <= 0 || req.TargetURL == "" {
		writeError(w, http.StatusBadRequest, "amount e targetUrl são obrigatórios")
		return
	}
	if req.Description == "" {
		req.Description = "PIX"
	}

	// A live credential with the sandbox payer would charge real money
	// against a test document; refuse before touching the gateway.
	if gateway.IsLiveToken(s.cfg.MPAccessToken) {
		if req.Payer == nil || payerCPF(req.Payer) == payment.TestCPF {
			writeError(w, http.StatusBadRequest,
				"Credencial de PRODUÇÃO detectada. Envie payer real ou use MP_ACCESS_TOKEN de teste")
			return
		}
	}

	var payer *payment.Payer
	if req.Payer != nil {
		payer = &payment.Payer{
			Email:     req.Payer.Email,
			FirstName: req.Payer.FirstName,
			LastName:  req.Payer.LastName,
			CPF:       payerCPF(req.Payer),
		}
	}

	result, err := s.checkout.Create(r.Context(), payment.CheckoutInput{
		Amount:      req.Amount,
		Description: req.Description,
		TargetURL:   req.TargetURL,
		Payer:       payer,
	})
	if err != nil {
		s.writeCheckoutError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// handleWebhook is the push channel. It always answers 200 so the
// gateway never enters a redelivery storm; internal failures are
// logged only.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.log.Warn("webhook body read failed", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	n := webhook.Parse(body, r.URL.Query())
	if n.IsPayment() {
		if err := s.reconciler.ConfirmFromGateway(r.Context(), n.PaymentID); err != nil {
			s.log.Warn("webhook confirmation failed",
				zap.String("payment_id", n.PaymentID), zap.Error(err))
		}
	} else {
		s.log.Debug("webhook ignored", zap.String("topic", n.Topic))
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetByPaymentID(r.Context(), mux.Vars(r)["payment_id"])
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Pagamento não encontrado")
			return
		}
		s.log.Error("status lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Erro ao consultar status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"payment_id": rec.PaymentID,
		"status":     rec.Status,
		"created_at": rec.CreatedAt,
		"paid_at":    rec.PaidAt,
	})
}

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.recordByToken(w, r)
	if !ok {
		return
	}
	if rec.Status != payment.StatusPaid {
		writeError(w, http.StatusPaymentRequired, "Pagamento ainda não confirmado")
		return
	}
	http.Redirect(w, r, rec.TargetURL, http.StatusFound)
}

func (s *Server) handleThanks(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.recordByToken(w, r)
	if !ok {
		return
	}
	if rec.Status != payment.StatusPaid {
		writeError(w, http.StatusPaymentRequired, "Pagamento ainda não confirmado")
		return
	}
	pass, err := s.reconciler.EnsurePassword(r.Context(), rec)
	if err != nil {
		s.log.Error("ensure password failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Erro ao carregar credenciais")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"email":    rec.Email,
		"password": pass,
	})
}

func (s *Server) handleThanksEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "E-mail é obrigatório")
		return
	}
	err := s.store.SetEmail(r.Context(), mux.Vars(r)["token"], strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Token inválido")
			return
		}
		s.log.Error("email update failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Erro ao salvar e-mail")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Corpo inválido")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Password = strings.TrimSpace(req.Password)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Informe e-mail e senha")
		return
	}

	recs, err := s.store.ListPaidByCredentials(r.Context(), req.Email, req.Password, membersLimit)
	if err != nil {
		s.log.Error("members lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Erro no servidor")
		return
	}

	type item struct {
		Description string      `json:"description"`
		ProductURL  string      `json:"product_url"`
		CreatedAt   interface{} `json:"created_at"`
	}
	items := make([]item, 0, len(recs))
	for _, rec := range recs {
		if rec.ProductURL == "" {
			continue
		}
		items = append(items, item{
			Description: rec.Description,
			ProductURL:  rec.ProductURL,
			CreatedAt:   rec.CreatedAt,
		})
	}
	if len(items) == 0 {
		writeError(w, http.StatusUnauthorized, "Credenciais inválidas ou pagamento não confirmado")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"email": req.Email,
		"items": items,
	})
}

func (s *Server) recordByToken(w http.ResponseWriter, r *http.Request) (*payment.Record, bool) {
	rec, err := s.store.GetByAccessToken(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Token inválido")
			return nil, false
		}
		s.log.Error("token lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Erro ao processar acesso")
		return nil, false
	}
	return rec, true
}

func (s *Server) writeCheckoutError(w http.ResponseWriter, err error) {
	if errors.Is(err, gateway.ErrTimeout) {
		writeError(w, http.StatusGatewayTimeout, "Timeout ao criar pagamento PIX. Tente novamente.")
		return
	}
	s.log.Error("checkout failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Erro ao criar pagamento PIX")
}

func payerCPF(p *checkoutPayer) string {
	if p == nil || p.Identification == nil {
		return ""
	}
	return digitsOnly(p.Identification.Number)
}

func digitsOnly(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
