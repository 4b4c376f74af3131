package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dayvson009/compraslivre.tec/internal/payment"
)

// MemoryStore is an in-memory payment.RecordStore. It mirrors the
// conditional-update semantics of the Postgres store and is what the
// package tests run against.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*payment.Record // keyed by payment id
	byToken map[string]string          // access token -> payment id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*payment.Record),
		byToken: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, rec *payment.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[rec.PaymentID]; ok {
		return payment.ErrDuplicate
	}
	if _, ok := s.byToken[rec.AccessToken]; ok {
		return payment.ErrDuplicate
	}
	stored := *rec
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	if stored.Status == "" {
		stored.Status = payment.StatusPending
	}
	s.byID[stored.PaymentID] = &stored
	s.byToken[stored.AccessToken] = stored.PaymentID
	return nil
}

func (s *MemoryStore) GetByPaymentID(ctx context.Context, paymentID string) (*payment.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[paymentID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return clone(rec), nil
}

func (s *MemoryStore) GetByAccessToken(ctx context.Context, token string) (*payment.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byToken[token]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *MemoryStore) MarkPaid(ctx context.Context, paymentID, password string, paidAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[paymentID]
	if !ok || rec.Status != payment.StatusPending {
		return false, nil
	}
	rec.Status = payment.StatusPaid
	if rec.PaidAt == nil {
		t := paidAt
		rec.PaidAt = &t
	}
	if rec.AccessPassword == "" {
		rec.AccessPassword = password
	}
	return true, nil
}

func (s *MemoryStore) EnsureAccessPassword(ctx context.Context, token, candidate string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byToken[token]
	if !ok {
		return "", payment.ErrNotFound
	}
	rec := s.byID[id]
	if rec.AccessPassword == "" {
		rec.AccessPassword = candidate
	}
	return rec.AccessPassword, nil
}

func (s *MemoryStore) ListPendingIDs(ctx context.Context, lookback time.Duration, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := time.Now().Add(-lookback)
	var pending []*payment.Record
	for _, rec := range s.byID {
		if rec.Status == payment.StatusPending && !rec.CreatedAt.Before(cutoff) {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.After(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	ids := make([]string, 0, len(pending))
	for _, rec := range pending {
		ids = append(ids, rec.PaymentID)
	}
	return ids, nil
}

func (s *MemoryStore) SetEmail(ctx context.Context, token, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byToken[token]
	if !ok {
		return payment.ErrNotFound
	}
	s.byID[id].Email = email
	return nil
}

func (s *MemoryStore) ListPaidByCredentials(ctx context.Context, email, password string, limit int) ([]payment.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []payment.Record
	for _, rec := range s.byID {
		if rec.Status == payment.StatusPaid && rec.Email == email && rec.AccessPassword == password {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(rec *payment.Record) *payment.Record {
	out := *rec
	if rec.PaidAt != nil {
		t := *rec.PaidAt
		out.PaidAt = &t
	}
	return &out
}
