package payment_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/dayvson009/compraslivre.tec/internal/payment"
	"github.com/dayvson009/compraslivre.tec/internal/store"
)

// --- MOCKS ---

type fakeGateway struct {
	status   string
	err      error
	getCalls int32
}

func (f *fakeGateway) CreatePixPayment(ctx context.Context, req payment.PixRequest, idempotencyKey string) (*payment.PixPayment, error) {
	return nil, errors.New("not used")
}

func (f *fakeGateway) GetPaymentStatus(ctx context.Context, paymentID string) (string, error) {
	atomic.AddInt32(&f.getCalls, 1)
	return f.status, f.err
}

type fakePublisher struct {
	calls int32
	last  *payment.Record
	err   error
}

func (f *fakePublisher) PaymentPaid(ctx context.Context, rec *payment.Record) error {
	atomic.AddInt32(&f.calls, 1)
	f.last = rec
	return f.err
}

func newPendingRecord(t *testing.T, st *store.MemoryStore, paymentID string) *payment.Record {
	t.Helper()
	rec := &payment.Record{
		PaymentID:   paymentID,
		AmountCents: 5700,
		Description: "Licença Digital - 1 Ano",
		Status:      payment.StatusPending,
		TargetURL:   "/obrigado/tok-" + paymentID,
		AccessToken: "tok-" + paymentID,
	}
	if err := st.Create(context.Background(), rec); err != nil {
		t.Fatalf("create record: %v", err)
	}
	return rec
}

// --- TESTS ---

func TestReconcileApprovedIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	pub := &fakePublisher{}
	r := payment.NewReconciler(st, &fakeGateway{}, pub, zap.NewNop())
	newPendingRecord(t, st, "p1")
	ctx := context.Background()

	if err := r.Reconcile(ctx, "p1", "approved"); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	after1, _ := st.GetByPaymentID(ctx, "p1")

	for i := 0; i < 3; i++ {
		if err := r.Reconcile(ctx, "p1", "approved"); err != nil {
			t.Fatalf("repeat reconcile: %v", err)
		}
	}
	after4, _ := st.GetByPaymentID(ctx, "p1")

	if after4.Status != payment.StatusPaid {
		t.Fatalf("status = %s, want paid", after4.Status)
	}
	if after4.AccessPassword == "" || after4.AccessPassword != after1.AccessPassword {
		t.Fatalf("password changed across reconciles: %q vs %q", after1.AccessPassword, after4.AccessPassword)
	}
	if after4.PaidAt == nil || !after4.PaidAt.Equal(*after1.PaidAt) {
		t.Fatalf("paid_at changed across reconciles")
	}
	if got := atomic.LoadInt32(&pub.calls); got != 1 {
		t.Fatalf("paid event published %d times, want 1", got)
	}
}

func TestReconcileConcurrentApprovals(t *testing.T) {
	st := store.NewMemoryStore()
	pub := &fakePublisher{}
	r := payment.NewReconciler(st, &fakeGateway{}, pub, zap.NewNop())
	newPendingRecord(t, st, "p1")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Reconcile(ctx, "p1", "approved"); err != nil {
				t.Errorf("reconcile: %v", err)
			}
		}()
	}
	wg.Wait()

	rec, _ := st.GetByPaymentID(ctx, "p1")
	if rec.Status != payment.StatusPaid || rec.AccessPassword == "" || rec.PaidAt == nil {
		t.Fatalf("record not fully paid: %+v", rec)
	}
	if got := atomic.LoadInt32(&pub.calls); got != 1 {
		t.Fatalf("paid event published %d times, want 1", got)
	}
}

func TestReconcileNonApprovedIsNoop(t *testing.T) {
	tests := []string{"in_process", "rejected", "cancelled", "pending", ""}
	for _, status := range tests {
		t.Run("status_"+status, func(t *testing.T) {
			st := store.NewMemoryStore()
			r := payment.NewReconciler(st, &fakeGateway{}, nil, zap.NewNop())
			newPendingRecord(t, st, "p1")

			if err := r.Reconcile(context.Background(), "p1", status); err != nil {
				t.Fatalf("reconcile: %v", err)
			}
			rec, _ := st.GetByPaymentID(context.Background(), "p1")
			if rec.Status != payment.StatusPending {
				t.Fatalf("status = %s, want pending", rec.Status)
			}
			if rec.AccessPassword != "" || rec.PaidAt != nil {
				t.Fatalf("non-approved observation mutated credentials: %+v", rec)
			}
		})
	}
}

func TestReconcileUnknownPaymentID(t *testing.T) {
	st := store.NewMemoryStore()
	r := payment.NewReconciler(st, &fakeGateway{}, nil, zap.NewNop())

	if err := r.Reconcile(context.Background(), "ghost", "approved"); err != nil {
		t.Fatalf("reconcile of unknown id should be a no-op, got %v", err)
	}
}

func TestConfirmFromGateway(t *testing.T) {
	st := store.NewMemoryStore()
	gw := &fakeGateway{status: "approved"}
	r := payment.NewReconciler(st, gw, nil, zap.NewNop())
	newPendingRecord(t, st, "p1")

	if err := r.ConfirmFromGateway(context.Background(), "p1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	rec, _ := st.GetByPaymentID(context.Background(), "p1")
	if rec.Status != payment.StatusPaid {
		t.Fatalf("status = %s, want paid", rec.Status)
	}
}

func TestConfirmFromGatewayPropagatesLookupError(t *testing.T) {
	st := store.NewMemoryStore()
	gw := &fakeGateway{err: errors.New("boom")}
	r := payment.NewReconciler(st, gw, nil, zap.NewNop())
	newPendingRecord(t, st, "p1")

	if err := r.ConfirmFromGateway(context.Background(), "p1"); err == nil {
		t.Fatal("expected gateway error to propagate")
	}
	rec, _ := st.GetByPaymentID(context.Background(), "p1")
	if rec.Status != payment.StatusPending {
		t.Fatalf("failed lookup must not mutate the record")
	}
}

func TestEnsurePasswordReturnsExisting(t *testing.T) {
	st := store.NewMemoryStore()
	r := payment.NewReconciler(st, &fakeGateway{}, nil, zap.NewNop())
	newPendingRecord(t, st, "p1")
	ctx := context.Background()

	if err := r.Reconcile(ctx, "p1", "approved"); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	paid, _ := st.GetByPaymentID(ctx, "p1")

	got, err := r.EnsurePassword(ctx, paid)
	if err != nil {
		t.Fatalf("ensure password: %v", err)
	}
	if got != paid.AccessPassword {
		t.Fatalf("password = %q, want stored %q", got, paid.AccessPassword)
	}
}

func TestEnsurePasswordConcurrent(t *testing.T) {
	st := store.NewMemoryStore()
	r := payment.NewReconciler(st, &fakeGateway{}, nil, zap.NewNop())
	rec := newPendingRecord(t, st, "p1")
	ctx := context.Background()

	results := make([]string, 8)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pass, err := r.EnsurePassword(ctx, rec)
			if err != nil {
				t.Errorf("ensure password: %v", err)
				return
			}
			results[i] = pass
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatalf("callers observed different passwords: %q vs %q", results[0], results[i])
		}
	}
	stored, _ := st.GetByPaymentID(ctx, "p1")
	if stored.AccessPassword != results[0] {
		t.Fatalf("stored password %q differs from observed %q", stored.AccessPassword, results[0])
	}
}
