package store

import (
	"context"
	"testing"
	"time"

	"github.com/dayvson009/compraslivre.tec/internal/payment"
)

func pending(id, token string, age time.Duration) *payment.Record {
	return &payment.Record{
		PaymentID:   id,
		AmountCents: 1000,
		Status:      payment.StatusPending,
		TargetURL:   "/t",
		AccessToken: token,
		CreatedAt:   time.Now().Add(-age),
	}
}

func TestCreateRejectsDuplicates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Create(ctx, pending("p1", "t1", 0)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, pending("p1", "t2", 0)); err != payment.ErrDuplicate {
		t.Fatalf("duplicate payment id: got %v, want ErrDuplicate", err)
	}
	if err := s.Create(ctx, pending("p2", "t1", 0)); err != payment.ErrDuplicate {
		t.Fatalf("duplicate access token: got %v, want ErrDuplicate", err)
	}
}

func TestMarkPaidTransitionsOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Create(ctx, pending("p1", "t1", 0)); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := s.MarkPaid(ctx, "p1", "pass-a", time.Now())
	if err != nil || !first {
		t.Fatalf("first mark paid: transitioned=%v err=%v", first, err)
	}
	second, err := s.MarkPaid(ctx, "p1", "pass-b", time.Now().Add(time.Hour))
	if err != nil || second {
		t.Fatalf("second mark paid must be a no-op: transitioned=%v err=%v", second, err)
	}

	rec, _ := s.GetByPaymentID(ctx, "p1")
	if rec.AccessPassword != "pass-a" {
		t.Fatalf("password overwritten: %q", rec.AccessPassword)
	}

	unknown, err := s.MarkPaid(ctx, "ghost", "pass", time.Now())
	if err != nil || unknown {
		t.Fatalf("unknown id must be a silent no-op: transitioned=%v err=%v", unknown, err)
	}
}

func TestEnsureAccessPasswordKeepsFirstWriter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Create(ctx, pending("p1", "t1", 0)); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.EnsureAccessPassword(ctx, "t1", "first")
	if err != nil || got != "first" {
		t.Fatalf("initial ensure: got %q err %v", got, err)
	}
	got, err = s.EnsureAccessPassword(ctx, "t1", "second")
	if err != nil || got != "first" {
		t.Fatalf("later ensure must return the stored value: got %q err %v", got, err)
	}
	if _, err := s.EnsureAccessPassword(ctx, "missing", "x"); err != payment.ErrNotFound {
		t.Fatalf("unknown token: got %v, want ErrNotFound", err)
	}
}

func TestListPendingIDs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// Inside the 60 minute window, one record per age.
	for _, rec := range []*payment.Record{
		pending("old", "t-old", 59*time.Minute),
		pending("mid", "t-mid", 30*time.Minute),
		pending("new", "t-new", time.Minute),
		pending("expired", "t-exp", 61*time.Minute),
	} {
		if err := s.Create(ctx, rec); err != nil {
			t.Fatalf("create %s: %v", rec.PaymentID, err)
		}
	}
	// A paid record must never be polled again.
	if _, err := s.MarkPaid(ctx, "mid", "pass", time.Now()); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	ids, err := s.ListPendingIDs(ctx, time.Hour, 25)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	want := []string{"new", "old"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v (newest first)", ids, want)
		}
	}

	limited, err := s.ListPendingIDs(ctx, time.Hour, 1)
	if err != nil {
		t.Fatalf("list pending limited: %v", err)
	}
	if len(limited) != 1 || limited[0] != "new" {
		t.Fatalf("limited ids = %v, want [new]", limited)
	}
}

func TestSetEmailAndMembersQuery(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	withURL := pending("p1", "t1", 2*time.Minute)
	withURL.ProductURL = "https://docs.example.com/a"
	noURL := pending("p2", "t2", time.Minute)
	stillPending := pending("p3", "t3", time.Minute)
	for _, rec := range []*payment.Record{withURL, noURL, stillPending} {
		if err := s.Create(ctx, rec); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	for _, token := range []string{"t1", "t2", "t3"} {
		if err := s.SetEmail(ctx, token, "user@example.com"); err != nil {
			t.Fatalf("set email: %v", err)
		}
	}
	if err := s.SetEmail(ctx, "missing", "x@example.com"); err != payment.ErrNotFound {
		t.Fatalf("unknown token: got %v, want ErrNotFound", err)
	}

	for _, id := range []string{"p1", "p2"} {
		if _, err := s.MarkPaid(ctx, id, "secret", time.Now()); err != nil {
			t.Fatalf("mark paid: %v", err)
		}
	}

	recs, err := s.ListPaidByCredentials(ctx, "user@example.com", "secret", 50)
	if err != nil {
		t.Fatalf("list paid: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("paid records = %d, want 2 (pending record excluded)", len(recs))
	}
	if recs[0].PaymentID != "p2" {
		t.Fatalf("expected newest first, got %v", recs[0].PaymentID)
	}

	if recs, _ := s.ListPaidByCredentials(ctx, "user@example.com", "wrong", 50); len(recs) != 0 {
		t.Fatal("wrong password must match nothing")
	}
}

func TestGetClonesRecords(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Create(ctx, pending("p1", "t1", 0)); err != nil {
		t.Fatalf("create: %v", err)
	}

	a, _ := s.GetByPaymentID(ctx, "p1")
	a.Status = payment.StatusPaid
	a.Email = "tampered@example.com"

	b, _ := s.GetByAccessToken(ctx, "t1")
	if b.Status != payment.StatusPending || b.Email != "" {
		t.Fatal("mutating a returned record leaked into the store")
	}
}
