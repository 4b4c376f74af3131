package payment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Reconciler merges payment-status observations from the webhook
// channel and the pending poller into one canonical record state.
// Both channels may report the same approval any number of times, in
// any order; correctness relies on the store's conditional updates,
// not on locking between callers.
type Reconciler struct {
	store     RecordStore
	gateway   Gateway
	publisher EventPublisher // optional
	log       *zap.Logger

	// sf dedupes concurrent gateway lookups for the same payment id,
	// e.g. a webhook delivery racing a poller tick.
	sf singleflight.Group
}

func NewReconciler(store RecordStore, gateway Gateway, publisher EventPublisher, log *zap.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		gateway:   gateway,
		publisher: publisher,
		log:       log,
	}
}

// Reconcile applies one observed remote status to the stored record.
// Only "approved" mutates anything; every other status leaves the
// record pending. Safe to call repeatedly and concurrently.
func (r *Reconciler) Reconcile(ctx context.Context, paymentID, observedStatus string) error {
	if observedStatus != GatewayStatusApproved {
		return nil
	}

	transitioned, err := r.store.MarkPaid(ctx, paymentID, NewPassword(), time.Now())
	if err != nil {
		return fmt.Errorf("mark paid %s: %w", paymentID, err)
	}
	if !transitioned {
		return nil
	}

	r.log.Info("payment approved", zap.String("payment_id", paymentID))
	r.publishPaid(ctx, paymentID)
	return nil
}

// ConfirmFromGateway fetches the current remote status for paymentID
// and reconciles it. Concurrent calls for the same id share a single
// lookup.
func (r *Reconciler) ConfirmFromGateway(ctx context.Context, paymentID string) error {
	_, err, _ := r.sf.Do(paymentID, func() (interface{}, error) {
		status, err := r.gateway.GetPaymentStatus(ctx, paymentID)
		if err != nil {
			return nil, fmt.Errorf("gateway status %s: %w", paymentID, err)
		}
		return nil, r.Reconcile(ctx, paymentID, status)
	})
	return err
}

// EnsurePassword returns the record's access password, generating and
// conditionally persisting one when absent. The stored value wins over
// the locally generated candidate if a concurrent writer got there first.
func (r *Reconciler) EnsurePassword(ctx context.Context, rec *Record) (string, error) {
	if rec.AccessPassword != "" {
		return rec.AccessPassword, nil
	}
	pass, err := r.store.EnsureAccessPassword(ctx, rec.AccessToken, NewPassword())
	if err != nil {
		return "", fmt.Errorf("ensure password: %w", err)
	}
	return pass, nil
}

// publishPaid notifies downstream consumers about the first paid
// transition. Failures are logged only; the transition itself is
// already durable.
func (r *Reconciler) publishPaid(ctx context.Context, paymentID string) {
	if r.publisher == nil {
		return
	}
	rec, err := r.store.GetByPaymentID(ctx, paymentID)
	if err != nil {
		r.log.Warn("paid event skipped: record fetch failed",
			zap.String("payment_id", paymentID), zap.Error(err))
		return
	}
	if err := r.publisher.PaymentPaid(ctx, rec); err != nil {
		r.log.Warn("paid event publish failed",
			zap.String("payment_id", paymentID), zap.Error(err))
	}
}
