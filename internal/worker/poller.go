// Package worker runs the pending-payment poller: the pull channel
// that bounds confirmation latency when webhook deliveries are delayed,
// dropped, or misconfigured.
package worker

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	tickTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pix_poller_ticks_total",
		Help: "Completed poller ticks.",
	})
	tickErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pix_poller_tick_errors_total",
		Help: "Ticks whose pending-batch query failed.",
	})
	itemErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pix_poller_item_errors_total",
		Help: "Per-payment confirmations that failed and were skipped.",
	})
	pendingScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pix_poller_pending_scanned_total",
		Help: "Pending payments picked up by poller ticks.",
	})
)

// PendingLister supplies the ids of records still awaiting confirmation.
type PendingLister interface {
	ListPendingIDs(ctx context.Context, lookback time.Duration, limit int) ([]string, error)
}

// Confirmer resolves one payment id against the gateway and reconciles
// the result.
type Confirmer interface {
	ConfirmFromGateway(ctx context.Context, paymentID string) error
}

// Options mirror the POLLER_* environment configuration.
type Options struct {
	Interval   time.Duration
	Lookback   time.Duration
	BatchSize  int
	GetTimeout time.Duration
}

// Poller periodically re-checks recent pending payments. It never
// terminates itself on error; only context cancellation stops it.
type Poller struct {
	lister    PendingLister
	confirmer Confirmer
	opts      Options
	log       *zap.Logger
}

func NewPoller(lister PendingLister, confirmer Confirmer, opts Options, log *zap.Logger) *Poller {
	return &Poller{lister: lister, confirmer: confirmer, opts: opts, log: log}
}

// Start blocks until ctx is cancelled, running one tick per interval.
func (p *Poller) Start(ctx context.Context) {
	p.log.Info("pending poller started",
		zap.Duration("interval", p.opts.Interval),
		zap.Duration("lookback", p.opts.Lookback),
		zap.Int("batch", p.opts.BatchSize))

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("pending poller stopped")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick processes one batch of pending payments. A failing item skips
// that item only; a failing batch query skips the whole tick. Both are
// logged, never propagated.
func (p *Poller) Tick(ctx context.Context) {
	defer tickTotal.Inc()

	ids, err := p.lister.ListPendingIDs(ctx, p.opts.Lookback, p.opts.BatchSize)
	if err != nil {
		tickErrors.Inc()
		p.log.Error("poller: pending batch query failed", zap.Error(err))
		return
	}
	if len(ids) == 0 {
		return
	}
	pendingScanned.Add(float64(len(ids)))

	for _, id := range ids {
		itemCtx, cancel := context.WithTimeout(ctx, p.opts.GetTimeout)
		err := p.confirmer.ConfirmFromGateway(itemCtx, id)
		cancel()
		if err != nil {
			itemErrors.Inc()
			p.log.Warn("poller: confirmation failed, skipping item",
				zap.String("payment_id", id), zap.Error(err))
		}
	}
}
