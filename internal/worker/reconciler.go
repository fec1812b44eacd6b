// internal/worker/reconciler.go
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper is the reconciliation work run on each tick
type Sweeper interface {
	ReconcilePending(ctx context.Context) (int, error)
	ExpireDue(ctx context.Context) (int, error)
}

// Leader decides whether this instance should run the sweep
type Leader interface {
	Acquire(ctx context.Context) (bool, error)
}

type Reconciler struct {
	sweeper  Sweeper
	leader   Leader
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
}

// NewReconciler builds the background loop. A nil leader makes every instance sweep.
func NewReconciler(sweeper Sweeper, leader Leader, interval time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		sweeper:  sweeper,
		leader:   leader,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start runs the sweep and reap tickers until Stop is called or ctx ends
func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info("starting deposit reconciler", zap.Duration("interval", r.interval))

	// Match pending orders against the ledger
	sweepTicker := time.NewTicker(r.interval)
	defer sweepTicker.Stop()

	// Expire orders past their validity window
	reapTicker := time.NewTicker(r.interval)
	defer reapTicker.Stop()

	for {
		select {
		case <-sweepTicker.C:
			if !r.isLeader(ctx) {
				continue
			}
			if _, err := r.sweeper.ReconcilePending(ctx); err != nil {
				r.logger.Error("failed to reconcile pending deposits", zap.Error(err))
			}

		case <-reapTicker.C:
			if !r.isLeader(ctx) {
				continue
			}
			if _, err := r.sweeper.ExpireDue(ctx); err != nil {
				r.logger.Error("failed to expire due deposits", zap.Error(err))
			}

		case <-r.stopChan:
			r.logger.Info("stopping deposit reconciler")
			return

		case <-ctx.Done():
			r.logger.Info("context cancelled, stopping deposit reconciler")
			return
		}
	}
}

// Stop stops the reconciler
func (r *Reconciler) Stop() {
	close(r.stopChan)
}

func (r *Reconciler) isLeader(ctx context.Context) bool {
	if r.leader == nil {
		return true
	}
	ok, err := r.leader.Acquire(ctx)
	if err != nil {
		// without a working lock, sweeping everywhere is still correct
		r.logger.Warn("leader lock unavailable, sweeping anyway", zap.Error(err))
		return true
	}
	return ok
}
