// internal/ledger/gateway.go
package ledger

import (
	"context"
	"errors"
	"sort"
	"time"

	"deposit-service/internal/domain"
	"deposit-service/internal/metrics"

	"go.uber.org/zap"
)

// Provider is a ledger explorer able to list recent incoming token transfers
type Provider interface {
	Name() string
	// Keyed reports whether the provider authenticates with keys from the gateway pool
	Keyed() bool
	FetchTransfers(ctx context.Context, q domain.TransferQuery) ([]domain.Transfer, error)
}

// TransferCache stores the latest successful lookup per address
type TransferCache interface {
	GetTransfers(ctx context.Context, address string) ([]domain.Transfer, bool)
	SetTransfers(ctx context.Context, address string, transfers []domain.Transfer)
}

// Gateway queries providers in priority order and returns the first non-empty answer
type Gateway struct {
	providers []Provider
	keys      *KeyPool
	contract  string
	timeout   time.Duration
	cache     TransferCache
	logger    *zap.Logger
}

type GatewayOption func(*Gateway)

// WithCache puts a short-lived cache in front of the providers
func WithCache(c TransferCache) GatewayOption {
	return func(g *Gateway) { g.cache = c }
}

func NewGateway(providers []Provider, keys *KeyPool, contract string, timeout time.Duration, logger *zap.Logger, opts ...GatewayOption) *Gateway {
	if keys == nil {
		keys = NewKeyPool(nil)
	}
	g := &Gateway{
		providers: providers,
		keys:      keys,
		contract:  contract,
		timeout:   timeout,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FetchRecentTransfers returns transfers into address, newest first. Provider
// failures are logged and never surfaced; total failure yields an empty list.
func (g *Gateway) FetchRecentTransfers(ctx context.Context, address string, limit int) []domain.Transfer {
	if g.cache != nil {
		if cached, ok := g.cache.GetTransfers(ctx, address); ok {
			return cached
		}
	}

	q := domain.TransferQuery{Address: address, Contract: g.contract, Limit: limit}

	for _, p := range g.providers {
		transfers, err := g.fetchFrom(ctx, p, q)
		if err != nil {
			g.logger.Warn("ledger provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.String("address", address),
				zap.Error(err))
			continue
		}
		if len(transfers) == 0 {
			g.logger.Debug("ledger provider returned no transfers, trying next",
				zap.String("provider", p.Name()),
				zap.String("address", address))
			continue
		}

		sortNewestFirst(transfers)
		if g.cache != nil {
			g.cache.SetTransfers(ctx, address, transfers)
		}
		return transfers
	}

	if ctx.Err() == nil {
		g.logger.Info("no transfers from any ledger provider", zap.String("address", address))
	}
	return []domain.Transfer{}
}

// fetchFrom calls one provider. Keyed providers rotate through the pool and
// retry transient failures at most once per key.
func (g *Gateway) fetchFrom(ctx context.Context, p Provider, q domain.TransferQuery) ([]domain.Transfer, error) {
	attempts := 1
	if p.Keyed() && g.keys.Size() > 1 {
		attempts = g.keys.Size()
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.Keyed() {
			q.APIKey = g.keys.Next()
		}

		transfers, err := g.call(ctx, p, q)
		if err == nil {
			return transfers, nil
		}
		lastErr = err
		if !isTransient(err) {
			break
		}
		if attempts > 1 {
			g.logger.Debug("transient provider error, rotating key",
				zap.String("provider", p.Name()),
				zap.Int("attempt", i+1),
				zap.Error(err))
		}
	}
	return nil, lastErr
}

func (g *Gateway) call(ctx context.Context, p Provider, q domain.TransferQuery) ([]domain.Transfer, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	transfers, err := p.FetchTransfers(callCtx, q)
	metrics.LedgerRequestDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		metrics.LedgerRequestsTotal.WithLabelValues(p.Name(), "error").Inc()
	case len(transfers) == 0:
		metrics.LedgerRequestsTotal.WithLabelValues(p.Name(), "empty").Inc()
	default:
		metrics.LedgerRequestsTotal.WithLabelValues(p.Name(), "ok").Inc()
	}
	return transfers, err
}

type transientError interface {
	Transient() bool
}

// isTransient treats network errors and timeouts as retryable along with
// provider errors that say so
func isTransient(err error) bool {
	var te transientError
	if errors.As(err, &te) {
		return te.Transient()
	}
	return !errors.Is(err, context.Canceled)
}

func sortNewestFirst(transfers []domain.Transfer) {
	sort.SliceStable(transfers, func(i, j int) bool {
		return transfers[i].Timestamp.After(transfers[j].Timestamp)
	})
}
