// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_provider_requests_total",
			Help: "Total ledger explorer requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	LedgerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_provider_request_duration_seconds",
			Help:    "Ledger explorer request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	OrdersCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deposit_orders_created_total",
			Help: "Deposit orders created",
		},
	)

	AllocationCollisionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deposit_allocation_collisions_total",
			Help: "Discriminator draws rejected because the amount was already pending",
		},
	)

	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deposit_settlements_total",
			Help: "Settlement attempts by trigger and result",
		},
		[]string{"trigger", "result"},
	)

	ExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deposit_orders_expired_total",
			Help: "Pending orders moved to expired",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deposit_sweep_duration_seconds",
			Help:    "Duration of one reconciliation sweep",
			Buckets: prometheus.DefBuckets,
		},
	)
)
