// Package metrics exposes Prometheus instrumentation for the monitor loop and
// the rate poller.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionsCommitted counts ledger commits made by the monitor loop.
	TransactionsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bchbet_transactions_committed_total",
		Help: "Bet transactions committed to the ledger.",
	})

	// TicketsCredited counts tickets credited across all outcomes.
	TicketsCredited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bchbet_tickets_credited_total",
		Help: "Tickets credited to outcomes.",
	})

	// CandidatesSkipped counts candidates rejected per reason.
	CandidatesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bchbet_candidates_skipped_total",
		Help: "Candidate transactions skipped during reconciliation.",
	}, []string{"reason"})

	// ReconcileErrors counts reconciliation passes that failed.
	ReconcileErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bchbet_reconcile_errors_total",
		Help: "Reconciliation passes aborted by an error.",
	})

	// ReconcileDuration observes how long one reconciliation pass takes.
	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bchbet_reconcile_duration_seconds",
		Help:    "Duration of a single outcome reconciliation pass.",
		Buckets: prometheus.DefBuckets,
	})

	// ExchangeRate reports the latest BCH/USD rate seen by the poller.
	ExchangeRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bchbet_exchange_rate_usd",
		Help: "Latest BCH/USD exchange rate.",
	})

	// RateRefreshErrors counts failed rate poll attempts.
	RateRefreshErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bchbet_rate_refresh_errors_total",
		Help: "Exchange-rate refresh attempts that failed.",
	})
)
