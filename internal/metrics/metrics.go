// Package metrics holds the Prometheus collectors shared across the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	CommissionJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commission_jobs_total",
			Help: "Commission jobs handled, by outcome",
		},
		[]string{"outcome"}, // done, duplicate, failed, dead_letter
	)

	CommissionCreditedAmount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commission_credited_amount_total",
			Help: "Commission credited in minor units, by tier",
		},
		[]string{"tier"},
	)

	CommissionSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commission_skipped_total",
			Help: "Commission tiers skipped, by reason",
		},
		[]string{"reason"},
	)

	CommissionJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "commission_job_duration_seconds",
			Help:    "Time to process one commission job",
			Buckets: prometheus.DefBuckets,
		},
	)

	WithdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withdrawals_total",
			Help: "Withdrawal requests, by outcome",
		},
		[]string{"outcome"},
	)

	OutboxSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_sends_total",
			Help: "Outbox relay attempts, by topic and result",
		},
		[]string{"topic", "result"},
	)

	ReconcileMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_reconcile_mismatches_total",
			Help: "Wallets whose balance disagrees with their transaction log",
		},
	)
)
