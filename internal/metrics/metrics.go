package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WithdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_withdrawals_total",
			Help: "Total number of withdrawal requests by channel and terminal state",
		},
		[]string{"channel", "state"},
	)

	AmbiguousWithdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_ambiguous_withdrawals_total",
			Help: "Withdrawals compensated after a PSP transport failure; the provider side outcome is unknown",
		},
		[]string{"channel"},
	)

	PSPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payout_psp_request_duration_seconds",
			Help:    "Duration of requests to the payment service provider",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 15, 30},
		},
		[]string{"operation", "ok"},
	)

	LedgerBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "payout_ledger_balance",
			Help: "Current internal ledger balance",
		},
	)

	KeepAlivePingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_keepalive_pings_total",
			Help: "Keep-alive self pings by result",
		},
		[]string{"result"},
	)
)
