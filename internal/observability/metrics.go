package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expo_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "expo_db_tx_seconds",
			Help:    "Duration of exclusive DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	CheckoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expo_checkouts_total",
			Help: "Checkout attempts by outcome",
		},
		[]string{"outcome"},
	)

	PaymentsDeclined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "expo_payments_declined_total",
			Help: "Total simulated payments declined",
		},
	)

	BoothReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expo_booth_reservations_total",
			Help: "Booth reservation attempts by outcome",
		},
		[]string{"outcome"},
	)

	LoginLockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "expo_login_lockouts_total",
			Help: "Login identities locked out by the rate limiter",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "expo_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)
)
