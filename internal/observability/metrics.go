package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vtc"

var (
	RidesCreated   = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "rides_created_total", Help: "Rides created by type"}, []string{"type"})
	RideTransition = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "ride_transitions_total", Help: "Ride status transitions"}, []string{"from", "to"})
	RidesReopened  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rides_reopened_total", Help: "Accepted rides returned to pending by driver cancellation"})

	OffersSent       = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "dispatch_offers_sent_total", Help: "Personalized ride offers emitted"})
	OfferFanout      = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "dispatch_offer_fanout", Help: "Eligible drivers per dispatched ride", Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100}})
	DriversAvailable = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "driver_availability_pings_total", Help: "Accepted driver availability pings"})

	LedgerOps = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ledger_operations_total", Help: "Ledger mutations by kind and outcome"},
		[]string{"kind", "outcome"},
	)
	CommissionCharged = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "commission_charged_minor_total", Help: "Commission debited, minor units"})
	CommissionFailed  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "commission_failures_total", Help: "Commission charges that failed after completion"})
	PenaltiesCharged  = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "penalties_total", Help: "Cancellation penalties by completeness"}, []string{"partial"})

	LocationUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "location_updates_total", Help: "In-ride location pings by outcome"},
		[]string{"outcome"},
	)

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "events_published_total", Help: "Ride events handed to the event backend"}, []string{"backend", "outcome"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
