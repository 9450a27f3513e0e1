package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the application counters. A single instance is
// shared across services and registered on its own registry so tests
// can create isolated copies.
type Metrics struct {
	registry *prometheus.Registry

	PointsAwarded   prometheus.Counter
	PointsSpent     prometheus.Counter
	PointsRefunded  prometheus.Counter
	ExpensesTotal   prometheus.Counter
	SettlementsRun  prometheus.Counter
	SubscriptionRun prometheus.Counter
	Achievements    prometheus.Counter

	RequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		PointsAwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "hearth_points_awarded_total",
			Help: "Points credited to members for completed tasks.",
		}),
		PointsSpent: factory.NewCounter(prometheus.CounterOpts{
			Name: "hearth_points_spent_total",
			Help: "Points debited by reward claims.",
		}),
		PointsRefunded: factory.NewCounter(prometheus.CounterOpts{
			Name: "hearth_points_refunded_total",
			Help: "Points returned by rejected redemptions.",
		}),
		ExpensesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "hearth_expenses_recorded_total",
			Help: "Expenses recorded, including subscription postings.",
		}),
		SettlementsRun: factory.NewCounter(prometheus.CounterOpts{
			Name: "hearth_settlements_total",
			Help: "Completed group settlements.",
		}),
		SubscriptionRun: factory.NewCounter(prometheus.CounterOpts{
			Name: "hearth_subscription_postings_total",
			Help: "Recurring expenses re-posted by the billing worker.",
		}),
		Achievements: factory.NewCounter(prometheus.CounterOpts{
			Name: "hearth_achievements_earned_total",
			Help: "Achievements unlocked by members.",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hearth_http_request_duration_seconds",
			Help:    "HTTP request latency by method, route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Handler returns the /metrics endpoint for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
