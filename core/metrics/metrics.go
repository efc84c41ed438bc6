package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "homeschool"

var (
	SyncRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "calendar_sync",
		Name:      "runs_total",
		Help:      "Calendar sync runs by provider and outcome.",
	}, []string{"provider", "status"})

	SyncDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "calendar_sync",
		Name:      "duration_seconds",
		Help:      "Wall time of one calendar sync run.",
		Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"provider"})

	EventsReconciled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "calendar_sync",
		Name:      "events_total",
		Help:      "Synced work events by reconciliation outcome.",
	}, []string{"operation"})

	ConflictsDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "calendar_sync",
		Name:      "conflicts_detected_total",
		Help:      "Lesson conflicts found for changed work events.",
	})

	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "calendar_sync",
		Name:      "token_refreshes_total",
		Help:      "OAuth access token refreshes by provider and result.",
	}, []string{"provider", "result"})

	AutoBlocked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "calendar_sync",
		Name:      "auto_blocked_total",
		Help:      "Placeholder lessons created for work events.",
	})

	registerOnce sync.Once
)

// Register adds the collectors to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(SyncRuns, SyncDuration, EventsReconciled, ConflictsDetected, TokenRefreshes, AutoBlocked)
	})
}

func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}
