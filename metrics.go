package bloggy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// engagementTransitions counts tracker operations by what they did to the stored state.
	engagementTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloggy_engagement_transitions_total",
			Help: "Engagement operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	engagementConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloggy_engagement_conflicts_total",
			Help: "Engagement operations that failed because of lock or serialization contention",
		},
		[]string{"operation"},
	)

	// httpRequests is fed by promhttp.InstrumentHandlerCounter, which wants the code and method labels.
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloggy_http_requests_total",
			Help: "HTTP requests by status code and method",
		},
		[]string{"code", "method"},
	)
)

func recordEngagementError(operation string, err error) {
	if IsConflictRetry(err) {
		engagementConflicts.WithLabelValues(operation).Inc()
	}
}
