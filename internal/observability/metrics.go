package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityLoggedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "studyrank",
		Subsystem: "persistence",
		Name:      "last_activity_logged_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity persisted to Postgres.",
	})
	httpRequestsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studyrank",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Number of HTTP requests handled, labeled by method, matched route pattern, and status.",
	}, []string{"method", "pattern", "status"})
)

func init() {
	prometheus.MustRegister(activityLoggedGauge, httpRequestsCounter)
}

// RecordActivityLogged updates the persistence watermark gauge.
func RecordActivityLogged(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityLoggedGauge.Set(float64(ts.Unix()))
}

// RecordHTTPRequest increments the request counter for the matched route.
func RecordHTTPRequest(method, pattern string, status int) {
	httpRequestsCounter.WithLabelValues(method, pattern, strconv.Itoa(status)).Inc()
}
