package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lorrc/testit-reports/internal/adapters/secondary/testit"
	"github.com/lorrc/testit-reports/internal/core/domain"
	"github.com/lorrc/testit-reports/internal/core/ports"
)

const namespace = "testit_reports"

// Metrics holds every collector the service exports.
type Metrics struct {
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	pointsRecorded  prometheus.Counter
	countersWritten *prometheus.CounterVec
	testITRequests  *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

var (
	_ ports.CollectionMetrics = (*Metrics)(nil)
	_ testit.RequestObserver  = (*Metrics)(nil)
)

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "runs_total",
			Help:      "Number of project collection runs by trigger and final status.",
		}, []string{"trigger", "status"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "run_duration_seconds",
			Help:      "Wall time of project collection runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"trigger"}),
		pointsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "points_recorded_total",
			Help:      "Number of test points written to ground truth.",
		}),
		countersWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "counters_written_total",
			Help:      "Number of daily counters written, by kind (case or run).",
		}, []string{"kind"}),
		testITRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "testit",
			Name:      "requests_total",
			Help:      "Number of TestIT API requests. 'code' is 0 when no response was received.",
		}, []string{"endpoint", "code"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Number of HTTP requests served.",
		}, []string{"method", "route", "code"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests served.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) ObserveRun(trigger domain.CollectionTrigger, status domain.CollectionStatus, duration time.Duration) {
	m.runsTotal.WithLabelValues(string(trigger), string(status)).Inc()
	if status != domain.CollectionSkipped {
		m.runDuration.WithLabelValues(string(trigger)).Observe(duration.Seconds())
	}
}

func (m *Metrics) AddPointsRecorded(n int) {
	if n > 0 {
		m.pointsRecorded.Add(float64(n))
	}
}

func (m *Metrics) AddCountersWritten(kind string, n int) {
	if n > 0 {
		m.countersWritten.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *Metrics) ObserveTestITRequest(endpoint string, statusCode int) {
	m.testITRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
}

// Middleware records request counts and latency labelled by the chi route
// pattern, so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
