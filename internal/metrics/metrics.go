package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduling_transitions_total",
		Help: "Lifecycle transitions applied, by entity and edge.",
	}, []string{"entity", "from", "to"})

	ClaimConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduling_claim_conflicts_total",
		Help: "Emergency claim attempts that lost the conditional write.",
	})

	DispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduling_dispatch_failures_total",
		Help: "Best-effort notification channel failures, by channel.",
	}, []string{"channel"})

	SweptAppointments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduling_swept_appointments_total",
		Help: "Past-dated appointments promoted to COMPLETED by the sweeper.",
	})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpDuration.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	})
}
