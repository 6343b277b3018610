package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	admissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allot_admissions_total",
			Help: "Admission attempts by outcome.",
		},
		[]string{"outcome"},
	)

	txRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allot_tx_retries_total",
			Help: "Serialization retries by operation.",
		},
		[]string{"op"},
	)

	txDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "allot_tx_duration_seconds",
			Help:    "Transaction latency including retries.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"op"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "allot_ready",
		Help: "1 when the service reports ready.",
	})

	initOnce sync.Once
)

// Init registers the collectors in the default registry. Safe to call twice.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
			admissionsTotal, txRetries, txDuration, ready)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAdmission counts one admission attempt. An empty outcome is a success.
func ObserveAdmission(outcome string) {
	if outcome == "" {
		outcome = "admitted"
	}
	admissionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveTxRetry counts one serialization retry for op.
func ObserveTxRetry(op string) {
	txRetries.WithLabelValues(op).Inc()
}

// ObserveTxDuration records the total time spent in a transactional op.
func ObserveTxDuration(op string, d time.Duration) {
	txDuration.WithLabelValues(op).Observe(d.Seconds())
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// Instrument measures rate, latency and in-flight requests. The path label
// is the chi route pattern when one matched, CanonicalPath otherwise.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := ""
		if rc := chi.RouteContext(r.Context()); rc != nil {
			path = rc.RoutePattern()
		}
		if path == "" {
			path = CanonicalPath(r.URL.Path)
		}
		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

// CanonicalPath collapses ULID segments to ":id" so that label cardinality
// stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" || p == "/" {
		return "/"
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, seg := range parts {
		if len(seg) == ulid.EncodedSize {
			if _, err := ulid.ParseStrict(seg); err == nil {
				parts[i] = ":id"
			}
		}
	}
	return "/" + strings.Join(parts, "/")
}

type statusWriter struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.code = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent event streams working through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
