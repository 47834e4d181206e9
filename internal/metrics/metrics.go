package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics methods are safe to call on a nil receiver, so components can be
// built without instrumentation in tests.
type Metrics struct {
	registry       *prometheus.Registry
	importRuns     *prometheus.CounterVec
	importRows     *prometheus.CounterVec
	importDuration prometheus.Histogram
	blockedCloses  prometheus.Counter
	emailsSent     *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		importRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "import_runs_total",
			Help:      "Lead import runs by outcome.",
		}, []string{"outcome"}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "import_rows_total",
			Help:      "Rows processed by the lead importer.",
		}, []string{"result"}),
		importDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crm",
			Name:      "import_duration_seconds",
			Help:      "Server-side processing time of a lead import.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		blockedCloses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "lead_close_blocked_total",
			Help:      "Attempts to close a lead rejected by the follow-up rule.",
		}),
		emailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "emails_sent_total",
			Help:      "Notification emails by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crm",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.importRuns,
		m.importRows,
		m.importDuration,
		m.blockedCloses,
		m.emailsSent,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveImport(outcome string, succeeded, failed int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.importRuns.WithLabelValues(outcome).Inc()
	m.importRows.WithLabelValues("succeeded").Add(float64(succeeded))
	m.importRows.WithLabelValues("failed").Add(float64(failed))
	m.importDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) CloseBlocked() {
	if m == nil {
		return
	}
	m.blockedCloses.Inc()
}

func (m *Metrics) EmailSent(err error) {
	if m == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	m.emailsSent.WithLabelValues(outcome).Inc()
}

// ObserveHTTP records one request. route is the matched pattern, never the
// raw path, so ids do not explode the label set.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
