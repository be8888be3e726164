package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autoclaim/autoclaim/internal/engine"
	"github.com/autoclaim/autoclaim/internal/report"
)

const namespace = "autoclaim"

// Collector holds the run metrics and, for the daemon, inbound HTTP metrics.
type Collector struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	claims           *prometheus.CounterVec
	refreshed        *prometheus.CounterVec
	activities       *prometheus.GaugeVec
	couponsAvailable *prometheus.GaugeVec
	runDuration      *prometheus.HistogramVec
	runs             *prometheus.CounterVec
	lastSuccess      *prometheus.GaugeVec
}

// NewCollector constructs a collector backed by its own registry.
func NewCollector() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "path", "status"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Claim attempts by outcome.",
		}, []string{"outcome"}),
		refreshed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_activities_total",
			Help:      "Activities seen by calendar refreshes, by merge result.",
		}, []string{"result"}),
		activities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "activities",
			Help:      "Activities of the current period by claim status.",
		}, []string{"status"}),
		couponsAvailable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coupons_available",
			Help:      "Unexpired coupons by price bucket.",
		}, []string{"bucket"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of runs by mode.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"mode"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Runs by mode and result.",
		}, []string{"mode", "result"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run by mode.",
		}, []string{"mode"}),
	}

	for _, col := range []prometheus.Collector{
		c.requestDuration, c.requestTotal,
		c.claims, c.refreshed, c.activities, c.couponsAvailable,
		c.runDuration, c.runs, c.lastSuccess,
	} {
		if err := c.registry.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// ObserveRefresh records the merge counts of a calendar refresh.
func (c *Collector) ObserveRefresh(r engine.RefreshResult) {
	c.refreshed.WithLabelValues("inserted").Add(float64(r.Inserted))
	c.refreshed.WithLabelValues("updated").Add(float64(r.Updated))
	c.refreshed.WithLabelValues("unchanged").Add(float64(r.Unchanged))
	c.refreshed.WithLabelValues("retained").Add(float64(r.Retained))
}

// ObserveClaims records the outcomes of a claim run.
func (c *Collector) ObserveClaims(r engine.ClaimRunResult) {
	c.claims.WithLabelValues(string(engine.OutcomeClaimed)).Add(float64(r.Claimed))
	c.claims.WithLabelValues(string(engine.OutcomeFailed)).Add(float64(r.Failed))
	c.claims.WithLabelValues(string(engine.OutcomeSkipped)).Add(float64(r.Skipped))
}

// ObserveReport sets the state gauges from a run report.
func (c *Collector) ObserveReport(r report.RunReport) {
	c.activities.Reset()
	for status, n := range r.StatusCounts {
		c.activities.WithLabelValues(string(status)).Set(float64(n))
	}
	for _, b := range r.Catalog.Buckets {
		c.couponsAvailable.WithLabelValues(string(b.Label)).Set(float64(len(b.Coupons)))
	}
}

// ObserveRun records a finished run.
func (c *Collector) ObserveRun(mode string, duration time.Duration, err error, finished time.Time) {
	c.runDuration.WithLabelValues(mode).Observe(duration.Seconds())
	if err != nil {
		c.runs.WithLabelValues(mode, "error").Inc()
		return
	}
	c.runs.WithLabelValues(mode, "success").Inc()
	c.lastSuccess.WithLabelValues(mode).Set(float64(finished.Unix()))
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
