// Package metrics exposes Prometheus instrumentation for crawl runs.
//
// All methods are safe to call on a nil *Collector, which lets one-shot CLI
// runs skip instrumentation without guarding every call site.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bbsharvest"

// Page outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeFailed    = "failed"
	OutcomeMalformed = "malformed"
)

// Record verdict labels.
const (
	VerdictAccepted  = "accepted"
	VerdictDuplicate = "duplicate"
	VerdictStale     = "stale"
)

// Collector holds all crawl metrics.
type Collector struct {
	registry *prometheus.Registry

	PagesTotal        *prometheus.CounterVec
	RecordsTotal      *prometheus.CounterVec
	FetchDuration     *prometheus.HistogramVec
	EarlyExitSignals  *prometheus.CounterVec
	RunsTotal         *prometheus.CounterVec
	LastSuccessfulRun prometheus.Gauge
	CorpusSize        prometheus.Gauge
}

// NewCollector registers the crawl metrics on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		PagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Pages requested, by target and outcome (ok, failed, malformed).",
		}, []string{"target", "outcome"}),
		RecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records seen, by target and filter verdict.",
		}, []string{"target", "verdict"}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Latency of a single page request.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"}),
		EarlyExitSignals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "early_exit_signals_total",
			Help:      "Pages past the advisory threshold that yielded no new records.",
		}, []string{"target"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Harvest runs, by mode and result.",
		}, []string{"mode", "result"}),
		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_run_timestamp_seconds",
			Help:      "Unix time of the last harvest run that persisted its results.",
		}),
		CorpusSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_records",
			Help:      "Number of records in the combined corpus after the last run.",
		}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}

	return c.registry
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObservePage records the outcome and latency of one page request.
func (c *Collector) ObservePage(target, outcome string, took time.Duration) {
	if c == nil {
		return
	}

	c.PagesTotal.WithLabelValues(target, outcome).Inc()

	if outcome != OutcomeFailed || took > 0 {
		c.FetchDuration.WithLabelValues(target).Observe(took.Seconds())
	}
}

// ObserveRecords adds n records with the given verdict.
func (c *Collector) ObserveRecords(target, verdict string, n int) {
	if c == nil || n == 0 {
		return
	}

	c.RecordsTotal.WithLabelValues(target, verdict).Add(float64(n))
}

// ObserveEarlyExitSignal counts one advisory early-exit signal.
func (c *Collector) ObserveEarlyExitSignal(target string) {
	if c == nil {
		return
	}

	c.EarlyExitSignals.WithLabelValues(target).Inc()
}

// ObserveRun records the completion of a harvest run.
func (c *Collector) ObserveRun(mode string, err error, corpusSize int, at time.Time) {
	if c == nil {
		return
	}

	if err != nil {
		c.RunsTotal.WithLabelValues(mode, "error").Inc()

		return
	}

	c.RunsTotal.WithLabelValues(mode, "success").Inc()
	c.LastSuccessfulRun.Set(float64(at.Unix()))

	if corpusSize >= 0 {
		c.CorpusSize.Set(float64(corpusSize))
	}
}
