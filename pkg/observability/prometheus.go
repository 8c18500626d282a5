package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "exprflow"

// PrometheusHooks implements every hook interface on top of a Prometheus
// registry. Batch runs write the registry as a textfile when they finish.
type PrometheusHooks struct {
	reg prometheus.Gatherer

	stageDuration *prometheus.HistogramVec
	stageItems    *prometheus.GaugeVec
	stageErrors   *prometheus.CounterVec
	warnings      *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheBytes  *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpErrors   *prometheus.CounterVec
}

// NewPrometheusHooks registers the exprflow collectors on reg.
func NewPrometheusHooks(reg *prometheus.Registry) *PrometheusHooks {
	f := promauto.With(reg)
	return &PrometheusHooks{
		reg: reg,
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   []float64{.001, .01, .05, .1, .5, 1, 5, 30, 120},
		}, []string{"stage"}),
		stageItems: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_items",
			Help:      "Rows, features or terms produced by the last run of each stage",
		}, []string{"stage"}),
		stageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Pipeline stages that returned an error",
		}, []string{"stage"}),
		warnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Non-fatal warnings emitted by pipeline stages",
		}, []string{"stage"}),
		cacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache hits by key type",
		}, []string{"type"}),
		cacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache misses by key type",
		}, []string{"type"}),
		cacheBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_written_bytes_total",
			Help:      "Bytes written to the cache by key type",
		}, []string{"type"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Outgoing HTTP requests by host and status",
		}, []string{"host", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Outgoing HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"host"}),
		httpErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Outgoing HTTP requests that failed before a response",
		}, []string{"host"}),
	}
}

// Gatherer returns the registry the hooks write to.
func (p *PrometheusHooks) Gatherer() prometheus.Gatherer { return p.reg }

// WriteTextfile writes the current metric values in the node-exporter
// textfile format.
func (p *PrometheusHooks) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, p.reg)
}

func (p *PrometheusHooks) OnStageStart(context.Context, string) {}

func (p *PrometheusHooks) OnStageComplete(_ context.Context, stage string, items int, d time.Duration, err error) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	p.stageItems.WithLabelValues(stage).Set(float64(items))
	if err != nil {
		p.stageErrors.WithLabelValues(stage).Inc()
	}
}

func (p *PrometheusHooks) OnWarning(_ context.Context, stage, _ string) {
	p.warnings.WithLabelValues(stage).Inc()
}

func (p *PrometheusHooks) OnCacheHit(_ context.Context, keyType string) {
	p.cacheHits.WithLabelValues(keyType).Inc()
}

func (p *PrometheusHooks) OnCacheMiss(_ context.Context, keyType string) {
	p.cacheMisses.WithLabelValues(keyType).Inc()
}

func (p *PrometheusHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	p.cacheBytes.WithLabelValues(keyType).Add(float64(size))
}

func (p *PrometheusHooks) OnRequest(context.Context, string, string, string) {}

func (p *PrometheusHooks) OnResponse(_ context.Context, _, host, _ string, status int, d time.Duration) {
	p.httpRequests.WithLabelValues(host, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(host).Observe(d.Seconds())
}

func (p *PrometheusHooks) OnError(_ context.Context, _, host, _ string, _ error) {
	p.httpErrors.WithLabelValues(host).Inc()
}
