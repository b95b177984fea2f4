// Package metrics provides Prometheus metrics export for hashtrail.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hashtrail"

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, creating it on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Registry holds all hashtrail metrics. A nil *Registry records nothing.
type Registry struct {
	reg *prometheus.Registry

	blocksAppended     *prometheus.CounterVec
	appendFailures     *prometheus.CounterVec
	chainLength        prometheus.Gauge
	chainValid         prometheus.Gauge
	validations        *prometheus.CounterVec
	validationDuration prometheus.Histogram
	digestBytes        *prometheus.CounterVec
	rateLimited        *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	webhookEvents      *prometheus.CounterVec
}

// NewRegistry creates a registry with its own Prometheus collector set.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		blocksAppended: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "blocks_appended_total",
			Help:      "Blocks appended to the audit chain by operation.",
		}, []string{"operation"}),
		appendFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "append_failures_total",
			Help:      "Rejected appends by error code.",
		}, []string{"code"}),
		chainLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "length",
			Help:      "Number of blocks in the audit chain including genesis.",
		}),
		chainValid: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "valid",
			Help:      "1 if the last validation passed, 0 otherwise.",
		}),
		validations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "validations_total",
			Help:      "Chain validations by verdict.",
		}, []string{"valid"}),
		validationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "validation_duration_seconds",
			Help:      "Time spent validating the chain.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		digestBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "digest",
			Name:      "bytes_total",
			Help:      "Bytes digested by algorithm.",
		}, []string{"algorithm"}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter by route.",
		}, []string{"route"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of API requests.",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"method", "path"}),
		webhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Webhook events emitted by type.",
		}, []string{"event"}),
	}
}

// RecordAppend records a successful append.
func (r *Registry) RecordAppend(operation string, chainLen int) {
	if r == nil {
		return
	}
	r.blocksAppended.WithLabelValues(operation).Inc()
	r.chainLength.Set(float64(chainLen))
}

// RecordAppendFailure records a rejected append.
func (r *Registry) RecordAppendFailure(code string) {
	if r == nil {
		return
	}
	r.appendFailures.WithLabelValues(code).Inc()
}

// SetChainLength sets the chain length gauge.
func (r *Registry) SetChainLength(n int) {
	if r == nil {
		return
	}
	r.chainLength.Set(float64(n))
}

// RecordValidation records a validation verdict and its duration.
func (r *Registry) RecordValidation(valid bool, duration time.Duration) {
	if r == nil {
		return
	}
	r.validations.WithLabelValues(strconv.FormatBool(valid)).Inc()
	r.validationDuration.Observe(duration.Seconds())
	if valid {
		r.chainValid.Set(1)
	} else {
		r.chainValid.Set(0)
	}
}

// AddDigestBytes counts bytes run through a digest.
func (r *Registry) AddDigestBytes(algorithm string, n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.digestBytes.WithLabelValues(algorithm).Add(float64(n))
}

// RecordRateLimited counts a rejected request.
func (r *Registry) RecordRateLimited(route string) {
	if r == nil {
		return
	}
	r.rateLimited.WithLabelValues(route).Inc()
}

// RecordHTTP records one served request.
func (r *Registry) RecordHTTP(method, path string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordWebhookEvent counts an emitted webhook event.
func (r *Registry) RecordWebhookEvent(event string) {
	if r == nil {
		return
	}
	r.webhookEvents.WithLabelValues(event).Inc()
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
