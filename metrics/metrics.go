// Package metrics holds the Prometheus instruments for the diagnosis
// service. The Recorder is passed explicitly to the components that emit
// metrics; there are no package-level singletons, which keeps tests able
// to run against isolated registries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder wraps the service's Prometheus instruments. A nil Recorder is
// valid and records nothing.
type Recorder struct {
	providerAttempts *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	analyzeDuration  *prometheus.HistogramVec
	gateBlocks       prometheus.Counter
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	transcriptions   *prometheus.CounterVec
	rateLimited      prometheus.Counter
}

// NewRecorder creates and registers all instruments on the given registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		providerAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xray_provider_attempts_total",
			Help: "Vision provider attempts by provider and outcome",
		}, []string{"provider", "result"}),
		providerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "xray_provider_attempt_duration_seconds",
			Help:    "Duration of individual vision provider attempts",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
		}, []string{"provider"}),
		analyzeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "xray_analyze_request_duration_seconds",
			Help:    "End-to-end duration of analysis requests by mode",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 90, 180},
		}, []string{"mode"}),
		gateBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xray_region_gate_blocks_total",
			Help: "Analyses blocked by the body region safety gate",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xray_cache_hits_total",
			Help: "Diagnosis cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xray_cache_misses_total",
			Help: "Diagnosis cache misses",
		}),
		transcriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xray_transcription_attempts_total",
			Help: "Audio transcription attempts by provider and outcome",
		}, []string{"provider", "result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xray_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		}),
	}

	reg.MustRegister(
		r.providerAttempts,
		r.providerDuration,
		r.analyzeDuration,
		r.gateBlocks,
		r.cacheHits,
		r.cacheMisses,
		r.transcriptions,
		r.rateLimited,
	)
	return r
}

func (r *Recorder) ProviderAttempt(provider, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.providerAttempts.WithLabelValues(provider, result).Inc()
	r.providerDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (r *Recorder) AnalyzeRequest(mode string, d time.Duration) {
	if r == nil {
		return
	}
	r.analyzeDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (r *Recorder) GateBlock() {
	if r == nil {
		return
	}
	r.gateBlocks.Inc()
}

func (r *Recorder) CacheHit() {
	if r == nil {
		return
	}
	r.cacheHits.Inc()
}

func (r *Recorder) CacheMiss() {
	if r == nil {
		return
	}
	r.cacheMisses.Inc()
}

func (r *Recorder) TranscriptionAttempt(provider, result string) {
	if r == nil {
		return
	}
	r.transcriptions.WithLabelValues(provider, result).Inc()
}

func (r *Recorder) RateLimited() {
	if r == nil {
		return
	}
	r.rateLimited.Inc()
}
