package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "signalforge"

// Registry holds the service's Prometheus collectors on a private registry
// so tests can build as many as they like.
type Registry struct {
	registry *prometheus.Registry

	AnalysesTotal     *prometheus.CounterVec
	AnalysisDuration  *prometheus.HistogramVec
	AnalysisErrors    *prometheus.CounterVec
	CapitalPlanErrors prometheus.Counter

	ProviderRequests *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	BreakerState     *prometheus.GaugeVec

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	CacheErrors prometheus.Counter
}

// NewRegistry creates and registers every collector, plus the Go runtime
// and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		AnalysesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analyses_total",
				Help:      "Completed analyses by instrument and validated signal",
			},
			[]string{"instrument", "signal"},
		),
		AnalysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analysis_duration_seconds",
				Help:      "Time spent in the analysis pipeline, excluding data fetch",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"instrument"},
		),
		AnalysisErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analysis_errors_total",
				Help:      "Failed analyses by reason",
			},
			[]string{"reason"},
		),
		CapitalPlanErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capital_plan_errors_total",
			Help:      "Analyses whose capital plan carried an error marker",
		}),

		ProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Market data requests by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		ProviderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Market data request latency",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"provider"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_breaker_state",
				Help:      "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
			},
			[]string{"provider"},
		),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bar_cache_hits_total",
			Help:      "Bar cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bar_cache_misses_total",
			Help:      "Bar cache misses",
		}),
		CacheErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bar_cache_errors_total",
			Help:      "Bar cache read or write failures",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.AnalysesTotal,
		r.AnalysisDuration,
		r.AnalysisErrors,
		r.CapitalPlanErrors,
		r.ProviderRequests,
		r.ProviderDuration,
		r.BreakerState,
		r.CacheHits,
		r.CacheMisses,
		r.CacheErrors,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// ObserveAnalysis counts a completed analysis.
func (r *Registry) ObserveAnalysis(instrument, signal string, elapsed time.Duration, capitalError bool) {
	if r == nil {
		return
	}
	r.AnalysesTotal.WithLabelValues(instrument, signal).Inc()
	r.AnalysisDuration.WithLabelValues(instrument).Observe(elapsed.Seconds())
	if capitalError {
		r.CapitalPlanErrors.Inc()
	}
}

// ObserveAnalysisError counts a failed analysis.
func (r *Registry) ObserveAnalysisError(reason string) {
	if r == nil {
		return
	}
	r.AnalysisErrors.WithLabelValues(reason).Inc()
}

// ObserveProvider records one upstream request.
func (r *Registry) ObserveProvider(provider string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.ProviderRequests.WithLabelValues(provider, outcome).Inc()
	r.ProviderDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// SetBreakerState publishes a breaker state as a number.
func (r *Registry) SetBreakerState(provider string, state int) {
	if r == nil {
		return
	}
	r.BreakerState.WithLabelValues(provider).Set(float64(state))
}

// ObserveCache records a cache lookup. err takes precedence over hit.
func (r *Registry) ObserveCache(hit bool, err error) {
	if r == nil {
		return
	}
	switch {
	case err != nil:
		r.CacheErrors.Inc()
	case hit:
		r.CacheHits.Inc()
	default:
		r.CacheMisses.Inc()
	}
}
