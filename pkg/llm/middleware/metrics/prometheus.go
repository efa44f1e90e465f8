package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	fallbacksTotal  *prometheus.CounterVec
}

// NewPrometheusRecorder registers the LLM metrics on reg.
// A nil reg uses the default registry.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of LLM requests by provider, model, system and status",
			},
			[]string{"provider", "model", "system", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of tokens used in LLM requests",
			},
			[]string{"provider", "model", "system", "type"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model", "system"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_retries_total",
				Help: "Total number of retried LLM attempts",
			},
			[]string{"provider", "model", "error_type"},
		),
		fallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_fallbacks_total",
				Help: "Total number of switches to a fallback provider",
			},
			[]string{"from", "to"},
		),
	}
}

// ObserveRequest records metrics for a completed LLM request.
func (p *PrometheusRecorder) ObserveRequest(r Request) {
	status := statusSuccess
	if !r.Success {
		status = statusError
	}

	p.requestsTotal.WithLabelValues(r.Provider, r.Model, r.System, status, r.ErrorType).Inc()

	if r.Success {
		p.tokensTotal.WithLabelValues(r.Provider, r.Model, r.System, "prompt").Add(float64(r.Usage.PromptTokens))
		p.tokensTotal.WithLabelValues(r.Provider, r.Model, r.System, "completion").Add(float64(r.Usage.CompletionTokens))
	}

	p.requestDuration.WithLabelValues(r.Provider, r.Model, r.System).Observe(r.Duration.Seconds())
}

// IncRetry counts a retried attempt.
func (p *PrometheusRecorder) IncRetry(provider, model, errorType string) {
	p.retriesTotal.WithLabelValues(provider, model, errorType).Inc()
}

// IncFallback counts a fallback switch.
func (p *PrometheusRecorder) IncFallback(from, to string) {
	p.fallbacksTotal.WithLabelValues(from, to).Inc()
}
