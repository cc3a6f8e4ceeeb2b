package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gateway metrics
var (
	// Routing counters
	RoutingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llm",
			Subsystem: "gateway",
			Name:      "routing_requests_total",
			Help:      "Total routed requests by outcome",
		},
		[]string{"outcome", "conversation_type"},
	)

	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llm",
			Subsystem: "gateway",
			Name:      "fallbacks_total",
			Help:      "Fallback hops away from the primary candidate",
		},
		[]string{"provider", "error_type"},
	)

	// Provider errors
	ProviderErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llm",
			Subsystem: "gateway",
			Name:      "provider_errors_total",
			Help:      "Total provider call failures",
		},
		[]string{"provider", "error_type"},
	)

	// Token counters
	TokensPromptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llm",
			Subsystem: "gateway",
			Name:      "tokens_prompt_total",
			Help:      "Total prompt tokens consumed",
		},
		[]string{"model", "provider"},
	)

	TokensCompletionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llm",
			Subsystem: "gateway",
			Name:      "tokens_completion_total",
			Help:      "Total completion tokens generated",
		},
		[]string{"model", "provider"},
	)

	// Classifier counters
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llm",
			Subsystem: "gateway",
			Name:      "classifications_total",
			Help:      "Classifications by resulting conversation type",
		},
		[]string{"conversation_type"},
	)

	WebSearchDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llm",
			Subsystem: "gateway",
			Name:      "web_search_decisions_total",
			Help:      "Web-search decisions by verdict",
		},
		[]string{"decision", "query_type"},
	)

	// Quota
	QuotaExceededTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llm",
			Subsystem: "gateway",
			Name:      "quota_exceeded_total",
			Help:      "Requests refused because a provider's daily quota was spent",
		},
		[]string{"provider"},
	)

	// Inference duration
	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "llm",
			Subsystem: "gateway",
			Name:      "llm_duration_seconds",
			Help:      "LLM inference duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"model", "provider"},
	)

	// Provider health gauge
	ProviderHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "llm",
			Subsystem: "gateway",
			Name:      "provider_health",
			Help:      "Provider health status (1=healthy, 0=unhealthy)",
		},
		[]string{"provider"},
	)

	// Registry gauges
	ActiveHandles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "llm",
			Subsystem: "gateway",
			Name:      "active_handles",
			Help:      "Currently cached connector handles",
		},
	)

	HandlesSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "llm",
			Subsystem: "gateway",
			Name:      "handles_swept_total",
			Help:      "Connector handles evicted by the idle sweep",
		},
	)
)

// RecordRouting records the final outcome of one routed request.
func RecordRouting(outcome, conversationType string) {
	if conversationType == "" {
		conversationType = "unknown"
	}
	RoutingRequestsTotal.WithLabelValues(outcome, conversationType).Inc()
}

// RecordFallback records one fallback hop caused by a provider failure.
func RecordFallback(provider, errorType string) {
	FallbacksTotal.WithLabelValues(provider, errorType).Inc()
	ProviderErrorsTotal.WithLabelValues(provider, errorType).Inc()
}

// RecordTokens records token usage for a completion request.
func RecordTokens(model, provider string, promptTokens, completionTokens int) {
	TokensPromptTotal.WithLabelValues(model, provider).Add(float64(promptTokens))
	TokensCompletionTotal.WithLabelValues(model, provider).Add(float64(completionTokens))
}

// RecordClassification records the resulting conversation type.
func RecordClassification(conversationType string) {
	ClassificationsTotal.WithLabelValues(conversationType).Inc()
}

// RecordWebSearchDecision records a web-search verdict.
func RecordWebSearchDecision(needsSearch bool, queryType string) {
	decision := "skip"
	if needsSearch {
		decision = "search"
	}
	if queryType == "" {
		queryType = "unknown"
	}
	WebSearchDecisionsTotal.WithLabelValues(decision, queryType).Inc()
}

// RecordQuotaExceeded records a request refused on quota.
func RecordQuotaExceeded(provider string) {
	QuotaExceededTotal.WithLabelValues(provider).Inc()
}

// RecordLLMDuration records the duration of an LLM inference call.
func RecordLLMDuration(model, provider string, durationSec float64) {
	LLMDuration.WithLabelValues(model, provider).Observe(durationSec)
}

// SetProviderHealth sets the health status of a provider.
func SetProviderHealth(provider string, healthy bool) {
	val := 0.0
	if healthy {
		val = 1.0
	}
	ProviderHealth.WithLabelValues(provider).Set(val)
}

// SetActiveHandles sets the cached handle gauge.
func SetActiveHandles(n int) {
	ActiveHandles.Set(float64(n))
}

// RecordSwept adds to the swept-handle counter.
func RecordSwept(n int) {
	if n > 0 {
		HandlesSweptTotal.Add(float64(n))
	}
}
