package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EvalCasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quality_gate_eval_cases_total",
			Help: "Evaluation cases executed, by result status",
		},
		[]string{"status"},
	)

	EvalRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quality_gate_eval_run_duration_seconds",
			Help:    "Wall-clock duration of evaluation runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	CompositeScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quality_gate_composite_score",
			Help:    "Composite quality scores of successful cases",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	RegressionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quality_gate_regression_runs_total",
			Help: "Completed runs by regression classification",
		},
		[]string{"severity"},
	)

	GroundingConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quality_gate_grounding_confidence",
			Help:    "Grounding checker confidence per audited answer",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	EscalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quality_gate_escalations_total",
			Help: "Escalation decisions by reason and priority",
		},
		[]string{"reason", "priority"},
	)

	EscalationHandoffFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quality_gate_escalation_handoff_failures_total",
			Help: "Escalation handoffs that failed against the support desk",
		},
	)

	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quality_gate_webhook_events_total",
			Help: "Inbound webhook events by parsed type",
		},
		[]string{"event"},
	)

	WebhookSignatureFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quality_gate_webhook_signature_failures_total",
			Help: "Inbound webhooks rejected for a bad signature",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quality_gate_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quality_gate_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(EvalCasesTotal)
	prometheus.MustRegister(EvalRunDuration)
	prometheus.MustRegister(CompositeScore)
	prometheus.MustRegister(RegressionRuns)
	prometheus.MustRegister(GroundingConfidence)
	prometheus.MustRegister(EscalationsTotal)
	prometheus.MustRegister(EscalationHandoffFailures)
	prometheus.MustRegister(WebhookEventsTotal)
	prometheus.MustRegister(WebhookSignatureFailures)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
