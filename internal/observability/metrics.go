package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Routing decisions (matched handler, shortlist size)
//   - Handler health status observed by the match scorer
//   - Circuit breaker state transitions
//   - Control loop iterations per run
//   - Tool execution patterns and latencies
//   - LLM request performance
type Metrics struct {
	// RoutingDecisions counts handler matches emitted in shortlists.
	// Labels: handler
	RoutingDecisions *prometheus.CounterVec

	// RoutingShortlistSize observes the shortlist length per request.
	RoutingShortlistSize prometheus.Histogram

	// HandlerHealth reports the last observed health per handler.
	// Labels: handler (value: 0 healthy, 1 degraded, 2 down)
	HandlerHealth *prometheus.GaugeVec

	// BreakerTransitions counts circuit breaker state changes.
	// Labels: dependency, state (closed|open|half_open)
	BreakerTransitions *prometheus.CounterVec

	// LoopIterations observes the number of model exchanges per run.
	LoopIterations prometheus.Histogram

	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ErrorCounter tracks errors by component and type.
	// Labels: component (routing|health|loop|orchestrator), error_type
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with the given
// registerer. Pass prometheus.DefaultRegisterer in production; tests should
// pass a fresh registry so instances stay isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RoutingDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_routing_decisions_total",
				Help: "Handler matches emitted in routing shortlists",
			},
			[]string{"handler"},
		),
		RoutingShortlistSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dispatch_routing_shortlist_size",
				Help:    "Number of handler matches per request",
				Buckets: []float64{0, 1, 2, 3, 4},
			},
		),
		HandlerHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dispatch_handler_health",
				Help: "Observed handler health (0 healthy, 1 degraded, 2 down)",
			},
			[]string{"handler"},
		),
		BreakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_breaker_transitions_total",
				Help: "Circuit breaker state transitions",
			},
			[]string{"dependency", "state"},
		),
		LoopIterations: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dispatch_loop_iterations",
				Help:    "Model exchanges per control loop run",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
			},
		),
		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dispatch_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_tool_executions_total",
				Help: "Tool invocations by name and status",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dispatch_tool_execution_duration_seconds",
				Help:    "Tool execution time in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),
		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_errors_total",
				Help: "Errors by component and type",
			},
			[]string{"component", "error_type"},
		),
	}
}
