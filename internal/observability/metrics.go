package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting runtime metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - LLM request performance, token usage, and estimated cost
//   - Tool execution counts, latencies, and rate-limit rejections
//   - Turn loop throughput and active session counts
//   - Event log append volume
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	defer metrics.RecordLLMRequest("anthropic", "claude-sonnet-4-5", "success", elapsed, 120, 480)
type Metrics struct {
	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider, model, and status.
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// LLMCostUSD tracks estimated cost in USD.
	// Labels: provider, model
	LLMCostUSD *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations by tool name and status
	// (success|error|rate_limited).
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	ToolExecutionDuration *prometheus.HistogramVec

	// EventAppendCounter counts events appended to the event log by kind.
	EventAppendCounter *prometheus.CounterVec

	// ActiveSessions is a gauge tracking currently running turns.
	ActiveSessions prometheus.Gauge

	// TurnDuration measures a full orchestrator turn's wall-clock time.
	// Labels: status (completed|max_turns|max_duration|idle_timeout|cancelled|llm_stream_error)
	TurnDuration *prometheus.HistogramVec

	// TurnsPerRun counts how many LLM round trips one turn took.
	TurnsPerRun prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics. Call once at
// process startup; the returned *Metrics is safe for concurrent use.
func NewMetrics() *Metrics {
	return &Metrics{
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentd_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentd_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentd_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),
		LLMCostUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentd_llm_cost_usd_total",
				Help: "Estimated LLM API cost in USD",
			},
			[]string{"provider", "model"},
		),
		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentd_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentd_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),
		EventAppendCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentd_events_appended_total",
				Help: "Total number of events appended to the event log by kind",
			},
			[]string{"kind"},
		),
		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentd_active_turns",
				Help: "Current number of in-flight orchestrator turns",
			},
		),
		TurnDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentd_turn_duration_seconds",
				Help:    "Duration of a full orchestrator turn in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 300, 1800},
			},
			[]string{"status"},
		),
		TurnsPerRun: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentd_turns_per_run",
				Help:    "Number of LLM round trips a single turn took before terminating",
				Buckets: []float64{1, 2, 3, 5, 10, 20, 50, 100},
			},
		),
	}
}

// RecordLLMRequest records duration, status, token counts, and estimated
// cost for one completed LLM request.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordLLMCost records estimated API cost in USD for one request.
func (m *Metrics) RecordLLMCost(provider, model string, costUSD float64) {
	m.LLMCostUSD.WithLabelValues(provider, model).Add(costUSD)
}

// RecordToolExecution records one tool invocation's outcome and latency.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordEventAppend increments the event-append counter for one event kind.
func (m *Metrics) RecordEventAppend(kind string) {
	m.EventAppendCounter.WithLabelValues(kind).Inc()
}

// TurnStarted marks a turn as in-flight.
func (m *Metrics) TurnStarted() {
	m.ActiveSessions.Inc()
}

// TurnEnded marks a turn as finished, recording its status, duration, and
// how many LLM round trips it took.
func (m *Metrics) TurnEnded(status string, durationSeconds float64, turns int) {
	m.ActiveSessions.Dec()
	m.TurnDuration.WithLabelValues(status).Observe(durationSeconds)
	m.TurnsPerRun.Observe(float64(turns))
}
