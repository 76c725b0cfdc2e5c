package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Events flowing through the adapter pipeline, by adapter and outcome
//   - LLM request performance and response times
//   - Tool execution patterns and latencies
//   - Error rates categorized by type and component
//   - Active session counts for capacity planning
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.EventProcessed("asr", "success")
//	defer metrics.LLMRequestDuration("anthropic", "claude-3-opus").Observe(time.Since(start).Seconds())
type Metrics struct {
	// EventCounter tracks bus events handled by adapter and outcome.
	// Labels: adapter (audio|wakeword|vad|asr|orchestrator|agent|tts|gui), outcome (success|error)
	EventCounter *prometheus.CounterVec

	// EventDuration measures adapter event-handling latency in seconds.
	// Labels: adapter
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	EventDuration *prometheus.HistogramVec

	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider (anthropic|openai), model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider and model.
	// Labels: provider (anthropic|openai), model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s
	ToolExecutionDuration *prometheus.HistogramVec

	// ErrorCounter tracks errors by type and component.
	// Labels: component (adapter name|agent|tool|session), error_type
	ErrorCounter *prometheus.CounterVec

	// ActiveSessions is a gauge tracking current active sessions.
	// Labels: agent
	ActiveSessions *prometheus.GaugeVec

	// SessionDuration measures session lifetime in seconds.
	// Labels: agent
	// Buckets: 5s, 15s, 30s, 60s, 120s, 300s, 600s
	SessionDuration *prometheus.HistogramVec

	// PipelineStateTransitions counts state machine transitions.
	// Labels: from, to
	PipelineStateTransitions *prometheus.CounterVec

	// WakewordDetections counts wakeword-detector decisions.
	// Labels: outcome (hit|miss)
	WakewordDetections *prometheus.CounterVec

	// ASRConfidence observes ASR recognition confidence scores.
	ASRConfidence prometheus.Histogram

	// LLMCostUSD tracks estimated cost in USD.
	// Labels: provider, model
	LLMCostUSD *prometheus.CounterVec

	// ContextWindowUsed tracks context window utilization.
	// Labels: provider, model
	// Buckets: 1000, 4000, 8000, 16000, 32000, 64000, 128000
	ContextWindowUsed *prometheus.HistogramVec

	// SessionConflicts counts dispatch requests refused because the target
	// user's session was busy and non-interruptible (§4.4).
	// Labels: agent
	SessionConflicts *prometheus.CounterVec

	// RunAttempts counts run attempts (for retry/failover tracking).
	// Labels: status (success|retry|failed)
	RunAttempts *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are automatically registered with Prometheus's default registry
// and will be available at the /metrics endpoint when using prometheus HTTP handler.
func NewMetrics() *Metrics {
	return &Metrics{
		EventCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copilot_events_total",
				Help: "Total number of bus events handled by adapter and outcome",
			},
			[]string{"adapter", "outcome"},
		),

		EventDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "copilot_event_duration_seconds",
				Help:    "Duration of adapter event handling in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"adapter"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "copilot_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copilot_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copilot_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copilot_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "copilot_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copilot_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		ActiveSessions: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "copilot_active_sessions",
				Help: "Current number of active agent sessions by agent",
			},
			[]string{"agent"},
		),

		SessionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "copilot_session_duration_seconds",
				Help:    "Duration of agent sessions in seconds",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"agent"},
		),

		PipelineStateTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copilot_pipeline_state_transitions_total",
				Help: "Total number of pipeline state machine transitions",
			},
			[]string{"from", "to"},
		),

		WakewordDetections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copilot_wakeword_detections_total",
				Help: "Total number of wakeword detector decisions by outcome",
			},
			[]string{"outcome"},
		),

		ASRConfidence: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "copilot_asr_confidence",
				Help:    "Speech recognition confidence scores",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
		),

		LLMCostUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copilot_llm_cost_usd_total",
				Help: "Estimated LLM API cost in USD",
			},
			[]string{"provider", "model"},
		),

		ContextWindowUsed: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "copilot_context_window_tokens",
				Help:    "Context window tokens used",
				Buckets: []float64{1000, 4000, 8000, 16000, 32000, 64000, 128000},
			},
			[]string{"provider", "model"},
		),

		SessionConflicts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copilot_session_conflicts_total",
				Help: "Total number of dispatch requests refused due to a busy, non-interruptible session",
			},
			[]string{"agent"},
		),

		RunAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copilot_run_attempts_total",
				Help: "Total number of run attempts by status",
			},
			[]string{"status"},
		),
	}
}

// EventProcessed records a bus event handled by an adapter.
//
// Example:
//
//	metrics.EventProcessed("wakeword", "success")
func (m *Metrics) EventProcessed(adapter, outcome string) {
	m.EventCounter.WithLabelValues(adapter, outcome).Inc()
}

// RecordEventDuration records how long an adapter took to handle one event.
//
// Example:
//
//	start := time.Now()
//	// ... handle event ...
//	metrics.RecordEventDuration("asr", time.Since(start).Seconds())
func (m *Metrics) RecordEventDuration(adapter string, durationSeconds float64) {
	m.EventDuration.WithLabelValues(adapter).Observe(durationSeconds)
}

// RecordLLMRequest records metrics for an LLM API request.
//
// Example:
//
//	start := time.Now()
//	// ... make LLM request ...
//	metrics.RecordLLMRequest("anthropic", "claude-3-opus", "success", time.Since(start).Seconds(), 100, 500)
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

// RecordToolExecution records metrics for a tool execution.
//
// Example:
//
//	start := time.Now()
//	// ... execute tool ...
//	metrics.RecordToolExecution("play_music", "success", time.Since(start).Seconds())
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordError increments the error counter for a given component and error type.
//
// Example:
//
//	metrics.RecordError("agent", "llm_timeout")
//	metrics.RecordError("asr", "recognition_failed")
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// SessionStarted increments the active sessions gauge.
//
// Example:
//
//	metrics.SessionStarted("chat_agent")
func (m *Metrics) SessionStarted(agent string) {
	m.ActiveSessions.WithLabelValues(agent).Inc()
}

// SessionEnded decrements the active sessions gauge and records session duration.
//
// Example:
//
//	start := time.Now()
//	// ... session lifecycle ...
//	metrics.SessionEnded("nav_agent", time.Since(start).Seconds())
func (m *Metrics) SessionEnded(agent string, durationSeconds float64) {
	m.ActiveSessions.WithLabelValues(agent).Dec()
	m.SessionDuration.WithLabelValues(agent).Observe(durationSeconds)
}

// RecordStateTransition records one pipeline state machine transition.
//
// Example:
//
//	metrics.RecordStateTransition("idle", "listening")
func (m *Metrics) RecordStateTransition(from, to string) {
	m.PipelineStateTransitions.WithLabelValues(from, to).Inc()
}

// RecordWakewordDetection records a wakeword detector decision.
//
// Example:
//
//	metrics.RecordWakewordDetection("hit")
func (m *Metrics) RecordWakewordDetection(outcome string) {
	m.WakewordDetections.WithLabelValues(outcome).Inc()
}

// RecordASRConfidence observes a recognition confidence score.
//
// Example:
//
//	metrics.RecordASRConfidence(0.92)
func (m *Metrics) RecordASRConfidence(confidence float64) {
	m.ASRConfidence.Observe(confidence)
}

// RecordLLMCost records estimated API cost.
//
// Example:
//
//	metrics.RecordLLMCost("anthropic", "claude-3-opus", 0.015)
func (m *Metrics) RecordLLMCost(provider, model string, costUSD float64) {
	m.LLMCostUSD.WithLabelValues(provider, model).Add(costUSD)
}

// RecordContextWindow records context window utilization.
//
// Example:
//
//	metrics.RecordContextWindow("anthropic", "claude-3-opus", 45000)
func (m *Metrics) RecordContextWindow(provider, model string, tokensUsed int) {
	m.ContextWindowUsed.WithLabelValues(provider, model).Observe(float64(tokensUsed))
}

// RecordSessionConflict records a dispatch request refused due to a busy session.
//
// Example:
//
//	metrics.RecordSessionConflict("nav_agent")
func (m *Metrics) RecordSessionConflict(agent string) {
	m.SessionConflicts.WithLabelValues(agent).Inc()
}

// RecordRunAttempt records a run attempt.
//
// Example:
//
//	metrics.RecordRunAttempt("success")
//	metrics.RecordRunAttempt("retry")
//	metrics.RecordRunAttempt("failed")
func (m *Metrics) RecordRunAttempt(status string) {
	m.RunAttempts.WithLabelValues(status).Inc()
}
