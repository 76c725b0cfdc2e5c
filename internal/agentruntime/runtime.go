package agentruntime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/cabinmind/copilot/internal/memory"
	"github.com/cabinmind/copilot/internal/observability"
	"github.com/cabinmind/copilot/internal/tools"
	"github.com/cabinmind/copilot/pkg/models"
)

// handler is the per-agent-kind strategy every Agent dispatches to. query is
// the utterance; parameters carries whatever the orchestrator attached to
// the dispatch plus the reserved correlation/user keys the Runtime stamps in
// for the planner's benefit (see dispatcher.go).
type handler func(ctx context.Context, session *models.AgentSession, query string, parameters map[string]any) (models.AgentResponse, error)

// Agent pairs a declared configuration with its concrete strategy.
type Agent struct {
	Config  models.AgentConfig
	handle  handler
}

// Runtime is the agent runtime (C7): it builds one Agent per configured
// entry and dispatches Invoke calls to the matching kind's strategy (§4.7).
type Runtime struct {
	agents       map[string]*Agent
	provider     Provider
	tools        *tools.Registry
	dispatcher   Dispatcher
	conversation *memory.Conversation
	tracer       *observability.Tracer
	logger       *slog.Logger
}

// SetTracer wires a distributed tracer around every LLM completion this
// runtime issues (§6.1). Optional: a Runtime with no tracer still works,
// doComplete just skips span creation.
func (r *Runtime) SetTracer(t *observability.Tracer) { r.tracer = t }

// SetConversation wires the session agent's recall store (§4.9). Optional:
// without it, the session handler falls back to the in-memory
// session.Context it already carries, same as before this store existed.
func (r *Runtime) SetConversation(c *memory.Conversation) { r.conversation = c }

// SetDispatcher wires the planner's subtask dispatcher (§4.7.1). Optional:
// a Runtime with no dispatcher still builds and invokes a planner agent, but
// BuildPlan's tasks fail at execution time rather than fanning out over the
// bus. Construct the Runtime first, build a BusDispatcher from the same bus
// the controller wires into every adapter, then call this before the first
// planner dispatch.
func (r *Runtime) SetDispatcher(d Dispatcher) { r.dispatcher = d }

// New builds a Runtime from the agent catalog. provider may be nil, in which
// case tool-using/planner agents degrade to their rule-based fallbacks and
// simple/session agents echo a canned reply (see simple.go).
func New(configs []models.AgentConfig, provider Provider, registry *tools.Registry, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "agent_runtime")

	r := &Runtime{
		agents:   make(map[string]*Agent, len(configs)),
		provider: provider,
		tools:    registry,
		logger:   logger,
	}
	for _, cfg := range configs {
		r.agents[cfg.Name] = r.build(cfg)
	}
	return r
}

func (r *Runtime) build(cfg models.AgentConfig) *Agent {
	a := &Agent{Config: cfg}
	switch cfg.Kind {
	case models.AgentKindToolUsing:
		a.handle = r.newToolUsingHandler(cfg)
	case models.AgentKindSession:
		a.handle = r.newSessionHandler(cfg)
	case models.AgentKindPlanner:
		a.handle = r.newPlannerHandler(cfg)
	default:
		a.handle = r.newSimpleHandler(cfg)
	}
	return a
}

// Invoke satisfies adapters.AgentInvoker: one query in, one AgentResponse
// out, dispatched to agentName's configured kind (§4.7).
func (r *Runtime) Invoke(ctx context.Context, agentName string, session *models.AgentSession, query string, parameters map[string]any) (models.AgentResponse, error) {
	agent, ok := r.agents[agentName]
	if !ok {
		return models.AgentResponse{}, fmt.Errorf("agentruntime: unknown agent %q", agentName)
	}
	resp, err := agent.handle(ctx, session, query, parameters)
	if err != nil {
		return models.AgentResponse{}, err
	}
	resp.Agent = agentName
	resp.Query = query
	return resp, nil
}

// complete runs a single-turn completion with system as the system prompt,
// returning an error if no provider is configured.
func (r *Runtime) complete(ctx context.Context, agentName, system, user string) (string, error) {
	if r.provider == nil {
		return "", fmt.Errorf("agentruntime: no llm provider configured")
	}
	resp, err := r.doComplete(ctx, agentName, CompletionRequest{
		System:   system,
		Messages: []CompletionMessage{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// doComplete runs req against the configured provider and, when the provider
// reported token usage, emits a diagnostic model-usage event tagged with
// agentName (§6.1). Every Provider.Complete call site in this package goes
// through here rather than calling the provider directly, so usage
// accounting and tracing don't depend on each handler remembering to wire
// them in.
func (r *Runtime) doComplete(ctx context.Context, agentName string, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	var span trace.Span
	if r.tracer != nil {
		ctx, span = r.tracer.TraceLLMRequest(ctx, r.provider.Name(), req.Model)
		r.tracer.SetAttributes(span, "agent", agentName)
		defer span.End()
	}

	resp, err := r.provider.Complete(ctx, req)
	if err != nil {
		if span != nil {
			r.tracer.RecordError(span, err)
		}
		return nil, err
	}
	if resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0 {
		observability.EmitModelUsage(&observability.ModelUsageEvent{
			Agent:    agentName,
			Provider: r.provider.Name(),
			Model:    req.Model,
			Usage: observability.UsageDetails{
				Input:  resp.Usage.InputTokens,
				Output: resp.Usage.OutputTokens,
				Total:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
			},
			DurationMs: time.Since(start).Milliseconds(),
		})
	}
	return resp, nil
}

// needsFollowup applies §4.7's tool-using-agent heuristic: a plain-text
// reply is treated as a request for more information, rather than a final
// answer, when it contains a question mark or an enumerated interrogative
// opener.
func needsFollowup(reply string) bool {
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		return false
	}
	if strings.Contains(trimmed, "?") {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, opener := range []string{"what ", "which ", "where ", "when ", "who ", "how ", "could you", "can you", "please specify", "please clarify"} {
		if strings.HasPrefix(lower, opener) {
			return true
		}
	}
	return false
}
