package adapters

import (
	"context"

	"github.com/cabinmind/copilot/internal/bus"
	"github.com/cabinmind/copilot/internal/pipeline"
	"github.com/cabinmind/copilot/internal/sessions"
	"github.com/cabinmind/copilot/pkg/models"
)

// AgentInvoker is the C7 collaborator the Agent adapter wraps: runs one
// agent turn against a (possibly ongoing) session (§4.5, §4.7).
type AgentInvoker interface {
	Invoke(ctx context.Context, agentName string, session *models.AgentSession, query string, parameters map[string]any) (models.AgentResponse, error)
}

// AgentAdapter reads the target agent's priority/interruptible from its
// config, asks the session manager (C4) to create or resume a session,
// invokes the agent runtime (C7), and routes the outcome to either
// wait_for_input or complete + agent_response + TTS (§4.5).
//
// Both the waiting_input and terminal branches emit agent_response and
// request TTS: the user must hear the follow-up prompt to answer it, so the
// asymmetry in §4.5's wording is about session bookkeeping (wait_for_input
// vs complete), not about whether the response gets spoken.
type AgentAdapter struct {
	Base
	agents   map[string]models.AgentConfig
	sessions *sessions.Manager
	runtime  AgentInvoker
	tracker  *pipeline.MessageTracker

	unsubscribe func()
}

// NewAgentAdapter creates an Agent adapter. agents maps agent name to its
// declared configuration (§3.1).
func NewAgentAdapter(agents map[string]models.AgentConfig, mgr *sessions.Manager, runtime AgentInvoker, tracker *pipeline.MessageTracker, base Base) *AgentAdapter {
	return &AgentAdapter{Base: base, agents: agents, sessions: mgr, runtime: runtime, tracker: tracker}
}

func (a *AgentAdapter) Initialize(ctx context.Context) error { return nil }

func (a *AgentAdapter) Start(ctx context.Context) error {
	// LaneConcurrent, not LaneSlow: the planner meta-agent (C7) dispatches
	// its subtasks by publishing agent_dispatch_request and blocking for the
	// matching agent_response (internal/agentruntime.BusDispatcher). Those
	// subtask dispatches land on this very subscription, so a single serial
	// worker would have the planner's own in-flight invocation block the
	// worker that needs to service its subtasks — a guaranteed deadlock.
	// Session creation is already safe for concurrent callers (C4 serializes
	// per user via sessions.Manager's UserLocker), so handing each dispatch
	// its own goroutine is sound.
	a.unsubscribe = a.Bus().Subscribe(models.EventAgentDispatchRequest, bus.LaneConcurrent, func(ctx context.Context, ev models.Event) {
		_ = a.instrumentTraced(ctx, func() error {
			return a.HandleEvent(ctx, ev)
		})
	})
	return nil
}

func (a *AgentAdapter) Stop(ctx context.Context) error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	return nil
}

func (a *AgentAdapter) Cleanup(ctx context.Context) error { return nil }

func (a *AgentAdapter) HandleEvent(ctx context.Context, ev models.Event) error {
	if ev.Kind != models.EventAgentDispatchRequest || ev.AgentDispatch == nil {
		return nil
	}
	dispatch := ev.AgentDispatch

	cfg, ok := a.agents[dispatch.Agent]
	if !ok {
		a.tracker.AddTrace(ev.CorrelationID, "agent", dispatch.Agent, "unknown agent")
		return nil
	}

	session, err := a.resolveSession(ctx, ev, cfg)
	if err != nil {
		return err
	}
	if session == nil {
		a.tracker.AddTrace(ev.CorrelationID, "agent", dispatch.Agent, "busy")
		return nil
	}

	parameters := make(map[string]any, len(dispatch.Parameters)+2)
	for k, v := range dispatch.Parameters {
		parameters[k] = v
	}
	parameters["_correlation_id"] = ev.CorrelationID
	parameters["_user_id"] = dispatch.UserID

	resp, err := a.runtime.Invoke(ctx, dispatch.Agent, session, dispatch.Query, parameters)
	if err != nil {
		return err
	}

	if session.Context != nil {
		if err := a.sessions.UpdateContext(ctx, session.SessionID, session.Context); err != nil {
			return err
		}
	}

	data := resp.Data
	if taskID, ok := dispatch.Parameters["task_id"]; ok {
		if data == nil {
			data = make(map[string]any, 1)
		}
		data["task_id"] = taskID
	}

	payload := &models.AgentResponsePayload{
		Agent:   resp.Agent,
		Status:  resp.Status,
		Message: resp.Message,
		Prompt:  resp.Prompt,
		Data:    data,
	}

	respEvent := models.Event{
		Kind:          models.EventAgentResponse,
		Source:        a.Name(),
		Timestamp:     now(),
		CorrelationID: ev.CorrelationID,
		SessionID:     session.SessionID,
		AgentResp:     payload,
	}

	if resp.Status == models.ResponseWaitingInput {
		if err := a.sessions.WaitForInput(ctx, session.SessionID, resp.Prompt, ""); err != nil {
			return err
		}
	} else {
		status := models.SessionCompleted
		if resp.Status == models.ResponseError {
			status = models.SessionError
		}
		if _, err := a.sessions.Complete(ctx, session.SessionID, status); err != nil {
			return err
		}
		respEvent.SessionAction = models.SessionActionComplete
	}

	a.tracker.UpdateResponse(ev.CorrelationID, resp.Message, statusFor(resp.Status))
	a.Bus().Publish(ctx, respEvent)
	a.Bus().Publish(ctx, models.Event{
		Kind:          models.EventTTSSpeakRequest,
		Source:        a.Name(),
		Timestamp:     now(),
		CorrelationID: ev.CorrelationID,
		SessionID:     session.SessionID,
		AgentResp:     payload,
	})
	return nil
}

// resolveSession applies §4.5's "reads the agent's priority/interruptible
// from its config, asks C4 to create/resume a session" rule. A nil, nil
// result means C4 refused creation (§4.4) — the caller should drop the
// dispatch rather than treat it as a failure.
func (a *AgentAdapter) resolveSession(ctx context.Context, ev models.Event, cfg models.AgentConfig) (*models.AgentSession, error) {
	dispatch := ev.AgentDispatch

	if ev.SessionAction == models.SessionActionResume {
		if active, ok := a.sessions.Active(ctx, dispatch.UserID); ok {
			return a.sessions.Resume(ctx, active.SessionID, dispatch.Query)
		}
	}

	session, err := a.sessions.Create(ctx, dispatch.Agent, dispatch.UserID, cfg.Priority, cfg.Interruptible)
	if err == sessions.ErrSessionConflict {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func statusFor(status models.ResponseStatus) models.TraceStatus {
	switch status {
	case models.ResponseSuccess, models.ResponseCompleted:
		return models.TraceStatusSuccess
	case models.ResponseError:
		return models.TraceStatusError
	default:
		return models.TraceStatusPending
	}
}
