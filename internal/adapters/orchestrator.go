package adapters

import (
	"context"

	"github.com/cabinmind/copilot/internal/bus"
	"github.com/cabinmind/copilot/pkg/models"
)

// Orchestrator is the C6 collaborator the Orchestrator adapter wraps:
// selects an agent (or routes back to an active session) for one utterance
// (§4.6).
type Orchestrator interface {
	Decide(ctx context.Context, userID, query string) (models.OrchestratorDecision, error)
}

// OrchestratorAdapter calls C6 on every successful recognition and emits a
// SessionAware agent_dispatch_request (§4.5).
//
// UserID is the device's configured owner. The pipeline has no voice-print
// or channel-identity step upstream of ASR (out of scope per §1), so every
// recognized utterance is attributed to this one configured user — matching
// a single-occupant voice-assistant deployment rather than a multi-account
// one.
type OrchestratorAdapter struct {
	Base
	orchestrator Orchestrator
	userID       string

	unsubscribe func()
}

// NewOrchestratorAdapter creates an Orchestrator adapter.
func NewOrchestratorAdapter(orchestrator Orchestrator, userID string, base Base) *OrchestratorAdapter {
	return &OrchestratorAdapter{Base: base, orchestrator: orchestrator, userID: userID}
}

func (a *OrchestratorAdapter) Initialize(ctx context.Context) error { return nil }

func (a *OrchestratorAdapter) Start(ctx context.Context) error {
	a.unsubscribe = a.Bus().Subscribe(models.EventASRRecognitionSuccess, bus.LaneSlow, func(ctx context.Context, ev models.Event) {
		_ = a.instrumentTraced(ctx, func() error {
			return a.HandleEvent(ctx, ev)
		})
	})
	return nil
}

func (a *OrchestratorAdapter) Stop(ctx context.Context) error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	return nil
}

func (a *OrchestratorAdapter) Cleanup(ctx context.Context) error { return nil }

func (a *OrchestratorAdapter) HandleEvent(ctx context.Context, ev models.Event) error {
	if ev.Kind != models.EventASRRecognitionSuccess || ev.ASRResult == nil {
		return nil
	}

	decision, err := a.orchestrator.Decide(ctx, a.userID, ev.ASRResult.Text)
	if err != nil {
		return err
	}

	a.Bus().Publish(ctx, models.Event{
		Kind:          models.EventAgentDispatchRequest,
		Source:        a.Name(),
		Timestamp:     now(),
		CorrelationID: ev.CorrelationID,
		SessionAction: decision.SessionAction,
		AgentDispatch: &models.AgentDispatchPayload{
			Query:      ev.ASRResult.Text,
			UserID:     a.userID,
			Agent:      decision.SelectedAgent,
			Confidence: decision.Confidence,
			Reasoning:  decision.Reasoning,
			Parameters: decision.Parameters,
		},
	})
	return nil
}
