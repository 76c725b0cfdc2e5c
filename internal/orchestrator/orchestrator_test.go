package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/cabinmind/copilot/internal/agentruntime"
	"github.com/cabinmind/copilot/internal/bus"
	"github.com/cabinmind/copilot/internal/sessions"
	"github.com/cabinmind/copilot/pkg/models"
)

var testAgents = []models.AgentConfig{
	{Name: "music_agent", Description: "plays music", Capabilities: []string{"music", "song", "play"}, Enabled: true, Priority: 40, Interruptible: true},
	{Name: "nav_agent", Description: "navigation", Capabilities: []string{"navigate", "directions", "route"}, Enabled: true, Priority: 60, Interruptible: false},
	{Name: "chat_agent", Description: "general chat", Capabilities: []string{"chat"}, Enabled: true, Priority: 10, Interruptible: true},
}

func newTestOrchestrator(t *testing.T, provider agentruntime.Provider) (*Orchestrator, *sessions.Manager) {
	t.Helper()
	b := bus.New(slog.Default())
	mgr := sessions.NewManager(sessions.NewMemoryStore(), b, slog.Default(), 0)
	return New(testAgents, mgr, provider, slog.Default()), mgr
}

func TestSelectByRuleMatchesCapabilityKeyword(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	decision, err := o.Decide(context.Background(), "u1", "play some music please")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.SelectedAgent != "music_agent" {
		t.Errorf("expected music_agent, got %q", decision.SelectedAgent)
	}
	if decision.SessionAction != models.SessionActionNew {
		t.Errorf("expected session_action new, got %q", decision.SessionAction)
	}
}

func TestSelectByRuleDefaultsToChatAgent(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	decision, err := o.Decide(context.Background(), "u1", "tell me something interesting")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.SelectedAgent != DefaultAgent {
		t.Errorf("expected default agent %q, got %q", DefaultAgent, decision.SelectedAgent)
	}
}

func TestDecideResumesActiveWaitingInputSessionOnShortAnswer(t *testing.T) {
	o, mgr := newTestOrchestrator(t, nil)
	session, err := mgr.Create(context.Background(), "nav_agent", "u1", 60, false)
	if err != nil {
		t.Fatalf("setup Create: %v", err)
	}
	if err := mgr.WaitForInput(context.Background(), session.SessionID, "which city?", "text"); err != nil {
		t.Fatalf("setup WaitForInput: %v", err)
	}

	decision, err := o.Decide(context.Background(), "u1", "Boston")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.SelectedAgent != "nav_agent" || decision.SessionAction != models.SessionActionResume {
		t.Errorf("expected resume to nav_agent, got %+v", decision)
	}
}

func TestDecideTreatsQuestionAsNewIntentNotAnswer(t *testing.T) {
	o, mgr := newTestOrchestrator(t, nil)
	session, err := mgr.Create(context.Background(), "nav_agent", "u1", 60, false)
	if err != nil {
		t.Fatalf("setup Create: %v", err)
	}
	if err := mgr.WaitForInput(context.Background(), session.SessionID, "which city?", "text"); err != nil {
		t.Fatalf("setup WaitForInput: %v", err)
	}

	decision, err := o.Decide(context.Background(), "u1", "play some music please?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.SessionAction != models.SessionActionNew {
		t.Errorf("expected new-intent classification, got %+v", decision)
	}
}

type fakeProvider struct {
	response *agentruntime.CompletionResponse
	err      error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req agentruntime.CompletionRequest) (*agentruntime.CompletionResponse, error) {
	return f.response, f.err
}

func TestSelectWithLLMParsesStructuredDecision(t *testing.T) {
	provider := &fakeProvider{response: &agentruntime.CompletionResponse{
		Content: `{"agent": "music_agent", "confidence": 0.92, "reasoning": "user asked for a song"}`,
	}}
	o, _ := newTestOrchestrator(t, provider)

	decision, err := o.Decide(context.Background(), "u1", "anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.SelectedAgent != "music_agent" || decision.Confidence != 0.92 {
		t.Errorf("unexpected decision: %+v", decision)
	}
}

func TestSelectFallsBackToRuleOnLLMFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("provider unavailable")}
	o, _ := newTestOrchestrator(t, provider)

	decision, err := o.Decide(context.Background(), "u1", "play a song")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.SelectedAgent != "music_agent" {
		t.Errorf("expected rule-based fallback to music_agent, got %q", decision.SelectedAgent)
	}
}

func TestSelectFallsBackToRuleOnMalformedLLMResponse(t *testing.T) {
	provider := &fakeProvider{response: &agentruntime.CompletionResponse{Content: "not json"}}
	o, _ := newTestOrchestrator(t, provider)

	decision, err := o.Decide(context.Background(), "u1", "navigate to the airport")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.SelectedAgent != "nav_agent" {
		t.Errorf("expected rule-based fallback to nav_agent, got %q", decision.SelectedAgent)
	}
}
