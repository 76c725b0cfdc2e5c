package agentruntime

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cabinmind/copilot/internal/observability"
	"github.com/cabinmind/copilot/internal/tools"
	"github.com/cabinmind/copilot/pkg/models"
)

type fakeProvider struct {
	responses []string
	calls     int
	err       error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return &CompletionResponse{Content: f.responses[idx]}, nil
}

func testConfigs() []models.AgentConfig {
	return []models.AgentConfig{
		{Name: "chat_agent", Description: "general chat", Enabled: true, Kind: models.AgentKindSimple, Priority: 10, Interruptible: true},
		{Name: "session_agent", Description: "remembers context", Enabled: true, Kind: models.AgentKindSession, Priority: 20, Interruptible: true},
		{Name: "tool_agent", Description: "uses tools", Enabled: true, Kind: models.AgentKindToolUsing, Priority: 30, Interruptible: true},
		{Name: "planner_agent", Description: "delegates work", Enabled: true, Kind: models.AgentKindPlanner, Priority: 40, Interruptible: true},
		{Name: "music_agent", Description: "plays music", Enabled: true, Kind: models.AgentKindSimple, Priority: 10, Interruptible: true},
		{Name: "nav_agent", Description: "navigates", Enabled: true, Kind: models.AgentKindSimple, Priority: 10, Interruptible: true},
	}
}

func TestDoCompleteWrapsCallsInASpanWhenTracerWired(t *testing.T) {
	provider := &fakeProvider{responses: []string{"turning on the radio"}}
	r := New(testConfigs(), provider, nil, nil)

	tracer, shutdown := observability.NewTracer(observability.TraceConfig{ServiceName: "test"})
	defer shutdown(context.Background())
	r.SetTracer(tracer)

	resp, err := r.Invoke(context.Background(), "chat_agent", nil, "play something", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message != "turning on the radio" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if provider.calls != 1 {
		t.Fatalf("expected exactly one provider call, got %d", provider.calls)
	}
}

func TestSimpleAgentReturnsSuccessWithLLMContent(t *testing.T) {
	provider := &fakeProvider{responses: []string{"turning on the radio"}}
	r := New(testConfigs(), provider, nil, nil)

	resp, err := r.Invoke(context.Background(), "chat_agent", nil, "play something", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != models.ResponseSuccess || resp.Message != "turning on the radio" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestSimpleAgentFallsBackWithoutProvider(t *testing.T) {
	r := New(testConfigs(), nil, nil, nil)

	resp, err := r.Invoke(context.Background(), "chat_agent", nil, "hello", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != models.ResponseSuccess {
		t.Errorf("expected success status even without a provider, got %+v", resp)
	}
}

func TestSessionAgentPersistsContextAcrossTurns(t *testing.T) {
	provider := &fakeProvider{responses: []string{"first reply", "second reply"}}
	r := New(testConfigs(), provider, nil, nil)
	session := &models.AgentSession{SessionID: "s1", Context: map[string]any{}}

	if _, err := r.Invoke(context.Background(), "session_agent", session, "hi", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Context["last_reply"] != "first reply" {
		t.Fatalf("expected session context to be updated, got %+v", session.Context)
	}

	resp, err := r.Invoke(context.Background(), "session_agent", session, "and then?", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message != "second reply" {
		t.Errorf("unexpected second reply: %+v", resp)
	}
}

func TestToolUsingAgentExecutesToolThenReplies(t *testing.T) {
	registry := tools.NewRegistry(tools.NewVehicleState())
	tools.RegisterSampleCatalog(registry)

	provider := &fakeProvider{responses: []string{
		`{"tool_calls": [{"name": "play_music", "arguments": {"song": "Blue Train"}}]}`,
		`{"reply": "now playing Blue Train"}`,
	}}
	r := New(testConfigs(), provider, registry, nil)

	resp, err := r.Invoke(context.Background(), "tool_agent", nil, "play Blue Train", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != models.ResponseSuccess || resp.Message != "now playing Blue Train" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if provider.calls != 2 {
		t.Errorf("expected two LLM calls (tool request + continuation), got %d", provider.calls)
	}
}

func TestToolUsingAgentTreatsQuestionAsWaitingInput(t *testing.T) {
	registry := tools.NewRegistry(tools.NewVehicleState())
	tools.RegisterSampleCatalog(registry)

	provider := &fakeProvider{responses: []string{`{"reply": "which zone do you mean?"}`}}
	r := New(testConfigs(), provider, registry, nil)

	resp, err := r.Invoke(context.Background(), "tool_agent", nil, "set the temperature", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != models.ResponseWaitingInput || resp.Prompt != "which zone do you mean?" {
		t.Errorf("expected waiting_input with the clarifying prompt, got %+v", resp)
	}
}

func TestToolUsingAgentWithoutProviderOrRegistryErrors(t *testing.T) {
	r := New(testConfigs(), nil, nil, nil)
	resp, err := r.Invoke(context.Background(), "tool_agent", nil, "do something", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != models.ResponseError {
		t.Errorf("expected error status, got %+v", resp)
	}
}

// fakeDispatcher simulates the bus round-trip the planner relies on, letting
// tests control individual task outcomes without standing up a real bus.
type fakeDispatcher struct {
	outcomes map[string]models.AgentResponse
	errs     map[string]error
	seen     []string
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, correlationID, userID, agentName, query, taskID string) (models.AgentResponse, error) {
	f.seen = append(f.seen, taskID)
	if err, ok := f.errs[taskID]; ok {
		return models.AgentResponse{}, err
	}
	return f.outcomes[taskID], nil
}

func TestPlannerSkipsDependentsOfFailedTask(t *testing.T) {
	plan := `{"tasks": [
		{"task_id": "t1", "description": "book a table", "agent": "nav_agent", "depends_on": []},
		{"task_id": "t2", "description": "send confirmation", "agent": "chat_agent", "depends_on": ["t1"]},
		{"task_id": "t3", "description": "unrelated errand", "agent": "music_agent", "depends_on": []}
	]}`
	provider := &fakeProvider{responses: []string{plan, "summary of what happened"}}
	r := New(testConfigs(), provider, nil, nil)

	dispatcher := &fakeDispatcher{
		outcomes: map[string]models.AgentResponse{
			"t3": {Status: models.ResponseSuccess, Message: "errand done"},
		},
		errs: map[string]error{
			"t1": fmt.Errorf("nav_agent unavailable"),
		},
	}
	r.SetDispatcher(dispatcher)

	resp, err := r.Invoke(context.Background(), "planner_agent", nil, "book a table and run an errand", map[string]any{
		"_correlation_id": "corr-1",
		"_user_id":        "u1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != models.ResponseSuccess {
		t.Fatalf("expected planner to report success, got %+v", resp)
	}

	t1, ok := resp.Data["t1"].(map[string]any)
	if !ok || t1["status"] != string(taskFailed) {
		t.Errorf("expected t1 failed, got %+v", resp.Data["t1"])
	}
	t2, ok := resp.Data["t2"].(map[string]any)
	if !ok || t2["status"] != string(taskSkipped) {
		t.Errorf("expected t2 skipped as a transitive dependent of t1, got %+v", resp.Data["t2"])
	}
	t3, ok := resp.Data["t3"].(map[string]any)
	if !ok || t3["status"] != string(taskSuccess) {
		t.Errorf("expected t3 to succeed independently of t1/t2, got %+v", resp.Data["t3"])
	}

	for _, taskID := range dispatcher.seen {
		if taskID == "t2" {
			t.Errorf("expected t2 to never be dispatched since its dependency failed")
		}
	}
}

func TestPlannerWithoutDispatcherReturnsError(t *testing.T) {
	plan := `{"tasks": [{"task_id": "t1", "description": "do it", "agent": "chat_agent", "depends_on": []}]}`
	provider := &fakeProvider{responses: []string{plan}}
	r := New(testConfigs(), provider, nil, nil)

	resp, err := r.Invoke(context.Background(), "planner_agent", nil, "do it", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != models.ResponseError {
		t.Errorf("expected error status when no dispatcher is wired, got %+v", resp)
	}
}

func TestFailoverProviderFallsBackAfterThreshold(t *testing.T) {
	failing := &fakeProvider{err: fmt.Errorf("boom")}
	ok := &fakeProvider{responses: []string{"handled by backup"}}

	f := NewFailoverProvider([]Provider{namedProvider{"flaky", failing}, namedProvider{"backup", ok}}, 1, time.Minute)

	resp, err := f.Complete(context.Background(), CompletionRequest{Messages: []CompletionMessage{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "handled by backup" {
		t.Errorf("expected failover to the backup provider, got %+v", resp)
	}

	// second call: flaky's circuit should now be open, so only backup is tried.
	ok.calls = 0
	if _, err := f.Complete(context.Background(), CompletionRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok.calls != 1 {
		t.Errorf("expected backup to be called directly with flaky's circuit open, got %d calls", ok.calls)
	}
}

// namedProvider overrides Name() so two fakeProviders can be distinguished
// by the failover circuit breaker's per-name state map.
type namedProvider struct {
	name string
	*fakeProvider
}

func (n namedProvider) Name() string { return n.name }
