package agentruntime

import (
	"context"
	"strings"
	"testing"

	"github.com/cabinmind/copilot/internal/memory"
	"github.com/cabinmind/copilot/pkg/models"
)

func TestSessionAgentRecallsPriorTurnsFromConversation(t *testing.T) {
	provider := &fakeProvider{responses: []string{"first reply", "second reply"}}
	r := New(testConfigs(), provider, nil, nil)

	conv := memory.NewConversation(memory.ConversationConfig{TriggerCount: 1000}, nil, nil)
	r.SetConversation(conv)

	session := &models.AgentSession{SessionID: "s1", Context: map[string]any{}}
	parameters := map[string]any{"_user_id": "u1"}

	if _, err := r.Invoke(context.Background(), "session_agent", session, "what's my dog's name", parameters); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := r.Invoke(context.Background(), "session_agent", session, "and the cat?", parameters); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recent := conv.Recent("u1", 10)
	if len(recent) != 2 {
		t.Fatalf("expected both turns appended to the conversation store, got %d", len(recent))
	}
	if recent[0].Query != "what's my dog's name" || recent[0].Response != "first reply" {
		t.Errorf("unexpected first turn recorded: %+v", recent[0])
	}
	if recent[1].Query != "and the cat?" || recent[1].Response != "second reply" {
		t.Errorf("unexpected second turn recorded: %+v", recent[1])
	}
}

func TestSessionAgentWithoutUserIDSkipsConversationRecall(t *testing.T) {
	provider := &fakeProvider{responses: []string{"reply"}}
	r := New(testConfigs(), provider, nil, nil)

	conv := memory.NewConversation(memory.ConversationConfig{TriggerCount: 1000}, nil, nil)
	r.SetConversation(conv)

	session := &models.AgentSession{SessionID: "s1", Context: map[string]any{}}
	if _, err := r.Invoke(context.Background(), "session_agent", session, "hello", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if recent := conv.Recent("", 10); len(recent) != 0 {
		t.Errorf("expected no recall bookkeeping without a user id, got %+v", recent)
	}
}

type recordingConversation struct {
	longTerm models.LongTermMemory
	recent   []models.ShortTermMemory
}

func (c recordingConversation) LongTerm(userID string) models.LongTermMemory          { return c.longTerm }
func (c recordingConversation) Recent(userID string, n int) []models.ShortTermMemory { return c.recent }

func TestWithRecallPrependsLongTermSummaryAndRecentTurns(t *testing.T) {
	conv := recordingConversation{
		longTerm: models.LongTermMemory{Summary: "owns a dog named Rex"},
		recent: []models.ShortTermMemory{
			{Query: "what's my dog's name", Response: "Rex"},
		},
	}

	got := withRecall(conv, "u1", "and the cat?")

	if !strings.Contains(got, "owns a dog named Rex") {
		t.Errorf("expected long-term summary to be included, got %q", got)
	}
	if !strings.Contains(got, "what's my dog's name") || !strings.Contains(got, "Rex") {
		t.Errorf("expected recent turn to be included, got %q", got)
	}
	if !strings.HasSuffix(got, "and the cat?") {
		t.Errorf("expected the current turn's query to end the prompt, got %q", got)
	}
}
