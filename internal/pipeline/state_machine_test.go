package pipeline

import (
	"context"
	"testing"

	"github.com/cabinmind/copilot/pkg/models"
)

func TestStateMachineTransitions(t *testing.T) {
	m := NewStateMachine(nil, nil)

	if got := m.Current(); got != models.StateIdle {
		t.Fatalf("expected initial state idle, got %s", got)
	}

	steps := []struct {
		event StateEventAlias
		want  models.PipelineState
	}{
		{models.StateEventWakewordTriggered, models.StateWakeDetected},
		{models.StateEventSpeechStart, models.StateListening},
		{models.StateEventSpeechEnd, models.StateRecognizing},
		{models.StateEventRecognitionSuccess, models.StateDeciding},
		{models.StateEventOrchestratorDecided, models.StateExecuting},
		{models.StateEventAgentCompleted, models.StateIdle},
	}

	for _, s := range steps {
		got := m.Trigger(context.Background(), models.StateEvent(s.event), "test")
		if got != s.want {
			t.Errorf("event %s: expected %s, got %s", s.event, s.want, got)
		}
	}
}

// StateEventAlias keeps the table above readable without repeating the
// models. prefix on every event name.
type StateEventAlias = models.StateEvent

func TestUnknownTransitionRetainsState(t *testing.T) {
	m := NewStateMachine(nil, nil)
	got := m.Trigger(context.Background(), models.StateEventAgentCompleted, "bogus from idle")
	if got != models.StateIdle {
		t.Errorf("expected state to remain idle on unknown transition, got %s", got)
	}
}

func TestResetReturnsToIdle(t *testing.T) {
	m := NewStateMachine(nil, nil)
	m.Trigger(context.Background(), models.StateEventWakewordTriggered, "test")
	m.Reset(context.Background(), "manual reset")
	if got := m.Current(); got != models.StateIdle {
		t.Errorf("expected idle after reset, got %s", got)
	}
}
