// Package pipeline implements the global pipeline state machine (C2) and the
// per-utterance message tracker (C3).
package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cabinmind/copilot/internal/bus"
	"github.com/cabinmind/copilot/pkg/models"
)

type transitionKey struct {
	state models.PipelineState
	event models.StateEvent
}

// transitionTable is the `(current_state, state_event) → next_state` table
// from §4.2.
var transitionTable = map[transitionKey]models.PipelineState{
	{models.StateIdle, models.StateEventWakewordTriggered}: models.StateWakeDetected,

	{models.StateWakeDetected, models.StateEventSpeechStart}: models.StateListening,
	{models.StateWakeDetected, models.StateEventError}:       models.StateError,

	{models.StateListening, models.StateEventSpeechEnd}: models.StateRecognizing,
	{models.StateListening, models.StateEventError}:     models.StateError,

	{models.StateRecognizing, models.StateEventRecognitionStart}:   models.StateRecognizing,
	{models.StateRecognizing, models.StateEventRecognitionSuccess}: models.StateDeciding,
	{models.StateRecognizing, models.StateEventRecognitionFailed}:  models.StateIdle,
	{models.StateRecognizing, models.StateEventError}:              models.StateError,

	{models.StateDeciding, models.StateEventOrchestratorDecided}: models.StateExecuting,
	{models.StateDeciding, models.StateEventError}:                models.StateError,

	// Terminal executing returns to idle after the agent completion
	// notification (§4.2).
	{models.StateExecuting, models.StateEventAgentCompleted}: models.StateIdle,
	{models.StateExecuting, models.StateEventError}:          models.StateError,

	{models.StateError, models.StateEventReset}: models.StateIdle,
}

// StateMachine holds the single process-wide PipelineState and drives it
// through the transition table, emitting a state_change event on every
// accepted transition.
type StateMachine struct {
	logger *slog.Logger
	bus    *bus.Bus

	mu    sync.Mutex
	state models.PipelineState
}

// NewStateMachine creates a state machine starting in StateIdle.
func NewStateMachine(b *bus.Bus, logger *slog.Logger) *StateMachine {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateMachine{
		logger: logger.With("component", "state_machine"),
		bus:    b,
		state:  models.StateIdle,
	}
}

// Current returns the current pipeline state.
func (m *StateMachine) Current() models.PipelineState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Trigger applies event to the machine. Unknown transitions log and retain
// the current state (§4.2).
func (m *StateMachine) Trigger(ctx context.Context, event models.StateEvent, reason string) models.PipelineState {
	m.mu.Lock()
	from := m.state
	next, ok := transitionTable[transitionKey{from, event}]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("unknown transition, retaining state", "state", from, "event", event)
		return from
	}
	m.state = next
	m.mu.Unlock()

	m.logger.Info("state transition", "from", from, "to", next, "event", event, "reason", reason)

	if m.bus != nil {
		m.bus.Publish(ctx, models.Event{
			Kind:   models.EventStateChange,
			Source: "state_machine",
			StateChange: &models.StateChangePayload{
				From:   from,
				To:     next,
				Reason: reason,
			},
		})
	}
	return next
}

// Reset forces the machine back to idle, emitting a state_change event.
func (m *StateMachine) Reset(ctx context.Context, reason string) {
	m.mu.Lock()
	from := m.state
	m.state = models.StateIdle
	m.mu.Unlock()

	if from == models.StateIdle {
		return
	}
	if m.bus != nil {
		m.bus.Publish(ctx, models.Event{
			Kind:   models.EventStateChange,
			Source: "state_machine",
			StateChange: &models.StateChangePayload{
				From:   from,
				To:     models.StateIdle,
				Reason: reason,
			},
		})
	}
}
