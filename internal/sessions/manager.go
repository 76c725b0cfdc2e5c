package sessions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cabinmind/copilot/internal/bus"
	"github.com/cabinmind/copilot/internal/observability"
	"github.com/cabinmind/copilot/pkg/models"
)

func emitSessionState(sessionID, userID string, prev, state observability.DiagnosticSessionState, reason string) {
	observability.EmitSessionState(&observability.SessionStateEvent{
		SessionID: sessionID,
		UserID:    userID,
		PrevState: prev,
		State:     state,
		Reason:    reason,
	})
}

// Manager is the session manager (C4): it enforces the creation decision
// rule, the waiting_input/resume/complete lifecycle, and runs the TTL
// sweeper. All mutations for a given user are serialized by UserLocker
// (§4.4, §5).
type Manager struct {
	store  Store
	locker *UserLocker
	bus    *bus.Bus
	logger *slog.Logger
	ttl    time.Duration

	mu      sync.Mutex
	active  map[string]string   // userID -> active session id
	stacked map[string][]string // userID -> paused session ids, stack order (top = last)

	stopSweep chan struct{}
}

// NewManager creates a session manager backed by store. ttl is the idle
// timeout after which a session is reaped by the TTL sweeper; a non-positive
// value disables sweeping.
func NewManager(store Store, b *bus.Bus, logger *slog.Logger, ttl time.Duration) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:   store,
		locker:  NewUserLocker(0),
		bus:     b,
		logger:  logger.With("component", "session_manager"),
		ttl:     ttl,
		active:  make(map[string]string),
		stacked: make(map[string][]string),
	}
}

// Create implements the creation decision rule (§4.4). It returns
// ErrSessionConflict when the rule refuses.
func (m *Manager) Create(ctx context.Context, agentName, userID string, priority int, interruptible bool) (*models.AgentSession, error) {
	if err := m.locker.Lock(ctx, userID); err != nil {
		return nil, err
	}
	defer m.locker.Unlock(userID)

	now := time.Now()
	newSession := &models.AgentSession{
		SessionID:      uuid.NewString(),
		AgentName:      agentName,
		UserID:         userID,
		Priority:       priority,
		Interruptible:  interruptible,
		State:          models.SessionRunning,
		Context:        make(map[string]any),
		CreatedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	existingID, hasExisting := m.active[userID]
	m.mu.Unlock()

	if !hasExisting {
		if err := m.store.Create(ctx, newSession); err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.active[userID] = newSession.SessionID
		m.mu.Unlock()
		emitSessionState(newSession.SessionID, userID, observability.SessionStateIdle, observability.SessionStateProcessing, "created")
		return newSession, nil
	}

	existing, err := m.store.Get(ctx, existingID)
	if err != nil {
		return nil, err
	}

	preempt := false
	switch {
	case existing.State == models.SessionWaitingInput:
		preempt = true
	case priority > existing.Priority && existing.Interruptible:
		preempt = true
	default:
		return nil, ErrSessionConflict
	}
	if !preempt {
		return nil, ErrSessionConflict
	}

	existing.State = models.SessionPaused
	existing.LastActivityAt = time.Now()
	if err := m.store.Update(ctx, existing); err != nil {
		return nil, err
	}
	if err := m.store.Create(ctx, newSession); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.stacked[userID] = append(m.stacked[userID], existing.SessionID)
	m.active[userID] = newSession.SessionID
	m.mu.Unlock()

	emitSessionState(existing.SessionID, userID, observability.SessionStateProcessing, observability.SessionStateWaiting, "preempted")
	emitSessionState(newSession.SessionID, userID, observability.SessionStateIdle, observability.SessionStateProcessing, "created")
	return newSession, nil
}

// WaitForInput transitions sessionID to waiting_input with the given prompt
// and expected input type (§4.4).
func (m *Manager) WaitForInput(ctx context.Context, sessionID, prompt, expectedType string) error {
	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := m.locker.Lock(ctx, s.UserID); err != nil {
		return err
	}
	defer m.locker.Unlock(s.UserID)

	s.State = models.SessionWaitingInput
	s.Prompt = prompt
	s.ExpectedInputType = expectedType
	s.LastActivityAt = time.Now()
	if err := m.store.Update(ctx, s); err != nil {
		return err
	}
	emitSessionState(sessionID, s.UserID, observability.SessionStateProcessing, observability.SessionStateWaiting, "waiting_input")
	return nil
}

// Resume marks sessionID running. It must be the top of its user's paused
// stack, or ErrNotTopOfStack is returned.
func (m *Manager) Resume(ctx context.Context, sessionID, query string) (*models.AgentSession, error) {
	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := m.locker.Lock(ctx, s.UserID); err != nil {
		return nil, err
	}
	defer m.locker.Unlock(s.UserID)

	m.mu.Lock()
	stack := m.stacked[s.UserID]
	isTop := len(stack) > 0 && stack[len(stack)-1] == sessionID
	m.mu.Unlock()
	if !isTop {
		return nil, ErrNotTopOfStack
	}

	m.mu.Lock()
	m.stacked[s.UserID] = stack[:len(stack)-1]
	m.active[s.UserID] = sessionID
	m.mu.Unlock()

	s.State = models.SessionRunning
	s.Context["resume_query"] = query
	s.LastActivityAt = time.Now()
	if err := m.store.Update(ctx, s); err != nil {
		return nil, err
	}
	emitSessionState(sessionID, s.UserID, observability.SessionStateWaiting, observability.SessionStateProcessing, "resumed")
	return s, nil
}

// Complete finalizes sessionID (success or error, selected by status) and,
// if the user's stack is non-empty, pops the top and marks it running,
// returning it so the caller can re-invoke that agent with its stored
// context (§4.4 — "caller is responsible for re-invoking that agent").
func (m *Manager) Complete(ctx context.Context, sessionID string, status models.SessionState) (*models.AgentSession, error) {
	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := m.locker.Lock(ctx, s.UserID); err != nil {
		return nil, err
	}
	defer m.locker.Unlock(s.UserID)

	s.State = status
	s.LastActivityAt = time.Now()
	if err := m.store.Update(ctx, s); err != nil {
		return nil, err
	}
	emitSessionState(sessionID, s.UserID, observability.SessionStateProcessing, observability.SessionStateIdle, string(status))

	m.mu.Lock()
	if m.active[s.UserID] == sessionID {
		delete(m.active, s.UserID)
	}
	stack := m.stacked[s.UserID]
	var resumedID string
	if len(stack) > 0 {
		resumedID = stack[len(stack)-1]
		m.stacked[s.UserID] = stack[:len(stack)-1]
		m.active[s.UserID] = resumedID
	}
	m.mu.Unlock()

	if resumedID == "" {
		return nil, nil
	}

	resumed, err := m.store.Get(ctx, resumedID)
	if err != nil {
		return nil, err
	}
	resumed.State = models.SessionRunning
	resumed.LastActivityAt = time.Now()
	if err := m.store.Update(ctx, resumed); err != nil {
		return nil, err
	}
	emitSessionState(resumedID, resumed.UserID, observability.SessionStateWaiting, observability.SessionStateProcessing, "resumed_after_complete")
	return resumed, nil
}

// UpdateContext persists a session agent's accumulated Context map (§4.7
// "session agent" — the agent never touches session_id, but its stored
// context must survive between turns). Called by the agent adapter right
// after invoking the runtime, before the waiting_input/complete transition
// overwrites the record.
func (m *Manager) UpdateContext(ctx context.Context, sessionID string, sessionContext map[string]any) error {
	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := m.locker.Lock(ctx, s.UserID); err != nil {
		return err
	}
	defer m.locker.Unlock(s.UserID)

	s.Context = sessionContext
	s.LastActivityAt = time.Now()
	return m.store.Update(ctx, s)
}

// Active returns the active (running or waiting_input) session for userID,
// if any.
func (m *Manager) Active(ctx context.Context, userID string) (*models.AgentSession, bool) {
	m.mu.Lock()
	id, ok := m.active[userID]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, false
	}
	return s, true
}
