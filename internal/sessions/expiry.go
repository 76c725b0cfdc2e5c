package sessions

import (
	"context"
	"time"

	"github.com/cabinmind/copilot/pkg/models"
)

// StartSweeper launches a background goroutine that periodically reaps
// sessions idle beyond the manager's configured TTL, transitioning them to
// error and emitting a session_expired event (§4.4, §5 "Cancellation").
// It returns a stop function. A non-positive TTL makes StartSweeper a no-op.
func (m *Manager) StartSweeper(interval time.Duration) func() {
	if m.ttl <= 0 {
		return func() {}
	}
	if interval <= 0 {
		interval = m.ttl / 2
		if interval <= 0 {
			interval = time.Second
		}
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.sweep(context.Background())
			}
		}
	}()
	return func() { close(stop) }
}

func (m *Manager) sweep(ctx context.Context) {
	m.mu.Lock()
	userIDs := make([]string, 0, len(m.active))
	for userID := range m.active {
		userIDs = append(userIDs, userID)
	}
	for userID := range m.stacked {
		if _, ok := m.active[userID]; !ok {
			userIDs = append(userIDs, userID)
		}
	}
	m.mu.Unlock()

	now := time.Now()
	for _, userID := range userIDs {
		sessions, err := m.store.ListByUser(ctx, userID)
		if err != nil {
			continue
		}
		for _, s := range sessions {
			if s.State == models.SessionCompleted || s.State == models.SessionError {
				continue
			}
			if now.Sub(s.LastActivityAt) <= m.ttl {
				continue
			}
			m.expire(ctx, s)
		}
	}
}

func (m *Manager) expire(ctx context.Context, s *models.AgentSession) {
	if err := m.locker.Lock(ctx, s.UserID); err != nil {
		return
	}
	defer m.locker.Unlock(s.UserID)

	s.State = models.SessionError
	s.LastActivityAt = time.Now()
	if err := m.store.Update(ctx, s); err != nil {
		m.logger.Warn("failed to persist expired session", "session_id", s.SessionID, "error", err)
	}

	m.mu.Lock()
	if m.active[s.UserID] == s.SessionID {
		delete(m.active, s.UserID)
	} else {
		stack := m.stacked[s.UserID]
		for i, id := range stack {
			if id == s.SessionID {
				m.stacked[s.UserID] = append(stack[:i], stack[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()

	m.logger.Info("session expired", "session_id", s.SessionID, "user_id", s.UserID)
	if m.bus != nil {
		m.bus.Publish(ctx, models.Event{
			Kind:      models.EventSessionExpired,
			Source:    "session_manager",
			SessionID: s.SessionID,
		})
	}
}
