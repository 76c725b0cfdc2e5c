package agentruntime

import (
	"context"
	"fmt"
	"time"

	"github.com/cabinmind/copilot/internal/bus"
	"github.com/cabinmind/copilot/pkg/models"
)

// Dispatcher is how the planner hands a subtask to the rest of the pipeline.
// Its job is to make a planner-issued dispatch indistinguishable, from the
// agent adapter's point of view, from one the orchestrator issued directly
// (§4.7.1 — "falls out of the existing pipeline rather than a
// planner-private code path").
type Dispatcher interface {
	Dispatch(ctx context.Context, correlationID, userID, agentName, query, taskID string) (models.AgentResponse, error)
}

// BusDispatcher implements Dispatcher by publishing an agent_dispatch_request
// onto the bus (same shape the orchestrator adapter publishes) and waiting
// for the matching agent_response. Matching is by correlation id plus a
// task_id the agent adapter echoes back into the response's Data map
// (adapters.AgentAdapter stamps dispatch.Parameters["task_id"] through),
// since the session id a subtask gets assigned is not known until C4
// creates it.
type BusDispatcher struct {
	bus     *bus.Bus
	timeout time.Duration
}

// NewBusDispatcher creates a Dispatcher bound to b. A zero timeout disables
// the wait bound (not recommended outside tests).
func NewBusDispatcher(b *bus.Bus, timeout time.Duration) *BusDispatcher {
	return &BusDispatcher{bus: b, timeout: timeout}
}

func (d *BusDispatcher) Dispatch(ctx context.Context, correlationID, userID, agentName, query, taskID string) (models.AgentResponse, error) {
	respCh := make(chan models.AgentResponsePayload, 1)

	unsubscribe := d.bus.Subscribe(models.EventAgentResponse, bus.LaneFast, func(_ context.Context, ev models.Event) {
		if ev.CorrelationID != correlationID || ev.AgentResp == nil {
			return
		}
		if taskID != "" {
			if got, _ := ev.AgentResp.Data["task_id"].(string); got != taskID {
				return
			}
		}
		select {
		case respCh <- *ev.AgentResp:
		default:
		}
	})
	defer unsubscribe()

	d.bus.Publish(ctx, models.Event{
		Kind:          models.EventAgentDispatchRequest,
		Source:        "planner",
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
		SessionAction: models.SessionActionNew,
		AgentDispatch: &models.AgentDispatchPayload{
			Query:      query,
			UserID:     userID,
			Agent:      agentName,
			Parameters: map[string]any{"task_id": taskID},
		},
	})

	waitCtx := ctx
	var cancel context.CancelFunc
	if d.timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	select {
	case payload := <-respCh:
		return models.AgentResponse{
			Agent:   payload.Agent,
			Status:  payload.Status,
			Message: payload.Message,
			Prompt:  payload.Prompt,
			Data:    payload.Data,
		}, nil
	case <-waitCtx.Done():
		return models.AgentResponse{}, fmt.Errorf("agentruntime: planner task %q on agent %q: %w", taskID, agentName, waitCtx.Err())
	}
}
