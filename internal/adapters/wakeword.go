package adapters

import (
	"context"

	"github.com/cabinmind/copilot/internal/pipeline"
	"github.com/cabinmind/copilot/pkg/models"
)

// WakewordDetector is the external collaborator: a model that scores PCM
// frames for a wakeword hit (§4.5).
type WakewordDetector interface {
	Detect(ctx context.Context, frame []byte) (hit bool, confidence float64, err error)
}

// WakewordAdapter consumes audio frames and, on a hit, emits
// wakeword_detected and drives the state machine's wakeword_triggered
// transition (§4.5).
type WakewordAdapter struct {
	Base
	detector WakewordDetector
	sm       *pipeline.StateMachine

	unsubscribe func()
}

// NewWakewordAdapter creates a Wakeword adapter.
func NewWakewordAdapter(detector WakewordDetector, sm *pipeline.StateMachine, base Base) *WakewordAdapter {
	return &WakewordAdapter{Base: base, detector: detector, sm: sm}
}

func (a *WakewordAdapter) Initialize(ctx context.Context) error { return nil }

func (a *WakewordAdapter) Start(ctx context.Context) error {
	a.unsubscribe = a.Bus().SubscribeFrames(func(ctx context.Context, ev models.Event) {
		_ = a.instrumentTraced(ctx, func() error {
			return a.HandleEvent(ctx, ev)
		})
	})
	return nil
}

func (a *WakewordAdapter) Stop(ctx context.Context) error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	return nil
}

func (a *WakewordAdapter) Cleanup(ctx context.Context) error { return nil }

func (a *WakewordAdapter) HandleEvent(ctx context.Context, ev models.Event) error {
	if ev.Kind != models.EventAudioFrameReady || ev.AudioFrame == nil {
		return nil
	}

	hit, confidence, err := a.detector.Detect(ctx, ev.AudioFrame.PCM)
	if err != nil {
		return err
	}
	if !hit {
		return nil
	}

	a.Bus().Publish(ctx, models.Event{
		Kind:      models.EventWakewordDetected,
		Source:    a.Name(),
		Timestamp: now(),
		Wakeword:  &models.WakewordPayload{Confidence: confidence},
	})
	a.sm.Trigger(ctx, models.StateEventWakewordTriggered, "wakeword detected")
	return nil
}
