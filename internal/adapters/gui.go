package adapters

import (
	"context"

	"github.com/cabinmind/copilot/internal/bus"
	"github.com/cabinmind/copilot/pkg/models"
)

// DisplaySink is the external collaborator: a renderer for
// display-relevant pipeline events (§4.5).
type DisplaySink interface {
	Render(ctx context.Context, ev models.Event) error
}

// GUIAdapter subscribes to display-relevant events and is a pure sink: it
// never publishes (§4.5).
type GUIAdapter struct {
	Base
	sink DisplaySink

	unsubscribes []func()
}

// GUIEventKinds lists the event kinds considered display-relevant.
var GUIEventKinds = []models.EventKind{
	models.EventStateChange,
	models.EventWakewordDetected,
	models.EventASRRecognitionSuccess,
	models.EventAgentResponse,
}

// NewGUIAdapter creates a GUI adapter.
func NewGUIAdapter(sink DisplaySink, base Base) *GUIAdapter {
	return &GUIAdapter{Base: base, sink: sink}
}

func (a *GUIAdapter) Initialize(ctx context.Context) error { return nil }

func (a *GUIAdapter) Start(ctx context.Context) error {
	for _, kind := range GUIEventKinds {
		kind := kind
		unsub := a.Bus().Subscribe(kind, bus.LaneFast, func(ctx context.Context, ev models.Event) {
			_ = a.instrumentTraced(ctx, func() error {
				return a.HandleEvent(ctx, ev)
			})
		})
		a.unsubscribes = append(a.unsubscribes, unsub)
	}
	return nil
}

func (a *GUIAdapter) Stop(ctx context.Context) error {
	for _, unsub := range a.unsubscribes {
		unsub()
	}
	a.unsubscribes = nil
	return nil
}

func (a *GUIAdapter) Cleanup(ctx context.Context) error { return nil }

func (a *GUIAdapter) HandleEvent(ctx context.Context, ev models.Event) error {
	return a.sink.Render(ctx, ev)
}
