package adapters

import (
	"context"

	"github.com/cabinmind/copilot/internal/bus"
	"github.com/cabinmind/copilot/internal/pipeline"
	"github.com/cabinmind/copilot/pkg/models"
)

// Speaker is the external collaborator: renders text to audio output
// (§4.5).
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// TTSAdapter consumes tts_speak_request, drives the speaker, and finalizes
// the trace for the utterance (§4.5).
type TTSAdapter struct {
	Base
	speaker Speaker
	tracker *pipeline.MessageTracker

	unsubscribe func()
}

// NewTTSAdapter creates a TTS adapter.
func NewTTSAdapter(speaker Speaker, tracker *pipeline.MessageTracker, base Base) *TTSAdapter {
	return &TTSAdapter{Base: base, speaker: speaker, tracker: tracker}
}

func (a *TTSAdapter) Initialize(ctx context.Context) error { return nil }

func (a *TTSAdapter) Start(ctx context.Context) error {
	a.unsubscribe = a.Bus().Subscribe(models.EventTTSSpeakRequest, bus.LaneSlow, func(ctx context.Context, ev models.Event) {
		_ = a.instrumentTraced(ctx, func() error {
			return a.HandleEvent(ctx, ev)
		})
	})
	return nil
}

func (a *TTSAdapter) Stop(ctx context.Context) error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	return nil
}

func (a *TTSAdapter) Cleanup(ctx context.Context) error { return nil }

func (a *TTSAdapter) HandleEvent(ctx context.Context, ev models.Event) error {
	if ev.Kind != models.EventTTSSpeakRequest || ev.AgentResp == nil {
		return nil
	}

	text := ev.AgentResp.Message
	if ev.AgentResp.Prompt != "" {
		text = ev.AgentResp.Prompt
	}

	if err := a.speaker.Speak(ctx, text); err != nil {
		a.tracker.AddTrace(ev.CorrelationID, "tts", text, err.Error())
		return err
	}

	a.tracker.AddTrace(ev.CorrelationID, "tts", text, "spoken")
	return nil
}
