package adapters

import (
	"context"

	"github.com/cabinmind/copilot/internal/pipeline"
	"github.com/cabinmind/copilot/pkg/models"
)

// VoiceActivityDetector is the external collaborator: scores a
// fixed-size frame for speech presence (§4.5).
type VoiceActivityDetector interface {
	FrameSize() int
	IsSpeech(ctx context.Context, frame []byte) (bool, error)
}

// VADAdapter buffers audio frames to the detector's required frame size and
// emits vad_speech_start/_end, carrying the captured speech blob on _end
// (§4.5).
type VADAdapter struct {
	Base
	detector VoiceActivityDetector
	sm       *pipeline.StateMachine

	unsubscribe func()

	buffer    []byte
	inSpeech  bool
	utterance []byte
}

// NewVADAdapter creates a VAD adapter.
func NewVADAdapter(detector VoiceActivityDetector, sm *pipeline.StateMachine, base Base) *VADAdapter {
	return &VADAdapter{Base: base, detector: detector, sm: sm}
}

func (a *VADAdapter) Initialize(ctx context.Context) error { return nil }

func (a *VADAdapter) Start(ctx context.Context) error {
	a.unsubscribe = a.Bus().SubscribeFrames(func(ctx context.Context, ev models.Event) {
		_ = a.instrumentTraced(ctx, func() error {
			return a.HandleEvent(ctx, ev)
		})
	})
	return nil
}

func (a *VADAdapter) Stop(ctx context.Context) error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	return nil
}

func (a *VADAdapter) Cleanup(ctx context.Context) error { return nil }

func (a *VADAdapter) HandleEvent(ctx context.Context, ev models.Event) error {
	if ev.Kind != models.EventAudioFrameReady || ev.AudioFrame == nil {
		return nil
	}

	frameSize := a.detector.FrameSize()
	a.buffer = append(a.buffer, ev.AudioFrame.PCM...)

	for len(a.buffer) >= frameSize {
		frame := a.buffer[:frameSize]
		a.buffer = a.buffer[frameSize:]

		speech, err := a.detector.IsSpeech(ctx, frame)
		if err != nil {
			return err
		}

		switch {
		case speech && !a.inSpeech:
			a.inSpeech = true
			a.utterance = append([]byte(nil), frame...)
			a.Bus().Publish(ctx, models.Event{
				Kind:      models.EventVADSpeechStart,
				Source:    a.Name(),
				Timestamp: now(),
			})
			a.sm.Trigger(ctx, models.StateEventSpeechStart, "speech detected")

		case speech && a.inSpeech:
			a.utterance = append(a.utterance, frame...)

		case !speech && a.inSpeech:
			a.inSpeech = false
			captured := a.utterance
			a.utterance = nil
			a.Bus().Publish(ctx, models.Event{
				Kind:      models.EventVADSpeechEnd,
				Source:    a.Name(),
				Timestamp: now(),
				VAD:       &models.VADPayload{Speech: captured},
			})
			a.sm.Trigger(ctx, models.StateEventSpeechEnd, "speech ended")
		}
	}
	return nil
}
