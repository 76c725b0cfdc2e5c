package adapters

import (
	"context"
	"time"

	"github.com/cabinmind/copilot/internal/bus"
	"github.com/cabinmind/copilot/internal/pipeline"
	"github.com/cabinmind/copilot/pkg/models"
)

// SpeechRecognizer is the external collaborator: converts a captured speech
// blob to text (§4.5).
type SpeechRecognizer interface {
	Recognize(ctx context.Context, speech []byte) (text string, confidence float64, err error)
}

// ASRAdapter recognizes captured speech on vad_speech_end and stamps a new
// correlation id onto the recognition's success event, which every
// downstream event for that utterance then carries (§3, §4.5).
//
// Single-in-flight dispatch falls out of subscribing on the bus's slow lane:
// the bus runs one worker goroutine per subscription that drains its queue
// serially (§4.1.1), so a recognition already in progress naturally holds up
// the next vad_speech_end rather than running concurrently with it.
type ASRAdapter struct {
	Base
	recognizer SpeechRecognizer
	sm         *pipeline.StateMachine
	tracker    *pipeline.MessageTracker

	unsubscribe func()
}

// NewASRAdapter creates an ASR adapter.
func NewASRAdapter(recognizer SpeechRecognizer, sm *pipeline.StateMachine, tracker *pipeline.MessageTracker, base Base) *ASRAdapter {
	return &ASRAdapter{Base: base, recognizer: recognizer, sm: sm, tracker: tracker}
}

func (a *ASRAdapter) Initialize(ctx context.Context) error { return nil }

func (a *ASRAdapter) Start(ctx context.Context) error {
	a.unsubscribe = a.Bus().Subscribe(models.EventVADSpeechEnd, bus.LaneSlow, func(ctx context.Context, ev models.Event) {
		_ = a.instrumentTraced(ctx, func() error {
			return a.HandleEvent(ctx, ev)
		})
	})
	return nil
}

func (a *ASRAdapter) Stop(ctx context.Context) error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	return nil
}

func (a *ASRAdapter) Cleanup(ctx context.Context) error { return nil }

func (a *ASRAdapter) HandleEvent(ctx context.Context, ev models.Event) error {
	if ev.Kind != models.EventVADSpeechEnd || ev.VAD == nil {
		return nil
	}

	a.Bus().Publish(ctx, models.Event{
		Kind:      models.EventASRRecognitionStart,
		Source:    a.Name(),
		Timestamp: now(),
	})
	a.sm.Trigger(ctx, models.StateEventRecognitionStart, "recognition started")

	start := time.Now()
	text, confidence, err := a.recognizer.Recognize(ctx, ev.VAD.Speech)
	latency := time.Since(start)

	correlationID := a.tracker.CreateMessageID()

	if err != nil {
		a.tracker.AddTrace(correlationID, "asr", "", err.Error())
		a.Bus().Publish(ctx, models.Event{
			Kind:          models.EventASRRecognitionFailed,
			Source:        a.Name(),
			Timestamp:     now(),
			CorrelationID: correlationID,
			ASRResult:     &models.ASRResultPayload{Latency: latency, Err: err.Error()},
		})
		a.sm.Trigger(ctx, models.StateEventRecognitionFailed, "recognition failed")
		return nil
	}

	a.tracker.UpdateQuery(correlationID, text)
	a.tracker.AddTrace(correlationID, "asr", "", text)
	a.Bus().Publish(ctx, models.Event{
		Kind:          models.EventASRRecognitionSuccess,
		Source:        a.Name(),
		Timestamp:     now(),
		CorrelationID: correlationID,
		ASRResult: &models.ASRResultPayload{
			Text:       text,
			Confidence: confidence,
			Latency:    latency,
		},
	})
	a.sm.Trigger(ctx, models.StateEventRecognitionSuccess, "recognition succeeded")
	return nil
}
