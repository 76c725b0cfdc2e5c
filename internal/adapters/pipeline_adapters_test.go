package adapters

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/cabinmind/copilot/internal/bus"
	"github.com/cabinmind/copilot/internal/pipeline"
	"github.com/cabinmind/copilot/pkg/models"
)

type fakeWakeword struct {
	hit        bool
	confidence float64
}

func (f *fakeWakeword) Detect(ctx context.Context, frame []byte) (bool, float64, error) {
	return f.hit, f.confidence, nil
}

func TestWakewordAdapterEmitsDetectedOnHit(t *testing.T) {
	b := bus.New(slog.Default())
	sm := pipeline.NewStateMachine(b, slog.Default())

	var received []models.Event
	b.Subscribe(models.EventWakewordDetected, bus.LaneFast, func(ctx context.Context, ev models.Event) {
		received = append(received, ev)
	})

	a := NewWakewordAdapter(&fakeWakeword{hit: true, confidence: 0.9}, sm, NewBase("wakeword", b, slog.Default()))
	err := a.HandleEvent(context.Background(), models.Event{
		Kind:       models.EventAudioFrameReady,
		AudioFrame: &models.AudioFramePayload{PCM: []byte{1, 2, 3}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("expected 1 wakeword_detected event, got %d", len(received))
	}
	if sm.Current() != models.StateWakeDetected {
		t.Errorf("expected state wake_detected, got %v", sm.Current())
	}
}

func TestWakewordAdapterSilentOnMiss(t *testing.T) {
	b := bus.New(slog.Default())
	sm := pipeline.NewStateMachine(b, slog.Default())

	var received []models.Event
	b.Subscribe(models.EventWakewordDetected, bus.LaneFast, func(ctx context.Context, ev models.Event) {
		received = append(received, ev)
	})

	a := NewWakewordAdapter(&fakeWakeword{hit: false}, sm, NewBase("wakeword", b, slog.Default()))
	_ = a.HandleEvent(context.Background(), models.Event{
		Kind:       models.EventAudioFrameReady,
		AudioFrame: &models.AudioFramePayload{PCM: []byte{1}},
	})
	if len(received) != 0 {
		t.Errorf("expected no events on miss, got %d", len(received))
	}
}

type fixedVAD struct {
	frameSize int
	speech    map[int]bool
	calls     int
}

func (f *fixedVAD) FrameSize() int { return f.frameSize }

func (f *fixedVAD) IsSpeech(ctx context.Context, frame []byte) (bool, error) {
	result := f.speech[f.calls]
	f.calls++
	return result, nil
}

func TestVADAdapterEmitsStartAndEndAroundSpeech(t *testing.T) {
	b := bus.New(slog.Default())
	sm := pipeline.NewStateMachine(b, slog.Default())

	var kinds []models.EventKind
	b.Subscribe(models.EventVADSpeechStart, bus.LaneFast, func(ctx context.Context, ev models.Event) { kinds = append(kinds, ev.Kind) })
	b.Subscribe(models.EventVADSpeechEnd, bus.LaneFast, func(ctx context.Context, ev models.Event) { kinds = append(kinds, ev.Kind) })

	detector := &fixedVAD{frameSize: 2, speech: map[int]bool{0: false, 1: true, 2: true, 3: false}}
	a := NewVADAdapter(detector, sm, NewBase("vad", b, slog.Default()))

	frames := [][]byte{{0, 0}, {1, 1}, {2, 2}, {3, 3}}
	for _, f := range frames {
		if err := a.HandleEvent(context.Background(), models.Event{
			Kind:       models.EventAudioFrameReady,
			AudioFrame: &models.AudioFramePayload{PCM: f},
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(kinds) != 2 || kinds[0] != models.EventVADSpeechStart || kinds[1] != models.EventVADSpeechEnd {
		t.Fatalf("expected [start end], got %v", kinds)
	}
}

type fakeRecognizer struct {
	text       string
	confidence float64
	err        error
}

func (f *fakeRecognizer) Recognize(ctx context.Context, speech []byte) (string, float64, error) {
	return f.text, f.confidence, f.err
}

func TestASRAdapterEmitsSuccessWithStampedCorrelationID(t *testing.T) {
	b := bus.New(slog.Default())
	sm := pipeline.NewStateMachine(b, slog.Default())
	tracker := pipeline.NewMessageTracker()

	var successEvents []models.Event
	b.Subscribe(models.EventASRRecognitionSuccess, bus.LaneFast, func(ctx context.Context, ev models.Event) {
		successEvents = append(successEvents, ev)
	})

	a := NewASRAdapter(&fakeRecognizer{text: "play jazz", confidence: 0.95}, sm, tracker, NewBase("asr", b, slog.Default()))
	err := a.HandleEvent(context.Background(), models.Event{
		Kind: models.EventVADSpeechEnd,
		VAD:  &models.VADPayload{Speech: []byte{1, 2, 3}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(successEvents) != 1 {
		t.Fatalf("expected 1 success event, got %d", len(successEvents))
	}
	if successEvents[0].CorrelationID == "" {
		t.Error("expected a stamped correlation id")
	}
	trace, ok := tracker.GetTrace(successEvents[0].CorrelationID)
	if !ok || trace.Query != "play jazz" {
		t.Errorf("expected tracker query 'play jazz', got %+v", trace)
	}
}

func TestASRAdapterEmitsFailedOnRecognitionError(t *testing.T) {
	b := bus.New(slog.Default())
	sm := pipeline.NewStateMachine(b, slog.Default())
	tracker := pipeline.NewMessageTracker()

	var failedEvents []models.Event
	b.Subscribe(models.EventASRRecognitionFailed, bus.LaneFast, func(ctx context.Context, ev models.Event) {
		failedEvents = append(failedEvents, ev)
	})

	a := NewASRAdapter(&fakeRecognizer{err: errors.New("boom")}, sm, tracker, NewBase("asr", b, slog.Default()))
	_ = a.HandleEvent(context.Background(), models.Event{
		Kind: models.EventVADSpeechEnd,
		VAD:  &models.VADPayload{Speech: []byte{1}},
	})
	if len(failedEvents) != 1 {
		t.Fatalf("expected 1 failed event, got %d", len(failedEvents))
	}
	if failedEvents[0].ASRResult.Err != "boom" {
		t.Errorf("expected error 'boom', got %q", failedEvents[0].ASRResult.Err)
	}
}

type fakeOrchestrator struct {
	decision models.OrchestratorDecision
	err      error
}

func (f *fakeOrchestrator) Decide(ctx context.Context, userID, query string) (models.OrchestratorDecision, error) {
	return f.decision, f.err
}

func TestOrchestratorAdapterEmitsDispatchRequest(t *testing.T) {
	b := bus.New(slog.Default())
	var dispatches []models.Event
	b.Subscribe(models.EventAgentDispatchRequest, bus.LaneFast, func(ctx context.Context, ev models.Event) {
		dispatches = append(dispatches, ev)
	})

	orch := &fakeOrchestrator{decision: models.OrchestratorDecision{
		SelectedAgent: "music_agent",
		Confidence:    0.8,
		SessionAction: models.SessionActionNew,
	}}
	a := NewOrchestratorAdapter(orch, "u1", NewBase("orchestrator", b, slog.Default()))

	err := a.HandleEvent(context.Background(), models.Event{
		Kind:          models.EventASRRecognitionSuccess,
		CorrelationID: "corr-1",
		ASRResult:     &models.ASRResultPayload{Text: "play jazz"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dispatches) != 1 {
		t.Fatalf("expected 1 dispatch event, got %d", len(dispatches))
	}
	if dispatches[0].AgentDispatch.Agent != "music_agent" || dispatches[0].CorrelationID != "corr-1" {
		t.Errorf("unexpected dispatch payload: %+v", dispatches[0])
	}
}
