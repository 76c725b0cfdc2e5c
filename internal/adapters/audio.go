package adapters

import (
	"context"
	"fmt"
	"sync"

	"github.com/cabinmind/copilot/pkg/models"
)

// AudioCapture is the external collaborator the Audio adapter wraps: a
// microphone or file-backed PCM source (§4.5, §1 "audio capture ... modeled
// as Go interfaces with at least one reference implementation").
type AudioCapture interface {
	Open(ctx context.Context) error
	// Read blocks until the next frame is available or ctx is done.
	Read(ctx context.Context) ([]byte, error)
	SampleRate() int
	Channels() int
	Close() error
}

// AudioAdapter drives AudioCapture's capture loop and emits
// audio_frame_ready events directly to frame consumers, bypassing the
// kind-indexed bus table (§4.1, §4.5).
type AudioAdapter struct {
	Base
	capture AudioCapture

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAudioAdapter creates an Audio adapter wrapping capture.
func NewAudioAdapter(capture AudioCapture, base Base) *AudioAdapter {
	return &AudioAdapter{Base: base, capture: capture}
}

func (a *AudioAdapter) Initialize(ctx context.Context) error {
	return a.capture.Open(ctx)
}

func (a *AudioAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return fmt.Errorf("audio adapter already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.captureLoop(runCtx)
	return nil
}

func (a *AudioAdapter) captureLoop(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := a.capture.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.recordError()
			a.Logger().Error("audio read failed", "error", err)
			continue
		}

		start := now()
		a.Bus().Publish(ctx, models.Event{
			Kind:      models.EventAudioFrameReady,
			Source:    a.Name(),
			Timestamp: start,
			AudioFrame: &models.AudioFramePayload{
				PCM:        frame,
				SampleRate: a.capture.SampleRate(),
				Channels:   a.capture.Channels(),
			},
		})
		a.recordSuccess(now().Sub(start))
	}
}

func (a *AudioAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	done := a.done
	a.cancel = nil
	a.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (a *AudioAdapter) Cleanup(ctx context.Context) error {
	return a.capture.Close()
}

// HandleEvent is unused: the Audio adapter is the pipeline's source, not a
// consumer of bus events.
func (a *AudioAdapter) HandleEvent(ctx context.Context, ev models.Event) error {
	return nil
}
