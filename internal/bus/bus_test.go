package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cabinmind/copilot/pkg/models"
)

func TestPublishFastLaneOrdering(t *testing.T) {
	b := New(nil)
	var mu sync.Mutex
	var seen []string

	b.Subscribe(models.EventASRRecognitionSuccess, LaneFast, func(ctx context.Context, e models.Event) {
		mu.Lock()
		seen = append(seen, e.CorrelationID)
		mu.Unlock()
	})

	for _, id := range []string{"a", "b", "c"} {
		b.Publish(context.Background(), models.Event{Kind: models.EventASRRecognitionSuccess, CorrelationID: id})
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || seen[0] != "a" || seen[1] != "b" || seen[2] != "c" {
		t.Errorf("expected [a b c] in order, got %v", seen)
	}
}

func TestHandlerPanicDoesNotAffectSiblings(t *testing.T) {
	b := New(nil)
	var called int32

	b.Subscribe(models.EventStateChange, LaneFast, func(ctx context.Context, e models.Event) {
		panic("boom")
	})
	b.Subscribe(models.EventStateChange, LaneFast, func(ctx context.Context, e models.Event) {
		atomic.AddInt32(&called, 1)
	})

	b.Publish(context.Background(), models.Event{Kind: models.EventStateChange})

	if atomic.LoadInt32(&called) != 1 {
		t.Errorf("expected sibling handler to run despite panic, called=%d", called)
	}
}

func TestSlowLaneDeliversAsynchronously(t *testing.T) {
	b := New(nil)
	done := make(chan struct{})

	b.Subscribe(models.EventAgentResponse, LaneSlow, func(ctx context.Context, e models.Event) {
		close(done)
	})

	b.Publish(context.Background(), models.Event{Kind: models.EventAgentResponse})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("slow-lane handler was not invoked in time")
	}
}

func TestConcurrentLaneDeliversAsynchronously(t *testing.T) {
	b := New(nil)
	done := make(chan struct{})

	b.Subscribe(models.EventAgentResponse, LaneConcurrent, func(ctx context.Context, e models.Event) {
		close(done)
	})

	b.Publish(context.Background(), models.Event{Kind: models.EventAgentResponse})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("concurrent-lane handler was not invoked in time")
	}
}

// TestConcurrentLaneToleratesReentrantDispatch reproduces the shape of the
// planner meta-agent's subtask dispatch: a single subscription's handler
// publishes another event of the same kind it subscribes to and blocks
// waiting for a reply. On LaneSlow this deadlocks, because the one worker
// goroutine that would service the subtask dispatch is the same goroutine
// blocked waiting for it.
func TestConcurrentLaneToleratesReentrantDispatch(t *testing.T) {
	b := New(nil)

	var depth int32
	unsub := b.Subscribe(models.EventAgentDispatchRequest, LaneConcurrent, func(ctx context.Context, e models.Event) {
		if atomic.AddInt32(&depth, 1) == 1 {
			// top-level call: dispatch a "subtask" and wait for its reply,
			// the same way agentruntime.BusDispatcher does.
			replyCh := make(chan struct{})
			unsubReply := b.Subscribe(models.EventAgentResponse, LaneFast, func(ctx context.Context, e models.Event) {
				close(replyCh)
			})
			defer unsubReply()

			b.Publish(ctx, models.Event{Kind: models.EventAgentDispatchRequest, CorrelationID: "subtask"})

			select {
			case <-replyCh:
			case <-time.After(time.Second):
				t.Error("subtask dispatch deadlocked waiting on its own subscription")
			}
			return
		}
		// subtask-level call: reply immediately.
		b.Publish(ctx, models.Event{Kind: models.EventAgentResponse, CorrelationID: e.CorrelationID})
	})
	defer unsub()

	b.Publish(context.Background(), models.Event{Kind: models.EventAgentDispatchRequest, CorrelationID: "top"})
}

func TestAudioFrameBypassesKindSubscriptions(t *testing.T) {
	b := New(nil)
	var viaSubscribe, viaFrames int32

	b.Subscribe(models.EventAudioFrameReady, LaneFast, func(ctx context.Context, e models.Event) {
		atomic.AddInt32(&viaSubscribe, 1)
	})
	b.SubscribeFrames(func(ctx context.Context, e models.Event) {
		atomic.AddInt32(&viaFrames, 1)
	})

	b.Publish(context.Background(), models.Event{Kind: models.EventAudioFrameReady})

	if viaFrames != 1 {
		t.Errorf("expected frame consumer to be invoked once, got %d", viaFrames)
	}
	if viaSubscribe != 0 {
		t.Errorf("expected kind-indexed subscription to be bypassed for audio frames, got %d", viaSubscribe)
	}
}

func TestPublishAfterShutdownDrops(t *testing.T) {
	b := New(nil)
	var called int32
	b.Subscribe(models.EventStateChange, LaneFast, func(ctx context.Context, e models.Event) {
		atomic.AddInt32(&called, 1)
	})

	b.Shutdown()
	b.Publish(context.Background(), models.Event{Kind: models.EventStateChange})

	if called != 0 {
		t.Errorf("expected no delivery after shutdown, called=%d", called)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil)
	var called int32
	unsub := b.Subscribe(models.EventStateChange, LaneFast, func(ctx context.Context, e models.Event) {
		atomic.AddInt32(&called, 1)
	})
	unsub()

	b.Publish(context.Background(), models.Event{Kind: models.EventStateChange})

	if called != 0 {
		t.Errorf("expected no delivery after unsubscribe, called=%d", called)
	}
}
