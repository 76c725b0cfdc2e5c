// Package bus implements the typed publish/subscribe event bus (C1) that
// stitches the pipeline's adapters together. Handlers are grouped by
// delivery lane: fast handlers run synchronously on the publisher's
// goroutine, guarded individually against panics; slow handlers are queued
// FIFO onto a per-subscription worker so a blocking collaborator call never
// stalls the publisher; concurrent handlers get a fresh goroutine per event,
// for the rare subscriber whose handler publishes and then blocks waiting on
// a reply of a kind it also subscribes to — FIFO queueing on a single worker
// would have that wait block the very goroutine meant to service it.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cabinmind/copilot/internal/observability"
	"github.com/cabinmind/copilot/pkg/models"
)

// Handler processes one event. Handlers run with recover() in place; a
// panicking handler is logged and does not affect sibling handlers.
type Handler func(ctx context.Context, e models.Event)

// FrameConsumer receives audio frames directly, bypassing the generic bus
// dispatch path (§4.1 — "the only special-cased kind").
type FrameConsumer func(ctx context.Context, e models.Event)

// Lane selects how a subscription's handler is invoked.
type Lane int

const (
	// LaneFast dispatches synchronously on the publisher's goroutine.
	LaneFast Lane = iota
	// LaneSlow queues events FIFO onto a dedicated worker goroutine.
	LaneSlow
	// LaneConcurrent runs each event on its own goroutine, unserialized
	// relative to sibling events of the same subscription. Use this for a
	// handler that may itself publish an event and synchronously wait for a
	// response the subscription would also receive (re-entrant dispatch) —
	// on LaneSlow that wait and the response it's waiting for would queue
	// behind one another on the same worker and never unblock.
	LaneConcurrent
)

type subscription struct {
	id      uint64
	kind    models.EventKind
	lane    Lane
	handler Handler

	// queue is non-nil only for LaneSlow subscriptions.
	queue chan queuedEvent
}

// queuedEvent pairs an event with the time it was handed to the queue, so
// drain can report how long it waited for its worker.
type queuedEvent struct {
	event      models.Event
	enqueuedAt time.Time
}

// Bus is the typed pub/sub event bus (C1). The zero value is not usable;
// construct with New.
type Bus struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[models.EventKind][]*subscription
	seq  uint64

	frameMu   sync.RWMutex
	frameSubs []FrameConsumer

	closed atomic.Bool
	wg     sync.WaitGroup
}

// New creates a Bus ready to accept subscriptions. It must be created before
// any module starts publishing or subscribing (§4.1).
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger.With("component", "bus"),
		subs:   make(map[models.EventKind][]*subscription),
	}
}

// Subscribe registers handler for events of kind, on the given lane. It
// returns an unsubscribe function.
func (b *Bus) Subscribe(kind models.EventKind, lane Lane, handler Handler) func() {
	b.mu.Lock()
	b.seq++
	sub := &subscription{id: b.seq, kind: kind, lane: lane, handler: handler}
	if lane == LaneSlow {
		sub.queue = make(chan queuedEvent, 256)
		b.wg.Add(1)
		go b.drain(sub)
	}
	b.subs[kind] = append(b.subs[kind], sub)
	b.mu.Unlock()

	return func() { b.unsubscribe(kind, sub.id) }
}

func (b *Bus) unsubscribe(kind models.EventKind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[kind]
	for i, s := range list {
		if s.id == id {
			if s.queue != nil {
				close(s.queue)
			}
			b.subs[kind] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// SubscribeFrames registers a frame consumer that receives every
// audio_frame_ready event directly, without going through the kind-indexed
// subscription table (§4.1).
func (b *Bus) SubscribeFrames(consumer FrameConsumer) func() {
	b.frameMu.Lock()
	b.frameSubs = append(b.frameSubs, consumer)
	idx := len(b.frameSubs) - 1
	b.frameMu.Unlock()

	return func() {
		b.frameMu.Lock()
		defer b.frameMu.Unlock()
		if idx < len(b.frameSubs) {
			b.frameSubs[idx] = nil
		}
	}
}

// Publish delivers e to every subscriber of e.Kind, in publication order per
// subscriber. Publication after Shutdown silently drops the event (§4.1).
func (b *Bus) Publish(ctx context.Context, e models.Event) {
	if b.closed.Load() {
		return
	}

	if e.Kind == models.EventAudioFrameReady {
		b.publishFrame(ctx, e)
		return
	}

	b.mu.RLock()
	subs := append([]*subscription(nil), b.subs[e.Kind]...)
	b.mu.RUnlock()

	for _, s := range subs {
		switch s.lane {
		case LaneFast:
			b.invoke(ctx, s, e)
		case LaneSlow:
			qe := queuedEvent{event: e, enqueuedAt: time.Now()}
			select {
			case s.queue <- qe:
				observability.EmitLaneEnqueue(&observability.LaneEnqueueEvent{Kind: string(e.Kind), QueueSize: len(s.queue)})
			default:
				// queue full: block the publisher rather than drop, per §4.1
				// ("bus does not silently drop except post-shutdown").
				s.queue <- qe
				observability.EmitLaneEnqueue(&observability.LaneEnqueueEvent{Kind: string(e.Kind), QueueSize: len(s.queue)})
			}
		case LaneConcurrent:
			b.wg.Add(1)
			go func(s *subscription, e models.Event) {
				defer b.wg.Done()
				b.invoke(context.Background(), s, e)
			}(s, e)
		}
	}
}

func (b *Bus) publishFrame(ctx context.Context, e models.Event) {
	b.frameMu.RLock()
	defer b.frameMu.RUnlock()
	for _, consumer := range b.frameSubs {
		if consumer != nil {
			consumer(ctx, e)
		}
	}
}

func (b *Bus) invoke(ctx context.Context, s *subscription, e models.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panic", "kind", e.Kind, "recovered", r)
		}
	}()
	s.handler(ctx, e)
}

func (b *Bus) drain(s *subscription) {
	defer b.wg.Done()
	for qe := range s.queue {
		observability.EmitLaneDequeue(&observability.LaneDequeueEvent{
			Kind:   string(qe.event.Kind),
			WaitMs: time.Since(qe.enqueuedAt).Milliseconds(),
		})
		b.invoke(context.Background(), s, qe.event)
	}
}

// Shutdown marks the bus closed; subsequent Publish calls are no-ops. It
// waits for already-queued slow-lane events to drain.
func (b *Bus) Shutdown() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	b.mu.Lock()
	for _, list := range b.subs {
		for _, s := range list {
			if s.queue != nil {
				close(s.queue)
			}
		}
	}
	b.subs = make(map[models.EventKind][]*subscription)
	b.mu.Unlock()
	b.wg.Wait()
}
