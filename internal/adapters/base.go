// Package adapters implements the module adapter layer (C5): one adapter
// per pipeline stage, each wrapping a single external collaborator and
// acting as its only path in and out of the bus (§4.5).
package adapters

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cabinmind/copilot/internal/bus"
	"github.com/cabinmind/copilot/internal/observability"
	"github.com/cabinmind/copilot/pkg/models"
)

// Module is the uniform lifecycle contract every adapter satisfies:
// initialize → start → stop → cleanup, plus handle_event (§4.5). The
// Controller (C11) drives every registered Module through this interface.
type Module interface {
	Name() string
	Initialize(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Cleanup(ctx context.Context) error
	HandleEvent(ctx context.Context, ev models.Event) error
	Statistics() models.AdapterStats
}

// Base provides the shared statistics/logging scaffolding every adapter
// embeds, mirroring the teacher's BaseHealthAdapter (atomic counters plus a
// component-scoped logger) generalized from per-channel message metrics to
// per-adapter event metrics (§3.2, §4.5).
type Base struct {
	name    string
	logger  *slog.Logger
	bus     *bus.Bus
	metrics *observability.Metrics
	tracer  *observability.Tracer

	processed    atomic.Uint64
	errored      atomic.Uint64
	lastLatency  atomic.Int64 // nanoseconds
	totalLatency atomic.Int64 // nanoseconds, sum over processed
}

// WithMetrics attaches a Prometheus metrics collector. Optional: a Base with
// no metrics attached still tracks its own atomic counters for Statistics(),
// it just skips the Prometheus export side of instrument().
func (b Base) WithMetrics(m *observability.Metrics) Base {
	b.metrics = m
	return b
}

// WithTracer attaches a distributed tracer. Optional: a Base with no tracer
// attached still runs instrument() the same way, it just skips span creation.
func (b Base) WithTracer(t *observability.Tracer) Base {
	b.tracer = t
	return b
}

// NewBase creates the shared adapter scaffolding. name identifies the
// adapter in logs, statistics, and Controller.get_module lookups.
func NewBase(name string, b *bus.Bus, logger *slog.Logger) Base {
	if logger == nil {
		logger = slog.Default()
	}
	return Base{
		name:   name,
		logger: logger.With("component", name),
		bus:    b,
	}
}

// Name returns the adapter's registration name.
func (b *Base) Name() string { return b.name }

// Logger returns the adapter's component-scoped logger.
func (b *Base) Logger() *slog.Logger { return b.logger }

// Bus returns the adapter's bus handle.
func (b *Base) Bus() *bus.Bus { return b.bus }

// recordSuccess records one successfully processed event and its latency.
func (b *Base) recordSuccess(d time.Duration) {
	b.processed.Add(1)
	b.lastLatency.Store(int64(d))
	b.totalLatency.Add(int64(d))
}

// recordError records one failed event.
func (b *Base) recordError() {
	b.errored.Add(1)
}

// Statistics returns a snapshot of this adapter's counters (§3.2, §4.5).
func (b *Base) Statistics() models.AdapterStats {
	processed := b.processed.Load()
	avg := time.Duration(0)
	if processed > 0 {
		avg = time.Duration(b.totalLatency.Load() / int64(processed))
	}
	return models.AdapterStats{
		EventsProcessed: processed,
		Errors:          b.errored.Load(),
		LastLatency:     time.Duration(b.lastLatency.Load()),
		AvgLatency:      avg,
		ProcessedTotal:  processed,
	}
}

// publish stamps ctx-derived timestamp/source and records success/error
// bookkeeping around a unit of work, mirroring every adapter's
// handle-event-then-publish-downstream shape.
func (b *Base) instrument(fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	if err != nil {
		b.recordError()
		if b.metrics != nil {
			b.metrics.EventProcessed(b.name, "error")
			b.metrics.RecordEventDuration(b.name, d.Seconds())
		}
		return err
	}
	b.recordSuccess(d)
	if b.metrics != nil {
		b.metrics.EventProcessed(b.name, "success")
		b.metrics.RecordEventDuration(b.name, d.Seconds())
	}
	return nil
}

// instrumentTraced wraps instrument with a message-processing span when a
// tracer is attached (§6.1), so every adapter's handle-event path is
// consistently traced without each adapter remembering to do it itself.
func (b *Base) instrumentTraced(ctx context.Context, fn func() error) error {
	if b.tracer == nil {
		return b.instrument(fn)
	}
	_, span := b.tracer.TraceMessageProcessing(ctx, b.name, "handle_event", "")
	defer span.End()
	err := b.instrument(fn)
	if err != nil {
		b.tracer.RecordError(span, err)
	}
	return err
}

func now() time.Time { return time.Now() }
