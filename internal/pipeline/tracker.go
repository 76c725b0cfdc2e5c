package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cabinmind/copilot/pkg/models"
)

// MessageTracker is the per-utterance trace record keeper (C3). Ids flow on
// every event as an optional correlation field so any stage can attach its
// log line to the same utterance (§4.3). Reads are concurrent; appends are
// serialized per-trace.
type MessageTracker struct {
	mu     sync.RWMutex
	traces map[string]*traceEntry
}

type traceEntry struct {
	mu    sync.Mutex
	trace models.MessageTrace
}

// NewMessageTracker creates an empty tracker.
func NewMessageTracker() *MessageTracker {
	return &MessageTracker{traces: make(map[string]*traceEntry)}
}

// CreateMessageID allocates a fresh correlation id and an empty trace for it.
func (t *MessageTracker) CreateMessageID() string {
	id := uuid.NewString()
	t.mu.Lock()
	t.traces[id] = &traceEntry{trace: models.MessageTrace{ID: id, Status: models.TraceStatusPending}}
	t.mu.Unlock()
	return id
}

func (t *MessageTracker) entry(id string) *traceEntry {
	t.mu.RLock()
	e := t.traces[id]
	t.mu.RUnlock()
	return e
}

// AddTrace appends a (stage, timestamp, input, output) entry to the trace
// for id. A call against an unknown id is a no-op.
func (t *MessageTracker) AddTrace(id, stage, input, output string) {
	e := t.entry(id)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.trace.Entries = append(e.trace.Entries, models.TraceEntry{
		Stage:     stage,
		Timestamp: time.Now(),
		Input:     input,
		Output:    output,
	})
	e.mu.Unlock()
}

// UpdateQuery sets the trace's canonical original query text.
func (t *MessageTracker) UpdateQuery(id, query string) {
	e := t.entry(id)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.trace.Query = query
	e.mu.Unlock()
}

// UpdateResponse sets the trace's canonical final response text and status.
func (t *MessageTracker) UpdateResponse(id, response string, status models.TraceStatus) {
	e := t.entry(id)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.trace.Response = response
	e.trace.Status = status
	e.mu.Unlock()
}

// GetTrace returns a value copy of the trace for id, or false if unknown.
func (t *MessageTracker) GetTrace(id string) (models.MessageTrace, bool) {
	e := t.entry(id)
	if e == nil {
		return models.MessageTrace{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := e.trace
	cp.Entries = append([]models.TraceEntry(nil), e.trace.Entries...)
	return cp, true
}

// Abort marks every still-pending trace as aborted. Used on controller stop
// to finalize in-flight utterances (§5 "Cancellation").
func (t *MessageTracker) Abort() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.traces {
		e.mu.Lock()
		if e.trace.Status == models.TraceStatusPending {
			e.trace.Status = models.TraceStatusAborted
		}
		e.mu.Unlock()
	}
}
