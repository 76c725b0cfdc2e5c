package models

import "time"

// TraceStatus is the terminal status of a MessageTrace.
type TraceStatus string

const (
	TraceStatusPending TraceStatus = "pending"
	TraceStatusSuccess TraceStatus = "success"
	TraceStatusError   TraceStatus = "error"
	TraceStatusAborted TraceStatus = "aborted"
)

// TraceEntry is one `(stage, timestamp, input, output)` record appended to a
// MessageTrace as an utterance moves through the pipeline (§3, §4.3).
type TraceEntry struct {
	Stage     string    `json:"stage"`
	Timestamp time.Time `json:"timestamp"`
	Input     string    `json:"input,omitempty"`
	Output    string    `json:"output,omitempty"`
}

// MessageTrace is keyed by the correlation id created at ASR success (§3).
// It is mutated only by appends and is safe to read concurrently (the
// evaluator polls it while the pipeline is still writing).
type MessageTrace struct {
	ID       string       `json:"id"`
	Query    string       `json:"query"`
	Response string       `json:"response"`
	Status   TraceStatus  `json:"status"`
	Entries  []TraceEntry `json:"entries"`
}
