// Package models defines the core data types shared across the copilot
// coordination plane: bus events, pipeline state, session and tool
// descriptors, and memory records.
package models

import (
	"time"
)

// MemoryEntry represents one short-term turn or long-term profile field
// stored in the vector collection for semantic recall (§3, §4.9).
type MemoryEntry struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id,omitempty"`
	Agent     string `json:"agent,omitempty"`

	Content  string         `json:"content"`
	Metadata MemoryMetadata `json:"metadata"`

	Embedding []float32 `json:"-"` // Not serialized to JSON
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MemoryMetadata carries the fields recall needs to reconstruct a
// ShortTermEntry or identify a long-term profile field without a second
// lookup.
type MemoryMetadata struct {
	Kind     string `json:"kind"` // "short_term" or "long_term"
	Query    string `json:"query,omitempty"`
	Response string `json:"response,omitempty"`
	Success  bool   `json:"success,omitempty"`
	Field    string `json:"field,omitempty"` // long-term profile/preference field name
}

// MemoryKind selects which collection a search draws from.
type MemoryKind string

const (
	// KindShortTerm restricts a search to recent conversational turns.
	KindShortTerm MemoryKind = "short_term"
	// KindLongTerm restricts a search to durable profile/preference fields.
	KindLongTerm MemoryKind = "long_term"
	// KindAny searches both collections for a user.
	KindAny MemoryKind = "any"
)

// SearchRequest defines parameters for semantic memory search (§4.9).
// Every search is scoped to exactly one user; there is no cross-user or
// global search surface.
type SearchRequest struct {
	Query     string     `json:"query"`
	UserID    string     `json:"user_id"`
	Kind      MemoryKind `json:"kind"`
	Limit     int        `json:"limit"`
	Threshold float32    `json:"threshold"` // Min similarity (0-1)
}

// SearchResult represents a single search result.
type SearchResult struct {
	Entry      *MemoryEntry `json:"entry"`
	Score      float32      `json:"score"`      // Similarity score (0-1)
	Highlights []string     `json:"highlights"` // Matched snippets
}

// SearchResponse contains the results of a memory search.
type SearchResponse struct {
	Results    []*SearchResult `json:"results"`
	TotalCount int             `json:"total_count"`
	QueryTime  time.Duration   `json:"query_time"`
}

// ShortTermMemory is one conversational turn (§3). It is stored both in an
// in-memory insertion-ordered list and, embedded, in the vector collection.
type ShortTermMemory struct {
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
	Agent     string    `json:"agent"`
	Success   bool      `json:"success"`
}

// LongTermMemory is the distilled user profile record (§3, §4.9): a running
// summary, a flat profile map, and a preferences map of value lists. One
// instance exists per user, persisted to its own JSON file and mirrored into
// the vector collection one entry per profile/preference field.
type LongTermMemory struct {
	Summary     string              `json:"summary"`
	Profile     map[string]string   `json:"profile"`
	Preferences map[string][]string `json:"preferences"`
	Metadata    LongTermMetadata    `json:"metadata"`
}

// LongTermMetadata tracks when and how often a LongTermMemory was rewritten.
type LongTermMetadata struct {
	LastUpdate  int64 `json:"last_update"` // epoch seconds
	UpdateCount int   `json:"update_count"`
}
