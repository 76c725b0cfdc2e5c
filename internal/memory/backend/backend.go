// Package backend provides the vector storage interface the memory manager
// (C9) indexes and searches against (§4.9). sqlitevec is the only
// implementation this repo ships — pgvector and LanceDB were evaluated and
// dropped (see DESIGN.md): nothing in this spec needs a networked or
// columnar vector store for a single-device assistant's memory.
package backend

import (
	"context"

	"github.com/cabinmind/copilot/pkg/models"
)

// Backend is the vector storage contract a memory manager indexes and
// searches against.
type Backend interface {
	// Index stores memory entries, each already carrying its embedding.
	Index(ctx context.Context, entries []*models.MemoryEntry) error

	// Search finds entries for opts.UserID, restricted to opts.Kind unless
	// it is models.KindAny, ordered by cosine similarity to embedding,
	// above opts.Threshold.
	Search(ctx context.Context, embedding []float32, opts SearchOptions) ([]*models.SearchResult, error)

	// Delete removes entries by id.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of entries stored for userID, restricted to
	// kind unless it is models.KindAny.
	Count(ctx context.Context, userID string, kind models.MemoryKind) (int64, error)

	// Compact optimizes the storage (vacuuming, reindexing).
	Compact(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// SearchOptions narrows a Search call (§4.9).
type SearchOptions struct {
	UserID    string
	Kind      models.MemoryKind
	Limit     int
	Threshold float32
}

// Config contains common backend configuration.
type Config struct {
	Dimension int // Embedding dimension (e.g., 1536 for text-embedding-3-small)
}
