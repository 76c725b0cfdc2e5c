// Package sqlitevec provides a vector storage backend using SQLite, queried
// with a brute-force cosine similarity scan (§4.9). The embeddings.vec0
// extension this package is named for would skip the scan at larger scale,
// but this repo targets one user's short-term/long-term memory — tens to
// low thousands of rows, not a corpus — so the scan costs nothing in
// practice and keeps the pure-Go, CGO-free driver.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cabinmind/copilot/internal/memory/backend"
	"github.com/cabinmind/copilot/pkg/models"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Backend implements backend.Backend using SQLite.
type Backend struct {
	db        *sql.DB
	dimension int
}

// Config configures the sqlite-vec backend.
type Config struct {
	Path      string // Path to SQLite database file; ":memory:" for a transient store.
	Dimension int    // Embedding dimension.
}

// New creates a sqlite-vec backend.
func New(cfg Config) (*Backend, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 1536
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: open database: %w", err)
	}

	b := &Backend{db: db, dimension: cfg.Dimension}
	if err := b.init(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) init() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			agent TEXT,
			kind TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			embedding BLOB,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("sqlitevec: create memories table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_memories_kind ON memories(kind)",
	}
	for _, idx := range indexes {
		if _, err := b.db.Exec(idx); err != nil {
			return fmt.Errorf("sqlitevec: create index: %w", err)
		}
	}
	return nil
}

func (b *Backend) Index(ctx context.Context, entries []*models.MemoryEntry) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitevec: begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			_ = rbErr
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO memories (id, user_id, agent, kind, content, metadata, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlitevec: prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, entry := range entries {
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		entry.UpdatedAt = now

		metadata, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("sqlitevec: marshal metadata: %w", err)
		}

		if _, err := stmt.ExecContext(ctx,
			entry.ID, entry.UserID, entry.Agent, entry.Metadata.Kind, entry.Content,
			string(metadata), encodeEmbedding(entry.Embedding), entry.CreatedAt, entry.UpdatedAt,
		); err != nil {
			return fmt.Errorf("sqlitevec: insert entry: %w", err)
		}
	}

	return tx.Commit()
}

func (b *Backend) Search(ctx context.Context, queryEmbedding []float32, opts backend.SearchOptions) ([]*models.SearchResult, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	query := "SELECT id, user_id, agent, kind, content, metadata, embedding, created_at, updated_at FROM memories WHERE user_id = ?"
	args := []any{opts.UserID}
	if opts.Kind != "" && opts.Kind != models.KindAny {
		query += " AND kind = ?"
		args = append(args, string(opts.Kind))
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: query: %w", err)
	}
	defer rows.Close()

	var results []*models.SearchResult
	for rows.Next() {
		entry, embeddingBlob, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}

		score := cosineSimilarity(queryEmbedding, decodeEmbedding(embeddingBlob))
		if opts.Threshold > 0 && score < opts.Threshold {
			continue
		}
		results = append(results, &models.SearchResult{Entry: entry, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitevec: row iteration: %w", err)
	}

	sortByScoreDesc(results)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func (b *Backend) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitevec: begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM memories WHERE id = ?")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlitevec: prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlitevec: delete %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (b *Backend) Count(ctx context.Context, userID string, kind models.MemoryKind) (int64, error) {
	query := "SELECT COUNT(*) FROM memories WHERE user_id = ?"
	args := []any{userID}
	if kind != "" && kind != models.KindAny {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}

	var count int64
	err := b.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func (b *Backend) Compact(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, "VACUUM")
	return err
}

func (b *Backend) Close() error { return b.db.Close() }

func scanEntry(rows *sql.Rows) (*models.MemoryEntry, []byte, error) {
	var entry models.MemoryEntry
	var userID, agent sql.NullString
	var kind, metadataJSON string
	var embeddingBlob []byte

	err := rows.Scan(&entry.ID, &userID, &agent, &kind, &entry.Content, &metadataJSON, &embeddingBlob, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlitevec: scan row: %w", err)
	}
	entry.UserID = userID.String
	entry.Agent = agent.String

	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &entry.Metadata); err != nil {
			return nil, nil, fmt.Errorf("sqlitevec: unmarshal metadata: %w", err)
		}
	}
	entry.Metadata.Kind = kind

	return &entry, embeddingBlob, nil
}

func encodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	data := make([]byte, len(embedding)*4)
	for i, f := range embedding {
		bits := math.Float32bits(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / float32(math.Sqrt(float64(normA))*math.Sqrt(float64(normB)))
}

func sortByScoreDesc(results []*models.SearchResult) {
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}
