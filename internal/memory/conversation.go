package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cabinmind/copilot/pkg/models"
)

// Summarizer distills the recent conversation history into an updated long
// term profile (§4.9). It is the one LLM call this package makes; the
// caller wires in whatever agentruntime.Provider backs the rest of the
// system so this package never imports C7 directly.
type Summarizer interface {
	Summarize(ctx context.Context, existing models.LongTermMemory, history []models.ShortTermMemory) (models.LongTermMemory, error)
}

// ConversationConfig configures the per-user short-term ring buffer and
// long-term profile store.
type ConversationConfig struct {
	ShortTermCap     int    `yaml:"short_term_cap"`     // ring buffer capacity; default 50 (Open Question (c))
	TriggerCount     int    `yaml:"trigger_count"`      // short-term appends between long-term summarization runs
	MaxHistoryRounds int    `yaml:"max_history_rounds"` // turns fed to the summarizer
	LongTermFile     string `yaml:"long_term_file"`     // path, %s replaced with user id
}

// Conversation is the memory subsystem a session agent and the orchestrator
// consult for recall (§4.9): a bounded short-term list plus a vector
// collection for similarity search, and a long-term profile rewritten every
// TriggerCount appends.
type Conversation struct {
	cfg        ConversationConfig
	vector     *Manager
	summarizer Summarizer

	mu         sync.Mutex
	shortTerm  map[string][]models.ShortTermMemory
	longTerm   map[string]models.LongTermMemory
	sinceWrite map[string]int
}

// NewConversation creates a conversation store. vector may be nil (semantic
// recall degrades to recency-only); summarizer may be nil (long-term
// summarization is skipped and the record never updates).
func NewConversation(cfg ConversationConfig, vector *Manager, summarizer Summarizer) *Conversation {
	if cfg.ShortTermCap <= 0 {
		cfg.ShortTermCap = 50
	}
	if cfg.TriggerCount <= 0 {
		cfg.TriggerCount = 10
	}
	if cfg.MaxHistoryRounds <= 0 {
		cfg.MaxHistoryRounds = cfg.ShortTermCap
	}
	return &Conversation{
		cfg:        cfg,
		vector:     vector,
		summarizer: summarizer,
		shortTerm:  make(map[string][]models.ShortTermMemory),
		longTerm:   make(map[string]models.LongTermMemory),
		sinceWrite: make(map[string]int),
	}
}

// LoadLongTerm reads a user's long-term profile from disk if present.
// Failures log-and-start-empty at the caller's discretion: this method
// returns the zero value and a nil error when the file does not exist.
func (c *Conversation) LoadLongTerm(userID string) (models.LongTermMemory, error) {
	path := c.longTermPath(userID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.LongTermMemory{}, nil
		}
		return models.LongTermMemory{}, fmt.Errorf("memory: read long-term file: %w", err)
	}

	var record models.LongTermMemory
	if err := json.Unmarshal(data, &record); err != nil {
		return models.LongTermMemory{}, nil
	}

	c.mu.Lock()
	c.longTerm[userID] = record
	c.mu.Unlock()
	return record, nil
}

func (c *Conversation) longTermPath(userID string) string {
	if c.cfg.LongTermFile == "" {
		return filepath.Join(".", fmt.Sprintf("%s_long_term.json", userID))
	}
	return fmt.Sprintf(c.cfg.LongTermFile, userID)
}

// Append records one conversational turn: pushes it onto the user's
// short-term ring buffer, embeds and upserts it into the vector store under
// id stm_<timestamp_ms>, and every TriggerCount appends runs the summarizer
// to refresh the long-term profile.
func (c *Conversation) Append(ctx context.Context, userID, agent string, turn models.ShortTermMemory) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	c.mu.Lock()
	list := append(c.shortTerm[userID], turn)
	if len(list) > c.cfg.ShortTermCap {
		list = list[len(list)-c.cfg.ShortTermCap:]
	}
	c.shortTerm[userID] = list
	c.sinceWrite[userID]++
	trigger := c.sinceWrite[userID] >= c.cfg.TriggerCount
	if trigger {
		c.sinceWrite[userID] = 0
	}
	history := append([]models.ShortTermMemory(nil), list...)
	existing := c.longTerm[userID]
	c.mu.Unlock()

	if c.vector != nil {
		entry := &models.MemoryEntry{
			ID:      fmt.Sprintf("stm_%d", turn.Timestamp.UnixMilli()),
			UserID:  userID,
			Agent:   agent,
			Content: fmt.Sprintf("user: %s\nassistant: %s", turn.Query, turn.Response),
			Metadata: models.MemoryMetadata{
				Kind:     string(models.KindShortTerm),
				Query:    turn.Query,
				Response: turn.Response,
				Success:  turn.Success,
			},
		}
		if err := c.vector.Index(ctx, []*models.MemoryEntry{entry}); err != nil {
			return fmt.Errorf("memory: index short-term entry: %w", err)
		}
	}

	if trigger && c.summarizer != nil {
		if err := c.refreshLongTerm(ctx, userID, existing, history); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conversation) refreshLongTerm(ctx context.Context, userID string, existing models.LongTermMemory, history []models.ShortTermMemory) error {
	window := history
	if len(window) > c.cfg.MaxHistoryRounds {
		window = window[len(window)-c.cfg.MaxHistoryRounds:]
	}

	updated, err := c.summarizer.Summarize(ctx, existing, window)
	if err != nil {
		return fmt.Errorf("memory: summarize long-term profile: %w", err)
	}
	updated.Metadata.LastUpdate = time.Now().Unix()
	updated.Metadata.UpdateCount = existing.Metadata.UpdateCount + 1

	if err := c.writeLongTerm(userID, updated); err != nil {
		return err
	}

	c.mu.Lock()
	c.longTerm[userID] = updated
	c.mu.Unlock()

	if c.vector == nil {
		return nil
	}

	entries := make([]*models.MemoryEntry, 0, len(updated.Profile)+len(updated.Preferences))
	for field, value := range updated.Profile {
		entries = append(entries, &models.MemoryEntry{
			ID:       fmt.Sprintf("ltm_%s", field),
			UserID:   userID,
			Content:  value,
			Metadata: models.MemoryMetadata{Kind: string(models.KindLongTerm), Field: field},
		})
	}
	for field, values := range updated.Preferences {
		entries = append(entries, &models.MemoryEntry{
			ID:       fmt.Sprintf("ltm_%s", field),
			UserID:   userID,
			Content:  fmt.Sprintf("%s: %v", field, values),
			Metadata: models.MemoryMetadata{Kind: string(models.KindLongTerm), Field: field},
		})
	}
	if len(entries) == 0 {
		return nil
	}
	return c.vector.Index(ctx, entries)
}

// writeLongTerm persists a user's profile atomically: write to a temp file
// in the same directory, then rename over the target so a crash mid-write
// never leaves a truncated record on disk.
func (c *Conversation) writeLongTerm(userID string, record models.LongTermMemory) error {
	path := c.longTermPath(userID)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("memory: create long-term directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: marshal long-term record: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("memory: write long-term temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("memory: rename long-term file: %w", err)
	}
	return nil
}

// Recent returns the last n short-term entries for userID in insertion
// order, most recent last.
func (c *Conversation) Recent(userID string, n int) []models.ShortTermMemory {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.shortTerm[userID]
	if n <= 0 || n >= len(list) {
		return append([]models.ShortTermMemory(nil), list...)
	}
	return append([]models.ShortTermMemory(nil), list[len(list)-n:]...)
}

// Related returns short-term entries similar to query by embedding
// similarity, restricted to score >= threshold (default 0.7) and
// deduplicated against Recent(userID, topK).
func (c *Conversation) Related(ctx context.Context, userID, query string, topK int, threshold float32) ([]models.ShortTermMemory, error) {
	if c.vector == nil {
		return nil, nil
	}
	threshold = clampThreshold(threshold)

	resp, err := c.vector.Search(ctx, &models.SearchRequest{
		Query:     query,
		UserID:    userID,
		Kind:      models.KindShortTerm,
		Limit:     topK,
		Threshold: threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: related search: %w", err)
	}

	recent := c.Recent(userID, topK)
	seen := make(map[string]bool, len(recent))
	for _, r := range recent {
		seen[r.Query+"|"+r.Response] = true
	}

	sort.Slice(resp.Results, func(i, j int) bool { return resp.Results[i].Score > resp.Results[j].Score })

	related := make([]models.ShortTermMemory, 0, len(resp.Results))
	for _, result := range resp.Results {
		key := result.Entry.Metadata.Query + "|" + result.Entry.Metadata.Response
		if seen[key] {
			continue
		}
		seen[key] = true
		related = append(related, models.ShortTermMemory{
			Query:    result.Entry.Metadata.Query,
			Response: result.Entry.Metadata.Response,
			Agent:    result.Entry.Agent,
			Success:  result.Entry.Metadata.Success,
		})
	}
	return related, nil
}

// LongTerm returns the current in-memory long-term profile for userID (the
// zero value if none has been loaded or computed yet).
func (c *Conversation) LongTerm(userID string) models.LongTermMemory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.longTerm[userID]
}

// clampThreshold keeps a configured threshold within the valid cosine range;
// values outside [0,1] fall back to the package default.
func clampThreshold(threshold float32) float32 {
	if threshold <= 0 || threshold > 1 || math.IsNaN(float64(threshold)) {
		return 0.7
	}
	return threshold
}
