package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cabinmind/copilot/internal/agentruntime"
	"github.com/cabinmind/copilot/pkg/models"
)

// providerSummarizer implements memory.Summarizer purely by structural
// typing: it has no import on internal/memory, matching that package's
// documented intent to stay decoupled from the agent runtime (§4.9).
type providerSummarizer struct {
	provider agentruntime.Provider
}

const summarizePrompt = `You maintain a running profile of a voice assistant's user. Existing profile (JSON): %s

Recent conversation turns:
%s

Reply with ONLY a JSON object of the form {"summary":"...","profile":{"key":"value"},"preferences":{"key":["value"]}} that merges the existing profile with anything new learned from the turns above. Keep the summary to two or three sentences.`

// Summarize asks the configured LLM provider for an updated profile. On any
// failure to reach the provider or parse its reply, the existing record is
// returned unchanged rather than erroring the whole conversation turn.
func (s providerSummarizer) Summarize(ctx context.Context, existing models.LongTermMemory, history []models.ShortTermMemory) (models.LongTermMemory, error) {
	if s.provider == nil {
		return existing, nil
	}

	existingJSON, err := json.Marshal(existing)
	if err != nil {
		return existing, fmt.Errorf("summarizer: marshal existing profile: %w", err)
	}

	var turns strings.Builder
	for _, turn := range history {
		fmt.Fprintf(&turns, "user: %s\nassistant (%s): %s\n", turn.Query, turn.Agent, turn.Response)
	}

	resp, err := s.provider.Complete(ctx, agentruntime.CompletionRequest{
		Messages:  []agentruntime.CompletionMessage{{Role: "user", Content: fmt.Sprintf(summarizePrompt, existingJSON, turns.String())}},
		MaxTokens: 512,
	})
	if err != nil {
		return existing, nil
	}

	var updated models.LongTermMemory
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Content)), &updated); err != nil {
		return existing, nil
	}
	if updated.Profile == nil {
		updated.Profile = existing.Profile
	}
	if updated.Preferences == nil {
		updated.Preferences = existing.Preferences
	}
	return updated, nil
}

// extractJSONObject strips any leading/trailing prose a chat model adds
// around the JSON object it was asked for.
func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return "{}"
	}
	return text[start : end+1]
}
