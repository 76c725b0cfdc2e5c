// Package orchestrator implements the orchestrator (C6): selects an agent
// for an utterance, or routes it back to an active session, using an LLM
// with a rule-based fallback (§4.6).
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cabinmind/copilot/internal/agentruntime"
	"github.com/cabinmind/copilot/internal/sessions"
	"github.com/cabinmind/copilot/pkg/models"
)

// DefaultAgent is the rule-based fallback's default pick when no agent's
// capabilities match the utterance (§4.6).
const DefaultAgent = "chat_agent"

// Orchestrator is the C6 collaborator. Construct with the enabled agent
// catalog; provider may be nil, in which case selection is rule-based only.
type Orchestrator struct {
	agents   []models.AgentConfig
	sessions *sessions.Manager
	provider agentruntime.Provider
	logger   *slog.Logger
}

// New creates an Orchestrator.
func New(agents []models.AgentConfig, mgr *sessions.Manager, provider agentruntime.Provider, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		agents:   agents,
		sessions: mgr,
		provider: provider,
		logger:   logger.With("component", "orchestrator"),
	}
}

// Decide implements §4.6's two branches.
func (o *Orchestrator) Decide(ctx context.Context, userID, query string) (models.OrchestratorDecision, error) {
	active, hasActive := o.sessions.Active(ctx, userID)

	if hasActive && active.State == models.SessionWaitingInput && o.isAnswerToPending(ctx, query, active) {
		return models.OrchestratorDecision{
			SelectedAgent: active.AgentName,
			Confidence:    1,
			Reasoning:     "answer to pending prompt",
			SessionAction: models.SessionActionResume,
		}, nil
	}

	decision, err := o.selectAgent(ctx, query)
	if err != nil {
		return models.OrchestratorDecision{}, err
	}
	decision.SessionAction = models.SessionActionNew
	return decision, nil
}

// isAnswerToPending classifies an utterance while a session is
// waiting_input as either an answer to that prompt or a fresh intent
// (§4.6). With a provider configured, the LLM makes the call; otherwise a
// short, question-free reply is treated as an answer.
func (o *Orchestrator) isAnswerToPending(ctx context.Context, query string, active *models.AgentSession) bool {
	if o.provider != nil {
		if answer, err := o.classifyWithLLM(ctx, query, active); err == nil {
			return answer
		}
	}
	return ruleIsAnswer(query)
}

func ruleIsAnswer(query string) bool {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return false
	}
	if strings.Contains(trimmed, "?") {
		return false
	}
	return len(strings.Fields(trimmed)) <= 6
}

type classificationResult struct {
	IsAnswer bool `json:"is_answer"`
}

func (o *Orchestrator) classifyWithLLM(ctx context.Context, query string, active *models.AgentSession) (bool, error) {
	prompt := fmt.Sprintf(
		"The assistant previously asked: %q. The user just said: %q. "+
			"Is the user's utterance an answer to that question, or a new unrelated request? "+
			`Respond with JSON only: {"is_answer": true|false}.`,
		active.Prompt, query,
	)
	resp, err := o.provider.Complete(ctx, agentruntime.CompletionRequest{
		Messages: []agentruntime.CompletionMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return false, err
	}
	var result classificationResult
	if err := json.Unmarshal([]byte(resp.Content), &result); err != nil {
		return false, err
	}
	return result.IsAnswer, nil
}

type selectionResult struct {
	Agent      string  `json:"agent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// selectAgent picks an agent afresh: an LLM with a structured prompt
// enumerating agents by name and capabilities, falling back to keyword
// matching against declared capabilities on any LLM failure (§4.6).
func (o *Orchestrator) selectAgent(ctx context.Context, query string) (models.OrchestratorDecision, error) {
	if o.provider != nil {
		if decision, err := o.selectWithLLM(ctx, query); err == nil {
			return decision, nil
		} else {
			o.logger.Warn("llm_call_failed, falling back to rule-based selection", "error", err)
		}
	}
	return o.selectByRule(query), nil
}

func (o *Orchestrator) selectWithLLM(ctx context.Context, query string) (models.OrchestratorDecision, error) {
	var b strings.Builder
	b.WriteString("Available agents:\n")
	for _, a := range o.agents {
		if !a.Enabled {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s (capabilities: %s)\n", a.Name, a.Description, strings.Join(a.Capabilities, ", "))
	}
	fmt.Fprintf(&b, "\nUser said: %q\n", query)
	b.WriteString(`Pick the single best agent. Respond with JSON only: {"agent": "...", "confidence": 0.0, "reasoning": "..."}.`)

	resp, err := o.provider.Complete(ctx, agentruntime.CompletionRequest{
		Messages: []agentruntime.CompletionMessage{{Role: "user", Content: b.String()}},
	})
	if err != nil {
		return models.OrchestratorDecision{}, err
	}

	var result selectionResult
	if err := json.Unmarshal([]byte(resp.Content), &result); err != nil {
		return models.OrchestratorDecision{}, err
	}
	if result.Agent == "" {
		return models.OrchestratorDecision{}, fmt.Errorf("orchestrator: llm selection returned no agent")
	}
	return models.OrchestratorDecision{
		SelectedAgent: result.Agent,
		Confidence:    result.Confidence,
		Reasoning:     result.Reasoning,
	}, nil
}

// selectByRule picks the enabled agent whose capabilities list has the most
// keyword hits against the query, defaulting to DefaultAgent (§4.6).
func (o *Orchestrator) selectByRule(query string) models.OrchestratorDecision {
	lower := strings.ToLower(query)

	best := ""
	bestHits := 0
	for _, a := range o.agents {
		if !a.Enabled {
			continue
		}
		hits := 0
		for _, capability := range a.Capabilities {
			if capability == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(capability)) {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			best = a.Name
		}
	}

	if best == "" {
		return models.OrchestratorDecision{
			SelectedAgent: DefaultAgent,
			Confidence:    0.3,
			Reasoning:     "no capability keyword matched, defaulting to chat_agent",
		}
	}
	return models.OrchestratorDecision{
		SelectedAgent: best,
		Confidence:    0.6,
		Reasoning:     fmt.Sprintf("matched %d capability keyword(s)", bestHits),
	}
}
