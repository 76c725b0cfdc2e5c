// Package agentruntime implements the agent runtime (C7): the three agent
// shapes, the planner meta-agent, and the LLM provider contract they and
// the orchestrator (C6) share (§4.7, §6.1).
package agentruntime

import "context"

// Provider is the LLM client collaborator contract (§6.1). Implementations
// wrap a specific backend (Anthropic, an OpenAI-compatible endpoint); the
// orchestrator's LLM-based selection and the tool-using/planner agents all
// consume this interface rather than a concrete SDK client.
type Provider interface {
	// Name identifies the provider for logging and failover selection.
	Name() string
	// Complete sends one completion request and returns the full response.
	// Unlike the teacher's streaming LLMProvider, this contract is
	// synchronous: the orchestrator and simple/session agents need only the
	// final text, and collapsing the stream keeps every C6/C7 call site
	// free of channel plumbing it would otherwise have to drain and discard.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest mirrors the teacher's CompletionRequest/CompletionMessage
// shape (internal/agent/provider_types.go), trimmed to what a synchronous
// single-turn call needs.
type CompletionRequest struct {
	Model     string              `json:"model,omitempty"`
	System    string              `json:"system,omitempty"`
	Messages  []CompletionMessage `json:"messages"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

// CompletionMessage is one turn of conversation history.
type CompletionMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// CompletionResponse is a provider's reply to one CompletionRequest.
type CompletionResponse struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage,omitempty"`
}

// Usage is the token accounting a provider reports for one completion, when
// its backend exposes one. A zero value means the provider didn't report it.
type Usage struct {
	InputTokens  int64 `json:"input_tokens,omitempty"`
	OutputTokens int64 `json:"output_tokens,omitempty"`
}
