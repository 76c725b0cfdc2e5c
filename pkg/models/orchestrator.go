package models

// OrchestratorDecision is the output of the orchestrator (§4.6): which agent
// should handle an utterance, and why.
type OrchestratorDecision struct {
	SelectedAgent string         `json:"selected_agent"`
	Confidence    float64        `json:"confidence"`
	Reasoning     string         `json:"reasoning"`
	Parameters    map[string]any `json:"parameters,omitempty"`

	// SessionAction is set when an active session exists for the user:
	// resume routes back to the same agent as an answer-to-pending, new
	// means a fresh intent was selected.
	SessionAction SessionAction `json:"session_action,omitempty"`
}
