package models

import "time"

// SessionState is the lifecycle state of an AgentSession (§3).
type SessionState string

const (
	SessionRunning      SessionState = "running"
	SessionWaitingInput SessionState = "waiting_input"
	SessionPaused       SessionState = "paused"
	SessionCompleted    SessionState = "completed"
	SessionError        SessionState = "error"
)

// AgentSession is a possibly-multi-turn agent interaction with stored
// intermediate context (§3, §4.4). Its zero value is never valid; sessions
// are always created through the session manager.
type AgentSession struct {
	SessionID    string         `json:"session_id"`
	AgentName    string         `json:"agent_name"`
	UserID       string         `json:"user_id"`
	Priority     int            `json:"priority"` // [0,100]
	Interruptible bool          `json:"interruptible"`
	State        SessionState   `json:"state"`
	Context      map[string]any `json:"context,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`

	// Prompt and ExpectedInputType are set only while State == waiting_input.
	Prompt            string `json:"prompt,omitempty"`
	ExpectedInputType string `json:"expected_input_type,omitempty"`
}

// ResponseStatus is the outcome an agent reports back to its adapter (§3).
type ResponseStatus string

const (
	ResponseSuccess      ResponseStatus = "success"
	ResponseWaitingInput ResponseStatus = "waiting_input"
	ResponseCompleted    ResponseStatus = "completed"
	ResponseError        ResponseStatus = "error"
)

// AgentResponse is returned by every agent flavor (§3, §4.7). SessionID is
// deliberately absent: the adapter stamps it in, never the agent itself.
type AgentResponse struct {
	Agent   string         `json:"agent"`
	Query   string         `json:"query"`
	Status  ResponseStatus `json:"status"`
	Message string         `json:"message"`
	Prompt  string         `json:"prompt,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}
