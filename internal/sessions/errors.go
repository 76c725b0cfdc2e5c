package sessions

import "errors"

var (
	// ErrSessionConflict is returned by Create when the decision rule (§4.4)
	// refuses to create a new session for a user.
	ErrSessionConflict = errors.New("sessions: refused, active session takes priority")

	// ErrNotTopOfStack is returned by Resume when sessionID is not the top
	// of its user's paused stack.
	ErrNotTopOfStack = errors.New("sessions: session is not top of stack")
)
