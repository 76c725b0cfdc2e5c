package models

// PipelineState is the single process-wide pipeline state enum (§3, §4.2).
type PipelineState string

const (
	StateIdle         PipelineState = "idle"
	StateWakeDetected PipelineState = "wake_detected"
	StateListening    PipelineState = "listening"
	StateRecognizing  PipelineState = "recognizing"
	StateDeciding     PipelineState = "deciding"
	StateExecuting    PipelineState = "executing"
	StateError        PipelineState = "error"
)

// StateEvent is the enumerated set of inputs the state machine's transition
// table accepts (§4.2). Any event not present in the table for the current
// state is a no-op that logs and retains the current state.
type StateEvent string

const (
	StateEventWakewordTriggered   StateEvent = "wakeword_triggered"
	StateEventSpeechStart         StateEvent = "speech_start"
	StateEventSpeechEnd           StateEvent = "speech_end"
	StateEventRecognitionStart    StateEvent = "recognition_start"
	StateEventRecognitionSuccess  StateEvent = "recognition_success"
	StateEventRecognitionFailed   StateEvent = "recognition_failed"
	StateEventOrchestratorDecided StateEvent = "orchestrator_decided"
	StateEventAgentCompleted      StateEvent = "agent_completed"
	StateEventError               StateEvent = "error"
	StateEventReset               StateEvent = "reset"
)
