package models

import "time"

// EventKind enumerates every bus event kind the pipeline publishes (§3, §4.1).
// A consumer selects on Kind and is guaranteed the matching payload field is
// populated; all others are nil.
type EventKind string

const (
	EventAudioFrameReady       EventKind = "audio_frame_ready"
	EventWakewordDetected      EventKind = "wakeword_detected"
	EventVADSpeechStart        EventKind = "vad_speech_start"
	EventVADSpeechEnd          EventKind = "vad_speech_end"
	EventASRRecognitionStart   EventKind = "asr_recognition_start"
	EventASRRecognitionSuccess EventKind = "asr_recognition_success"
	EventASRRecognitionFailed  EventKind = "asr_recognition_failed"
	EventStateChange           EventKind = "state_change"
	EventOrchestratorDecision  EventKind = "orchestrator_decision"
	EventAgentDispatchRequest  EventKind = "agent_dispatch_request"
	EventAgentResponse         EventKind = "agent_response"
	EventTTSSpeakRequest       EventKind = "tts_speak_request"
	EventSessionExpired        EventKind = "session_expired"
)

// SessionAction tags how an AgentDispatchRequest affects the target session
// (§3 "SessionAwareEvent").
type SessionAction string

const (
	SessionActionNew    SessionAction = "new"
	SessionActionResume SessionAction = "resume"
	// SessionActionComplete appears only on the AgentResponse side, once the
	// agent runtime has finalized a session.
	SessionActionComplete SessionAction = "complete"
)

// Event is the bus payload (§3). Source identifies the publishing adapter or
// component; CorrelationID, when set, is the message id stamped by the
// Message Tracker (C3) at ASR success and threaded through every downstream
// event for that utterance.
type Event struct {
	Kind          EventKind `json:"kind"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`

	// SessionAwareEvent fields — populated only on dispatch/response kinds.
	SessionID     string        `json:"session_id,omitempty"`
	SessionAction SessionAction `json:"session_action,omitempty"`

	AudioFrame      *AudioFramePayload      `json:"audio_frame,omitempty"`
	Wakeword        *WakewordPayload        `json:"wakeword,omitempty"`
	VAD             *VADPayload             `json:"vad,omitempty"`
	ASRResult       *ASRResultPayload       `json:"asr_result,omitempty"`
	StateChange     *StateChangePayload     `json:"state_change,omitempty"`
	AgentDispatch   *AgentDispatchPayload   `json:"agent_dispatch,omitempty"`
	AgentResp       *AgentResponsePayload   `json:"agent_response,omitempty"`
}

// AudioFramePayload carries one raw PCM frame from the audio adapter. Audio
// frame events bypass the generic bus dispatch path (§4.1) and are delivered
// directly to registered frame consumers.
type AudioFramePayload struct {
	PCM        []byte `json:"-"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// WakewordPayload reports a wakeword hit with its detection confidence.
type WakewordPayload struct {
	Confidence float64 `json:"confidence"`
}

// VADPayload carries the captured speech blob on vad_speech_end; it is nil
// on vad_speech_start.
type VADPayload struct {
	Speech []byte `json:"-"`
}

// ASRResultPayload carries the recognized text on asr_recognition_success, or
// the failure cause on asr_recognition_failed.
type ASRResultPayload struct {
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	Latency    time.Duration `json:"latency"`
	Err        string        `json:"err,omitempty"`
}

// StateChangePayload records a pipeline state transition (§4.2).
type StateChangePayload struct {
	From   PipelineState `json:"from"`
	To     PipelineState `json:"to"`
	Reason string        `json:"reason"`
}

// AgentDispatchPayload carries the orchestrator's decision to the agent
// adapter (§4.5, §4.6).
type AgentDispatchPayload struct {
	Query      string         `json:"query"`
	UserID     string         `json:"user_id"`
	Agent      string         `json:"agent"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// AgentResponsePayload carries the agent adapter's outcome downstream to TTS
// and the message tracker.
type AgentResponsePayload struct {
	Agent  string         `json:"agent"`
	Status ResponseStatus `json:"status"`
	Message string        `json:"message"`
	Prompt  string         `json:"prompt,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}
