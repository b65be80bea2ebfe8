package domain

import "time"

// CaptureState models the microphone lifecycle.
type CaptureState string

const (
	CaptureStateIdle      CaptureState = "idle"
	CaptureStateListening CaptureState = "listening"
)

// CaptureReason provides a structured reason for capture transitions.
type CaptureReason string

const (
	CaptureReasonReady                 CaptureReason = "ready"
	CaptureReasonListeningStarted      CaptureReason = "listening_started"
	CaptureReasonStopped               CaptureReason = "stopped"
	CaptureReasonSilenceTimeout        CaptureReason = "silence_timeout"
	CaptureReasonSpeechEnded           CaptureReason = "speech_ended"
	CaptureReasonNoTranscript          CaptureReason = "no_transcript"
	CaptureReasonRecognitionFailed     CaptureReason = "recognition_failed"
	CaptureReasonStartFailed           CaptureReason = "start_failed"
	CaptureReasonCapabilityUnavailable CaptureReason = "capability_unavailable"
)

// ErrorCode identifies user-facing failure classes.
type ErrorCode string

const (
	ErrorCodeUnknown               ErrorCode = "unknown"
	ErrorCodeStartup               ErrorCode = "startup"
	ErrorCodeCapabilityUnavailable ErrorCode = "capability_unavailable"
	ErrorCodeRecognition           ErrorCode = "recognition"
	ErrorCodeAudioStream           ErrorCode = "audio_stream"
	ErrorCodeDispatch              ErrorCode = "dispatch"
	ErrorCodeViewer                ErrorCode = "viewer"
)

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a provider.
// IsSpeechFinal marks the provider's end-of-speech signal; Text may be empty then.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// FinalTranscript is the frozen utterance handed to the confirmation step.
type FinalTranscript struct {
	SessionID  string    `json:"sessionId"`
	Text       string    `json:"text"`
	CapturedAt time.Time `json:"capturedAt"`
}

// GatePhase models the confirmation gate lifecycle.
type GatePhase string

const (
	GatePhaseClosed      GatePhase = "closed"
	GatePhaseOpen        GatePhase = "open"
	GatePhaseDispatching GatePhase = "dispatching"
)

// ConfirmationState is published on every gate change and countdown tick.
type ConfirmationState struct {
	Phase            GatePhase `json:"phase"`
	Transcript       string    `json:"transcript"`
	SecondsRemaining int       `json:"secondsRemaining"`
	ProgressFraction float64   `json:"progressFraction"`
}

func (s ConfirmationState) IsOpen() bool {
	return s.Phase == GatePhaseOpen
}

// ClosedConfirmation is the rest state of the gate.
func ClosedConfirmation() ConfirmationState {
	return ConfirmationState{Phase: GatePhaseClosed}
}

// RoutingDecision is the classification backend's answer for a query.
type RoutingDecision struct {
	IsFrontend bool   `json:"isFrontend" mapstructure:"isFrontend"`
	URL        string `json:"url" mapstructure:"url"`
}

// Status summarizes the pipeline for shells.
type Status struct {
	Capture      CaptureState      `json:"capture"`
	Listening    bool              `json:"listening"`
	Confirmation ConfirmationState `json:"confirmation"`
	Message      string            `json:"message,omitempty"`
}
