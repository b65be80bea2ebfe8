package ports

import (
	"context"
	"io"

	"voicequery/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// Availability is implemented by collaborators that can tell up front
// whether they are usable on this machine.
type Availability interface {
	Available() error
}

// RecognitionHandler receives events for one recognition session.
// OnEnd is delivered exactly once per session; OnError, if any, comes before it.
type RecognitionHandler interface {
	OnResult(text string)
	OnEnd()
	OnError(err error)
}

// RecognitionSession is a running speech recognition session.
type RecognitionSession interface {
	Stop() error
}

// Recognizer is the speech capture capability.
type Recognizer interface {
	Availability
	StartSession(ctx context.Context, handler RecognitionHandler) (RecognitionSession, error)
}

// Synthesizer speaks short acknowledgement phrases.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Classifier maps a spoken query to a routing decision.
type Classifier interface {
	Classify(ctx context.Context, query string) (domain.RoutingDecision, error)
}

// QueryNormalizer rewrites spoken text before classification.
type QueryNormalizer interface {
	Apply(text string) (string, error)
}

// Navigator moves the application to a route.
type Navigator interface {
	Navigate(ctx context.Context, route string) error
}

// EventSink emits pipeline state/events to the UI.
type EventSink interface {
	CaptureStateChanged(state domain.CaptureState, reason domain.CaptureReason)
	PartialTranscript(text string)
	ConfirmationChanged(state domain.ConfirmationState)
	Alert(code domain.ErrorCode, detail string)
}
