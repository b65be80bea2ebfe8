package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"voicequery/internal/domain"
	"voicequery/internal/errorsx"
	"voicequery/internal/ports"
)

// DefaultSilenceTimeout bounds how long a speaker may pause mid-sentence.
const DefaultSilenceTimeout = 10 * time.Second

var (
	ErrAlreadyListening = errors.New("speech capture is already listening")
	errNoRecognizer     = errors.New("speech recognition is not supported on this system")
)

const startFailedMessage = "There was an error starting speech recognition. Please try again."

// CaptureConfig controls capture session behavior.
type CaptureConfig struct {
	SilenceTimeout time.Duration
}

type sessionEnd int

const (
	sessionEndStopped sessionEnd = iota
	sessionEndSilence
	sessionEndEngine
)

func (e sessionEnd) reason() domain.CaptureReason {
	switch e {
	case sessionEndSilence:
		return domain.CaptureReasonSilenceTimeout
	case sessionEndEngine:
		return domain.CaptureReasonSpeechEnded
	default:
		return domain.CaptureReasonStopped
	}
}

// CaptureController owns the lifecycle of a single speech capture session.
type CaptureController struct {
	recognizer ports.Recognizer
	events     ports.EventSink
	onFinal    func(domain.FinalTranscript)
	cfg        CaptureConfig
	clock      clockwork.Clock
	log        *slog.Logger

	mu      sync.Mutex
	current *captureSession
}

func NewCaptureController(
	recognizer ports.Recognizer,
	events ports.EventSink,
	cfg CaptureConfig,
	rt Runtime,
	onFinal func(domain.FinalTranscript),
) *CaptureController {
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = DefaultSilenceTimeout
	}
	rt = rt.withDefaults()
	return &CaptureController{
		recognizer: recognizer,
		events:     events,
		onFinal:    onFinal,
		cfg:        cfg,
		clock:      rt.Clock,
		log:        rt.Logger,
	}
}

// Start opens a new capture session.
func (c *CaptureController) Start(ctx context.Context) error {
	if c.recognizer == nil {
		return c.unavailable(errNoRecognizer)
	}
	if err := c.recognizer.Available(); err != nil {
		return c.unavailable(err)
	}

	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return ErrAlreadyListening
	}
	session := newCaptureSession(c.clock.Now())
	c.current = session
	c.mu.Unlock()

	c.events.CaptureStateChanged(domain.CaptureStateListening, domain.CaptureReasonListeningStarted)

	recognition, err := c.recognizer.StartSession(ctx, sessionHandler{controller: c, session: session})
	if err != nil {
		c.mu.Lock()
		if c.current == session {
			c.current = nil
		}
		session.stopSilence()
		c.mu.Unlock()

		c.log.Error("capture_start_failed", "session_id", session.id, "error", err)
		c.events.CaptureStateChanged(domain.CaptureStateIdle, domain.CaptureReasonStartFailed)
		c.events.Alert(domain.ErrorCodeRecognition, startFailedMessage)
		return errorsx.Wrap(fmt.Errorf("start recognition: %w", err), domain.ErrorCodeRecognition)
	}

	c.mu.Lock()
	if c.current != session {
		// The engine ended or failed before StartSession returned.
		c.mu.Unlock()
		_ = recognition.Stop()
		return nil
	}
	session.recognition = recognition
	c.mu.Unlock()

	c.log.Info("capture_listening", "session_id", session.id)
	return nil
}

// Stop ends the current session. It is a no-op when nothing is listening.
func (c *CaptureController) Stop() error {
	c.mu.Lock()
	session := c.current
	c.mu.Unlock()

	if session == nil {
		return nil
	}
	c.finish(session, sessionEndStopped)
	return nil
}

// Listening reports whether a capture session is open.
func (c *CaptureController) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Status returns the capture state.
func (c *CaptureController) Status() domain.CaptureState {
	if c.Listening() {
		return domain.CaptureStateListening
	}
	return domain.CaptureStateIdle
}

func (c *CaptureController) unavailable(err error) error {
	c.log.Warn("capture_unavailable", "error", err)
	c.events.CaptureStateChanged(domain.CaptureStateIdle, domain.CaptureReasonCapabilityUnavailable)
	c.events.Alert(domain.ErrorCodeCapabilityUnavailable, err.Error())
	return errorsx.Wrap(err, domain.ErrorCodeCapabilityUnavailable)
}

func (c *CaptureController) handleResult(session *captureSession, text string) {
	c.mu.Lock()
	if c.current != session {
		c.mu.Unlock()
		return
	}
	current := session.utterance.Replace(text)
	session.stopSilence()
	if current != "" {
		session.silence = c.clock.AfterFunc(c.cfg.SilenceTimeout, func() {
			c.handleSilence(session)
		})
	}
	c.mu.Unlock()

	c.events.PartialTranscript(current)
}

func (c *CaptureController) handleSilence(session *captureSession) {
	c.mu.Lock()
	stale := c.current != session
	c.mu.Unlock()
	if stale {
		return
	}

	c.log.Info("capture_silence_timeout", "session_id", session.id, "timeout", c.cfg.SilenceTimeout)
	c.finish(session, sessionEndSilence)
}

// finish closes the session and emits its transcript, if any. Sessions that
// already ended are ignored, so late engine callbacks are harmless.
func (c *CaptureController) finish(session *captureSession, end sessionEnd) {
	c.mu.Lock()
	if c.current != session {
		c.mu.Unlock()
		return
	}
	c.current = nil
	session.stopSilence()
	recognition := session.recognition
	text := session.utterance.Text()
	c.mu.Unlock()

	if end != sessionEndEngine && recognition != nil {
		if err := recognition.Stop(); err != nil {
			c.log.Warn("capture_stop_failed", "session_id", session.id, "error", err)
		}
	}

	if text == "" {
		c.log.Debug("capture_no_transcript", "session_id", session.id)
		c.events.CaptureStateChanged(domain.CaptureStateIdle, domain.CaptureReasonNoTranscript)
		return
	}

	c.log.Info("capture_finished", "session_id", session.id, "reason", end.reason())
	c.events.CaptureStateChanged(domain.CaptureStateIdle, end.reason())
	if c.onFinal != nil {
		c.onFinal(domain.FinalTranscript{
			SessionID:  session.id,
			Text:       text,
			CapturedAt: c.clock.Now(),
		})
	}
}

func (c *CaptureController) abort(session *captureSession, err error) {
	c.mu.Lock()
	if c.current != session {
		c.mu.Unlock()
		return
	}
	c.current = nil
	session.stopSilence()
	recognition := session.recognition
	c.mu.Unlock()

	c.log.Warn("capture_recognition_failed", "session_id", session.id, "error", err)
	if recognition != nil {
		_ = recognition.Stop()
	}
	c.events.CaptureStateChanged(domain.CaptureStateIdle, domain.CaptureReasonRecognitionFailed)
}
