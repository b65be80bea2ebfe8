package usecase

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"voicequery/internal/ports"
)

// captureSession is owned by CaptureController and only touched under its mutex.
type captureSession struct {
	id        string
	startedAt time.Time

	utterance   *utterance
	recognition ports.RecognitionSession
	silence     clockwork.Timer
}

func newCaptureSession(now time.Time) *captureSession {
	return &captureSession{
		id:        uuid.NewString(),
		startedAt: now,
		utterance: newUtterance(),
	}
}

func (s *captureSession) stopSilence() {
	if s.silence != nil {
		s.silence.Stop()
		s.silence = nil
	}
}

// sessionHandler binds recognizer callbacks to the session that started them.
type sessionHandler struct {
	controller *CaptureController
	session    *captureSession
}

func (h sessionHandler) OnResult(text string) {
	h.controller.handleResult(h.session, text)
}

func (h sessionHandler) OnEnd() {
	h.controller.finish(h.session, sessionEndEngine)
}

func (h sessionHandler) OnError(err error) {
	h.controller.abort(h.session, err)
}
