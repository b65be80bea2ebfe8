package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"voicequery/internal/ports"
)

const defaultDrainTimeout = 4 * time.Second

var ErrNotConfigured = errors.New("speech recognition is not configured")

// Config controls recognition sessions.
type Config struct {
	Audio     ports.AudioConfig
	Streaming ports.StreamingConfig
	ChunkSize int
	// DrainTimeout bounds how long a stopping session waits for the provider
	// to flush its last results.
	DrainTimeout time.Duration
}

// StreamRecognizer turns a microphone and a streaming transcription
// provider into a single-utterance recognizer. A session ends on the first
// end-of-speech signal that follows recognized text.
type StreamRecognizer struct {
	audio    ports.AudioCapture
	provider ports.TranscriptionProvider
	cfg      Config
	log      *slog.Logger
}

func NewStreamRecognizer(audio ports.AudioCapture, provider ports.TranscriptionProvider, cfg Config, logger *slog.Logger) *StreamRecognizer {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	cfg.Streaming.InterimResults = true
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamRecognizer{audio: audio, provider: provider, cfg: cfg, log: logger}
}

// Available reports the first missing piece of the capture chain.
func (r *StreamRecognizer) Available() error {
	if r.audio == nil || r.provider == nil {
		return ErrNotConfigured
	}
	for _, part := range []any{r.provider, r.audio} {
		if checker, ok := part.(ports.Availability); ok {
			if err := checker.Available(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *StreamRecognizer) StartSession(ctx context.Context, handler ports.RecognitionHandler) (ports.RecognitionSession, error) {
	if r.audio == nil || r.provider == nil {
		return nil, ErrNotConfigured
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	stream, err := r.provider.StartStreaming(sessionCtx, r.cfg.Streaming)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start transcription stream: %w", err)
	}

	audio, err := r.audio.Start(sessionCtx, r.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		cancel()
		return nil, fmt.Errorf("start microphone: %w", err)
	}

	s := &recognition{
		cancel:       cancel,
		audio:        audio,
		stream:       stream,
		handler:      handler,
		drainTimeout: r.cfg.DrainTimeout,
		log:          r.log,
		audioDone:    make(chan struct{}),
		done:         make(chan struct{}),
	}

	go pumpAudio(audio, stream, r.cfg.ChunkSize, s.fail, s.audioDone)
	go s.run()
	return s, nil
}

// recognition is one running session. Handler callbacks are only made from
// the run goroutine, in arrival order.
type recognition struct {
	cancel       context.CancelFunc
	audio        ports.AudioSession
	stream       ports.StreamingSession
	handler      ports.RecognitionHandler
	drainTimeout time.Duration
	log          *slog.Logger

	audioDone chan struct{}
	done      chan struct{}

	stopped      atomic.Bool
	ending       atomic.Bool
	speechEnded  atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error

	errMu   sync.Mutex
	pumpErr error
}

// Stop ends the session without waiting for it to drain. No error is
// reported to the handler after Stop; OnEnd still follows.
func (s *recognition) Stop() error {
	s.stopped.Store(true)
	return s.shutdown()
}

func (s *recognition) shutdown() error {
	s.shutdownOnce.Do(func() {
		s.ending.Store(true)
		s.shutdownErr = s.audio.Stop()
		_ = s.stream.CloseSend()

		go func() {
			timer := time.NewTimer(s.drainTimeout)
			defer timer.Stop()
			select {
			case <-s.done:
			case <-timer.C:
				_ = s.stream.Close()
			}
		}()
	})
	return s.shutdownErr
}

func (s *recognition) fail(err error) {
	if s.ending.Load() {
		return
	}
	s.errMu.Lock()
	if s.pumpErr == nil {
		s.pumpErr = err
	}
	s.errMu.Unlock()
	_ = s.stream.Close()
}

func (s *recognition) run() {
	defer close(s.done)
	defer s.cancel()

	var current hypothesis
	for event := range s.stream.Events() {
		if current.Add(event) && current.Text() != "" {
			s.handler.OnResult(current.Text())
		}
		if event.IsSpeechFinal && current.Text() != "" && !s.speechEnded.Swap(true) {
			s.log.Debug("speech_end_detected")
			_ = s.shutdown()
		}
	}

	if err := s.shutdown(); err != nil {
		s.log.Warn("speech_audio_stop_failed", "error", err)
	}
	streamErr := waitForStream(s.stream, s.drainTimeout)
	<-s.audioDone

	if err := s.failure(streamErr); err != nil {
		s.handler.OnError(err)
	}
	s.handler.OnEnd()
}

// failure picks the error worth reporting. Errors raised while a session
// winds down after Stop or end of speech are dropped, as are send failures
// against a stream the provider closed cleanly.
func (s *recognition) failure(streamErr error) error {
	if s.stopped.Load() || s.speechEnded.Load() {
		return nil
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.pumpErr != nil && !(streamErr == nil && errors.Is(s.pumpErr, errStreamSend)) {
		return s.pumpErr
	}
	if streamErr != nil {
		return fmt.Errorf("transcription stream: %w", streamErr)
	}
	return nil
}
