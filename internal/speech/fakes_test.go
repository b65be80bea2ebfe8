package speech

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"voicequery/internal/domain"
	"voicequery/internal/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// fakeAudio replays chunks, then either ends or blocks like a live
// microphone until stopped.
type fakeAudio struct {
	mu      sync.Mutex
	chunks  [][]byte
	readErr error
	live    bool

	stopOnce  sync.Once
	stopCh    chan struct{}
	wake      chan struct{}
	stopCalls int
}

func newFakeAudio(chunks ...[]byte) *fakeAudio {
	return &fakeAudio{chunks: chunks, stopCh: make(chan struct{}), wake: make(chan struct{}, 1)}
}

func (a *fakeAudio) Read(p []byte) (int, error) {
	for {
		a.mu.Lock()
		if len(a.chunks) > 0 {
			chunk := a.chunks[0]
			a.chunks = a.chunks[1:]
			a.mu.Unlock()
			return copy(p, chunk), nil
		}
		readErr, live := a.readErr, a.live
		a.mu.Unlock()

		if readErr != nil {
			return 0, readErr
		}
		if !live {
			return 0, io.EOF
		}
		select {
		case <-a.stopCh:
			return 0, io.EOF
		case <-a.wake:
		}
	}
}

// feed hands a live microphone another chunk.
func (a *fakeAudio) feed(chunk []byte) {
	a.mu.Lock()
	a.chunks = append(a.chunks, chunk)
	a.mu.Unlock()
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *fakeAudio) Close() error { return a.Stop() }

func (a *fakeAudio) Stop() error {
	a.mu.Lock()
	a.stopCalls++
	a.mu.Unlock()
	a.stopOnce.Do(func() { close(a.stopCh) })
	return nil
}

func (a *fakeAudio) stops() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopCalls
}

// fakeStream ends as soon as the caller closes the send side.
type fakeStream struct {
	events chan domain.TranscriptEvent
	done   chan struct{}

	mu         sync.Mutex
	sent       []byte
	sendErr    error
	waitErr    error
	closed     bool
	closeCalls int
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		events: make(chan domain.TranscriptEvent, 16),
		done:   make(chan struct{}),
	}
}

func (s *fakeStream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	if s.closed {
		return errors.New("stream closed")
	}
	s.sent = append(s.sent, chunk...)
	return nil
}

func (s *fakeStream) CloseSend() error {
	s.end(nil)
	return nil
}

func (s *fakeStream) Events() <-chan domain.TranscriptEvent { return s.events }

func (s *fakeStream) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitErr
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closeCalls++
	s.mu.Unlock()
	s.end(nil)
	return s.Wait()
}

func (s *fakeStream) push(event domain.TranscriptEvent) { s.events <- event }

// end closes the stream, recording err as its failure if none is set.
func (s *fakeStream) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.waitErr == nil {
		s.waitErr = err
	}
	close(s.events)
	close(s.done)
}

func (s *fakeStream) sentBytes() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.sent)
}

func (s *fakeStream) closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

type fakeProvider struct {
	stream   *fakeStream
	err      error
	availErr error
}

func (p *fakeProvider) Available() error { return p.availErr }

func (p *fakeProvider) StartStreaming(context.Context, ports.StreamingConfig) (ports.StreamingSession, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.stream, nil
}

type fakeCapture struct {
	audio    *fakeAudio
	err      error
	availErr error
}

func (c *fakeCapture) Available() error { return c.availErr }

func (c *fakeCapture) Start(context.Context, ports.AudioConfig) (ports.AudioSession, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.audio, nil
}

type handlerRecorder struct {
	mu      sync.Mutex
	results []string
	errs    []error
	order   []string
	ended   chan struct{}
}

func newHandlerRecorder() *handlerRecorder {
	return &handlerRecorder{ended: make(chan struct{})}
}

func (h *handlerRecorder) OnResult(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, text)
	h.order = append(h.order, "result")
}

func (h *handlerRecorder) OnError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
	h.order = append(h.order, "error")
}

func (h *handlerRecorder) OnEnd() {
	h.mu.Lock()
	h.order = append(h.order, "end")
	h.mu.Unlock()
	close(h.ended)
}

func (h *handlerRecorder) waitEnd(t *testing.T) {
	t.Helper()
	select {
	case <-h.ended:
	case <-time.After(2 * time.Second):
		t.Fatalf("recognition session never ended")
	}
}

func (h *handlerRecorder) snapshot() ([]string, []error, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.results...), append([]error(nil), h.errs...), append([]string(nil), h.order...)
}
