package usecase

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

type fakeRecognizer struct {
	mu       sync.Mutex
	availErr error
	startErr error
	sessions []*fakeRecognition
}

func (f *fakeRecognizer) Available() error { return f.availErr }

func (f *fakeRecognizer) StartSession(_ context.Context, handler ports.RecognitionHandler) (ports.RecognitionSession, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	session := &fakeRecognition{handler: handler}
	f.mu.Lock()
	f.sessions = append(f.sessions, session)
	f.mu.Unlock()
	return session, nil
}

func (f *fakeRecognizer) session(t *testing.T, index int) *fakeRecognition {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if index >= len(f.sessions) {
		t.Fatalf("no recognition session %d", index)
	}
	return f.sessions[index]
}

// fakeRecognition behaves like a browser engine: stopping it reports the end.
type fakeRecognition struct {
	handler ports.RecognitionHandler

	mu        sync.Mutex
	stopCalls int
}

func (f *fakeRecognition) Stop() error {
	f.mu.Lock()
	f.stopCalls++
	f.mu.Unlock()
	f.handler.OnEnd()
	return nil
}

func (f *fakeRecognition) result(text string) { f.handler.OnResult(text) }

func (f *fakeRecognition) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type fakeClassifier struct {
	mu       sync.Mutex
	decision domain.RoutingDecision
	err      error
	queries  []string
}

func (f *fakeClassifier) Classify(_ context.Context, query string) (domain.RoutingDecision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return domain.RoutingDecision{}, f.err
	}
	return f.decision, nil
}

func (f *fakeClassifier) snapshotQueries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type fakeNavigator struct {
	mu     sync.Mutex
	routes []string
	err    error
}

func (f *fakeNavigator) Navigate(_ context.Context, route string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.routes = append(f.routes, route)
	return nil
}

func (f *fakeNavigator) snapshotRoutes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.routes...)
}

type fakeSynthesizer struct {
	mu     sync.Mutex
	spoken []string
	err    error
}

func (f *fakeSynthesizer) Speak(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	return f.err
}

type fakeNormalizer struct {
	out string
	err error
}

func (f fakeNormalizer) Apply(text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.out != "" {
		return f.out, nil
	}
	return text, nil
}

type fakeEventSink struct {
	mu sync.Mutex

	states        []stateEvent
	partials      []string
	confirmations []domain.ConfirmationState
	alerts        []alertEvent
}

type stateEvent struct {
	state  domain.CaptureState
	reason domain.CaptureReason
}

type alertEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) CaptureStateChanged(state domain.CaptureState, reason domain.CaptureReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) PartialTranscript(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partials = append(f.partials, text)
}

func (f *fakeEventSink) ConfirmationChanged(state domain.ConfirmationState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmations = append(f.confirmations, state)
}

func (f *fakeEventSink) Alert(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alertEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stateEvent(nil), f.states...)
}

func (f *fakeEventSink) snapshotPartials() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.partials...)
}

func (f *fakeEventSink) snapshotConfirmations() []domain.ConfirmationState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ConfirmationState(nil), f.confirmations...)
}

func (f *fakeEventSink) snapshotAlerts() []alertEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]alertEvent(nil), f.alerts...)
}

func (f *fakeEventSink) lastState(t *testing.T) stateEvent {
	t.Helper()
	states := f.snapshotStates()
	if len(states) == 0 {
		t.Fatalf("expected capture state events")
	}
	return states[len(states)-1]
}

var errBoom = errors.New("boom")
