package speech

import (
	"context"
	"errors"
	"strings"
	"testing"

	"voicequery/internal/domain"
)

func newTestRecognizer(audio *fakeAudio, stream *fakeStream) *StreamRecognizer {
	return NewStreamRecognizer(
		&fakeCapture{audio: audio},
		&fakeProvider{stream: stream},
		Config{},
		discardLogger(),
	)
}

func partial(text string) domain.TranscriptEvent {
	return domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: text}
}

func final(text string, speechFinal bool) domain.TranscriptEvent {
	return domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: text, IsSpeechFinal: speechFinal}
}

func TestStreamRecognizerEndsOnSpeechFinal(t *testing.T) {
	t.Parallel()

	audio := newFakeAudio([]byte("pcm"))
	audio.live = true
	stream := newFakeStream()
	handler := newHandlerRecorder()

	if _, err := newTestRecognizer(audio, stream).StartSession(context.Background(), handler); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	waitFor(t, "microphone audio to reach the stream", func() bool {
		return strings.HasPrefix(stream.sentBytes(), "pcm")
	})

	stream.push(partial("show"))
	stream.push(partial("show me"))
	stream.push(final("show me the", false))
	stream.push(partial("timetable"))
	stream.push(final("timetable", true))
	handler.waitEnd(t)

	results, errs, order := handler.snapshot()
	want := []string{"show", "show me", "show me the", "show me the timetable"}
	if strings.Join(results, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected results: %q", results)
	}
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if order[len(order)-1] != "end" {
		t.Fatalf("expected end last, got %v", order)
	}
	if audio.stops() == 0 {
		t.Fatalf("expected microphone to be stopped at end of speech")
	}
}

func TestStreamRecognizerCleanProviderCloseKeepsUtterance(t *testing.T) {
	t.Parallel()

	audio := newFakeAudio([]byte("pcm"))
	audio.live = true
	stream := newFakeStream()
	handler := newHandlerRecorder()

	if _, err := newTestRecognizer(audio, stream).StartSession(context.Background(), handler); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, "microphone audio to reach the stream", func() bool {
		return stream.sentBytes() != ""
	})

	stream.push(partial("show me attendance"))
	waitFor(t, "the partial result", func() bool {
		results, _, _ := handler.snapshot()
		return len(results) == 1
	})
	// The pump keeps sending into a stream the provider has closed cleanly.
	audio.feed([]byte("more"))
	stream.end(nil)
	handler.waitEnd(t)

	results, errs, order := handler.snapshot()
	if len(errs) != 0 {
		t.Fatalf("clean close must not be reported as an error, got %v", errs)
	}
	if strings.Join(results, "|") != "show me attendance" || strings.Join(order, ",") != "result,end" {
		t.Fatalf("unexpected callbacks: %q %v", results, order)
	}
	if audio.stops() == 0 {
		t.Fatalf("expected microphone to be stopped")
	}
}

func TestStreamRecognizerIgnoresSpeechFinalBeforeAnyText(t *testing.T) {
	t.Parallel()

	audio := newFakeAudio()
	audio.live = true
	stream := newFakeStream()
	handler := newHandlerRecorder()

	session, err := newTestRecognizer(audio, stream).StartSession(context.Background(), handler)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	stream.push(final("", true))
	stream.push(partial("exam"))
	stream.push(final("exam results", true))
	handler.waitEnd(t)

	results, _, _ := handler.snapshot()
	if len(results) != 2 || results[1] != "exam results" {
		t.Fatalf("unexpected results: %q", results)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("stop after end should be harmless: %v", err)
	}
}

func TestStreamRecognizerStopSuppressesErrors(t *testing.T) {
	t.Parallel()

	audio := newFakeAudio()
	audio.live = true
	stream := newFakeStream()
	stream.waitErr = errors.New("connection reset")
	handler := newHandlerRecorder()

	session, err := newTestRecognizer(audio, stream).StartSession(context.Background(), handler)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	stream.push(partial("attendance"))

	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
	handler.waitEnd(t)

	_, errs, order := handler.snapshot()
	if len(errs) != 0 {
		t.Fatalf("expected no errors after stop, got %v", errs)
	}
	if order[len(order)-1] != "end" {
		t.Fatalf("expected end last, got %v", order)
	}
	if audio.stops() == 0 {
		t.Fatalf("expected microphone to be stopped")
	}
}

func TestStreamRecognizerReportsStreamFailure(t *testing.T) {
	t.Parallel()

	audio := newFakeAudio()
	audio.live = true
	stream := newFakeStream()
	handler := newHandlerRecorder()

	if _, err := newTestRecognizer(audio, stream).StartSession(context.Background(), handler); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	stream.push(partial("class"))
	stream.end(errors.New("network down"))
	handler.waitEnd(t)

	_, errs, order := handler.snapshot()
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "network down") {
		t.Fatalf("expected stream error, got %v", errs)
	}
	if strings.Join(order, ",") != "result,error,end" {
		t.Fatalf("expected error before end, got %v", order)
	}
}

func TestStreamRecognizerReportsAudioFailure(t *testing.T) {
	t.Parallel()

	audio := newFakeAudio()
	audio.readErr = errors.New("device unplugged")
	stream := newFakeStream()
	handler := newHandlerRecorder()

	if _, err := newTestRecognizer(audio, stream).StartSession(context.Background(), handler); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	handler.waitEnd(t)

	_, errs, _ := handler.snapshot()
	if len(errs) != 1 || !errors.Is(errs[0], audio.readErr) {
		t.Fatalf("expected audio error, got %v", errs)
	}
}

func TestStreamRecognizerStartFailures(t *testing.T) {
	t.Parallel()

	providerErr := errors.New("dial failed")
	r := NewStreamRecognizer(&fakeCapture{audio: newFakeAudio()}, &fakeProvider{err: providerErr}, Config{}, discardLogger())
	if _, err := r.StartSession(context.Background(), newHandlerRecorder()); !errors.Is(err, providerErr) {
		t.Fatalf("expected provider error, got %v", err)
	}

	stream := newFakeStream()
	captureErr := errors.New("busy device")
	r = NewStreamRecognizer(&fakeCapture{err: captureErr}, &fakeProvider{stream: stream}, Config{}, discardLogger())
	if _, err := r.StartSession(context.Background(), newHandlerRecorder()); !errors.Is(err, captureErr) {
		t.Fatalf("expected capture error, got %v", err)
	}
	if stream.closes() != 1 {
		t.Fatalf("expected stream to be closed after capture failure")
	}
}

func TestStreamRecognizerAvailable(t *testing.T) {
	t.Parallel()

	if err := NewStreamRecognizer(nil, nil, Config{}, nil).Available(); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	keyErr := errors.New("no api key")
	r := NewStreamRecognizer(&fakeCapture{}, &fakeProvider{availErr: keyErr}, Config{}, nil)
	if err := r.Available(); !errors.Is(err, keyErr) {
		t.Fatalf("expected provider availability error, got %v", err)
	}

	binErr := errors.New("ffmpeg missing")
	r = NewStreamRecognizer(&fakeCapture{availErr: binErr}, &fakeProvider{}, Config{}, nil)
	if err := r.Available(); !errors.Is(err, binErr) {
		t.Fatalf("expected capture availability error, got %v", err)
	}

	if err := NewStreamRecognizer(&fakeCapture{}, &fakeProvider{}, Config{}, nil).Available(); err != nil {
		t.Fatalf("expected recognizer to be available: %v", err)
	}
}

func TestHypothesisCombinesSegments(t *testing.T) {
	t.Parallel()

	var h hypothesis
	if !h.Add(partial("show")) || h.Text() != "show" {
		t.Fatalf("unexpected text: %q", h.Text())
	}
	if h.Add(partial(" show ")) {
		t.Fatalf("same interim text should not count as a change")
	}
	h.Add(final("show me", false))
	h.Add(partial("class 7A"))
	if h.Text() != "show me class 7A" {
		t.Fatalf("unexpected text: %q", h.Text())
	}
	if h.Add(final("", true)) {
		t.Fatalf("empty end-of-speech marker should keep the interim text")
	}
	h.Add(partial("please"))
	if h.Text() != "show me class 7A please" {
		t.Fatalf("unexpected text after marker: %q", h.Text())
	}
}
