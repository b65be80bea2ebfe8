package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"voicequery/internal/bootstrap"
	"voicequery/internal/config"
	"voicequery/internal/domain"
	"voicequery/internal/usecase"
	"voicequery/internal/viewer"
)

const (
	eventCapture      = "voicequery:capture"
	eventPartial      = "voicequery:partial"
	eventConfirmation = "voicequery:confirmation"
	eventError        = "voicequery:error"
	eventNavigate     = "voicequery:navigate"
	eventSpeak        = "voicequery:speak"
)

var errNotInitialized = errors.New("application is not initialized")

// App is the Wails application root.
type App struct {
	ctx context.Context

	pipeline *usecase.Pipeline
	fetcher  *viewer.Fetcher
	cfg      config.Config
	log      *slog.Logger
	bootErr  error
}

func NewApp() *App {
	return &App{log: slog.Default()}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(ctx, bootstrap.Shell{Events: a, Navigator: a, Synthesizer: a})
	if err != nil {
		a.bootErr = err
		a.Alert(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.log = services.Logger
	a.pipeline = services.Pipeline
	a.fetcher = services.Fetcher
	a.CaptureStateChanged(domain.CaptureStateIdle, domain.CaptureReasonReady)
}

func (a *App) shutdown(_ context.Context) {
	if a.pipeline == nil {
		return
	}
	a.pipeline.Cancel()
	if err := a.pipeline.StopListening(); err != nil {
		a.log.Warn("shutdown_stop_failed", "error", err)
	}
}

// StartListening opens the microphone.
func (a *App) StartListening() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.pipeline.StartListening(a.ctx); err != nil {
		return a.pipeline.Status(), err
	}
	return a.pipeline.Status(), nil
}

// StopListening closes the microphone; what was heard goes to confirmation.
func (a *App) StopListening() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.pipeline.StopListening(); err != nil {
		return a.pipeline.Status(), err
	}
	return a.pipeline.Status(), nil
}

// ToggleListening backs the microphone button.
func (a *App) ToggleListening() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.pipeline.ToggleListening(a.ctx); err != nil {
		return a.pipeline.Status(), err
	}
	return a.pipeline.Status(), nil
}

// ConfirmQuery dispatches the query awaiting confirmation.
func (a *App) ConfirmQuery() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.pipeline.Confirm(a.ctx); err != nil {
		if errors.Is(err, usecase.ErrNoPendingConfirmation) {
			return nil
		}
		return err
	}
	return nil
}

// CancelQuery discards the query awaiting confirmation.
func (a *App) CancelQuery() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.pipeline.Cancel()
	return nil
}

// GetStatus returns the current pipeline status.
func (a *App) GetStatus() domain.Status {
	if a.pipeline == nil {
		status := domain.Status{Capture: domain.CaptureStateIdle, Confirmation: domain.ClosedConfirmation()}
		if a.bootErr != nil {
			status.Message = a.bootErr.Error()
		}
		return status
	}
	return a.pipeline.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"provider":            "Deepgram",
		"model":               a.cfg.Deepgram.Model,
		"language":            a.cfg.Deepgram.Language,
		"rulesFile":           a.cfg.Rules.Path,
		"audioInput":          a.cfg.Audio.InputDevice,
		"audioInputFormat":    a.cfg.Audio.InputFormat,
		"classifier":          a.cfg.Dispatch.ClassifierURL,
		"backendOrigin":       a.cfg.Dispatch.BackendOrigin,
		"viewerRoute":         a.cfg.Dispatch.ViewerRoute,
		"confirmationSeconds": strconv.Itoa(int(a.cfg.Confirmation.Window.Seconds())),
	}
}

// LoadViewer fetches the backend data behind a viewer route. Failures are
// rendered as the single-cell error table.
func (a *App) LoadViewer(route string) viewer.Table {
	if a.fetcher == nil {
		return viewer.ErrorTable(viewer.FetchFailedMessage)
	}
	target, ok := viewer.TargetFromRoute(route, a.cfg.Dispatch.ViewerRoute)
	if !ok {
		return viewer.Table{}
	}
	table, err := a.fetcher.Fetch(a.ctx, target)
	if err != nil {
		a.log.Error("viewer_fetch_failed", "url", target, "error", err)
		return viewer.ErrorTable(viewer.FetchFailedMessage)
	}
	return table
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.pipeline == nil {
		return errNotInitialized
	}
	return nil
}

// CaptureStateChanged emits microphone lifecycle updates to the frontend.
func (a *App) CaptureStateChanged(state domain.CaptureState, reason domain.CaptureReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventCapture, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": captureReasonMessage(reason),
	})
}

// PartialTranscript emits the live hypothesis.
func (a *App) PartialTranscript(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventPartial, map[string]string{"text": text})
}

// ConfirmationChanged emits gate state and countdown ticks.
func (a *App) ConfirmationChanged(state domain.ConfirmationState) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventConfirmation, state)
}

// Alert emits a user-facing failure and shows it in a native dialog.
func (a *App) Alert(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	title := errorMessage(code, detail)
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": title,
		"detail":  detail,
	})
	go func(ctx context.Context) {
		if _, err := runtime.MessageDialog(ctx, runtime.MessageDialogOptions{
			Type:    runtime.ErrorDialog,
			Title:   title,
			Message: detail,
		}); err != nil {
			a.log.Warn("alert_dialog_failed", "error", err)
		}
	}(a.ctx)
}

// Navigate asks the frontend router to show route.
func (a *App) Navigate(_ context.Context, route string) error {
	if a.ctx == nil {
		return errNotInitialized
	}
	runtime.EventsEmit(a.ctx, eventNavigate, map[string]string{"route": route})
	return nil
}

// Speak hands the phrase to the frontend speech synthesizer.
func (a *App) Speak(_ context.Context, text string) error {
	if a.ctx == nil {
		return fmt.Errorf("speak %q: %w", text, errNotInitialized)
	}
	runtime.EventsEmit(a.ctx, eventSpeak, map[string]string{
		"text":  text,
		"voice": a.cfg.Dispatch.AckVoice,
	})
	return nil
}

func captureReasonMessage(reason domain.CaptureReason) string {
	switch reason {
	case domain.CaptureReasonReady:
		return "Tap the microphone to ask a question"
	case domain.CaptureReasonListeningStarted:
		return "Listening..."
	case domain.CaptureReasonStopped:
		return "Stopped listening"
	case domain.CaptureReasonSilenceTimeout:
		return "Stopped after a long pause"
	case domain.CaptureReasonSpeechEnded:
		return "Got it"
	case domain.CaptureReasonNoTranscript:
		return "Didn't catch that"
	case domain.CaptureReasonRecognitionFailed:
		return "Speech recognition failed"
	case domain.CaptureReasonStartFailed:
		return "Could not start listening"
	case domain.CaptureReasonCapabilityUnavailable:
		return "Speech recognition is not available"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeCapabilityUnavailable:
		return "Speech recognition unavailable"
	case domain.ErrorCodeRecognition:
		return "Speech recognition error"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodeDispatch:
		return "Could not answer that question"
	case domain.ErrorCodeViewer:
		return "Failed to fetch data"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
