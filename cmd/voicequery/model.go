package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"voicequery/internal/domain"
	"voicequery/internal/errorsx"
	"voicequery/internal/usecase"
	"voicequery/internal/viewer"
)

type pipeline interface {
	ToggleListening(ctx context.Context) error
	Confirm(ctx context.Context) error
	Cancel()
}

type fetcher interface {
	Fetch(ctx context.Context, target string) (viewer.Table, error)
}

type model struct {
	ctx         context.Context
	pipeline    pipeline
	fetcher     fetcher
	bridge      *bridge
	viewerRoute string
	log         *slog.Logger

	capture      domain.CaptureState
	status       string
	partial      string
	confirmation domain.ConfirmationState
	alert        string
	spoken       string
	route        string
	table        viewer.Table

	progress progress.Model
	width    int
}

func newModel(ctx context.Context, p pipeline, f fetcher, b *bridge, viewerRoute string, logger *slog.Logger) model {
	if logger == nil {
		logger = slog.Default()
	}
	return model{
		ctx:          ctx,
		pipeline:     p,
		fetcher:      f,
		bridge:       b,
		viewerRoute:  viewerRoute,
		log:          logger,
		capture:      domain.CaptureStateIdle,
		status:       captureReasonMessage(domain.CaptureReasonReady),
		confirmation: domain.ClosedConfirmation(),
		progress:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		width:        80,
	}
}

func (m model) Init() tea.Cmd {
	return m.bridge.next()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = max(msg.Width-8, 10)
		return m, nil
	case captureMsg:
		m.capture = msg.state
		m.status = captureReasonMessage(msg.reason)
		if msg.reason == domain.CaptureReasonListeningStarted {
			m.partial = ""
			m.alert = ""
		}
		return m, m.bridge.next()
	case partialMsg:
		m.partial = string(msg)
		return m, m.bridge.next()
	case confirmationMsg:
		m.confirmation = domain.ConfirmationState(msg)
		return m, m.bridge.next()
	case alertMsg:
		m.alert = errorMessage(msg.code, msg.detail)
		if msg.detail != "" && msg.detail != m.alert {
			m.alert += ": " + msg.detail
		}
		return m, m.bridge.next()
	case speakMsg:
		m.spoken = string(msg)
		return m, m.bridge.next()
	case navigateMsg:
		m.route = string(msg)
		m.table = viewer.Table{}
		return m, tea.Batch(m.bridge.next(), m.load(m.route))
	case actionMsg:
		if text := actionFailure(msg.err); text != "" {
			m.alert = text
		}
		return m, nil
	case tableMsg:
		if msg.route == m.route {
			m.table = msg.table
		}
		return m, nil
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.bridge.close()
		return m, tea.Quit
	case " ":
		ctx, p := m.ctx, m.pipeline
		return m, perform(func() error { return p.ToggleListening(ctx) })
	case "enter":
		ctx, p := m.ctx, m.pipeline
		return m, perform(func() error { return p.Confirm(ctx) })
	case "esc":
		m.pipeline.Cancel()
	}
	return m, nil
}

// perform runs a pipeline call off the update loop; dispatching and
// starting the microphone both block.
func perform(call func() error) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{err: call()}
	}
}

// actionFailure is the text for a failed key action. Coded failures were
// already raised as alerts by the pipeline.
func actionFailure(err error) string {
	if err == nil || errors.Is(err, usecase.ErrNoPendingConfirmation) {
		return ""
	}
	if errorsx.Code(err) != domain.ErrorCodeUnknown {
		return ""
	}
	return err.Error()
}

// load fetches the table behind a viewer route; other routes show as is.
func (m model) load(route string) tea.Cmd {
	target, ok := viewer.TargetFromRoute(route, m.viewerRoute)
	if !ok || m.fetcher == nil {
		return nil
	}
	ctx, f, logger := m.ctx, m.fetcher, m.log
	return func() tea.Msg {
		table, err := f.Fetch(ctx, target)
		if err != nil {
			logger.Error("viewer_fetch_failed", "url", target, "error", err)
			table = viewer.ErrorTable(viewer.FetchFailedMessage)
		}
		return tableMsg{route: route, table: table}
	}
}

func captureReasonMessage(reason domain.CaptureReason) string {
	switch reason {
	case domain.CaptureReasonReady:
		return "Press space to ask a question"
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
