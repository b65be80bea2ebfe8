package usecase

import (
	"context"

	"voicequery/internal/domain"
	"voicequery/internal/ports"
)

// Config groups the pipeline component settings.
type Config struct {
	Capture      CaptureConfig
	Confirmation GateConfig
	Dispatch     DispatchConfig
}

// Dependencies are the collaborators of the voice query pipeline.
type Dependencies struct {
	Recognizer  ports.Recognizer
	Classifier  ports.Classifier
	Normalizer  ports.QueryNormalizer
	Synthesizer ports.Synthesizer
	Navigator   ports.Navigator
	Events      ports.EventSink
}

// Pipeline connects capture, confirmation and dispatch into one
// single-session voice query flow.
type Pipeline struct {
	ctx      context.Context
	rt       Runtime
	capture  *CaptureController
	gate     *ConfirmationGate
	resolver *DispatchResolver
}

// NewPipeline builds the pipeline. ctx bounds timer-driven dispatches.
func NewPipeline(ctx context.Context, deps Dependencies, cfg Config, rt Runtime) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	rt = rt.withDefaults()

	p := &Pipeline{ctx: ctx, rt: rt}
	p.resolver = NewDispatchResolver(
		deps.Classifier,
		deps.Normalizer,
		deps.Synthesizer,
		deps.Navigator,
		cfg.Dispatch,
		rt,
	)
	p.gate = NewConfirmationGate(deps.Events, p.resolver.Resolve, cfg.Confirmation, rt)
	p.capture = NewCaptureController(deps.Recognizer, deps.Events, cfg.Capture, rt, p.handleFinal)
	return p
}

// StartListening opens a capture session unless a query is awaiting confirmation.
func (p *Pipeline) StartListening(ctx context.Context) error {
	if p.gate.State().Phase != domain.GatePhaseClosed {
		return ErrConfirmationPending
	}
	return p.capture.Start(ctx)
}

// StopListening ends the capture session, if any.
func (p *Pipeline) StopListening() error {
	return p.capture.Stop()
}

// ToggleListening mirrors the microphone button.
func (p *Pipeline) ToggleListening(ctx context.Context) error {
	if p.capture.Listening() {
		return p.capture.Stop()
	}
	return p.StartListening(ctx)
}

// Confirm dispatches the pending query.
func (p *Pipeline) Confirm(ctx context.Context) error {
	return p.gate.Confirm(ctx)
}

// Cancel discards the pending query.
func (p *Pipeline) Cancel() {
	p.gate.Cancel()
}

// Status returns the current pipeline status.
func (p *Pipeline) Status() domain.Status {
	capture := p.capture.Status()
	return domain.Status{
		Capture:      capture,
		Listening:    capture == domain.CaptureStateListening,
		Confirmation: p.gate.State(),
	}
}

func (p *Pipeline) handleFinal(transcript domain.FinalTranscript) {
	if err := p.gate.Open(p.ctx, transcript); err != nil {
		p.rt.Logger.Warn("pipeline_confirmation_rejected", "session_id", transcript.SessionID, "error", err)
	}
}
