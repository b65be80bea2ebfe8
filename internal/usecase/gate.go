package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"voicequery/internal/domain"
	"voicequery/internal/errorsx"
	"voicequery/internal/ports"
)

const (
	DefaultConfirmationWindow = 3 * time.Second
	DefaultTickRate           = 60
)

var (
	ErrConfirmationPending   = errors.New("a spoken query is already awaiting confirmation")
	ErrNoPendingConfirmation = errors.New("no spoken query is awaiting confirmation")
)

// Dispatcher consumes a confirmed transcript.
type Dispatcher func(ctx context.Context, text string) error

// GateConfig controls the confirmation countdown.
type GateConfig struct {
	Window   time.Duration
	TickRate int
}

// ConfirmationGate holds a final transcript for review and dispatches it on
// confirmation or when the countdown runs out.
type ConfirmationGate struct {
	events   ports.EventSink
	dispatch Dispatcher
	cfg      GateConfig
	clock    clockwork.Clock
	log      *slog.Logger

	mu         sync.Mutex
	generation uint64
	state      domain.ConfirmationState
	transcript domain.FinalTranscript
	ctx        context.Context
	openedAt   time.Time
	ticker     clockwork.Ticker
	stop       chan struct{}
}

func NewConfirmationGate(events ports.EventSink, dispatch Dispatcher, cfg GateConfig, rt Runtime) *ConfirmationGate {
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfirmationWindow
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}
	rt = rt.withDefaults()
	return &ConfirmationGate{
		events:   events,
		dispatch: dispatch,
		cfg:      cfg,
		clock:    rt.Clock,
		log:      rt.Logger,
		state:    domain.ClosedConfirmation(),
	}
}

// Open starts the countdown for a transcript. ctx is used for auto-confirm.
func (g *ConfirmationGate) Open(ctx context.Context, transcript domain.FinalTranscript) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g.mu.Lock()
	if g.state.Phase != domain.GatePhaseClosed {
		g.mu.Unlock()
		return ErrConfirmationPending
	}

	g.generation++
	generation := g.generation
	g.transcript = transcript
	g.ctx = ctx
	g.openedAt = g.clock.Now()
	g.state = g.sampleLocked(g.cfg.Window)
	ticker := g.clock.NewTicker(time.Second / time.Duration(g.cfg.TickRate))
	stop := make(chan struct{})
	g.ticker = ticker
	g.stop = stop
	state := g.state
	g.mu.Unlock()

	g.log.Info("confirmation_opened", "session_id", transcript.SessionID, "window", g.cfg.Window)
	g.events.ConfirmationChanged(state)

	go g.run(generation, ticker, stop)
	return nil
}

// Confirm dispatches the pending transcript. The gate is closed afterwards
// whatever the dispatch outcome; a dispatch error raises one alert.
func (g *ConfirmationGate) Confirm(ctx context.Context) error {
	g.mu.Lock()
	generation := g.generation
	g.mu.Unlock()
	return g.confirm(ctx, generation)
}

// Cancel discards the pending transcript without dispatching it.
func (g *ConfirmationGate) Cancel() {
	g.mu.Lock()
	if g.state.Phase != domain.GatePhaseOpen {
		g.mu.Unlock()
		return
	}
	sessionID := g.transcript.SessionID
	g.stopTickerLocked()
	g.resetLocked()
	state := g.state
	g.mu.Unlock()

	g.log.Info("confirmation_cancelled", "session_id", sessionID)
	g.events.ConfirmationChanged(state)
}

// State returns the current confirmation state.
func (g *ConfirmationGate) State() domain.ConfirmationState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *ConfirmationGate) run(generation uint64, ticker clockwork.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if !g.tick(generation) {
				return
			}
		}
	}
}

// tick publishes the countdown and reports whether the gate is still counting.
func (g *ConfirmationGate) tick(generation uint64) bool {
	g.mu.Lock()
	if g.generation != generation || g.state.Phase != domain.GatePhaseOpen {
		g.mu.Unlock()
		return false
	}
	remaining := g.cfg.Window - g.clock.Since(g.openedAt)
	g.state = g.sampleLocked(remaining)
	state := g.state
	ctx := g.ctx
	g.mu.Unlock()

	g.events.ConfirmationChanged(state)
	if state.ProgressFraction > 0 {
		return true
	}

	g.log.Info("confirmation_auto_confirm")
	_ = g.confirm(ctx, generation)
	return false
}

func (g *ConfirmationGate) confirm(ctx context.Context, generation uint64) error {
	g.mu.Lock()
	if g.generation != generation || g.state.Phase != domain.GatePhaseOpen {
		g.mu.Unlock()
		return ErrNoPendingConfirmation
	}
	g.stopTickerLocked()
	g.state.Phase = domain.GatePhaseDispatching
	transcript := g.transcript
	state := g.state
	g.mu.Unlock()

	g.events.ConfirmationChanged(state)

	var err error
	if g.dispatch != nil {
		err = g.dispatch(ctx, transcript.Text)
	}

	g.mu.Lock()
	g.resetLocked()
	state = g.state
	g.mu.Unlock()

	g.events.ConfirmationChanged(state)

	if err != nil {
		g.log.Error("confirmation_dispatch_failed", "session_id", transcript.SessionID, "error", err)
		g.events.Alert(domain.ErrorCodeDispatch, dispatchAlertMessage)
		return errorsx.Wrap(err, domain.ErrorCodeDispatch)
	}
	g.log.Info("confirmation_dispatched", "session_id", transcript.SessionID)
	return nil
}

// sampleLocked derives both countdown values from one remaining-time sample
// so the number and the progress ring reach zero on the same tick.
func (g *ConfirmationGate) sampleLocked(remaining time.Duration) domain.ConfirmationState {
	if remaining < 0 {
		remaining = 0
	}
	return domain.ConfirmationState{
		Phase:            domain.GatePhaseOpen,
		Transcript:       g.transcript.Text,
		SecondsRemaining: int((remaining + time.Second - 1) / time.Second),
		ProgressFraction: float64(remaining) / float64(g.cfg.Window),
	}
}

func (g *ConfirmationGate) stopTickerLocked() {
	if g.ticker != nil {
		g.ticker.Stop()
		g.ticker = nil
	}
	if g.stop != nil {
		close(g.stop)
		g.stop = nil
	}
}

func (g *ConfirmationGate) resetLocked() {
	g.state = domain.ClosedConfirmation()
	g.transcript = domain.FinalTranscript{}
	g.ctx = nil
}
