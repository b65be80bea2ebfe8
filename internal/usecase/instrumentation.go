package usecase

import (
	"log/slog"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
)

const scopeName = "voicequery/internal/usecase"

var tracer = otel.Tracer(scopeName)

// Runtime carries the clock and logger shared by pipeline components.
type Runtime struct {
	Clock  clockwork.Clock
	Logger *slog.Logger
}

func (r Runtime) withDefaults() Runtime {
	if r.Clock == nil {
		r.Clock = clockwork.NewRealClock()
	}
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
	return r
}
