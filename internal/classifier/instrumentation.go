package classifier

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "voicequery/internal/classifier"

var tracer = otel.Tracer(scopeName)
