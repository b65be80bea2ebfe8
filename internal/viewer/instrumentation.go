package viewer

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "voicequery/internal/viewer"

var tracer = otel.Tracer(scopeName)
