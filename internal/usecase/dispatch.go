package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"voicequery/internal/domain"
	"voicequery/internal/errorsx"
	"voicequery/internal/ports"
)

const (
	DefaultBackendOrigin = "http://127.0.0.1:8000"
	DefaultViewerRoute   = "/bot"
	DefaultAckDelay      = 2500 * time.Millisecond
)

const dispatchAlertMessage = "Sorry, that request could not be processed. Please try again."

var ErrEmptyRoute = errors.New("classification returned an empty url")

// DispatchConfig controls how confirmed queries are resolved.
type DispatchConfig struct {
	BackendOrigin string
	ViewerRoute   string
	AckPhrase     string
	AckDelay      time.Duration
}

// DispatchResolver classifies a confirmed query and navigates to the result.
type DispatchResolver struct {
	classifier  ports.Classifier
	normalizer  ports.QueryNormalizer
	synthesizer ports.Synthesizer
	navigator   ports.Navigator
	cfg         DispatchConfig
	clock       clockwork.Clock
	log         *slog.Logger
}

// NewDispatchResolver wires a resolver. normalizer and synthesizer may be nil.
func NewDispatchResolver(
	classifier ports.Classifier,
	normalizer ports.QueryNormalizer,
	synthesizer ports.Synthesizer,
	navigator ports.Navigator,
	cfg DispatchConfig,
	rt Runtime,
) *DispatchResolver {
	if cfg.BackendOrigin == "" {
		cfg.BackendOrigin = DefaultBackendOrigin
	}
	if cfg.ViewerRoute == "" {
		cfg.ViewerRoute = DefaultViewerRoute
	}
	if cfg.AckDelay < 0 {
		cfg.AckDelay = 0
	}
	rt = rt.withDefaults()
	return &DispatchResolver{
		classifier:  classifier,
		normalizer:  normalizer,
		synthesizer: synthesizer,
		navigator:   navigator,
		cfg:         cfg,
		clock:       rt.Clock,
		log:         rt.Logger,
	}
}

// Resolve sends text to the classifier and navigates to the routing decision.
func (r *DispatchResolver) Resolve(ctx context.Context, text string) (err error) {
	ctx, span := tracer.Start(ctx, "dispatch resolve")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	query := r.normalize(text)
	span.SetAttributes(attribute.String("query", query))

	decision, err := r.classifier.Classify(ctx, query)
	if err != nil {
		r.log.Error("dispatch_classify_failed", "query", query, "error", err)
		return errorsx.Wrap(fmt.Errorf("classify query: %w", err), domain.ErrorCodeDispatch)
	}

	route, err := ResolveRoute(decision, r.cfg.BackendOrigin, r.cfg.ViewerRoute)
	if err != nil {
		r.log.Error("dispatch_route_invalid", "query", query, "url", decision.URL, "error", err)
		return errorsx.Wrap(err, domain.ErrorCodeDispatch)
	}
	span.SetAttributes(
		attribute.Bool("decision.frontend", decision.IsFrontend),
		attribute.String("route", route),
	)

	if err := r.acknowledge(ctx); err != nil {
		return errorsx.Wrap(fmt.Errorf("acknowledge query: %w", err), domain.ErrorCodeDispatch)
	}

	if err := r.navigator.Navigate(ctx, route); err != nil {
		r.log.Error("dispatch_navigate_failed", "route", route, "error", err)
		return errorsx.Wrap(fmt.Errorf("navigate to %q: %w", route, err), domain.ErrorCodeDispatch)
	}

	r.log.Info("dispatch_navigated", "query", query, "route", route, "frontend", decision.IsFrontend)
	return nil
}

func (r *DispatchResolver) normalize(text string) string {
	text = strings.TrimSpace(text)
	if r.normalizer == nil {
		return text
	}
	normalized, err := r.normalizer.Apply(text)
	if err != nil {
		r.log.Warn("dispatch_normalize_failed", "error", err)
		return text
	}
	if normalized = strings.TrimSpace(normalized); normalized == "" {
		return text
	}
	return normalized
}

// acknowledge speaks the acknowledgement phrase, if possible, and then waits
// so the user perceives a response before the view changes.
func (r *DispatchResolver) acknowledge(ctx context.Context) error {
	if r.synthesizer != nil && r.cfg.AckPhrase != "" {
		if err := r.synthesizer.Speak(ctx, r.cfg.AckPhrase); err != nil {
			r.log.Warn("dispatch_ack_speech_failed", "error", err)
		}
	}
	if r.cfg.AckDelay == 0 {
		return nil
	}

	timer := r.clock.NewTimer(r.cfg.AckDelay)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResolveRoute turns a routing decision into an application route. Frontend
// routes are used verbatim; anything else is opened through the response
// viewer with the backend URL as its url query parameter.
func ResolveRoute(decision domain.RoutingDecision, origin string, viewerRoute string) (string, error) {
	target := strings.TrimSpace(decision.URL)
	if target == "" {
		return "", ErrEmptyRoute
	}
	if decision.IsFrontend {
		return target, nil
	}
	if viewerRoute == "" {
		viewerRoute = DefaultViewerRoute
	}
	return viewerRoute + "?url=" + encodeComponent(joinOrigin(origin, target)), nil
}

func joinOrigin(origin string, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin == "" {
		origin = DefaultBackendOrigin
	}
	return origin + "/" + strings.TrimLeft(path, "/")
}

// componentUnescaper undoes QueryEscape where encodeURIComponent differs.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// encodeComponent escapes like encodeURIComponent, so spaces become %20
// and !'()* stay literal.
func encodeComponent(value string) string {
	return componentUnescaper.Replace(url.QueryEscape(value))
}
