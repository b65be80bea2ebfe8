package viewer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultTimeout  = 15 * time.Second
	maxResponseSize = 8 << 20
)

// Fetcher loads backend responses for the viewer.
type Fetcher struct {
	http    *http.Client
	timeout time.Duration
	log     *slog.Logger
}

func NewFetcher(timeout time.Duration, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout: timeout,
		log:     logger,
	}
}

// Fetch issues GET target and lays the JSON response out as a table.
func (f *Fetcher) Fetch(ctx context.Context, target string) (table Table, err error) {
	ctx, span := tracer.Start(ctx, "viewer fetch", trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(attribute.String("url", target))

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Table{}, fmt.Errorf("create viewer request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return Table{}, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Table{}, fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Table{}, fmt.Errorf("read %s: %w", target, err)
	}

	table, err = BuildTable(payload)
	if err != nil {
		return Table{}, err
	}
	f.log.Debug("viewer_fetched", "url", target, "columns", len(table.Columns), "rows", len(table.Rows))
	return table, nil
}

// TargetFromRoute extracts the backend URL from a viewer route such as
// "/bot?url=http%3A%2F%2F...". It reports false for other routes.
func TargetFromRoute(route string, viewerRoute string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(route))
	if err != nil {
		return "", false
	}
	if strings.TrimRight(parsed.Path, "/") != strings.TrimRight(viewerRoute, "/") {
		return "", false
	}
	target := strings.TrimSpace(parsed.Query().Get("url"))
	return target, target != ""
}
