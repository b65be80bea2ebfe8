package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"voicequery/internal/domain"
)

const (
	DefaultBaseURL  = "http://127.0.0.1:8888"
	DefaultTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20
)

var ErrNoRoute = errors.New("classifier returned no url")

// Config points the client at the query classification service.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client asks the classification service where a spoken query should go.
type Client struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
	log      *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/api",
		timeout:  cfg.Timeout,
		http:     &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		log:      logger,
	}
}

type request struct {
	Query string `json:"query"`
}

// Classify posts the query and decodes the routing decision.
func (c *Client) Classify(ctx context.Context, query string) (decision domain.RoutingDecision, err error) {
	ctx, span := tracer.Start(ctx, "classify", trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(attribute.String("query", query))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(request{Query: query})
	if err != nil {
		return domain.RoutingDecision{}, fmt.Errorf("encode query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.RoutingDecision{}, fmt.Errorf("create classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.RoutingDecision{}, fmt.Errorf("send classify request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return domain.RoutingDecision{}, fmt.Errorf("read classify response: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.RoutingDecision{}, fmt.Errorf("classifier responded %d: %s", resp.StatusCode, snippet(payload))
	}

	decision, err = decodeDecision(payload)
	if err != nil {
		return domain.RoutingDecision{}, err
	}

	c.log.Debug("classifier_decision", "query", query, "url", decision.URL, "frontend", decision.IsFrontend)
	return decision, nil
}

// decodeDecision accepts loosely shaped responses: key case and separators
// are ignored and scalar types are coerced.
func decodeDecision(payload []byte) (domain.RoutingDecision, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return domain.RoutingDecision{}, fmt.Errorf("decode classify response: %w", err)
	}

	for key, value := range raw {
		if normalizeKey(key) == "error" && value != nil {
			return domain.RoutingDecision{}, fmt.Errorf("classifier error: %v", value)
		}
	}

	var decision domain.RoutingDecision
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &decision,
		WeaklyTypedInput: true,
		MatchName: func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		},
	})
	if err != nil {
		return domain.RoutingDecision{}, fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return domain.RoutingDecision{}, fmt.Errorf("decode routing decision: %w", err)
	}

	decision.URL = strings.TrimSpace(decision.URL)
	if decision.URL == "" {
		return domain.RoutingDecision{}, ErrNoRoute
	}
	return decision, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(key))
}

func snippet(payload []byte) string {
	text := strings.TrimSpace(string(payload))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}
