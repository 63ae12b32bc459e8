// Package textai is the client for an OpenAI-compatible embeddings and chat completions API.
//
// Every call holds one slot of a FIFO semaphore for its whole retry loop, so at most
// Concurrency calls are in flight and waiters are served in arrival order. Each attempt
// carries its own timeout. Rate limiting, when configured, is applied per attempt.
package textai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"writing-comparator/internal/domain"
	"writing-comparator/internal/infra/config"
	"writing-comparator/internal/infra/httpclient"
	"writing-comparator/internal/infra/metrics"
	"writing-comparator/internal/infra/telemetry"
)

const (
	opEmbed    = "embed"
	opComplete = "complete"

	maxErrorBody = 500
)

// Client implements domain.TextProvider.
type Client struct {
	baseURL    string
	apiKey     string
	embedModel string
	chatModel  string

	httpClient *http.Client
	sem        *semaphore.Weighted
	limiter    *rate.Limiter
	logger     *slog.Logger

	maxAttempts      int
	requestTimeout   time.Duration
	embedTimeout     time.Duration
	embedBatch       int
	defaultMaxTokens int

	backoff func(attempt int) time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBackoff replaces the delay computed before retry number attempt (1-based).
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(c *Client) { c.backoff = fn }
}

// NewClient builds a client from provider configuration.
func NewClient(cfg config.ProviderConfig, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := max(1, cfg.Concurrency)

	c := &Client{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:           cfg.APIKey,
		embedModel:       cfg.EmbedModel,
		chatModel:        cfg.ChatModel,
		httpClient:       httpclient.NewPooledClient(0),
		sem:              semaphore.NewWeighted(int64(concurrency)),
		logger:           logger,
		maxAttempts:      max(1, cfg.MaxAttempts),
		requestTimeout:   msOr(cfg.TimeoutMs, 20*time.Second),
		embedTimeout:     msOr(cfg.EmbedTimeoutMs, 15*time.Second),
		embedBatch:       max(1, cfg.EmbedBatch),
		defaultMaxTokens: cfg.MaxTokens,
		backoff:          exponentialBackoff,
	}
	if c.defaultMaxTokens <= 0 {
		c.defaultMaxTokens = 800
	}
	if cfg.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), concurrency)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EmbedModel names the model vectors are produced with.
func (c *Client) EmbedModel() string {
	return c.embedModel
}

func msOr(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// exponentialBackoff waits 2^attempt seconds plus up to one second of jitter.
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<attempt)*time.Second + rand.N(time.Second)
}

// attemptError describes one failed attempt.
type attemptError struct {
	status    int
	transient bool
	reason    string
	err       error
}

// call POSTs payload to path and hands a successful body to decode. decode errors
// are terminal.
func (c *Client) call(ctx context.Context, op, path string, payload any, timeout time.Duration, decode func([]byte) error) error {
	ctx, span := telemetry.Tracer().Start(ctx, "textai."+op)
	defer span.End()
	span.SetAttributes(attribute.String("textai.path", path))

	start := time.Now()
	err := c.callLimited(ctx, op, path, payload, timeout, decode)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.RecordProviderCall(op, status, time.Since(start).Seconds())
	return err
}

func (c *Client) callLimited(ctx context.Context, op, path string, payload any, timeout time.Duration, decode func([]byte) error) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &domain.ProviderError{Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	metrics.ProviderQueueDepth.Inc()
	err = c.sem.Acquire(ctx, 1)
	metrics.ProviderQueueDepth.Dec()
	if err != nil {
		return &domain.ProviderError{Op: op, Err: err}
	}
	defer c.sem.Release(1)

	var (
		last       *attemptError
		tries      int
		limiterErr error
	)
	operation := func() (struct{}, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				limiterErr = err
				return struct{}{}, backoff.Permanent(err)
			}
		}
		tries++
		last = c.attempt(ctx, path, body, timeout, decode)
		switch {
		case last == nil:
			return struct{}{}, nil
		case ctx.Err() != nil:
			return struct{}{}, backoff.Permanent(ctx.Err())
		case !last.transient:
			return struct{}{}, backoff.Permanent(last.err)
		}
		return struct{}{}, last.err
	}
	notify := func(err error, wait time.Duration) {
		metrics.RecordRetry(op, last.reason)
		c.logger.WarnContext(ctx, "provider_retry_scheduled",
			slog.String("op", op),
			slog.Int("attempt", tries),
			slog.Int("max_attempts", c.maxAttempts),
			slog.Int("status", last.status),
			slog.String("reason", last.reason),
			slog.Int64("backoff_ms", wait.Milliseconds()),
			slog.String("error", err.Error()))
	}

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(&attemptBackOff{delay: c.backoff}),
		backoff.WithMaxTries(uint(c.maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	switch {
	case err == nil:
		return nil
	case limiterErr != nil:
		status := 0
		if last != nil {
			status = last.status
		}
		return &domain.ProviderError{Op: op, Status: status, Attempts: tries, Err: limiterErr}
	case last == nil:
		return &domain.ProviderError{Op: op, Attempts: tries, Err: err}
	case ctx.Err() != nil:
		return &domain.ProviderError{Op: op, Status: last.status, Attempts: tries, Err: err}
	case !last.transient:
		return &domain.ProviderError{Op: op, Status: last.status, Attempts: tries, Err: last.err}
	}

	c.logger.ErrorContext(ctx, "provider_call_failed",
		slog.String("op", op),
		slog.Int("attempts", tries),
		slog.Int("status", last.status),
		slog.String("error", last.err.Error()))
	return &domain.ProviderError{Op: op, Status: last.status, Transient: true, Attempts: tries, Err: last.err}
}

// attemptBackOff feeds the 1-based retry number to delay. backoff.Retry calls
// NextBackOff once per failed attempt.
type attemptBackOff struct {
	attempt int
	delay   func(attempt int) time.Duration
}

func (b *attemptBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.delay(b.attempt)
}

func (b *attemptBackOff) Reset() { b.attempt = 0 }

func (c *Client) attempt(ctx context.Context, path string, body []byte, timeout time.Duration, decode func([]byte) error) *attemptError {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &attemptError{err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		reason := "transport"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		return &attemptError{transient: true, reason: reason, err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &attemptError{status: resp.StatusCode, transient: true, reason: "transport", err: fmt.Errorf("failed to read response: %w", err)}
	}

	html := isHTML(respBody)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ae := &attemptError{
			status: resp.StatusCode,
			err:    fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(respBody), maxErrorBody)),
		}
		switch {
		case html:
			ae.transient, ae.reason = true, "html"
		case resp.StatusCode == http.StatusTooManyRequests:
			ae.transient, ae.reason = true, "rate_limited"
		case resp.StatusCode >= 500:
			ae.transient, ae.reason = true, "server_error"
		}
		return ae
	}
	if html {
		return &attemptError{status: resp.StatusCode, transient: true, reason: "html", err: errors.New("html error page in place of json")}
	}

	if err := decode(respBody); err != nil {
		return &attemptError{status: resp.StatusCode, err: err}
	}
	return nil
}

// isHTML detects proxy error pages served in place of JSON.
func isHTML(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return bytes.HasPrefix(trimmed, []byte("<!DOCTYPE html>")) || bytes.Contains(body, []byte("<title>api.openai.com"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ domain.TextProvider = (*Client)(nil)
