// Package requester sends JSON payloads to an HTTP endpoint and retries
// transient failures with exponential backoff.
package requester

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultRetries      = 3
	DefaultInitialDelay = time.Second

	// maxErrorBody caps how much of an error response is kept on UpstreamError
	maxErrorBody = 512
)

// Doer is the subset of *http.Client used to send requests
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to the Doer interface
type DoerFunc func(req *http.Request) (*http.Response, error)

func (f DoerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Policy controls how a Requester retries
type Policy struct {
	Retries      int              // retries after the first attempt
	InitialDelay time.Duration    // wait before the first retry, doubled after each
	Retryable    func(error) bool // nil means RetryTransient
	Limiter      *rate.Limiter    // optional, waited on before every attempt
	OnRetry      func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy returns 3 retries starting at one second
func DefaultPolicy() Policy {
	return Policy{
		Retries:      DefaultRetries,
		InitialDelay: DefaultInitialDelay,
		Retryable:    RetryTransient,
	}
}

// Requester posts JSON payloads with retry and backoff
type Requester struct {
	client  Doer
	policy  Policy
	headers http.Header
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures a Requester
type Option func(*Requester)

// WithHeader sets a header sent on every attempt
func WithHeader(key, value string) Option {
	return func(r *Requester) {
		r.headers.Set(key, value)
	}
}

// WithBearerToken sets the Authorization header
func WithBearerToken(token string) Option {
	return WithHeader("Authorization", "Bearer "+token)
}

// WithSleep replaces the wait between attempts
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Requester) {
		r.sleep = sleep
	}
}

// New creates a Requester. A nil client uses http.DefaultClient and a nil
// logger uses slog.Default().
func New(client Doer, policy Policy, logger *slog.Logger, opts ...Option) *Requester {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if policy.Retries < 0 {
		policy.Retries = 0
	}
	if policy.Retryable == nil {
		policy.Retryable = RetryTransient
	}

	r := &Requester{
		client:  client,
		policy:  policy,
		headers: make(http.Header),
		logger:  logger,
		sleep:   sleepContext,
	}
	r.headers.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the retry policy in use
func (r *Requester) Policy() Policy {
	return r.policy
}

// Send marshals payload, posts it to endpoint and returns the response body
// of the first successful attempt. When every attempt fails the last
// *NetworkError or *UpstreamError is returned. Cancelling ctx aborts both
// in-flight attempts and backoff waits.
func (r *Requester) Send(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	retriesRemaining := r.policy.Retries
	currentDelay := r.policy.InitialDelay

	for attempt := 1; ; attempt++ {
		if r.policy.Limiter != nil {
			if err := r.policy.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		body, err := r.attempt(ctx, endpoint, data)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("request succeeded after retry", "endpoint", endpoint, "attempts", attempt)
			}
			return body, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if retriesRemaining == 0 || !r.policy.Retryable(err) {
			r.logger.Error("request failed", "endpoint", endpoint, "attempts", attempt, "error", err)
			return nil, err
		}

		r.logger.Warn("retrying request", "endpoint", endpoint, "attempt", attempt, "delay", currentDelay, "error", err)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, currentDelay, err)
		}
		if err := r.sleep(ctx, currentDelay); err != nil {
			return nil, err
		}

		retriesRemaining--
		currentDelay *= 2
	}
}

// attempt performs a single POST
func (r *Requester) attempt(ctx context.Context, endpoint string, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range r.headers {
		req.Header[key] = append([]string(nil), values...)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
