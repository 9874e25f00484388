package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	maxAttempts          = 3
	defaultTimeout       = 30 * time.Second
	defaultBudget        = 30 * time.Second
	defaultResponseField = "response"
)

var retryableStatus = map[int]bool{
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// Request describes one logical backend call. Constructed fresh per call,
// never reused.
type Request struct {
	URL       string
	Payload   any
	Label     string
	RequestID string

	// Per-attempt timeout and total wall-clock budget; zero values take
	// the 30s defaults.
	Timeout time.Duration
	Budget  time.Duration

	// ResponseField must be present in the parsed body for the call to
	// count as a success. Defaults to "response".
	ResponseField string

	// AuthHeader, when non-empty, is sent as the Authorization header.
	AuthHeader string
}

// Caller performs retry-budgeted POSTs against the backend. It holds no
// per-call state; one Caller is shared by every gateway operation.
type Caller struct {
	client *http.Client
	log    *slog.Logger

	// Overridable in tests.
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewCaller builds a Caller on a shared HTTP connection pool.
func NewCaller(client *http.Client, log *slog.Logger) *Caller {
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = slog.Default()
	}

	return &Caller{
		client: client,
		log:    log.With("component", "backend.caller"),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// attemptOutcome is the classified result of one HTTP attempt. The retry
// loop branches on the tag, not on error types.
type attemptOutcome struct {
	body      json.RawMessage
	err       error
	retryable bool
}

// Post runs up to three POST attempts within the request's time budget and
// returns the raw JSON body once it contains the expected field.
//
// Transient failures (network errors, 502/503/504) back off 2^attempt
// seconds between attempts, skipping the sleep when it would overrun the
// budget. Any other non-2xx status or a contract-violating 2xx body fails
// immediately.
func (c *Caller) Post(ctx context.Context, req Request) (json.RawMessage, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	budget := req.Budget
	if budget <= 0 {
		budget = defaultBudget
	}
	field := req.ResponseField
	if field == "" {
		field = defaultResponseField
	}

	encoded, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", req.Label, err)
	}

	log := c.log.With("request_id", req.RequestID, "label", req.Label)
	start := c.now()
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		elapsed := c.now().Sub(start)
		if elapsed >= budget {
			log.Warn("Retry budget exhausted", "elapsed", elapsed, "attempts", attempt)
			break
		}

		log.Info("Agent request start", "url", req.URL, "attempt", attempt+1)
		attemptStart := c.now()

		outcome := c.attempt(ctx, req.URL, encoded, req.AuthHeader, timeout, req.Label, field)
		if outcome.err == nil {
			log.Info("Agent response received", "attempt", attempt+1, "latency_ms", c.now().Sub(attemptStart).Milliseconds())
			return outcome.body, nil
		}

		if !outcome.retryable {
			log.Error("Non-retryable backend error", "error", outcome.err)
			return nil, outcome.err
		}

		lastErr = outcome.err
		log.Warn("Retryable backend error", "attempt", attempt+1, "error", outcome.err)

		if attempt < maxAttempts-1 {
			backoff := time.Duration(1<<attempt) * time.Second
			remaining := budget - c.now().Sub(start)
			if backoff > remaining {
				log.Warn("Skipping backoff sleep, would exceed time budget", "backoff", backoff, "remaining", remaining)
				break
			}

			log.Info("Sleeping before retry", "backoff", backoff)
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("backend %s request failed after retries: %w", req.Label, lastErr)
	}

	// The loop above always records an error before falling through; hitting
	// this line means the retry state machine itself is broken.
	return nil, fmt.Errorf("backend %s request ended with no attempts and no error", req.Label)
}

// attempt issues one POST and classifies the outcome.
func (c *Caller) attempt(ctx context.Context, url string, payload []byte, authHeader string, timeout time.Duration, label, field string) attemptOutcome {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return attemptOutcome{err: fmt.Errorf("build %s request: %w", label, err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		httpReq.Header.Set("Authorization", authHeader)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// Connect failures and timeouts are transient by definition.
		return attemptOutcome{err: fmt.Errorf("%s request: %w", label, err), retryable: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return attemptOutcome{err: fmt.Errorf("read %s response: %w", label, err), retryable: true}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Status: resp.StatusCode, Label: label}
		return attemptOutcome{err: statusErr, retryable: statusErr.Retryable()}
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(body, &parsed); err != nil {
		return attemptOutcome{err: &ProtocolError{Label: label, cause: err}}
	}
	if _, ok := parsed[field]; !ok {
		return attemptOutcome{err: &ProtocolError{Label: label, Field: field}}
	}

	return attemptOutcome{body: body}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
