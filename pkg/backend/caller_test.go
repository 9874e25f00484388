package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// scriptedBackend answers with a fixed status sequence, then repeats the
// last entry.
type scriptedBackend struct {
	mu       sync.Mutex
	statuses []int
	bodies   []string
	calls    int
}

func (b *scriptedBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		i := b.calls
		if i >= len(b.statuses) {
			i = len(b.statuses) - 1
		}
		b.calls++
		status, body := b.statuses[i], b.bodies[i]
		b.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func (b *scriptedBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// recordedSleeps swaps the caller's sleep for one that records durations
// without waiting.
func recordedSleeps(c *Caller) *[]time.Duration {
	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return &sleeps
}

func TestPostRetriesThenSucceeds(t *testing.T) {
	backend := &scriptedBackend{
		statuses: []int{http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusOK},
		bodies:   []string{`{}`, `{}`, `{"response":"ok"}`},
	}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	caller := NewCaller(server.Client(), nil)
	sleeps := recordedSleeps(caller)

	body, err := caller.Post(context.Background(), Request{URL: server.URL, Payload: map[string]string{}, Label: "message"})
	if err != nil {
		t.Fatalf("Post error: %v", err)
	}
	if string(body) != `{"response":"ok"}` {
		t.Fatalf("Post body = %s, want response ok", body)
	}
	if backend.callCount() != 3 {
		t.Fatalf("call count = %d, want 3", backend.callCount())
	}
	if len(*sleeps) != 2 || (*sleeps)[0] != time.Second || (*sleeps)[1] != 2*time.Second {
		t.Fatalf("sleeps = %v, want [1s 2s]", *sleeps)
	}
}

func TestPostExhaustsAttempts(t *testing.T) {
	backend := &scriptedBackend{
		statuses: []int{http.StatusBadGateway},
		bodies:   []string{`{}`},
	}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	caller := NewCaller(server.Client(), nil)
	sleeps := recordedSleeps(caller)

	_, err := caller.Post(context.Background(), Request{URL: server.URL, Payload: map[string]string{}, Label: "message"})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusBadGateway {
		t.Fatalf("error = %v, want wrapped 502 StatusError", err)
	}
	if backend.callCount() != 3 {
		t.Fatalf("call count = %d, want 3", backend.callCount())
	}
	if len(*sleeps) != 2 {
		t.Fatalf("sleeps = %v, want two backoffs", *sleeps)
	}
}

func TestPostNonRetryableStatusFailsImmediately(t *testing.T) {
	backend := &scriptedBackend{
		statuses: []int{http.StatusNotFound},
		bodies:   []string{`{}`},
	}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	caller := NewCaller(server.Client(), nil)
	sleeps := recordedSleeps(caller)

	_, err := caller.Post(context.Background(), Request{URL: server.URL, Payload: map[string]string{}, Label: "message"})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusNotFound {
		t.Fatalf("error = %v, want 404 StatusError", err)
	}
	if backend.callCount() != 1 {
		t.Fatalf("call count = %d, want 1", backend.callCount())
	}
	if len(*sleeps) != 0 {
		t.Fatalf("sleeps = %v, want none", *sleeps)
	}
}

func TestPostMissingResponseFieldIsFatal(t *testing.T) {
	backend := &scriptedBackend{
		statuses: []int{http.StatusOK},
		bodies:   []string{`{"unexpected":"shape"}`},
	}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	caller := NewCaller(server.Client(), nil)

	_, err := caller.Post(context.Background(), Request{URL: server.URL, Payload: map[string]string{}, Label: "message"})

	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("error = %v, want ProtocolError", err)
	}
	if protoErr.Field != "response" {
		t.Fatalf("ProtocolError.Field = %q, want %q", protoErr.Field, "response")
	}
	if backend.callCount() != 1 {
		t.Fatalf("call count = %d, want 1", backend.callCount())
	}
}

func TestPostCustomResponseField(t *testing.T) {
	backend := &scriptedBackend{
		statuses: []int{http.StatusOK},
		bodies:   []string{`{"content":"extracted"}`},
	}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	caller := NewCaller(server.Client(), nil)

	body, err := caller.Post(context.Background(), Request{URL: server.URL, Payload: map[string]string{}, Label: "document", ResponseField: "content"})
	if err != nil {
		t.Fatalf("Post error: %v", err)
	}
	if string(body) != `{"content":"extracted"}` {
		t.Fatalf("Post body = %s", body)
	}
}

func TestPostBudgetSkipsBackoff(t *testing.T) {
	backend := &scriptedBackend{
		statuses: []int{http.StatusServiceUnavailable},
		bodies:   []string{`{}`},
	}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	caller := NewCaller(server.Client(), nil)
	sleeps := recordedSleeps(caller)

	// Every clock read advances 10s: the first retryable failure leaves no
	// budget for the 1s backoff, so the loop gives up after one attempt.
	clock := time.Unix(0, 0)
	caller.now = func() time.Time {
		clock = clock.Add(10 * time.Second)
		return clock
	}

	_, err := caller.Post(context.Background(), Request{URL: server.URL, Payload: map[string]string{}, Label: "message"})
	if err == nil {
		t.Fatal("expected error when budget is exhausted")
	}
	if backend.callCount() != 1 {
		t.Fatalf("call count = %d, want 1", backend.callCount())
	}
	if len(*sleeps) != 0 {
		t.Fatalf("sleeps = %v, want none", *sleeps)
	}
}

func TestPostConnectFailureIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	caller := NewCaller(nil, nil)
	sleeps := recordedSleeps(caller)

	_, err := caller.Post(context.Background(), Request{URL: url, Payload: map[string]string{}, Label: "message"})
	if err == nil {
		t.Fatal("expected error for unreachable backend")
	}
	if len(*sleeps) != 2 {
		t.Fatalf("sleeps = %v, want two backoffs", *sleeps)
	}
}
