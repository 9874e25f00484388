package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tgrelay/pkg/queue"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestServer(t *testing.T, updates *queue.UpdateQueue) *Server {
	t.Helper()
	return New(Options{
		Port:          0,
		WebhookPath:   "/telegram/webhook",
		WebhookSecret: testSecret,
		Updates:       updates,
	})
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, queue.New(1))

	for _, path := range []string{"/healthz", "/health"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, rec.Code)
		}

		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("GET %s body decode: %v", path, err)
		}
		if body["status"] != "ok" {
			t.Fatalf("GET %s body = %v", path, body)
		}
	}
}

type fixedStatus struct{ status BotStatus }

func (f fixedStatus) BotStatus() BotStatus { return f.status }

func TestBotStatusEndpoint(t *testing.T) {
	s := New(Options{
		WebhookPath: "/telegram/webhook",
		Status:      fixedStatus{BotStatus{Running: true, Mode: "webhook", WebhookPath: "/telegram/webhook"}},
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/bot", nil))

	var status BotStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.Mode != "webhook" {
		t.Fatalf("status = %+v", status)
	}
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	updates := queue.New(1)
	s := newTestServer(t, updates)

	for _, secret := range []string{"", "wrong-secret"} {
		req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(`{"update_id":1}`))
		if secret != "" {
			req.Header.Set("X-Telegram-Bot-Api-Secret-Token", secret)
		}

		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Fatalf("secret %q status = %d, want 403", secret, rec.Code)
		}
	}

	if updates.Len() != 0 {
		t.Fatalf("queue length = %d, want 0", updates.Len())
	}
}

func TestWebhookEnqueuesUpdate(t *testing.T) {
	updates := queue.New(1)
	s := newTestServer(t, updates)

	payload := `{"update_id":123456789,"message":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"},"text":"hi"}}`
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(payload))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", testSecret)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if updates.Len() != 1 {
		t.Fatalf("queue length = %d, want 1", updates.Len())
	}
}

func TestWebhookMalformedPayloadStillAcknowledged(t *testing.T) {
	updates := queue.New(1)
	s := newTestServer(t, updates)

	for _, payload := range []string{`not json`, `{}`, `{"update_id":"abc"}`} {
		req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(payload))
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", testSecret)

		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("payload %q status = %d, want 200", payload, rec.Code)
		}
	}

	if updates.Len() != 0 {
		t.Fatalf("queue length = %d, want 0", updates.Len())
	}
}

func TestWebhookQueueFullStillAcknowledged(t *testing.T) {
	updates := queue.New(1)
	s := newTestServer(t, updates)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(`{"update_id":1}`))
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", testSecret)

		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, rec.Code)
		}
	}

	if updates.Len() != 1 {
		t.Fatalf("queue length = %d, want 1", updates.Len())
	}
}
