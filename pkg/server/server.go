// Package server hosts the HTTP surface: health endpoints and, in webhook
// mode, the Telegram webhook ingress feeding the update queue.
package server

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mymmrac/telego"

	"tgrelay/pkg/queue"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// BotStatus is the payload of GET /healthz/bot.
type BotStatus struct {
	Running     bool   `json:"bot_running"`
	Mode        string `json:"mode"`
	WebhookPath string `json:"webhook_path"`
}

// StatusSource reports the lifecycle controller's current state.
type StatusSource interface {
	BotStatus() BotStatus
}

// Options configures a Server.
type Options struct {
	Port          int
	WebhookPath   string
	WebhookSecret string
	Updates       *queue.UpdateQueue
	Status        StatusSource
	Log           *slog.Logger
}

// Server owns the HTTP listener. The webhook route is registered only when
// a path and secret are configured.
type Server struct {
	opts Options
	log  *slog.Logger
	mux  *http.ServeMux
}

// New builds a Server with all routes registered.
func New(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		opts: opts,
		log:  log.With("component", "server"),
		mux:  http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /healthz/bot", s.handleBotStatus)
	if opts.WebhookPath != "" && opts.Updates != nil {
		s.mux.HandleFunc("POST "+opts.WebhookPath, s.handleWebhook)
	}

	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves HTTP until the context is cancelled, then shuts down with a
// bounded grace period.
func (s *Server) Run(ctx context.Context) error {
	addr := ":" + strconv.Itoa(s.opts.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("HTTP server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBotStatus(w http.ResponseWriter, _ *http.Request) {
	status := BotStatus{WebhookPath: s.opts.WebhookPath}
	if s.opts.Status != nil {
		status = s.opts.Status.BotStatus()
	}

	s.respondJSON(w, http.StatusOK, status)
}

// handleWebhook validates and enqueues one pushed update.
//
// Responses are deliberately one-sided: anything after the secret check
// answers 200, including malformed payloads and queue overflow. A non-2xx
// would make Telegram resend the update forever and amplify the problem.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get(secretTokenHeader)
	if header == "" || !hmac.Equal([]byte(header), []byte(s.opts.WebhookSecret)) {
		s.log.Warn("Webhook request with invalid or missing secret",
			"remote_ip", r.RemoteAddr,
			"user_agent", r.Header.Get("User-Agent"),
			"header_present", header != "",
		)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	// From here on the sender is authenticated; never surface errors.
	defer w.WriteHeader(http.StatusOK)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.log.Warn("Webhook body read failed", "error", err)
		return
	}

	var probe struct {
		UpdateID *int64 `json:"update_id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.UpdateID == nil {
		s.log.Warn("Invalid webhook payload: missing or invalid update_id")
		return
	}

	var update telego.Update
	if err := json.Unmarshal(body, &update); err != nil {
		s.log.Warn("Webhook update parse failed", "update_id", *probe.UpdateID, "error", err)
		return
	}

	if !s.opts.Updates.TryEnqueue(update) {
		s.log.Error("Update queue full, dropping update", "update_id", *probe.UpdateID)
		return
	}

	s.log.Info("Webhook update queued", "update_id", *probe.UpdateID)
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write response", "error", err)
	}
}
