// Package bot is the lifecycle controller: it boots the relay in webhook or
// polling mode and tears it down with bounded-time graceful shutdown.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode"

	"tgrelay/pkg/backend"
	"tgrelay/pkg/config"
	"tgrelay/pkg/dispatch"
	"tgrelay/pkg/queue"
	"tgrelay/pkg/server"
)

// pollGracePeriod bounds how long shutdown waits for the polling task.
const pollGracePeriod = 7 * time.Second

// Service wires the queue, router, gateway, HTTP server, and Telegram
// client into one runnable unit.
type Service struct {
	cfg     *config.Config
	log     *slog.Logger
	client  *Client
	gateway *backend.Gateway
	updates *queue.UpdateQueue
	router  *dispatch.Router
	httpSrv *server.Server

	mu      sync.RWMutex
	running bool
	mode    string
}

// NewService builds the full relay from resolved configuration.
func NewService(cfg *config.Config, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		log = slog.Default()
	}

	client, err := NewClient(cfg.BotToken, log)
	if err != nil {
		return nil, err
	}

	var tokens backend.TokenSource
	if cfg.BackendToken != "" {
		tokens = backend.StaticTokenSource(cfg.BackendToken)
	}
	gateway := backend.NewGateway(cfg.AgentAPIURL, tokens, log)

	updates := queue.New(cfg.QueueCapacity)

	router, err := dispatch.NewRouter(dispatch.Options{
		Gateway:     gateway,
		Replies:     client,
		Files:       client,
		AdminIDs:    cfg.AdminIDs,
		Region:      cfg.Region,
		ServiceName: cfg.ServiceName,
		Workers:     cfg.Workers,
		Log:         log,
	})
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		log:     log.With("component", "bot.service"),
		client:  client,
		gateway: gateway,
		updates: updates,
		router:  router,
	}

	s.httpSrv = server.New(server.Options{
		Port:          cfg.Port,
		WebhookPath:   cfg.WebhookPath,
		WebhookSecret: cfg.WebhookSecret,
		Updates:       updates,
		Status:        s,
		Log:           log,
	})

	return s, nil
}

// BotStatus implements server.StatusSource.
func (s *Service) BotStatus() server.BotStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return server.BotStatus{
		Running:     s.running,
		Mode:        s.mode,
		WebhookPath: s.cfg.WebhookPath,
	}
}

// Run starts the relay in the configured mode and blocks until the context
// is cancelled or a fatal error occurs.
func (s *Service) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErrors := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Run(runCtx); err != nil {
			serverErrors <- err
		}
	}()

	var pollDone chan struct{}
	if s.cfg.WebhookMode() {
		fullURL := s.cfg.FullWebhookURL()
		s.logWebhookDiagnostics(fullURL)

		if err := s.client.RegisterWebhook(ctx, fullURL, s.cfg.WebhookSecret); err != nil {
			return fmt.Errorf("register webhook: %w", err)
		}
		s.setState("webhook", true)
		s.log.Info("Webhook set successfully", "webhook_url", fullURL)
	} else {
		pollDone = make(chan struct{})
		go s.runPolling(runCtx, pollDone)
		s.setState("polling", true)
		s.log.Info("Polling mode started")
	}

	go s.router.Run(runCtx, s.updates)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErrors:
		runErr = err
	}

	s.shutdown(cancel, pollDone)
	return runErr
}

// runPolling feeds long-polled updates into the shared queue.
func (s *Service) runPolling(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	updates, err := s.client.LongPoll(ctx)
	if err != nil {
		s.log.Error("Failed to start polling", "error", err)
		return
	}
	s.log.Info("Polling started successfully")

	for update := range updates {
		if !s.updates.TryEnqueue(update) {
			s.log.Error("Update queue full, dropping update", "update_id", update.UpdateID)
		}
	}
}

// shutdown tears the relay down step by step. Every step is best-effort: a
// failure is logged and the remaining steps still run.
func (s *Service) shutdown(cancel context.CancelFunc, pollDone <-chan struct{}) {
	s.log.Info("Shutting down")
	s.setRunning(false)

	cancel()

	if pollDone != nil {
		select {
		case <-pollDone:
			s.log.Info("Polling task stopped")
		case <-time.After(pollGracePeriod):
			s.log.Warn("Polling task did not stop in time", "grace", pollGracePeriod)
		}
	}

	s.updates.Close()
	s.gateway.Close()
	s.log.Info("Shutdown complete")
}

func (s *Service) setState(mode string, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.running = running
}

func (s *Service) setRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = running
}

// logWebhookDiagnostics records URL anomalies that have caused webhook
// registration failures before (stray whitespace from copy-pasted env vars).
func (s *Service) logWebhookDiagnostics(url string) {
	whitespace, control := 0, 0
	for _, r := range url {
		if unicode.IsSpace(r) {
			whitespace++
		}
		if r < 32 || r == 127 {
			control++
		}
	}

	s.log.Info("Webhook URL diagnostics",
		"url_length", len(url),
		"whitespace_count", whitespace,
		"control_char_count", control,
	)
}
