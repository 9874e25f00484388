package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/mymmrac/telego"

	"tgrelay/pkg/backend"
	"tgrelay/pkg/conversation"
	"tgrelay/pkg/logger"
	"tgrelay/pkg/queue"
)

// DefaultWorkers caps how many updates are processed concurrently.
const DefaultWorkers = 100

// command handles one slash command.
type command interface {
	Handle(ctx context.Context, msg *telego.Message, requestID string)
}

// Router owns the route table and the worker pool that consumes the
// update queue.
type Router struct {
	gateway  *backend.Gateway
	replies  Replier
	files    FileDownloader
	commands map[string]command
	workers  int
	log      *slog.Logger
}

// Options configures a Router.
type Options struct {
	Gateway *backend.Gateway
	Replies Replier
	Files   FileDownloader

	// AdminIDs may run admin-only commands; empty means nobody may.
	AdminIDs []int64

	// Region and ServiceName label /test diagnostics output.
	Region      string
	ServiceName string

	// Workers sets the pool size (DefaultWorkers when <= 0).
	Workers int

	Log *slog.Logger
}

// NewRouter builds a Router with all routes registered.
func NewRouter(opts Options) (*Router, error) {
	if opts.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if opts.Replies == nil {
		return nil, errors.New("replier is required")
	}
	if opts.Files == nil {
		return nil, errors.New("file downloader is required")
	}

	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "dispatch.router")

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	r := &Router{
		gateway: opts.Gateway,
		replies: opts.Replies,
		files:   opts.Files,
		workers: workers,
		log:     log,
	}

	admins := newAdminGate(opts.AdminIDs, opts.Replies, log)
	r.commands = map[string]command{
		"start":        &startCommand{replies: opts.Replies, log: log},
		"test":         &testCommand{replies: opts.Replies, region: opts.Region, serviceName: opts.ServiceName, log: log},
		"sessioninfo":  &sessionInfoCommand{gateway: opts.Gateway, replies: opts.Replies, log: log},
		"promptreload": &promptReloadCommand{gateway: opts.Gateway, replies: opts.Replies, admins: admins, log: log},
		"getprompt":    &getPromptCommand{gateway: opts.Gateway, replies: opts.Replies, admins: admins, log: log},
		"status":       &statusCommand{gateway: opts.Gateway, replies: opts.Replies, log: log},
	}

	return r, nil
}

// Run starts the worker pool and blocks until the context is cancelled and
// the queue is drained.
func (r *Router) Run(ctx context.Context, updates *queue.UpdateQueue) {
	var wg sync.WaitGroup
	wg.Add(r.workers)

	for i := 0; i < r.workers; i++ {
		go func() {
			defer wg.Done()
			for {
				update, ok := updates.Dequeue(ctx)
				if !ok {
					return
				}
				r.Dispatch(ctx, update)
			}
		}()
	}

	wg.Wait()
}

// Dispatch routes one update to exactly one handler.
func (r *Router) Dispatch(ctx context.Context, update telego.Update) {
	msg := update.Message
	if msg == nil {
		r.log.Debug("Ignoring update without message", "update_id", update.UpdateID)
		return
	}

	requestID := logger.RequestID()

	switch {
	case strings.HasPrefix(msg.Text, "/"):
		r.dispatchCommand(ctx, msg, requestID)
	case msg.Voice != nil:
		r.handleVoice(ctx, msg, requestID)
	case len(msg.Photo) > 0:
		r.handlePhoto(ctx, msg, requestID)
	case msg.Document != nil:
		r.handleDocument(ctx, msg, requestID)
	case msg.Text != "":
		r.handleText(ctx, msg, requestID)
	default:
		r.log.Debug("Ignoring unsupported message type", "update_id", update.UpdateID)
	}
}

func (r *Router) dispatchCommand(ctx context.Context, msg *telego.Message, requestID string) {
	name := commandName(msg.Text)

	handler, ok := r.commands[name]
	if !ok {
		r.log.Info("Unknown command received", "request_id", requestID, "user_id", senderID(msg), "message_id", msg.MessageID)
		r.reply(ctx, msg.Chat.ID, msgUnknownCommand)
		return
	}

	handler.Handle(ctx, msg, requestID)
}

// commandName extracts the bare command from "/name@botname args".
func commandName(text string) string {
	first := strings.Fields(text)[0]
	first = strings.TrimPrefix(first, "/")
	if at := strings.IndexByte(first, '@'); at >= 0 {
		first = first[:at]
	}

	return strings.ToLower(first)
}

// deriveFrom maps a message to its conversation ID and metadata.
func deriveFrom(msg *telego.Message) (string, conversation.Metadata) {
	return conversation.Derive(msg.Chat.Type, msg.Chat.ID, senderID(msg))
}

func senderID(msg *telego.Message) int64 {
	if msg.From == nil {
		return 0
	}

	return msg.From.ID
}

// reply sends a fixed text reply, logging the send failure rather than
// propagating it: by this point the inbound event is already consumed.
func (r *Router) reply(ctx context.Context, chatID int64, text string) {
	if err := r.replies.ReplyText(ctx, chatID, text); err != nil {
		r.log.Error("Failed to send reply", "chat_id", chatID, "error", err)
	}
}

// replyBackendError maps a gateway failure to its fixed user-facing string.
func (r *Router) replyBackendError(ctx context.Context, chatID int64, err error) {
	if errors.Is(err, backend.ErrNotConfigured) {
		r.reply(ctx, chatID, msgAgentNotConfigured)
		return
	}

	r.reply(ctx, chatID, msgBackendUnavailable)
}
