// Package dispatch routes inbound Telegram updates to command, text, and
// media handlers and relays backend replies to the originating chat.
package dispatch

import "context"

// Replier sends outbound messages to a Telegram chat. The concrete
// implementation lives in pkg/bot; handlers depend on this interface so
// they are testable without a live bot.
type Replier interface {
	ReplyText(ctx context.Context, chatID int64, text string) error
	ReplyMarkdown(ctx context.Context, chatID int64, text string) error
	ReplyHTML(ctx context.Context, chatID int64, text string) error
	ReplyPhoto(ctx context.Context, chatID int64, filename string, data []byte, caption string) error
	ReplyDocument(ctx context.Context, chatID int64, filename string, data []byte) error
	SendTyping(ctx context.Context, chatID int64) error
}

// FileDownloader fetches a Telegram-hosted file's bytes by file ID.
type FileDownloader interface {
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// Fixed user-facing strings. Internal error details stay in logs; chats
// only ever see these.
const (
	msgAgentNotConfigured = "AGENT_API_URL is not configured"
	msgBackendUnavailable = "Backend unavailable, please try again later."
	msgUnknownCommand     = "Unknown command. Use /start for help."
	msgUnauthorized       = "Unauthorized."
	msgPhotoTooLarge      = "Photo too large (max 20 MB)."
	msgVoiceTooLarge      = "Voice message too large (max 20 MB)."
	msgDocumentTooLarge   = "Document too large (max 20 MB)."
	msgVoiceFallback      = "Could not process voice message."
	msgImageFallback      = "Could not process image."
)
