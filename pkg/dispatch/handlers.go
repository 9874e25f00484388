package dispatch

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"tgrelay/pkg/backend"
)

// Telegram bot API refuses file downloads above this size, so reject
// oversized media before wasting bandwidth on the download.
const maxMediaSizeBytes = 20 * 1024 * 1024

// defaultImagePrompt is used when a photo arrives without a caption.
const defaultImagePrompt = "What is in this image?"

// Telegram caps photo captions at 1024 characters.
const maxPhotoCaptionLength = 1024

var mimeToExt = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
	"image/gif":  "gif",
}

func (r *Router) handleText(ctx context.Context, msg *telego.Message, requestID string) {
	start := time.Now()
	conversationID, meta := deriveFrom(msg)

	log := r.log.With("request_id", requestID, "conversation_id", conversationID, "user_id", meta.UserID)
	log.Info("Message received",
		"chat_type", meta.ChatType,
		"message_type", "text",
		"message_length", len(msg.Text),
	)

	if !r.gateway.Configured() {
		log.Warn("AGENT_API_URL not configured, cannot forward message")
		r.reply(ctx, msg.Chat.ID, msgAgentNotConfigured)
		return
	}

	if err := r.replies.SendTyping(ctx, msg.Chat.ID); err != nil {
		log.Debug("Failed to send typing indicator", "error", err)
	}

	response, err := r.gateway.SendMessage(ctx, conversationID, msg.Text, &meta, requestID)
	if err != nil {
		log.Error("Backend error", "error", err)
		r.replyBackendError(ctx, msg.Chat.ID, err)
		return
	}

	r.reply(ctx, msg.Chat.ID, response)
	log.Info("Reply sent", "latency_total_ms", time.Since(start).Milliseconds())
}

func (r *Router) handleVoice(ctx context.Context, msg *telego.Message, requestID string) {
	voice := msg.Voice
	conversationID, meta := deriveFrom(msg)

	log := r.log.With("request_id", requestID, "conversation_id", conversationID, "user_id", meta.UserID)
	log.Info("Message received",
		"chat_type", meta.ChatType,
		"message_type", "voice",
		"duration", voice.Duration,
		"file_size", voice.FileSize,
		"mime_type", voice.MimeType,
	)

	if int64(voice.FileSize) > maxMediaSizeBytes {
		r.reply(ctx, msg.Chat.ID, msgVoiceTooLarge)
		return
	}

	if !r.gateway.Configured() {
		log.Warn("AGENT_API_URL not configured, cannot forward voice")
		r.reply(ctx, msg.Chat.ID, msgAgentNotConfigured)
		return
	}

	audio, err := r.files.DownloadFile(ctx, voice.FileID)
	if err != nil {
		log.Error("Voice download failed", "error", err)
		r.reply(ctx, msg.Chat.ID, msgBackendUnavailable)
		return
	}
	log.Info("Voice file downloaded", "size_bytes", len(audio))

	mimeType := voice.MimeType
	if mimeType == "" {
		mimeType = "audio/ogg"
	}

	if err := r.replies.SendTyping(ctx, msg.Chat.ID); err != nil {
		log.Debug("Failed to send typing indicator", "error", err)
	}

	result, err := r.gateway.SendVoice(ctx, conversationID, base64.StdEncoding.EncodeToString(audio), mimeType, &meta, requestID)
	if err != nil {
		log.Error("Voice forward error", "error", err)
		r.replyBackendError(ctx, msg.Chat.ID, err)
		return
	}

	response := result.Response
	if response == "" {
		response = msgVoiceFallback
	}
	r.reply(ctx, msg.Chat.ID, response)
}

func (r *Router) handlePhoto(ctx context.Context, msg *telego.Message, requestID string) {
	start := time.Now()
	conversationID, meta := deriveFrom(msg)

	// Telegram sends multiple sizes; the last entry is the largest.
	photo := msg.Photo[len(msg.Photo)-1]

	log := r.log.With("request_id", requestID, "conversation_id", conversationID, "user_id", meta.UserID)
	log.Info("Message received",
		"chat_type", meta.ChatType,
		"message_type", "photo",
		"photo_width", photo.Width,
		"photo_height", photo.Height,
		"photo_file_size", photo.FileSize,
	)

	if int64(photo.FileSize) > maxMediaSizeBytes {
		r.reply(ctx, msg.Chat.ID, msgPhotoTooLarge)
		return
	}

	if !r.gateway.Configured() {
		log.Warn("AGENT_API_URL not configured, cannot forward photo")
		r.reply(ctx, msg.Chat.ID, msgAgentNotConfigured)
		return
	}

	image, err := r.files.DownloadFile(ctx, photo.FileID)
	if err != nil {
		log.Error("Photo download failed", "error", err)
		r.reply(ctx, msg.Chat.ID, msgBackendUnavailable)
		return
	}
	log.Info("Photo file downloaded", "size_bytes", len(image))

	prompt := msg.Caption
	if prompt == "" {
		prompt = defaultImagePrompt
	}

	if err := r.replies.SendTyping(ctx, msg.Chat.ID); err != nil {
		log.Debug("Failed to send typing indicator", "error", err)
	}

	result, err := r.gateway.SendImage(ctx, conversationID, base64.StdEncoding.EncodeToString(image), "image/jpeg", prompt, &meta, requestID)
	if err != nil {
		log.Error("Image forward error", "error", err)
		r.replyBackendError(ctx, msg.Chat.ID, err)
		return
	}

	response := result.Response
	if response == "" {
		response = msgImageFallback
	}

	if result.ProcessedImageBase64 != "" && result.ProcessedImageMimeType != "" {
		processed, err := base64.StdEncoding.DecodeString(result.ProcessedImageBase64)
		if err != nil {
			log.Error("Invalid processed image from backend", "error", err)
			r.reply(ctx, msg.Chat.ID, response)
			return
		}

		ext, ok := mimeToExt[result.ProcessedImageMimeType]
		if !ok {
			ext = "png"
		}

		caption := response
		if len(caption) > maxPhotoCaptionLength {
			caption = caption[:maxPhotoCaptionLength]
		}

		if err := r.replies.ReplyPhoto(ctx, msg.Chat.ID, "processed."+ext, processed, caption); err != nil {
			log.Error("Failed to send processed photo", "error", err)
		}
	} else {
		r.reply(ctx, msg.Chat.ID, response)
	}

	log.Info("Reply sent", "latency_total_ms", time.Since(start).Milliseconds())
}

func (r *Router) handleDocument(ctx context.Context, msg *telego.Message, requestID string) {
	start := time.Now()
	document := msg.Document
	conversationID, meta := deriveFrom(msg)

	if document.FileSize > maxMediaSizeBytes {
		r.reply(ctx, msg.Chat.ID, msgDocumentTooLarge)
		return
	}

	mimeType := document.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	filename := document.FileName
	if filename == "" {
		filename = "document"
	}

	log := r.log.With("request_id", requestID, "conversation_id", conversationID, "user_id", meta.UserID)
	log.Info("Message received",
		"chat_type", meta.ChatType,
		"message_type", "document",
		"mime_type", mimeType,
		"doc_filename", filename,
		"file_size", document.FileSize,
	)

	if !r.gateway.Configured() {
		log.Warn("AGENT_API_URL not configured, cannot forward document")
		r.reply(ctx, msg.Chat.ID, msgAgentNotConfigured)
		return
	}

	data, err := r.files.DownloadFile(ctx, document.FileID)
	if err != nil {
		log.Error("Document download failed", "error", err)
		r.reply(ctx, msg.Chat.ID, msgBackendUnavailable)
		return
	}
	log.Info("Document file downloaded", "size_bytes", len(data))

	if err := r.replies.SendTyping(ctx, msg.Chat.ID); err != nil {
		log.Debug("Failed to send typing indicator", "error", err)
	}

	result, err := r.gateway.SendDocument(ctx, conversationID, base64.StdEncoding.EncodeToString(data), mimeType, filename, msg.Caption, &meta, requestID)
	if err != nil {
		log.Error("Document forward error", "error", err)
		r.replyBackendError(ctx, msg.Chat.ID, err)
		return
	}

	r.reply(ctx, msg.Chat.ID, documentSummary(filename, result))

	if result.Response != "" {
		mdName := markdownFilename(filename)
		if err := r.replies.ReplyDocument(ctx, msg.Chat.ID, mdName, []byte(result.Response)); err != nil {
			log.Error("Failed to send extracted content", "error", err)
		}
	}

	log.Info("Reply sent", "latency_total_ms", time.Since(start).Milliseconds())
}

// documentSummary renders the processing summary shown before the extracted
// content attachment.
func documentSummary(filename string, result backend.DocumentResult) string {
	lines := []string{"Document processed: " + filename}

	var details []string
	if result.Meta.Pages != nil {
		details = append(details, fmt.Sprintf("Pages: %d", *result.Meta.Pages))
	}
	if result.Meta.TablesFound != nil {
		details = append(details, fmt.Sprintf("Tables: %d", *result.Meta.TablesFound))
	}
	if result.Meta.ImagesFound != nil {
		details = append(details, fmt.Sprintf("Images: %d", *result.Meta.ImagesFound))
	}
	if len(details) > 0 {
		lines = append(lines, strings.Join(details, " | "))
	}
	if result.Meta.ProcessingTimeMS != nil {
		lines = append(lines, fmt.Sprintf("Processing time: %.1fs", *result.Meta.ProcessingTimeMS/1000))
	}
	if result.Summary != "" {
		lines = append(lines, "\n"+result.Summary)
	}
	if result.Response == "" {
		lines = append(lines, "No content extracted.")
	}

	return strings.Join(lines, "\n")
}

// markdownFilename swaps a document's extension for .md.
func markdownFilename(filename string) string {
	if dot := strings.LastIndexByte(filename, '.'); dot > 0 {
		filename = filename[:dot]
	}

	return filename + ".md"
}
