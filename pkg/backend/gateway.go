// Package backend is the client side of the agent API: a retry-budgeted
// HTTP caller plus one typed operation per backend capability.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// Image and document processing runs vision/extraction pipelines on
	// the backend, so those calls get a much longer leash.
	mediaTimeout = 120 * time.Second
	mediaBudget  = 180 * time.Second

	// Operator commands hit lightweight endpoints and are not retried.
	commandTimeout = 10 * time.Second
)

// TokenSource yields bearer tokens scoped to an audience URL. Deployments
// without identity tokens pass a nil source and calls go out unauthenticated.
type TokenSource interface {
	Token(ctx context.Context, audience string) (string, error)
}

// StaticTokenSource returns the same token for every audience.
type StaticTokenSource string

func (s StaticTokenSource) Token(context.Context, string) (string, error) {
	return string(s), nil
}

// Gateway exposes the backend agent API as typed operations. Safe for
// concurrent use; all calls share one HTTP connection pool.
type Gateway struct {
	baseURL string
	caller  *Caller
	client  *http.Client
	tokens  TokenSource
	log     *slog.Logger
}

// NewGateway builds a Gateway for the given base URL, which may be empty
// when the backend is not configured; every operation then fails fast with
// ErrNotConfigured.
func NewGateway(baseURL string, tokens TokenSource, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}

	client := &http.Client{}
	return &Gateway{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		caller:  NewCaller(client, log),
		client:  client,
		tokens:  tokens,
		log:     log.With("component", "backend.gateway"),
	}
}

// Configured reports whether a backend base URL is set.
func (g *Gateway) Configured() bool {
	return g.baseURL != ""
}

// Close releases idle connections in the shared pool.
func (g *Gateway) Close() {
	g.client.CloseIdleConnections()
}

// SendMessage forwards a text message and returns the agent's reply.
func (g *Gateway) SendMessage(ctx context.Context, conversationID, message string, meta *Metadata, requestID string) (string, error) {
	if !g.Configured() {
		return "", ErrNotConfigured
	}

	body, err := g.caller.Post(ctx, Request{
		URL:        g.baseURL + "/api/chat",
		Payload:    chatPayload{ConversationID: conversationID, Message: message, Metadata: envelope(meta)},
		Label:      "message",
		RequestID:  requestID,
		AuthHeader: g.authHeader(ctx),
	})
	if err != nil {
		return "", err
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &ProtocolError{Label: "message", cause: err}
	}

	return result.Response, nil
}

// SendVoice forwards base64 audio and returns the agent reply plus any
// transcription the backend produced.
func (g *Gateway) SendVoice(ctx context.Context, conversationID, audioBase64, mimeType string, meta *Metadata, requestID string) (VoiceResult, error) {
	if !g.Configured() {
		return VoiceResult{}, ErrNotConfigured
	}

	g.log.Info("Forwarding voice to backend",
		"request_id", requestID,
		"conversation_id", conversationID,
		"audio_size_bytes", decodedSize(audioBase64),
		"mime_type", mimeType,
	)

	body, err := g.caller.Post(ctx, Request{
		URL:        g.baseURL + "/api/voice",
		Payload:    voicePayload{ConversationID: conversationID, AudioBase64: audioBase64, MimeType: mimeType, Metadata: envelope(meta)},
		Label:      "voice",
		RequestID:  requestID,
		AuthHeader: g.authHeader(ctx),
	})
	if err != nil {
		return VoiceResult{}, err
	}

	var result VoiceResult
	if err := json.Unmarshal(body, &result); err != nil {
		return VoiceResult{}, &ProtocolError{Label: "voice", cause: err}
	}

	return result, nil
}

// SendImage forwards a base64 image with an analysis prompt.
func (g *Gateway) SendImage(ctx context.Context, conversationID, imageBase64, mimeType, prompt string, meta *Metadata, requestID string) (ImageResult, error) {
	if !g.Configured() {
		return ImageResult{}, ErrNotConfigured
	}

	g.log.Info("Forwarding image to backend",
		"request_id", requestID,
		"conversation_id", conversationID,
		"image_size_bytes", decodedSize(imageBase64),
		"mime_type", mimeType,
		"prompt_length", len(prompt),
	)

	body, err := g.caller.Post(ctx, Request{
		URL:        g.baseURL + "/api/image",
		Payload:    imagePayload{ConversationID: conversationID, ImageBase64: imageBase64, MimeType: mimeType, Prompt: prompt, Metadata: envelope(meta)},
		Label:      "image",
		RequestID:  requestID,
		Timeout:    mediaTimeout,
		Budget:     mediaBudget,
		AuthHeader: g.authHeader(ctx),
	})
	if err != nil {
		return ImageResult{}, err
	}

	var result ImageResult
	if err := json.Unmarshal(body, &result); err != nil {
		return ImageResult{}, &ProtocolError{Label: "image", cause: err}
	}

	return result, nil
}

// SendDocument forwards a base64 document. The prompt is the user caption
// and is omitted from the payload when empty. The backend's "content"
// field is renamed to Response before returning.
func (g *Gateway) SendDocument(ctx context.Context, conversationID, documentBase64, mimeType, filename, prompt string, meta *Metadata, requestID string) (DocumentResult, error) {
	if !g.Configured() {
		return DocumentResult{}, ErrNotConfigured
	}

	g.log.Info("Forwarding document to backend",
		"request_id", requestID,
		"conversation_id", conversationID,
		"doc_size_bytes", decodedSize(documentBase64),
		"mime_type", mimeType,
		"doc_filename", filename,
	)

	body, err := g.caller.Post(ctx, Request{
		URL:           g.baseURL + "/api/document",
		Payload:       documentPayload{ConversationID: conversationID, DocumentBase64: documentBase64, MimeType: mimeType, Filename: filename, Prompt: prompt, Metadata: envelope(meta)},
		Label:         "document",
		RequestID:     requestID,
		Timeout:       mediaTimeout,
		Budget:        mediaBudget,
		ResponseField: "content",
		AuthHeader:    g.authHeader(ctx),
	})
	if err != nil {
		return DocumentResult{}, err
	}

	var wire documentWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return DocumentResult{}, &ProtocolError{Label: "document", cause: err}
	}

	return DocumentResult{Response: wire.Content, Summary: wire.Summary, Meta: wire.Metadata}, nil
}

// SessionInfo queries the backend for the session bound to a conversation.
func (g *Gateway) SessionInfo(ctx context.Context, conversationID string) (SessionInfo, error) {
	if !g.Configured() {
		return SessionInfo{}, ErrNotConfigured
	}

	body, err := g.commandRequest(ctx, http.MethodPost, "/api/session-info", sessionInfoPayload{ConversationID: conversationID})
	if err != nil {
		return SessionInfo{}, err
	}

	var wire sessionInfoWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return SessionInfo{}, &ProtocolError{Label: "session-info", cause: err}
	}
	if wire.SessionExists == nil {
		return SessionInfo{}, &ProtocolError{Label: "session-info", Field: "session_exists"}
	}

	return SessionInfo{
		SessionExists:  *wire.SessionExists,
		ConversationID: wire.ConversationID,
		SessionID:      wire.SessionID,
		MessageCount:   wire.MessageCount,
	}, nil
}

// GetPrompt fetches the agent's current system prompt.
func (g *Gateway) GetPrompt(ctx context.Context) (PromptInfo, error) {
	if !g.Configured() {
		return PromptInfo{}, ErrNotConfigured
	}

	body, err := g.commandRequest(ctx, http.MethodGet, "/api/prompt", nil)
	if err != nil {
		return PromptInfo{}, err
	}

	var result PromptInfo
	if err := json.Unmarshal(body, &result); err != nil {
		return PromptInfo{}, &ProtocolError{Label: "prompt", cause: err}
	}
	if result.Length == 0 {
		result.Length = len(result.Prompt)
	}

	return result, nil
}

// ReloadPrompt asks the backend to reload the agent system prompt.
func (g *Gateway) ReloadPrompt(ctx context.Context) (ReloadResult, error) {
	if !g.Configured() {
		return ReloadResult{}, ErrNotConfigured
	}

	body, err := g.commandRequest(ctx, http.MethodPost, "/api/reload-prompt", nil)
	if err != nil {
		return ReloadResult{}, err
	}

	var result ReloadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return ReloadResult{}, &ProtocolError{Label: "reload-prompt", cause: err}
	}

	return result, nil
}

// AgentsStatus fetches the status list for every agent behind the backend.
func (g *Gateway) AgentsStatus(ctx context.Context) (AgentsStatus, error) {
	if !g.Configured() {
		return AgentsStatus{}, ErrNotConfigured
	}

	body, err := g.commandRequest(ctx, http.MethodGet, "/api/agents-status", nil)
	if err != nil {
		return AgentsStatus{}, err
	}

	var result AgentsStatus
	if err := json.Unmarshal(body, &result); err != nil {
		return AgentsStatus{}, &ProtocolError{Label: "agents-status", cause: err}
	}

	return result, nil
}

// commandRequest issues one short, unretried request for operator commands.
func (g *Gateway) commandRequest(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	reqCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", path, err)
		}
		reqBody = strings.NewReader(string(encoded))
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, method, g.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if header := g.authHeader(ctx); header != "" {
		httpReq.Header.Set("Authorization", header)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Status: resp.StatusCode, Label: strings.TrimPrefix(path, "/api/")}
	}

	return body, nil
}

// authHeader resolves a bearer token scoped to the backend base URL right
// before a call. Token resolution failures are logged and the call proceeds
// without the header, so unauthenticated private deployments keep working.
func (g *Gateway) authHeader(ctx context.Context) string {
	if g.tokens == nil || g.baseURL == "" {
		return ""
	}

	token, err := g.tokens.Token(ctx, g.baseURL)
	if err != nil {
		g.log.Warn("Failed to fetch identity token, proceeding unauthenticated", "error", err)
		return ""
	}
	if token == "" {
		return ""
	}

	return "Bearer " + token
}

func envelope(meta *Metadata) *payloadMetadata {
	if meta == nil {
		return nil
	}

	return &payloadMetadata{Platform: *meta}
}

// decodedSize approximates the byte size of base64 content once decoded.
func decodedSize(b64 string) int {
	return len(b64) * 3 / 4
}
