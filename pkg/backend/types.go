package backend

import "tgrelay/pkg/conversation"

// Metadata is the chat context record attached to backend payloads.
type Metadata = conversation.Metadata

// payloadMetadata is the envelope every operation attaches when chat
// metadata is available.
type payloadMetadata struct {
	Platform conversation.Metadata `json:"platform"`
}

type chatPayload struct {
	ConversationID string           `json:"conversation_id"`
	Message        string           `json:"message"`
	Metadata       *payloadMetadata `json:"metadata,omitempty"`
}

type voicePayload struct {
	ConversationID string           `json:"conversation_id"`
	AudioBase64    string           `json:"audio_base64"`
	MimeType       string           `json:"mime_type"`
	Metadata       *payloadMetadata `json:"metadata,omitempty"`
}

type imagePayload struct {
	ConversationID string           `json:"conversation_id"`
	ImageBase64    string           `json:"image_base64"`
	MimeType       string           `json:"mime_type"`
	Prompt         string           `json:"prompt"`
	Metadata       *payloadMetadata `json:"metadata,omitempty"`
}

type documentPayload struct {
	ConversationID string           `json:"conversation_id"`
	DocumentBase64 string           `json:"document_base64"`
	MimeType       string           `json:"mime_type"`
	Filename       string           `json:"filename"`
	Prompt         string           `json:"prompt,omitempty"`
	Metadata       *payloadMetadata `json:"metadata,omitempty"`
}

type sessionInfoPayload struct {
	ConversationID string `json:"conversation_id"`
}

// VoiceResult is the decoded /api/voice response.
type VoiceResult struct {
	Response      string `json:"response"`
	Transcription string `json:"transcription,omitempty"`
}

// ImageResult is the decoded /api/image response. The processed image
// fields are set when the agent returns a rendered image alongside text.
type ImageResult struct {
	Response               string `json:"response"`
	ProcessedImageBase64   string `json:"processed_image_base64,omitempty"`
	ProcessedImageMimeType string `json:"processed_image_mime_type,omitempty"`
}

// DocumentMeta carries optional extraction statistics from /api/document.
type DocumentMeta struct {
	Pages            *int     `json:"pages,omitempty"`
	TablesFound      *int     `json:"tables_found,omitempty"`
	ImagesFound      *int     `json:"images_found,omitempty"`
	ProcessingTimeMS *float64 `json:"processing_time_ms,omitempty"`
}

// DocumentResult is the normalized /api/document response. The backend
// returns the extracted text under "content"; the gateway renames it to
// Response so callers see one field name across operations.
type DocumentResult struct {
	Response string
	Summary  string
	Meta     DocumentMeta
}

// documentWire is the asymmetric on-the-wire shape of /api/document.
type documentWire struct {
	Content  string       `json:"content"`
	Summary  string       `json:"summary,omitempty"`
	Metadata DocumentMeta `json:"metadata,omitempty"`
}

// SessionInfo is the decoded /api/session-info response.
type SessionInfo struct {
	SessionExists  bool   `json:"session_exists"`
	ConversationID string `json:"conversation_id,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	MessageCount   *int   `json:"message_count,omitempty"`
}

// sessionInfoWire keeps session_exists a pointer so a missing field is
// distinguishable from false.
type sessionInfoWire struct {
	SessionExists  *bool  `json:"session_exists"`
	ConversationID string `json:"conversation_id"`
	SessionID      string `json:"session_id"`
	MessageCount   *int   `json:"message_count"`
}

// PromptInfo is the decoded GET /api/prompt response.
type PromptInfo struct {
	Prompt string `json:"prompt"`
	Length int    `json:"length"`
}

// ReloadResult is the decoded POST /api/reload-prompt response.
type ReloadResult struct {
	Status       string `json:"status"`
	PromptLength *int   `json:"prompt_length,omitempty"`
	Error        string `json:"error,omitempty"`
}

// AgentStatus describes one agent in the GET /api/agents-status response.
type AgentStatus struct {
	Name          string   `json:"name"`
	Status        string   `json:"status"`
	Version       string   `json:"version,omitempty"`
	UptimeSeconds *float64 `json:"uptime_seconds,omitempty"`
}

// AgentsStatus is the decoded GET /api/agents-status response.
type AgentsStatus struct {
	Agents []AgentStatus `json:"agents"`
}
