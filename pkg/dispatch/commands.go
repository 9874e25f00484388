package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"tgrelay/pkg/backend"
)

// Prompts can exceed Telegram's 4096-character message limit; leave room
// for the header and code fence.
const maxPromptDisplayLength = 4000

// adminGate checks the injected allow-list before admin-only commands run.
// An empty allow-list denies everyone.
type adminGate struct {
	allowed []int64
	replies Replier
	log     *slog.Logger
}

func newAdminGate(allowed []int64, replies Replier, log *slog.Logger) *adminGate {
	return &adminGate{allowed: allowed, replies: replies, log: log}
}

// permit reports whether the sender may proceed, replying "Unauthorized."
// and logging a security event otherwise.
func (g *adminGate) permit(ctx context.Context, msg *telego.Message, name string) bool {
	userID := senderID(msg)
	if slices.Contains(g.allowed, userID) {
		return true
	}

	g.log.Warn("Unauthorized admin command", "command", name, "user_id", userID, "chat_id", msg.Chat.ID)
	if err := g.replies.ReplyText(ctx, msg.Chat.ID, msgUnauthorized); err != nil {
		g.log.Error("Failed to send unauthorized reply", "error", err)
	}

	return false
}

type startCommand struct {
	replies Replier
	log     *slog.Logger
}

func (c *startCommand) Handle(ctx context.Context, msg *telego.Message, requestID string) {
	firstName := "there"
	if msg.From != nil && msg.From.FirstName != "" {
		firstName = msg.From.FirstName
	}

	c.log.Info("Handling /start command", "request_id", requestID, "user_id", senderID(msg))

	greeting := fmt.Sprintf("Hello, %s! Welcome to the bot.\n\n", firstName) +
		"I can forward your messages to the backend service.\n" +
		"Just send me a text message, photo, voice message, or document to get started.\n\n" +
		"Commands:\n" +
		"/start - Show this greeting\n" +
		"/test - Show diagnostic information\n" +
		"/sessioninfo - Show current session info\n" +
		"/status - Show agent statuses\n" +
		"/promptreload - Reload the AI agent system prompt\n" +
		"/getprompt - Display the current AI agent system prompt"

	if err := c.replies.ReplyText(ctx, msg.Chat.ID, greeting); err != nil {
		c.log.Error("Failed to send greeting", "error", err)
	}
}

type testCommand struct {
	replies     Replier
	region      string
	serviceName string
	log         *slog.Logger
}

func (c *testCommand) Handle(ctx context.Context, msg *telego.Message, requestID string) {
	c.log.Info("Handling /test command", "request_id", requestID, "user_id", senderID(msg))

	hostname, _ := os.Hostname()
	lines := []string{
		"Instance ID: " + hostname,
		"Local time: " + time.Now().Format(time.RFC3339),
	}
	if c.region != "" {
		lines = append(lines, "Region: "+c.region)
	}
	if c.serviceName != "" {
		lines = append(lines, "Service: "+c.serviceName)
	}

	if err := c.replies.ReplyText(ctx, msg.Chat.ID, strings.Join(lines, "\n")); err != nil {
		c.log.Error("Failed to send diagnostics", "error", err)
	}
}

type sessionInfoCommand struct {
	gateway *backend.Gateway
	replies Replier
	log     *slog.Logger
}

func (c *sessionInfoCommand) Handle(ctx context.Context, msg *telego.Message, requestID string) {
	conversationID, meta := deriveFrom(msg)

	c.log.Info("Handling /sessioninfo command",
		"request_id", requestID,
		"user_id", meta.UserID,
		"chat_id", meta.ChatID,
		"chat_type", meta.ChatType,
	)

	if !c.gateway.Configured() {
		c.replyText(ctx, msg, "Session info unavailable - backend not configured")
		return
	}

	info, err := c.gateway.SessionInfo(ctx, conversationID)
	if err != nil {
		c.log.Warn("Session info request failed", "request_id", requestID, "conversation_id", conversationID, "error", err)
		c.replyText(ctx, msg, "Failed to get session info: "+err.Error())
		return
	}

	var text string
	if info.SessionExists {
		sessionID := info.SessionID
		if sessionID == "" {
			sessionID = conversationID
		}
		shownConversation := info.ConversationID
		if shownConversation == "" {
			shownConversation = conversationID
		}
		countLine := ""
		if info.MessageCount != nil {
			countLine = fmt.Sprintf("\nMessages: %d", *info.MessageCount)
		}
		text = fmt.Sprintf("Session info:\n- Conversation ID: `%s`\n- Session ID: `%s`\n- Status: Active%s", shownConversation, sessionID, countLine)
	} else {
		text = fmt.Sprintf("No active session for this chat.\n- Conversation ID: `%s`", conversationID)
	}

	if err := c.replies.ReplyMarkdown(ctx, msg.Chat.ID, text); err != nil {
		c.log.Error("Failed to send session info", "error", err)
	}
}

func (c *sessionInfoCommand) replyText(ctx context.Context, msg *telego.Message, text string) {
	if err := c.replies.ReplyText(ctx, msg.Chat.ID, text); err != nil {
		c.log.Error("Failed to send session info", "error", err)
	}
}

type promptReloadCommand struct {
	gateway *backend.Gateway
	replies Replier
	admins  *adminGate
	log     *slog.Logger
}

func (c *promptReloadCommand) Handle(ctx context.Context, msg *telego.Message, requestID string) {
	if !c.admins.permit(ctx, msg, "promptreload") {
		return
	}

	c.log.Info("Handling /promptreload command", "request_id", requestID, "user_id", senderID(msg))

	if !c.gateway.Configured() {
		c.reply(ctx, msg, "Prompt reload unavailable - backend not configured")
		return
	}

	result, err := c.gateway.ReloadPrompt(ctx)
	if err != nil {
		c.log.Warn("Prompt reload request failed", "request_id", requestID, "error", err)
		c.reply(ctx, msg, "Failed to reload prompt: "+err.Error())
		return
	}

	switch result.Status {
	case "ok":
		length := "unknown"
		if result.PromptLength != nil {
			length = fmt.Sprintf("%d", *result.PromptLength)
		}
		c.reply(ctx, msg, fmt.Sprintf("Prompt reloaded successfully (%s characters)", length))
	case "error":
		errMsg := result.Error
		if errMsg == "" {
			errMsg = "Unknown error"
		}
		c.reply(ctx, msg, "Failed to reload prompt: "+errMsg)
	default:
		c.reply(ctx, msg, "Failed to reload prompt: unexpected response")
	}
}

func (c *promptReloadCommand) reply(ctx context.Context, msg *telego.Message, text string) {
	if err := c.replies.ReplyText(ctx, msg.Chat.ID, text); err != nil {
		c.log.Error("Failed to send prompt reload reply", "error", err)
	}
}

type getPromptCommand struct {
	gateway *backend.Gateway
	replies Replier
	admins  *adminGate
	log     *slog.Logger
}

func (c *getPromptCommand) Handle(ctx context.Context, msg *telego.Message, requestID string) {
	if !c.admins.permit(ctx, msg, "getprompt") {
		return
	}

	c.log.Info("Handling /getprompt command", "request_id", requestID, "user_id", senderID(msg))

	if !c.gateway.Configured() {
		c.reply(ctx, msg, "Get prompt unavailable - backend not configured")
		return
	}

	info, err := c.gateway.GetPrompt(ctx)
	if err != nil {
		c.log.Warn("Get prompt request failed", "request_id", requestID, "error", err)
		c.reply(ctx, msg, "Failed to get prompt: "+err.Error())
		return
	}

	prompt := info.Prompt
	header := fmt.Sprintf("Current prompt (%d characters):", info.Length)
	if len(prompt) > maxPromptDisplayLength {
		prompt = prompt[:maxPromptDisplayLength] + "..."
		header = fmt.Sprintf("Current prompt (%d characters, truncated):", info.Length)
	}

	c.reply(ctx, msg, fmt.Sprintf("%s\n\n```\n%s\n```", header, prompt))
}

func (c *getPromptCommand) reply(ctx context.Context, msg *telego.Message, text string) {
	if err := c.replies.ReplyText(ctx, msg.Chat.ID, text); err != nil {
		c.log.Error("Failed to send prompt reply", "error", err)
	}
}

type statusCommand struct {
	gateway *backend.Gateway
	replies Replier
	log     *slog.Logger
}

func (c *statusCommand) Handle(ctx context.Context, msg *telego.Message, requestID string) {
	c.log.Info("Handling /status command", "request_id", requestID, "user_id", senderID(msg))

	status, err := c.gateway.AgentsStatus(ctx)
	if err != nil {
		c.log.Warn("Failed to fetch agents status", "request_id", requestID, "error", err)
		if err := c.replies.ReplyText(ctx, msg.Chat.ID, "Failed to get agent statuses"); err != nil {
			c.log.Error("Failed to send status reply", "error", err)
		}
		return
	}

	text := "<b>Agent status</b>\n\n<pre>" + statusTable(status.Agents) + "</pre>"
	if err := c.replies.ReplyHTML(ctx, msg.Chat.ID, text); err != nil {
		c.log.Error("Failed to send status reply", "error", err)
	}
}

// statusTable renders a fixed-width table of agent name, version, and uptime.
func statusTable(agents []backend.AgentStatus) string {
	const col1, col2, col3 = 16, 10, 10

	rows := []string{
		fmt.Sprintf("%-*s%-*s%-*s", col1, "Agent", col2, "Ver", col3, "Uptime"),
		strings.Repeat("─", col1+col2+col3),
	}

	for _, agent := range agents {
		name := agent.Name
		if name == "" {
			name = "?"
		}
		version, uptime := "—", "—"
		if agent.Status == "ok" {
			if agent.Version != "" {
				version = agent.Version
			}
			uptime = formatUptime(agent.UptimeSeconds)
		}
		rows = append(rows, fmt.Sprintf("%-*s%-*s%-*s", col1, name, col2, version, col3, uptime))
	}

	return strings.Join(rows, "\n")
}

func formatUptime(seconds *float64) string {
	if seconds == nil {
		return "—"
	}

	s := int64(*seconds)
	switch {
	case s < 60:
		return fmt.Sprintf("%ds", s)
	case s < 3600:
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	case s < 86400:
		return fmt.Sprintf("%dh %dm", s/3600, (s/60)%60)
	default:
		return fmt.Sprintf("%dd %dh", s/86400, (s/3600)%24)
	}
}
