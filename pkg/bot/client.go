package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Client wraps the Telegram Bot API for outbound sends and file downloads.
// It implements dispatch.Replier and dispatch.FileDownloader.
type Client struct {
	bot *telego.Bot
	log *slog.Logger
}

// NewClient validates the token and constructs the Telegram client.
func NewClient(token string, log *slog.Logger) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("bot token is required")
	}
	if log == nil {
		log = slog.Default()
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	return &Client{
		bot: bot,
		log: log.With("component", "bot.client"),
	}, nil
}

// RegisterWebhook points Telegram at the public webhook URL with the shared
// secret used for inbound verification.
func (c *Client) RegisterWebhook(ctx context.Context, url, secret string) error {
	err := c.bot.SetWebhook(ctx, &telego.SetWebhookParams{
		URL:         url,
		SecretToken: secret,
	})
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	return nil
}

// LongPoll starts long polling, first dropping updates that were pending
// before startup.
func (c *Client) LongPoll(ctx context.Context) (<-chan telego.Update, error) {
	err := c.bot.DeleteWebhook(ctx, &telego.DeleteWebhookParams{DropPendingUpdates: true})
	if err != nil {
		// Not fatal: polling still works, stale updates just come through.
		c.log.Warn("Failed to drop pending updates", "error", err)
	}

	updates, err := c.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("start long polling: %w", err)
	}

	return updates, nil
}

func (c *Client) ReplyText(ctx context.Context, chatID int64, text string) error {
	_, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text))
	return err
}

func (c *Client) ReplyMarkdown(ctx context.Context, chatID int64, text string) error {
	_, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text).WithParseMode(telego.ModeMarkdown))
	return err
}

func (c *Client) ReplyHTML(ctx context.Context, chatID int64, text string) error {
	_, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text).WithParseMode(telego.ModeHTML))
	return err
}

func (c *Client) ReplyPhoto(ctx context.Context, chatID int64, filename string, data []byte, caption string) error {
	params := tu.Photo(tu.ID(chatID), tu.FileFromReader(bytes.NewReader(data), filename))
	if caption != "" {
		params = params.WithCaption(caption)
	}

	_, err := c.bot.SendPhoto(ctx, params)
	return err
}

func (c *Client) ReplyDocument(ctx context.Context, chatID int64, filename string, data []byte) error {
	_, err := c.bot.SendDocument(ctx, tu.Document(tu.ID(chatID), tu.FileFromReader(bytes.NewReader(data), filename)))
	return err
}

func (c *Client) SendTyping(ctx context.Context, chatID int64) error {
	return c.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping))
}

// DownloadFile fetches a Telegram-hosted file's bytes by file ID.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", fileID, err)
	}

	data, err := tu.DownloadFile(c.bot.FileDownloadURL(file.FilePath))
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", fileID, err)
	}

	return data, nil
}
