// Package config resolves runtime configuration from the environment.
package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"tgrelay/pkg/secrets"
)

const (
	envPort           = "PORT"
	envAgentAPIURL    = "AGENT_API_URL"
	envWebhookURL     = "TELEGRAM_WEBHOOK_URL"
	envWebhookPath    = "TELEGRAM_WEBHOOK_PATH"
	envWebhookSecret  = "TELEGRAM_WEBHOOK_SECRET"
	envBotToken       = "TELEGRAM_BOT_TOKEN"
	envBotTokenParam  = "TELEGRAM_BOT_TOKEN_PARAM"
	envAdminIDs       = "TELEGRAM_ADMIN_IDS"
	envBackendToken   = "BACKEND_AUTH_TOKEN"
	envRegion         = "REGION"
	envServiceName    = "SERVICE_NAME"
	envLogLevel       = "LOG_LEVEL"
	envLogFormat      = "TGRELAY_LOG_FORMAT"
	envLogAddSource   = "TGRELAY_LOG_ADD_SOURCE"
	defaultPort       = 8080
	defaultPath       = "/telegram/webhook"
	defaultRegion     = "europe-west4"
	defaultService    = "telegram-bot"
	defaultTokenParam = "TELEGRAM_BOT_TOKEN"
)

// Config is the resolved runtime configuration for one process.
type Config struct {
	Port          int
	AgentAPIURL   string
	WebhookURL    string
	WebhookPath   string
	WebhookSecret string
	BotToken      string
	BackendToken  string
	AdminIDs      []int64
	Region        string
	ServiceName   string

	QueueCapacity int
	Workers       int

	Logging LoggingOptions
}

// LoggingOptions mirrors the env-driven logging knobs so the logger can be
// built before the full config resolves secrets.
type LoggingOptions struct {
	Format    string
	Level     string
	AddSource bool
}

// LoggingFromEnv reads logging settings only; it never fails, so the
// process logger can exist before any secret resolution happens.
func LoggingFromEnv() LoggingOptions {
	return LoggingOptions{
		Format:    strings.TrimSpace(os.Getenv(envLogFormat)),
		Level:     strings.TrimSpace(os.Getenv(envLogLevel)),
		AddSource: os.Getenv(envLogAddSource) != "",
	}
}

// Load resolves configuration from the environment. The bot token falls back
// to the secret store when TELEGRAM_BOT_TOKEN is unset; store may be nil for
// env-only deployments.
func Load(ctx context.Context, store secrets.Getter) (*Config, error) {
	cfg := &Config{
		Port:          intFromEnv(envPort, defaultPort),
		AgentAPIURL:   sanitizeValue(os.Getenv(envAgentAPIURL)),
		WebhookURL:    sanitizeValue(os.Getenv(envWebhookURL)),
		WebhookPath:   webhookPath(),
		BackendToken:  sanitizeValue(os.Getenv(envBackendToken)),
		Region:        stringFromEnv(envRegion, defaultRegion),
		ServiceName:   stringFromEnv(envServiceName, defaultService),
		QueueCapacity: 100,
		Workers:       100,
		Logging:       LoggingFromEnv(),
	}

	adminIDs, err := parseAdminIDs(os.Getenv(envAdminIDs))
	if err != nil {
		return nil, err
	}
	cfg.AdminIDs = adminIDs

	token, err := resolveBotToken(ctx, store)
	if err != nil {
		return nil, err
	}
	cfg.BotToken = token

	cfg.WebhookSecret = resolveWebhookSecret(token)

	return cfg, nil
}

// FullWebhookURL joins the public base URL and the webhook path, or returns
// "" when webhook mode is not configured.
func (c *Config) FullWebhookURL() string {
	if c.WebhookURL == "" {
		return ""
	}

	return strings.TrimRight(c.WebhookURL, "/") + c.WebhookPath
}

// WebhookMode reports whether the process should register a webhook instead
// of long polling.
func (c *Config) WebhookMode() bool {
	return c.WebhookURL != ""
}

// resolveBotToken follows the resolution order: TELEGRAM_BOT_TOKEN env var
// first, then the managed secret store.
func resolveBotToken(ctx context.Context, store secrets.Getter) (string, error) {
	if raw := os.Getenv(envBotToken); raw != "" {
		if token := sanitizeValue(secrets.ExtractBotToken(raw)); token != "" {
			return token, nil
		}
	}

	if store != nil {
		param := stringFromEnv(envBotTokenParam, defaultTokenParam)
		payload, err := store.Get(ctx, param)
		if err == nil {
			if token := sanitizeValue(secrets.ExtractBotToken(payload)); token != "" {
				return token, nil
			}
		}
	}

	return "", errors.New("TELEGRAM_BOT_TOKEN not found")
}

// resolveWebhookSecret uses the configured secret when present, otherwise
// derives one from the bot token (sha256, first 32 hex chars) so webhook
// deployments always have a verifiable shared secret.
func resolveWebhookSecret(botToken string) string {
	if secret := sanitizeValue(os.Getenv(envWebhookSecret)); secret != "" {
		return secret
	}

	digest := sha256.Sum256([]byte(botToken))
	return hex.EncodeToString(digest[:])[:32]
}

// sanitizeValue trims whitespace and strips control characters. Returns ""
// for empty or all-control input.
func sanitizeValue(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r > 31 && r != 127 {
			b.WriteRune(r)
		}
	}

	return strings.TrimSpace(b.String())
}

func webhookPath() string {
	path := strings.TrimSpace(os.Getenv(envWebhookPath))
	if path == "" {
		return defaultPath
	}

	return path
}

func parseAdminIDs(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s entry %q: %w", envAdminIDs, part, err)
		}
		ids = append(ids, id)
	}

	return slices.Clip(ids), nil
}

func stringFromEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}

	return fallback
}

func intFromEnv(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
