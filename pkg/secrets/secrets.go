// Package secrets resolves deployment secrets from AWS SSM Parameter Store.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is the minimal AWS SSM surface required by Store.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter fetches one named secret value. Consumers should depend on this
// interface rather than the concrete *Store so they stay testable without
// real AWS calls.
type Getter interface {
	Get(ctx context.Context, name string) (string, error)
}

// Store wraps an AWS SSM client for secret retrieval.
type Store struct {
	api ssmAPI
	log *slog.Logger
}

// NewStore creates a Store with the given SSM API implementation.
func NewStore(api ssmAPI, log *slog.Logger) (*Store, error) {
	if api == nil {
		return nil, errors.New("secrets: api must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Store{api: api, log: log.With("component", "secrets.store")}, nil
}

// Get fetches a decrypted parameter value by name.
func (s *Store) Get(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("secrets: name is required")
	}

	withDecryption := true
	out, err := s.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("secrets: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("secrets: parameter missing value")
	}

	return *out.Parameter.Value, nil
}

// Telegram bot tokens look like "123456:ABC-DEF...".
var botTokenPattern = regexp.MustCompile(`TELEGRAM_BOT_TOKEN=(\d+:[A-Za-z0-9_-]+)`)

// ExtractBotToken pulls a Telegram bot token out of a secret payload.
//
// Accepted formats: a bare token, key=value lines separated by newlines,
// or key=value pairs concatenated without separators.
func ExtractBotToken(payload string) string {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return ""
	}

	if match := botTokenPattern.FindStringSubmatch(payload); match != nil {
		return match[1]
	}

	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(line)
		if value, ok := strings.CutPrefix(line, "TELEGRAM_BOT_TOKEN="); ok {
			return strings.TrimSpace(value)
		}
	}

	// No key=value structure at all: the whole payload is the token.
	if !strings.Contains(payload, "=") {
		return payload
	}

	return ""
}
