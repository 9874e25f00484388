package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type fakeSSM struct {
	values map[string]string
	err    error

	lastName       string
	withDecryption bool
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if in.Name != nil {
		f.lastName = *in.Name
	}
	if in.WithDecryption != nil {
		f.withDecryption = *in.WithDecryption
	}
	if f.err != nil {
		return nil, f.err
	}

	value, ok := f.values[f.lastName]
	if !ok {
		return &ssm.GetParameterOutput{}, nil
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: &value}}, nil
}

func TestStoreGet(t *testing.T) {
	api := &fakeSSM{values: map[string]string{"TELEGRAM_BOT_TOKEN": "123456:abc"}}
	store, err := NewStore(api, nil)
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}

	value, err := store.Get(context.Background(), " TELEGRAM_BOT_TOKEN ")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if value != "123456:abc" {
		t.Fatalf("Get = %q", value)
	}
	if api.lastName != "TELEGRAM_BOT_TOKEN" {
		t.Fatalf("parameter name = %q, want trimmed", api.lastName)
	}
	if !api.withDecryption {
		t.Fatal("WithDecryption not requested")
	}
}

func TestStoreGetErrors(t *testing.T) {
	store, err := NewStore(&fakeSSM{err: errors.New("access denied")}, nil)
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}

	if _, err := store.Get(context.Background(), "NAME"); err == nil {
		t.Fatal("expected error from API failure")
	}
	if _, err := store.Get(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestStoreGetMissingValue(t *testing.T) {
	store, err := NewStore(&fakeSSM{}, nil)
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}

	if _, err := store.Get(context.Background(), "MISSING"); err == nil {
		t.Fatal("expected error for parameter without value")
	}
}

func TestNewStoreRequiresAPI(t *testing.T) {
	if _, err := NewStore(nil, nil); err == nil {
		t.Fatal("expected error for nil api")
	}
}

func TestExtractBotToken(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"bare token", "123456:ABC-DEF_ghi", "123456:ABC-DEF_ghi"},
		{"bare token with whitespace", "  123456:ABC \n", "123456:ABC"},
		{"env file", "OTHER=x\nTELEGRAM_BOT_TOKEN=123456:ABC\nMORE=y", "123456:ABC"},
		{"concatenated pairs", "OTHER=xTELEGRAM_BOT_TOKEN=123456:ABC", "123456:ABC"},
		{"no token in pairs", "OTHER=x\nMORE=y", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractBotToken(tt.payload); got != tt.want {
				t.Fatalf("ExtractBotToken(%q) = %q, want %q", tt.payload, got, tt.want)
			}
		})
	}
}
