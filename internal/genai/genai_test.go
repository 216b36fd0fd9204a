package genai

import (
	"os"
	"testing"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	orig := os.Getenv("OPENAI_API_KEY")
	os.Unsetenv("OPENAI_API_KEY")
	defer func() {
		if orig != "" {
			os.Setenv("OPENAI_API_KEY", orig)
		}
	}()

	if _, err := NewClient(); err == nil {
		t.Error("expected error without an API key")
	}
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.model != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, client.model)
	}
	if client.temperature != DefaultTemperature {
		t.Errorf("expected default temperature %g, got %g", DefaultTemperature, client.temperature)
	}
	if client.maxTokens != DefaultMaxTokens {
		t.Errorf("expected default max tokens %d, got %d", DefaultMaxTokens, client.maxTokens)
	}
}

func TestNewClientOptions(t *testing.T) {
	client, err := NewClient(
		WithAPIKey("test-key"),
		WithModel("gpt-4o"),
		WithTemperature(0.2),
		WithMaxTokens(512),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.model != "gpt-4o" || client.temperature != 0.2 || client.maxTokens != 512 {
		t.Errorf("options not applied: model=%q temperature=%g maxTokens=%d",
			client.model, client.temperature, client.maxTokens)
	}
}

func TestLastUsageZeroBeforeCalls(t *testing.T) {
	client, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if usage := client.LastUsage(); usage.TotalTokens != 0 {
		t.Errorf("expected zero usage before any call, got %+v", usage)
	}
}
