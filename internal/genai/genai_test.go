package genai

import (
	"testing"

	"github.com/openai/openai-go"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Fatal("expected an error without an API key")
	}
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.model != openai.ChatModelGPT4o {
		t.Errorf("default model = %s", client.model)
	}
	if client.embeddingModel != openai.EmbeddingModelTextEmbeddingAda002 {
		t.Errorf("default embedding model = %s", client.embeddingModel)
	}
}

func TestNewClientEnvFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	if _, err := NewClient(WithModel(openai.ChatModelGPT4oMini)); err != nil {
		t.Fatalf("NewClient failed with env key: %v", err)
	}
}
