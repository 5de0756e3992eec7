package gateway

import (
	"context"
	"testing"

	"github.com/square-key-labs/agentgateway/src/config"
	"github.com/square-key-labs/agentgateway/src/health"
)

func TestProviderFactoryBuildsKnownBackends(t *testing.T) {
	cfg := config.Defaults()
	cfg.Provider.DeepgramAPIKey = "dg-key"
	cfg.Provider.GeminiAPIKey = "gem-key"
	store := health.NewStore(health.DefaultConfig())
	f := NewProviderFactory(cfg, store)

	if _, err := f.BuildSTT("deepgram"); err != nil {
		t.Fatalf("BuildSTT(deepgram): %v", err)
	}
	if _, err := f.BuildTTS("elevenlabs", "voice-1"); err != nil {
		t.Fatalf("BuildTTS(elevenlabs): %v", err)
	}
}

func TestProviderFactoryRejectsUnknownBackends(t *testing.T) {
	cfg := config.Defaults()
	store := health.NewStore(health.DefaultConfig())
	f := NewProviderFactory(cfg, store)

	if _, err := f.BuildSTT("not-a-provider"); err == nil {
		t.Fatalf("expected error for unknown STT provider")
	}
	if _, err := f.BuildLLM(context.Background(), "not-a-provider", ""); err == nil {
		t.Fatalf("expected error for unknown LLM provider")
	}
	if _, err := f.BuildTTS("not-a-provider", ""); err == nil {
		t.Fatalf("expected error for unknown TTS provider")
	}
}

func TestProviderFactoryRegistersHealthChecks(t *testing.T) {
	cfg := config.Defaults()
	cfg.Provider.DeepgramAPIKey = "dg-key"
	store := health.NewStore(health.DefaultConfig())
	NewProviderFactory(cfg, store)

	status := store.Check(context.Background(), health.Key{Capability: "stt", Name: "deepgram"}, nil)
	if status != health.StatusHealthy {
		t.Fatalf("expected stt/deepgram healthy, got %s", status)
	}

	status = store.Check(context.Background(), health.Key{Capability: "llm", Name: "gemini"}, nil)
	if status != health.StatusUnhealthy {
		t.Fatalf("expected llm/gemini unhealthy without a configured key, got %s", status)
	}
}
