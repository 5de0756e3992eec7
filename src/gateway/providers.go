// Package gateway wires the wire protocol, connection pool, rate
// limiter, provider router, and session orchestrator into the single
// `/agent` WebSocket endpoint and HTTP sidecar of spec §6, adapted from
// teacher's src/transports/websocket.go (queued chunk sender without its
// real-time pacing, single http.Server per transport).
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/square-key-labs/agentgateway/src/config"
	"github.com/square-key-labs/agentgateway/src/health"
	"github.com/square-key-labs/agentgateway/src/providers/llm"
	"github.com/square-key-labs/agentgateway/src/providers/stt"
	"github.com/square-key-labs/agentgateway/src/providers/tts"
)

// ProviderFactory constructs concrete STT/LLM/TTS backends by name and
// registers their health checks, per spec §4.6's fixed candidate lists.
// One factory is shared process-wide; it holds no per-session state.
type ProviderFactory struct {
	cfg   config.Config
	store *health.Store
}

func NewProviderFactory(cfg config.Config, store *health.Store) *ProviderFactory {
	f := &ProviderFactory{cfg: cfg, store: store}
	f.registerHealthChecks()
	return f
}

func (f *ProviderFactory) registerHealthChecks() {
	f.store.Register(health.Key{Capability: "stt", Name: "deepgram"}, func(ctx context.Context) error {
		if f.cfg.Provider.DeepgramAPIKey == "" {
			return fmt.Errorf("gateway: DEEPGRAM_API_KEY not configured")
		}
		return nil
	})
	f.store.Register(health.Key{Capability: "llm", Name: "gemini"}, func(ctx context.Context) error {
		if f.cfg.Provider.GeminiAPIKey == "" {
			return fmt.Errorf("gateway: GEMINI_API_KEY not configured")
		}
		return nil
	})
	f.store.Register(health.Key{Capability: "llm", Name: "anthropic"}, func(ctx context.Context) error {
		if f.cfg.Provider.AnthropicAPIKey == "" {
			return fmt.Errorf("gateway: ANTHROPIC_API_KEY not configured")
		}
		return nil
	})
	f.store.Register(health.Key{Capability: "llm", Name: "openai"}, func(ctx context.Context) error {
		if f.cfg.Provider.OpenAIAPIKey == "" {
			return fmt.Errorf("gateway: OPENAI_API_KEY not configured")
		}
		return nil
	})
	f.store.Register(health.Key{Capability: "tts", Name: "elevenlabs"}, func(ctx context.Context) error {
		if f.cfg.Provider.ElevenLabsAPIKey == "" {
			return fmt.Errorf("gateway: ELEVENLABS_API_KEY not configured")
		}
		return nil
	})
	f.store.Register(health.Key{Capability: "tts", Name: "openai"}, func(ctx context.Context) error {
		if f.cfg.Provider.OpenAIAPIKey == "" {
			return fmt.Errorf("gateway: OPENAI_API_KEY not configured")
		}
		return nil
	})
}

// BuildSTT constructs the named STT backend (only "deepgram" per the
// router's fixed candidate list).
func (f *ProviderFactory) BuildSTT(name string) (stt.Provider, error) {
	switch name {
	case "deepgram":
		return stt.NewDeepgram(stt.DeepgramConfig{
			APIKey:         f.cfg.Provider.DeepgramAPIKey,
			Model:          f.cfg.STT.DeepgramModel,
			SilenceTimeout: time.Duration(f.cfg.STT.SilenceTimeoutMS) * time.Millisecond,
			UtteranceEndMs: time.Duration(f.cfg.STT.DeepgramUtteranceMS) * time.Millisecond,
			EndpointingMs:  time.Duration(f.cfg.STT.DeepgramEndpointMS) * time.Millisecond,
			AutoReconnect:  f.cfg.STT.DeepgramAutoReconn,
		}), nil
	default:
		return nil, fmt.Errorf("gateway: unknown STT provider %q", name)
	}
}

// BuildLLM constructs the named LLM backend, optionally overridden by a
// per-session model string (empty uses the backend's own default).
func (f *ProviderFactory) BuildLLM(ctx context.Context, name, model string) (llm.Provider, error) {
	switch name {
	case "gemini":
		if model == "" {
			model = "gemini-2.0-flash"
		}
		return llm.NewGemini(ctx, f.cfg.Provider.GeminiAPIKey, model)
	case "anthropic":
		if model == "" {
			model = "claude-3-5-haiku-latest"
		}
		return llm.NewAnthropic(f.cfg.Provider.AnthropicAPIKey, model)
	case "openai":
		if model == "" {
			model = "gpt-4o-mini"
		}
		return llm.NewOpenAI(f.cfg.Provider.OpenAIAPIKey, model)
	default:
		return nil, fmt.Errorf("gateway: unknown LLM provider %q", name)
	}
}

// BuildTTS constructs the named TTS backend for the given voice id.
func (f *ProviderFactory) BuildTTS(name, voiceID string) (tts.Provider, error) {
	switch name {
	case "elevenlabs":
		return tts.NewElevenLabs(tts.ElevenLabsConfig{
			APIKey:       f.cfg.Provider.ElevenLabsAPIKey,
			VoiceID:      voiceID,
			Model:        "eleven_turbo_v2_5",
			OutputFormat: "pcm_24000",
		}), nil
	case "openai":
		return tts.NewOpenAITTS(tts.OpenAIConfig{
			APIKey: f.cfg.Provider.OpenAIAPIKey,
			Model:  "tts-1",
			Voice:  voiceID,
		})
	default:
		return nil, fmt.Errorf("gateway: unknown TTS provider %q", name)
	}
}
