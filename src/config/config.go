// Package config loads the gateway's entirely environment-variable-driven
// configuration surface (spec §6), following the viper wiring idiom of
// CWBudde-go-pocket-tts's internal/config.Load: a fresh viper instance per
// load, explicit env bindings, and Unmarshal into a typed struct. Unlike
// the teacher, this module takes no config file and no CLI flags — every
// setting is named literally in spec §6, so each is bound by its exact
// environment variable name rather than derived from a flag set.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the fully resolved gateway configuration.
type Config struct {
	Server   ServerConfig
	STT      STTConfig
	TTS      TTSConfig
	Safety   SafetyConfig
	Features FeaturesConfig
	Provider ProviderConfig
}

type ServerConfig struct {
	Port              string `mapstructure:"PORT"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	TestHooksEnabled  bool   `mapstructure:"TEST_HOOKS_ENABLED"`
	AllowedOrigins    string `mapstructure:"ALLOWED_ORIGINS"`
	AgentWSToken      string `mapstructure:"AGENT_WS_TOKEN"`
	SessionJWTSecret  string `mapstructure:"SESSION_JWT_SECRET"`
}

type STTConfig struct {
	SilenceTimeoutMS    int    `mapstructure:"STT_SILENCE_TIMEOUT_MS"`
	DeepgramUtteranceMS int    `mapstructure:"DEEPGRAM_UTTERANCE_END_MS"`
	DeepgramEndpointMS  int    `mapstructure:"DEEPGRAM_ENDPOINTING_MS"`
	DeepgramModel       string `mapstructure:"DEEPGRAM_MODEL"`
	DeepgramAutoReconn  bool   `mapstructure:"DEEPGRAM_AUTO_RECONNECT"`
}

type TTSConfig struct {
	MinDurationMS            int    `mapstructure:"TTS_MIN_DURATION_MS"`
	BargeThresholdWords       int    `mapstructure:"TTS_BARGE_THRESHOLD_WORDS"`
	ProtectedPhrases          string `mapstructure:"TTS_PROTECTED_PHRASES"`
	SentenceBoundaryProtected bool   `mapstructure:"TTS_SENTENCE_BOUNDARY_PROTECTION"`
	ClauseProtectionMS        int    `mapstructure:"TTS_CLAUSE_PROTECTION_MS"`
	CriticalInfoProtection    bool   `mapstructure:"TTS_CRITICAL_INFO_PROTECTION"`
}

type SafetyConfig struct {
	MaxFrameBytes       int `mapstructure:"MAX_FRAME_BYTES"`
	MaxJSONBytes        int `mapstructure:"MAX_JSON_BYTES"`
	MaxAudioFramesPerS  int `mapstructure:"MAX_AUDIO_FRAMES_PER_SEC"`
	ConversationMax     int `mapstructure:"CONVERSATION_MAX"`
}

type FeaturesConfig struct {
	EnableMultiProvider  bool `mapstructure:"ENABLE_MULTI_PROVIDER"`
	EnableProviderRouter bool `mapstructure:"ENABLE_PROVIDER_ROUTER"`
	EnableEarlyLLM       bool `mapstructure:"ENABLE_EARLY_LLM"`
	EarlyTTSEnabled      bool `mapstructure:"EARLY_TTS_ENABLED"`
	StrictTurnTaking     bool `mapstructure:"STRICT_TURN_TAKING"`
	EnablePartialBarge   bool `mapstructure:"ENABLE_PARTIAL_BARGE"`
	ActionsEnabled       bool `mapstructure:"ACTIONS_ENABLED"`
	KBEnabled            bool `mapstructure:"KB_ENABLED"`
	ResponseCacheTTLMS   int  `mapstructure:"RESPONSE_CACHE_TTL_MS"`
}

// ProviderConfig carries API keys/endpoints for the concrete STT/LLM/TTS
// backends. Required keys are validated in Load per spec §6 ("reject on
// missing required secrets").
type ProviderConfig struct {
	DeepgramAPIKey   string `mapstructure:"DEEPGRAM_API_KEY"`
	GeminiAPIKey     string `mapstructure:"GEMINI_API_KEY"`
	AnthropicAPIKey  string `mapstructure:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey     string `mapstructure:"OPENAI_API_KEY"`
	ElevenLabsAPIKey string `mapstructure:"ELEVENLABS_API_KEY"`
}

var envVars = []string{
	"PORT", "LOG_LEVEL", "TEST_HOOKS_ENABLED", "ALLOWED_ORIGINS", "AGENT_WS_TOKEN", "SESSION_JWT_SECRET",
	"STT_SILENCE_TIMEOUT_MS", "DEEPGRAM_UTTERANCE_END_MS", "DEEPGRAM_ENDPOINTING_MS", "DEEPGRAM_MODEL", "DEEPGRAM_AUTO_RECONNECT",
	"TTS_MIN_DURATION_MS", "TTS_BARGE_THRESHOLD_WORDS", "TTS_PROTECTED_PHRASES", "TTS_SENTENCE_BOUNDARY_PROTECTION", "TTS_CLAUSE_PROTECTION_MS", "TTS_CRITICAL_INFO_PROTECTION",
	"MAX_FRAME_BYTES", "MAX_JSON_BYTES", "MAX_AUDIO_FRAMES_PER_SEC", "CONVERSATION_MAX",
	"ENABLE_MULTI_PROVIDER", "ENABLE_PROVIDER_ROUTER", "ENABLE_EARLY_LLM", "EARLY_TTS_ENABLED", "STRICT_TURN_TAKING", "ENABLE_PARTIAL_BARGE", "ACTIONS_ENABLED", "KB_ENABLED", "RESPONSE_CACHE_TTL_MS",
	"DEEPGRAM_API_KEY", "GEMINI_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "ELEVENLABS_API_KEY",
}

// Defaults returns the spec's documented defaults (the "stricter" set per
// spec §9's first open-question resolution — see DESIGN.md).
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:     "8080",
			LogLevel: "info",
		},
		STT: STTConfig{
			SilenceTimeoutMS:    2500,
			DeepgramUtteranceMS: 1000,
			DeepgramEndpointMS:  300,
			DeepgramModel:       "nova-2",
			DeepgramAutoReconn:  true,
		},
		TTS: TTSConfig{
			MinDurationMS:             500,
			BargeThresholdWords:       3,
			SentenceBoundaryProtected: true,
			ClauseProtectionMS:        300,
			CriticalInfoProtection:    true,
		},
		Safety: SafetyConfig{
			MaxFrameBytes:      1 << 20,
			MaxJSONBytes:       1 << 16,
			MaxAudioFramesPerS: 50,
			ConversationMax:    500,
		},
		Features: FeaturesConfig{
			EnableMultiProvider:  true,
			EnableProviderRouter: true,
			EnableEarlyLLM:       true,
			EarlyTTSEnabled:      true,
			StrictTurnTaking:     false,
			EnablePartialBarge:   false,
			ActionsEnabled:       false,
			KBEnabled:            false,
			ResponseCacheTTLMS:   5 * 60 * 1000,
		},
	}
}

// Load reads the gateway configuration from the process environment,
// overlaying it on Defaults(), and validates required secrets.
func Load() (Config, error) {
	v := viper.New()
	applyDefaults(v, Defaults())

	for _, name := range envVars {
		if err := v.BindEnv(name); err != nil {
			return Config{}, fmt.Errorf("config: bind %s: %w", name, err)
		}
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := Defaults()
	cfg.Server.Port = v.GetString("PORT")
	cfg.Server.LogLevel = v.GetString("LOG_LEVEL")
	cfg.Server.TestHooksEnabled = v.GetBool("TEST_HOOKS_ENABLED")
	cfg.Server.AllowedOrigins = v.GetString("ALLOWED_ORIGINS")
	cfg.Server.AgentWSToken = v.GetString("AGENT_WS_TOKEN")
	cfg.Server.SessionJWTSecret = v.GetString("SESSION_JWT_SECRET")

	cfg.STT.SilenceTimeoutMS = v.GetInt("STT_SILENCE_TIMEOUT_MS")
	cfg.STT.DeepgramUtteranceMS = v.GetInt("DEEPGRAM_UTTERANCE_END_MS")
	cfg.STT.DeepgramEndpointMS = v.GetInt("DEEPGRAM_ENDPOINTING_MS")
	cfg.STT.DeepgramModel = v.GetString("DEEPGRAM_MODEL")
	cfg.STT.DeepgramAutoReconn = v.GetBool("DEEPGRAM_AUTO_RECONNECT")

	cfg.TTS.MinDurationMS = v.GetInt("TTS_MIN_DURATION_MS")
	cfg.TTS.BargeThresholdWords = v.GetInt("TTS_BARGE_THRESHOLD_WORDS")
	cfg.TTS.ProtectedPhrases = v.GetString("TTS_PROTECTED_PHRASES")
	cfg.TTS.SentenceBoundaryProtected = v.GetBool("TTS_SENTENCE_BOUNDARY_PROTECTION")
	cfg.TTS.ClauseProtectionMS = v.GetInt("TTS_CLAUSE_PROTECTION_MS")
	cfg.TTS.CriticalInfoProtection = v.GetBool("TTS_CRITICAL_INFO_PROTECTION")

	cfg.Safety.MaxFrameBytes = v.GetInt("MAX_FRAME_BYTES")
	cfg.Safety.MaxJSONBytes = v.GetInt("MAX_JSON_BYTES")
	cfg.Safety.MaxAudioFramesPerS = v.GetInt("MAX_AUDIO_FRAMES_PER_SEC")
	cfg.Safety.ConversationMax = v.GetInt("CONVERSATION_MAX")

	cfg.Features.EnableMultiProvider = v.GetBool("ENABLE_MULTI_PROVIDER")
	cfg.Features.EnableProviderRouter = v.GetBool("ENABLE_PROVIDER_ROUTER")
	cfg.Features.EnableEarlyLLM = v.GetBool("ENABLE_EARLY_LLM")
	cfg.Features.EarlyTTSEnabled = v.GetBool("EARLY_TTS_ENABLED")
	cfg.Features.StrictTurnTaking = v.GetBool("STRICT_TURN_TAKING")
	cfg.Features.EnablePartialBarge = v.GetBool("ENABLE_PARTIAL_BARGE")
	cfg.Features.ActionsEnabled = v.GetBool("ACTIONS_ENABLED")
	cfg.Features.KBEnabled = v.GetBool("KB_ENABLED")
	cfg.Features.ResponseCacheTTLMS = v.GetInt("RESPONSE_CACHE_TTL_MS")

	cfg.Provider.DeepgramAPIKey = v.GetString("DEEPGRAM_API_KEY")
	cfg.Provider.GeminiAPIKey = v.GetString("GEMINI_API_KEY")
	cfg.Provider.AnthropicAPIKey = v.GetString("ANTHROPIC_API_KEY")
	cfg.Provider.OpenAIAPIKey = v.GetString("OPENAI_API_KEY")
	cfg.Provider.ElevenLabsAPIKey = v.GetString("ELEVENLABS_API_KEY")

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(v *viper.Viper, d Config) {
	v.SetDefault("PORT", d.Server.Port)
	v.SetDefault("LOG_LEVEL", d.Server.LogLevel)
	v.SetDefault("STT_SILENCE_TIMEOUT_MS", d.STT.SilenceTimeoutMS)
	v.SetDefault("DEEPGRAM_UTTERANCE_END_MS", d.STT.DeepgramUtteranceMS)
	v.SetDefault("DEEPGRAM_ENDPOINTING_MS", d.STT.DeepgramEndpointMS)
	v.SetDefault("DEEPGRAM_MODEL", d.STT.DeepgramModel)
	v.SetDefault("DEEPGRAM_AUTO_RECONNECT", d.STT.DeepgramAutoReconn)
	v.SetDefault("TTS_MIN_DURATION_MS", d.TTS.MinDurationMS)
	v.SetDefault("TTS_BARGE_THRESHOLD_WORDS", d.TTS.BargeThresholdWords)
	v.SetDefault("TTS_SENTENCE_BOUNDARY_PROTECTION", d.TTS.SentenceBoundaryProtected)
	v.SetDefault("TTS_CLAUSE_PROTECTION_MS", d.TTS.ClauseProtectionMS)
	v.SetDefault("TTS_CRITICAL_INFO_PROTECTION", d.TTS.CriticalInfoProtection)
	v.SetDefault("MAX_FRAME_BYTES", d.Safety.MaxFrameBytes)
	v.SetDefault("MAX_JSON_BYTES", d.Safety.MaxJSONBytes)
	v.SetDefault("MAX_AUDIO_FRAMES_PER_SEC", d.Safety.MaxAudioFramesPerS)
	v.SetDefault("CONVERSATION_MAX", d.Safety.ConversationMax)
	v.SetDefault("ENABLE_MULTI_PROVIDER", d.Features.EnableMultiProvider)
	v.SetDefault("ENABLE_PROVIDER_ROUTER", d.Features.EnableProviderRouter)
	v.SetDefault("ENABLE_EARLY_LLM", d.Features.EnableEarlyLLM)
	v.SetDefault("EARLY_TTS_ENABLED", d.Features.EarlyTTSEnabled)
	v.SetDefault("STRICT_TURN_TAKING", d.Features.StrictTurnTaking)
	v.SetDefault("ENABLE_PARTIAL_BARGE", d.Features.EnablePartialBarge)
	v.SetDefault("ACTIONS_ENABLED", d.Features.ActionsEnabled)
	v.SetDefault("KB_ENABLED", d.Features.KBEnabled)
	v.SetDefault("RESPONSE_CACHE_TTL_MS", d.Features.ResponseCacheTTLMS)
}

// validate rejects configurations missing a required secret. It only
// checks that keys are present; the shape of a provider key is not
// checked and nothing is logged for a malformed one.
func validate(cfg Config) error {
	if cfg.Server.SessionJWTSecret == "" {
		return fmt.Errorf("config: SESSION_JWT_SECRET is required")
	}
	if cfg.Provider.DeepgramAPIKey == "" {
		return fmt.Errorf("config: DEEPGRAM_API_KEY is required (the router's fixed STT candidate list is [deepgram])")
	}
	if !cfg.Features.EnableMultiProvider {
		return nil
	}
	if cfg.Provider.GeminiAPIKey == "" && cfg.Provider.AnthropicAPIKey == "" && cfg.Provider.OpenAIAPIKey == "" {
		return fmt.Errorf("config: at least one LLM provider API key (GEMINI_API_KEY, ANTHROPIC_API_KEY, OPENAI_API_KEY) is required")
	}
	if cfg.Provider.ElevenLabsAPIKey == "" && cfg.Provider.OpenAIAPIKey == "" {
		return fmt.Errorf("config: at least one TTS provider API key (ELEVENLABS_API_KEY, OPENAI_API_KEY) is required")
	}
	return nil
}

// OriginAllowList splits the ALLOWED_ORIGINS CSV into a slice, trimming
// whitespace and skipping empty entries.
func (s ServerConfig) OriginAllowList() []string {
	if s.AllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(s.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ProtectedPhraseList splits TTS_PROTECTED_PHRASES (CSV) into patterns
// used by src/bargein alongside its built-in protected-pattern regexes.
func (t TTSConfig) ProtectedPhraseList() []string {
	if t.ProtectedPhrases == "" {
		return nil
	}
	parts := strings.Split(t.ProtectedPhrases, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
