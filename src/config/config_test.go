package config

import "testing"

func setRequiredSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_JWT_SECRET", "test-secret")
	t.Setenv("DEEPGRAM_API_KEY", "dg-test-key")
	t.Setenv("OPENAI_API_KEY", "oai-test-key")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequiredSecrets(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.TTS.MinDurationMS != 500 {
		t.Errorf("TTS.MinDurationMS = %d, want 500", cfg.TTS.MinDurationMS)
	}
	if cfg.Safety.MaxAudioFramesPerS != 50 {
		t.Errorf("Safety.MaxAudioFramesPerS = %d, want 50", cfg.Safety.MaxAudioFramesPerS)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_AUDIO_FRAMES_PER_SEC", "75")
	t.Setenv("ENABLE_EARLY_LLM", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Safety.MaxAudioFramesPerS != 75 {
		t.Errorf("MaxAudioFramesPerS = %d, want 75", cfg.Safety.MaxAudioFramesPerS)
	}
	if cfg.Features.EnableEarlyLLM {
		t.Error("EnableEarlyLLM = true, want false")
	}
}

func TestLoadRejectsMissingJWTSecret(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "dg-test-key")
	t.Setenv("OPENAI_API_KEY", "oai-test-key")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing SESSION_JWT_SECRET")
	}
}

func TestLoadRejectsMissingSTTKey(t *testing.T) {
	t.Setenv("SESSION_JWT_SECRET", "test-secret")
	t.Setenv("OPENAI_API_KEY", "oai-test-key")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing DEEPGRAM_API_KEY")
	}
}

func TestOriginAllowList(t *testing.T) {
	s := ServerConfig{AllowedOrigins: " https://a.example , https://b.example,,"}
	got := s.OriginAllowList()
	want := []string{"https://a.example", "https://b.example"}
	if len(got) != len(want) {
		t.Fatalf("OriginAllowList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("OriginAllowList[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
