package router

import (
	"context"
	"errors"
	"testing"

	"github.com/square-key-labs/agentgateway/src/health"
)

func budget(v float64) *float64 { return &v }

func TestSelectChoosesPrimaryWhenHealthy(t *testing.T) {
	store := health.NewStore(health.DefaultConfig())
	for _, k := range []health.Key{
		{Capability: "llm", Name: "gemini"},
		{Capability: "stt", Name: "deepgram"},
		{Capability: "tts", Name: "elevenlabs"},
	} {
		store.Register(k, func(ctx context.Context) error { return nil })
	}

	r := New(store)
	plan, err := r.Select(context.Background(), Criteria{Tier: TierPro, Complexity: ComplexitySimple, BudgetUSD: budget(0.05)})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if plan.LLM.Chosen != "gemini" || plan.TTS.Chosen != "elevenlabs" {
		t.Fatalf("plan = %+v, want primaries chosen", plan)
	}
}

func TestSelectFallsBackOnUnhealthyPrimary(t *testing.T) {
	store := health.NewStore(health.DefaultConfig())
	store.Register(health.Key{Capability: "tts", Name: "elevenlabs"}, func(ctx context.Context) error {
		return errors.New("down")
	})
	store.Register(health.Key{Capability: "tts", Name: "openai"}, func(ctx context.Context) error { return nil })
	store.Register(health.Key{Capability: "llm", Name: "gemini"}, func(ctx context.Context) error { return nil })
	store.Register(health.Key{Capability: "stt", Name: "deepgram"}, func(ctx context.Context) error { return nil })

	r := New(store)
	plan, err := r.Select(context.Background(), Criteria{Tier: TierFree, Complexity: ComplexitySimple})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if plan.TTS.Chosen != "openai" {
		t.Fatalf("TTS.Chosen = %q, want openai", plan.TTS.Chosen)
	}

	foundUnhealthy, foundFallback := false, false
	for _, reason := range plan.TTS.Reasons {
		if reason == "tts.elevenlabs=unhealthy" {
			foundUnhealthy = true
		}
		if reason == "tts.fallback=openai" {
			foundFallback = true
		}
	}
	if !foundUnhealthy || !foundFallback {
		t.Fatalf("reasons = %v, want unhealthy+fallback markers", plan.TTS.Reasons)
	}
}

func TestSelectReturnsErrorWhenAllUnhealthy(t *testing.T) {
	store := health.NewStore(health.DefaultConfig())
	failing := func(ctx context.Context) error { return errors.New("down") }
	store.Register(health.Key{Capability: "stt", Name: "deepgram"}, failing)
	store.Register(health.Key{Capability: "llm", Name: "gemini"}, func(ctx context.Context) error { return nil })
	store.Register(health.Key{Capability: "tts", Name: "elevenlabs"}, func(ctx context.Context) error { return nil })

	r := New(store)
	_, err := r.Select(context.Background(), Criteria{Tier: TierPro, Complexity: ComplexityComplex})
	var noHealthy *ErrNoHealthyCandidate
	if !errors.As(err, &noHealthy) || noHealthy.Capability != "stt" {
		t.Fatalf("err = %v, want ErrNoHealthyCandidate for stt", err)
	}
}
