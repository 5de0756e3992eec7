package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestCheckOpensCircuitAfterThreshold(t *testing.T) {
	store := NewStore(Config{
		TTL:              0, // always re-check so we can drive failures deterministically
		FailureThreshold: 3,
		OpenDuration:     time.Hour,
		CheckTimeout:     time.Second,
	})

	key := Key{Capability: "tts", Name: "elevenlabs"}
	var calls int32
	failing := func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	}

	for i := 0; i < 3; i++ {
		if status := store.Check(context.Background(), key, failing); status != StatusUnhealthy {
			t.Fatalf("check %d: status = %v, want unhealthy", i, status)
		}
	}

	before := atomic.LoadInt32(&calls)
	if status := store.Check(context.Background(), key, failing); status != StatusUnhealthy {
		t.Fatalf("status after opening = %v, want unhealthy", status)
	}
	if atomic.LoadInt32(&calls) != before {
		t.Fatal("Check invoked fn while the circuit was open")
	}
}

func TestCheckCachesWithinTTL(t *testing.T) {
	store := NewStore(Config{
		TTL:              time.Hour,
		FailureThreshold: 3,
		OpenDuration:     time.Minute,
		CheckTimeout:     time.Second,
	})

	key := Key{Capability: "llm", Name: "openai"}
	var calls int32
	succeeding := func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}

	for i := 0; i < 5; i++ {
		if status := store.Check(context.Background(), key, succeeding); status != StatusHealthy {
			t.Fatalf("status = %v, want healthy", status)
		}
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("fn invoked %d times, want 1 (cached within TTL)", calls)
	}
}

func TestProbeAllRunsConcurrently(t *testing.T) {
	store := NewStore(DefaultConfig())
	keys := []Key{
		{Capability: "stt", Name: "deepgram"},
		{Capability: "tts", Name: "elevenlabs"},
		{Capability: "llm", Name: "gemini"},
	}
	for _, k := range keys {
		store.Register(k, func(ctx context.Context) error { return nil })
	}

	results := store.ProbeAll(context.Background(), keys)
	if len(results) != len(keys) {
		t.Fatalf("got %d results, want %d", len(results), len(keys))
	}
	for k, status := range results {
		if status != StatusHealthy {
			t.Errorf("key %v status = %v, want healthy", k, status)
		}
	}
}
