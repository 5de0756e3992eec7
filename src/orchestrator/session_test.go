package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/square-key-labs/agentgateway/src/bargein"
	"github.com/square-key-labs/agentgateway/src/cache"
	"github.com/square-key-labs/agentgateway/src/config"
	"github.com/square-key-labs/agentgateway/src/kb"
	"github.com/square-key-labs/agentgateway/src/memory"
	"github.com/square-key-labs/agentgateway/src/metrics"
	"github.com/square-key-labs/agentgateway/src/providers/llm"
	"github.com/square-key-labs/agentgateway/src/providers/tts"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// fakeLLM streams a single fixed response as one chunk per call.
type fakeLLM struct{ response string }

func (f *fakeLLM) Initialize(ctx context.Context) error { return nil }
func (f *fakeLLM) Cleanup() error                       { return nil }
func (f *fakeLLM) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeLLM) Name() string                          { return "fake-llm" }
func (f *fakeLLM) StreamCompletion(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk, 2)
	ch <- llm.Chunk{Text: f.response}
	close(ch)
	return ch, nil
}

// fakeTTS synchronously invokes its callbacks so tests don't need to
// wait on network I/O.
type fakeTTS struct {
	cb     tts.Callbacks
	spoken []string
}

func (f *fakeTTS) Initialize(ctx context.Context) error  { return nil }
func (f *fakeTTS) Cleanup() error                        { return nil }
func (f *fakeTTS) HealthCheck(ctx context.Context) error  { return nil }
func (f *fakeTTS) Name() string                           { return "fake-tts" }
func (f *fakeTTS) Connect(ctx context.Context, cb tts.Callbacks) error {
	f.cb = cb
	return nil
}
func (f *fakeTTS) Speak(text string) error {
	f.spoken = append(f.spoken, text)
	if f.cb.OnStarted != nil {
		f.cb.OnStarted()
	}
	if f.cb.OnAudio != nil {
		f.cb.OnAudio(tts.AudioChunk{Data: []byte(text)})
	}
	return nil
}
func (f *fakeTTS) Flush() error {
	if f.cb.OnStopped != nil {
		f.cb.OnStopped()
	}
	return nil
}
func (f *fakeTTS) Interrupt() error { return nil }
func (f *fakeTTS) Close() error     { return nil }

func newTestSession(t *testing.T, llmResponse string) (*Session, *fakeTTS, chan Outcome) {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	met, err := metrics.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	tracker := metrics.NewTurnLatencyTracker(met, metrics.DefaultLatencyThresholds())

	fllm := &fakeLLM{response: llmResponse}
	ftts := &fakeTTS{}
	mem := memory.NewConversation(memory.DefaultCap)
	respCache := cache.New(time.Minute)

	done := make(chan Outcome, 4)
	cb := Callbacks{
		OnTTSEnd: func(turnID string, outcome Outcome) { done <- outcome },
	}

	cfg := config.Defaults()
	sess := NewSession(
		"sess-1", "agent-1", cfg,
		nil, fllm, ftts,
		mem, respCache, kb.NoOp{},
		tracker, met,
		bargein.New(bargein.DefaultConfig()),
		UserSpeaksFirst, "",
		cb,
	)
	return sess, ftts, done
}

func TestSessionFullTurnCompletesAndSpeaks(t *testing.T) {
	sess, ftts, done := newTestSession(t, "sure, here is your answer.")

	sess.OnSTTFinal(context.Background(), "what is my account balance", time.Now(), time.Now())

	select {
	case outcome := <-done:
		if outcome != OutcomeComplete {
			t.Fatalf("outcome = %v, want complete", outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for turn to complete")
	}

	if len(ftts.spoken) == 0 {
		t.Fatal("expected TTS to have spoken something")
	}
	if sess.turn.Current() != StateDone {
		t.Fatalf("turn state = %s, want done", sess.turn.Current())
	}
}

func TestSessionCacheHitSkipsLLM(t *testing.T) {
	sess, ftts, done := newTestSession(t, "this response should not be used")
	sess.respCache.Put(cache.Key{AgentID: "agent-1", NormalizedText: "what is the weather"}, "it is sunny")

	sess.OnSTTFinal(context.Background(), "what is the weather", time.Now(), time.Now())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for turn to complete")
	}

	if len(ftts.spoken) != 1 || ftts.spoken[0] != "it is sunny" {
		t.Fatalf("spoken = %v, want [it is sunny] (cached)", ftts.spoken)
	}
}
