package orchestrator

import (
	"context"
	"strings"
	"testing"
)

func TestTurnHappyPathTransitions(t *testing.T) {
	turn := NewTurn("t1", "s1", nil)
	ctx := context.Background()

	steps := []string{EvPartial, EvSilence, EvFinalAccept, EvLLMEnd, EvReset}
	for _, ev := range steps {
		if err := turn.Fire(ctx, ev); err != nil {
			t.Fatalf("Fire(%s) from %s: %v", ev, turn.Current(), err)
		}
	}
	if turn.Current() != StateDone {
		t.Fatalf("final state = %s, want %s", turn.Current(), StateDone)
	}
}

func TestTurnEarlyTTSPath(t *testing.T) {
	turn := NewTurn("t2", "s1", nil)
	ctx := context.Background()

	for _, ev := range []string{EvPartial, EvSilence, EvFinalAccept, EvEarlyTTS} {
		if err := turn.Fire(ctx, ev); err != nil {
			t.Fatalf("Fire(%s): %v", ev, err)
		}
	}
	if turn.Current() != StateSpeakingTTS {
		t.Fatalf("state = %s, want %s", turn.Current(), StateSpeakingTTS)
	}
}

func TestTurnBargeFromListeningUser(t *testing.T) {
	turn := NewTurn("t3", "s1", nil)
	ctx := context.Background()
	_ = turn.Fire(ctx, EvPartial)
	if err := turn.Fire(ctx, EvBarge); err != nil {
		t.Fatalf("Fire(barge) from listening_user: %v", err)
	}
	if turn.Current() != StateBarged {
		t.Fatalf("state = %s, want %s", turn.Current(), StateBarged)
	}
}

func TestTurnFinishCancelsTokens(t *testing.T) {
	turn := NewTurn("t4", "s1", nil)
	llmCancelled, ttsCancelled := false, false
	turn.LLMCancel = func() { llmCancelled = true }
	turn.TTSCancel = func() { ttsCancelled = true }

	turn.Finish(OutcomeBarged)

	if !llmCancelled || !ttsCancelled {
		t.Fatalf("Finish did not cancel both tokens: llm=%v tts=%v", llmCancelled, ttsCancelled)
	}
	if turn.Outcome != OutcomeBarged {
		t.Fatalf("Outcome = %v, want %v", turn.Outcome, OutcomeBarged)
	}
}

func TestInvalidTransitionReturnsDescriptiveError(t *testing.T) {
	turn := NewTurn("t5", "s1", nil)
	err := turn.Fire(context.Background(), EvFinalAccept)
	if err == nil {
		t.Fatal("expected error firing final_accept from idle")
	}
	if !strings.Contains(err.Error(), "idle -> final_accept") {
		t.Fatalf("error %q does not name the state and event", err)
	}
}

func TestOnStateChangeFiresOnEveryTransition(t *testing.T) {
	var seen []string
	turn := NewTurn("t6", "s1", func(tn *Turn) {
		seen = append(seen, tn.Current())
	})
	ctx := context.Background()

	for _, ev := range []string{EvPartial, EvSilence, EvFinalAccept} {
		if err := turn.Fire(ctx, ev); err != nil {
			t.Fatalf("Fire(%s): %v", ev, err)
		}
	}

	want := []string{StateListeningUser, StateAwaitingFinal, StateGeneratingLLM}
	if len(seen) != len(want) {
		t.Fatalf("onStateChange calls = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("onStateChange calls = %v, want %v", seen, want)
		}
	}
}
