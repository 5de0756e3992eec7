// Package orchestrator implements the session orchestrator of spec
// §4.7 — "the heart of the system": a per-session turn FSM plus the
// guards around it (barge-in, duplicate/overlap suppression, early
// LLM/TTS, endpointing delay, response cache, KB grounding, per-turn
// metrics). The FSM itself is built on looplab/fsm, a library the
// teacher never used directly, following the per-user runtime FSM of
// the example pack's xpanvictor-xarvis repo (see DESIGN.md); the
// aggregate-until-ready/one-flight-per-turn shape
// is grounded on the teacher's src/processors/aggregators/user.go
// (accumulate text, fire once per completed utterance, reset state on
// bot-stop) and assistant.go (accumulate LLM tokens until a flush
// boundary).
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/looplab/fsm"

	"github.com/square-key-labs/agentgateway/src/bargein"
)

// State names for the turn FSM (spec §4.7).
const (
	StateIdle           = "idle"
	StateListeningUser   = "listening_user"
	StateAwaitingFinal   = "awaiting_final"
	StateGeneratingLLM   = "generating_llm"
	StateSpeakingTTS     = "speaking_tts"
	StateDone            = "done"
	StateBarged          = "barged"
	StateErrored         = "errored"
)

// Event names driving FSM transitions.
const (
	EvPartial      = "partial"
	EvSilence      = "silence"
	EvFinalAccept  = "final_accept"
	EvEarlyTTS     = "early_tts"
	EvLLMEnd       = "llm_end"
	EvBarge        = "barge"
	EvError        = "error"
	EvReset        = "reset"
)

// Outcome is the terminal classification of a finished turn (spec §3
// Turn.outcome).
type Outcome string

const (
	OutcomeComplete Outcome = "complete"
	OutcomeBarged   Outcome = "barged"
	OutcomeErrored  Outcome = "errored"
)

// FirstMessageMode enumerates spec §4.7's first-message behavior.
type FirstMessageMode string

const (
	AssistantSpeaksFirst FirstMessageMode = "assistant_speaks_first"
	UserSpeaksFirst      FirstMessageMode = "user_speaks_first"
	WaitForUser          FirstMessageMode = "wait_for_user"
)

// Turn is one conversational turn's FSM and scratch state. A turn is
// created when the session first needs one (an assistant-first
// greeting, the first STT partial, or a promoted STT final with no live
// turn) and is terminal on tts.end.
type Turn struct {
	ID        string
	SessionID string
	StartedAt time.Time

	FSM *fsm.FSM

	// UserText is the normalized user utterance this turn is
	// responding to, used for the duplicate/overlap guard (spec §4.7).
	UserText string

	// TTS is the in-flight TTS state the barge-in policy evaluates
	// against. TTSActive additionally gates whether a barge-in check
	// runs at all.
	TTS       bargein.TTSState
	TTSActive bool

	// EarlyLLMStarted records whether this turn already used its one
	// allowed early-LLM start (spec §4.7: "Only one early start per
	// turn").
	EarlyLLMStarted bool

	// EarlyTTSPrefix is the LLM text accumulated at the moment early TTS
	// started, sent to TTS as its first fragment. It may run past the
	// sentence boundary that made it eligible; later LLM chunks are
	// spoken as they arrive, and no remainder is computed from it.
	EarlyTTSPrefix string

	// LLMCancel/TTSCancel are the per-turn cancellation tokens of spec
	// §4.7; barge.cancel invokes both.
	LLMCancel context.CancelFunc
	TTSCancel context.CancelFunc

	// Timestamps for per-turn metrics (spec §4.7).
	LastAudioAt     time.Time
	FinalAt         time.Time
	LLMFirstTokenAt time.Time
	TTSFirstAudioAt time.Time

	Outcome Outcome

	// onStateChange is invoked by the FSM's enter_state callback on every
	// transition (spec §4.7's orchestrator side effects), passed to
	// NewTurn by the session so the session doesn't need to
	// call notifyState explicitly after every Fire.
	onStateChange func(*Turn)
}

// NewTurn builds a Turn with a fresh FSM wired to spec §4.7's state
// diagram. onStateChange, if non-nil, runs as the FSM's enter_state
// callback — the side effect (emitting a turn.state wire frame) lives
// with the transition that caused it instead of being re-invoked by
// hand after every Fire call.
func NewTurn(id, sessionID string, onStateChange func(*Turn)) *Turn {
	t := &Turn{ID: id, SessionID: sessionID, StartedAt: time.Now(), onStateChange: onStateChange}
	t.FSM = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: EvPartial, Src: []string{StateIdle}, Dst: StateListeningUser},
			{Name: EvSilence, Src: []string{StateListeningUser}, Dst: StateAwaitingFinal},
			{Name: EvFinalAccept, Src: []string{StateAwaitingFinal, StateListeningUser}, Dst: StateGeneratingLLM},
			{Name: EvEarlyTTS, Src: []string{StateGeneratingLLM}, Dst: StateSpeakingTTS},
			{Name: EvLLMEnd, Src: []string{StateGeneratingLLM}, Dst: StateSpeakingTTS},
			{Name: EvBarge, Src: []string{
				StateIdle, StateListeningUser, StateAwaitingFinal,
				StateGeneratingLLM, StateSpeakingTTS,
			}, Dst: StateBarged},
			{Name: EvError, Src: []string{
				StateIdle, StateListeningUser, StateAwaitingFinal,
				StateGeneratingLLM, StateSpeakingTTS,
			}, Dst: StateErrored},
			{Name: EvReset, Src: []string{StateSpeakingTTS}, Dst: StateDone},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, _ *fsm.Event) {
				if t.onStateChange != nil {
					t.onStateChange(t)
				}
			},
		},
	)
	return t
}

// Fire drives the FSM and returns a descriptive error on an invalid
// transition rather than the raw fsm.InvalidEventError, matching this
// codebase's convention of human-readable diagnostics (see
// src/router.Decision.Reasons).
func (t *Turn) Fire(ctx context.Context, event string) error {
	if err := t.FSM.Event(ctx, event); err != nil {
		return fmt.Errorf("orchestrator: turn %s: %s -> %s: %w", t.ID, t.FSM.Current(), event, err)
	}
	return nil
}

func (t *Turn) Current() string { return t.FSM.Current() }

// Finish marks the turn terminal with the given outcome and cancels
// any still-running per-turn providers.
func (t *Turn) Finish(outcome Outcome) {
	t.Outcome = outcome
	if t.LLMCancel != nil {
		t.LLMCancel()
	}
	if t.TTSCancel != nil {
		t.TTSCancel()
	}
}

// E2ELatencyMs returns the turn's end-to-end latency in milliseconds,
// measured from the STT final to now.
func (t *Turn) E2ELatencyMs() float64 {
	if t.FinalAt.IsZero() {
		return 0
	}
	return float64(time.Since(t.FinalAt).Milliseconds())
}
