package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/square-key-labs/agentgateway/src/bargein"
	"github.com/square-key-labs/agentgateway/src/cache"
	"github.com/square-key-labs/agentgateway/src/config"
	"github.com/square-key-labs/agentgateway/src/kb"
	"github.com/square-key-labs/agentgateway/src/logger"
	"github.com/square-key-labs/agentgateway/src/memory"
	"github.com/square-key-labs/agentgateway/src/metrics"
	"github.com/square-key-labs/agentgateway/src/providers"
	"github.com/square-key-labs/agentgateway/src/providers/llm"
	"github.com/square-key-labs/agentgateway/src/providers/stt"
	"github.com/square-key-labs/agentgateway/src/providers/tts"
)

// Callbacks lets the gateway layer observe session-level output without
// the orchestrator depending on the transport.
type Callbacks struct {
	OnAudio      func(chunk tts.AudioChunk)
	OnTurnState  func(turnID, state string)
	OnTTSEnd     func(turnID string, outcome Outcome)
	OnError      func(err error)
}

// Session owns one conversation's STT/LLM/TTS streams, its memory, and
// the turn FSM driving them, per spec §3's Session ownership rule.
type Session struct {
	mu sync.Mutex

	ID      string
	AgentID string
	cfg     config.Config

	stt stt.Provider
	llm llm.Provider
	tts tts.Provider

	mem       *memory.Conversation
	respCache *cache.ResponseCache
	kbSource  kb.Source
	bargein   *bargein.Policy
	latency   *metrics.TurnLatencyTracker
	met       *metrics.Metrics

	firstMessageMode FirstMessageMode
	firstMessage     string

	endpointing EndpointingParams

	turn      *Turn
	turnSeq   uint64
	userSpeaking bool

	deferred bargein.DeferredQueue

	cb Callbacks

	log *logger.Logger
}

// NewSession wires one session's providers and supporting state. The
// caller (gateway) is responsible for selecting the concrete providers
// via src/router beforehand.
func NewSession(
	id, agentID string,
	cfg config.Config,
	sttP stt.Provider, llmP llm.Provider, ttsP tts.Provider,
	mem *memory.Conversation, respCache *cache.ResponseCache, kbSource kb.Source,
	latency *metrics.TurnLatencyTracker, met *metrics.Metrics,
	bargeinPolicy *bargein.Policy,
	firstMessageMode FirstMessageMode, firstMessage string,
	cb Callbacks,
) *Session {
	return &Session{
		ID: id, AgentID: agentID, cfg: cfg,
		stt: sttP, llm: llmP, tts: ttsP,
		mem: mem, respCache: respCache, kbSource: kbSource,
		bargein: bargeinPolicy, latency: latency, met: met,
		firstMessageMode: firstMessageMode, firstMessage: firstMessage,
		endpointing: DefaultEndpointingParams(),
		cb:          cb,
		log:         logger.WithPrefix(fmt.Sprintf("session[%s]", id)),
	}
}

func (s *Session) nextTurnID() string {
	s.turnSeq++
	return s.ID + "#" + strconv.FormatUint(s.turnSeq, 10)
}

// newTurn builds a Turn whose FSM enter_state callback drives
// s.notifyState directly, so callers don't need their own notifyState
// call after every Fire.
func (s *Session) newTurn() *Turn {
	return NewTurn(s.nextTurnID(), s.ID, s.notifyState)
}

// Start applies spec §4.7's first-message mode.
func (s *Session) Start(ctx context.Context) error {
	switch s.firstMessageMode {
	case AssistantSpeaksFirst:
		s.mu.Lock()
		turn := s.newTurn()
		s.turn = turn
		s.mu.Unlock()

		if s.firstMessage != "" {
			return s.speakDirect(ctx, turn, s.firstMessage, false)
		}
		return s.runLLMTurn(ctx, turn, "(greet the user briefly)")
	case UserSpeaksFirst, WaitForUser:
		return nil
	default:
		return fmt.Errorf("orchestrator: unknown first-message mode %q", s.firstMessageMode)
	}
}

// OnSTTPartial handles a partial transcript: the Idle->ListeningUser
// transition, the ListeningUser->AwaitingFinal transition on a
// sentence-complete suggestion, and the optional early-LLM start.
func (s *Session) OnSTTPartial(ctx context.Context, text string) {
	s.mu.Lock()
	s.userSpeaking = true
	turn := s.turn
	if turn == nil {
		turn = s.newTurn()
		s.turn = turn
	}
	s.mu.Unlock()

	analysis := stt.Analyze(text)

	if turn.Current() == StateIdle {
		_ = turn.Fire(ctx, EvPartial)
	}
	if turn.Current() == StateListeningUser && (analysis.Suggestion == stt.SuggestProcess) {
		_ = turn.Fire(ctx, EvSilence)
	}

	s.maybeStartEarlyLLM(ctx, turn, text, analysis)
}

func (s *Session) maybeStartEarlyLLM(ctx context.Context, turn *Turn, partial string, analysis stt.Analysis) {
	if !s.cfg.Features.EnableEarlyLLM || turn.EarlyLLMStarted || turn.TTSActive {
		return
	}
	if s.cfg.Features.StrictTurnTaking && s.userSpeaking {
		return
	}
	words := len(strings.Fields(partial))
	if analysis.Suggestion != stt.SuggestProcess || words < 8 {
		return
	}

	turn.EarlyLLMStarted = true
	go func() {
		if err := s.runLLMTurn(ctx, turn, partial); err != nil {
			s.onError(err)
		}
	}()
}

// OnSTTFinal handles a promoted STT final: the barge-in check when TTS
// is active, the duplicate/overlap guard against the active turn, and
// otherwise the AwaitingFinal->GeneratingLLM transition that starts a
// fresh turn.
func (s *Session) OnSTTFinal(ctx context.Context, text string, startTs, endTs time.Time) {
	s.mu.Lock()
	s.userSpeaking = false
	turn := s.turn
	s.mu.Unlock()

	normalized := stt.Normalize(text)

	if turn != nil && turn.TTSActive {
		turnLog := s.log.WithField("turn_id", turn.ID)
		decision := s.bargein.Evaluate(turn.TTS, text)
		if !decision.Allowed {
			s.deferred.Defer(text)
			turnLog.Debug("barge-in deferred: %s", decision.Reason)
			return
		}
		turnLog.Info("barge-in accepted: %s", decision.Reason)
		_ = turn.Fire(ctx, EvBarge)
		turn.Finish(OutcomeBarged)
		if s.cb.OnTTSEnd != nil {
			s.cb.OnTTSEnd(turn.ID, OutcomeBarged)
		}
		s.startNewTurn(ctx, text, startTs, endTs)
		return
	}

	if turn != nil && isDuplicateOrOverlap(turn.UserText, normalized) {
		s.log.Debug("suppressing duplicate/overlapping final: %q", text)
		return
	}

	s.startNewTurn(ctx, text, startTs, endTs)
}

func (s *Session) startNewTurn(ctx context.Context, text string, startTs, endTs time.Time) {
	s.mu.Lock()
	turn := s.turn
	if turn == nil || turn.Current() == StateDone || turn.Current() == StateBarged || turn.Current() == StateErrored {
		turn = s.newTurn()
		s.turn = turn
	}
	s.mu.Unlock()

	turn.FinalAt = time.Now()
	if !turn.LastAudioAt.IsZero() {
		s.sampleLatency("stt_final", endTs.Sub(turn.LastAudioAt))
	}

	if turn.Current() == StateIdle {
		_ = turn.Fire(ctx, EvPartial)
		_ = turn.Fire(ctx, EvSilence)
	} else if turn.Current() == StateListeningUser {
		_ = turn.Fire(ctx, EvSilence)
	}
	if err := turn.Fire(ctx, EvFinalAccept); err != nil {
		s.onError(err)
		return
	}

	go func() {
		if err := s.runLLMTurn(ctx, turn, text); err != nil {
			s.onError(err)
		}
	}()
}

// runLLMTurn resolves the turn's response (cache hit, KB grounding, or
// a streamed LLM completion), applies the endpointing delay (except on
// the early-TTS path, which starts TTS as soon as the streamed text is
// eligible), and feeds TTS, per spec §4.7.
func (s *Session) runLLMTurn(ctx context.Context, turn *Turn, userText string) error {
	normalized := stt.Normalize(userText)
	turn.UserText = normalized

	if normalized != "" {
		s.mem.Append(providers.Message{Role: "user", Content: userText})
	}

	if s.respCache != nil {
		if cached, ok := s.respCache.Get(cache.Key{AgentID: s.AgentID, NormalizedText: normalized}); ok {
			return s.speakDirect(ctx, turn, cached, true)
		}
	}

	var systemSuffix string
	if s.cfg.Features.KBEnabled && s.kbSource != nil {
		answer, err := s.kbSource.GroundedAnswer(ctx, userText, s.AgentID)
		if err != nil {
			s.log.Warn("KB lookup failed: %v", err)
		} else if answer.IsHighConfidence() {
			return s.speakDirect(ctx, turn, answer.Text, true)
		} else if len(answer.SupportingChunks) > 0 {
			systemSuffix = "\n\nSupporting context:\n" + strings.Join(answer.SupportingChunks, "\n")
		}
	}

	llmCtx, cancel := context.WithCancel(ctx)
	turn.LLMCancel = cancel
	defer cancel()

	req := llm.Request{
		SystemPrompt: systemSuffix,
		Messages:     s.mem.Messages(),
	}

	chunks, err := s.llm.StreamCompletion(llmCtx, req)
	if err != nil {
		_ = turn.Fire(ctx, EvError)
		turn.Finish(OutcomeErrored)
		return fmt.Errorf("orchestrator: StreamCompletion: %w", err)
	}

	var full strings.Builder
	firstToken := true
	earlyStarted := false

	for chunk := range chunks {
		if chunk.Err != nil {
			_ = turn.Fire(ctx, EvError)
			turn.Finish(OutcomeErrored)
			return chunk.Err
		}
		if chunk.Text == "" {
			continue
		}
		if firstToken {
			turn.LLMFirstTokenAt = time.Now()
			s.sampleLatency("llm_first_token", turn.LLMFirstTokenAt.Sub(turn.FinalAt))
			firstToken = false
		}
		full.WriteString(chunk.Text)

		if s.cfg.Features.EarlyTTSEnabled && !earlyStarted && stt.EarlyTTSEligible(full.String()) {
			earlyStarted = true
			turn.EarlyTTSPrefix = full.String()
			if err := s.startTTS(ctx, turn, turn.EarlyTTSPrefix, false, true); err != nil {
				return err
			}
		} else if earlyStarted {
			_ = s.tts.Speak(chunk.Text)
		}
	}

	full2 := full.String()
	if !earlyStarted {
		return s.speakDirect(ctx, turn, full2, false)
	}

	_ = s.tts.Flush()
	return nil
}

// speakDirect feeds text directly to TTS (cache hit, KB grounded
// answer, or the non-early-TTS path), applying the endpointing delay.
func (s *Session) speakDirect(ctx context.Context, turn *Turn, text string, groundedOrCached bool) error {
	delay := EndpointingDelay(s.endpointing, text, groundedOrCached, s.userSpeaking, s.cfg.Features.StrictTurnTaking)
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.startTTS(ctx, turn, text, true, false)
}

func (s *Session) startTTS(ctx context.Context, turn *Turn, text string, flushAfter, early bool) error {
	if turn.Current() == StateGeneratingLLM {
		event := EvLLMEnd
		if early {
			event = EvEarlyTTS
		}
		_ = turn.Fire(ctx, event)
	}
	s.notifyState(turn)

	ttsCtx, cancel := context.WithCancel(ctx)
	turn.TTSCancel = cancel

	turn.TTSActive = true
	turn.TTS = bargein.TTSState{StartedAt: time.Now(), Text: text}

	cb := tts.Callbacks{
		OnStarted: func() {
			turn.TTSFirstAudioAt = time.Now()
			s.sampleLatency("tts_first_audio", turn.TTSFirstAudioAt.Sub(turn.FinalAt))
		},
		OnAudio: func(chunk tts.AudioChunk) {
			if s.cb.OnAudio != nil {
				s.cb.OnAudio(chunk)
			}
		},
		OnStopped: func() {
			turn.TTSActive = false
			turn.Finish(OutcomeComplete)
			s.sampleLatency("e2e", time.Duration(turn.E2ELatencyMs())*time.Millisecond)
			s.mem.Append(providers.Message{Role: "assistant", Content: text})
			_ = turn.Fire(context.Background(), EvReset)
			if s.respCache != nil {
				s.respCache.Put(cache.Key{AgentID: s.AgentID, NormalizedText: turn.UserText}, text)
			}
			if s.cb.OnTTSEnd != nil {
				s.cb.OnTTSEnd(turn.ID, OutcomeComplete)
			}
			s.replayDeferred(ctx)
		},
		OnError: func(err error) { s.onError(err) },
	}

	if err := s.tts.Connect(ttsCtx, cb); err != nil {
		return fmt.Errorf("orchestrator: tts connect: %w", err)
	}
	if err := s.tts.Speak(text); err != nil {
		return fmt.Errorf("orchestrator: tts speak: %w", err)
	}
	if flushAfter {
		return s.tts.Flush()
	}
	return nil
}

// replayDeferred resends the single most-recently-deferred barge-in
// final once TTS ends, per spec §4.7.
func (s *Session) replayDeferred(ctx context.Context) {
	text, ok := s.deferred.Drain()
	if !ok {
		return
	}
	s.OnSTTFinal(ctx, text, time.Now(), time.Now())
}

// OnBargeCancel handles an explicit client barge.cancel: it aborts both
// per-turn cancellation tokens and ends TTS with the "barge" reason.
func (s *Session) OnBargeCancel(ctx context.Context) {
	s.mu.Lock()
	turn := s.turn
	s.mu.Unlock()
	if turn == nil {
		return
	}
	turn.Finish(OutcomeBarged)
	_ = turn.Fire(ctx, EvBarge)
	if s.cb.OnTTSEnd != nil {
		s.cb.OnTTSEnd(turn.ID, OutcomeBarged)
	}
}

func (s *Session) notifyState(turn *Turn) {
	if s.cb.OnTurnState != nil {
		s.cb.OnTurnState(turn.ID, turn.Current())
	}
}

func (s *Session) onError(err error) {
	s.log.Error("%v", err)
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
}

func (s *Session) sampleLatency(metricName string, d time.Duration) {
	if s.latency == nil || d <= 0 {
		return
	}
	s.latency.Sample(metricName, float64(d.Milliseconds()))
}

// MarkAudioReceived records the timestamp of the last audio frame, used
// to compute sttFinalLatencyMs.
func (s *Session) MarkAudioReceived(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turn != nil {
		s.turn.LastAudioAt = t
	}
}
