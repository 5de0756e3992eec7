package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/square-key-labs/agentgateway/src/bargein"
	"github.com/square-key-labs/agentgateway/src/cache"
	"github.com/square-key-labs/agentgateway/src/config"
	"github.com/square-key-labs/agentgateway/src/connpool"
	"github.com/square-key-labs/agentgateway/src/events"
	"github.com/square-key-labs/agentgateway/src/health"
	"github.com/square-key-labs/agentgateway/src/kb"
	"github.com/square-key-labs/agentgateway/src/logger"
	"github.com/square-key-labs/agentgateway/src/memory"
	"github.com/square-key-labs/agentgateway/src/metrics"
	"github.com/square-key-labs/agentgateway/src/orchestrator"
	"github.com/square-key-labs/agentgateway/src/providers/stt"
	"github.com/square-key-labs/agentgateway/src/providers/tts"
	"github.com/square-key-labs/agentgateway/src/queue"
	"github.com/square-key-labs/agentgateway/src/ratelimit"
	"github.com/square-key-labs/agentgateway/src/router"
	"github.com/square-key-labs/agentgateway/src/wire"
)

// sessionStartPayload mirrors the session.start envelope's data object
// (spec §6).
type sessionStartPayload struct {
	SystemPrompt     string                 `json:"systemPrompt"`
	VoiceID          string                 `json:"voiceId"`
	VADEnabled       bool                   `json:"vadEnabled"`
	PTTMode          bool                   `json:"pttMode"`
	Language         string                 `json:"language"`
	FirstMessageMode string                 `json:"firstMessageMode"`
	FirstMessage     string                 `json:"firstMessage"`
	AgentID          string                 `json:"agentId"`
	CachedAgentData  map[string]any         `json:"cachedAgentData"`
	Providers        *providerSelection     `json:"providers"`
	Token            string                 `json:"token"`
	Endpointing      map[string]any         `json:"endpointing"`
}

type providerSelection struct {
	LLM *struct {
		Type        string  `json:"type"`
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
	} `json:"llm"`
	STT *struct {
		Type string `json:"type"`
	} `json:"stt"`
	TTS *struct {
		Type    string `json:"type"`
		VoiceID string `json:"voiceId"`
	} `json:"tts"`
}

// Server is the process-wide gateway: the shared router, health store,
// memory store, response cache, metrics, and the HTTP mux serving both
// the /agent WebSocket endpoint and the sidecar diagnostics endpoints.
type Server struct {
	cfg config.Config
	log *logger.Logger

	pool     *connpool.Pool
	auth     connpool.AuthConfig
	signer   *connpool.TokenSigner
	factory  *ProviderFactory
	healthSt *health.Store
	routr    *router.Router
	memStore *memory.Store
	respC    *cache.ResponseCache
	kbSource kb.Source
	met      *metrics.Metrics
	latency  *metrics.TurnLatencyTracker

	upgrader websocket.Upgrader

	httpServer      *http.Server
	metricsShutdown func(context.Context) error
}

var (
	metricsInitOnce sync.Once
	sharedMetrics   *metrics.Metrics
	sharedShutdown  func(context.Context) error
)

// initSharedMetrics registers the Prometheus-backed OTel MeterProvider
// globally exactly once per process, since the Prometheus registerer
// rejects a second identical collector registration; every Server
// shares the resulting instrument set.
func initSharedMetrics() (*metrics.Metrics, func(context.Context) error, error) {
	var err error
	metricsInitOnce.Do(func() {
		sharedShutdown, err = metrics.InitProvider(context.Background(), metrics.ProviderConfig{})
		if err != nil {
			return
		}
		sharedMetrics = metrics.Default()
	})
	return sharedMetrics, sharedShutdown, err
}

// New builds a Server wiring every shared, process-wide collaborator.
func New(cfg config.Config) (*Server, error) {
	healthSt := health.NewStore(health.DefaultConfig())

	met, metricsShutdown, err := initSharedMetrics()
	if err != nil {
		return nil, fmt.Errorf("gateway: init metrics provider: %w", err)
	}

	signer := connpool.NewTokenSigner(cfg.Server.SessionJWTSecret)

	s := &Server{
		cfg: cfg,
		log: logger.WithPrefix("gateway"),

		pool: connpool.NewPool(0),
		auth: connpool.AuthConfig{
			AllowedOrigins: cfg.Server.OriginAllowList(),
			BearerToken:    cfg.Server.AgentWSToken,
			Signer:         signer,
		},
		signer:   signer,
		factory:  NewProviderFactory(cfg, healthSt),
		healthSt: healthSt,
		routr:    router.New(healthSt),
		memStore: memory.NewStore(memory.DefaultCap, cfg.Safety.ConversationMax, 30*time.Minute),
		respC:    cache.New(time.Duration(cfg.Features.ResponseCacheTTLMS) * time.Millisecond),
		kbSource: kb.NoOp{},
		met:      met,
		latency:  metrics.NewTurnLatencyTracker(met, metrics.DefaultLatencyThresholds()),

		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		metricsShutdown: metricsShutdown,
	}
	return s, nil
}

// ListenAndServe starts the combined WebSocket + HTTP sidecar server and
// blocks until ctx is cancelled, then gracefully shuts down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/agent", s.handleAgent)
	s.registerSidecar(mux)

	s.httpServer = &http.Server{
		Addr:    ":" + s.cfg.Server.Port,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening on %s (/agent)", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		if s.metricsShutdown != nil {
			if mErr := s.metricsShutdown(shutdownCtx); mErr != nil && err == nil {
				err = mErr
			}
		}
		return err
	case err := <-errCh:
		return err
	}
}

// handleAgent upgrades the connection, admits it into the pool, waits
// for session.start, and then runs the connection's event loop until
// disconnect.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if !s.auth.CheckOrigin(origin) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	if !s.auth.CheckBearer(r.Header.Get("Authorization"), r.URL.Query()) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed: %v", err)
		return
	}

	pconn, err := s.pool.Admit(origin)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server overloaded"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	c := &connHandler{
		server: s,
		conn:   conn,
		pconn:  pconn,
		out:    newOutputSender(conn),
		evq:    queue.New(),
		log:    s.log.WithPrefix("conn[" + pconn.ID + "]"),
	}
	c.run()
}

// connHandler owns one WebSocket connection's full lifecycle: reading
// client frames, running the orchestrator session, and the event-loop
// goroutine that serializes STT provider callbacks into session calls
// (spec §9 "avoid back-references": the provider emits events into a
// bounded queue the session drains, rather than calling into the
// session directly from its own I/O goroutine).
type connHandler struct {
	server *Server
	conn   *websocket.Conn
	pconn  *connpool.Conn
	out    *outputSender
	evq    *queue.Queue
	log    *logger.Logger

	mu          sync.Mutex
	sttProvider stt.Provider
	sttReady    bool
	audioLimit  *ratelimit.AudioLimiter
	sess        *orchestrator.Session
	sessionID   string
	turnID      string
	seq         uint64
}

func (c *connHandler) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer c.teardown()

	start, err := c.awaitSessionStart(ctx)
	if err != nil {
		c.sendError("bad_envelope", err.Error(), false)
		return
	}

	if err := c.startSession(ctx, start); err != nil {
		c.sendError("auth_failed", err.Error(), false)
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.eventLoop(ctx)
	}()

	c.readLoop(ctx)
	cancel()
	wg.Wait()
}

func (c *connHandler) teardown() {
	c.mu.Lock()
	sess := c.sess
	sttProvider := c.sttProvider
	sessionID := c.sessionID
	c.mu.Unlock()

	if sttProvider != nil {
		_ = sttProvider.Close()
	}
	if sess != nil {
		_ = sess
	}
	if sessionID != "" {
		c.server.memStore.Remove(sessionID)
	}
	c.evq.Close()
	c.out.Close()
	c.server.pool.Remove(c.pconn.ID)
	c.conn.Close()
}

// awaitSessionStart blocks for the mandatory first control envelope.
func (c *connHandler) awaitSessionStart(ctx context.Context) (*wire.Envelope, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer c.conn.SetReadDeadline(time.Time{})

	msgType, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read session.start: %w", err)
	}
	if msgType == websocket.BinaryMessage && len(data) > 0 && data[0] == '{' {
		// JSON control frame sent over the binary channel (spec §4.1).
	} else if msgType != websocket.TextMessage {
		return nil, fmt.Errorf("first frame must be a session.start control envelope")
	}

	env, err := wire.UnmarshalEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("invalid session.start: %w", err)
	}
	if env.Type != wire.TypeSessionStart {
		return nil, fmt.Errorf("expected session.start, got %q", env.Type)
	}
	return env, nil
}

func (c *connHandler) startSession(ctx context.Context, env *wire.Envelope) error {
	var payload sessionStartPayload
	if len(env.Data) > 0 {
		raw, _ := json.Marshal(env.Data)
		_ = json.Unmarshal(raw, &payload)
	}

	if payload.Token != "" {
		if _, err := c.server.signer.Verify(payload.Token); err != nil {
			return fmt.Errorf("session token rejected: %w", err)
		}
	}

	sessionID := env.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	c.sessionID = sessionID

	criteria := router.Criteria{Tier: router.TierFree, Complexity: router.ComplexitySimple}
	sttName, llmName, ttsName := "deepgram", "gemini", "elevenlabs"
	llmModel, voiceID := "", payload.VoiceID

	if c.server.cfg.Features.EnableProviderRouter {
		plan, err := c.server.routr.Select(ctx, criteria)
		if err != nil {
			return fmt.Errorf("router: %w", err)
		}
		sttName, llmName, ttsName = plan.STT.Chosen, plan.LLM.Chosen, plan.TTS.Chosen
	}
	if payload.Providers != nil {
		if payload.Providers.STT != nil && payload.Providers.STT.Type != "" {
			sttName = payload.Providers.STT.Type
		}
		if payload.Providers.LLM != nil {
			if payload.Providers.LLM.Type != "" {
				llmName = payload.Providers.LLM.Type
			}
			llmModel = payload.Providers.LLM.Model
		}
		if payload.Providers.TTS != nil {
			if payload.Providers.TTS.Type != "" {
				ttsName = payload.Providers.TTS.Type
			}
			if payload.Providers.TTS.VoiceID != "" {
				voiceID = payload.Providers.TTS.VoiceID
			}
		}
	}

	sttP, err := c.server.factory.BuildSTT(sttName)
	if err != nil {
		return err
	}
	llmP, err := c.server.factory.BuildLLM(ctx, llmName, llmModel)
	if err != nil {
		return err
	}
	ttsP, err := c.server.factory.BuildTTS(ttsName, voiceID)
	if err != nil {
		return err
	}
	if err := llmP.Initialize(ctx); err != nil {
		return fmt.Errorf("llm initialize: %w", err)
	}
	if err := ttsP.Initialize(ctx); err != nil {
		return fmt.Errorf("tts initialize: %w", err)
	}

	mem, err := c.server.memStore.Get(sessionID)
	if err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	if payload.SystemPrompt != "" {
		mem.SetSystemPrompt(payload.SystemPrompt)
	}

	firstMode := orchestrator.UserSpeaksFirst
	switch payload.FirstMessageMode {
	case "assistant_speaks_first":
		firstMode = orchestrator.AssistantSpeaksFirst
	case "wait_for_user":
		firstMode = orchestrator.WaitForUser
	}

	bargeCfg := bargein.DefaultConfig()
	bargeCfg.MinDuration = time.Duration(c.server.cfg.TTS.MinDurationMS) * time.Millisecond
	bargeCfg.ThresholdWords = c.server.cfg.TTS.BargeThresholdWords
	bargeCfg.ClauseProtection = time.Duration(c.server.cfg.TTS.ClauseProtectionMS) * time.Millisecond
	bargeCfg.SentenceBoundaryProt = c.server.cfg.TTS.SentenceBoundaryProtected
	bargeCfg.CriticalInfoProt = c.server.cfg.TTS.CriticalInfoProtection
	bargeCfg.ProtectedPhrases = c.server.cfg.TTS.ProtectedPhraseList()

	c.audioLimit = ratelimit.NewAudioLimiter(c.server.cfg.Safety.MaxAudioFramesPerS)

	cb := orchestrator.Callbacks{
		OnAudio:     c.onAssistantAudio,
		OnTurnState: c.onTurnState,
		OnTTSEnd:    c.onTTSEnd,
		OnError:     c.onOrchestratorError,
	}

	sess := orchestrator.NewSession(
		sessionID, payload.AgentID, c.server.cfg,
		sttP, llmP, ttsP,
		mem, c.server.respC, c.server.kbSource,
		c.server.latency, c.server.met,
		bargein.New(bargeCfg),
		firstMode, payload.FirstMessage,
		cb,
	)

	c.mu.Lock()
	c.sttProvider = sttP
	c.sess = sess
	c.mu.Unlock()

	sttCallbacks := stt.Callbacks{
		OnPartial: func(text string) { c.pushSTTEvent(events.KindSTTPartial, text, time.Time{}, time.Time{}) },
		OnFinal: func(text string, startTs, endTs time.Time) {
			c.pushSTTEvent(events.KindSTTFinal, text, startTs, endTs)
		},
		OnError: func(err error) { c.pushErrorEvent(err) },
		OnReady: func() {
			c.mu.Lock()
			c.sttReady = true
			c.mu.Unlock()
		},
		OnStateChange: func(state stt.ConnState) {
			c.log.Debug("stt state: %s", state.String())
		},
	}
	if err := sttP.Connect(ctx, stt.ConnectOptions{Encoding: wire.CodecPCM16, SampleRate: 16000, Channels: 1}, sttCallbacks); err != nil {
		return fmt.Errorf("stt connect: %w", err)
	}

	return sess.Start(ctx)
}

// eventLoop is the single consumer of STT/control events for this
// connection, draining the priority queue and dispatching into the
// orchestrator session (system events, e.g. errors, always before data
// events, e.g. transcripts).
func (c *connHandler) eventLoop(ctx context.Context) {
	for {
		ev, ok := c.evq.Next(ctx)
		if !ok {
			return
		}
		c.mu.Lock()
		sess := c.sess
		c.mu.Unlock()
		if sess == nil {
			continue
		}

		switch ev.Kind {
		case events.KindSTTPartial:
			sess.OnSTTPartial(ctx, ev.Text)
			c.sendEnvelope(&wire.Envelope{Type: wire.TypeSTTPartial, Text: ev.Text, IsFinal: false})
		case events.KindSTTFinal:
			startTs, _ := ev.Metadata["startTs"].(time.Time)
			endTs, _ := ev.Metadata["endTs"].(time.Time)
			sess.OnSTTFinal(ctx, ev.Text, startTs, endTs)
			c.sendEnvelope(&wire.Envelope{Type: wire.TypeSTTFinal, Text: ev.Text, IsFinal: true})
		case events.KindInterruption:
			sess.OnBargeCancel(ctx)
		case events.KindError:
			c.sendError("stt_error", ev.Err.Error(), true)
		case events.KindSessionEnd:
			return
		}
	}
}

func (c *connHandler) pushSTTEvent(kind events.Kind, text string, startTs, endTs time.Time) {
	ev := events.New(kind, events.Upstream)
	ev.Text = text
	if !startTs.IsZero() {
		ev.Metadata["startTs"] = startTs
	}
	if !endTs.IsZero() {
		ev.Metadata["endTs"] = endTs
	}
	c.evq.TryPush(ev)
}

func (c *connHandler) pushErrorEvent(err error) {
	ev := events.New(events.KindError, events.Upstream)
	ev.Err = err
	_ = c.evq.Push(context.Background(), ev)
}

// readLoop reads client frames until disconnect: binary audio.chunk
// frames are rate-limited and forwarded to the STT provider; text
// control envelopes go to handleEnvelope, which never calls the session
// directly: test.utterance is queued as an STT final, and barge.cancel
// is funneled through the event queue as a system-priority interruption
// so it preempts any in-flight STT events.
func (c *connHandler) readLoop(ctx context.Context) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.pconn.Touch()

		if msgType == websocket.BinaryMessage {
			c.handleBinaryFrame(ctx, data)
			continue
		}

		env, err := wire.UnmarshalEnvelope(data)
		if err != nil {
			c.sendError("bad_envelope", err.Error(), true)
			continue
		}
		c.handleEnvelope(ctx, env)
	}
}

func (c *connHandler) handleBinaryFrame(ctx context.Context, data []byte) {
	if len(data) > c.server.cfg.Safety.MaxFrameBytes {
		c.sendError("payload_too_large", "frame exceeds MAX_FRAME_BYTES", true)
		return
	}

	if len(data) > 0 && data[0] == '{' {
		// spec §3 WireFrame invariant: a JSON control frame sent as binary
		// must still respect MAX_JSON_BYTES even though it passed the
		// (larger) MAX_FRAME_BYTES check above.
		if len(data) > c.server.cfg.Safety.MaxJSONBytes {
			c.sendError("payload_too_large", "JSON-as-binary frame exceeds MAX_JSON_BYTES", true)
			return
		}
		env, err := wire.UnmarshalEnvelope(data)
		if err == nil {
			c.handleEnvelope(ctx, env)
			return
		}
	}

	frame, err := wire.DecodeBinaryFrame(data)
	if err != nil {
		kind := "bad_frame"
		if errors.Is(err, wire.ErrHeaderTooLong) {
			kind = "header_too_long"
		}
		c.sendError(kind, err.Error(), true)
		return
	}

	if frame.Header.Codec == wire.CodecOpus {
		if err := wire.ValidateOpusFrame(frame.Payload, frame.Header.SampleRate, frame.Header.Channels); err != nil {
			c.sendError("bad_frame", err.Error(), true)
			return
		}
	}

	if !c.audioLimit.Allow() {
		return // spec §5: excess audio frames are dropped silently
	}

	c.mu.Lock()
	sttProvider := c.sttProvider
	sess := c.sess
	c.mu.Unlock()
	if sttProvider == nil {
		return
	}
	sttProvider.SendAudio(frame.Payload, frame.Header.Codec)
	if sess != nil {
		sess.MarkAudioReceived(time.Now())
	}
}

func (c *connHandler) handleEnvelope(ctx context.Context, env *wire.Envelope) {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()

	switch env.Type {
	case wire.TypeSessionStart:
		// Already handled once per connection.
	case wire.TypeBargeCancel:
		ev := events.New(events.KindInterruption, events.Upstream)
		_ = c.evq.Push(ctx, ev)
	case wire.TypeTestUtterance:
		if !c.server.cfg.Server.TestHooksEnabled {
			c.sendError("forbidden", "test hooks disabled", true)
			return
		}
		c.pushSTTEvent(events.KindSTTFinal, env.Text, time.Now(), time.Now())
	case wire.TypeAudioEnd:
		// No dedicated handling: STT promotion relies on its own
		// silence timer, not an explicit end-of-audio signal.
	case wire.TypeSessionEnd:
		_ = sess
		c.conn.Close()
	default:
		c.sendError("unsupported", fmt.Sprintf("unknown envelope type %q", env.Type), true)
	}
}

// onAssistantAudio encodes one TTS audio chunk as a length-prefixed
// tts.chunk binary frame and hands it to the output sender.
func (c *connHandler) onAssistantAudio(chunk tts.AudioChunk) {
	c.mu.Lock()
	sessionID := c.sessionID
	turnID := c.turnID
	c.mu.Unlock()

	seq := atomic.AddUint64(&c.seq, 1)
	header := wire.Header{
		Type:       wire.FrameTypeTTSChunk,
		SessionID:  sessionID,
		TurnID:     turnID,
		Seq:        seq,
		Codec:      chunk.Codec,
		SampleRate: chunk.SampleRate,
		Channels:   chunk.Channels,
		TS:         time.Now().UnixMilli(),
	}
	frame, err := wire.EncodeBinaryFrame(header, chunk.Data)
	if err != nil {
		c.log.Error("encode tts.chunk: %v", err)
		return
	}
	c.out.SendBinary(frame)
}

func (c *connHandler) onTurnState(turnID, state string) {
	c.mu.Lock()
	c.turnID = turnID
	c.mu.Unlock()
}

func (c *connHandler) onTTSEnd(turnID string, outcome orchestrator.Outcome) {
	reason := "complete"
	switch outcome {
	case orchestrator.OutcomeBarged:
		reason = "barge"
	case orchestrator.OutcomeErrored:
		reason = "error"
	}
	c.sendEnvelope(&wire.Envelope{Type: wire.TypeTTSEnd, TurnID: turnID, Reason: reason})
}

func (c *connHandler) onOrchestratorError(err error) {
	c.sendError("error", err.Error(), true)
}

func (c *connHandler) sendEnvelope(env *wire.Envelope) {
	data, err := env.Marshal()
	if err != nil {
		c.log.Error("marshal envelope: %v", err)
		return
	}
	c.out.SendText(data)
}

func (c *connHandler) sendError(code, message string, recoverable bool) {
	c.sendEnvelope(&wire.Envelope{
		Type:        wire.TypeError,
		Code:        code,
		Message:     message,
		Recoverable: recoverable,
	})
}
