// ElevenLabs backend. Adapted from teacher's src/services/elevenlabs/
// tts.go: same multi-stream-input websocket endpoint, context-id
// lifecycle (new id per response, close-on-interrupt, persist-across-
// flush), keepalive ticker, and close-socket handshake on Cleanup,
// generalized from the frames/processors pipeline to the
// tts.Provider/Callbacks interface. Word-timestamp/audio-context
// bookkeeping (used by teacher to re-emit per-word TextFrames for its
// own downstream aggregator) is dropped — this module's orchestrator
// doesn't consume word-level timing, only chunk audio and
// started/stopped transitions.
package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/square-key-labs/agentgateway/src/logger"
	"github.com/square-key-labs/agentgateway/src/wire"
)

// VoiceSettings mirrors ElevenLabs' tunable voice parameters.
type VoiceSettings struct {
	Stability       float64
	SimilarityBoost float64
	Style           float64
	UseSpeakerBoost bool
	Speed           float64
}

// ElevenLabsConfig configures the ElevenLabs backend.
type ElevenLabsConfig struct {
	APIKey        string
	VoiceID       string
	Model         string // e.g. "eleven_turbo_v2_5"
	OutputFormat  string // e.g. "pcm_24000"; default pcm_24000
	VoiceSettings *VoiceSettings
	Language      string
}

var multilingualModels = map[string]bool{
	"eleven_flash_v2_5": true,
	"eleven_turbo_v2_5": true,
}

// ElevenLabs implements Provider over ElevenLabs' multi-stream-input
// websocket.
type ElevenLabs struct {
	cfg ElevenLabsConfig
	log *logger.Logger

	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	contextID string
	speaking  bool

	cb Callbacks
}

func NewElevenLabs(cfg ElevenLabsConfig) *ElevenLabs {
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "pcm_24000"
	}
	if cfg.VoiceSettings == nil {
		cfg.VoiceSettings = &VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	}
	return &ElevenLabs{cfg: cfg, log: logger.WithPrefix("ElevenLabsTTS")}
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

func (e *ElevenLabs) Initialize(ctx context.Context) error { return nil }

func (e *ElevenLabs) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.elevenlabs.io/v1/voices", nil)
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", e.cfg.APIKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("elevenlabs health check: status %d", resp.StatusCode)
	}
	return nil
}

func (e *ElevenLabs) Connect(ctx context.Context, cb Callbacks) error {
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.cb = cb

	e.mu.Lock()
	e.contextID = uuid.New().String()
	contextID := e.contextID
	e.mu.Unlock()

	wsURL := fmt.Sprintf("wss://api.elevenlabs.io/v1/text-to-speech/%s/multi-stream-input?model_id=%s&output_format=%s&auto_mode=true",
		e.cfg.VoiceID, e.cfg.Model, e.cfg.OutputFormat)
	if e.cfg.Language != "" && multilingualModels[e.cfg.Model] {
		wsURL += fmt.Sprintf("&language_code=%s", e.cfg.Language)
	}

	header := http.Header{}
	header.Set("xi-api-key", e.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		return fmt.Errorf("elevenlabs dial: %w", err)
	}
	e.conn = conn

	initMsg := map[string]interface{}{"text": " ", "context_id": contextID}
	if vs := e.voiceSettingsMap(); len(vs) > 0 {
		initMsg["voice_settings"] = vs
	}
	if err := e.conn.WriteJSON(initMsg); err != nil {
		return fmt.Errorf("elevenlabs init: %w", err)
	}

	go e.receiveLoop()
	go e.keepaliveLoop()
	return nil
}

func (e *ElevenLabs) voiceSettingsMap() map[string]interface{} {
	vs := e.cfg.VoiceSettings
	m := map[string]interface{}{}
	if vs.Stability != 0 {
		m["stability"] = vs.Stability
	}
	if vs.SimilarityBoost != 0 {
		m["similarity_boost"] = vs.SimilarityBoost
	}
	if vs.Style != 0 {
		m["style"] = vs.Style
	}
	if vs.UseSpeakerBoost {
		m["use_speaker_boost"] = vs.UseSpeakerBoost
	}
	if vs.Speed != 0 {
		m["speed"] = vs.Speed
	}
	return m
}

// Speak sends one text fragment into the active context.
func (e *ElevenLabs) Speak(text string) error {
	if text == "" || e.conn == nil {
		return nil
	}
	e.mu.Lock()
	contextID := e.contextID
	e.mu.Unlock()

	msg := map[string]interface{}{
		"text":                   text,
		"context_id":             contextID,
		"try_trigger_generation": true,
	}
	return e.conn.WriteJSON(msg)
}

// Flush requests final audio for the active context, then lets the
// context persist (it's closed on the next Interrupt, not here — same
// as teacher's "don't close on flush" comment).
func (e *ElevenLabs) Flush() error {
	if e.conn == nil {
		return nil
	}
	e.mu.Lock()
	contextID := e.contextID
	e.mu.Unlock()

	return e.conn.WriteJSON(map[string]interface{}{
		"text":       "",
		"context_id": contextID,
		"flush":      true,
	})
}

// Interrupt always closes the current context on ElevenLabs, regardless
// of whether audio was mid-flight, then starts a fresh context id for
// the next Speak — teacher's "always close on interruption" fix.
func (e *ElevenLabs) Interrupt() error {
	e.mu.Lock()
	oldContextID := e.contextID
	wasSpeaking := e.speaking
	e.speaking = false
	e.contextID = uuid.New().String()
	e.mu.Unlock()

	if e.conn != nil && oldContextID != "" {
		_ = e.conn.WriteJSON(map[string]interface{}{
			"context_id":    oldContextID,
			"close_context": true,
		})
	}
	if wasSpeaking && e.cb.OnStopped != nil {
		e.cb.OnStopped()
	}
	return nil
}

func (e *ElevenLabs) Close() error {
	if e.cancel != nil {
		e.cancel()
	}
	time.Sleep(50 * time.Millisecond)
	if e.conn != nil {
		_ = e.conn.WriteJSON(map[string]interface{}{"close_socket": true})
		e.conn.Close()
		e.conn = nil
	}
	return nil
}

func (e *ElevenLabs) Cleanup() error { return e.Close() }

func (e *ElevenLabs) keepaliveLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			contextID := e.contextID
			e.mu.Unlock()
			if e.conn == nil {
				continue
			}
			if err := e.conn.WriteJSON(map[string]interface{}{"text": "", "context_id": contextID}); err != nil {
				e.log.Warn("keepalive error: %v", err)
				return
			}
		}
	}
}

func (e *ElevenLabs) parseOutputFormat() (int, wire.Codec) {
	switch e.cfg.OutputFormat {
	case "ulaw_8000":
		return 8000, wire.CodecMulaw
	case "alaw_8000":
		return 8000, wire.CodecAlaw
	case "pcm_16000":
		return 16000, wire.CodecPCM16
	case "pcm_22050":
		return 22050, wire.CodecPCM16
	case "pcm_44100":
		return 44100, wire.CodecPCM16
	default:
		return 24000, wire.CodecPCM16
	}
}

func (e *ElevenLabs) receiveLoop() {
	for {
		select {
		case <-e.ctx.Done():
			return
		default:
		}
		if e.conn == nil {
			return
		}

		msgType, message, err := e.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			if e.cb.OnError != nil {
				e.cb.OnError(err)
			}
			return
		}

		sampleRate, codec := e.parseOutputFormat()

		if msgType == websocket.BinaryMessage {
			e.emitAudio(message, sampleRate, codec)
			continue
		}

		var resp map[string]interface{}
		if err := json.Unmarshal(message, &resp); err != nil {
			continue
		}

		receivedCtxID, _ := resp["contextId"].(string)

		if isFinal, ok := resp["isFinal"].(bool); ok && isFinal {
			e.mu.Lock()
			wasSpeaking := e.speaking && (receivedCtxID == "" || receivedCtxID == e.contextID)
			e.speaking = false
			e.mu.Unlock()
			if wasSpeaking && e.cb.OnStopped != nil {
				e.cb.OnStopped()
			}
			continue
		}

		e.mu.Lock()
		currentCtxID := e.contextID
		e.mu.Unlock()
		if receivedCtxID != "" && receivedCtxID != currentCtxID {
			continue
		}

		if audioB64, ok := resp["audio"].(string); ok && audioB64 != "" {
			audioData, err := base64.StdEncoding.DecodeString(audioB64)
			if err != nil {
				continue
			}
			e.emitAudio(audioData, sampleRate, codec)
		}
	}
}

func (e *ElevenLabs) emitAudio(data []byte, sampleRate int, codec wire.Codec) {
	e.mu.Lock()
	firstChunk := !e.speaking
	if firstChunk {
		e.speaking = true
	}
	e.mu.Unlock()

	if firstChunk && e.cb.OnStarted != nil {
		e.cb.OnStarted()
	}
	if e.cb.OnAudio != nil {
		e.cb.OnAudio(AudioChunk{Data: data, Codec: codec, SampleRate: sampleRate, Channels: 1})
	}
}

var _ Provider = (*ElevenLabs)(nil)
