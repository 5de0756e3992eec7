// Package stt's Deepgram backend. Adapted from teacher's
// src/services/deepgram/stt.go: same gorilla/websocket dial, connMu-
// guarded writes, and keepalive-ticker shape, generalized from the
// frames/processors pipeline to the stt.Provider/Callbacks interface and
// extended with the connection-lifecycle state machine, readiness
// watchdog, reconnect backoff, and silence-timer endpointing of spec
// §4.3.
package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/square-key-labs/agentgateway/src/logger"
	"github.com/square-key-labs/agentgateway/src/wire"
)

// DeepgramConfig holds the Deepgram-specific connection settings (spec
// §6 DEEPGRAM_* environment variables).
type DeepgramConfig struct {
	APIKey         string
	Model          string
	Language       string
	SilenceTimeout time.Duration // STT_SILENCE_TIMEOUT_MS
	UtteranceEndMs time.Duration // DEEPGRAM_UTTERANCE_END_MS
	EndpointingMs  time.Duration // DEEPGRAM_ENDPOINTING_MS
	AutoReconnect  bool          // DEEPGRAM_AUTO_RECONNECT
}

// Deepgram is the streaming STT backend talking to api.deepgram.com over
// a websocket (spec §4.3, router candidate list's only STT entry).
type Deepgram struct {
	cfg DeepgramConfig
	log *logger.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	stateMu sync.RWMutex
	state   ConnState

	ctx    context.Context
	cancel context.CancelFunc

	cb   Callbacks
	opts ConnectOptions

	audioSent     bool
	pending       *AudioQueue
	throttle      *PartialThrottle
	dupFilter     *DuplicateFinalFilter
	backoff       Backoff
	silenceTimer  *time.Timer
	silenceTimerMu sync.Mutex
	lastPartial   string
}

func NewDeepgram(cfg DeepgramConfig) *Deepgram {
	if cfg.SilenceTimeout == 0 {
		cfg.SilenceTimeout = 2500 * time.Millisecond
	}
	if cfg.UtteranceEndMs == 0 {
		cfg.UtteranceEndMs = 1000 * time.Millisecond
	}
	if cfg.EndpointingMs == 0 {
		cfg.EndpointingMs = 300 * time.Millisecond
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	return &Deepgram{
		cfg:       cfg,
		log:       logger.WithPrefix("DeepgramSTT"),
		pending:   NewAudioQueue(20),
		throttle:  NewPartialThrottle(12),
		dupFilter: NewDuplicateFinalFilter(3 * time.Second),
		backoff:   DefaultBackoff(),
		state:     StateClosed,
	}
}

func (d *Deepgram) setState(s ConnState) {
	d.stateMu.Lock()
	d.state = s
	d.stateMu.Unlock()
	if d.cb.OnStateChange != nil {
		d.cb.OnStateChange(s)
	}
}

func (d *Deepgram) getState() ConnState {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.state
}

func deepgramEncoding(c wire.Codec) string {
	switch c {
	case wire.CodecMulaw:
		return "mulaw"
	case wire.CodecAlaw:
		return "alaw"
	default:
		return "linear16"
	}
}

// Connect dials Deepgram at once and starts the receive/keepalive/
// watchdog goroutines. Nothing in this package defers the dial until the
// first audio frame; the gateway calls Connect when the session starts.
func (d *Deepgram) Connect(ctx context.Context, opts ConnectOptions, cb Callbacks) error {
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.cb = cb
	d.opts = opts
	d.setState(StateConnecting)

	if err := d.dial(); err != nil {
		d.setState(StateClosed)
		return err
	}

	d.setState(StateOpen)
	go d.receiveLoop()
	go d.keepaliveLoop()
	go d.readinessWatchdog()
	if d.cb.OnReady != nil {
		d.cb.OnReady()
	}
	return nil
}

func (d *Deepgram) dial() error {
	sampleRate := "16000"
	encoding := deepgramEncoding(d.opts.Encoding)
	if encoding == "mulaw" || encoding == "alaw" {
		sampleRate = "8000"
	} else if d.opts.SampleRate > 0 {
		sampleRate = fmt.Sprintf("%d", d.opts.SampleRate)
	}
	channels := "1"
	if d.opts.Channels > 1 {
		channels = fmt.Sprintf("%d", d.opts.Channels)
	}

	params := url.Values{}
	params.Set("model", d.cfg.Model)
	if d.cfg.Language != "" {
		params.Set("language", d.cfg.Language)
	}
	params.Set("encoding", encoding)
	params.Set("sample_rate", sampleRate)
	params.Set("channels", channels)
	params.Set("interim_results", "true")
	params.Set("utterance_end_ms", fmt.Sprintf("%d", d.cfg.UtteranceEndMs.Milliseconds()))
	params.Set("endpointing", fmt.Sprintf("%d", d.cfg.EndpointingMs.Milliseconds()))

	wsURL := fmt.Sprintf("wss://api.deepgram.com/v1/listen?%s", params.Encode())
	header := map[string][]string{
		"Authorization": {fmt.Sprintf("Token %s", d.cfg.APIKey)},
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		return fmt.Errorf("deepgram dial: %w", err)
	}

	d.connMu.Lock()
	d.conn = conn
	d.connMu.Unlock()
	return nil
}

// readinessWatchdog restarts the stream once if it hasn't reached Open
// within 700ms while ≥ 10 audio frames are already queued (spec §4.3a).
func (d *Deepgram) readinessWatchdog() {
	timer := time.NewTimer(700 * time.Millisecond)
	defer timer.Stop()
	select {
	case <-d.ctx.Done():
	case <-timer.C:
		if d.getState() != StateOpen && d.pending.Len() >= 10 {
			d.log.Warn("not ready after 700ms with %d frames queued, restarting stream", d.pending.Len())
			_ = d.reconnect(1)
		}
	}
}

// SendAudio writes one audio chunk to Deepgram, queueing it if the
// connection isn't open yet and reconnecting with backoff on write
// failure (spec §4.3a). Returns false if the frame was dropped.
func (d *Deepgram) SendAudio(data []byte, codec wire.Codec) bool {
	d.audioSent = true

	if d.getState() != StateOpen {
		dropped := d.pending.Push(data)
		return !dropped
	}

	d.connMu.Lock()
	err := d.conn.WriteMessage(websocket.BinaryMessage, data)
	d.connMu.Unlock()
	if err == nil {
		return true
	}

	d.log.Warn("write error, reconnecting: %v", err)
	if !d.cfg.AutoReconnect || !d.audioSent {
		d.fail(err)
		return false
	}
	if rerr := d.reconnect(1); rerr != nil {
		d.fail(rerr)
		return false
	}

	d.connMu.Lock()
	err = d.conn.WriteMessage(websocket.BinaryMessage, data)
	d.connMu.Unlock()
	return err == nil
}

// reconnect redials with exponential backoff+jitter, up to
// Backoff.MaxAttempt attempts, only ever called after audio has been
// sent at least once (spec §4.3a).
func (d *Deepgram) reconnect(attempt int) error {
	d.setState(StateReconnecting)
	d.closeConn()

	delay, ok := d.backoff.Delay(attempt)
	if !ok {
		err := fmt.Errorf("deepgram: exceeded %d reconnect attempts", d.backoff.MaxAttempt)
		d.setState(StateClosed)
		return err
	}

	select {
	case <-d.ctx.Done():
		return d.ctx.Err()
	case <-time.After(delay):
	}

	if err := d.dial(); err != nil {
		return d.reconnect(attempt + 1)
	}

	d.setState(StateOpen)
	go d.receiveLoop()

	for _, frame := range d.pending.Drain() {
		d.connMu.Lock()
		_ = d.conn.WriteMessage(websocket.BinaryMessage, frame)
		d.connMu.Unlock()
	}
	return nil
}

func (d *Deepgram) fail(err error) {
	d.setState(StateClosed)
	if d.cb.OnError != nil {
		d.cb.OnError(err)
	}
}

func (d *Deepgram) closeConn() {
	d.connMu.Lock()
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	d.connMu.Unlock()
}

// Close tears down the connection and stops the background goroutines.
func (d *Deepgram) Close() error {
	d.setState(StateClosing)
	if d.cancel != nil {
		d.cancel()
	}
	d.closeConn()
	d.setState(StateClosed)
	return nil
}

func (d *Deepgram) IsReady() bool {
	return d.getState() == StateOpen
}

// HealthCheck reports the current connection state; Deepgram has no
// lightweight out-of-band ping endpoint, so readiness is the proxy.
func (d *Deepgram) HealthCheck(ctx context.Context) error {
	if d.getState() == StateClosed {
		return fmt.Errorf("deepgram: not connected")
	}
	return nil
}

type deepgramResponse struct {
	IsFinal bool `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (d *Deepgram) receiveLoop() {
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		d.connMu.Lock()
		conn := d.conn
		d.connMu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			d.log.Warn("read error: %v", err)
			if d.cfg.AutoReconnect && d.audioSent {
				_ = d.reconnect(1)
			} else {
				d.fail(err)
			}
			return
		}

		var resp deepgramResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			continue
		}
		if len(resp.Channel.Alternatives) == 0 {
			continue
		}
		transcript := resp.Channel.Alternatives[0].Transcript
		if transcript == "" {
			continue
		}

		if resp.IsFinal {
			d.stopSilenceTimer()
			if d.dupFilter.IsDuplicate(transcript) {
				d.log.Debug("dropping duplicate final %q", transcript)
				continue
			}
			now := time.Now()
			if d.cb.OnFinal != nil {
				d.cb.OnFinal(transcript, now, now)
			}
			continue
		}

		if !d.throttle.Allow(transcript) {
			continue
		}
		d.lastPartial = transcript
		d.armSilenceTimer(transcript)
		if d.cb.OnPartial != nil {
			d.cb.OnPartial(transcript)
		}
	}
}

// silenceTimerDelay derives the promotion delay from the configured
// endpointing window plus the analyzer's heuristic extensions: an
// incomplete-clause suffix or low completion confidence both push the
// delay out, floored at 1.4s and capped at the session's configured
// silence timeout ceiling.
func (d *Deepgram) silenceTimerDelay(partial string) time.Duration {
	const floor = 1400 * time.Millisecond

	delay := d.cfg.EndpointingMs
	analysis := Analyze(partial)
	switch analysis.Suggestion {
	case SuggestWaitLonger:
		delay += 600 * time.Millisecond
	case SuggestWait:
		delay += 300 * time.Millisecond
	}
	if analysis.Confidence < 50 {
		delay += 200 * time.Millisecond
	}

	if delay < floor {
		delay = floor
	}
	if delay > d.cfg.SilenceTimeout {
		delay = d.cfg.SilenceTimeout
	}
	return delay
}

// armSilenceTimer implements the silence-timer side of spec §4.3c: if no
// further partial or final arrives within a delay derived from the
// current partial, re-analyze it and promote to a final only if the
// analyzer now agrees it's complete.
func (d *Deepgram) armSilenceTimer(partial string) {
	d.silenceTimerMu.Lock()
	defer d.silenceTimerMu.Unlock()

	if d.silenceTimer != nil {
		d.silenceTimer.Stop()
	}
	delay := d.silenceTimerDelay(partial)
	d.silenceTimer = time.AfterFunc(delay, func() {
		d.onSilenceTimerFire(partial, delay)
	})
}

// onSilenceTimerFire re-analyzes the partial before promoting it: if the
// analyzer still reports the utterance incomplete, the promotion is
// suppressed and the timer re-arms for one more round, bounded by the
// session's silence timeout ceiling; past that ceiling it gives up
// silently rather than emit a stray final.
func (d *Deepgram) onSilenceTimerFire(partial string, elapsed time.Duration) {
	if d.dupFilter.IsDuplicate(partial) {
		return
	}

	if Analyze(partial).Suggestion != SuggestProcess {
		if elapsed >= d.cfg.SilenceTimeout {
			d.log.Debug("silence timer ceiling reached, suppressing incomplete partial %q", partial)
			return
		}

		extra := 1200 * time.Millisecond
		if remaining := d.cfg.SilenceTimeout - elapsed; extra > remaining {
			extra = remaining
		}
		d.silenceTimerMu.Lock()
		d.silenceTimer = time.AfterFunc(extra, func() {
			d.onSilenceTimerFire(partial, elapsed+extra)
		})
		d.silenceTimerMu.Unlock()
		return
	}

	now := time.Now()
	if d.cb.OnFinal != nil {
		d.cb.OnFinal(partial, now, now)
	}
}

func (d *Deepgram) stopSilenceTimer() {
	d.silenceTimerMu.Lock()
	defer d.silenceTimerMu.Unlock()
	if d.silenceTimer != nil {
		d.silenceTimer.Stop()
		d.silenceTimer = nil
	}
}

func (d *Deepgram) keepaliveLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.connMu.Lock()
			conn := d.conn
			d.connMu.Unlock()
			if conn == nil {
				continue
			}
			d.connMu.Lock()
			err := conn.WriteJSON(map[string]string{"type": "KeepAlive"})
			d.connMu.Unlock()
			if err != nil {
				d.log.Warn("keepalive error: %v", err)
				return
			}
		}
	}
}

var _ Provider = (*Deepgram)(nil)
