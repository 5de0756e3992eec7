// Package stt defines the streaming STT provider interface of spec §4.3
// and its connection-lifecycle/backpressure helpers, shared by every
// concrete backend (currently only Deepgram, per the router's fixed STT
// candidate list).
package stt

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/square-key-labs/agentgateway/src/wire"
)

// ConnState is the STT connection lifecycle (spec §4.3a).
type ConnState int

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Callbacks are invoked by a provider as events arrive. Implementations
// must not block inside a callback.
type Callbacks struct {
	OnPartial     func(text string)
	OnFinal       func(text string, startTs, endTs time.Time)
	OnError       func(err error)
	OnReady       func()
	OnStateChange func(state ConnState)
}

// ConnectOptions configures a streaming connection.
type ConnectOptions struct {
	Encoding   wire.Codec // pcm16 or opus
	SampleRate int
	Channels   int
}

// Provider is the streaming STT capability interface (spec §4.3).
type Provider interface {
	Connect(ctx context.Context, opts ConnectOptions, cb Callbacks) error
	SendAudio(data []byte, codec wire.Codec) bool
	Close() error
	IsReady() bool
	HealthCheck(ctx context.Context) error
}

// Backoff implements the exponential-backoff-with-jitter schedule of
// spec §4.3a: base 200ms, cap 4s, at most 6 attempts.
type Backoff struct {
	Base       time.Duration
	Cap        time.Duration
	MaxAttempt int
}

func DefaultBackoff() Backoff {
	return Backoff{Base: 200 * time.Millisecond, Cap: 4 * time.Second, MaxAttempt: 6}
}

// Delay returns the backoff delay before attempt (1-indexed), or false
// once MaxAttempt is exceeded.
func (b Backoff) Delay(attempt int) (time.Duration, bool) {
	if attempt > b.MaxAttempt {
		return 0, false
	}
	d := b.Base * time.Duration(1<<uint(attempt-1))
	if d > b.Cap {
		d = b.Cap
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d/2 + jitter, true
}

// AudioQueue is the bounded pre-connect audio buffer of spec §4.3a:
// capacity ~20 frames, drops the oldest frame on overflow.
type AudioQueue struct {
	mu       sync.Mutex
	frames   [][]byte
	capacity int
}

func NewAudioQueue(capacity int) *AudioQueue {
	if capacity <= 0 {
		capacity = 20
	}
	return &AudioQueue{capacity: capacity}
}

// Push appends a frame, dropping the oldest if at capacity. Returns true
// if a frame was dropped to make room.
func (q *AudioQueue) Push(data []byte) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) >= q.capacity {
		q.frames = q.frames[1:]
		dropped = true
	}
	q.frames = append(q.frames, data)
	return dropped
}

// Drain returns and clears all buffered frames, in order.
func (q *AudioQueue) Drain() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.frames
	q.frames = nil
	return out
}

func (q *AudioQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// PartialThrottle limits outbound partials to spec §4.3b's ≤ ~12/s and
// suppresses repeats of unchanged normalized text.
type PartialThrottle struct {
	mu       sync.Mutex
	minGap   time.Duration
	lastSent time.Time
	lastText string
}

func NewPartialThrottle(perSecond int) *PartialThrottle {
	if perSecond <= 0 {
		perSecond = 12
	}
	return &PartialThrottle{minGap: time.Second / time.Duration(perSecond)}
}

// Allow reports whether this partial text should be forwarded.
func (p *PartialThrottle) Allow(text string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	norm := Normalize(text)
	if norm == p.lastText {
		return false
	}
	now := time.Now()
	if now.Sub(p.lastSent) < p.minGap {
		return false
	}
	p.lastSent = now
	p.lastText = norm
	return true
}

// DuplicateFinalFilter implements spec §4.3e: drop a final whose
// normalized text matches the immediately preceding final within a
// window (default 3s).
type DuplicateFinalFilter struct {
	mu       sync.Mutex
	window   time.Duration
	lastText string
	lastAt   time.Time
}

func NewDuplicateFinalFilter(window time.Duration) *DuplicateFinalFilter {
	if window <= 0 {
		window = 3 * time.Second
	}
	return &DuplicateFinalFilter{window: window}
}

// IsDuplicate reports whether normalized(text) repeats the prior final
// within the configured window, and records text as the new prior final
// regardless (so a third near-identical final compares against the most
// recent one, not the original).
func (d *DuplicateFinalFilter) IsDuplicate(text string) bool {
	norm := Normalize(text)

	d.mu.Lock()
	defer d.mu.Unlock()

	dup := norm == d.lastText && time.Since(d.lastAt) <= d.window
	d.lastText = norm
	d.lastAt = time.Now()
	return dup
}
