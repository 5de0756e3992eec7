// Package ratelimit implements the two rate limiters in spec §3/§4.2: a
// per-connection audio-frame token bucket refilled at 1 Hz, and a per
// (userId, actionType) bucket tracking per-minute/per-hour/per-day
// counters. Bucket sizing follows the named-constant-with-rationale idiom
// of rustyguts-bken/server/limits.go; the token bucket itself is built on
// golang.org/x/time/rate rather than a hand-rolled counter.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AudioLimiter is the per-connection audio-frame token bucket. Capacity
// equals one second's worth of frames (spec §3); refill happens
// continuously at that same rate rather than in discrete 1 Hz ticks,
// which is equivalent in steady state and avoids a dedicated ticker per
// connection.
type AudioLimiter struct {
	limiter *rate.Limiter
}

// NewAudioLimiter builds a limiter admitting up to framesPerSec frames
// per second, bursting up to one second of frames.
func NewAudioLimiter(framesPerSec int) *AudioLimiter {
	return &AudioLimiter{
		limiter: rate.NewLimiter(rate.Limit(framesPerSec), framesPerSec),
	}
}

// Allow reports whether one audio frame may be admitted right now.
// Frames beyond the limit are dropped silently by the caller (spec §5
// backpressure: "audio frames exceeding the per-connection token bucket
// are dropped silently").
func (a *AudioLimiter) Allow() bool {
	return a.limiter.Allow()
}

// ActionType identifies the kind of rate-limited action a RateBucket
// tracks for a user (spec §3's RateBucket is generic over actionType;
// the action layer itself is out of scope, but the bucket primitive is
// exercised by it).
type ActionType string

// Window identifies one of RateBucket's three counting windows.
type Window int

const (
	WindowMinute Window = iota
	WindowHour
	WindowDay
)

var windowDuration = map[Window]time.Duration{
	WindowMinute: time.Minute,
	WindowHour:   time.Hour,
	WindowDay:    24 * time.Hour,
}

// Limits bounds how many actions of a given type are allowed per window.
type Limits struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

type windowCounter struct {
	count     int
	windowEnd time.Time
}

// RateBucket tracks one (userId, actionType) pair across three counting
// windows, resetting each window independently when it elapses.
type RateBucket struct {
	mu       sync.Mutex
	limits   Limits
	counters map[Window]*windowCounter
}

func newRateBucket(limits Limits) *RateBucket {
	return &RateBucket{
		limits: limits,
		counters: map[Window]*windowCounter{
			WindowMinute: {},
			WindowHour:   {},
			WindowDay:    {},
		},
	}
}

// Allow records one attempted action and reports whether it is permitted
// under all three windows. A denial does not consume quota in any window
// (the whole attempt is rejected atomically).
func (b *RateBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for _, w := range []Window{WindowMinute, WindowHour, WindowDay} {
		c := b.counters[w]
		if now.After(c.windowEnd) {
			c.count = 0
			c.windowEnd = now.Add(windowDuration[w])
		}
	}

	if b.counters[WindowMinute].count >= b.limits.PerMinute ||
		b.counters[WindowHour].count >= b.limits.PerHour ||
		b.counters[WindowDay].count >= b.limits.PerDay {
		return false
	}

	for _, w := range []Window{WindowMinute, WindowHour, WindowDay} {
		b.counters[w].count++
	}
	return true
}

// bucketKey uniquely identifies one (userId, actionType) RateBucket.
type bucketKey struct {
	userID     string
	actionType ActionType
}

// Store is the process-wide registry of RateBuckets, one per
// (userId, actionType). Per-key access is guarded by the store's own
// mutex only for map lookup/insert; the bucket's own counters have
// fine-grained locking, matching spec §5's "any shared map uses per-key
// fine-grained locking or atomic upsert" mutation discipline.
type Store struct {
	mu      sync.Mutex
	buckets map[bucketKey]*RateBucket
	limits  map[ActionType]Limits
}

// NewStore builds a Store with per-action-type limits.
func NewStore(limits map[ActionType]Limits) *Store {
	return &Store{
		buckets: make(map[bucketKey]*RateBucket),
		limits:  limits,
	}
}

// Allow records and checks one action attempt for (userID, actionType),
// creating the bucket on first use.
func (s *Store) Allow(userID string, actionType ActionType) bool {
	key := bucketKey{userID: userID, actionType: actionType}

	s.mu.Lock()
	b, ok := s.buckets[key]
	if !ok {
		b = newRateBucket(s.limits[actionType])
		s.buckets[key] = b
	}
	s.mu.Unlock()

	return b.Allow()
}
