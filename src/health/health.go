// Package health implements the HealthStore of spec §4.6: a TTL-cached
// health check with a circuit breaker per (capability, providerName), and
// concurrent-probe fan-out for the router's health preview endpoint.
// Concurrent fan-out follows the errgroup idiom of
// MrWong99-glyphoxa/internal/mcp/mcphost.Calibrate (snapshot targets
// under a read lock, release the lock, then run probes concurrently with
// errgroup.WithContext); the per-key mutex ensures concurrent callers
// checking the same key block on one in-flight probe.
package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the health state of a (capability, name) pair.
type Status int

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Key identifies one health record (spec §3 HealthRecord is keyed by
// (capability, providerName)).
type Key struct {
	Capability string
	Name       string
}

// Record is the public snapshot of a health record's current state.
type Record struct {
	Status    Status
	CheckedAt time.Time
	Failures  int
	OpenUntil time.Time
}

// CheckFunc probes a provider's health; it should return promptly and
// respect ctx's deadline.
type CheckFunc func(ctx context.Context) error

// Config tunes the store's TTL, failure threshold, circuit-open
// duration, and default check timeout — all per spec §4.6 defaults.
type Config struct {
	TTL              time.Duration // default 30s: cached result validity
	FailureThreshold int           // default 3: consecutive failures before opening
	OpenDuration     time.Duration // default 60s: circuit-open duration
	CheckTimeout     time.Duration // default 2.5s: per-check timeout
}

func DefaultConfig() Config {
	return Config{
		TTL:              30 * time.Second,
		FailureThreshold: 3,
		OpenDuration:      60 * time.Second,
		CheckTimeout:     2500 * time.Millisecond,
	}
}

type entry struct {
	mu        sync.Mutex
	record    Record
	checkFunc CheckFunc
}

// Store is the process-wide health cache. Keys are created lazily by
// Register; Check enforces TTL freshness and the circuit breaker.
type Store struct {
	cfg Config

	mu      sync.RWMutex
	entries map[Key]*entry
}

func NewStore(cfg Config) *Store {
	return &Store{
		cfg:     cfg,
		entries: make(map[Key]*entry),
	}
}

// Register associates a CheckFunc with a key so Check (called with a
// nil fn) and ProbeAll can run it. Registering an already-registered key replaces its CheckFunc.
func (s *Store) Register(key Key, fn CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.checkFunc = fn
}

func (s *Store) getOrCreate(key Key) *entry {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok = s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	return e
}

// Check returns the cached status if fresh; otherwise it runs the
// registered CheckFunc (or fn if non-nil, overriding any registered
// func) under the store's check timeout, updates the failure count, and
// opens the circuit after FailureThreshold consecutive failures. While
// open, Check returns StatusUnhealthy immediately without invoking fn.
func (s *Store) Check(ctx context.Context, key Key, fn CheckFunc) Status {
	e := s.getOrCreate(key)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()

	if !e.record.OpenUntil.IsZero() && now.Before(e.record.OpenUntil) {
		return StatusUnhealthy
	}

	if now.Sub(e.record.CheckedAt) < s.cfg.TTL && e.record.Status != StatusUnknown {
		return e.record.Status
	}

	check := fn
	if check == nil {
		check = e.checkFunc
	}
	if check == nil {
		return StatusUnknown
	}

	checkCtx, cancel := context.WithTimeout(ctx, s.cfg.CheckTimeout)
	err := check(checkCtx)
	cancel()

	e.record.CheckedAt = now
	if err != nil {
		e.record.Failures++
		e.record.Status = StatusUnhealthy
		if e.record.Failures >= s.cfg.FailureThreshold {
			e.record.OpenUntil = now.Add(s.cfg.OpenDuration)
		}
		return StatusUnhealthy
	}

	e.record.Failures = 0
	e.record.OpenUntil = time.Time{}
	e.record.Status = StatusHealthy
	return StatusHealthy
}

// Snapshot returns the current Record for a key without running a check.
func (s *Store) Snapshot(key Key) Record {
	e := s.getOrCreate(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record
}

// ProbeAll runs Check concurrently for every given key, fanning out
// with errgroup so a slow probe doesn't block the others, and aborting
// the remaining probes if ctx is cancelled.
func (s *Store) ProbeAll(ctx context.Context, keys []Key) map[Key]Status {
	results := make(map[Key]Status, len(keys))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			status := s.Check(gctx, key, nil)
			mu.Lock()
			results[key] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}
