// Package cache implements the turn orchestrator's optional response
// cache (spec §4.7): keyed by (agentId, normalized user text), TTL
// ~5 min, skip-LLM-on-hit. No example repo in the pack imports a
// dedicated TTL-cache library (see DESIGN.md); this follows the same
// map+mutex+idle-sweep shape as src/memory.Store, itself grounded on
// MrWong99-glyphoxa's UtteranceBuffer eviction pattern.
package cache

import (
	"sync"
	"time"
)

// Key identifies one cacheable turn.
type Key struct {
	AgentID        string
	NormalizedText string
}

type entry struct {
	text      string
	expiresAt time.Time
}

// ResponseCache maps (agentId, normalized user text) to a previously
// generated response, valid until TTL elapses.
type ResponseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[Key]entry
}

func New(ttl time.Duration) *ResponseCache {
	return &ResponseCache{ttl: ttl, entries: make(map[Key]entry)}
}

// Get returns the cached response text for key, if present and not
// expired.
func (c *ResponseCache) Get(key Key) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return e.text, true
}

// Put stores text for key, overwriting any existing entry. With a
// non-positive TTL nothing is stored.
func (c *ResponseCache) Put(key Key, text string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{text: text, expiresAt: time.Now().Add(c.ttl)}
}

// Sweep removes all expired entries, returning the count removed.
// Intended to run on a ticker alongside memory.Store.SweepIdle.
func (c *ResponseCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
