package stt

import (
	"testing"
	"time"
)

func TestAudioQueueDropsOldestAtCapacity(t *testing.T) {
	q := NewAudioQueue(2)
	q.Push([]byte("a"))
	q.Push([]byte("b"))
	if dropped := q.Push([]byte("c")); !dropped {
		t.Fatal("expected overflow push to report a drop")
	}
	got := q.Drain()
	if len(got) != 2 || string(got[0]) != "b" || string(got[1]) != "c" {
		t.Fatalf("got %v, want [b c]", got)
	}
}

func TestBackoffCapsAtMaxAttempt(t *testing.T) {
	b := DefaultBackoff()
	if _, ok := b.Delay(b.MaxAttempt); !ok {
		t.Fatal("expected last valid attempt to still produce a delay")
	}
	if _, ok := b.Delay(b.MaxAttempt + 1); ok {
		t.Fatal("expected attempt beyond MaxAttempt to be rejected")
	}
	d, _ := b.Delay(10000)
	_ = d
}

func TestBackoffDelayNeverExceedsCap(t *testing.T) {
	b := DefaultBackoff()
	for attempt := 1; attempt <= b.MaxAttempt; attempt++ {
		d, ok := b.Delay(attempt)
		if !ok {
			t.Fatalf("attempt %d: expected ok", attempt)
		}
		if d > b.Cap {
			t.Fatalf("attempt %d: delay %v exceeds cap %v", attempt, d, b.Cap)
		}
	}
}

func TestPartialThrottleSuppressesUnchangedText(t *testing.T) {
	p := NewPartialThrottle(1000)
	if !p.Allow("hello") {
		t.Fatal("expected first partial to be allowed")
	}
	if p.Allow("hello") {
		t.Fatal("expected unchanged text to be suppressed")
	}
}

func TestPartialThrottleRateLimits(t *testing.T) {
	p := NewPartialThrottle(1)
	if !p.Allow("a") {
		t.Fatal("expected first partial to be allowed")
	}
	if p.Allow("b") {
		t.Fatal("expected second partial within the same tick to be throttled")
	}
}

func TestDuplicateFinalFilterWithinWindow(t *testing.T) {
	d := NewDuplicateFinalFilter(3 * time.Second)
	if d.IsDuplicate("Your policy number is 12-345-67.") {
		t.Fatal("first occurrence should not be a duplicate")
	}
	if !d.IsDuplicate("your policy number is 12-345-67") {
		t.Fatal("expected normalized repeat within window to be a duplicate")
	}
}

func TestDuplicateFinalFilterOutsideWindow(t *testing.T) {
	d := NewDuplicateFinalFilter(10 * time.Millisecond)
	d.IsDuplicate("hello there")
	time.Sleep(20 * time.Millisecond)
	if d.IsDuplicate("hello there") {
		t.Fatal("expected repeat outside window to not be treated as a duplicate")
	}
}
