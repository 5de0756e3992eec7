package ratelimit

import "testing"

func TestAudioLimiterDropsExcess(t *testing.T) {
	l := NewAudioLimiter(5)

	allowed := 0
	for i := 0; i < 10; i++ {
		if l.Allow() {
			allowed++
		}
	}
	if allowed > 5 {
		t.Fatalf("allowed %d frames in a burst, want at most 5", allowed)
	}
}

func TestRateBucketEnforcesPerMinuteLimit(t *testing.T) {
	b := newRateBucket(Limits{PerMinute: 2, PerHour: 100, PerDay: 1000})

	if !b.Allow() {
		t.Fatal("first action should be allowed")
	}
	if !b.Allow() {
		t.Fatal("second action should be allowed")
	}
	if b.Allow() {
		t.Fatal("third action should be denied by the per-minute limit")
	}
}

func TestStoreIsolatesBucketsPerUserAndAction(t *testing.T) {
	store := NewStore(map[ActionType]Limits{
		"send_message": {PerMinute: 1, PerHour: 100, PerDay: 1000},
	})

	if !store.Allow("user-1", "send_message") {
		t.Fatal("user-1 first action should be allowed")
	}
	if store.Allow("user-1", "send_message") {
		t.Fatal("user-1 second action should be denied")
	}
	if !store.Allow("user-2", "send_message") {
		t.Fatal("user-2 should have its own independent bucket")
	}
}
