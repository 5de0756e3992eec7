package orchestrator

import (
	"testing"
	"time"
)

func TestEndpointingDelayPunctuatedGeneral(t *testing.T) {
	p := DefaultEndpointingParams()
	d := EndpointingDelay(p, "your total is done.", false, false, false)
	want := time.Duration((p.WaitSeconds + p.PunctuationSeconds) * float64(time.Second))
	if d != want {
		t.Fatalf("delay = %v, want %v", d, want)
	}
}

func TestEndpointingDelayNoPunctuationAddsLongerWait(t *testing.T) {
	p := DefaultEndpointingParams()
	withPunct := EndpointingDelay(p, "done.", false, false, false)
	withoutPunct := EndpointingDelay(p, "still thinking", false, false, false)
	if withoutPunct <= withPunct {
		t.Fatalf("no-punctuation delay %v should exceed punctuated delay %v", withoutPunct, withPunct)
	}
}

func TestEndpointingDelayDigitAddsNumberSeconds(t *testing.T) {
	p := DefaultEndpointingParams()
	withDigit := EndpointingDelay(p, "call 5", false, false, false)
	withoutDigit := EndpointingDelay(p, "call now", false, false, false)
	if withDigit <= withoutDigit {
		t.Fatalf("digit-ending delay %v should exceed non-digit delay %v", withDigit, withoutDigit)
	}
}

func TestEndpointingDelayCapsGroundedLower(t *testing.T) {
	p := DefaultEndpointingParams()
	p.NoPunctSeconds = 5 // force above both caps
	grounded := EndpointingDelay(p, "still thinking", true, false, false)
	general := EndpointingDelay(p, "still thinking", false, false, false)
	if grounded != time.Duration(p.GroundedCacheCapMs)*time.Millisecond {
		t.Fatalf("grounded delay = %v, want cap %vms", grounded, p.GroundedCacheCapMs)
	}
	if general != time.Duration(p.GeneralCapMs)*time.Millisecond {
		t.Fatalf("general delay = %v, want cap %vms", general, p.GeneralCapMs)
	}
}

func TestEndpointingDelaySkippedUnderStrictTurnTakingWhenUserResumed(t *testing.T) {
	p := DefaultEndpointingParams()
	d := EndpointingDelay(p, "still thinking", false, true, true)
	if d != 0 {
		t.Fatalf("delay = %v, want 0 when user resumed under strict turn-taking", d)
	}
}
