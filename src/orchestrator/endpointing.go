package orchestrator

import (
	"regexp"
	"time"
)

var (
	endsWithPunctRe = regexp.MustCompile(`[.!?]\s*$`)
	endsWithDigitRe  = regexp.MustCompile(`\d\s*$`)
)

// EndpointingParams are the tunable components of spec §4.7's
// endpointing-to-TTS delay formula.
type EndpointingParams struct {
	WaitSeconds         float64
	PunctuationSeconds  float64
	NoPunctSeconds      float64
	NumberSeconds       float64
	GroundedCacheCapMs  float64 // cap for grounded/cached answers, ~200ms
	GeneralCapMs        float64 // cap for general answers, ~2s
}

func DefaultEndpointingParams() EndpointingParams {
	return EndpointingParams{
		WaitSeconds:        0.0,
		PunctuationSeconds: 0.1,
		NoPunctSeconds:     0.3,
		NumberSeconds:      0.2,
		GroundedCacheCapMs: 200,
		GeneralCapMs:       2000,
	}
}

// EndpointingDelay computes spec §4.7's pre-TTS delay:
//
//	waitSeconds + (endsWithPunct ? punctuationSeconds : noPunctSeconds) + (endsWithDigit ? numberSeconds : 0)
//
// capped at groundedOrCached's corresponding ceiling, and skipped
// entirely (zero) if the user has resumed talking under strict
// turn-taking.
func EndpointingDelay(p EndpointingParams, text string, groundedOrCached, userResumedTalking, strictTurnTaking bool) time.Duration {
	if strictTurnTaking && userResumedTalking {
		return 0
	}

	delay := p.WaitSeconds
	if endsWithPunctRe.MatchString(text) {
		delay += p.PunctuationSeconds
	} else {
		delay += p.NoPunctSeconds
	}
	if endsWithDigitRe.MatchString(text) {
		delay += p.NumberSeconds
	}

	capMs := p.GeneralCapMs
	if groundedOrCached {
		capMs = p.GroundedCacheCapMs
	}
	delayMs := delay * 1000
	if delayMs > capMs {
		delayMs = capMs
	}
	return time.Duration(delayMs) * time.Millisecond
}
