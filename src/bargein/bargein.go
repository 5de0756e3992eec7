// Package bargein implements the turn orchestrator's barge-in policy
// (spec §4.7): whether an incoming user event may interrupt active TTS.
// Generalized from teacher's src/interruptions strategy family (one
// struct per detection signal, a Reset between turns) into a single
// Policy evaluating spec's fixed 5-condition AND, rather than letting
// callers swap in one strategy — the spec's conditions are not
// pluggable, they're a specific, ordered checklist.
package bargein

import (
	"regexp"
	"strings"
	"time"
)

var (
	stopPhrase = regexp.MustCompile(`(?i)\b(stop|pause|hold on|wait|quiet|silent|cancel|enough)\b`)

	// Protected numeric patterns: phone numbers, policy-like IDs,
	// currency amounts, percentages, or "call ...N...".
	phonePattern    = regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	policyIDPattern = regexp.MustCompile(`\b\d{2,}-\d{2,}-\d{2,}\b`)
	currencyPattern = regexp.MustCompile(`[$€£]\s?\d+(\.\d{2})?`)
	percentPattern  = regexp.MustCompile(`\b\d+(\.\d+)?\s?%`)
	callNumberWord  = regexp.MustCompile(`(?i)\bcall\b[\s\S]*?\d`)

	// Critical data: dates, times, addresses, emails.
	datePattern  = regexp.MustCompile(`(?i)\b(\d{1,2}/\d{1,2}(/\d{2,4})?|january|february|march|april|may|june|july|august|september|october|november|december)\b`)
	timePattern  = regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}\s?(am|pm)?\b`)
	emailPattern = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	addrPattern  = regexp.MustCompile(`(?i)\b\d+\s+\w+\s+(street|st|avenue|ave|road|rd|boulevard|blvd|drive|dr|lane|ln)\b`)

	midClauseEnder = regexp.MustCompile(`[,;:]\s*$`)
)

// Config tunes the policy's thresholds (spec §6 TTS_* environment
// variables).
type Config struct {
	MinDuration          time.Duration // TTS_MIN_DURATION_MS
	ThresholdWords       int           // TTS_BARGE_THRESHOLD_WORDS
	ClauseProtection     time.Duration // TTS_CLAUSE_PROTECTION_MS
	SentenceBoundaryProt bool          // TTS_SENTENCE_BOUNDARY_PROTECTION
	CriticalInfoProt     bool          // TTS_CRITICAL_INFO_PROTECTION
	ProtectedPhrases     []string      // TTS_PROTECTED_PHRASES, operator-configured additions
}

func DefaultConfig() Config {
	return Config{
		MinDuration:          500 * time.Millisecond,
		ThresholdWords:       3,
		ClauseProtection:     300 * time.Millisecond,
		SentenceBoundaryProt: true,
		CriticalInfoProt:     true,
	}
}

// TTSState is the minimal view of in-flight TTS the policy needs.
type TTSState struct {
	StartedAt time.Time
	Text      string // the text currently being spoken
}

// Decision is the policy's verdict for one candidate barge-in event.
type Decision struct {
	Allowed bool
	Reason  string
}

// Policy evaluates spec §4.7's 5-condition barge-in rule.
type Policy struct {
	cfg Config
}

func New(cfg Config) *Policy {
	return &Policy{cfg: cfg}
}

// Evaluate decides whether userText may interrupt the given in-flight
// TTS. An explicit stop phrase always short-circuits to allowed.
func (p *Policy) Evaluate(tts TTSState, userText string) Decision {
	if stopPhrase.MatchString(userText) {
		return Decision{Allowed: true, Reason: "stop_phrase"}
	}

	audibleFor := time.Since(tts.StartedAt)
	if audibleFor < p.cfg.MinDuration {
		return Decision{Allowed: false, Reason: "tts_too_short"}
	}

	if wordCount(userText) < p.cfg.ThresholdWords {
		return Decision{Allowed: false, Reason: "user_text_too_short"}
	}

	if hasProtectedNumeric(tts.Text) || p.hasProtectedPhrase(tts.Text) {
		return Decision{Allowed: false, Reason: "protected_numeric"}
	}

	if p.cfg.SentenceBoundaryProt && midClauseEnder.MatchString(tts.Text) && audibleFor < p.cfg.MinDuration+p.cfg.ClauseProtection {
		return Decision{Allowed: false, Reason: "mid_clause"}
	}

	if p.cfg.CriticalInfoProt && audibleFor < p.cfg.MinDuration+time.Second && hasCriticalInfo(tts.Text) {
		return Decision{Allowed: false, Reason: "critical_info"}
	}

	return Decision{Allowed: true, Reason: "all_conditions_met"}
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func hasProtectedNumeric(text string) bool {
	return phonePattern.MatchString(text) ||
		policyIDPattern.MatchString(text) ||
		currencyPattern.MatchString(text) ||
		percentPattern.MatchString(text) ||
		callNumberWord.MatchString(text)
}

// hasProtectedPhrase checks text against the operator-configured
// TTS_PROTECTED_PHRASES list, alongside the built-in protected-numeric
// regexes hasProtectedNumeric covers.
func (p *Policy) hasProtectedPhrase(text string) bool {
	if len(p.cfg.ProtectedPhrases) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, phrase := range p.cfg.ProtectedPhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

func hasCriticalInfo(text string) bool {
	return datePattern.MatchString(text) ||
		timePattern.MatchString(text) ||
		emailPattern.MatchString(text) ||
		addrPattern.MatchString(text)
}

// DeferredQueue holds the one most-recent deferred final, replayed on
// tts.end (spec §4.7: "One most-recent deferred final is queued and
// replayed on tts.end").
type DeferredQueue struct {
	pending *string
}

func (q *DeferredQueue) Defer(text string) {
	q.pending = &text
}

// Drain returns and clears the pending deferred final, if any.
func (q *DeferredQueue) Drain() (string, bool) {
	if q.pending == nil {
		return "", false
	}
	text := *q.pending
	q.pending = nil
	return text, true
}
