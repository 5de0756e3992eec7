package stt

import (
	"regexp"
	"strings"
)

// Suggestion is the analyzer's recommended action for a partial
// transcript (spec §4.3d).
type Suggestion string

const (
	SuggestProcess    Suggestion = "process"
	SuggestWait       Suggestion = "wait"
	SuggestWaitLonger Suggestion = "wait_longer"
)

// Analysis is the analyzer's verdict on one partial transcript.
type Analysis struct {
	IsComplete bool
	Confidence int // 0-100
	Suggestion Suggestion
}

var (
	terminalPunct = regexp.MustCompile(`[.!?]\s*$`)
	trailingComma = regexp.MustCompile(`[,;:]\s*$`)
	fillerWord    = regexp.MustCompile(`(?i)\b(um+|uh+|like|so)\s*$`)
	// incompleteClauseSuffix catches the conjunction/article/preposition
	// endings spec §4.3c calls out by name ("and/or/but/the/a/to/…") —
	// a clause ending in one of these is never a complete utterance,
	// e.g. "I need help with" trails off on a dangling preposition.
	incompleteClauseSuffix = regexp.MustCompile(`(?i)\b(and|or|but|the|a|an|to|with|for|of|in|on|at|by|from)\s*$`)
	questionOpener          = regexp.MustCompile(`(?i)^\s*(what|when|where|why|who|how|is|are|do|does|did|can|could|would|should)\b`)
	wordSplitter            = regexp.MustCompile(`\s+`)
)

// Normalize lower-cases and collapses whitespace/trailing punctuation so
// two transcriptions of the same utterance compare equal. Shared by the
// analyzer's scoring table and the duplicate-final filter (spec §4.3e).
func Normalize(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	t = wordSplitter.ReplaceAllString(t, " ")
	t = strings.TrimRight(t, ".!?,;: ")
	return t
}

// Analyze scores a partial transcript against the one consistent rule
// table resolving spec §9's sentence-completion open question: every
// caller (the orchestrator's partial handling and early-LLM trigger, and
// the STT silence timer) reads IsComplete/Confidence/Suggestion from this single
// function, rather than re-deriving its own heuristic.
//
// Scoring, in priority order:
//  1. Empty/whitespace-only text: incomplete, confidence 0, wait_longer.
//  2. Ends in terminal punctuation (.!?) and has >= 2 words: complete,
//     confidence 90, process.
//  3. Ends in a filler word (um, uh, like, so) or an incomplete-clause
//     suffix (and, or, but, the, a, to, with, …): incomplete, confidence
//     10, wait_longer — both are the strongest signal the speaker isn't
//     done.
//  4. Ends in a comma/semicolon/colon: incomplete, confidence 30, wait.
//  5. Looks like a question opener (what/when/.../could/should) without
//     terminal punctuation: incomplete, confidence 45, wait — questions
//     are rarely one word long.
//  6. Single word, no punctuation: incomplete, confidence 20, wait_longer.
//  7. Otherwise (multi-word, no strong signal either way): complete,
//     confidence 60, process. Like rule 2, this suggestion lets the
//     orchestrator start an early LLM call on a long enough partial.
func Analyze(text string) Analysis {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Analysis{IsComplete: false, Confidence: 0, Suggestion: SuggestWaitLonger}
	}

	words := wordSplitter.Split(strings.TrimSpace(trimmed), -1)

	if terminalPunct.MatchString(trimmed) && len(words) >= 2 {
		return Analysis{IsComplete: true, Confidence: 90, Suggestion: SuggestProcess}
	}

	if fillerWord.MatchString(trimmed) || incompleteClauseSuffix.MatchString(trimmed) {
		return Analysis{IsComplete: false, Confidence: 10, Suggestion: SuggestWaitLonger}
	}

	if trailingComma.MatchString(trimmed) {
		return Analysis{IsComplete: false, Confidence: 30, Suggestion: SuggestWait}
	}

	if questionOpener.MatchString(trimmed) {
		return Analysis{IsComplete: false, Confidence: 45, Suggestion: SuggestWait}
	}

	if len(words) == 1 {
		return Analysis{IsComplete: false, Confidence: 20, Suggestion: SuggestWaitLonger}
	}

	return Analysis{IsComplete: true, Confidence: 60, Suggestion: SuggestProcess}
}

// EarlyTTSEligible reports whether a partial LLM response fragment is
// eligible for early TTS synthesis per spec §4.4/§9 decision #1: it must
// contain a sentence boundary (., ! or ? followed by whitespace or the
// end of the text) and at least 6 words.
var earlyTTSBoundary = regexp.MustCompile(`^[\s\S]*?[.!?](\s|$)`)

func EarlyTTSEligible(fragment string) bool {
	if !earlyTTSBoundary.MatchString(fragment) {
		return false
	}
	words := wordSplitter.Split(strings.TrimSpace(fragment), -1)
	return len(words) >= 6
}
