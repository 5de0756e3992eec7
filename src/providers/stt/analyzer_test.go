package stt

import "testing"

func TestAnalyzeTerminalPunctuationIsComplete(t *testing.T) {
	a := Analyze("Your policy number is 12-345-67.")
	if !a.IsComplete || a.Suggestion != SuggestProcess {
		t.Fatalf("got %+v, want complete/process", a)
	}
}

func TestAnalyzeFillerWordWaitsLonger(t *testing.T) {
	a := Analyze("I was thinking that, um")
	if a.IsComplete || a.Suggestion != SuggestWaitLonger {
		t.Fatalf("got %+v, want incomplete/wait_longer", a)
	}
}

func TestAnalyzeTrailingCommaWaits(t *testing.T) {
	a := Analyze("so first you call the number,")
	if a.IsComplete || a.Suggestion != SuggestWait {
		t.Fatalf("got %+v, want incomplete/wait", a)
	}
}

func TestAnalyzeQuestionOpenerWithoutPunctuationWaits(t *testing.T) {
	a := Analyze("what is the status of my claim")
	if a.IsComplete || a.Suggestion != SuggestWait {
		t.Fatalf("got %+v, want incomplete/wait", a)
	}
}

func TestAnalyzeSingleWordWaitsLonger(t *testing.T) {
	a := Analyze("hello")
	if a.IsComplete || a.Suggestion != SuggestWaitLonger {
		t.Fatalf("got %+v, want incomplete/wait_longer", a)
	}
}

func TestAnalyzeEmptyTextWaitsLonger(t *testing.T) {
	a := Analyze("   ")
	if a.IsComplete || a.Confidence != 0 {
		t.Fatalf("got %+v, want incomplete/confidence 0", a)
	}
}

func TestNormalizeCollapsesPunctuationAndCase(t *testing.T) {
	if got := Normalize("Call 1-800-555-1212."); got != "call 1-800-555-1212" {
		t.Fatalf("Normalize = %q", got)
	}
	if Normalize("Hello  there.") != Normalize("hello there") {
		t.Fatal("expected whitespace/case/punctuation-insensitive match")
	}
}

func TestEarlyTTSEligible(t *testing.T) {
	if !EarlyTTSEligible("Your policy number is one two three four five six. ") {
		t.Error("expected >= 6 words ending at sentence boundary to be eligible")
	}
	if EarlyTTSEligible("Your policy is.") {
		t.Error("expected < 6 words to be ineligible")
	}
	if EarlyTTSEligible("your policy number is one two three four five six with no boundary yet") {
		t.Error("expected fragment without a sentence boundary to be ineligible")
	}
}
