package kb

import (
	"context"
	"testing"
)

func TestNoOpAlwaysInsufficient(t *testing.T) {
	var s Source = NoOp{}
	ans, err := s.GroundedAnswer(context.Background(), "what are your hours", "agent-1")
	if err != nil {
		t.Fatalf("GroundedAnswer: %v", err)
	}
	if ans.IsHighConfidence() {
		t.Fatalf("NoOp answer should never be high-confidence: %+v", ans)
	}
}

func TestIsHighConfidenceRequiresLengthAndNotSentinel(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"insufficient", false},
		{"short", false},
		{"this is a sufficiently long grounded answer", true},
	}
	for _, c := range cases {
		got := Answer{Text: c.text}.IsHighConfidence()
		if got != c.want {
			t.Fatalf("IsHighConfidence(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}
