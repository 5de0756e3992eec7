// Package kb defines the orchestrator's knowledge-base grounding
// collaborator (spec §4.7's groundedAnswer) as a narrow interface plus
// an inert no-op implementation, so the orchestrator always has a
// concrete provider to call rather than nil-checking an optional
// dependency at every call site. Real KB backends (vector search,
// retrieval APIs) are out of scope; KB_ENABLED=false selects NoOp.
package kb

import "context"

// insufficientAnswer is the sentinel indicating no high-confidence
// grounded answer was found.
const insufficientAnswer = "insufficient"

// Answer is one grounding lookup's result: either a high-confidence
// direct answer, or a set of supporting chunks for the caller to inject
// into the system prompt.
type Answer struct {
	Text             string
	SupportingChunks []string
}

// IsHighConfidence reports whether Text should be used as the turn's
// response directly, per spec §4.7: "length > 20 and not the configured
// insufficient sentinel".
func (a Answer) IsHighConfidence() bool {
	return len(a.Text) > 20 && a.Text != insufficientAnswer
}

// Source looks up a grounded answer for text under agentID.
type Source interface {
	GroundedAnswer(ctx context.Context, text, agentID string) (Answer, error)
}

// NoOp is the default Source used when KB_ENABLED=false: it never has
// a grounded answer and never returns supporting chunks.
type NoOp struct{}

func (NoOp) GroundedAnswer(ctx context.Context, text, agentID string) (Answer, error) {
	return Answer{Text: insufficientAnswer}, nil
}

var _ Source = NoOp{}
