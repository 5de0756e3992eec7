package orchestrator

import "strings"

// jaccardSimilarity computes token-level Jaccard similarity between two
// already-normalized strings, for the duplicate/overlap guard of spec
// §4.7.
func jaccardSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	fields := strings.Fields(s)
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		out[f] = true
	}
	return out
}

// isDuplicateOrOverlap implements spec §4.7's duplicate/overlap guard:
// two normalized utterances are considered the same turn's utterance if
// their token-Jaccard-similarity is >= 0.8, or one substring-contains
// the other.
func isDuplicateOrOverlap(current, candidate string) bool {
	if current == "" || candidate == "" {
		return false
	}
	if strings.Contains(current, candidate) || strings.Contains(candidate, current) {
		return true
	}
	return jaccardSimilarity(current, candidate) >= 0.8
}
