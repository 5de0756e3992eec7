// Package router implements the provider router of spec §4.6:
// deterministic selection by (tier, complexity, budgetUSD) over fixed
// candidate lists, falling back through unhealthy candidates and
// emitting human-readable reasons. The snapshot-candidates-under-lock-
// then-probe-outside-it shape is grounded on
// MrWong99-glyphoxa/internal/agent/orchestrator.Orchestrator.Route,
// which reads its agent map under o.mu, releases the lock, then does
// I/O (engine.InjectContext) without holding it.
package router

import (
	"context"
	"fmt"

	"github.com/square-key-labs/agentgateway/src/health"
)

// Tier is the caller's subscription tier.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Complexity classifies the turn's expected difficulty.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityComplex Complexity = "complex"
)

// Capability candidate lists are fixed by spec §4.6.
var (
	llmCandidates = []string{"gemini", "anthropic", "openai"}
	sttCandidates = []string{"deepgram"}
	ttsCandidates = []string{"elevenlabs", "openai"}
)

// Criteria is the router's selection input.
type Criteria struct {
	Tier       Tier
	Complexity Complexity
	BudgetUSD  *float64 // nil means unconstrained
}

// Decision is the router's output for one capability: the chosen
// provider name and the human-readable reasons behind it.
type Decision struct {
	Capability string
	Chosen     string
	Reasons    []string
}

// Plan bundles the three capability decisions for one turn.
type Plan struct {
	LLM Decision
	STT Decision
	TTS Decision
}

// Router selects healthy providers per spec §4.6's fixed candidate
// lists, consulting a health.Store for each candidate's current status.
type Router struct {
	health *health.Store
}

func New(store *health.Store) *Router {
	return &Router{health: store}
}

// ErrNoHealthyCandidate is returned (wrapped with the capability name)
// when every candidate for a capability is unhealthy.
type ErrNoHealthyCandidate struct {
	Capability string
}

func (e *ErrNoHealthyCandidate) Error() string {
	return fmt.Sprintf("router: no healthy candidate for %s", e.Capability)
}

// Select runs the full (tier, complexity, budget) decision for all
// three capabilities.
func (r *Router) Select(ctx context.Context, criteria Criteria) (Plan, error) {
	llm, err := r.selectCapability(ctx, "llm", llmCandidates, criteria)
	if err != nil {
		return Plan{}, err
	}
	stt, err := r.selectCapability(ctx, "stt", sttCandidates, criteria)
	if err != nil {
		return Plan{}, err
	}
	tts, err := r.selectCapability(ctx, "tts", ttsCandidates, criteria)
	if err != nil {
		return Plan{}, err
	}
	return Plan{LLM: llm, STT: stt, TTS: tts}, nil
}

// selectCapability walks the candidate list in order, consulting health
// for each, and returns the first healthy one along with the reasons
// describing the whole walk (spec §4.6: "reasons for each selection
// (tier, budget classification, health per candidate, fallback used)").
func (r *Router) selectCapability(ctx context.Context, capability string, candidates []string, c Criteria) (Decision, error) {
	reasons := []string{
		fmt.Sprintf("%s.tier=%s", capability, c.Tier),
		fmt.Sprintf("%s.complexity=%s", capability, c.Complexity),
	}
	if c.BudgetUSD != nil {
		reasons = append(reasons, fmt.Sprintf("%s.budgetUSD=%.4f", capability, *c.BudgetUSD))
	} else {
		reasons = append(reasons, fmt.Sprintf("%s.budget=unconstrained", capability))
	}

	for i, name := range candidates {
		key := health.Key{Capability: capability, Name: name}
		status := r.health.Check(ctx, key, nil)
		reasons = append(reasons, fmt.Sprintf("%s.%s=%s", capability, name, status))

		if status == health.StatusHealthy || status == health.StatusUnknown {
			if i > 0 {
				reasons = append(reasons, fmt.Sprintf("%s.fallback=%s", capability, name))
			}
			return Decision{Capability: capability, Chosen: name, Reasons: reasons}, nil
		}
	}

	return Decision{}, &ErrNoHealthyCandidate{Capability: capability}
}

// Preview runs Select purely for diagnostics (the /router/preview
// sidecar endpoint) without any session-level side effects; Select
// itself has none, so Preview is a thin, self-documenting alias.
func (r *Router) Preview(ctx context.Context, criteria Criteria) (Plan, error) {
	return r.Select(ctx, criteria)
}
