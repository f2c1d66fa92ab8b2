package scoring

import (
	"leadpilot_backend/internal/store"
)

// Simplified is the last-resort score used when the full pipeline panics.
// It starts from a neutral 50 and nudges it with cheap lead-only signals,
// carries a fixed 0.5 confidence, and can never itself fail.
func (e *Engine) Simplified(l *store.Lead) *store.LeadScore {
	contentScore, contentExp := e.keywordContent(l)
	sourceScore, sourceExp := e.scoreSource(l.Source)

	composite := 50.0
	switch msgLen := len(l.InitialMessage); {
	case msgLen > 100:
		composite += 10
	case msgLen > 0:
		composite += 5
	}
	if l.Phone != nil && *l.Phone != "" {
		composite += 5
	}
	if l.Email != nil && *l.Email != "" {
		composite += 5
	}
	if pi := l.PropertyInterest; pi != nil && (pi.BudgetMin > 0 || pi.BudgetMax > 0) {
		composite += 10
	}
	composite += (sourceScore - 50) / 5
	composite += contentScore / 10

	return &store.LeadScore{
		Score:      clampScore(int(composite + 0.5)),
		Confidence: 0.5,
		Factors: map[store.FactorKind]store.FactorExplanation{
			store.FactorContent: {
				Kind: store.FactorContent, Score: contentScore, Content: &contentExp,
			},
			store.FactorSource: {
				Kind: store.FactorSource, Score: sourceScore, Source: &sourceExp,
			},
		},
		Recommendations: []string{"Review this lead manually, automatic scoring was degraded"},
		ScoredAt:        e.now().UTC(),
		Version:         e.cfg.Version,
		Fallback:        true,
	}
}
