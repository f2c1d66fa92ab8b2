// Package scoring computes lead priority scores from five weighted factors:
// message content, engagement history, timing, acquisition source and
// profile completeness. Content analysis prefers the completion service and
// falls back to deterministic keyword scoring, so a score is always
// produced.
package scoring

import (
	"context"
	"fmt"
	"time"

	"leadpilot_backend/internal/store"
	"leadpilot_backend/platform/logger"
)

// Completer is the boundary to the completion service. A prompt goes in,
// raw model text comes out. Implemented by the Gemini client; tests use
// canned fakes.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Engine scores leads. Score never returns an error: every failure path
// degrades to a deterministic result with reduced confidence.
type Engine struct {
	completer Completer
	cfg       Config
	log       *logger.Logger
	now       func() time.Time
}

// NewEngine creates a scoring engine. completer may be nil when no
// completion service is configured; keyword analysis is used throughout.
func NewEngine(completer Completer, cfg Config, log *logger.Logger) *Engine {
	return &Engine{
		completer: completer,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// Input is everything the engine looks at for one lead. Interactions are
// expected newest first, as the store returns them.
type Input struct {
	Lead         *store.Lead
	Interactions []store.Interaction
}

// Score computes the composite score for a lead. It never fails: a panic in
// any factor degrades to the simplified deterministic score.
func (e *Engine) Score(ctx context.Context, in Input) (result *store.LeadScore) {
	defer func() {
		if r := recover(); r != nil {
			e.log.ScoringFallback(in.Lead.ID.String(), fmt.Sprintf("panic: %v", r))
			result = e.Simplified(in.Lead)
		}
	}()

	now := e.now().UTC()
	interactions := in.Interactions
	if e.cfg.EngagementWindow > 0 && len(interactions) > e.cfg.EngagementWindow {
		interactions = interactions[:e.cfg.EngagementWindow]
	}

	contentScore, contentExp := e.scoreContent(ctx, in.Lead, interactions)
	engagementScore, engagementExp := e.scoreEngagement(interactions)
	timingScore, timingExp := e.scoreTiming(in.Lead, interactions, now)
	sourceScore, sourceExp := e.scoreSource(in.Lead.Source)
	profileScore, profileExp := e.scoreProfile(in.Lead)

	w := e.cfg.Weights
	composite := contentScore*w.Content +
		engagementScore*w.Engagement +
		timingScore*w.Timing +
		sourceScore*w.Source +
		profileScore*w.Profile

	factors := map[store.FactorKind]store.FactorExplanation{
		store.FactorContent: {
			Kind: store.FactorContent, Score: contentScore, Content: &contentExp,
		},
		store.FactorEngagement: {
			Kind: store.FactorEngagement, Score: engagementScore, Engagement: &engagementExp,
		},
		store.FactorTiming: {
			Kind: store.FactorTiming, Score: timingScore, Timing: &timingExp,
		},
		store.FactorSource: {
			Kind: store.FactorSource, Score: sourceScore, Source: &sourceExp,
		},
		store.FactorProfile: {
			Kind: store.FactorProfile, Score: profileScore, Profile: &profileExp,
		},
	}

	score := &store.LeadScore{
		Score:      clampScore(int(composite)),
		Confidence: e.confidence(in.Lead, interactions, contentExp.Fallback, now),
		Factors:    factors,
		ScoredAt:   now,
		Version:    e.cfg.Version,
		Fallback:   contentExp.Fallback,
	}
	score.Recommendations = e.recommend(in.Lead, score, engagementExp, timingExp)
	return score
}

// scoreEngagement is the mean of three signals: interaction volume,
// inbound/outbound response rate, and response latency. A lead with no
// interactions sits at a fixed baseline of 30.
func (e *Engine) scoreEngagement(interactions []store.Interaction) (float64, store.EngagementExplanation) {
	exp := store.EngagementExplanation{InteractionCount: len(interactions)}
	if len(interactions) == 0 {
		return 30, exp
	}

	var inbound, outbound int
	for _, in := range interactions {
		switch in.Direction {
		case store.DirectionInbound:
			inbound++
		case store.DirectionOutbound:
			outbound++
		}
	}
	if outbound > 0 {
		exp.ResponseRate = clampFloat(float64(inbound)/float64(outbound), 0, 1)
	}

	// Walk oldest to newest; every inbound following an outbound is a
	// response, and the gap between them is the response time.
	var totalHours float64
	var responses int
	var lastOutbound *time.Time
	for i := len(interactions) - 1; i >= 0; i-- {
		in := interactions[i]
		switch in.Direction {
		case store.DirectionOutbound:
			t := in.CreatedAt
			lastOutbound = &t
		case store.DirectionInbound:
			if lastOutbound != nil {
				totalHours += in.CreatedAt.Sub(*lastOutbound).Hours()
				responses++
				lastOutbound = nil
			}
		}
	}
	if responses > 0 {
		exp.AvgResponseHours = totalHours / float64(responses)
	}

	countScore := clampFloat(float64(len(interactions))*15, 0, 100)
	rateScore := clampFloat(exp.ResponseRate*100, 0, 100)
	latencyScore := 50.0
	if responses > 0 {
		latencyScore = clampFloat(100-2*exp.AvgResponseHours, 0, 100)
	}
	return (countScore + rateScore + latencyScore) / 3, exp
}

// scoreTiming is the mean of freshness, business-hour activity and contact
// recency.
func (e *Engine) scoreTiming(l *store.Lead, interactions []store.Interaction, now time.Time) (float64, store.TimingExplanation) {
	exp := store.TimingExplanation{
		AgeHours:       now.Sub(l.CreatedAt).Hours(),
		NeverContacted: l.LastContactAt == nil,
	}

	freshness := clampFloat(100-2*exp.AgeHours, 0, 100)

	// Fraction of activity inside the business-hour window; with no
	// interactions yet the lead's own arrival time stands in.
	inWindow := 0
	total := 0
	for _, in := range interactions {
		total++
		if e.inBusinessHours(in.CreatedAt) {
			inWindow++
		}
	}
	if total == 0 {
		total = 1
		if e.inBusinessHours(l.CreatedAt) {
			inWindow = 1
		}
	}
	exp.BusinessHourFraction = float64(inWindow) / float64(total)
	businessScore := exp.BusinessHourFraction * 100

	recency := 50.0
	if l.LastContactAt != nil {
		exp.HoursSinceLastContact = now.Sub(*l.LastContactAt).Hours()
		recency = clampFloat(100-3*exp.HoursSinceLastContact, 0, 100)
	}

	return (freshness + businessScore + recency) / 3, exp
}

func (e *Engine) inBusinessHours(t time.Time) bool {
	hour := t.Hour()
	return hour >= e.cfg.BusinessHourStart && hour < e.cfg.BusinessHourEnd
}

func (e *Engine) scoreSource(source string) (float64, store.SourceExplanation) {
	exp := store.SourceExplanation{Source: source}
	if s, ok := e.cfg.SourceScores[source]; ok {
		return s, exp
	}
	return 50, exp
}

// scoreProfile starts at a base of 50 and rewards reachable contact
// channels and a filled-in property interest, weighting urgency by tier.
func (e *Engine) scoreProfile(l *store.Lead) (float64, store.ProfileExplanation) {
	exp := store.ProfileExplanation{
		HasPhone:            l.Phone != nil && *l.Phone != "",
		HasEmail:            l.Email != nil && *l.Email != "",
		HasSecondaryChannel: l.SecondaryPhone != nil && *l.SecondaryPhone != "",
		HasSocialHandle:     l.SocialHandle != nil && *l.SocialHandle != "",
	}

	score := 50.0
	if exp.HasPhone {
		score += 20
	}
	if exp.HasEmail {
		score += 15
	}
	if exp.HasSecondaryChannel {
		score += 10
	}
	if exp.HasSocialHandle {
		score += 5
	}

	if pi := l.PropertyInterest; pi != nil {
		filled := 0
		if pi.PropertyType != "" {
			filled++
			score += 5
		}
		if pi.BudgetMin > 0 || pi.BudgetMax > 0 {
			filled++
			score += 5
		}
		if pi.Location != "" {
			filled++
			score += 5
		}
		if pi.Purpose != "" {
			filled++
		}
		if pi.Urgency != "" {
			filled++
			switch pi.Urgency {
			case store.UrgencyImmediate:
				score += 10
			case store.UrgencyOneToThree:
				score += 8
			case store.UrgencyThreeToSix:
				score += 5
			default:
				score += 2
			}
		}
		exp.InterestCompleteness = float64(filled) / 5
	}
	return clampFloat(score, 0, 100), exp
}

// confidence sums independent completeness signals: message presence,
// interaction history depth, contact-field completeness, property-interest
// completeness, and a small age bonus. A keyword-fallback content analysis
// lowers it further.
func (e *Engine) confidence(l *store.Lead, interactions []store.Interaction, fallback bool, now time.Time) float64 {
	var c float64

	switch msgLen := len(l.InitialMessage); {
	case msgLen >= 40:
		c += 0.3
	case msgLen > 0:
		c += 0.15
	}

	switch n := len(interactions); {
	case n >= 10:
		c += 0.25
	case n >= 3:
		c += 0.18
	case n >= 1:
		c += 0.1
	}

	contacts := 0
	if l.Phone != nil && *l.Phone != "" {
		contacts++
	}
	if l.Email != nil && *l.Email != "" {
		contacts++
	}
	if l.SecondaryPhone != nil && *l.SecondaryPhone != "" {
		contacts++
	}
	if l.SocialHandle != nil && *l.SocialHandle != "" {
		contacts++
	}
	c += 0.2 * float64(contacts) / 4

	if pi := l.PropertyInterest; pi != nil {
		filled := 0.0
		if pi.PropertyType != "" {
			filled++
		}
		if pi.BudgetMin > 0 || pi.BudgetMax > 0 {
			filled++
		}
		if pi.Location != "" {
			filled++
		}
		if pi.Urgency != "" {
			filled++
		}
		if pi.Purpose != "" {
			filled++
		}
		c += 0.15 * filled / 5
	}

	ageDays := now.Sub(l.CreatedAt).Hours() / 24
	c += clampFloat(ageDays*0.02, 0, 0.1)

	if fallback {
		c -= 0.2
	}
	return clampFloat(c, 0.1, 1.0)
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
