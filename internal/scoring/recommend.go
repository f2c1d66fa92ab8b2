package scoring

import (
	"leadpilot_backend/internal/store"
)

// recommend turns the scored factors into short next actions for the agent.
// Rules fire in priority order; the list is capped at four entries.
func (e *Engine) recommend(l *store.Lead, score *store.LeadScore, eng store.EngagementExplanation, timing store.TimingExplanation) []string {
	var recs []string

	if score.Score >= 80 {
		recs = append(recs, "High priority lead, call within the hour")
	}
	if pi := l.PropertyInterest; pi != nil && pi.Urgency == store.UrgencyImmediate {
		recs = append(recs, "Buyer wants to move immediately, propose a site visit this week")
	}
	if timing.NeverContacted && timing.AgeHours > 24 {
		recs = append(recs, "Lead has never been contacted, reach out today")
	}
	if l.Phone == nil || *l.Phone == "" {
		recs = append(recs, "No phone number on record, ask for one on the next touch")
	}
	if eng.InteractionCount >= 3 && eng.ResponseRate < 0.2 {
		recs = append(recs, "Lead is not responding, try a different channel")
	}
	if len(recs) == 0 {
		recs = append(recs, "Keep the lead warm with a follow-up message")
	}
	if len(recs) > 4 {
		recs = recs[:4]
	}
	return recs
}
