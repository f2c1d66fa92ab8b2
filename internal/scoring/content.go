package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"leadpilot_backend/internal/store"
)

// contentResponse is the JSON contract expected back from the completion
// service. Every dimension is a 1-10 rating.
type contentResponse struct {
	Urgency     int    `json:"urgency"`
	Intent      int    `json:"intent"`
	Budget      int    `json:"budget"`
	Seriousness int    `json:"seriousness"`
	Authority   int    `json:"authority"`
	Overall     int    `json:"overall"`
	Sentiment   string `json:"sentiment"`
}

// promptInteractionLimit bounds how many recent messages go into the prompt.
const promptInteractionLimit = 5

func (e *Engine) scoreContent(ctx context.Context, l *store.Lead, interactions []store.Interaction) (float64, store.ContentExplanation) {
	if e.completer != nil && strings.TrimSpace(l.InitialMessage) != "" {
		if score, exp, err := e.analyzeContent(ctx, l, interactions); err == nil {
			return score, exp
		} else {
			e.log.ScoringFallback(l.ID.String(), err.Error())
		}
	}
	return e.keywordContent(l)
}

func (e *Engine) analyzeContent(ctx context.Context, l *store.Lead, interactions []store.Interaction) (float64, store.ContentExplanation, error) {
	raw, err := e.completer.Complete(ctx, buildContentPrompt(l, interactions))
	if err != nil {
		return 0, store.ContentExplanation{}, err
	}

	var resp contentResponse
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &resp); err != nil {
		return 0, store.ContentExplanation{}, fmt.Errorf("unusable completion response: %w", err)
	}

	// Ratings come back 1-10; keep explanations on the same 0-100 scale as
	// every other factor.
	exp := store.ContentExplanation{
		Urgency:     clampRating(resp.Urgency) * 10,
		Intent:      clampRating(resp.Intent) * 10,
		Budget:      clampRating(resp.Budget) * 10,
		Seriousness: clampRating(resp.Seriousness) * 10,
		Authority:   clampRating(resp.Authority) * 10,
		Overall:     clampRating(resp.Overall) * 10,
		Sentiment:   resp.Sentiment,
	}
	return float64(exp.Overall), exp, nil
}

func buildContentPrompt(l *store.Lead, interactions []store.Interaction) string {
	var b strings.Builder
	b.WriteString("You are scoring a real-estate sales lead from their messages.\n")
	b.WriteString("Rate each dimension 1-10 and reply with ONLY a JSON object, no prose:\n")
	b.WriteString(`{"urgency":1,"intent":1,"budget":1,"seriousness":1,"authority":1,"overall":1,"sentiment":"positive|neutral|negative"}`)
	b.WriteString("\n\nFirst message:\n")
	b.WriteString(l.InitialMessage)

	// interactions arrive newest first; include the most recent few that
	// carry text.
	written := 0
	for _, in := range interactions {
		if written >= promptInteractionLimit {
			break
		}
		if strings.TrimSpace(in.Message) == "" {
			continue
		}
		if written == 0 {
			b.WriteString("\n\nRecent conversation (newest first):")
		}
		fmt.Fprintf(&b, "\n[%s %s] %s", in.Direction, in.Type, in.Message)
		written++
	}

	if pi := l.PropertyInterest; pi != nil {
		b.WriteString("\n\nStated interest:")
		if pi.PropertyType != "" {
			fmt.Fprintf(&b, " type=%s", pi.PropertyType)
		}
		if pi.Location != "" {
			fmt.Fprintf(&b, " location=%s", pi.Location)
		}
		if pi.BudgetMax > 0 {
			fmt.Fprintf(&b, " budget_max=%d", pi.BudgetMax)
		}
		if pi.Urgency != "" {
			fmt.Fprintf(&b, " urgency=%s", pi.Urgency)
		}
	}
	return b.String()
}

func clampRating(r int) int {
	if r < 0 {
		return 0
	}
	if r > 10 {
		return 10
	}
	return r
}

// stripCodeFence removes a markdown code fence the model sometimes wraps
// around its JSON despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// keywordContent is the deterministic analysis: count keyword families in
// the first message and the stated interest. Same input, same score,
// always.
func (e *Engine) keywordContent(l *store.Lead) (float64, store.ContentExplanation) {
	msg := strings.ToLower(l.InitialMessage)
	exp := store.ContentExplanation{Fallback: true}

	urgencyHits := countHits(msg, e.cfg.UrgencyKeywords)
	if pi := l.PropertyInterest; pi != nil && pi.Urgency == store.UrgencyImmediate {
		urgencyHits++
	}
	intentHits := countHits(msg, e.cfg.IntentKeywords)
	budgetHit := countHits(msg, e.cfg.BudgetKeywords) > 0
	if pi := l.PropertyInterest; pi != nil && (pi.BudgetMin > 0 || pi.BudgetMax > 0) {
		budgetHit = true
	}

	exp.Urgency = min(urgencyHits, 2) * 20
	exp.Intent = min(intentHits, 3) * 15
	if budgetHit {
		exp.Budget = 25
	}

	overall := clampScore(exp.Urgency + exp.Intent + exp.Budget)
	exp.Overall = overall
	return float64(overall), exp
}

func countHits(msg string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(msg, kw) {
			hits++
		}
	}
	return hits
}
