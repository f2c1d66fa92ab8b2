package scoring

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"leadpilot_backend/internal/store"
	"leadpilot_backend/platform/logger"
)

type fakeCompleter struct {
	response string
	err      error
	panics   bool
	calls    int
}

func (f *fakeCompleter) Complete(_ context.Context, _ string) (string, error) {
	f.calls++
	if f.panics {
		panic("completer exploded")
	}
	return f.response, f.err
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
}

func newTestEngine(c Completer) *Engine {
	e := NewEngine(c, DefaultConfig(), logger.New("development"))
	e.now = fixedNow
	return e
}

func strPtr(s string) *string { return &s }

func baseLead() *store.Lead {
	return &store.Lead{
		ID:        uuid.New(),
		AgentID:   uuid.New(),
		Name:      "Test Lead",
		Phone:     strPtr("+919876543210"),
		Source:    store.SourceWebsite,
		Status:    store.StatusNew,
		CreatedAt: fixedNow().Add(-2 * time.Hour),
	}
}

func TestKeywordFallbackIsDeterministic(t *testing.T) {
	e := newTestEngine(nil)
	lead := baseLead()
	lead.InitialMessage = "I need to buy a 3BHK urgently, budget 50 lakhs"

	first := e.Score(context.Background(), Input{Lead: lead})
	second := e.Score(context.Background(), Input{Lead: lead})

	if first.Score != second.Score {
		t.Fatalf("fallback scoring not deterministic: %d vs %d", first.Score, second.Score)
	}
	if !reflect.DeepEqual(first.Factors, second.Factors) {
		t.Fatal("fallback factors differ between runs")
	}
	if !first.Fallback {
		t.Fatal("expected fallback flag without a completion service")
	}
}

func TestKeywordContentScoresHotMessage(t *testing.T) {
	e := newTestEngine(nil)
	lead := baseLead()
	lead.InitialMessage = "I need to buy a 3BHK urgently, budget 50 lakhs"

	score, exp := e.keywordContent(lead)
	if score <= 60 {
		t.Fatalf("urgent buyer message with budget should score above 60, got %.0f", score)
	}
	if !exp.Fallback {
		t.Fatal("keyword analysis must be marked as fallback")
	}
	if exp.Urgency == 0 || exp.Intent == 0 || exp.Budget == 0 {
		t.Fatalf("expected all keyword families to hit: %+v", exp)
	}
}

func TestKeywordContentEmptyMessage(t *testing.T) {
	e := newTestEngine(nil)
	lead := baseLead()

	score, _ := e.keywordContent(lead)
	if score != 0 {
		t.Fatalf("empty message should contribute nothing, got %.0f", score)
	}
}

func TestCompositeIsWeightedSumOfFactors(t *testing.T) {
	e := newTestEngine(nil)
	lead := baseLead()
	lead.InitialMessage = "looking for a 2BHK near the station, budget 40 lakhs"

	score := e.Score(context.Background(), Input{Lead: lead})

	w := e.cfg.Weights
	want := score.Factors[store.FactorContent].Score*w.Content +
		score.Factors[store.FactorEngagement].Score*w.Engagement +
		score.Factors[store.FactorTiming].Score*w.Timing +
		score.Factors[store.FactorSource].Score*w.Source +
		score.Factors[store.FactorProfile].Score*w.Profile
	if math.Abs(float64(score.Score)-want) > 1 {
		t.Fatalf("composite %d does not match weighted factors %.2f", score.Score, want)
	}
}

func TestCompletionPathUsed(t *testing.T) {
	c := &fakeCompleter{response: "```json\n" +
		`{"urgency":9,"intent":9,"budget":8,"seriousness":8,"authority":7,"overall":8,"sentiment":"positive"}` +
		"\n```"}
	e := newTestEngine(c)
	lead := baseLead()
	lead.InitialMessage = "Want to finalize a flat this month"

	score := e.Score(context.Background(), Input{Lead: lead})
	if c.calls != 1 {
		t.Fatalf("expected one completion call, got %d", c.calls)
	}
	if score.Fallback {
		t.Fatal("completion succeeded, fallback must not be flagged")
	}
	content := score.Factors[store.FactorContent]
	if content.Content == nil || content.Content.Overall != 80 {
		t.Fatalf("expected overall rating 8 scaled to 80, got %+v", content.Content)
	}
	if content.Score != 80 {
		t.Fatalf("content factor should carry the scaled overall rating, got %.0f", content.Score)
	}
	if content.Content.Sentiment != "positive" {
		t.Fatalf("sentiment lost: %+v", content.Content)
	}
}

func TestCompletionFailureFallsBackToKeywords(t *testing.T) {
	c := &fakeCompleter{err: errors.New("deadline exceeded")}
	e := newTestEngine(c)
	lead := baseLead()
	lead.InitialMessage = "urgent, ready to buy, budget approved"

	score := e.Score(context.Background(), Input{Lead: lead})
	if !score.Fallback {
		t.Fatal("expected keyword fallback after completion failure")
	}
	if score.Confidence > 0.7 {
		t.Fatalf("fallback confidence should not exceed 0.7, got %.2f", score.Confidence)
	}
}

func TestCompletionGarbageFallsBackToKeywords(t *testing.T) {
	c := &fakeCompleter{response: "sorry, I cannot help with that"}
	e := newTestEngine(c)
	lead := baseLead()
	lead.InitialMessage = "looking for a villa"

	score := e.Score(context.Background(), Input{Lead: lead})
	if !score.Fallback {
		t.Fatal("unparseable completion must fall back to keywords")
	}
}

func TestPanicDegradesToSimplifiedScore(t *testing.T) {
	c := &fakeCompleter{panics: true}
	e := newTestEngine(c)
	lead := baseLead()
	lead.InitialMessage = "urgent purchase"

	score := e.Score(context.Background(), Input{Lead: lead})
	if score == nil {
		t.Fatal("Score must never return nil")
	}
	if score.Confidence != 0.5 {
		t.Fatalf("simplified score carries 0.5 confidence, got %.2f", score.Confidence)
	}
	if !score.Fallback {
		t.Fatal("simplified score must be flagged as fallback")
	}
}

func TestScoreAlwaysInRange(t *testing.T) {
	e := newTestEngine(nil)

	leads := []*store.Lead{
		baseLead(),
		{
			ID: uuid.New(), AgentID: uuid.New(), Name: "Stale",
			Source: store.SourceFacebook, Status: store.StatusCold,
			CreatedAt: fixedNow().Add(-90 * 24 * time.Hour),
		},
		{
			ID: uuid.New(), AgentID: uuid.New(), Name: "Loaded",
			Phone: strPtr("+919876543210"), Email: strPtr("x@y.in"),
			SecondaryPhone: strPtr("+919811111111"), SocialHandle: strPtr("@loaded"),
			Source: store.SourceReferral, Status: store.StatusNew,
			InitialMessage: "urgent urgent buy purchase book budget lakh crore loan emi",
			PropertyInterest: &store.PropertyInterest{
				PropertyType: "villa", BudgetMin: 1, BudgetMax: 2,
				Location: "Pune", Urgency: store.UrgencyImmediate, Purpose: "self",
			},
			CreatedAt: fixedNow().Add(-time.Hour),
		},
	}

	for _, lead := range leads {
		score := e.Score(context.Background(), Input{Lead: lead})
		if score.Score < 0 || score.Score > 100 {
			t.Fatalf("composite out of range for %s: %d", lead.Name, score.Score)
		}
		for kind, f := range score.Factors {
			if f.Score < 0 || f.Score > 100 {
				t.Fatalf("factor %s out of range: %.1f", kind, f.Score)
			}
		}
		if score.Confidence < 0 || score.Confidence > 1 {
			t.Fatalf("confidence out of range: %.2f", score.Confidence)
		}
	}
}

func TestDirectInquiryBeatsFacebookAllElseEqual(t *testing.T) {
	e := newTestEngine(nil)

	direct := baseLead()
	direct.Source = store.SourceDirectInquiry
	facebook := baseLead()
	facebook.Source = store.SourceFacebook

	ds := e.Score(context.Background(), Input{Lead: direct})
	fs := e.Score(context.Background(), Input{Lead: facebook})
	if ds.Score <= fs.Score {
		t.Fatalf("direct inquiry (%d) should outscore facebook (%d) all else equal", ds.Score, fs.Score)
	}
}

func TestResponsiveLeadOutscoresSilentLead(t *testing.T) {
	e := newTestEngine(nil)
	now := fixedNow()

	// Newest first, as the store returns them.
	responsive := []store.Interaction{
		{Direction: store.DirectionInbound, CreatedAt: now.Add(-30 * time.Minute)},
		{Direction: store.DirectionOutbound, CreatedAt: now.Add(-time.Hour)},
		{Direction: store.DirectionInbound, CreatedAt: now.Add(-90 * time.Minute)},
		{Direction: store.DirectionOutbound, CreatedAt: now.Add(-2 * time.Hour)},
	}
	silent := []store.Interaction{
		{Direction: store.DirectionOutbound, CreatedAt: now.Add(-time.Hour)},
		{Direction: store.DirectionOutbound, CreatedAt: now.Add(-2 * time.Hour)},
		{Direction: store.DirectionOutbound, CreatedAt: now.Add(-3 * time.Hour)},
	}

	rScore, rExp := e.scoreEngagement(responsive)
	sScore, sExp := e.scoreEngagement(silent)
	if rScore <= sScore {
		t.Fatalf("responsive (%.0f) should outscore silent (%.0f)", rScore, sScore)
	}
	if rExp.ResponseRate != 1 {
		t.Fatalf("expected full response rate, got %.2f", rExp.ResponseRate)
	}
	if sExp.ResponseRate != 0 {
		t.Fatalf("silent lead should have zero response rate, got %.2f", sExp.ResponseRate)
	}
}

func TestEngagementBaselineWithoutInteractions(t *testing.T) {
	e := newTestEngine(nil)

	score, exp := e.scoreEngagement(nil)
	if score != 30 {
		t.Fatalf("no interactions should pin engagement to the 30 baseline, got %.0f", score)
	}
	if exp.InteractionCount != 0 {
		t.Fatalf("unexpected interaction count: %d", exp.InteractionCount)
	}
}

func TestUntouchedReferralLead(t *testing.T) {
	e := newTestEngine(nil)
	lead := baseLead()
	lead.Source = store.SourceReferral

	score := e.Score(context.Background(), Input{Lead: lead})

	if got := score.Factors[store.FactorEngagement].Score; got != 30 {
		t.Fatalf("no interactions should pin engagement to 30, got %.0f", got)
	}
	if got := score.Factors[store.FactorSource].Score; got != e.cfg.SourceScores[store.SourceReferral] {
		t.Fatalf("source factor should come straight from the table, got %.0f", got)
	}
	profile := score.Factors[store.FactorProfile].Profile
	if profile == nil || !profile.HasPhone || profile.HasEmail {
		t.Fatalf("profile explanation should reflect the contact fields: %+v", profile)
	}
}

func TestEngagementWindowBoundsHistory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EngagementWindow = 10
	e := NewEngine(nil, cfg, logger.New("development"))
	e.now = fixedNow

	now := fixedNow()
	var interactions []store.Interaction
	for i := 0; i < 100; i++ {
		interactions = append(interactions, store.Interaction{
			Direction: store.DirectionOutbound,
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
		})
	}

	score := e.Score(context.Background(), Input{Lead: baseLead(), Interactions: interactions})
	eng := score.Factors[store.FactorEngagement].Engagement
	if eng == nil || eng.InteractionCount != 10 {
		t.Fatalf("window of 10 should bound the count, got %+v", eng)
	}
}

func TestFreshLeadOutscoresStaleLead(t *testing.T) {
	e := newTestEngine(nil)
	now := fixedNow()

	fresh := baseLead()
	fresh.CreatedAt = now.Add(-2 * time.Hour)
	contact := now.Add(-time.Hour)
	fresh.LastContactAt = &contact

	stale := baseLead()
	stale.CreatedAt = now.Add(-45 * 24 * time.Hour)

	fScore, _ := e.scoreTiming(fresh, nil, now)
	sScore, sExp := e.scoreTiming(stale, nil, now)
	if fScore <= sScore {
		t.Fatalf("fresh (%.0f) should outscore stale (%.0f)", fScore, sScore)
	}
	if !sExp.NeverContacted {
		t.Fatal("stale lead was never contacted")
	}
}

func TestRecommendationsNeverEmpty(t *testing.T) {
	e := newTestEngine(nil)
	score := e.Score(context.Background(), Input{Lead: baseLead()})
	if len(score.Recommendations) == 0 {
		t.Fatal("a score always carries at least one recommendation")
	}
	if len(score.Recommendations) > 4 {
		t.Fatalf("recommendations capped at 4, got %d", len(score.Recommendations))
	}
}
