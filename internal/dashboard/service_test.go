package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"leadpilot_backend/internal/store"
	"leadpilot_backend/platform/logger"
)

type fakeAggRepo struct {
	statuses    map[string]int
	sources     map[string]int
	convCount   int
	convCount7  int
	convValue   int64
	since7      int
	since30     int
	uncontacted int
	avgScore    float64
	hasScores   bool
	topLeads    []store.Lead
	recent      []store.Interaction
	err         error
}

func (f *fakeAggRepo) StatusCounts(context.Context, uuid.UUID) (map[string]int, error) {
	return f.statuses, f.err
}

func (f *fakeAggRepo) SourceCounts(context.Context, uuid.UUID) (map[string]int, error) {
	return f.sources, f.err
}

func (f *fakeAggRepo) ConversionStats(_ context.Context, _ uuid.UUID, since time.Time) (int, int64, error) {
	if time.Since(since) < 10*24*time.Hour {
		return f.convCount7, 0, f.err
	}
	return f.convCount, f.convValue, f.err
}

func (f *fakeAggRepo) CountLeadsSince(_ context.Context, _ uuid.UUID, since time.Time) (int, error) {
	if time.Since(since) < 10*24*time.Hour {
		return f.since7, f.err
	}
	return f.since30, f.err
}

func (f *fakeAggRepo) CountUncontacted(context.Context, uuid.UUID) (int, error) {
	return f.uncontacted, f.err
}

func (f *fakeAggRepo) AverageScore(context.Context, uuid.UUID) (float64, bool, error) {
	return f.avgScore, f.hasScores, f.err
}

func (f *fakeAggRepo) TopScoredLeads(context.Context, uuid.UUID, int) ([]store.Lead, error) {
	return f.topLeads, f.err
}

func (f *fakeAggRepo) RecentInteractions(context.Context, uuid.UUID, int) ([]store.Interaction, error) {
	return f.recent, f.err
}

type fakeDue struct {
	ids []uuid.UUID
	err error
}

func (f *fakeDue) DueFollowUpIDs(context.Context, uuid.UUID, time.Time, int) ([]uuid.UUID, error) {
	return f.ids, f.err
}

func TestBuildEmptyAgent(t *testing.T) {
	svc := NewService(&fakeAggRepo{}, &fakeDue{}, logger.New("development"))

	snap, err := svc.Build(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("an agent with no leads must still get a snapshot: %v", err)
	}
	if snap.TotalLeads != 0 || snap.DueFollowUps != 0 {
		t.Fatalf("expected zeroed snapshot, got %+v", snap)
	}
	if snap.HasScores {
		t.Fatal("no leads means no scores")
	}
	if snap.ConversionRate != 0 {
		t.Fatalf("conversion rate should be 0 with no resolved leads, got %f", snap.ConversionRate)
	}
}

func TestBuildAggregates(t *testing.T) {
	scored := store.Lead{
		ID: uuid.New(), Name: "Top Lead", Status: store.StatusHot,
		Source: store.SourceReferral, Score: &store.LeadScore{Score: 91},
	}
	repo := &fakeAggRepo{
		statuses: map[string]int{
			store.StatusNew:       3,
			store.StatusHot:       2,
			store.StatusConverted: 4,
			store.StatusLost:      1,
		},
		sources:     map[string]int{store.SourceWebsite: 6, store.SourceReferral: 4},
		convCount:   4,
		convCount7:  1,
		convValue:   30000000,
		since7:      2,
		since30:     5,
		uncontacted: 3,
		avgScore:    67.5,
		hasScores:   true,
		topLeads:    []store.Lead{scored},
		recent: []store.Interaction{
			{LeadID: scored.ID, Type: store.InteractionCall, Direction: store.DirectionOutbound},
		},
	}
	due := &fakeDue{ids: []uuid.UUID{uuid.New(), uuid.New()}}
	svc := NewService(repo, due, logger.New("development"))

	snap, err := svc.Build(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if snap.TotalLeads != 10 {
		t.Fatalf("expected 10 total leads, got %d", snap.TotalLeads)
	}
	if snap.NewLeadsLast7Days != 2 || snap.NewLeadsLast30Days != 5 {
		t.Fatalf("recent lead counts wrong: %+v", snap)
	}
	if snap.ConversionsLast30.Count != 4 || snap.ConversionsLast30.TotalValue != 30000000 {
		t.Fatalf("conversion stats wrong: %+v", snap.ConversionsLast30)
	}
	// 4 converted of 5 resolved.
	if snap.ConversionRate != 0.8 {
		t.Fatalf("expected conversion rate 0.8, got %f", snap.ConversionRate)
	}
	// 1 conversion against 2 new leads this week.
	if snap.WeeklyConversion != 0.5 {
		t.Fatalf("expected weekly conversion 0.5, got %f", snap.WeeklyConversion)
	}
	if snap.DueFollowUps != 2 {
		t.Fatalf("expected 2 due follow-ups, got %d", snap.DueFollowUps)
	}
	if len(snap.TopLeads) != 1 || snap.TopLeads[0].Score != 91 {
		t.Fatalf("top leads wrong: %+v", snap.TopLeads)
	}
	if !snap.HasScores || snap.AverageScore != 67.5 {
		t.Fatalf("score overview wrong: %+v", snap)
	}
	if len(snap.RecentActivity) != 1 || snap.RecentActivity[0].LeadID != scored.ID {
		t.Fatalf("recent activity wrong: %+v", snap.RecentActivity)
	}
}

func TestBuildPropagatesErrors(t *testing.T) {
	repo := &fakeAggRepo{err: errors.New("db down")}
	svc := NewService(repo, &fakeDue{}, logger.New("development"))

	if _, err := svc.Build(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error when aggregation fails")
	}
}
