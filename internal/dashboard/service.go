// Package dashboard aggregates an agent's pipeline into one snapshot:
// funnel counts, source breakdown, conversion stats, score overview and the
// follow-up backlog. Sub-aggregations run concurrently.
package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"leadpilot_backend/internal/store"
	"leadpilot_backend/platform/logger"
)

// Repository is the aggregate-query slice of the primary store.
// Satisfied by *store.Repository.
type Repository interface {
	StatusCounts(ctx context.Context, agentID uuid.UUID) (map[string]int, error)
	SourceCounts(ctx context.Context, agentID uuid.UUID) (map[string]int, error)
	ConversionStats(ctx context.Context, agentID uuid.UUID, since time.Time) (int, int64, error)
	CountLeadsSince(ctx context.Context, agentID uuid.UUID, since time.Time) (int, error)
	CountUncontacted(ctx context.Context, agentID uuid.UUID) (int, error)
	AverageScore(ctx context.Context, agentID uuid.UUID) (float64, bool, error)
	TopScoredLeads(ctx context.Context, agentID uuid.UUID, limit int) ([]store.Lead, error)
	RecentInteractions(ctx context.Context, agentID uuid.UUID, limit int) ([]store.Interaction, error)
}

// DueQueue is the follow-up backlog slice of the index.
// Satisfied by *store.Index.
type DueQueue interface {
	DueFollowUpIDs(ctx context.Context, agentID uuid.UUID, now time.Time, limit int) ([]uuid.UUID, error)
}

// LeadSummary is one row of the top-leads panel.
type LeadSummary struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Status string    `json:"status"`
	Source string    `json:"source"`
	Score  int       `json:"score"`
}

// ActivityItem is one row of the recent-activity panel.
type ActivityItem struct {
	LeadID    uuid.UUID `json:"leadId"`
	Type      string    `json:"type"`
	Direction string    `json:"direction"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// Conversions summarizes closed deals in a period.
type Conversions struct {
	Count      int   `json:"count"`
	TotalValue int64 `json:"totalValue"`
}

// Snapshot is one agent's dashboard at a point in time.
type Snapshot struct {
	GeneratedAt        time.Time      `json:"generatedAt"`
	TotalLeads         int            `json:"totalLeads"`
	ByStatus           map[string]int `json:"byStatus"`
	BySource           map[string]int `json:"bySource"`
	NewLeadsLast7Days  int            `json:"newLeadsLast7Days"`
	NewLeadsLast30Days int            `json:"newLeadsLast30Days"`
	Uncontacted        int            `json:"uncontacted"`
	AverageScore       float64        `json:"averageScore"`
	HasScores          bool           `json:"hasScores"`
	ConversionsLast30  Conversions    `json:"conversionsLast30"`
	ConversionRate     float64        `json:"conversionRate"`
	WeeklyConversion   float64        `json:"weeklyConversionRate"`
	TopLeads           []LeadSummary  `json:"topLeads"`
	RecentActivity     []ActivityItem `json:"recentActivity"`
	DueFollowUps       int            `json:"dueFollowUps"`
}

const (
	topLeadsLimit       = 10
	recentActivityLimit = 20
)

// Service builds dashboard snapshots.
type Service struct {
	repo Repository
	due  DueQueue
	log  *logger.Logger
	now  func() time.Time
}

// NewService creates the dashboard service.
func NewService(repo Repository, due DueQueue, log *logger.Logger) *Service {
	return &Service{repo: repo, due: due, log: log, now: time.Now}
}

// Build assembles a snapshot for one agent. An agent with no leads gets a
// zero-valued snapshot, never an error.
func (s *Service) Build(ctx context.Context, agentID uuid.UUID) (*Snapshot, error) {
	now := s.now().UTC()
	snap := &Snapshot{GeneratedAt: now}

	g, ctx := errgroup.WithContext(ctx)

	var weeklyConversions int

	g.Go(func() error {
		byStatus, err := s.repo.StatusCounts(ctx, agentID)
		if err != nil {
			return err
		}
		snap.ByStatus = byStatus
		for _, n := range byStatus {
			snap.TotalLeads += n
		}
		return nil
	})

	g.Go(func() error {
		bySource, err := s.repo.SourceCounts(ctx, agentID)
		if err != nil {
			return err
		}
		snap.BySource = bySource
		return nil
	})

	g.Go(func() error {
		n, err := s.repo.CountLeadsSince(ctx, agentID, now.AddDate(0, 0, -7))
		if err != nil {
			return err
		}
		snap.NewLeadsLast7Days = n
		return nil
	})

	g.Go(func() error {
		n, err := s.repo.CountLeadsSince(ctx, agentID, now.AddDate(0, 0, -30))
		if err != nil {
			return err
		}
		snap.NewLeadsLast30Days = n
		return nil
	})

	g.Go(func() error {
		n, err := s.repo.CountUncontacted(ctx, agentID)
		if err != nil {
			return err
		}
		snap.Uncontacted = n
		return nil
	})

	g.Go(func() error {
		avg, ok, err := s.repo.AverageScore(ctx, agentID)
		if err != nil {
			return err
		}
		snap.AverageScore = avg
		snap.HasScores = ok
		return nil
	})

	g.Go(func() error {
		count, total, err := s.repo.ConversionStats(ctx, agentID, now.AddDate(0, 0, -30))
		if err != nil {
			return err
		}
		snap.ConversionsLast30 = Conversions{Count: count, TotalValue: total}
		return nil
	})

	g.Go(func() error {
		count, _, err := s.repo.ConversionStats(ctx, agentID, now.AddDate(0, 0, -7))
		if err != nil {
			return err
		}
		weeklyConversions = count
		return nil
	})

	g.Go(func() error {
		leads, err := s.repo.TopScoredLeads(ctx, agentID, topLeadsLimit)
		if err != nil {
			return err
		}
		snap.TopLeads = make([]LeadSummary, 0, len(leads))
		for _, l := range leads {
			sum := LeadSummary{ID: l.ID, Name: l.Name, Status: l.Status, Source: l.Source}
			if l.Score != nil {
				sum.Score = l.Score.Score
			}
			snap.TopLeads = append(snap.TopLeads, sum)
		}
		return nil
	})

	g.Go(func() error {
		interactions, err := s.repo.RecentInteractions(ctx, agentID, recentActivityLimit)
		if err != nil {
			return err
		}
		snap.RecentActivity = make([]ActivityItem, 0, len(interactions))
		for _, in := range interactions {
			snap.RecentActivity = append(snap.RecentActivity, ActivityItem{
				LeadID:    in.LeadID,
				Type:      in.Type,
				Direction: in.Direction,
				Message:   in.Message,
				At:        in.CreatedAt,
			})
		}
		return nil
	})

	g.Go(func() error {
		ids, err := s.due.DueFollowUpIDs(ctx, agentID, now, 1000)
		if err != nil {
			return err
		}
		snap.DueFollowUps = len(ids)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Conversion rate over the whole funnel, counting lost and converted as
	// resolved outcomes.
	resolved := snap.ByStatus[store.StatusConverted] + snap.ByStatus[store.StatusLost]
	if resolved > 0 {
		snap.ConversionRate = float64(snap.ByStatus[store.StatusConverted]) / float64(resolved)
	}
	if snap.NewLeadsLast7Days > 0 {
		snap.WeeklyConversion = float64(weeklyConversions) / float64(snap.NewLeadsLast7Days)
	}
	return snap, nil
}
