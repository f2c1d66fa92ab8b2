package store

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"leadpilot_backend/internal/events"
	"leadpilot_backend/platform/apperr"
	"leadpilot_backend/platform/logger"
	"leadpilot_backend/platform/validator"
)

// fakeRepo is an in-memory LeadRepository for service tests.
type fakeRepo struct {
	mu           sync.Mutex
	leads        map[uuid.UUID]*Lead
	interactions []Interaction
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{leads: make(map[uuid.UUID]*Lead)}
}

func (f *fakeRepo) CreateLead(_ context.Context, l *Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *l
	f.leads[l.ID] = &cp
	return nil
}

func (f *fakeRepo) GetLead(_ context.Context, id, agentID uuid.UUID) (*Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[id]
	if !ok || l.AgentID != agentID {
		return nil, apperr.NotFound("lead not found")
	}
	cp := *l
	return &cp, nil
}

func (f *fakeRepo) GetLeadStatus(_ context.Context, id uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[id]
	if !ok {
		return "", apperr.NotFound("lead not found")
	}
	return l.Status, nil
}

func (f *fakeRepo) UpdateLead(_ context.Context, l *Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.leads[l.ID]; !ok {
		return apperr.NotFound("lead not found")
	}
	cp := *l
	f.leads[l.ID] = &cp
	return nil
}

func (f *fakeRepo) AttachScore(_ context.Context, id, agentID uuid.UUID, score *LeadScore) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[id]
	if !ok || l.AgentID != agentID {
		return apperr.NotFound("lead not found")
	}
	l.Score = score
	return nil
}

func (f *fakeRepo) DeleteLead(_ context.Context, id, agentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[id]
	if !ok || l.AgentID != agentID {
		return apperr.NotFound("lead not found")
	}
	delete(f.leads, id)
	return nil
}

func (f *fakeRepo) ListLeadsByIDs(_ context.Context, agentID uuid.UUID, ids []uuid.UUID) ([]Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Lead
	for _, id := range ids {
		if l, ok := f.leads[id]; ok && l.AgentID == agentID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (f *fakeRepo) SearchLeads(_ context.Context, agentID uuid.UUID, query string, _ int) ([]Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := strings.ToLower(query)
	var out []Lead
	for _, l := range f.leads {
		if l.AgentID != agentID {
			continue
		}
		if strings.Contains(strings.ToLower(l.Name), q) ||
			strings.Contains(strings.ToLower(l.InitialMessage), q) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateInteraction(_ context.Context, in *Interaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interactions = append(f.interactions, *in)
	return nil
}

func (f *fakeRepo) TouchLastContact(_ context.Context, leadID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.leads[leadID]; ok {
		l.LastContactAt = &at
	}
	return nil
}

func (f *fakeRepo) ListInteractions(_ context.Context, leadID uuid.UUID, _ int) ([]Interaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Interaction
	for _, in := range f.interactions {
		if in.LeadID == leadID {
			out = append(out, in)
		}
	}
	return out, nil
}

// captureBus records published events synchronously.
type captureBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *captureBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *captureBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *captureBus) Subscribe(string, events.Handler) {}

func (b *captureBus) named(name string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, e := range b.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

func newTestStore(t *testing.T) (*Store, *fakeRepo, *captureBus) {
	t.Helper()
	ix, _ := newTestIndex(t)
	repo := newFakeRepo()
	bus := &captureBus{}
	s := NewStore(repo, ix, bus, validator.New(), logger.New("development"))
	return s, repo, bus
}

func TestCreateLeadDefaultsAndEvent(t *testing.T) {
	s, _, bus := newTestStore(t)
	ctx := context.Background()
	agentID := uuid.New()

	lead, err := s.CreateLead(ctx, CreateLeadParams{
		AgentID:        agentID,
		Name:           "Priya Sharma",
		Phone:          "+919876543210",
		Source:         SourceWebsite,
		InitialMessage: "Looking for a 2BHK in Pune",
	})
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}
	if lead.Status != StatusNew {
		t.Fatalf("new lead should start in status new, got %s", lead.Status)
	}
	if lead.Score != nil {
		t.Fatal("new lead must not carry a score")
	}
	if got := bus.named("lead.created"); len(got) != 1 {
		t.Fatalf("expected one lead.created event, got %d", len(got))
	}
}

func TestCreateLeadRequiresContactChannel(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.CreateLead(context.Background(), CreateLeadParams{
		AgentID: uuid.New(),
		Name:    "No Contact",
		Source:  SourceWalkIn,
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateLeadRejectsUnknownSource(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.CreateLead(context.Background(), CreateLeadParams{
		AgentID: uuid.New(),
		Name:    "Bad Source",
		Phone:   "+919876543210",
		Source:  "carrier_pigeon",
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateLeadStatusMovesIndexAndPublishes(t *testing.T) {
	s, repo, bus := newTestStore(t)
	ctx := context.Background()
	agentID := uuid.New()

	lead, err := s.CreateLead(ctx, CreateLeadParams{
		AgentID: agentID,
		Name:    "Rahul Verma",
		Phone:   "+919812345678",
		Source:  SourceReferral,
	})
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}

	status := StatusHot
	updated, err := s.UpdateLead(ctx, agentID, lead.ID, UpdateLeadParams{Status: &status})
	if err != nil {
		t.Fatalf("UpdateLead: %v", err)
	}
	if updated.Status != StatusHot {
		t.Fatalf("expected status hot, got %s", updated.Status)
	}

	// Index follows the primary: exactly one bucket and it is hot.
	n, bucket := membershipCount(t, s.index, agentID, lead.ID)
	if n != 1 || bucket != StatusHot {
		t.Fatalf("expected exactly hot bucket, got %d (%s)", n, bucket)
	}

	got := bus.named("lead.status_changed")
	if len(got) != 1 {
		t.Fatalf("expected one status_changed event, got %d", len(got))
	}
	ev := got[0].(events.LeadStatusChanged)
	if ev.OldStatus != StatusNew || ev.NewStatus != StatusHot {
		t.Fatalf("unexpected transition %s -> %s", ev.OldStatus, ev.NewStatus)
	}

	stored, _ := repo.GetLead(ctx, lead.ID, agentID)
	if stored.Status != StatusHot {
		t.Fatalf("primary record not updated, got %s", stored.Status)
	}
}

func TestUpdateLeadLostRequiresReason(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	agentID := uuid.New()

	lead, err := s.CreateLead(ctx, CreateLeadParams{
		AgentID: agentID,
		Name:    "Lost Lead",
		Phone:   "+919812345678",
		Source:  SourceFacebook,
	})
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}

	status := StatusLost
	_, err = s.UpdateLead(ctx, agentID, lead.ID, UpdateLeadParams{Status: &status})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	reason := "chose another builder"
	updated, err := s.UpdateLead(ctx, agentID, lead.ID, UpdateLeadParams{Status: &status, LostReason: &reason})
	if err != nil {
		t.Fatalf("UpdateLead with reason: %v", err)
	}
	if updated.Status != StatusLost {
		t.Fatalf("expected lost, got %s", updated.Status)
	}
}

func TestUpdateLeadConvertedStampsTimestamp(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	agentID := uuid.New()

	lead, err := s.CreateLead(ctx, CreateLeadParams{
		AgentID: agentID,
		Name:    "Closing Lead",
		Phone:   "+919812345678",
		Source:  SourceWhatsApp,
	})
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}

	status := StatusConverted
	value := int64(7500000)
	updated, err := s.UpdateLead(ctx, agentID, lead.ID, UpdateLeadParams{Status: &status, ConversionValue: &value})
	if err != nil {
		t.Fatalf("UpdateLead: %v", err)
	}
	if updated.ConvertedAt == nil {
		t.Fatal("conversion must stamp ConvertedAt")
	}
	if updated.ConversionValue == nil || *updated.ConversionValue != value {
		t.Fatal("conversion value not stored")
	}
}

func TestAttachScorePublishesLeadScored(t *testing.T) {
	s, repo, bus := newTestStore(t)
	ctx := context.Background()
	agentID := uuid.New()

	lead, err := s.CreateLead(ctx, CreateLeadParams{
		AgentID: agentID,
		Name:    "Scored Lead",
		Phone:   "+919812345678",
		Source:  SourceInstagram,
	})
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}

	score := &LeadScore{Score: 82, Confidence: 0.9, ScoredAt: time.Now(), Version: "v1"}
	if err := s.AttachScore(ctx, agentID, lead.ID, score); err != nil {
		t.Fatalf("AttachScore: %v", err)
	}

	stored, _ := repo.GetLead(ctx, lead.ID, agentID)
	if stored.Score == nil || stored.Score.Score != 82 {
		t.Fatal("score not attached to primary record")
	}
	if got := bus.named("lead.scored"); len(got) != 1 {
		t.Fatalf("expected one lead.scored event, got %d", len(got))
	}
}

func TestAttachScoreRejectsOutOfRange(t *testing.T) {
	s, _, _ := newTestStore(t)
	err := s.AttachScore(context.Background(), uuid.New(), uuid.New(), &LeadScore{Score: 140})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOutboundInteractionMovesNewToContacted(t *testing.T) {
	s, repo, _ := newTestStore(t)
	ctx := context.Background()
	agentID := uuid.New()

	lead, err := s.CreateLead(ctx, CreateLeadParams{
		AgentID: agentID,
		Name:    "Fresh Lead",
		Phone:   "+919812345678",
		Source:  SourcePhoneCall,
	})
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}

	_, err = s.AddInteraction(ctx, AddInteractionParams{
		LeadID:    lead.ID,
		AgentID:   agentID,
		Type:      InteractionCall,
		Direction: DirectionOutbound,
		Message:   "introduced the project",
		Success:   true,
	})
	if err != nil {
		t.Fatalf("AddInteraction: %v", err)
	}

	stored, _ := repo.GetLead(ctx, lead.ID, agentID)
	if stored.Status != StatusContacted {
		t.Fatalf("first outbound contact should move lead to contacted, got %s", stored.Status)
	}
	if stored.LastContactAt == nil {
		t.Fatal("outbound contact should stamp LastContactAt")
	}
}

func TestListLeadsCrossAgentIsolation(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	agentA := uuid.New()
	agentB := uuid.New()

	leadA, err := s.CreateLead(ctx, CreateLeadParams{
		AgentID: agentA, Name: "A's Lead", Phone: "+919812345678", Source: SourceWebsite,
	})
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}
	if _, err := s.CreateLead(ctx, CreateLeadParams{
		AgentID: agentB, Name: "B's Lead", Phone: "+919811111111", Source: SourceWebsite,
	}); err != nil {
		t.Fatalf("CreateLead: %v", err)
	}

	got, err := s.ListLeads(ctx, agentA, ListLeadsParams{})
	if err != nil {
		t.Fatalf("ListLeads: %v", err)
	}
	if len(got) != 1 || got[0].ID != leadA.ID {
		t.Fatalf("agent A should only see their own lead, got %d", len(got))
	}

	if _, err := s.GetLead(ctx, agentB, leadA.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("cross-agent read must look like not found, got %v", err)
	}
}

func TestDeleteLeadDropsIndexEntries(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	agentID := uuid.New()

	lead, err := s.CreateLead(ctx, CreateLeadParams{
		AgentID: agentID, Name: "Doomed Lead", Phone: "+919812345678", Source: SourceWalkIn,
	})
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}
	if err := s.DeleteLead(ctx, agentID, lead.ID); err != nil {
		t.Fatalf("DeleteLead: %v", err)
	}

	if _, err := s.GetLead(ctx, agentID, lead.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	got, err := s.ListLeads(ctx, agentID, ListLeadsParams{})
	if err != nil {
		t.Fatalf("ListLeads: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("deleted lead still listed: %d", len(got))
	}
}

func TestSearchLeadsRejectsShortQuery(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.SearchLeads(context.Background(), uuid.New(), "a", 10)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
