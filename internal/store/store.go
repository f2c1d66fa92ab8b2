// Package store implements the lead store: Postgres primary records with
// Redis secondary indices for recency ranking, status and source buckets,
// the follow-up due queue and per-agent counters.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"leadpilot_backend/internal/events"
	"leadpilot_backend/platform/apperr"
	"leadpilot_backend/platform/logger"
	"leadpilot_backend/platform/phone"
	"leadpilot_backend/platform/validator"
)

// LeadRepository is the slice of the primary store the Store needs.
// Satisfied by *Repository.
type LeadRepository interface {
	CreateLead(ctx context.Context, l *Lead) error
	GetLead(ctx context.Context, id, agentID uuid.UUID) (*Lead, error)
	GetLeadStatus(ctx context.Context, id uuid.UUID) (string, error)
	UpdateLead(ctx context.Context, l *Lead) error
	AttachScore(ctx context.Context, id, agentID uuid.UUID, score *LeadScore) error
	DeleteLead(ctx context.Context, id, agentID uuid.UUID) error
	ListLeadsByIDs(ctx context.Context, agentID uuid.UUID, ids []uuid.UUID) ([]Lead, error)
	SearchLeads(ctx context.Context, agentID uuid.UUID, query string, limit int) ([]Lead, error)
	CreateInteraction(ctx context.Context, in *Interaction) error
	TouchLastContact(ctx context.Context, leadID uuid.UUID, at time.Time) error
	ListInteractions(ctx context.Context, leadID uuid.UUID, limit int) ([]Interaction, error)
}

// Store coordinates the primary records and the secondary indices and
// publishes domain events for downstream pipelines.
type Store struct {
	repo     LeadRepository
	index    *Index
	bus      events.Bus
	validate *validator.Validator
	log      *logger.Logger
}

// NewStore creates the lead store.
func NewStore(repo LeadRepository, index *Index, bus events.Bus, v *validator.Validator, log *logger.Logger) *Store {
	return &Store{repo: repo, index: index, bus: bus, validate: v, log: log}
}

// CreateLeadParams carries the input for a new lead.
type CreateLeadParams struct {
	AgentID          uuid.UUID `validate:"required"`
	Name             string    `validate:"required,min=1,max=200"`
	Phone            string    `validate:"omitempty,min=5,max=20"`
	Email            string    `validate:"omitempty,email"`
	SecondaryPhone   string    `validate:"omitempty,min=5,max=20"`
	SocialHandle     string    `validate:"omitempty,max=100"`
	Source           string    `validate:"required,oneof=website referral phone_call whatsapp facebook instagram walk_in direct_inquiry"`
	InitialMessage   string    `validate:"max=10000"`
	PropertyInterest *PropertyInterest
	Notes            string   `validate:"max=10000"`
	Tags             []string `validate:"max=20,dive,max=50"`
}

// CreateLead validates and stores a new lead, indexes it and publishes
// LeadCreated. Scoring happens asynchronously; creation never waits on it.
func (s *Store) CreateLead(ctx context.Context, params CreateLeadParams) (*Lead, error) {
	if err := s.validate.Struct(params); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid lead", err)
	}
	if params.Phone == "" && params.Email == "" {
		return nil, apperr.Validation("a lead needs at least a phone number or an email")
	}
	if params.PropertyInterest != nil {
		if err := validateInterest(params.PropertyInterest); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	lead := &Lead{
		ID:               uuid.New(),
		AgentID:          params.AgentID,
		Name:             params.Name,
		Source:           params.Source,
		Status:           StatusNew,
		InitialMessage:   params.InitialMessage,
		PropertyInterest: params.PropertyInterest,
		Notes:            params.Notes,
		Tags:             params.Tags,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if params.Phone != "" {
		p := phone.NormalizeE164(params.Phone)
		lead.Phone = &p
	}
	if params.Email != "" {
		lead.Email = &params.Email
	}
	if params.SecondaryPhone != "" {
		p := phone.NormalizeE164(params.SecondaryPhone)
		lead.SecondaryPhone = &p
	}
	if params.SocialHandle != "" {
		lead.SocialHandle = &params.SocialHandle
	}

	if err := s.repo.CreateLead(ctx, lead); err != nil {
		return nil, err
	}
	if err := s.index.AddLead(ctx, lead); err != nil {
		// The primary write succeeded; surface the index failure but leave
		// the record intact. SyncStatus repairs the buckets on next touch.
		s.log.DatabaseError("index_lead", err)
		return lead, apperr.Wrap(apperr.KindIndexInconsistency, "lead stored but not indexed", err)
	}

	s.bus.Publish(ctx, events.LeadCreated{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		AgentID:   lead.AgentID,
		Source:    lead.Source,
	})
	return lead, nil
}

// GetLead fetches one lead owned by the agent.
func (s *Store) GetLead(ctx context.Context, agentID, leadID uuid.UUID) (*Lead, error) {
	return s.repo.GetLead(ctx, leadID, agentID)
}

// ListLeadsParams filters and paginates an agent's lead listing.
type ListLeadsParams struct {
	Status string `validate:"omitempty,oneof=new contacted qualified hot warm cold converted lost"`
	Source string `validate:"omitempty,oneof=website referral phone_call whatsapp facebook instagram walk_in direct_inquiry"`
	Offset int    `validate:"min=0"`
	Limit  int    `validate:"min=0,max=200"`
}

// ListLeads returns an agent's leads newest first, optionally filtered by
// one status or source bucket. Ids come from the index; records from the
// primary store, so a stale index entry degrades to a missing row, never a
// wrong one.
func (s *Store) ListLeads(ctx context.Context, agentID uuid.UUID, params ListLeadsParams) ([]Lead, error) {
	if err := s.validate.Struct(params); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid listing", err)
	}
	if params.Status != "" && params.Source != "" {
		return nil, apperr.Validation("filter by status or source, not both")
	}

	ids, err := s.index.LeadIDs(ctx, agentID, ListFilter{Status: params.Status, Source: params.Source}, params.Offset, params.Limit)
	if err != nil {
		return nil, err
	}
	return s.repo.ListLeadsByIDs(ctx, agentID, ids)
}

// SearchLeads matches a free-text query against the agent's leads.
func (s *Store) SearchLeads(ctx context.Context, agentID uuid.UUID, query string, limit int) ([]Lead, error) {
	if len(query) < 2 {
		return nil, apperr.Validation("search query must be at least 2 characters")
	}
	return s.repo.SearchLeads(ctx, agentID, query, limit)
}

// UpdateLeadParams carries a partial lead update. Nil fields are untouched.
type UpdateLeadParams struct {
	Name             *string `validate:"omitempty,min=1,max=200"`
	Phone            *string `validate:"omitempty,min=5,max=20"`
	Email            *string `validate:"omitempty,email"`
	SecondaryPhone   *string `validate:"omitempty,min=5,max=20"`
	SocialHandle     *string `validate:"omitempty,max=100"`
	Status           *string `validate:"omitempty,oneof=new contacted qualified hot warm cold converted lost"`
	Source           *string `validate:"omitempty,oneof=website referral phone_call whatsapp facebook instagram walk_in direct_inquiry"`
	PropertyInterest *PropertyInterest
	Notes            *string `validate:"omitempty,max=10000"`
	Tags             []string
	ConversionValue  *int64  `validate:"omitempty,min=0"`
	LostReason       *string `validate:"omitempty,max=500"`
}

// UpdateLead applies a partial update. A status change updates the primary
// record first, then converges the status buckets; a source change moves the
// source bucket. LeadStatusChanged fires only after both stores agree.
func (s *Store) UpdateLead(ctx context.Context, agentID, leadID uuid.UUID, params UpdateLeadParams) (*Lead, error) {
	if err := s.validate.Struct(params); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid update", err)
	}
	if params.PropertyInterest != nil {
		if err := validateInterest(params.PropertyInterest); err != nil {
			return nil, err
		}
	}

	lead, err := s.repo.GetLead(ctx, leadID, agentID)
	if err != nil {
		return nil, err
	}

	oldStatus := lead.Status
	oldSource := lead.Source

	if params.Name != nil {
		lead.Name = *params.Name
	}
	if params.Phone != nil {
		p := phone.NormalizeE164(*params.Phone)
		lead.Phone = &p
	}
	if params.Email != nil {
		lead.Email = params.Email
	}
	if params.SecondaryPhone != nil {
		p := phone.NormalizeE164(*params.SecondaryPhone)
		lead.SecondaryPhone = &p
	}
	if params.SocialHandle != nil {
		lead.SocialHandle = params.SocialHandle
	}
	if params.Source != nil {
		lead.Source = *params.Source
	}
	if params.PropertyInterest != nil {
		lead.PropertyInterest = params.PropertyInterest
	}
	if params.Notes != nil {
		lead.Notes = *params.Notes
	}
	if params.Tags != nil {
		lead.Tags = params.Tags
	}
	if params.ConversionValue != nil {
		lead.ConversionValue = params.ConversionValue
	}
	if params.LostReason != nil {
		lead.LostReason = params.LostReason
	}
	if params.Status != nil && *params.Status != oldStatus {
		lead.Status = *params.Status
		switch lead.Status {
		case StatusConverted:
			if lead.ConvertedAt == nil {
				now := time.Now().UTC()
				lead.ConvertedAt = &now
			}
		case StatusLost:
			if lead.LostReason == nil || *lead.LostReason == "" {
				return nil, apperr.Validation("marking a lead lost requires a reason")
			}
		}
	}
	lead.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateLead(ctx, lead); err != nil {
		return nil, err
	}

	if lead.Status != oldStatus {
		if err := s.index.SyncStatus(ctx, s.repo, agentID, leadID); err != nil {
			return nil, err
		}
		s.bus.Publish(ctx, events.LeadStatusChanged{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    leadID,
			AgentID:   agentID,
			OldStatus: oldStatus,
			NewStatus: lead.Status,
		})
	}
	if lead.Source != oldSource {
		if err := s.index.UpdateSource(ctx, agentID, leadID, oldSource, lead.Source); err != nil {
			return nil, err
		}
	}
	return lead, nil
}

// AttachScore writes a freshly computed score to the lead and publishes
// LeadScored. Only the scoring pipeline calls this.
func (s *Store) AttachScore(ctx context.Context, agentID, leadID uuid.UUID, score *LeadScore) error {
	if score == nil {
		return apperr.Validation("score is required")
	}
	if score.Score < 0 || score.Score > 100 {
		return apperr.Validation(fmt.Sprintf("score %d out of range", score.Score))
	}
	if err := s.repo.AttachScore(ctx, leadID, agentID, score); err != nil {
		return err
	}
	s.bus.Publish(ctx, events.LeadScored{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		AgentID:   agentID,
		Score:     score.Score,
		Fallback:  score.Fallback,
	})
	return nil
}

// DeleteLead soft-deletes a lead and drops it from every index.
func (s *Store) DeleteLead(ctx context.Context, agentID, leadID uuid.UUID) error {
	lead, err := s.repo.GetLead(ctx, leadID, agentID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteLead(ctx, leadID, agentID); err != nil {
		return err
	}
	return s.index.RemoveLead(ctx, lead)
}

// AddInteractionParams carries one new touchpoint.
type AddInteractionParams struct {
	LeadID      uuid.UUID `validate:"required"`
	AgentID     uuid.UUID `validate:"required"`
	Type        string    `validate:"required,oneof=call message email meeting viewing note"`
	Direction   string    `validate:"required,oneof=inbound outbound"`
	Message     string    `validate:"max=10000"`
	Success     bool
	ScheduledAt *time.Time
	CompletedAt *time.Time
}

// AddInteraction appends an interaction to a lead's history. A completed
// outbound touch stamps the lead's last contact time, and the first contact
// moves a new lead to contacted.
func (s *Store) AddInteraction(ctx context.Context, params AddInteractionParams) (*Interaction, error) {
	if err := s.validate.Struct(params); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid interaction", err)
	}

	lead, err := s.repo.GetLead(ctx, params.LeadID, params.AgentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	in := &Interaction{
		ID:          uuid.New(),
		LeadID:      params.LeadID,
		AgentID:     params.AgentID,
		Type:        params.Type,
		Direction:   params.Direction,
		Message:     params.Message,
		Success:     params.Success,
		ScheduledAt: params.ScheduledAt,
		CompletedAt: params.CompletedAt,
		CreatedAt:   now,
	}
	if err := s.repo.CreateInteraction(ctx, in); err != nil {
		return nil, err
	}

	if params.Direction == DirectionOutbound && params.Type != InteractionNote {
		at := now
		if params.CompletedAt != nil {
			at = *params.CompletedAt
		}
		if err := s.repo.TouchLastContact(ctx, params.LeadID, at); err != nil {
			s.log.DatabaseError("touch_last_contact", err)
		}
		if lead.Status == StatusNew {
			status := StatusContacted
			if _, err := s.UpdateLead(ctx, params.AgentID, params.LeadID, UpdateLeadParams{Status: &status}); err != nil {
				s.log.DatabaseError("auto_contacted", err)
			}
		}
	}
	return in, nil
}

// ListInteractions returns a lead's recent interactions, newest first.
func (s *Store) ListInteractions(ctx context.Context, agentID, leadID uuid.UUID, limit int) ([]Interaction, error) {
	if _, err := s.repo.GetLead(ctx, leadID, agentID); err != nil {
		return nil, err
	}
	return s.repo.ListInteractions(ctx, leadID, limit)
}

// VerifyStatusIndex audits one lead's bucket membership against the primary
// record, repairing on mismatch.
func (s *Store) VerifyStatusIndex(ctx context.Context, agentID, leadID uuid.UUID) error {
	_, err := s.index.VerifyStatus(ctx, s.repo, agentID, leadID)
	return err
}

func validateInterest(pi *PropertyInterest) error {
	if pi.BudgetMin < 0 || pi.BudgetMax < 0 {
		return apperr.Validation("budget cannot be negative")
	}
	if pi.BudgetMin > 0 && pi.BudgetMax > 0 && pi.BudgetMin > pi.BudgetMax {
		return apperr.Validation("budget minimum exceeds maximum")
	}
	switch pi.Urgency {
	case "", UrgencyImmediate, UrgencyOneToThree, UrgencyThreeToSix, UrgencySixPlus, UrgencyExploring:
	default:
		return apperr.Validation("unknown urgency tier")
	}
	return nil
}
