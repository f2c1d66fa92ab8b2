// Package followups runs automated follow-up sequences: reusable step
// templates attached to leads by score and source, advanced one due step at
// a time by the background worker.
package followups

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"leadpilot_backend/internal/events"
	"leadpilot_backend/internal/store"
	"leadpilot_backend/platform/apperr"
	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/logger"
	"leadpilot_backend/platform/validator"
)

// Repository is the slice of the primary store this service needs.
// Satisfied by *store.Repository.
type Repository interface {
	GetLead(ctx context.Context, id, agentID uuid.UUID) (*store.Lead, error)
	CreateSequence(ctx context.Context, s *store.FollowUpSequence) error
	GetSequence(ctx context.Context, id, agentID uuid.UUID) (*store.FollowUpSequence, error)
	ListSequences(ctx context.Context, agentID uuid.UUID, activeOnly bool) ([]store.FollowUpSequence, error)
	SetSequenceActive(ctx context.Context, id, agentID uuid.UUID, active bool) error
	CreateLeadFollowUp(ctx context.Context, f *store.LeadFollowUp) error
	GetLeadFollowUp(ctx context.Context, id uuid.UUID) (*store.LeadFollowUp, error)
	ListFollowUpsForLead(ctx context.Context, leadID uuid.UUID) ([]store.LeadFollowUp, error)
	UpdateLeadFollowUp(ctx context.Context, f *store.LeadFollowUp) error
	DueFollowUps(ctx context.Context, now time.Time, limit int) ([]store.LeadFollowUp, error)
}

// Scheduler is the due-queue side of the index. Satisfied by *store.Index.
type Scheduler interface {
	ScheduleFollowUp(ctx context.Context, agentID, followUpID uuid.UUID, at time.Time) error
	UnscheduleFollowUp(ctx context.Context, agentID, followUpID uuid.UUID) error
	DueFollowUpIDs(ctx context.Context, agentID uuid.UUID, now time.Time, limit int) ([]uuid.UUID, error)
	ClaimStep(ctx context.Context, followUpID uuid.UUID, ttl time.Duration) (bool, error)
	ReleaseClaim(ctx context.Context, followUpID uuid.UUID)
}

// Notifier delivers one automated outreach step. Implemented by the notify
// dispatcher; call steps are surfaced as tasks for the agent instead.
type Notifier interface {
	Send(ctx context.Context, lead *store.Lead, channel, message string) error
}

const claimTTL = 2 * time.Minute

// Service owns sequence templates and lead follow-up progression.
type Service struct {
	repo     Repository
	sched    Scheduler
	notifier Notifier
	bus      events.Bus
	validate *validator.Validator
	hours    config.BusinessHoursConfig
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates the follow-up service.
func NewService(repo Repository, sched Scheduler, notifier Notifier, bus events.Bus,
	v *validator.Validator, hours config.BusinessHoursConfig, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		sched:    sched,
		notifier: notifier,
		bus:      bus,
		validate: v,
		hours:    hours,
		log:      log,
		now:      time.Now,
	}
}

// StepParams describes one step of a new sequence.
type StepParams struct {
	Delay     time.Duration `validate:"min=0"`
	Channel   string        `validate:"required,oneof=call whatsapp email"`
	Template  string        `validate:"required,max=5000"`
	Automated bool
}

// CreateSequenceParams carries the input for a new sequence template.
type CreateSequenceParams struct {
	AgentID        uuid.UUID    `validate:"required"`
	Name           string       `validate:"required,min=1,max=200"`
	Steps          []StepParams `validate:"required,min=1,max=20,dive"`
	ScoreThreshold *int         `validate:"omitempty,min=0,max=100"`
	LeadSources    []string     `validate:"dive,oneof=website referral phone_call whatsapp facebook instagram walk_in direct_inquiry"`
	MaxAttempts    int          `validate:"min=0,max=50"`
}

// CreateSequence validates and stores a new sequence template. Steps are
// numbered in the order given; the first step's delay counts from
// attachment time, each later delay from the previous step.
func (s *Service) CreateSequence(ctx context.Context, params CreateSequenceParams) (*store.FollowUpSequence, error) {
	if err := s.validate.Struct(params); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid sequence", err)
	}

	steps := make([]store.FollowUpStep, len(params.Steps))
	for i, sp := range params.Steps {
		if sp.Channel == store.ChannelCall && sp.Automated {
			return nil, apperr.Validation(fmt.Sprintf("step %d: calls cannot be automated", i+1))
		}
		steps[i] = store.FollowUpStep{
			StepNumber: i + 1,
			Delay:      sp.Delay,
			Channel:    sp.Channel,
			Template:   sp.Template,
			Automated:  sp.Automated,
		}
	}

	maxAttempts := params.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 10
	}

	now := s.now().UTC()
	seq := &store.FollowUpSequence{
		ID:             uuid.New(),
		AgentID:        params.AgentID,
		Name:           params.Name,
		Steps:          steps,
		IsActive:       true,
		ScoreThreshold: params.ScoreThreshold,
		LeadSources:    params.LeadSources,
		MaxAttempts:    maxAttempts,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateSequence(ctx, seq); err != nil {
		return nil, err
	}
	return seq, nil
}

// ListSequences returns an agent's sequence templates.
func (s *Service) ListSequences(ctx context.Context, agentID uuid.UUID, activeOnly bool) ([]store.FollowUpSequence, error) {
	return s.repo.ListSequences(ctx, agentID, activeOnly)
}

// DeactivateSequence stops a sequence from being attached to new leads.
// Already-attached follow-ups keep running.
func (s *Service) DeactivateSequence(ctx context.Context, agentID, sequenceID uuid.UUID) error {
	return s.repo.SetSequenceActive(ctx, sequenceID, agentID, false)
}

// AttachMatching attaches every eligible active sequence to a freshly
// scored lead. A sequence matches when the lead clears its score threshold
// and comes from one of its sources. Terminal leads never get sequences;
// re-attachment of the same sequence is a no-op.
func (s *Service) AttachMatching(ctx context.Context, agentID, leadID uuid.UUID) error {
	lead, err := s.repo.GetLead(ctx, leadID, agentID)
	if err != nil {
		return err
	}
	if lead.Status == store.StatusConverted || lead.Status == store.StatusLost {
		return nil
	}

	sequences, err := s.repo.ListSequences(ctx, agentID, true)
	if err != nil {
		return err
	}

	existing, err := s.repo.ListFollowUpsForLead(ctx, leadID)
	if err != nil {
		return err
	}
	attached := make(map[uuid.UUID]bool, len(existing))
	for _, f := range existing {
		attached[f.SequenceID] = true
	}

	now := s.now().UTC()
	for _, seq := range sequences {
		if attached[seq.ID] || !s.matches(lead, &seq) {
			continue
		}
		next := now.Add(seq.Steps[0].Delay)
		f := &store.LeadFollowUp{
			ID:           uuid.New(),
			LeadID:       leadID,
			SequenceID:   seq.ID,
			AgentID:      agentID,
			CurrentStep:  1,
			IsActive:     true,
			NextActionAt: &next,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.CreateLeadFollowUp(ctx, f); err != nil {
			return err
		}
		if err := s.sched.ScheduleFollowUp(ctx, agentID, f.ID, next); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) matches(lead *store.Lead, seq *store.FollowUpSequence) bool {
	if len(seq.Steps) == 0 {
		return false
	}
	if seq.ScoreThreshold != nil {
		if lead.Score == nil || lead.Score.Score < *seq.ScoreThreshold {
			return false
		}
	}
	if len(seq.LeadSources) > 0 {
		found := false
		for _, src := range seq.LeadSources {
			if src == lead.Source {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// StepOutcome reports what ExecuteDueStep did.
type StepOutcome string

const (
	OutcomeExecuted  StepOutcome = "executed"
	OutcomeSkipped   StepOutcome = "skipped"
	OutcomeDeferred  StepOutcome = "deferred"
	OutcomeCompleted StepOutcome = "completed"
	OutcomeStopped   StepOutcome = "stopped"
)

// ExecuteDueStep runs one due follow-up step. It claims the follow-up so a
// concurrent worker cannot double-fire, re-checks every guard against fresh
// records, executes automated steps through the notifier, and advances or
// finishes the follow-up. Quiet-hour steps are deferred to the next send
// window without consuming an attempt.
func (s *Service) ExecuteDueStep(ctx context.Context, followUpID uuid.UUID) (StepOutcome, error) {
	claimed, err := s.sched.ClaimStep(ctx, followUpID, claimTTL)
	if err != nil {
		return OutcomeSkipped, err
	}
	if !claimed {
		return OutcomeSkipped, nil
	}
	defer s.sched.ReleaseClaim(ctx, followUpID)

	f, err := s.repo.GetLeadFollowUp(ctx, followUpID)
	if err != nil {
		return OutcomeSkipped, err
	}
	if !f.IsActive || f.IsCompleted {
		_ = s.sched.UnscheduleFollowUp(ctx, f.AgentID, f.ID)
		return OutcomeSkipped, nil
	}

	now := s.now().UTC()
	if f.PausedUntil != nil && f.PausedUntil.After(now) {
		return s.deferStep(ctx, f, *f.PausedUntil)
	}
	if f.NextActionAt == nil || f.NextActionAt.After(now) {
		return OutcomeSkipped, nil
	}

	lead, err := s.repo.GetLead(ctx, f.LeadID, f.AgentID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return s.stop(ctx, f, "lead gone")
		}
		return OutcomeSkipped, err
	}
	if lead.Status == store.StatusConverted || lead.Status == store.StatusLost {
		return s.stop(ctx, f, "lead reached terminal status")
	}

	seq, err := s.repo.GetSequence(ctx, f.SequenceID, f.AgentID)
	if err != nil {
		return OutcomeSkipped, err
	}
	if f.CurrentStep < 1 || f.CurrentStep > len(seq.Steps) {
		return s.stop(ctx, f, "step out of range")
	}
	if seq.MaxAttempts > 0 && f.Attempts >= seq.MaxAttempts {
		return s.stop(ctx, f, "attempts exhausted")
	}

	if next, quiet := s.nextSendWindow(now); quiet {
		return s.deferStep(ctx, f, next)
	}

	step := seq.Steps[f.CurrentStep-1]
	success := true
	if step.Automated {
		message := RenderTemplate(step.Template, lead)
		if err := s.notifier.Send(ctx, lead, step.Channel, message); err != nil {
			s.log.TaskError("followup_send", err)
			success = false
		}
	}

	f.Attempts++
	f.StepsCompleted++
	if success {
		f.StepsSucceeded++
	}
	f.UpdatedAt = now

	outcome := OutcomeExecuted
	if f.CurrentStep >= len(seq.Steps) {
		f.IsCompleted = true
		f.IsActive = false
		f.NextActionAt = nil
		outcome = OutcomeCompleted
	} else {
		f.CurrentStep++
		next := now.Add(seq.Steps[f.CurrentStep-1].Delay)
		f.NextActionAt = &next
	}
	if err := s.repo.UpdateLeadFollowUp(ctx, f); err != nil {
		return OutcomeSkipped, err
	}

	if f.NextActionAt != nil {
		if err := s.sched.ScheduleFollowUp(ctx, f.AgentID, f.ID, *f.NextActionAt); err != nil {
			return outcome, err
		}
	} else {
		_ = s.sched.UnscheduleFollowUp(ctx, f.AgentID, f.ID)
	}

	s.bus.Publish(ctx, events.FollowUpStepExecuted{
		BaseEvent:  events.NewBaseEvent(),
		FollowUpID: f.ID,
		LeadID:     f.LeadID,
		AgentID:    f.AgentID,
		Step:       step.StepNumber,
		Channel:    step.Channel,
		Success:    success,
	})
	return outcome, nil
}

func (s *Service) deferStep(ctx context.Context, f *store.LeadFollowUp, until time.Time) (StepOutcome, error) {
	f.NextActionAt = &until
	f.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateLeadFollowUp(ctx, f); err != nil {
		return OutcomeSkipped, err
	}
	if err := s.sched.ScheduleFollowUp(ctx, f.AgentID, f.ID, until); err != nil {
		return OutcomeSkipped, err
	}
	return OutcomeDeferred, nil
}

func (s *Service) stop(ctx context.Context, f *store.LeadFollowUp, reason string) (StepOutcome, error) {
	s.log.Info("follow-up stopped", "followUpId", f.ID, "reason", reason)
	f.IsActive = false
	f.NextActionAt = nil
	f.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateLeadFollowUp(ctx, f); err != nil {
		return OutcomeSkipped, err
	}
	_ = s.sched.UnscheduleFollowUp(ctx, f.AgentID, f.ID)
	return OutcomeStopped, nil
}

// nextSendWindow reports whether now falls inside quiet hours and, if so,
// the next moment automated outreach may resume. Quiet hours may wrap
// midnight (e.g. 21 to 8).
func (s *Service) nextSendWindow(now time.Time) (time.Time, bool) {
	start := s.hours.GetQuietHourStart()
	end := s.hours.GetQuietHourEnd()
	if start == end {
		return time.Time{}, false
	}

	hour := now.Hour()
	var quiet bool
	if start < end {
		quiet = hour >= start && hour < end
	} else {
		quiet = hour >= start || hour < end
	}
	if !quiet {
		return time.Time{}, false
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), end, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next, true
}

// PauseFollowUp suspends a follow-up until the given time.
func (s *Service) PauseFollowUp(ctx context.Context, agentID, followUpID uuid.UUID, until time.Time) error {
	f, err := s.repo.GetLeadFollowUp(ctx, followUpID)
	if err != nil {
		return err
	}
	if f.AgentID != agentID {
		return apperr.NotFound("follow-up not found")
	}
	f.PausedUntil = &until
	f.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateLeadFollowUp(ctx, f); err != nil {
		return err
	}
	return s.sched.ScheduleFollowUp(ctx, agentID, followUpID, until)
}

// StopFollowUp permanently deactivates one follow-up.
func (s *Service) StopFollowUp(ctx context.Context, agentID, followUpID uuid.UUID) error {
	f, err := s.repo.GetLeadFollowUp(ctx, followUpID)
	if err != nil {
		return err
	}
	if f.AgentID != agentID {
		return apperr.NotFound("follow-up not found")
	}
	_, err = s.stop(ctx, f, "stopped by agent")
	return err
}

// DueFollowUps lists follow-ups whose action time has passed, straight from
// the primary store. The sweep uses this to self-heal the Redis due queue.
func (s *Service) DueFollowUps(ctx context.Context, limit int) ([]store.LeadFollowUp, error) {
	return s.repo.DueFollowUps(ctx, s.now().UTC(), limit)
}

// RenderTemplate substitutes lead placeholders into a step template.
// Unknown placeholders are left as-is.
func RenderTemplate(template string, lead *store.Lead) string {
	r := strings.NewReplacer(
		"{name}", lead.Name,
		"{agent}", "your agent",
	)
	out := r.Replace(template)
	if pi := lead.PropertyInterest; pi != nil {
		out = strings.NewReplacer(
			"{property_type}", pi.PropertyType,
			"{location}", pi.Location,
		).Replace(out)
	}
	return out
}
