package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadpilot_backend/platform/apperr"
)

// Repository persists leads, interactions and follow-up records in Postgres.
// All reads are scoped by agent id so one agent can never see another's leads.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Postgres-backed repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const leadColumns = `id, agent_id, name, phone, email, secondary_phone, social_handle,
	source, status, initial_message, property_interest, score, notes, tags,
	conversion_value, lost_reason, converted_at, last_contact_at, next_follow_up_at,
	created_at, updated_at`

func scanLead(row pgx.Row) (*Lead, error) {
	var l Lead
	var interest, score []byte
	err := row.Scan(
		&l.ID, &l.AgentID, &l.Name, &l.Phone, &l.Email, &l.SecondaryPhone, &l.SocialHandle,
		&l.Source, &l.Status, &l.InitialMessage, &interest, &score, &l.Notes, &l.Tags,
		&l.ConversionValue, &l.LostReason, &l.ConvertedAt, &l.LastContactAt, &l.NextFollowUpAt,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(interest) > 0 {
		l.PropertyInterest = &PropertyInterest{}
		if err := json.Unmarshal(interest, l.PropertyInterest); err != nil {
			return nil, fmt.Errorf("decode property interest: %w", err)
		}
	}
	if len(score) > 0 {
		l.Score = &LeadScore{}
		if err := json.Unmarshal(score, l.Score); err != nil {
			return nil, fmt.Errorf("decode score: %w", err)
		}
	}
	return &l, nil
}

// CreateLead inserts a new lead row.
func (r *Repository) CreateLead(ctx context.Context, l *Lead) error {
	var interest, score []byte
	var err error
	if l.PropertyInterest != nil {
		if interest, err = json.Marshal(l.PropertyInterest); err != nil {
			return fmt.Errorf("encode property interest: %w", err)
		}
	}
	if l.Score != nil {
		if score, err = json.Marshal(l.Score); err != nil {
			return fmt.Errorf("encode score: %w", err)
		}
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO leads (
			id, agent_id, name, phone, email, secondary_phone, social_handle,
			source, status, initial_message, property_interest, score, notes, tags,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		l.ID, l.AgentID, l.Name, l.Phone, l.Email, l.SecondaryPhone, l.SocialHandle,
		l.Source, l.Status, l.InitialMessage, interest, score, l.Notes, l.Tags,
		l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

// GetLead fetches one lead owned by the agent. Soft-deleted leads are
// invisible here.
func (r *Repository) GetLead(ctx context.Context, id, agentID uuid.UUID) (*Lead, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE id = $1 AND agent_id = $2 AND deleted_at IS NULL`,
		id, agentID,
	)
	l, err := scanLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("lead not found")
		}
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

// GetLeadStatus reads only the current status of a lead. Used by the index
// layer to converge bucket membership against the primary record.
func (r *Repository) GetLeadStatus(ctx context.Context, id uuid.UUID) (string, error) {
	var status string
	err := r.db.QueryRow(ctx,
		`SELECT status FROM leads WHERE id = $1 AND deleted_at IS NULL`, id,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.NotFound("lead not found")
		}
		return "", fmt.Errorf("get lead status: %w", err)
	}
	return status, nil
}

// UpdateLead writes the mutable lead fields back to the row.
func (r *Repository) UpdateLead(ctx context.Context, l *Lead) error {
	var interest, score []byte
	var err error
	if l.PropertyInterest != nil {
		if interest, err = json.Marshal(l.PropertyInterest); err != nil {
			return fmt.Errorf("encode property interest: %w", err)
		}
	}
	if l.Score != nil {
		if score, err = json.Marshal(l.Score); err != nil {
			return fmt.Errorf("encode score: %w", err)
		}
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE leads SET
			name = $3, phone = $4, email = $5, secondary_phone = $6, social_handle = $7,
			status = $8, initial_message = $9, property_interest = $10, score = $11,
			notes = $12, tags = $13, conversion_value = $14, lost_reason = $15,
			converted_at = $16, last_contact_at = $17, next_follow_up_at = $18,
			updated_at = $19
		WHERE id = $1 AND agent_id = $2 AND deleted_at IS NULL`,
		l.ID, l.AgentID,
		l.Name, l.Phone, l.Email, l.SecondaryPhone, l.SocialHandle,
		l.Status, l.InitialMessage, interest, score,
		l.Notes, l.Tags, l.ConversionValue, l.LostReason,
		l.ConvertedAt, l.LastContactAt, l.NextFollowUpAt,
		l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("lead not found")
	}
	return nil
}

// AttachScore writes only the score column. The rest of the row is left
// untouched so a slow scoring task never clobbers a concurrent edit.
func (r *Repository) AttachScore(ctx context.Context, id, agentID uuid.UUID, score *LeadScore) error {
	raw, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("encode score: %w", err)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE leads SET score = $3, updated_at = now()
		WHERE id = $1 AND agent_id = $2 AND deleted_at IS NULL`,
		id, agentID, raw,
	)
	if err != nil {
		return fmt.Errorf("attach score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("lead not found")
	}
	return nil
}

// DeleteLead soft-deletes a lead.
func (r *Repository) DeleteLead(ctx context.Context, id, agentID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE leads SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND agent_id = $2 AND deleted_at IS NULL`,
		id, agentID,
	)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("lead not found")
	}
	return nil
}

// ListLeadsByIDs loads the given leads preserving the order of ids. Unknown
// or deleted ids are silently skipped so a stale index entry cannot fail a
// listing.
func (r *Repository) ListLeadsByIDs(ctx context.Context, agentID uuid.UUID, ids []uuid.UUID) ([]Lead, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE agent_id = $1 AND id = ANY($2) AND deleted_at IS NULL`,
		agentID, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]Lead, len(ids))
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("list leads: %w", err)
		}
		byID[l.ID] = *l
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}

	out := make([]Lead, 0, len(byID))
	for _, id := range ids {
		if l, ok := byID[id]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

// SearchLeads does a case-insensitive substring match over the text fields
// of an agent's leads, newest first.
func (r *Repository) SearchLeads(ctx context.Context, agentID uuid.UUID, query string, limit int) ([]Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + query + "%"
	rows, err := r.db.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE agent_id = $1 AND deleted_at IS NULL
		  AND (name ILIKE $2 OR phone ILIKE $2 OR email ILIKE $2
		       OR initial_message ILIKE $2 OR notes ILIKE $2)
		ORDER BY created_at DESC
		LIMIT $3`,
		agentID, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search leads: %w", err)
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("search leads: %w", err)
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search leads: %w", err)
	}
	return out, nil
}

// CreateInteraction appends one interaction and stamps the lead's last
// contact time for completed outbound touches.
func (r *Repository) CreateInteraction(ctx context.Context, in *Interaction) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO interactions (
			id, lead_id, agent_id, type, direction, message, success,
			scheduled_at, completed_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		in.ID, in.LeadID, in.AgentID, in.Type, in.Direction, in.Message, in.Success,
		in.ScheduledAt, in.CompletedAt, in.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

// TouchLastContact updates the lead's last contact timestamp.
func (r *Repository) TouchLastContact(ctx context.Context, leadID uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE leads SET last_contact_at = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		leadID, at,
	)
	if err != nil {
		return fmt.Errorf("touch last contact: %w", err)
	}
	return nil
}

// ListInteractions returns the most recent interactions for a lead,
// newest first.
func (r *Repository) ListInteractions(ctx context.Context, leadID uuid.UUID, limit int) ([]Interaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, lead_id, agent_id, type, direction, message, success,
		       scheduled_at, completed_at, created_at
		FROM interactions
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		leadID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var in Interaction
		if err := rows.Scan(
			&in.ID, &in.LeadID, &in.AgentID, &in.Type, &in.Direction, &in.Message,
			&in.Success, &in.ScheduledAt, &in.CompletedAt, &in.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("list interactions: %w", err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	return out, nil
}

// RecentInteractions returns the agent's latest interactions across all
// their live leads, newest first. Feeds the dashboard activity panel.
func (r *Repository) RecentInteractions(ctx context.Context, agentID uuid.UUID, limit int) ([]Interaction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, `
		SELECT i.id, i.lead_id, i.agent_id, i.type, i.direction, i.message,
		       i.success, i.scheduled_at, i.completed_at, i.created_at
		FROM interactions i
		JOIN leads l ON l.id = i.lead_id AND l.deleted_at IS NULL
		WHERE i.agent_id = $1
		ORDER BY i.created_at DESC
		LIMIT $2`,
		agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var in Interaction
		if err := rows.Scan(
			&in.ID, &in.LeadID, &in.AgentID, &in.Type, &in.Direction, &in.Message,
			&in.Success, &in.ScheduledAt, &in.CompletedAt, &in.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("recent interactions: %w", err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent interactions: %w", err)
	}
	return out, nil
}

// CreateSequence inserts a follow-up sequence template.
func (r *Repository) CreateSequence(ctx context.Context, s *FollowUpSequence) error {
	steps, err := json.Marshal(s.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO follow_up_sequences (
			id, agent_id, name, steps, is_active, score_threshold, lead_sources,
			max_attempts, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		s.ID, s.AgentID, s.Name, steps, s.IsActive, s.ScoreThreshold, s.LeadSources,
		s.MaxAttempts, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sequence: %w", err)
	}
	return nil
}

func scanSequence(row pgx.Row) (*FollowUpSequence, error) {
	var s FollowUpSequence
	var steps []byte
	err := row.Scan(
		&s.ID, &s.AgentID, &s.Name, &steps, &s.IsActive, &s.ScoreThreshold,
		&s.LeadSources, &s.MaxAttempts, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(steps, &s.Steps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	return &s, nil
}

const sequenceColumns = `id, agent_id, name, steps, is_active, score_threshold,
	lead_sources, max_attempts, created_at, updated_at`

// GetSequence fetches one sequence owned by the agent.
func (r *Repository) GetSequence(ctx context.Context, id, agentID uuid.UUID) (*FollowUpSequence, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+sequenceColumns+`
		FROM follow_up_sequences
		WHERE id = $1 AND agent_id = $2`,
		id, agentID,
	)
	s, err := scanSequence(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("sequence not found")
		}
		return nil, fmt.Errorf("get sequence: %w", err)
	}
	return s, nil
}

// ListSequences returns all of an agent's sequences. Pass activeOnly to
// restrict to sequences eligible for new attachments.
func (r *Repository) ListSequences(ctx context.Context, agentID uuid.UUID, activeOnly bool) ([]FollowUpSequence, error) {
	q := `SELECT ` + sequenceColumns + ` FROM follow_up_sequences WHERE agent_id = $1`
	if activeOnly {
		q += ` AND is_active = true`
	}
	q += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, q, agentID)
	if err != nil {
		return nil, fmt.Errorf("list sequences: %w", err)
	}
	defer rows.Close()

	var out []FollowUpSequence
	for rows.Next() {
		s, err := scanSequence(rows)
		if err != nil {
			return nil, fmt.Errorf("list sequences: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sequences: %w", err)
	}
	return out, nil
}

// SetSequenceActive flips a sequence's active flag.
func (r *Repository) SetSequenceActive(ctx context.Context, id, agentID uuid.UUID, active bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE follow_up_sequences SET is_active = $3, updated_at = now()
		WHERE id = $1 AND agent_id = $2`,
		id, agentID, active,
	)
	if err != nil {
		return fmt.Errorf("set sequence active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("sequence not found")
	}
	return nil
}

const followUpColumns = `id, lead_id, sequence_id, agent_id, current_step, is_active,
	is_completed, next_action_at, paused_until, steps_completed, steps_succeeded,
	attempts, created_at, updated_at`

func scanFollowUp(row pgx.Row) (*LeadFollowUp, error) {
	var f LeadFollowUp
	err := row.Scan(
		&f.ID, &f.LeadID, &f.SequenceID, &f.AgentID, &f.CurrentStep, &f.IsActive,
		&f.IsCompleted, &f.NextActionAt, &f.PausedUntil, &f.StepsCompleted,
		&f.StepsSucceeded, &f.Attempts, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// CreateLeadFollowUp attaches a sequence to a lead. The unique constraint on
// (lead_id, sequence_id) rejects a second attachment of the same sequence.
func (r *Repository) CreateLeadFollowUp(ctx context.Context, f *LeadFollowUp) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO lead_follow_ups (
			id, lead_id, sequence_id, agent_id, current_step, is_active, is_completed,
			next_action_at, paused_until, steps_completed, steps_succeeded, attempts,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (lead_id, sequence_id) DO NOTHING`,
		f.ID, f.LeadID, f.SequenceID, f.AgentID, f.CurrentStep, f.IsActive, f.IsCompleted,
		f.NextActionAt, f.PausedUntil, f.StepsCompleted, f.StepsSucceeded, f.Attempts,
		f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert follow-up: %w", err)
	}
	return nil
}

// GetLeadFollowUp fetches one follow-up record.
func (r *Repository) GetLeadFollowUp(ctx context.Context, id uuid.UUID) (*LeadFollowUp, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+followUpColumns+`
		FROM lead_follow_ups
		WHERE id = $1`,
		id,
	)
	f, err := scanFollowUp(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("follow-up not found")
		}
		return nil, fmt.Errorf("get follow-up: %w", err)
	}
	return f, nil
}

// ListFollowUpsForLead returns every follow-up record bound to a lead.
func (r *Repository) ListFollowUpsForLead(ctx context.Context, leadID uuid.UUID) ([]LeadFollowUp, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+followUpColumns+`
		FROM lead_follow_ups
		WHERE lead_id = $1
		ORDER BY created_at`,
		leadID,
	)
	if err != nil {
		return nil, fmt.Errorf("list follow-ups: %w", err)
	}
	defer rows.Close()

	var out []LeadFollowUp
	for rows.Next() {
		f, err := scanFollowUp(rows)
		if err != nil {
			return nil, fmt.Errorf("list follow-ups: %w", err)
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list follow-ups: %w", err)
	}
	return out, nil
}

// UpdateLeadFollowUp writes the progress fields of a follow-up back.
func (r *Repository) UpdateLeadFollowUp(ctx context.Context, f *LeadFollowUp) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE lead_follow_ups SET
			current_step = $2, is_active = $3, is_completed = $4, next_action_at = $5,
			paused_until = $6, steps_completed = $7, steps_succeeded = $8, attempts = $9,
			updated_at = $10
		WHERE id = $1`,
		f.ID, f.CurrentStep, f.IsActive, f.IsCompleted, f.NextActionAt,
		f.PausedUntil, f.StepsCompleted, f.StepsSucceeded, f.Attempts, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update follow-up: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("follow-up not found")
	}
	return nil
}

// DueFollowUps returns active, unpaused follow-ups whose next action time has
// passed. The scheduler sweep uses this as the source of truth behind the
// Redis due queue.
func (r *Repository) DueFollowUps(ctx context.Context, now time.Time, limit int) ([]LeadFollowUp, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+followUpColumns+`
		FROM lead_follow_ups
		WHERE is_active = true AND is_completed = false
		  AND next_action_at IS NOT NULL AND next_action_at <= $1
		  AND (paused_until IS NULL OR paused_until <= $1)
		ORDER BY next_action_at
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("due follow-ups: %w", err)
	}
	defer rows.Close()

	var out []LeadFollowUp
	for rows.Next() {
		f, err := scanFollowUp(rows)
		if err != nil {
			return nil, fmt.Errorf("due follow-ups: %w", err)
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("due follow-ups: %w", err)
	}
	return out, nil
}

// StatusCounts groups an agent's live leads by status.
func (r *Repository) StatusCounts(ctx context.Context, agentID uuid.UUID) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT status, count(*)
		FROM leads
		WHERE agent_id = $1 AND deleted_at IS NULL
		GROUP BY status`,
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("status counts: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

// SourceCounts groups an agent's live leads by source.
func (r *Repository) SourceCounts(ctx context.Context, agentID uuid.UUID) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT source, count(*)
		FROM leads
		WHERE agent_id = $1 AND deleted_at IS NULL
		GROUP BY source`,
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("source counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("source counts: %w", err)
		}
		out[source] = n
	}
	return out, rows.Err()
}

// ConversionStats reports converted lead count and total conversion value for
// leads converted at or after since.
func (r *Repository) ConversionStats(ctx context.Context, agentID uuid.UUID, since time.Time) (count int, totalValue int64, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT count(*), COALESCE(sum(conversion_value), 0)
		FROM leads
		WHERE agent_id = $1 AND deleted_at IS NULL
		  AND status = $2 AND converted_at >= $3`,
		agentID, StatusConverted, since,
	).Scan(&count, &totalValue)
	if err != nil {
		return 0, 0, fmt.Errorf("conversion stats: %w", err)
	}
	return count, totalValue, nil
}

// CountLeadsSince counts leads created at or after since.
func (r *Repository) CountLeadsSince(ctx context.Context, agentID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*)
		FROM leads
		WHERE agent_id = $1 AND deleted_at IS NULL AND created_at >= $2`,
		agentID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count leads since: %w", err)
	}
	return n, nil
}

// CountUncontacted counts live leads that have never been contacted.
func (r *Repository) CountUncontacted(ctx context.Context, agentID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*)
		FROM leads
		WHERE agent_id = $1 AND deleted_at IS NULL
		  AND last_contact_at IS NULL
		  AND status NOT IN ($2, $3)`,
		agentID, StatusConverted, StatusLost,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count uncontacted: %w", err)
	}
	return n, nil
}

// AverageScore computes the mean score over scored, live leads. Returns ok
// false when no lead has a score yet.
func (r *Repository) AverageScore(ctx context.Context, agentID uuid.UUID) (avg float64, ok bool, err error) {
	var val *float64
	err = r.db.QueryRow(ctx, `
		SELECT avg((score->>'score')::int)
		FROM leads
		WHERE agent_id = $1 AND deleted_at IS NULL AND score IS NOT NULL`,
		agentID,
	).Scan(&val)
	if err != nil {
		return 0, false, fmt.Errorf("average score: %w", err)
	}
	if val == nil {
		return 0, false, nil
	}
	return *val, true, nil
}

// TopScoredLeads returns the agent's highest-scored open leads.
func (r *Repository) TopScoredLeads(ctx context.Context, agentID uuid.UUID, limit int) ([]Lead, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE agent_id = $1 AND deleted_at IS NULL AND score IS NOT NULL
		  AND status NOT IN ($2, $3)
		ORDER BY (score->>'score')::int DESC, created_at DESC
		LIMIT $4`,
		agentID, StatusConverted, StatusLost, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top scored leads: %w", err)
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("top scored leads: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// AllLeadIDs streams every live lead id for an agent, oldest first. Used by
// the score backfill command and index verification.
func (r *Repository) AllLeadIDs(ctx context.Context, agentID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM leads
		WHERE agent_id = $1 AND deleted_at IS NULL
		ORDER BY created_at`,
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("all lead ids: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("all lead ids: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
