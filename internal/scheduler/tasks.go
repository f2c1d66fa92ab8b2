// Package scheduler runs the background side of the system: lead scoring
// tasks and due follow-up steps over asynq, plus the periodic sweep that
// keeps the due queue honest.
package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task types handled by the worker.
const (
	TypeLeadScore    = "lead:score"
	TypeFollowUpStep = "followup:step"
)

// LeadScorePayload identifies one lead to score.
type LeadScorePayload struct {
	LeadID  uuid.UUID `json:"leadId"`
	AgentID uuid.UUID `json:"agentId"`
}

// NewLeadScoreTask creates a scoring task for one lead.
func NewLeadScoreTask(leadID, agentID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(LeadScorePayload{LeadID: leadID, AgentID: agentID})
	if err != nil {
		return nil, fmt.Errorf("marshal lead score payload: %w", err)
	}
	return asynq.NewTask(TypeLeadScore, payload), nil
}

// ParseLeadScorePayload decodes a scoring task payload.
func ParseLeadScorePayload(t *asynq.Task) (LeadScorePayload, error) {
	var p LeadScorePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("unmarshal lead score payload: %w", err)
	}
	return p, nil
}

// FollowUpStepPayload identifies one due follow-up step.
type FollowUpStepPayload struct {
	FollowUpID uuid.UUID `json:"followUpId"`
	AgentID    uuid.UUID `json:"agentId"`
	Step       int       `json:"step"`
}

// NewFollowUpStepTask creates a step-execution task. The task id carries the
// follow-up and step number so asynq deduplicates re-enqueues of the same
// step.
func NewFollowUpStepTask(followUpID, agentID uuid.UUID, step int) (*asynq.Task, error) {
	payload, err := json.Marshal(FollowUpStepPayload{FollowUpID: followUpID, AgentID: agentID, Step: step})
	if err != nil {
		return nil, fmt.Errorf("marshal follow-up step payload: %w", err)
	}
	return asynq.NewTask(TypeFollowUpStep, payload,
		asynq.TaskID(fmt.Sprintf("followup:%s:%d", followUpID, step))), nil
}

// ParseFollowUpStepPayload decodes a step task payload.
func ParseFollowUpStepPayload(t *asynq.Task) (FollowUpStepPayload, error) {
	var p FollowUpStepPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("unmarshal follow-up step payload: %w", err)
	}
	return p, nil
}
