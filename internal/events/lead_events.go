package events

import "github.com/google/uuid"

// LeadCreated is published after a lead and its index entries are stored.
// The scoring pipeline subscribes to this; lead creation never waits on it.
type LeadCreated struct {
	BaseEvent
	LeadID  uuid.UUID
	AgentID uuid.UUID
	Source  string
}

// EventName returns the unique event identifier.
func (LeadCreated) EventName() string { return "lead.created" }

// LeadStatusChanged is published after a status update has migrated the
// lead between status buckets.
type LeadStatusChanged struct {
	BaseEvent
	LeadID    uuid.UUID
	AgentID   uuid.UUID
	OldStatus string
	NewStatus string
}

// EventName returns the unique event identifier.
func (LeadStatusChanged) EventName() string { return "lead.status_changed" }

// LeadScored is published when a fresh score has been attached to a lead.
// The follow-up scheduler subscribes to this to attach matching sequences.
type LeadScored struct {
	BaseEvent
	LeadID   uuid.UUID
	AgentID  uuid.UUID
	Score    int
	Fallback bool
}

// EventName returns the unique event identifier.
func (LeadScored) EventName() string { return "lead.scored" }

// FollowUpStepExecuted is published after a due follow-up step has fired.
type FollowUpStepExecuted struct {
	BaseEvent
	FollowUpID uuid.UUID
	LeadID     uuid.UUID
	AgentID    uuid.UUID
	Step       int
	Channel    string
	Success    bool
}

// EventName returns the unique event identifier.
func (FollowUpStepExecuted) EventName() string { return "followup.step_executed" }
