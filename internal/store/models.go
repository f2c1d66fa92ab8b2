package store

import (
	"time"

	"github.com/google/uuid"
)

// Lead statuses. A lead holds exactly one status at any time, and the
// status index keeps its id in exactly one bucket.
const (
	StatusNew       = "new"
	StatusContacted = "contacted"
	StatusQualified = "qualified"
	StatusHot       = "hot"
	StatusWarm      = "warm"
	StatusCold      = "cold"
	StatusConverted = "converted"
	StatusLost      = "lost"
)

// AllStatuses lists every valid lead status. Order is the funnel order.
var AllStatuses = []string{
	StatusNew, StatusContacted, StatusQualified,
	StatusHot, StatusWarm, StatusCold,
	StatusConverted, StatusLost,
}

// Lead sources.
const (
	SourceWebsite       = "website"
	SourceReferral      = "referral"
	SourcePhoneCall     = "phone_call"
	SourceWhatsApp      = "whatsapp"
	SourceFacebook      = "facebook"
	SourceInstagram     = "instagram"
	SourceWalkIn        = "walk_in"
	SourceDirectInquiry = "direct_inquiry"
)

// AllSources lists every valid lead source.
var AllSources = []string{
	SourceWebsite, SourceReferral, SourcePhoneCall, SourceWhatsApp,
	SourceFacebook, SourceInstagram, SourceWalkIn, SourceDirectInquiry,
}

// Interaction types and directions.
const (
	InteractionCall    = "call"
	InteractionMessage = "message"
	InteractionEmail   = "email"
	InteractionMeeting = "meeting"
	InteractionViewing = "viewing"
	InteractionNote    = "note"

	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Follow-up channels.
const (
	ChannelCall     = "call"
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"
)

// Urgency tiers for a property interest.
const (
	UrgencyImmediate  = "immediate"
	UrgencyOneToThree = "1_3_months"
	UrgencyThreeToSix = "3_6_months"
	UrgencySixPlus    = "6_plus_months"
	UrgencyExploring  = "exploring"
)

// PropertyInterest captures what the prospect is looking for.
// Stored as jsonb on the lead row.
type PropertyInterest struct {
	PropertyType string `json:"propertyType,omitempty"`
	BudgetMin    int64  `json:"budgetMin,omitempty"`
	BudgetMax    int64  `json:"budgetMax,omitempty"`
	Location     string `json:"location,omitempty"`
	Urgency      string `json:"urgency,omitempty"`
	Purpose      string `json:"purpose,omitempty"`
}

// FactorKind identifies one scoring factor.
type FactorKind string

const (
	FactorContent    FactorKind = "content"
	FactorEngagement FactorKind = "engagement"
	FactorTiming     FactorKind = "timing"
	FactorSource     FactorKind = "source"
	FactorProfile    FactorKind = "profile"
)

// ContentExplanation describes the content factor result.
type ContentExplanation struct {
	Urgency     int    `json:"urgency,omitempty"`
	Intent      int    `json:"intent,omitempty"`
	Budget      int    `json:"budget,omitempty"`
	Seriousness int    `json:"seriousness,omitempty"`
	Authority   int    `json:"authority,omitempty"`
	Overall     int    `json:"overall,omitempty"`
	Sentiment   string `json:"sentiment,omitempty"`
	Fallback    bool   `json:"fallback"`
}

// EngagementExplanation describes the engagement factor result.
type EngagementExplanation struct {
	InteractionCount int     `json:"interactionCount"`
	ResponseRate     float64 `json:"responseRate"`
	AvgResponseHours float64 `json:"avgResponseHours"`
}

// TimingExplanation describes the timing factor result.
type TimingExplanation struct {
	AgeHours              float64 `json:"ageHours"`
	BusinessHourFraction  float64 `json:"businessHourFraction"`
	HoursSinceLastContact float64 `json:"hoursSinceLastContact"`
	NeverContacted        bool    `json:"neverContacted"`
}

// SourceExplanation describes the source factor result.
type SourceExplanation struct {
	Source string `json:"source"`
}

// ProfileExplanation describes the profile factor result.
type ProfileExplanation struct {
	HasPhone             bool    `json:"hasPhone"`
	HasEmail             bool    `json:"hasEmail"`
	HasSecondaryChannel  bool    `json:"hasSecondaryChannel"`
	HasSocialHandle      bool    `json:"hasSocialHandle"`
	InterestCompleteness float64 `json:"interestCompleteness"`
}

// FactorExplanation is a tagged record: Kind selects which explanation
// payload is populated. Keeping the union explicit keeps the scoring
// contract testable and serializable.
type FactorExplanation struct {
	Kind       FactorKind             `json:"kind"`
	Score      float64                `json:"score"`
	Content    *ContentExplanation    `json:"content,omitempty"`
	Engagement *EngagementExplanation `json:"engagement,omitempty"`
	Timing     *TimingExplanation     `json:"timing,omitempty"`
	Source     *SourceExplanation     `json:"source,omitempty"`
	Profile    *ProfileExplanation    `json:"profile,omitempty"`
}

// LeadScore is the prioritization result attached to a lead. Produced only
// by the scoring engine; immutable once attached except by a full re-score.
type LeadScore struct {
	Score           int                              `json:"score"`
	Confidence      float64                          `json:"confidence"`
	Factors         map[FactorKind]FactorExplanation `json:"factors"`
	Recommendations []string                         `json:"recommendations"`
	ScoredAt        time.Time                        `json:"scoredAt"`
	Version         string                           `json:"version"`
	Fallback        bool                             `json:"fallback"`
}

// Lead is a prospective customer record owned by one agent.
type Lead struct {
	ID               uuid.UUID
	AgentID          uuid.UUID
	Name             string
	Phone            *string
	Email            *string
	SecondaryPhone   *string
	SocialHandle     *string
	Source           string
	Status           string
	InitialMessage   string
	PropertyInterest *PropertyInterest
	Score            *LeadScore
	Notes            string
	Tags             []string
	ConversionValue  *int64
	LostReason       *string
	ConvertedAt      *time.Time
	LastContactAt    *time.Time
	NextFollowUpAt   *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Interaction is one append-only touchpoint between an agent and a lead.
type Interaction struct {
	ID          uuid.UUID
	LeadID      uuid.UUID
	AgentID     uuid.UUID
	Type        string
	Direction   string
	Message     string
	Success     bool
	ScheduledAt *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// FollowUpStep is one timed, channel-specific outreach step in a sequence.
type FollowUpStep struct {
	StepNumber int           `json:"stepNumber"`
	Delay      time.Duration `json:"delay"`
	Channel    string        `json:"channel"`
	Template   string        `json:"template"`
	Automated  bool          `json:"automated"`
	Conditions []string      `json:"conditions,omitempty"`
}

// FollowUpSequence is a reusable template of follow-up steps with its
// trigger thresholds.
type FollowUpSequence struct {
	ID             uuid.UUID
	AgentID        uuid.UUID
	Name           string
	Steps          []FollowUpStep
	IsActive       bool
	ScoreThreshold *int
	LeadSources    []string
	MaxAttempts    int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LeadFollowUp binds a sequence to one lead and tracks progress through it.
type LeadFollowUp struct {
	ID             uuid.UUID
	LeadID         uuid.UUID
	SequenceID     uuid.UUID
	AgentID        uuid.UUID
	CurrentStep    int
	IsActive       bool
	IsCompleted    bool
	NextActionAt   *time.Time
	PausedUntil    *time.Time
	StepsCompleted int
	StepsSucceeded int
	Attempts       int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
