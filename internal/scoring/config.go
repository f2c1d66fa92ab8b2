package scoring

// Weights distribute the composite score across the five factors.
// They must sum to 1.0.
type Weights struct {
	Content    float64
	Engagement float64
	Timing     float64
	Source     float64
	Profile    float64
}

// Config tunes the scoring engine. DefaultConfig is used in production;
// tests construct variants with a fixed clock.
type Config struct {
	Weights Weights

	// SourceScores rank acquisition channels by historical close quality.
	SourceScores map[string]float64

	// Keyword lists drive the deterministic content analysis used when the
	// completion service is unavailable or returns garbage.
	UrgencyKeywords []string
	IntentKeywords  []string
	BudgetKeywords  []string

	// Business hours (local, 24h) reward leads that arrive while an agent
	// can actually pick up the phone.
	BusinessHourStart int
	BusinessHourEnd   int

	// EngagementWindow bounds how many recent interactions feed the
	// engagement factor so long histories stay cheap to score.
	EngagementWindow int

	Version string
}

// DefaultConfig returns the production scoring configuration.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Content:    0.30,
			Engagement: 0.25,
			Timing:     0.20,
			Source:     0.15,
			Profile:    0.10,
		},
		SourceScores: map[string]float64{
			"direct_inquiry": 90,
			"referral":       85,
			"phone_call":     75,
			"whatsapp":       65,
			"website":        60,
			"instagram":      50,
			"facebook":       45,
			"walk_in":        40,
		},
		UrgencyKeywords: []string{
			"urgent", "immediately", "asap", "right away", "this week",
			"this month", "shifting soon", "possession",
		},
		IntentKeywords: []string{
			"buy", "purchase", "book", "looking for", "need", "ready to",
			"site visit", "interested in", "finalize",
		},
		BudgetKeywords: []string{
			"budget", "lakh", "crore", "loan", "emi", "down payment",
			"finance", "price",
		},
		BusinessHourStart: 9,
		BusinessHourEnd:   19,
		EngagementWindow:  50,
		Version:           "v1",
	}
}
