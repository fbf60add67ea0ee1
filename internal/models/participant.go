package models

// MaxSentiment is the upper clamp applied to every sentiment update.
const MaxSentiment = 1.0

// Participant is a token holder who stakes on proposals.
type Participant struct {
	ID int `json:"id" yaml:"id"`

	// Sentiment is the participant's propensity to engage, nominally in [0, 1].
	// Updates clamp it at MaxSentiment; there is no lower floor.
	Sentiment float64 `json:"sentiment" yaml:"sentiment"`

	// Holdings is the nonvesting token balance available for staking.
	Holdings float64 `json:"holdings" yaml:"holdings"`

	// Vesting is the optional locked allocation (hatchers only).
	Vesting *Vesting `json:"vesting,omitempty" yaml:"vesting,omitempty"`
}
