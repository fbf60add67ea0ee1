package pipeline

import (
	"github.com/nvandessel/conviction/internal/arrival"
	"github.com/nvandessel/conviction/internal/conviction"
	"github.com/nvandessel/conviction/internal/lifecycle"
)

// Decision is the output of a block's policy. The set of variants is closed:
// ArrivalDecision, StakingDecision, AcceptanceDecision and OutcomeDecision.
type Decision interface {
	// Kind names the variant, e.g. "arrival".
	Kind() string
	decision()
}

// ArrivalDecision carries the arrival draws of a step.
type ArrivalDecision struct {
	arrival.Draw
}

// StakingDecision carries every participant's staking choice.
type StakingDecision struct {
	Stakes map[int]conviction.Stake `json:"stakes"`
}

// AcceptanceDecision carries the proposals to fund and every proposal's
// current threshold.
type AcceptanceDecision struct {
	Accepted []int           `json:"accepted"`
	Triggers map[int]float64 `json:"triggers"`
	Rationed bool            `json:"rationed"`
}

// OutcomeDecision carries the completion and failure draws.
type OutcomeDecision struct {
	lifecycle.Outcomes
}

func (ArrivalDecision) Kind() string    { return "arrival" }
func (StakingDecision) Kind() string    { return "staking" }
func (AcceptanceDecision) Kind() string { return "acceptance" }
func (OutcomeDecision) Kind() string    { return "outcome" }

func (ArrivalDecision) decision()    {}
func (StakingDecision) decision()    {}
func (AcceptanceDecision) decision() {}
func (OutcomeDecision) decision()    {}

// Variable names the state variable an update produced.
type Variable string

const (
	VarNetwork   Variable = "network"
	VarCommons   Variable = "commons"
	VarSentiment Variable = "sentiment"
)
