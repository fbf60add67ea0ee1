package pipeline

import (
	"github.com/nvandessel/conviction/internal/commons"
	"github.com/nvandessel/conviction/internal/conviction"
	"github.com/nvandessel/conviction/internal/graph"
	"github.com/nvandessel/conviction/internal/lifecycle"
	"github.com/nvandessel/conviction/internal/models"
	"github.com/nvandessel/conviction/internal/sampling"
)

// Params are the fixed parameters of a run as seen by the step functions.
type Params struct {
	Alpha          float64
	MinSupport     float64
	MinProposalAge int
	Trigger        conviction.TriggerFunc

	SentimentDecay       float64
	SentimentSensitivity float64

	// DecayTerminalConflicts applies completion-driven affinity decay to
	// conflicting proposals that are already completed or failed.
	DecayTerminalConflicts bool

	Rates lifecycle.Rates

	ProposalScaleFactor float64
	ConflictRate        float64
}

// State is the aggregate a step operates on. The pipeline owns it
// exclusively for the duration of a step.
type State struct {
	Network *graph.Network
	Reserve commons.Reserve

	// Sentiment is the commons-wide sentiment driving arrivals.
	Sentiment float64

	Sampler sampling.Sampler

	// Activated lists proposals accepted earlier in the current step.
	Activated []int
}

// Snapshot is the recorded summary of the state after a step.
type Snapshot struct {
	Step           int                 `json:"step"`
	Statuses       models.StatusCounts `json:"statuses"`
	Participants   int                 `json:"participants"`
	FundingPool    float64             `json:"funding_pool"`
	TokenSupply    float64             `json:"token_supply"`
	CollateralPool float64             `json:"collateral_pool"`
	TokenPrice     float64             `json:"token_price"`
	Sentiment      float64             `json:"sentiment"`
	MeanSentiment  float64             `json:"mean_participant_sentiment"`
	LockedTokens   float64             `json:"locked_tokens"`
	Accepted       []int               `json:"accepted"`
	Completed      []int               `json:"completed"`
	Failed         []int               `json:"failed"`
}

// TakeSnapshot summarizes s after step, using the decisions of that step.
func TakeSnapshot(step int, s *State, decisions []Decision) Snapshot {
	snap := Snapshot{
		Step:           step,
		Statuses:       s.Network.StatusCounts(),
		Participants:   len(s.Network.Participants()),
		FundingPool:    s.Reserve.FundingPool(),
		TokenSupply:    s.Reserve.TokenSupply(),
		CollateralPool: s.Reserve.CollateralPool(),
		TokenPrice:     s.Reserve.SpotPrice(),
		Sentiment:      s.Sentiment,
		MeanSentiment:  s.Network.MeanSentiment(),
	}
	for _, i := range s.Network.Participants() {
		snap.LockedTokens += s.Network.Participant(i).Vesting.Locked(step)
	}
	for _, d := range decisions {
		switch d := d.(type) {
		case AcceptanceDecision:
			snap.Accepted = append(snap.Accepted, d.Accepted...)
		case OutcomeDecision:
			snap.Completed = append(snap.Completed, d.Completed...)
			snap.Failed = append(snap.Failed, d.Failed...)
		}
	}
	return snap
}

// History is read-only access to the snapshots of earlier steps.
type History interface {
	Len() int
	At(i int) Snapshot
}

// MemoryHistory is a History kept in a slice.
type MemoryHistory struct {
	snaps []Snapshot
}

func (h *MemoryHistory) Len() int { return len(h.snaps) }

func (h *MemoryHistory) At(i int) Snapshot { return h.snaps[i] }

// Append records a snapshot.
func (h *MemoryHistory) Append(s Snapshot) { h.snaps = append(h.snaps, s) }

// All returns the recorded snapshots.
func (h *MemoryHistory) All() []Snapshot { return h.snaps }
