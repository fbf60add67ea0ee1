// Package pipeline sequences the per-step policies and state updates of the
// simulation.
//
// A step runs a fixed list of blocks. Each block's policy reads the state
// and returns a Decision; its updates then apply that decision in order and
// report which state variable they produced. The default blocks are:
//
//	arrivals   -> network, commons
//	staking    -> network
//	acceptance -> sentiment, network
//	outcomes   -> sentiment, network
package pipeline

import (
	"fmt"
)

// PolicyFunc decides what happens in a block.
type PolicyFunc func(p *Params, step int, h History, s *State) (Decision, error)

// UpdateFunc applies a block's decision to the state.
type UpdateFunc func(p *Params, step int, h History, s *State, d Decision) (Variable, error)

// Block pairs a policy with the updates that consume its decision.
type Block struct {
	Name    string
	Policy  PolicyFunc
	Updates []UpdateFunc
}

// Observer is notified after each block completes.
type Observer func(step int, block string, d Decision, vars []Variable)

// Pipeline runs blocks in a fixed order.
type Pipeline struct {
	blocks   []Block
	observer Observer
}

// New creates a pipeline over the given blocks.
func New(blocks ...Block) *Pipeline {
	return &Pipeline{blocks: blocks}
}

// Default returns the pipeline of the conviction voting model.
func Default() *Pipeline {
	return New(
		Block{Name: "arrivals", Policy: ArrivalPolicy, Updates: []UpdateFunc{UpdateArrivalNetwork, UpdateArrivalCommons}},
		Block{Name: "staking", Policy: StakingPolicy, Updates: []UpdateFunc{UpdateConviction}},
		Block{Name: "acceptance", Policy: AcceptancePolicy, Updates: []UpdateFunc{UpdateFundingSentiment, UpdateAccepted}},
		Block{Name: "outcomes", Policy: OutcomePolicy, Updates: []UpdateFunc{UpdateOutcomeSentiment, UpdateOutcomes}},
	)
}

// Observe registers fn to be called after every block.
func (pl *Pipeline) Observe(fn Observer) {
	pl.observer = fn
}

// Blocks returns the block names in execution order.
func (pl *Pipeline) Blocks() []string {
	names := make([]string, len(pl.blocks))
	for i, b := range pl.blocks {
		names[i] = b.Name
	}
	return names
}

// Step runs every block once against s and returns the decisions made.
func (pl *Pipeline) Step(p *Params, step int, h History, s *State) ([]Decision, error) {
	s.Activated = nil
	decisions := make([]Decision, 0, len(pl.blocks))

	for _, b := range pl.blocks {
		d, err := b.Policy(p, step, h, s)
		if err != nil {
			return decisions, fmt.Errorf("step %d: %s policy: %w", step, b.Name, err)
		}
		vars := make([]Variable, 0, len(b.Updates))
		for _, update := range b.Updates {
			v, err := update(p, step, h, s, d)
			if err != nil {
				return decisions, fmt.Errorf("step %d: %s update: %w", step, b.Name, err)
			}
			vars = append(vars, v)
		}
		decisions = append(decisions, d)
		if pl.observer != nil {
			pl.observer(step, b.Name, d, vars)
		}
	}
	return decisions, nil
}
