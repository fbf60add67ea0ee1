package pipeline

import (
	"fmt"

	"github.com/nvandessel/conviction/internal/arrival"
	"github.com/nvandessel/conviction/internal/conviction"
	"github.com/nvandessel/conviction/internal/lifecycle"
	"github.com/nvandessel/conviction/internal/sentiment"
)

func unexpected(want string, d Decision) error {
	return fmt.Errorf("expected %s decision, got %s", want, d.Kind())
}

// ArrivalPolicy draws new participants, proposals and funding.
func ArrivalPolicy(_ *Params, _ int, _ History, s *State) (Decision, error) {
	return ArrivalDecision{Draw: arrival.Generate(s.Network, s.Reserve, s.Sentiment, s.Sampler)}, nil
}

// UpdateArrivalNetwork adds the drawn nodes and ages every proposal.
func UpdateArrivalNetwork(p *Params, _ int, _ History, s *State, d Decision) (Variable, error) {
	ad, ok := d.(ArrivalDecision)
	if !ok {
		return "", unexpected("arrival", d)
	}
	_, err := arrival.Apply(s.Network, ad.Draw, arrival.Options{
		FundingPool:  s.Reserve.FundingPool(),
		TokenSupply:  s.Reserve.TokenSupply(),
		ScaleFactor:  p.ProposalScaleFactor,
		ConflictRate: p.ConflictRate,
		Trigger:      p.Trigger,
	}, s.Sampler)
	if err != nil {
		return "", err
	}
	return VarNetwork, nil
}

// UpdateArrivalCommons deposits the new participant's investment and adds
// the funding inflow.
func UpdateArrivalCommons(_ *Params, _ int, _ History, s *State, d Decision) (Variable, error) {
	ad, ok := d.(ArrivalDecision)
	if !ok {
		return "", unexpected("arrival", d)
	}
	return VarCommons, arrival.Fund(s.Reserve, ad.Draw)
}

// StakingPolicy decides what every participant supports.
func StakingPolicy(p *Params, _ int, _ History, s *State) (Decision, error) {
	return StakingDecision{Stakes: conviction.DecideStaking(s.Network, p.SentimentSensitivity, s.Sampler)}, nil
}

// UpdateConviction stakes tokens, accumulates conviction and fails
// candidates left without enough support.
func UpdateConviction(p *Params, _ int, _ History, s *State, d Decision) (Variable, error) {
	sd, ok := d.(StakingDecision)
	if !ok {
		return "", unexpected("staking", d)
	}
	conviction.Accumulate(s.Network, sd.Stakes, p.Alpha)
	if err := lifecycle.FailUnsupported(s.Network, conviction.Unsupported(s.Network, p.MinSupport)); err != nil {
		return "", err
	}
	return VarNetwork, nil
}

// AcceptancePolicy selects the proposals to fund.
func AcceptancePolicy(p *Params, _ int, _ History, s *State) (Decision, error) {
	sel := conviction.SelectAccepted(s.Network, p.MinProposalAge, s.Reserve.FundingPool(), s.Reserve.TokenSupply(), p.Trigger)
	return AcceptanceDecision{Accepted: sel.Accepted, Triggers: sel.Triggers, Rationed: sel.Rationed}, nil
}

// UpdateFundingSentiment lifts commons sentiment by the share of candidate
// funds accepted. It must run before the accepted proposals are activated.
func UpdateFundingSentiment(_ *Params, _ int, _ History, s *State, d Decision) (Variable, error) {
	acc, ok := d.(AcceptanceDecision)
	if !ok {
		return "", unexpected("acceptance", d)
	}
	force := sentiment.FundingForce(s.Network.FundsRequested(acc.Accepted), s.Network.CandidateFundsRequested())
	s.Sentiment = sentiment.Update(s.Sentiment, force, 0)
	return VarSentiment, nil
}

// UpdateAccepted stores thresholds, activates accepted proposals (spending
// their funds) and applies the acceptance force to participants.
func UpdateAccepted(p *Params, _ int, _ History, s *State, d Decision) (Variable, error) {
	acc, ok := d.(AcceptanceDecision)
	if !ok {
		return "", unexpected("acceptance", d)
	}
	for j, threshold := range acc.Triggers {
		if prop := s.Network.Proposal(j); prop != nil {
			prop.Trigger = threshold
		}
	}
	if err := lifecycle.Activate(s.Network, acc.Accepted, s.Reserve); err != nil {
		return "", err
	}
	sentiment.Acceptance(s.Network, acc.Accepted, p.SentimentSensitivity)
	s.Activated = append(s.Activated, acc.Accepted...)
	return VarNetwork, nil
}

// OutcomePolicy draws completions and failures among active proposals that
// were not activated this step.
func OutcomePolicy(p *Params, _ int, _ History, s *State) (Decision, error) {
	return OutcomeDecision{Outcomes: lifecycle.DrawOutcomes(s.Network, p.Rates, s.Activated, s.Sampler)}, nil
}

// UpdateOutcomeSentiment applies the market-wide outcome force.
func UpdateOutcomeSentiment(p *Params, _ int, _ History, s *State, d Decision) (Variable, error) {
	od, ok := d.(OutcomeDecision)
	if !ok {
		return "", unexpected("outcome", d)
	}
	force := sentiment.OutcomeForce(
		s.Network.FundsRequested(od.Completed),
		s.Network.FundsRequested(od.Failed),
		od.Outstanding,
	)
	s.Sentiment = sentiment.Update(s.Sentiment, force, p.SentimentDecay)
	return VarSentiment, nil
}

// UpdateOutcomes resolves the drawn outcomes and applies the completion and
// failure forces.
func UpdateOutcomes(p *Params, _ int, _ History, s *State, d Decision) (Variable, error) {
	od, ok := d.(OutcomeDecision)
	if !ok {
		return "", unexpected("outcome", d)
	}
	if err := lifecycle.Resolve(s.Network, od.Outcomes); err != nil {
		return "", err
	}
	for _, j := range od.Completed {
		sentiment.Completion(s.Network, j, p.DecayTerminalConflicts)
	}
	for _, j := range od.Failed {
		sentiment.Failure(s.Network, j)
	}
	return VarNetwork, nil
}
