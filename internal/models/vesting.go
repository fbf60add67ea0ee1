package models

import "math"

// Vesting is a locked token allocation that unlocks after a cliff with
// exponential half-life release.
type Vesting struct {
	Amount       float64 `json:"amount" yaml:"amount"`
	CliffDays    int     `json:"cliff_days" yaml:"cliff_days"`
	HalfLifeDays int     `json:"half_life_days" yaml:"half_life_days"`
}

// Spendable returns the unlocked portion of the allocation after the given
// number of elapsed days.
func (v *Vesting) Spendable(elapsedDays int) float64 {
	if v == nil || elapsedDays < v.CliffDays {
		return 0
	}
	if v.HalfLifeDays <= 0 {
		return v.Amount
	}
	t := float64(elapsedDays-v.CliffDays) / float64(v.HalfLifeDays)
	return v.Amount * (1 - math.Pow(0.5, t))
}

// Locked returns the still-vesting portion after elapsedDays.
func (v *Vesting) Locked(elapsedDays int) float64 {
	if v == nil {
		return 0
	}
	return v.Amount - v.Spendable(elapsedDays)
}
