package models

import (
	"encoding/json"
	"strconv"
)

// Conviction is an accumulated staking signal that is either tracked (a
// finite value) or explicitly not tracked. Proposals stop tracking
// conviction once they are funded.
//
// The zero value is tracked conviction of 0.
type Conviction struct {
	value     float64
	untracked bool
}

// Tracked returns a tracked conviction value.
func Tracked(v float64) Conviction {
	return Conviction{value: v}
}

// Untracked returns the "not tracked" marker.
func Untracked() Conviction {
	return Conviction{untracked: true}
}

// IsTracked reports whether c carries a value.
func (c Conviction) IsTracked() bool { return !c.untracked }

// Value returns the tracked value and whether it is tracked.
func (c Conviction) Value() (float64, bool) {
	if c.untracked {
		return 0, false
	}
	return c.value, true
}

// OrZero returns the tracked value, or 0 when untracked.
func (c Conviction) OrZero() float64 {
	if c.untracked {
		return 0
	}
	return c.value
}

// Exceeds reports whether c is tracked and strictly greater than threshold.
func (c Conviction) Exceeds(threshold float64) bool {
	return !c.untracked && c.value > threshold
}

// Accumulate applies one step of the decaying sum:
// next = tokens + alpha * c. An untracked prior contributes nothing.
func (c Conviction) Accumulate(tokens, alpha float64) Conviction {
	return Tracked(tokens + alpha*c.OrZero())
}

// String renders the value, or "untracked".
func (c Conviction) String() string {
	if c.untracked {
		return "untracked"
	}
	return strconv.FormatFloat(c.value, 'f', -1, 64)
}

// MarshalJSON encodes untracked conviction as null.
func (c Conviction) MarshalJSON() ([]byte, error) {
	if c.untracked {
		return []byte("null"), nil
	}
	return json.Marshal(c.value)
}

// UnmarshalJSON decodes null as untracked.
func (c *Conviction) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Untracked()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = Tracked(v)
	return nil
}

// MarshalYAML encodes untracked conviction as null.
func (c Conviction) MarshalYAML() (interface{}, error) {
	if c.untracked {
		return nil, nil
	}
	return c.value, nil
}
