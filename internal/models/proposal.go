package models

import (
	"errors"
	"fmt"
)

// ProposalStatus is the lifecycle state of a funding proposal
type ProposalStatus string

const (
	StatusCandidate ProposalStatus = "candidate" // Collecting conviction
	StatusActive    ProposalStatus = "active"    // Funded, work in progress
	StatusCompleted ProposalStatus = "completed" // Delivered (terminal)
	StatusFailed    ProposalStatus = "failed"    // Abandoned or unsupported (terminal)
)

// ErrIllegalTransition is returned when a status change is outside the
// proposal lifecycle table.
var ErrIllegalTransition = errors.New("illegal proposal status transition")

// AllStatuses lists every proposal status in lifecycle order.
var AllStatuses = []ProposalStatus{StatusCandidate, StatusActive, StatusCompleted, StatusFailed}

// IsValid reports whether s is a known status.
func (s ProposalStatus) IsValid() bool {
	switch s {
	case StatusCandidate, StatusActive, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible from s.
func (s ProposalStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is a legal lifecycle step.
//
//	candidate -> active | failed
//	active    -> completed | failed
func (s ProposalStatus) CanTransitionTo(next ProposalStatus) bool {
	switch s {
	case StatusCandidate:
		return next == StatusActive || next == StatusFailed
	case StatusActive:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// CheckTransition returns ErrIllegalTransition (wrapped with both states)
// when s cannot move to next.
func (s ProposalStatus) CheckTransition(next ProposalStatus) error {
	if !s.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s, next)
	}
	return nil
}

// Proposal is a request for funds from the commons funding pool.
type Proposal struct {
	ID int `json:"id" yaml:"id"`

	// FundsRequested is fixed at creation.
	FundsRequested float64 `json:"funds_requested" yaml:"funds_requested"`

	// Age counts the steps the proposal has existed for.
	Age int `json:"age" yaml:"age"`

	// Trigger is the last computed conviction threshold.
	Trigger float64 `json:"trigger" yaml:"trigger"`

	// Conviction is the summed conviction of all support edges while the
	// proposal is a candidate; untracked once it becomes active.
	Conviction Conviction `json:"conviction" yaml:"conviction"`

	Status ProposalStatus `json:"status" yaml:"status"`

	// ProposedBy is the participant that created the proposal, or -1 for
	// proposals seeded at bootstrap.
	ProposedBy int `json:"proposed_by" yaml:"proposed_by"`
}

// NewProposal returns a candidate proposal with zero tracked conviction.
func NewProposal(fundsRequested float64, proposedBy int) Proposal {
	return Proposal{
		FundsRequested: fundsRequested,
		Conviction:     Tracked(0),
		Status:         StatusCandidate,
		ProposedBy:     proposedBy,
	}
}

// StatusCounts tallies proposals per status.
type StatusCounts map[ProposalStatus]int

// Total returns the number of proposals counted.
func (c StatusCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}
