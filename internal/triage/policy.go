// Package triage contains the pure decision functions of the steward: the
// reprocessing-eligibility policy, content fingerprinting, similarity
// bucketing, and the action-determination engine. Nothing in this package
// performs I/O or mutates state; it turns inputs into decisions.
package triage

import (
	"fmt"
	"time"
)

// Policy holds the thresholds governing when the steward acts.
type Policy struct {
	// Cooldown is the minimum elapsed time after acting on an issue before
	// the steward may re-evaluate it.
	Cooldown time.Duration

	// OverallThreshold is the minimum overall classifier confidence for any
	// action to be taken on an issue.
	OverallThreshold float64

	// LabelFloor is the minimum label confidence before labels are applied.
	LabelFloor float64

	// DuplicateFloor is the minimum duplicate confidence before the steward
	// comments about potential duplicates.
	DuplicateFloor float64

	// MaxClarificationAttempts caps how many times the steward asks the
	// reporter for more information on the same issue.
	MaxClarificationAttempts int
}

// DefaultPolicy returns the policy defaults.
func DefaultPolicy() Policy {
	return Policy{
		Cooldown:                 time.Hour,
		OverallThreshold:         0.80,
		LabelFloor:               0.80,
		DuplicateFloor:           0.85,
		MaxClarificationAttempts: 2,
	}
}

// Validate checks if the policy has valid values
func (p Policy) Validate() error {
	if p.Cooldown < 0 {
		return fmt.Errorf("cooldown cannot be negative (got %v)", p.Cooldown)
	}
	for _, pair := range []struct {
		name  string
		value float64
	}{
		{"overall_threshold", p.OverallThreshold},
		{"label_floor", p.LabelFloor},
		{"duplicate_floor", p.DuplicateFloor},
	} {
		if pair.value < 0.0 || pair.value > 1.0 {
			return fmt.Errorf("%s must be between 0.0 and 1.0 (got %.2f)", pair.name, pair.value)
		}
	}
	if p.MaxClarificationAttempts < 0 {
		return fmt.Errorf("max_clarification_attempts cannot be negative (got %d)", p.MaxClarificationAttempts)
	}
	return nil
}
