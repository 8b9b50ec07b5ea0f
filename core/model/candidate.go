package model

import "time"

// DefaultReputation is used for candidates that never received a rating.
const DefaultReputation = 0.5

// UnknownGroup is the fairness group of candidates without a region.
const UnknownGroup = "unknown"

// CandidateProfile is a person that can be offered an opportunity.
type CandidateProfile struct {
	ID     string   `json:"id" yaml:"id"`
	Name   string   `json:"name,omitempty" yaml:"name,omitempty"`
	Skills []string `json:"skills" yaml:"skills"`
	Region string   `json:"region" yaml:"region"`
	// Reputation is in [0,1]; nil means not rated yet.
	Reputation *float64   `json:"reputation,omitempty" yaml:"reputation,omitempty"`
	LastActive *time.Time `json:"last_active,omitempty" yaml:"last_active,omitempty"`
	// Workload counts assignments tracked outside of this engine.
	Workload int `json:"workload" yaml:"workload"`
}

// Group returns the fairness group of the candidate.
func (c CandidateProfile) Group() string {
	if c.Region == "" {
		return UnknownGroup
	}
	return c.Region
}

// ReputationOr returns the reputation or def when unset.
func (c CandidateProfile) ReputationOr(def float64) float64 {
	if c.Reputation == nil {
		return def
	}
	return *c.Reputation
}

// Clone returns a deep copy of c.
func (c CandidateProfile) Clone() CandidateProfile {
	out := c
	out.Skills = append([]string(nil), c.Skills...)
	if c.Reputation != nil {
		r := *c.Reputation
		out.Reputation = &r
	}
	if c.LastActive != nil {
		t := *c.LastActive
		out.LastActive = &t
	}
	return out
}

// ClampReputation bounds v to [0,1].
func ClampReputation(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
