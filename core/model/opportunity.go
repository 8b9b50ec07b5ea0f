package model

import (
	"fmt"
	"time"
)

// OpportunityStatus is the lifecycle state of a mission.
type OpportunityStatus string

const (
	OpportunityOpen      OpportunityStatus = "open"
	OpportunityMatching  OpportunityStatus = "matching"
	OpportunityAccepted  OpportunityStatus = "accepted"
	OpportunityConfirmed OpportunityStatus = "confirmed"
	OpportunityCompleted OpportunityStatus = "completed"
	OpportunityExpired   OpportunityStatus = "expired"
)

// Dispatchable reports whether new waves may be sent for the status.
func (s OpportunityStatus) Dispatchable() bool {
	return s == OpportunityOpen || s == OpportunityMatching
}

// Valid reports whether s is a known status.
func (s OpportunityStatus) Valid() bool {
	switch s {
	case OpportunityOpen, OpportunityMatching, OpportunityAccepted,
		OpportunityConfirmed, OpportunityCompleted, OpportunityExpired:
		return true
	}
	return false
}

// Opportunity is a unit of work looking for a candidate.
type Opportunity struct {
	ID               string   `json:"id" yaml:"id"`
	Title            string   `json:"title" yaml:"title"`
	ProblemStatement string   `json:"problem_statement" yaml:"problem_statement"`
	RequiredSkills   []string `json:"required_skills" yaml:"required_skills"`
	// Region is only used for eligibility when RequiresPresence is set.
	Region           *string  `json:"region,omitempty" yaml:"region,omitempty"`
	RequiresPresence bool     `json:"requires_presence" yaml:"requires_presence"`
	Locales          []string `json:"locales,omitempty" yaml:"locales,omitempty"`
	ElasticScope     bool     `json:"elastic_scope" yaml:"elastic_scope"`
	// AllowMultipleQuotes keeps the opportunity in matching until the
	// configured number of candidates accepted.
	AllowMultipleQuotes bool              `json:"allow_multiple_quotes" yaml:"allow_multiple_quotes"`
	Status              OpportunityStatus `json:"status" yaml:"status"`
	// Wave is the number of the last dispatched wave, 0 before the first one.
	Wave          int       `json:"wave" yaml:"wave"`
	Version       int64     `json:"version" yaml:"-"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	SelectedOffer *OfferKey `json:"selected_offer,omitempty" yaml:"-"`
}

// Validate checks the fields required to store an opportunity.
func (o Opportunity) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("opportunity id is required")
	}
	if o.Title == "" {
		return fmt.Errorf("opportunity %s: title is required", o.ID)
	}
	if o.Status != "" && !o.Status.Valid() {
		return fmt.Errorf("opportunity %s: unknown status %q", o.ID, o.Status)
	}
	if o.RequiresPresence && (o.Region == nil || *o.Region == "") {
		return fmt.Errorf("opportunity %s: region is required when presence is required", o.ID)
	}
	return nil
}

// RegionFilter returns the region candidates must belong to, or "" when any
// region is eligible.
func (o Opportunity) RegionFilter() string {
	if !o.RequiresPresence || o.Region == nil {
		return ""
	}
	return *o.Region
}

// Clone returns a deep copy of o.
func (o Opportunity) Clone() Opportunity {
	c := o
	c.RequiredSkills = append([]string(nil), o.RequiredSkills...)
	c.Locales = append([]string(nil), o.Locales...)
	if o.Region != nil {
		r := *o.Region
		c.Region = &r
	}
	if o.SelectedOffer != nil {
		k := *o.SelectedOffer
		c.SelectedOffer = &k
	}
	return c
}
