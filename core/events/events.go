package events

import (
	"time"

	"github.com/kilianp07/wavematch/core/model"
)

// Event is implemented by every event published by the dispatcher.
type Event interface {
	EventName() string
}

// WaveEvent is published after the offers of a wave are stored.
type WaveEvent struct {
	OpportunityID string
	Wave          int
	Offers        []model.Offer
	// Groups counts the offers per fairness group.
	Groups   map[string]int
	Duration time.Duration
	Time     time.Time
}

func (WaveEvent) EventName() string { return "wave" }

// OfferEvent is published for every stored offer transition.
type OfferEvent struct {
	Offer model.Offer
	From  model.OfferStatus
	// Reason tells why the transition happened: "response", "sweep",
	// "confirm", "close" or "quota".
	Reason string
	Time   time.Time
}

func (OfferEvent) EventName() string { return "offer" }

// EscalationEvent is advisory; it never blocks dispatch.
type EscalationEvent struct {
	OpportunityID string
	Reasons       []string
	Time          time.Time
}

func (EscalationEvent) EventName() string { return "escalation" }

// SweepEvent summarises one expiry sweep tick.
type SweepEvent struct {
	Expired  int
	Conflict int
	Duration time.Duration
	Time     time.Time
}

func (SweepEvent) EventName() string { return "sweep" }
