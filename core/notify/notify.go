// Package notify delivers offer notifications to candidates without blocking
// the dispatcher. Sinks are pluggable; the Queue fans notifications out to a
// small worker pool and never rolls back an offer when delivery fails.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/wavematch/core/model"
)

// Notification is one message for one candidate about one offer.
type Notification struct {
	ID          string         `json:"id"`
	CandidateID string         `json:"candidate_id"`
	Opportunity string         `json:"opportunity_id"`
	Title       string         `json:"title"`
	OfferKey    model.OfferKey `json:"offer"`
	Wave        int            `json:"wave"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Message     string         `json:"message"`
	Channel     string         `json:"channel"`
}

// Sink delivers notifications on one channel.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// Message renders the fixed offer text.
func Message(title string, deadline time.Time) string {
	return fmt.Sprintf("New mission: %s (respond before %s)", title, deadline.UTC().Format(time.RFC3339))
}

// ForOffer builds the notification for a freshly created offer.
func ForOffer(id string, opp model.Opportunity, offer model.Offer, channel string) Notification {
	return Notification{
		ID:          id,
		CandidateID: offer.CandidateID,
		Opportunity: opp.ID,
		Title:       opp.Title,
		OfferKey:    offer.Key(),
		Wave:        offer.Wave,
		ExpiresAt:   offer.ExpiresAt,
		Message:     Message(opp.Title, offer.ExpiresAt),
		Channel:     channel,
	}
}
