// Package events defines the matching events emitted on the event bus.
//
// Available event types:
//   - WaveEvent: a wave of offers was dispatched
//   - OfferEvent: an offer changed status
//   - EscalationEvent: an opportunity matched escalation rules
//   - SweepEvent: an expiry sweep finished
package events
