package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/wavematch/core/factory"
	"github.com/kilianp07/wavematch/core/logger"
)

// LogSink writes notifications to the operational log.
type LogSink struct {
	log logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink { return &LogSink{log: log} }

func (s *LogSink) Notify(ctx context.Context, n Notification) error {
	s.log.Infow("notification", logger.Fields{
		"notification_id": n.ID,
		"candidate_id":    n.CandidateID,
		"opportunity_id":  n.Opportunity,
		"wave":            n.Wave,
		"channel":         n.Channel,
		"message":         n.Message,
	})
	return nil
}

// MultiSink delivers to every sink and joins the failures.
type MultiSink []Sink

func (m MultiSink) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return fmt.Errorf("%d sinks failed: %v", len(errs), errs)
	}
}

// RecordingSink keeps every notification in memory. It backs the CLI demo
// mode and tests.
type RecordingSink struct {
	mu   sync.Mutex
	sent []Notification
}

func (s *RecordingSink) Notify(ctx context.Context, n Notification) error {
	s.mu.Lock()
	s.sent = append(s.sent, n)
	s.mu.Unlock()
	return nil
}

// Sent returns a copy of the delivered notifications.
func (s *RecordingSink) Sent() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.sent...)
}

// NewRegistry returns a sink registry holding the built-in "log" sink.
// infra packages register their transports on it at wiring time.
func NewRegistry(log logger.Logger) *factory.Registry[Sink] {
	reg := factory.NewRegistry[Sink]()
	_ = reg.Register("log", func(conf map[string]any) (Sink, error) {
		return NewLogSink(log), nil
	})
	return reg
}
