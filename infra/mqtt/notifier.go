package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kilianp07/wavematch/core/factory"
	"github.com/kilianp07/wavematch/core/notify"
)

// Publisher sends raw payloads. Client implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
}

// Notifier is a notify.Sink publishing each notification as JSON on the
// candidate's offer topic.
type Notifier struct {
	pub Publisher
	cfg Config
}

// NewNotifier returns a sink publishing through pub.
func NewNotifier(pub Publisher, cfg Config) *Notifier {
	cfg.SetDefaults()
	return &Notifier{pub: pub, cfg: cfg}
}

func (n *Notifier) Notify(ctx context.Context, note notify.Notification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("encode notification %s: %w", note.ID, err)
	}
	return n.pub.Publish(ctx, n.cfg.OfferTopic(note.CandidateID), n.cfg.qos("offer"), payload)
}

// RegisterSink adds the "mqtt" sink type to reg. Every sink created from it
// shares client.
func RegisterSink(reg *factory.Registry[notify.Sink], client *Client) error {
	return reg.Register("mqtt", func(map[string]any) (notify.Sink, error) {
		if client == nil {
			return nil, fmt.Errorf("mqtt sink requires an mqtt connection")
		}
		return NewNotifier(client, client.Config()), nil
	})
}
