package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/wavematch/core/dispatch"
	"github.com/kilianp07/wavematch/core/logger"
	"github.com/kilianp07/wavematch/core/model"
)

// Responder applies candidate answers. *dispatch.Dispatcher implements it.
type Responder interface {
	RespondToOffer(ctx context.Context, key model.OfferKey, action dispatch.Action, comment *string) (model.Offer, error)
}

// Response is the payload candidates publish on the response topic.
type Response struct {
	OpportunityID string  `json:"opportunity_id"`
	CandidateID   string  `json:"candidate_id"`
	Action        string  `json:"action"`
	Comment       *string `json:"comment,omitempty"`
}

// Subscriber registers message handlers. Client implements it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler paho.MessageHandler) error
}

// ResponseListener feeds candidate answers received over MQTT to the
// dispatcher.
type ResponseListener struct {
	sub     Subscriber
	topic   string
	qos     byte
	r       Responder
	log     logger.Logger
	timeout time.Duration
	ctx     context.Context
}

// NewResponseListener returns a listener on cfg.ResponseTopic().
func NewResponseListener(sub Subscriber, cfg Config, r Responder, log logger.Logger) *ResponseListener {
	cfg.SetDefaults()
	return &ResponseListener{
		sub:     sub,
		topic:   cfg.ResponseTopic(),
		qos:     cfg.qos("response"),
		r:       r,
		log:     log,
		timeout: 10 * time.Second,
		ctx:     context.Background(),
	}
}

// Start subscribes to the response topic. Handlers use ctx as their parent
// and stop applying answers once it is cancelled.
func (l *ResponseListener) Start(ctx context.Context) error {
	l.ctx = ctx
	return l.sub.Subscribe(l.topic, l.qos, func(_ paho.Client, msg paho.Message) {
		if err := l.Handle(msg.Payload()); err != nil {
			l.log.Warnf("response on %s: %v", msg.Topic(), err)
		}
	})
}

// Handle decodes and applies one response. Misuse errors from the
// dispatcher are returned as is.
func (l *ResponseListener) Handle(payload []byte) error {
	if err := l.ctx.Err(); err != nil {
		return err
	}
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.OpportunityID == "" || resp.CandidateID == "" {
		return errors.New("response requires opportunity_id and candidate_id")
	}
	action, err := dispatch.ParseAction(resp.Action)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(l.ctx, l.timeout)
	defer cancel()
	key := model.OfferKey{OpportunityID: resp.OpportunityID, CandidateID: resp.CandidateID}
	offer, err := l.r.RespondToOffer(ctx, key, action, resp.Comment)
	if err != nil {
		return err
	}
	l.log.Infof("response %s applied, offer is %s", key, offer.Status)
	return nil
}
