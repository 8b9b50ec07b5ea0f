package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/wavematch/core/logger"
	"github.com/kilianp07/wavematch/core/monitoring"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	UseTLS      bool   `json:"use_tls"`
	ClientCert  string `json:"client_cert"`
	ClientKey   string `json:"client_key"`
	CABundle    string `json:"ca_bundle"`
	AuthMethod  string `json:"auth_method"`
	// QoS per message kind: "offer" and "response".
	QoS        map[string]byte `json:"qos"`
	LWTTopic   string          `json:"lwt_topic"`
	LWTPayload string          `json:"lwt_payload"`
	LWTQoS     byte            `json:"lwt_qos"`
	LWTRetain  bool            `json:"lwt_retain"`
	MaxRetries int             `json:"max_retries"`
	BackoffMS  int             `json:"backoff_ms"`
	TLSConfig  *tls.Config     `json:"-"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "wavematch"
	}
	if c.ClientID == "" {
		c.ClientID = "wavematch"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS == 0 {
		c.BackoffMS = 100
	}
}

// Validate checks the settings needed to connect.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt broker is required")
	}
	switch c.AuthMethod {
	case "", "username_password", "certificate", "both":
	default:
		return fmt.Errorf("unknown mqtt auth_method %q", c.AuthMethod)
	}
	for kind, q := range c.QoS {
		if q > 2 {
			return fmt.Errorf("mqtt qos %s must be 0, 1 or 2", kind)
		}
	}
	if c.MaxRetries < 0 || c.BackoffMS < 0 {
		return fmt.Errorf("mqtt retries and backoff must not be negative")
	}
	return nil
}

// OfferTopic is where offers for one candidate are published.
func (c Config) OfferTopic(candidateID string) string {
	return fmt.Sprintf("%s/candidate/%s/offer", strings.TrimSuffix(c.TopicPrefix, "/"), candidateID)
}

// ResponseTopic is where candidate answers arrive.
func (c Config) ResponseTopic() string {
	return strings.TrimSuffix(c.TopicPrefix, "/") + "/offer/response"
}

func (c Config) qos(kind string) byte {
	return c.QoS[kind]
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

type subscription struct {
	qos     byte
	handler paho.MessageHandler
}

// Client wraps a Paho connection with publish retries and subscriptions that
// survive reconnects.
type Client struct {
	cli    pahoClient
	cfg    Config
	logger logger.Logger

	mu   sync.Mutex
	subs map[string]subscription
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewClient connects to the MQTT broker.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{cfg: cfg, logger: log, subs: make(map[string]subscription)}
	opts.OnConnect = func(pc paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
		c.resubscribe(pc)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	cli := newMQTTClient(opts)
	c.cli = cli
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return c, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("no certificate found in %s", c.CABundle)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// Publish sends payload to topic, retrying with exponential backoff. The
// final failure is reported to the error monitor.
func (c *Client) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	backoff := time.Duration(c.cfg.BackoffMS) * time.Millisecond
	var err error
	for attempt := 0; ; attempt++ {
		token := c.cli.Publish(topic, qos, false, payload)
		token.Wait()
		if err = token.Error(); err == nil {
			c.logger.Debugf("published %d bytes to %s", len(payload), topic)
			return nil
		}
		c.logger.Warnf("publish to %s attempt %d failed: %v", topic, attempt+1, err)
		if attempt >= c.cfg.MaxRetries {
			break
		}
		if werr := sleep(ctx, backoff*time.Duration(1<<attempt)); werr != nil {
			err = werr
			break
		}
	}
	monitoring.CaptureException(err, map[string]string{"module": "mqtt", "topic": topic})
	return fmt.Errorf("publish %s: %w", topic, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Subscribe registers handler on topic. The subscription is renewed on every
// reconnect.
func (c *Client) Subscribe(topic string, qos byte, handler paho.MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()
	if token := c.cli.Subscribe(topic, qos, handler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	c.logger.Infof("subscribed to %s", topic)
	return nil
}

func (c *Client) resubscribe(pc paho.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for t, s := range c.subs {
		subs[t] = s
	}
	c.mu.Unlock()
	for topic, s := range subs {
		if token := pc.Subscribe(topic, s.qos, s.handler); token.Wait() && token.Error() != nil {
			c.logger.Errorf("resubscribe %s: %v", topic, token.Error())
		}
	}
}

// Disconnect gracefully closes the MQTT connection.
func (c *Client) Disconnect() {
	if c.cli != nil && c.cli.IsConnected() {
		c.cli.Disconnect(250)
	}
}
