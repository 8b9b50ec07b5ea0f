package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apiaudit "github.com/kilianp07/wavematch/api/audit"
	"github.com/kilianp07/wavematch/config"
	"github.com/kilianp07/wavematch/core/audit"
	"github.com/kilianp07/wavematch/core/dispatch"
	"github.com/kilianp07/wavematch/core/events"
	coremetrics "github.com/kilianp07/wavematch/core/metrics"
	coremon "github.com/kilianp07/wavematch/core/monitoring"
	"github.com/kilianp07/wavematch/core/notify"
	"github.com/kilianp07/wavematch/core/store"
	"github.com/kilianp07/wavematch/infra/logger"
	"github.com/kilianp07/wavematch/infra/metrics"
	"github.com/kilianp07/wavematch/infra/monitoring"
	"github.com/kilianp07/wavematch/infra/mqtt"
	"github.com/kilianp07/wavematch/infra/postgres"
	"github.com/kilianp07/wavematch/internal/eventbus"
)

// Service wires the dispatcher to its stores, notification sinks, MQTT
// intake and HTTP surfaces.
type Service struct {
	Dispatcher *dispatch.Dispatcher

	cfg      *config.Config
	backend  store.Backend
	audit    audit.Store
	queue    *notify.Queue
	client   *mqtt.Client
	listener *mqtt.ResponseListener
	bus      *eventbus.TypedBus[events.Event]
	sink     coremetrics.MetricsSink
	log      logger.Logger
}

// Option customises New.
type Option func(*options)

type options struct {
	backend store.Backend
	now     func() time.Time
}

// WithBackend replaces the configured store backend.
func WithBackend(b store.Backend) Option { return func(o *options) { o.backend = b } }

// WithClock injects the dispatcher clock.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// New creates a Service from the configuration. Nothing runs until Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (svc *Service, err error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	logg := logger.New("service")
	s := &Service{cfg: cfg, log: logg, bus: eventbus.NewTyped[events.Event]()}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	if s.backend, err = openBackend(ctx, cfg.Store, o.backend); err != nil {
		return nil, err
	}
	if cfg.Store.Seed != "" {
		seed, err := store.LoadSeed(cfg.Store.Seed)
		if err != nil {
			return nil, err
		}
		if err := seed.Apply(ctx, s.backend.Profiles(), s.backend.Opportunities(), o.now()); err != nil {
			return nil, err
		}
		logg.Infof("seeded %d candidates and %d opportunities", len(seed.Candidates), len(seed.Opportunities))
	}
	if s.audit, err = audit.Open(cfg.Audit); err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}

	if cfg.MQTT != nil {
		if s.client, err = mqtt.NewClient(*cfg.MQTT, logger.New("mqtt")); err != nil {
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
	}
	sink, err := buildSink(cfg.Notify, s.client)
	if err != nil {
		return nil, err
	}
	s.queue = notify.NewQueue(cfg.Notify.QueueConfig, sink, logger.New("notify"))

	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	dopts := []dispatch.Option{
		dispatch.WithNotifier(s.queue),
		dispatch.WithBus(s.bus),
		dispatch.WithLogger(logger.New("dispatch")),
		dispatch.WithClock(o.now),
	}
	s.Dispatcher, err = dispatch.New(cfg.Matching, s.backend, audit.NewAuditor(s.audit, logger.New("audit")), dopts...)
	if err != nil {
		return nil, err
	}
	if s.client != nil {
		s.listener = mqtt.NewResponseListener(s.client, *cfg.MQTT, s.Dispatcher, logger.New("mqtt-responses"))
	}
	return s, nil
}

func openBackend(ctx context.Context, cfg config.StoreConfig, override store.Backend) (store.Backend, error) {
	if override != nil {
		return override, nil
	}
	switch cfg.Backend {
	case "postgres":
		b, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		return b, nil
	default:
		return store.NewMemory(), nil
	}
}

func buildSink(cfg config.NotifyConfig, client *mqtt.Client) (notify.Sink, error) {
	reg := notify.NewRegistry(logger.New("notify"))
	if err := mqtt.RegisterSink(reg, client); err != nil {
		return nil, err
	}
	sinks := make(notify.MultiSink, 0, len(cfg.Sinks))
	for _, c := range cfg.Sinks {
		sink, err := reg.Create(c)
		if err != nil {
			return nil, fmt.Errorf("notify sink %s: %w", c.Type, err)
		}
		sinks = append(sinks, sink)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}

// Audit returns the decision log store.
func (s *Service) Audit() audit.Store { return s.audit }

// Start launches the background workers without blocking: notification
// delivery, metrics forwarding and the expiry sweeper.
func (s *Service) Start(ctx context.Context) error {
	s.queue.Start()
	go coremetrics.Forward(ctx, s.bus.Subscribe(), s.sink, logger.New("metrics"))
	return s.Dispatcher.Start(ctx)
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	if s.listener != nil {
		if err := s.listener.Start(ctx); err != nil {
			return fmt.Errorf("response listener: %w", err)
		}
	}
	if port := s.cfg.Metrics.PrometheusPort; port != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, ":"+port, prometheus.DefaultGatherer); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.cfg.API.Addr != "" {
		go func() {
			if err := s.serveAPI(ctx); err != nil {
				s.log.Errorf("api server: %v", err)
			}
		}()
	}
	s.log.Infof("service started")
	<-ctx.Done()
	return nil
}

func (s *Service) serveAPI(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.API.Addr)
	if err != nil {
		return err
	}
	mux := apiaudit.NewMux(s.audit, s.Dispatcher, s.cfg.Matching.Fairness.Window, s.cfg.API.Token)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Infof("serving api on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases resources in reverse order of creation. Pending
// notifications are delivered before the MQTT connection is dropped.
func (s *Service) Close() error {
	var errs []error
	if s.Dispatcher != nil {
		s.Dispatcher.Stop()
	}
	if s.queue != nil {
		s.queue.Close()
	}
	if s.client != nil {
		s.client.Disconnect()
	}
	if s.audit != nil {
		errs = append(errs, s.audit.Close())
	}
	if s.backend != nil {
		errs = append(errs, s.backend.Close())
	}
	s.bus.Close()
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
