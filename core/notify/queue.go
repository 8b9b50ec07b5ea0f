package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kilianp07/wavematch/core/logger"
	"github.com/kilianp07/wavematch/core/monitoring"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("notification queue closed")

// ErrQueueFull is returned by Enqueue when the buffer is full. The
// notification is dropped.
var ErrQueueFull = errors.New("notification queue full")

// QueueConfig sizes the worker pool.
type QueueConfig struct {
	Workers   int           `json:"workers"`
	QueueSize int           `json:"queue_size"`
	Timeout   time.Duration `json:"timeout"`
}

// SetDefaults applies sane defaults.
func (c *QueueConfig) SetDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// Queue delivers notifications asynchronously through a sink.
type Queue struct {
	sink    Sink
	log     logger.Logger
	timeout time.Duration
	workers int

	ch      chan Notification
	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewQueue creates a queue. Call Start to launch the workers.
func NewQueue(cfg QueueConfig, sink Sink, log logger.Logger) *Queue {
	cfg.SetDefaults()
	return &Queue{
		sink:    sink,
		log:     log,
		timeout: cfg.Timeout,
		workers: cfg.Workers,
		ch:      make(chan Notification, cfg.QueueSize),
	}
}

// Start launches the workers. It is a no-op when already started.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.run()
	}
}

// Enqueue hands n to the workers without blocking.
func (q *Queue) Enqueue(n Notification) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- n:
		queued.Inc()
		return nil
	default:
		notifications.WithLabelValues(resultDropped).Inc()
		q.log.Warnf("notification queue full, dropping %s for %s", n.OfferKey, n.CandidateID)
		return ErrQueueFull
	}
}

// Close stops accepting notifications and waits until the buffered ones are
// delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	started := q.started
	q.mu.Unlock()
	if !started {
		for n := range q.ch {
			q.deliver(n)
		}
		return
	}
	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()
	for n := range q.ch {
		q.deliver(n)
	}
}

func (q *Queue) deliver(n Notification) {
	defer func() {
		if r := recover(); r != nil {
			notifications.WithLabelValues(resultFailed).Inc()
			q.log.Errorf("notification sink panic for %s: %v", n.OfferKey, r)
		}
	}()
	queued.Dec()
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if err := q.sink.Notify(ctx, n); err != nil {
		notifications.WithLabelValues(resultFailed).Inc()
		q.log.Errorf("notify %s on %s: %v", n.CandidateID, n.Channel, err)
		monitoring.CaptureException(err, map[string]string{
			"component":      "notify",
			"opportunity_id": n.OfferKey.OpportunityID,
			"candidate_id":   n.CandidateID,
		})
		return
	}
	notifications.WithLabelValues(resultDelivered).Inc()
	q.log.Debugf("notified %s for %s", n.CandidateID, n.OfferKey)
}
