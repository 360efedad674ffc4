package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/smarthome-core/internal/telemetry"
)

// Event names pushed to live subscribers.
const (
	EventSensorData = "sensorData"
	EventAlert      = "alert"
)

const defaultHandlerTimeout = 10 * time.Second

// Persister stores telemetry payloads. receivedAt is the broker receipt
// time stamped by Deliver. *telemetry.Persister satisfies it.
type Persister interface {
	Persist(ctx context.Context, payload []byte, receivedAt time.Time) (telemetry.Stored, error)
}

// Observer is told about every stored reading. *control.Reconciler satisfies it.
type Observer interface {
	Observe(ctx context.Context, deviceID string, reported device.RelayReport, at time.Time)
}

// Broadcaster pushes events to live subscribers. *api.Hub satisfies it.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Subscriber is the subset of *mqtt.Client used by Attach.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger is the logging surface used by the router.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config sizes the router.
type Config struct {
	Workers   int
	QueueSize int
	Topics    mqtt.Topics
	QoS       byte

	// HandlerTimeout bounds the work done for one message. Zero means 10s.
	HandlerTimeout time.Duration
}

// Stats is a snapshot of router counters.
type Stats struct {
	Received   uint64 `json:"received"`
	Dropped    uint64 `json:"dropped"`
	Invalid    uint64 `json:"invalid"`
	Failed     uint64 `json:"failed"`
	Routed     uint64 `json:"routed"`
	QueueDepth int    `json:"queue_depth"`
	QueueSize  int    `json:"queue_size"`
	Workers    int    `json:"workers"`
}

type message struct {
	topic      string
	payload    []byte
	receivedAt time.Time
}

// Router dispatches inbound messages by topic on a bounded worker pool.
//
// Thread Safety:
//   - Deliver is safe to call from any goroutine, including paho's.
type Router struct {
	cfg       Config
	persister Persister
	observer  Observer
	hub       Broadcaster
	logger    Logger
	clock     *receiptClock

	queue chan message

	// mu guards the closed queue against concurrent Deliver.
	mu      sync.RWMutex
	started bool
	stopped bool
	group   *errgroup.Group

	received atomic.Uint64
	dropped  atomic.Uint64
	invalid  atomic.Uint64
	failed   atomic.Uint64
	routed   atomic.Uint64
}

// NewRouter creates a router. Worker and queue sizes below one are raised to one.
func NewRouter(cfg Config, persister Persister, hub Broadcaster) *Router {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = defaultHandlerTimeout
	}
	if cfg.Topics == (mqtt.Topics{}) {
		cfg.Topics = mqtt.DefaultTopics()
	}

	return &Router{
		cfg:       cfg,
		persister: persister,
		hub:       hub,
		logger:    noopLogger{},
		clock:     newReceiptClock(time.Now),
		queue:     make(chan message, cfg.QueueSize),
	}
}

// SetObserver installs the reading observer. Call before Start.
func (r *Router) SetObserver(o Observer) {
	r.observer = o
}

// SetLogger sets the logger. Call before Start.
func (r *Router) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	r.logger = l
}

// Attach subscribes Deliver to the telemetry and alert topics.
func (r *Router) Attach(sub Subscriber) error {
	for _, topic := range r.cfg.Topics.Inbound() {
		if err := sub.Subscribe(topic, r.cfg.QoS, r.Deliver); err != nil {
			return fmt.Errorf("subscribing %s: %w", topic, err)
		}
	}
	return nil
}

// Start launches the workers. Handlers run with a context detached from
// ctx's cancellation so Stop can drain the queue during shutdown.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrAlreadyStarted
	}
	r.started = true

	base := context.WithoutCancel(ctx)
	r.group = &errgroup.Group{}
	for range r.cfg.Workers {
		r.group.Go(func() error {
			for msg := range r.queue {
				r.process(base, msg)
			}
			return nil
		})
	}

	r.logger.Info("ingest router started", "workers", r.cfg.Workers, "queue_size", r.cfg.QueueSize)
	return nil
}

// Stop refuses new messages, lets the workers finish what is queued, and
// waits for them. Safe to call more than once.
func (r *Router) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.queue)
	group := r.group
	r.mu.Unlock()

	if group != nil {
		_ = group.Wait() //nolint:errcheck // workers never return errors
	}
	r.logger.Info("ingest router stopped", "routed", r.routed.Load(), "dropped", r.dropped.Load())
}

// Deliver stamps the receipt time and enqueues a message without blocking.
// Stamps are taken in arrival order, so they stay ordered however the
// workers interleave. It has the mqtt.MessageHandler signature so it can be
// subscribed directly.
func (r *Router) Deliver(topic string, payload []byte) error {
	r.received.Add(1)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.stopped {
		r.dropped.Add(1)
		return ErrStopped
	}

	select {
	case r.queue <- message{topic: topic, payload: payload, receivedAt: r.clock.stamp()}:
		return nil
	default:
		r.dropped.Add(1)
		return ErrQueueFull
	}
}

// Stats returns a snapshot of the counters.
func (r *Router) Stats() Stats {
	return Stats{
		Received:   r.received.Load(),
		Dropped:    r.dropped.Load(),
		Invalid:    r.invalid.Load(),
		Failed:     r.failed.Load(),
		Routed:     r.routed.Load(),
		QueueDepth: len(r.queue),
		QueueSize:  r.cfg.QueueSize,
		Workers:    r.cfg.Workers,
	}
}

// process handles one message. A panic is contained to the message.
func (r *Router) process(base context.Context, msg message) {
	defer func() {
		if p := recover(); p != nil {
			r.failed.Add(1)
			r.logger.Error("ingest handler panic recovered", "topic", msg.topic, "panic", p)
		}
	}()

	if !json.Valid(msg.payload) {
		r.invalid.Add(1)
		r.logger.Warn("dropping non-JSON message", "topic", msg.topic, "bytes", len(msg.payload))
		return
	}

	ctx, cancel := context.WithTimeout(base, r.cfg.HandlerTimeout)
	defer cancel()

	switch msg.topic {
	case r.cfg.Topics.Telemetry:
		r.handleTelemetry(ctx, msg.payload, msg.receivedAt)
	case r.cfg.Topics.Alert:
		r.handleAlert(msg.payload)
	default:
		r.logger.Debug("ignoring message on unrouted topic", "topic", msg.topic)
		return
	}

	r.routed.Add(1)
	r.hub.Broadcast(EventSensorData, json.RawMessage(msg.payload))
}

func (r *Router) handleTelemetry(ctx context.Context, payload []byte, receivedAt time.Time) {
	stored, err := r.persister.Persist(ctx, payload, receivedAt)
	if err != nil {
		r.failed.Add(1)
		if errors.Is(err, telemetry.ErrValidation) {
			r.logger.Warn("rejected telemetry", "error", err)
		} else {
			r.logger.Error("storing telemetry", "error", err)
		}
		return
	}

	if r.observer != nil {
		r.observer.Observe(ctx, stored.Record.DeviceID, stored.Record.RelayReport(), stored.ReceivedAt)
	}
}

func (r *Router) handleAlert(payload []byte) {
	r.logger.Info("alert received", "payload", json.RawMessage(payload))
	r.hub.Broadcast(EventAlert, json.RawMessage(payload))
}
