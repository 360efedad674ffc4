package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/mqtt"
)

// Defaults applied by NewDispatcher to zero Config fields.
const (
	DefaultTopic          = "home/control"
	DefaultPublishTimeout = 5 * time.Second
	DefaultPersistTimeout = 5 * time.Second
	DefaultLivenessWindow = 30 * time.Second
	DefaultControlCycle   = 10 * time.Second
)

// Store is the device persistence used by this package. device.Repository satisfies it.
type Store interface {
	GetByIDAndOwner(ctx context.Context, id, owner string) (*device.Device, error)
	GetByDeviceID(ctx context.Context, deviceID string) (*device.Device, error)
	UpdateRelays(ctx context.Context, id string, state device.RelayState) error
	Touch(ctx context.Context, deviceID string, at time.Time) error
}

// Publisher sends a payload on a topic, bounded by ctx. *mqtt.Client satisfies it.
type Publisher interface {
	PublishContext(ctx context.Context, topic string, payload []byte) error
}

// Logger is the logging surface used by this package.
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

// Config bounds dispatch and liveness.
type Config struct {
	Topic          string
	PublishTimeout time.Duration
	PersistTimeout time.Duration
	LivenessWindow time.Duration
	ControlCycle   time.Duration
}

// Status is a device's computed liveness and stored relays.
type Status struct {
	DeviceID string        `json:"deviceId"`
	Status   device.Status `json:"status"`
	LastSeen *time.Time    `json:"lastSeen"`
	Relays   device.Relays `json:"relays"`
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Dispatched      uint64 `json:"dispatched"`
	PublishFailures uint64 `json:"publish_failures"`
	PersistFailures uint64 `json:"persist_failures"`
	Divergences     uint64 `json:"divergences"`
}

// Dispatcher resolves and publishes control commands.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Calls for the same device are serialised; different devices run in parallel.
type Dispatcher struct {
	store  Store
	pub    Publisher
	cfg    Config
	logger Logger
	now    func() time.Time

	locks *keyedMutex

	// lastCommand is keyed by storage id.
	cmdMu       sync.Mutex
	lastCommand map[string]time.Time

	dispatched      atomic.Uint64
	publishFailures atomic.Uint64
	persistFailures atomic.Uint64
	divergences     atomic.Uint64
}

// NewDispatcher creates a dispatcher. Zero Config fields take the package defaults.
func NewDispatcher(store Store, pub Publisher, cfg Config) *Dispatcher {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	if cfg.LivenessWindow <= 0 {
		cfg.LivenessWindow = DefaultLivenessWindow
	}
	if cfg.ControlCycle <= 0 {
		cfg.ControlCycle = DefaultControlCycle
	}

	return &Dispatcher{
		store:       store,
		pub:         pub,
		cfg:         cfg,
		logger:      noopLogger{},
		now:         time.Now,
		locks:       newKeyedMutex(),
		lastCommand: make(map[string]time.Time),
	}
}

// SetLogger sets the logger.
func (d *Dispatcher) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	d.logger = l
}

// DispatchControl applies intent to the owner's device: it publishes the full
// resolved state and then persists it.
//
// Errors: ErrNotFound, ErrPublishTimeout, ErrPublishFailed (nothing stored),
// ErrStorageUnavailable (the command was already published).
func (d *Dispatcher) DispatchControl(ctx context.Context, storageID, ownerID string, intent ControlIntent) (Command, error) {
	unlock := d.locks.Lock(storageID)
	defer unlock()

	dev, err := d.load(ctx, storageID, ownerID)
	if err != nil {
		return Command{}, err
	}

	cmd := NewCommand(dev.DeviceID, ResolveEffectiveState(dev, intent))
	payload, err := json.Marshal(cmd)
	if err != nil {
		return Command{}, fmt.Errorf("encoding control command: %w", err)
	}

	if err := d.publish(ctx, payload); err != nil {
		d.publishFailures.Add(1)
		d.logger.Warn("control publish failed", "device_id", dev.DeviceID, "error", err)
		return Command{}, err
	}
	d.markCommanded(storageID)

	persistCtx, cancel := context.WithTimeout(ctx, d.cfg.PersistTimeout)
	defer cancel()

	if err := d.store.UpdateRelays(persistCtx, storageID, cmd.State()); err != nil {
		d.persistFailures.Add(1)
		d.logger.Error("control command published but relay state not stored",
			"device_id", dev.DeviceID, "error", err)
		return cmd, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	d.dispatched.Add(1)
	d.logger.Info("control command dispatched", "device_id", dev.DeviceID, "owner", ownerID)
	return cmd, nil
}

// GetStatus returns the owner's device with liveness computed now.
func (d *Dispatcher) GetStatus(ctx context.Context, storageID, ownerID string) (Status, error) {
	dev, err := d.load(ctx, storageID, ownerID)
	if err != nil {
		return Status{}, err
	}

	return Status{
		DeviceID: dev.DeviceID,
		Status:   Liveness(dev.LastSeen, d.now(), d.cfg.LivenessWindow),
		LastSeen: dev.LastSeen,
		Relays:   dev.Configuration.Relays,
	}, nil
}

// Liveness is online iff lastSeen is set and now-lastSeen < window.
func Liveness(lastSeen *time.Time, now time.Time, window time.Duration) device.Status {
	if lastSeen == nil {
		return device.StatusOffline
	}
	if now.Sub(*lastSeen) < window {
		return device.StatusOnline
	}
	return device.StatusOffline
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched:      d.dispatched.Load(),
		PublishFailures: d.publishFailures.Load(),
		PersistFailures: d.persistFailures.Load(),
		Divergences:     d.divergences.Load(),
	}
}

func (d *Dispatcher) load(ctx context.Context, storageID, ownerID string) (*device.Device, error) {
	dev, err := d.store.GetByIDAndOwner(ctx, storageID, ownerID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return dev, nil
}

func (d *Dispatcher) publish(ctx context.Context, payload []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, d.cfg.PublishTimeout)
	defer cancel()

	err := d.pub.PublishContext(pubCtx, d.cfg.Topic, payload)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mqtt.ErrPublishTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrPublishTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
}

// markCommanded records a publish and drops entries older than the control
// cycle, so the map holds at most the devices commanded within one cycle.
func (d *Dispatcher) markCommanded(storageID string) {
	now := d.now()

	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	for id, at := range d.lastCommand {
		if now.Sub(at) >= d.cfg.ControlCycle {
			delete(d.lastCommand, id)
		}
	}
	d.lastCommand[storageID] = now
}

// commandedWithin reports whether a command for the device was published
// less than window before now.
func (d *Dispatcher) commandedWithin(storageID string, window time.Duration) bool {
	d.cmdMu.Lock()
	at, ok := d.lastCommand[storageID]
	d.cmdMu.Unlock()
	return ok && d.now().Sub(at) < window
}
