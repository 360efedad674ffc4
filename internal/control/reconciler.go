package control

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/smarthome-core/internal/device"
)

// Reconciler folds device-reported state back into the store. It shares the
// dispatcher's per-device lock and command history.
type Reconciler struct {
	d *Dispatcher
}

// NewReconciler creates a reconciler bound to d.
func NewReconciler(d *Dispatcher) *Reconciler {
	return &Reconciler{d: d}
}

// Observe records a reading from deviceID taken at at. Only the relay slots
// present in reported are compared and stored; the rest keep their commanded
// state. Unknown devices are ignored. Failures are logged, never returned:
// telemetry must keep flowing.
func (r *Reconciler) Observe(ctx context.Context, deviceID string, reported device.RelayReport, at time.Time) {
	d := r.d

	ctx, cancel := context.WithTimeout(ctx, d.cfg.PersistTimeout)
	defer cancel()

	if err := d.store.Touch(ctx, deviceID, at); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			d.logger.Debug("telemetry from unregistered device", "device_id", deviceID)
			return
		}
		d.logger.Error("updating device last seen", "device_id", deviceID, "error", err)
		return
	}

	if reported.Empty() {
		return
	}

	dev, err := d.store.GetByDeviceID(ctx, deviceID)
	if err != nil {
		if !errors.Is(err, device.ErrDeviceNotFound) {
			d.logger.Error("loading device for reconciliation", "device_id", deviceID, "error", err)
		}
		return
	}

	unlock := d.locks.Lock(dev.ID)
	defer unlock()

	// Reload under the lock; a dispatch may have just finished.
	dev, err = d.store.GetByDeviceID(ctx, deviceID)
	if err != nil {
		if !errors.Is(err, device.ErrDeviceNotFound) {
			d.logger.Error("loading device for reconciliation", "device_id", deviceID, "error", err)
		}
		return
	}

	stored := dev.Configuration.Relays.State()
	merged := reported.Apply(stored)
	if merged == stored {
		return
	}
	if d.commandedWithin(dev.ID, d.cfg.ControlCycle) {
		return
	}

	d.divergences.Add(1)
	d.logger.Warn("relay state divergence",
		"device_id", deviceID,
		"stored", stored,
		"reported", merged,
	)

	if err := d.store.UpdateRelays(ctx, dev.ID, merged); err != nil {
		d.logger.Error("storing reported relay state", "device_id", deviceID, "error", err)
	}
}
