// Package control turns relay intents into bus commands and keeps stored
// relay state consistent with what was commanded and what devices report.
//
// # Dispatch
//
// DispatchControl holds a per-device lock across load, resolve, publish and
// persist, so two concurrent partial intents for the same device both land.
// The command is published before the stored state changes; if the publish
// fails nothing is persisted. If persisting fails after a successful publish
// the error is ErrStorageUnavailable and the device's next telemetry corrects
// the stored state through the Reconciler.
//
// # Reconciliation
//
// The Reconciler observes every stored telemetry reading. It marks the device
// online and, when the reported relays differ from the stored ones and no
// command was dispatched within the last control cycle, overwrites the stored
// state with what the device reports.
//
// # Liveness
//
// A device is online only if its last reading is strictly younger than the
// liveness window. The stored status column is a hint; GetStatus always
// recomputes it.
package control
