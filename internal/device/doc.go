// Package device holds the device registry: the devices users own, their
// sensor and relay layout, and the last relay state commanded or reported.
//
// Every device has exactly four relay slots. Storage lookups by id are scoped
// to the owner, and a foreign device is indistinguishable from a missing one.
//
//	repo := device.NewSQLiteRepository(db.DB)
//	dev, err := repo.GetByIDAndOwner(ctx, id, userID)
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // 404
//	}
//
// Inbound telemetry refreshes Status and LastSeen through Touch; those fields
// are hints for listings and carry no authority over liveness.
package device
