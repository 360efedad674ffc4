// Package database provides the SQLite store behind the device registry and
// telemetry history.
//
// Open pins the pool to a single connection with WAL journaling and a busy
// timeout. Schema changes live in the top-level migrations package, which
// registers an embedded Source at init; callers run db.Migrate after Open.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// All queries use parameterised statements. The database file is chmod 0600.
package database
