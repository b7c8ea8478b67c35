// Package database provides SQLite connectivity for the relay's session store.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Forward-only schema migrations from an fs.FS
//   - Connection lifecycle and health checks
//
// All queries use parameterised statements. The database file is
// restricted to 0600.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
