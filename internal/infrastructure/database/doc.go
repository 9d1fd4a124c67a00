// Package database stores the group addresses and devices the monitor has
// seen on the bus in a local SQLite file.
//
// The schema ships with the binary as embedded migrations and is applied
// with Migrate. WAL mode and a busy timeout come from the database section
// of the configuration.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
