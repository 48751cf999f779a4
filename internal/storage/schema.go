package storage

import (
	"database/sql"
	"fmt"
)

// migrations[i] moves the schema from version i to i+1. The schema version
// lives in PRAGMA user_version.
var migrations = []string{
	`
	CREATE TABLE tracked_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		size INTEGER NOT NULL,
		mod_time INTEGER NOT NULL
	);
	CREATE TABLE scan_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`,
}

// schemaVersion is the version a fully migrated database reports.
var schemaVersion = len(migrations)

func (db *DB) userVersion() (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

func (db *DB) migrate() error {
	current, err := db.userVersion()
	if err != nil {
		return err
	}
	if current > schemaVersion {
		return fmt.Errorf("database %s has schema version %d, newer than supported %d", db.path, current, schemaVersion)
	}
	for v := current; v < schemaVersion; v++ {
		err := db.WithTx(func(tx *sql.Tx) error {
			if _, err := tx.Exec(migrations[v]); err != nil {
				return err
			}
			_, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1))
			return err
		})
		if err != nil {
			return fmt.Errorf("migrating schema to version %d: %w", v+1, err)
		}
		db.logger.Debug("Schema migrated", "path", db.path, "version", v+1)
	}
	return nil
}
