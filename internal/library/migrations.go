package library

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStep upgrades the database to version; steps run in order and
// each one commits with the new PRAGMA user_version.
type schemaStep struct {
	version int
	name    string
	ddl     string
}

var schema = []schemaStep{
	{
		version: 1,
		name:    "recordings table",
		ddl: `
CREATE TABLE IF NOT EXISTS recordings (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    digest      BLOB NOT NULL UNIQUE,
    events      INTEGER NOT NULL,
    duration    REAL NOT NULL,
    body        TEXT NOT NULL,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recordings_name ON recordings(name, created_at);
`,
	},
	{
		version: 2,
		name:    "play counts",
		ddl: `
ALTER TABLE recordings ADD COLUMN play_count INTEGER NOT NULL DEFAULT 0;
ALTER TABLE recordings ADD COLUMN last_played_at INTEGER;
`,
	},
}

// MigrateDB brings db up to LatestVersion.
func MigrateDB(db *sql.DB) error {
	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}
	for _, step := range schema {
		if step.version <= current {
			continue
		}
		if err := applyStep(db, step); err != nil {
			return fmt.Errorf("library schema v%d (%s): %w", step.version, step.name, err)
		}
	}
	return nil
}

func applyStep(db *sql.DB, step schemaStep) error {
	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, step.ddl); err != nil {
		return err
	}
	// PRAGMA arguments cannot be bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", step.version)); err != nil {
		return err
	}
	return tx.Commit()
}

// SchemaVersion reports the schema version stored in the database file.
func SchemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// LatestVersion is the version MigrateDB brings a database to.
func LatestVersion() int {
	return schema[len(schema)-1].version
}
