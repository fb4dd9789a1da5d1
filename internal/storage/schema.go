package storage

import (
	"database/sql"
	"fmt"

	"codekb/internal/version"
)

// currentSchemaVersion tracks the on-disk layout of the graph tables.
const currentSchemaVersion = version.SchemaVersion

// graphTables lists the derived tables, in drop order.
var graphTables = []string{"symbols", "edges", "imports", "files", "meta"}

func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}
		if err := createGraphTables(tx); err != nil {
			return err
		}
		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}
		db.logger.Info("Database schema initialized", "version", currentSchemaVersion)
		return nil
	})
}

// runMigrations brings an existing database to the current version. Graph
// tables are derived data, so older layouts are dropped and recreated; the
// next startup check then finds no fingerprint and rebuilds.
func (db *DB) runMigrations() error {
	v, err := db.getSchemaVersion()
	if err != nil {
		return err
	}
	if v == currentSchemaVersion {
		db.logger.Debug("Database schema is up to date", "version", v)
		return nil
	}

	db.logger.Info("Recreating graph tables",
		"fromVersion", v,
		"toVersion", currentSchemaVersion,
	)
	return db.WithTx(func(tx *sql.Tx) error {
		for _, table := range graphTables {
			if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
				return fmt.Errorf("failed to drop %s: %w", table, err)
			}
		}
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}
		if err := createGraphTables(tx); err != nil {
			return err
		}
		return setSchemaVersion(tx, currentSchemaVersion)
	})
}

func (db *DB) getSchemaVersion() (int, error) {
	var name string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&name)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var v int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

func setSchemaVersion(tx *sql.Tx, v int) error {
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", v)
	return err
}

func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

func createGraphTables(tx *sql.Tx) error {
	statements := []struct {
		name string
		sql  string
	}{
		{"files", `
			CREATE TABLE IF NOT EXISTS files (
				path TEXT PRIMARY KEY,
				language TEXT NOT NULL,
				size INTEGER NOT NULL,
				mtime_nanos INTEGER NOT NULL,
				parsed_at TEXT NOT NULL,
				skip TEXT NOT NULL DEFAULT ''
			)`},
		{"imports", `
			CREATE TABLE IF NOT EXISTS imports (
				src TEXT NOT NULL,
				ord INTEGER NOT NULL,
				raw TEXT NOT NULL,
				PRIMARY KEY (src, ord),
				FOREIGN KEY (src) REFERENCES files(path) ON DELETE CASCADE
			)`},
		{"edges", `
			CREATE TABLE IF NOT EXISTS edges (
				src TEXT NOT NULL,
				ord INTEGER NOT NULL,
				dst TEXT NOT NULL,
				raw TEXT NOT NULL,
				resolved INTEGER NOT NULL CHECK(resolved IN (0, 1)),
				PRIMARY KEY (src, ord),
				FOREIGN KEY (src) REFERENCES files(path) ON DELETE CASCADE
			)`},
		{"symbols", `
			CREATE TABLE IF NOT EXISTS symbols (
				file TEXT NOT NULL,
				ord INTEGER NOT NULL,
				id TEXT NOT NULL,
				name TEXT NOT NULL,
				kind TEXT NOT NULL,
				extends TEXT NOT NULL DEFAULT '',
				signature TEXT NOT NULL DEFAULT '',
				exported INTEGER NOT NULL,
				line INTEGER NOT NULL,
				PRIMARY KEY (file, ord),
				FOREIGN KEY (file) REFERENCES files(path) ON DELETE CASCADE
			)`},
		{"meta", `
			CREATE TABLE IF NOT EXISTS meta (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`},
	}
	for _, s := range statements {
		if _, err := tx.Exec(s.sql); err != nil {
			return fmt.Errorf("failed to create %s table: %w", s.name, err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges(dst)",
		"CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name)",
		"CREATE INDEX IF NOT EXISTS idx_files_skip ON files(skip)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
