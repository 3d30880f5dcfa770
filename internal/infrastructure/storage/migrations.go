package storage

import (
	"database/sql"
	"fmt"
	"log"
)

// Migration represents a database schema migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// allMigrations defines all migrations in order
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up:      migration001InitialSchema,
	},
	{
		Version: 2,
		Name:    "add_recon_runs_table",
		Up:      migration002AddReconRunsTable,
	},
	{
		Version: 3,
		Name:    "add_matching_indexes",
		Up:      migration003AddMatchingIndexes,
	},
}

// runMigrations executes all pending migrations
func (s *Storage) runMigrations() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue
		}

		log.Printf("Running migration %d: %s", migration.Version, migration.Name)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		_, err = tx.Exec(`
			INSERT INTO schema_migrations (version, name) VALUES (?, ?)
		`, migration.Version, migration.Name)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table if needed
func (s *Storage) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// getAppliedMigrations returns the set of applied migration versions
func (s *Storage) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// migration001InitialSchema creates the commissions, sales, and orders tables.
// Amounts are stored as TEXT and parsed into decimals to avoid float drift.
func migration001InitialSchema(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS commissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			amount TEXT NOT NULL DEFAULT '0',
			bank_fee TEXT NOT NULL DEFAULT '0',
			organization_id INTEGER NOT NULL,
			transaction_time DATETIME,
			linked_order_id INTEGER,
			linked_order_external_id TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS sales_line_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			payment_key TEXT NOT NULL DEFAULT '',
			order_external_id TEXT NOT NULL DEFAULT '',
			organization_id INTEGER NOT NULL,
			line_amount TEXT NOT NULL DEFAULT '0',
			order_created_time DATETIME,
			precheque_time DATETIME,
			open_time DATETIME,
			writeoff_status TEXT NOT NULL DEFAULT 'active'
		);

		CREATE TABLE IF NOT EXISTS orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			external_id TEXT NOT NULL UNIQUE,
			organization_id INTEGER NOT NULL,
			created_time DATETIME NOT NULL,
			discount TEXT NOT NULL DEFAULT '0',
			commission_fee TEXT NOT NULL DEFAULT '0',
			payment_keys_json TEXT NOT NULL DEFAULT '[]'
		);
	`)
	return err
}

// migration002AddReconRunsTable adds run history tracking
func migration002AddReconRunsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS recon_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			start_date DATETIME,
			end_date DATETIME,
			organization_id INTEGER NOT NULL DEFAULT 0,
			batch_size INTEGER NOT NULL DEFAULT 100,
			max_time_diff_hours REAL NOT NULL DEFAULT 24,
			dry_run BOOLEAN NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'running',
			total_candidates INTEGER NOT NULL DEFAULT 0,
			matched INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			report_json TEXT NOT NULL DEFAULT ''
		);
	`)
	return err
}

// migration003AddMatchingIndexes adds indexes for the candidate queries
func migration003AddMatchingIndexes(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_commissions_unlinked
			ON commissions(organization_id, transaction_time)
			WHERE linked_order_id IS NULL;

		CREATE INDEX IF NOT EXISTS idx_sales_payment_key
			ON sales_line_items(payment_key);

		CREATE INDEX IF NOT EXISTS idx_sales_org
			ON sales_line_items(organization_id);

		CREATE INDEX IF NOT EXISTS idx_orders_external_id
			ON orders(external_id);
	`)
	return err
}
