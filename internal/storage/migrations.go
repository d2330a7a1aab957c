package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial receipt schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS vendors (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT UNIQUE NOT NULL,
					address TEXT,
					phone TEXT,
					business_number TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE TABLE IF NOT EXISTS receipts (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					vendor_id INTEGER REFERENCES vendors(id),
					receipt_date TEXT,
					subtotal REAL,
					tax_amount REAL,
					service_charge REAL,
					discount REAL,
					total_amount REAL NOT NULL CHECK (total_amount >= 0),
					payment_method TEXT NOT NULL DEFAULT 'other',
					cash_paid REAL,
					card_paid REAL,
					change_amount REAL,
					item_type_count INTEGER,
					total_item_count INTEGER,
					status TEXT NOT NULL DEFAULT 'pending',
					confidence REAL NOT NULL DEFAULT 1,
					validation_errors TEXT,
					raw_snapshot TEXT,
					source_hash TEXT UNIQUE,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_receipts_vendor ON receipts(vendor_id)`,
				`CREATE TABLE IF NOT EXISTS line_items (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					receipt_id INTEGER NOT NULL REFERENCES receipts(id),
					parent_id INTEGER REFERENCES line_items(id),
					position INTEGER NOT NULL,
					name TEXT NOT NULL,
					quantity INTEGER NOT NULL DEFAULT 1,
					unit_price REAL,
					total_price REAL NOT NULL CHECK (total_price >= 0)
				)`,
				`CREATE INDEX idx_line_items_receipt ON line_items(receipt_id)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Add chat session log",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS chat_messages (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					session_id TEXT NOT NULL,
					role TEXT NOT NULL,
					content TEXT NOT NULL,
					intent TEXT,
					sql_text TEXT,
					referenced_receipts TEXT,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_chat_messages_session ON chat_messages(session_id, id)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Add logical deletion and query indexes",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`ALTER TABLE receipts ADD COLUMN deleted_at DATETIME`,
				`CREATE INDEX idx_receipts_status ON receipts(status)`,
				`CREATE INDEX idx_receipts_total ON receipts(total_amount)`,
			)
		},
	},
	{
		Version:     4,
		Description: "Add checkpoint metadata table",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS checkpoint_metadata (
					id TEXT PRIMARY KEY,
					created_at DATETIME NOT NULL,
					description TEXT,
					file_size INTEGER,
					row_counts TEXT,
					schema_version INTEGER,
					is_auto BOOLEAN DEFAULT 0
				)`,
				`CREATE INDEX idx_checkpoint_metadata_created_at ON checkpoint_metadata(created_at)`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

// Migrate brings the schema up to ExpectedSchemaVersion.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reports the schema version the database is at.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
