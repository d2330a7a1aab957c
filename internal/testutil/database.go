// Package testutil provides test utilities for the receipt ledger: isolated
// in-memory databases and seeded receipt fixtures.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/Veraticus/receipt-ledger/internal/model"
	"github.com/Veraticus/receipt-ledger/internal/service"
	"github.com/Veraticus/receipt-ledger/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
	// IDs holds the storage-assigned IDs of the seeded receipts, in seed order.
	IDs []int64
}

// SetupTestDB creates a migrated in-memory database seeded with receipts.
// Cleanup is registered on t.
//
// Example:
//
//	db := testutil.SetupTestDB(t, receipts.Ledger()...)
func SetupTestDB(t *testing.T, seed ...*model.Receipt) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{Receipts: seed})
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, service.Storage) error
	Receipts       []*model.Receipt
	SkipMigrations bool
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()

	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	db := &TestDB{Storage: store, t: t}
	for i, r := range opts.Receipts {
		id, err := store.SaveReceipt(ctx, r)
		if err != nil {
			t.Fatalf("failed to seed receipt %d: %v", i, err)
		}
		db.IDs = append(db.IDs, id)
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return db
}

// MustGetReceipt returns the stored receipt or fails the test.
func (db *TestDB) MustGetReceipt(id int64) *model.Receipt {
	db.t.Helper()
	r, err := db.Storage.GetReceipt(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to get receipt %d: %v", id, err)
	}
	return r
}

// WithTransaction executes fn within a transaction that is always rolled back.
func (db *TestDB) WithTransaction(fn func(tx service.Transaction) error) error {
	ctx := context.Background()
	tx, err := db.Storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}
