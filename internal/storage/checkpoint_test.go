package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/receipt-ledger/internal/service"
)

func TestCheckpointManager_CreateListDelete(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.SaveReceipt(ctx, testReceipt("Toko", 10))
	require.NoError(t, err)

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)

	info, err := cm.Create(ctx, "before-ingest", "manual snapshot")
	require.NoError(t, err)
	assert.Equal(t, "before-ingest", info.ID)
	assert.Equal(t, 1, info.Receipts)
	assert.Equal(t, 1, info.Vendors)
	assert.Equal(t, ExpectedSchemaVersion, info.SchemaVersion)
	assert.Positive(t, info.FileSize)
	assert.FileExists(t, filepath.Join(filepath.Dir(store.dbPath), "checkpoints", "before-ingest.db"))

	_, err = cm.Create(ctx, "before-ingest", "again")
	assert.ErrorIs(t, err, ErrCheckpointExists)

	auto, err := cm.AutoCheckpoint(ctx, "ingest")
	require.NoError(t, err)
	assert.True(t, auto.IsAuto)

	list, err := cm.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, cm.Delete(ctx, "before-ingest"))
	assert.ErrorIs(t, cm.Delete(ctx, "before-ingest"), ErrCheckpointNotFound)

	list, err = cm.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCheckpointManager_InvalidTags(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)

	for _, tag := range []string{"../escape", "a/b", `a\b`, "it's"} {
		t.Run(tag, func(t *testing.T) {
			_, err := cm.Create(ctx, tag, "")
			assert.Error(t, err)
			assert.Error(t, cm.Restore(ctx, tag))
		})
	}
}

func TestCheckpointManager_Restore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))

	_, err = store.SaveReceipt(ctx, testReceipt("Before", 10))
	require.NoError(t, err)

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)
	_, err = cm.Create(ctx, "snap", "")
	require.NoError(t, err)

	_, err = store.SaveReceipt(ctx, testReceipt("After", 20))
	require.NoError(t, err)

	require.NoError(t, cm.Restore(ctx, "snap"))
	_, err = os.Stat(dbPath + ".restore-backup")
	assert.True(t, os.IsNotExist(err))

	reopened, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	receipts, err := reopened.ListReceipts(ctx, service.ReceiptFilter{})
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, "Before", receipts[0].VendorName())

	assert.ErrorIs(t, cm.Restore(ctx, "missing"), ErrCheckpointNotFound)
}
