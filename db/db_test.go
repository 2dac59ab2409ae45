package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karollnt/goldstory-backend/store"
)

func TestDB_OpenModes(t *testing.T) {
	t.Run("in-memory database", func(t *testing.T) {
		database, err := OpenInMemoryDB(true)
		require.NoError(t, err)
		defer database.Close()

		assert.NotNil(t, database.Client())
	})

	t.Run("file database creates directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "data")

		database, err := OpenFileDB(dir, "goldstory.db", true)
		require.NoError(t, err)
		defer database.Close()

		assert.FileExists(t, filepath.Join(dir, "goldstory.db"))
	})
}

func TestDB_SchemaRoundTrip(t *testing.T) {
	database, err := OpenInMemoryDB(true)
	require.NoError(t, err)
	defer database.Close()

	event := &store.CaseEvent{
		CaseID:     "case-1",
		Payer:      "0xabc",
		State:      "received",
		AmountUSDC: "1000",
	}
	require.NoError(t, database.Client().Create(event).Error)

	var loaded store.CaseEvent
	require.NoError(t, database.Client().Where("case_id = ?", "case-1").First(&loaded).Error)
	assert.Equal(t, "received", loaded.State)
	assert.Equal(t, "1000", loaded.AmountUSDC)

	pending := &store.PendingTransaction{
		TxHash: "0x01",
		CaseID: "case-1",
		Leg:    "swap",
		Status: store.TxStatusPending,
	}
	require.NoError(t, database.Client().Create(pending).Error)

	// TxHash is unique; a duplicate submission record must be rejected.
	dup := &store.PendingTransaction{TxHash: "0x01", CaseID: "case-2"}
	assert.Error(t, database.Client().Create(dup).Error)
}

func TestDB_CloseIsIdempotentEnough(t *testing.T) {
	database, err := OpenInMemoryDB(false)
	require.NoError(t, err)
	require.NoError(t, database.Close())
}
