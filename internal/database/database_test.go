package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	logger := zerolog.New(os.Stdout)
	db, err := New(":memory:", &logger)
	require.NoError(t, err)
	return db
}

func TestNew_DirectoryCreation(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "db_test_dir")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "nested", "dir", "local.db")
	logger := zerolog.Nop()

	db, err := New(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	// New already ran EnsureSchema once; a second run must be a no-op.
	err := db.EnsureSchema(context.Background())
	require.NoError(t, err)
}

func TestEnsureSchema_SeedsCheckpoint(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	seq, err := db.GetCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	// Re-running the schema must not reset an advanced checkpoint.
	_, err = db.ApplyRemoteChanges(ctx, nil, 42)
	require.NoError(t, err)
	require.NoError(t, db.EnsureSchema(ctx))

	seq, err = db.GetCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)
}
