package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.Equal(t, 4, opts.MaxOpenConns)
	assert.Equal(t, 10*time.Minute, opts.ConnMaxIdleTime)
	assert.Equal(t, 5*time.Second, opts.PingTimeout)
	assert.True(t, opts.WALMode)
	assert.Equal(t, 5*time.Second, opts.BusyTimeout)
}

func TestOpenInMemory(t *testing.T) {
	ctx := context.Background()
	db, err := OpenInMemory(ctx)
	require.NoError(t, err)
	defer db.Close()

	var one int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)

	var fk int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk, "внешние ключи должны быть включены")
}

func TestOpen_CreatesDirectoryAndEnablesWAL(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "dir", "journal.db")

	db, err := Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, path)

	var mode string
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}
