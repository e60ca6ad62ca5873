package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newItemsDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := OpenInMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)")
	require.NoError(t, err)
	return db
}

func countItems(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM items").Scan(&n))
	return n
}

func TestWithinTx_Commit(t *testing.T) {
	db := newItemsDB(t)
	ctx := context.Background()

	err := WithinTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO items (name) VALUES ('a'), ('b')")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, countItems(t, db))
}

func TestWithinTx_RollbackOnError(t *testing.T) {
	db := newItemsDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := WithinTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO items (name) VALUES ('a')"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countItems(t, db))
}

func TestWithinTx_RollbackOnPanic(t *testing.T) {
	db := newItemsDB(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = WithinTx(ctx, db, func(tx *sql.Tx) error {
			_, _ = tx.ExecContext(ctx, "INSERT INTO items (name) VALUES ('a')")
			panic("boom")
		})
	})
	assert.Equal(t, 0, countItems(t, db), "паника должна откатывать транзакцию")
}

func TestIsBusy(t *testing.T) {
	assert.False(t, IsBusy(nil))
	assert.True(t, IsBusy(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, IsBusy(errors.New("database table is locked")))
	assert.False(t, IsBusy(errors.New("no such table: items")))
}
