package journal

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgqueue/internal/shared"
)

func openMemory(t *testing.T, retention int) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(context.Background(), ":memory:", retention)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRun(name string, outcome Outcome) Run {
	at := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	return Run{
		JobID:       uuid.New(),
		JobName:     name,
		Policy:      "once",
		ScheduledAt: at,
		StartedAt:   at.Add(3 * time.Millisecond),
		Duration:    1500 * time.Microsecond,
		Outcome:     outcome,
	}
}

func TestSQLiteStore_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t, 0)

	first := sampleRun("first", OutcomeOK)
	second := sampleRun("second", OutcomeError)
	second.Error = "boom"
	require.NoError(t, store.Record(ctx, first))
	require.NoError(t, store.Record(ctx, second))

	runs, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "second", runs[0].JobName, "новые записи должны идти первыми")
	assert.Equal(t, second.JobID, runs[0].JobID)
	assert.Equal(t, OutcomeError, runs[0].Outcome)
	assert.Equal(t, "boom", runs[0].Error)

	assert.Equal(t, "first", runs[1].JobName)
	assert.True(t, first.ScheduledAt.Equal(runs[1].ScheduledAt))
	assert.True(t, first.StartedAt.Equal(runs[1].StartedAt))
	assert.Equal(t, first.Duration, runs[1].Duration)
	assert.Greater(t, runs[0].ID, runs[1].ID)
}

func TestSQLiteStore_RecentEmpty(t *testing.T) {
	store := openMemory(t, 0)

	runs, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestSQLiteStore_Retention(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t, 2)

	for _, name := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.Record(ctx, sampleRun(name, OutcomeOK)))
	}

	runs, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2, "журнал должен хранить не больше retention записей")
	assert.Equal(t, "d", runs[0].JobName)
	assert.Equal(t, "c", runs[1].JobName)
}

func TestSQLiteStore_RecentLimit(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t, 0)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, sampleRun("job", OutcomeSkipped)))
	}

	runs, err := store.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestSQLiteStore_RejectsEmptyOutcome(t *testing.T) {
	store := openMemory(t, 0)

	err := store.Record(context.Background(), sampleRun("bad", ""))
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestSQLiteStore_Ping(t *testing.T) {
	store := openMemory(t, 0)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestSQLiteStore_FileReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/journal/runs.db"

	store, err := OpenSQLite(ctx, path, 0)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, sampleRun("persisted", OutcomeOK)))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(ctx, path, 0)
	require.NoError(t, err, "повторные миграции не должны падать")
	defer reopened.Close()

	runs, err := reopened.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "persisted", runs[0].JobName)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 50, clampLimit(0))
	assert.Equal(t, 50, clampLimit(-1))
	assert.Equal(t, 7, clampLimit(7))
	assert.Equal(t, MaxRecent, clampLimit(MaxRecent+1))
}
