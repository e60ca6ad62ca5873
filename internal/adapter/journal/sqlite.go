package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tgqueue/internal/platform/sqlite"
	"tgqueue/internal/shared"
)

// SQLiteStore - журнал в файле SQLite.
type SQLiteStore struct {
	db        *sql.DB
	retention int
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite открывает файл базы и применяет миграции. path ":memory:"
// открывает in-memory базу.
func OpenSQLite(ctx context.Context, path string, retention int) (*SQLiteStore, error) {
	var (
		db  *sql.DB
		err error
	)
	if path == ":memory:" {
		db, err = sqlite.OpenInMemory(ctx)
	} else {
		db, err = sqlite.Open(ctx, path)
	}
	if err != nil {
		return nil, shared.MarkKind(err, shared.KindDependencyFailure)
	}
	store, err := NewSQLiteStore(db, retention)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore применяет миграции к уже открытой базе.
func NewSQLiteStore(db *sql.DB, retention int) (*SQLiteStore, error) {
	if _, err := sqlite.Migrate(db, migrations, "migrations/sqlite"); err != nil {
		return nil, shared.MarkKind(err, shared.KindDependencyFailure)
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &SQLiteStore{db: db, retention: retention}, nil
}

// Record вставляет запись и удаляет самые старые сверх лимита в одной транзакции.
func (s *SQLiteStore) Record(ctx context.Context, run Run) error {
	if run.Outcome == "" {
		return shared.Validationf("run outcome is empty")
	}
	return sqlite.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO job_runs (job_id, job_name, policy, scheduled_at, started_at, duration_us, outcome, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.JobID.String(), run.JobName, run.Policy,
			run.ScheduledAt.UnixMilli(), run.StartedAt.UnixMilli(),
			run.Duration.Microseconds(), string(run.Outcome), run.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to insert job run: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			DELETE FROM job_runs
			WHERE id <= (SELECT MAX(id) FROM job_runs) - ?`, s.retention)
		if err != nil {
			return fmt.Errorf("failed to prune job runs: %w", err)
		}
		return nil
	})
}

// Recent возвращает последние записи, новые первыми.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, job_name, policy, scheduled_at, started_at, duration_us, outcome, error
		FROM job_runs
		ORDER BY id DESC
		LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query job runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var (
			run                  Run
			jobID, outcome       string
			scheduled, started   int64
			durationMicroseconds int64
		)
		if err := rows.Scan(&run.ID, &jobID, &run.JobName, &run.Policy,
			&scheduled, &started, &durationMicroseconds, &outcome, &run.Error); err != nil {
			return nil, fmt.Errorf("failed to scan job run: %w", err)
		}
		run.JobID, err = uuid.Parse(jobID)
		if err != nil {
			return nil, fmt.Errorf("invalid job id %q: %w", jobID, err)
		}
		run.ScheduledAt = time.UnixMilli(scheduled).UTC()
		run.StartedAt = time.UnixMilli(started).UTC()
		run.Duration = time.Duration(durationMicroseconds) * time.Microsecond
		run.Outcome = Outcome(outcome)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job runs: %w", err)
	}
	return runs, nil
}

// Ping проверяет соединение с базой.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return shared.MarkKind(err, shared.KindDependencyFailure)
	}
	return nil
}

// Close закрывает базу.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
