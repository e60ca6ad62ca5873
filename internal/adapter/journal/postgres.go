package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tgqueue/internal/platform/pg"
	"tgqueue/internal/shared"
)

// PGStore - журнал в PostgreSQL.
type PGStore struct {
	pool      *pgxpool.Pool
	retention int
}

var _ Store = (*PGStore)(nil)

// OpenPostgres применяет миграции и создает пул подключений.
func OpenPostgres(ctx context.Context, dsn string, retention int, logger *slog.Logger) (*PGStore, error) {
	info, err := pg.Migrate(dsn, migrations, "migrations/postgres")
	if err != nil {
		return nil, shared.MarkKind(err, shared.KindDependencyFailure)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if info.Applied {
		logger.Info("journal migrations applied", "from", info.From, "to", info.To)
	}

	pool, err := pg.NewPool(ctx, dsn)
	if err != nil {
		return nil, shared.MarkKind(err, shared.KindDependencyFailure)
	}
	st := pg.Stat(pool)
	logger.Debug("journal pool ready", "conns", st.Total, "idle", st.Idle)
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &PGStore{pool: pool, retention: retention}, nil
}

// Record вставляет запись и удаляет самые старые сверх лимита.
func (s *PGStore) Record(ctx context.Context, run Run) error {
	if run.Outcome == "" {
		return shared.Validationf("run outcome is empty")
	}
	return pg.WithinTx(ctx, s.pool, func(q pg.Querier) error {
		_, err := q.Exec(ctx, `
			INSERT INTO job_runs (job_id, job_name, policy, scheduled_at, started_at, duration_us, outcome, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			run.JobID, run.JobName, run.Policy,
			run.ScheduledAt, run.StartedAt,
			run.Duration.Microseconds(), string(run.Outcome), run.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to insert job run: %w", err)
		}
		_, err = q.Exec(ctx, `
			DELETE FROM job_runs
			WHERE id <= (SELECT MAX(id) FROM job_runs) - $1`, s.retention)
		if err != nil {
			return fmt.Errorf("failed to prune job runs: %w", err)
		}
		return nil
	})
}

// Recent возвращает последние записи, новые первыми.
func (s *PGStore) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, job_name, policy, scheduled_at, started_at, duration_us, outcome, error
		FROM job_runs
		ORDER BY id DESC
		LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query job runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Run, error) {
		var (
			run     Run
			outcome string
			micros  int64
		)
		err := row.Scan(&run.ID, &run.JobID, &run.JobName, &run.Policy,
			&run.ScheduledAt, &run.StartedAt, &micros, &outcome, &run.Error)
		run.Duration = time.Duration(micros) * time.Microsecond
		run.Outcome = Outcome(outcome)
		run.ScheduledAt = run.ScheduledAt.UTC()
		run.StartedAt = run.StartedAt.UTC()
		return run, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan job runs: %w", err)
	}
	return runs, nil
}

// Ping проверяет пул.
func (s *PGStore) Ping(ctx context.Context) error {
	return pg.Ping(ctx, s.pool, 0)
}

// Close закрывает пул.
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}
