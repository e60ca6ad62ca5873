package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tgqueue/internal/shared"
)

// ErrNilPool возвращается при обращении к неинициализированному пулу.
var ErrNilPool = errors.New("pg: pool is nil")

// Ping проверяет, что пул отвечает на запросы. timeout <= 0 оставляет
// дедлайн ctx. Ошибка помечена как KindDependencyFailure.
func Ping(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	if pool == nil {
		return ErrNilPool
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var one int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return shared.MarkKind(fmt.Errorf("postgres ping: %w", err), shared.KindDependencyFailure)
	}
	if one != 1 {
		return shared.MarkKind(fmt.Errorf("postgres ping: got %d, want 1", one), shared.KindDependencyFailure)
	}
	return nil
}

// PoolStat - срез состояния пула для логов.
type PoolStat struct {
	Total    int32
	Idle     int32
	Acquired int32
}

// Stat возвращает текущее состояние пула.
func Stat(pool *pgxpool.Pool) PoolStat {
	s := pool.Stat()
	return PoolStat{Total: s.TotalConns(), Idle: s.IdleConns(), Acquired: s.AcquiredConns()}
}
