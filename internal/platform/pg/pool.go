package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions - настройки пула. Нулевые поля заменяются значениями
// по умолчанию, см. DefaultPoolOptions.
type PoolOptions struct {
	MaxConns          int32
	MinConns          int32
	HealthCheckPeriod time.Duration
	MaxConnIdleTime   time.Duration
	// PingTimeout ограничивает проверку соединения при создании пула.
	PingTimeout time.Duration
	// AppName попадает в application_name и виден в pg_stat_activity.
	AppName string
}

// DefaultPoolOptions возвращает настройки для журнала запусков:
// пишет одна горутина, читают бот и HTTP API.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:          4,
		MinConns:          1,
		HealthCheckPeriod: 30 * time.Second,
		MaxConnIdleTime:   10 * time.Minute,
		PingTimeout:       5 * time.Second,
		AppName:           "tgqueue",
	}
}

func (o PoolOptions) withDefaults() PoolOptions {
	def := DefaultPoolOptions()
	if o.MaxConns <= 0 {
		o.MaxConns = def.MaxConns
	}
	if o.MinConns < 0 || o.MinConns > o.MaxConns {
		o.MinConns = min(def.MinConns, o.MaxConns)
	}
	if o.HealthCheckPeriod <= 0 {
		o.HealthCheckPeriod = def.HealthCheckPeriod
	}
	if o.MaxConnIdleTime <= 0 {
		o.MaxConnIdleTime = def.MaxConnIdleTime
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = def.PingTimeout
	}
	if o.AppName == "" {
		o.AppName = def.AppName
	}
	return o
}

// NewPool создает пул и проверяет соединение. Без opts используются
// DefaultPoolOptions.
func NewPool(ctx context.Context, dsn string, opts ...PoolOptions) (*pgxpool.Pool, error) {
	o := DefaultPoolOptions()
	if len(opts) > 0 {
		o = opts[0].withDefaults()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	cfg.MaxConns = o.MaxConns
	cfg.MinConns = o.MinConns
	cfg.HealthCheckPeriod = o.HealthCheckPeriod
	cfg.MaxConnIdleTime = o.MaxConnIdleTime
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = o.AppName
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := Ping(ctx, pool, o.PingTimeout); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
