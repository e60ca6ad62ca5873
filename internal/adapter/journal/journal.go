// Package journal сохраняет историю срабатываний планировщика (успех, ошибка,
// пропуск) в SQLite или PostgreSQL, чтобы бот и HTTP API могли показать
// последние запуски.
package journal

import (
	"context"
	"embed"
	"time"

	"github.com/google/uuid"
)

//go:embed migrations
var migrations embed.FS

// Outcome - итог одного срабатывания.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeError   Outcome = "error"
	OutcomeSkipped Outcome = "skipped"
)

// Run - одна запись журнала.
type Run struct {
	ID          int64         `json:"id"`
	JobID       uuid.UUID     `json:"job_id"`
	JobName     string        `json:"job_name"`
	Policy      string        `json:"policy"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Outcome     Outcome       `json:"outcome"`
	Error       string        `json:"error,omitempty"`
}

// Store хранит записи журнала.
type Store interface {
	// Record добавляет запись и обрезает журнал до лимита хранения.
	Record(ctx context.Context, run Run) error
	// Recent возвращает до limit записей, новые первыми.
	Recent(ctx context.Context, limit int) ([]Run, error)
	// Ping проверяет доступность базы.
	Ping(ctx context.Context) error
	Close() error
}

const (
	// DefaultRetention - сколько записей хранится по умолчанию.
	DefaultRetention = 10000
	// MaxRecent ограничивает один запрос Recent.
	MaxRecent = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > MaxRecent {
		return MaxRecent
	}
	return limit
}
