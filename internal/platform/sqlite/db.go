package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite драйвер
)

// Options содержит настройки подключения к SQLite.
type Options struct {
	// MaxOpenConns - максимальное количество открытых соединений
	MaxOpenConns int
	// ConnMaxIdleTime - максимальное время простоя соединения
	ConnMaxIdleTime time.Duration
	// PingTimeout - таймаут для проверки соединения при открытии
	PingTimeout time.Duration
	// WALMode - использовать ли WAL режим
	WALMode bool
	// BusyTimeout - таймаут ожидания при SQLITE_BUSY
	BusyTimeout time.Duration
}

// DefaultOptions возвращает настройки по умолчанию для журнала запусков:
// один писатель, короткие транзакции.
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    4,
		ConnMaxIdleTime: 10 * time.Minute,
		PingTimeout:     5 * time.Second,
		WALMode:         true,
		BusyTimeout:     5 * time.Second,
	}
}

// Open открывает файл базы с настройками по умолчанию.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	return OpenWithOptions(ctx, path, DefaultOptions())
}

// OpenInMemory открывает in-memory базу для тестов. Пул ограничен одним
// соединением: у каждого соединения своя in-memory база.
func OpenInMemory(ctx context.Context) (*sql.DB, error) {
	opts := DefaultOptions()
	opts.WALMode = false
	opts.MaxOpenConns = 1
	return OpenWithOptions(ctx, ":memory:", opts)
}

// OpenWithOptions открывает базу, создавая каталог при необходимости.
func OpenWithOptions(ctx context.Context, path string, opts Options) (*sql.DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	pingCtx := ctx
	if opts.PingTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, opts.PingTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := applyPragmas(ctx, db, opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func applyPragmas(ctx context.Context, db *sql.DB, opts Options) error {
	pragmas := []string{"PRAGMA foreign_keys = ON", "PRAGMA synchronous = NORMAL"}
	if opts.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	if opts.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeout.Milliseconds()))
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}
