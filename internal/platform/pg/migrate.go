package pg

import (
	"errors"
	"fmt"
	"io/fs"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationInfo описывает результат Migrate.
type MigrationInfo struct {
	Applied bool
	From    uint
	To      uint
}

// Migrate применяет миграции из каталога dir в fsys. Отсутствие новых
// миграций не ошибка; база в dirty-состоянии не трогается.
func Migrate(dsn string, fsys fs.FS, dir string) (MigrationInfo, error) {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return MigrationInfo{}, fmt.Errorf("failed to open migrations %q: %w", dir, err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		_ = src.Close()
		return MigrationInfo{}, fmt.Errorf("failed to init migrations: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	from, dirty, err := version(m)
	if err != nil {
		return MigrationInfo{}, err
	}
	info := MigrationInfo{From: from, To: from}
	if dirty {
		return info, fmt.Errorf("schema is dirty at version %d, fix it manually", from)
	}

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		return info, nil
	case err != nil:
		return info, fmt.Errorf("failed to apply migrations: %w", err)
	}
	info.Applied = true
	if info.To, _, err = version(m); err != nil {
		return info, err
	}
	return info, nil
}

func version(m *migrate.Migrate) (uint, bool, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, dirty, nil
}
