// Package sqlite предоставляет инфраструктурные компоненты для работы с SQLite
// (драйвер modernc.org/sqlite, без CGO).
//
// Основные возможности:
//   - Открытие базы с PRAGMA-настройками (WAL, busy_timeout)
//   - In-memory база для тестов
//   - Встроенные миграции через golang-migrate и embed.FS
//   - Транзакции с откатом при ошибке
//
// Пример:
//
//	db, err := sqlite.Open(ctx, "data/journal.db")
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	if _, err := sqlite.Migrate(db, migrations, "migrations/sqlite"); err != nil {
//		return err
//	}
//
//	err = sqlite.WithinTx(ctx, db, func(tx *sql.Tx) error {
//		_, err := tx.ExecContext(ctx, "DELETE FROM job_runs WHERE id < ?", minID)
//		return err
//	})
package sqlite
