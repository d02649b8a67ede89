// Package db — общие утилиты для работы с базой через database/sql.
// migrate.go применяет встроенные SQL-миграции по порядку.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// ApplyMigrations выполняет все *.sql из каталога dir в fsys.
// Номер версии берётся из префикса имени файла: 001_init.sql → 1.
// Уже применённые версии (schema_migrations) пропускаются.
func ApplyMigrations(ctx context.Context, db *sql.DB, fsys fs.FS, dir string) error {
	// Создаём таблицу для отслеживания миграций, если её нет
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at BIGINT NOT NULL
		)`); err != nil {
		return fmt.Errorf("ошибка создания таблицы миграций: %w", err)
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("ошибка чтения миграций: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := migrationVersion(entry.Name())
		if err != nil {
			return err
		}
		body, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("ошибка чтения миграции %s: %w", entry.Name(), err)
		}
		applied, err := ExecMigrationSQL(ctx, db, version, string(body))
		if err != nil {
			return err
		}
		if applied {
			log.WithField("migration", entry.Name()).Info("Миграция применена")
		}
	}
	return nil
}

// ExecMigrationSQL выполняет один SQL-файл миграции в транзакции.
// Если запрос упадёт — транзакция откатится автоматически.
// Возвращает true, если миграция применялась в этот раз.
func ExecMigrationSQL(ctx context.Context, db *sql.DB, version int, query string) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	// Откатываем транзакцию, если что-то пошло не так
	defer tx.Rollback()

	// Проверяем, не была ли эта миграция уже применена
	var count int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = $1", version,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("ошибка проверки миграции: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, query); err != nil {
		return false, fmt.Errorf("ошибка выполнения миграции %d: %w", version, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)", version, time.Now().Unix(),
	); err != nil {
		return false, fmt.Errorf("ошибка записи версии миграции: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("ошибка фиксации миграции %d: %w", version, err)
	}
	return true, nil
}

func migrationVersion(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("имя миграции %s без номера", name)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, fmt.Errorf("имя миграции %s: %w", name, err)
	}
	return v, nil
}
