// Package store — хранилище кошелька (аккаунты, журнал операций, пул учёток,
// подарочные коды, настройки, заявки на пополнение).
//
// Одна реализация поверх database/sql обслуживает PostgreSQL (pgx stdlib)
// и SQLite (modernc). Бизнес-правил здесь нет: только чтение и запись.
//
// Все изменяющие операции идут через Update: мьютекс на всё хранилище
// плюс транзакция БД. Так чтение-изменение-запись двух разных
// пользователей не затирают друг друга.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"wallet-bot/internal/db"
	"wallet-bot/migrations"
)

// Dialect — диалект SQL подключённой базы.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("store: запись не найдена")
	// ErrDuplicate — нарушено ограничение уникальности.
	ErrDuplicate = errors.New("store: запись уже существует")
)

// Store — хранилище кошелька.
type Store struct {
	db      *sql.DB
	dialect Dialect
	mu      sync.Mutex
	now     func() time.Time
}

// New оборачивает открытое подключение.
func New(conn *sql.DB, dialect Dialect) *Store {
	return &Store{db: conn, dialect: dialect, now: time.Now}
}

// SetClock подменяет часы (для тестов).
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Now возвращает текущее время по часам хранилища.
func (s *Store) Now() time.Time {
	return s.now()
}

// Dialect возвращает диалект базы.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Migrate применяет встроенные миграции своего диалекта.
func (s *Store) Migrate(ctx context.Context) error {
	var fsys fs.FS = migrations.SQLite
	dir := "sqlite"
	if s.dialect == Postgres {
		fsys = migrations.Postgres
		dir = "postgres"
	}
	return db.ApplyMigrations(ctx, s.db, fsys, dir)
}

// Ping проверяет доступность базы.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close закрывает подключение.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx — транзакция хранилища. Живёт только внутри Update/View.
type Tx struct {
	tx        *sql.Tx
	now       time.Time
	forUpdate string
}

// Now — момент начала транзакции, единый для всех записей внутри неё.
func (t *Tx) Now() time.Time {
	return t.now
}

// Update выполняет fn в транзакции под мьютексом хранилища.
// Ошибка fn или коммита откатывает всё; в этом случае изменения,
// сделанные fn в памяти, надо выбросить.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer sqlTx.Rollback()

	tx := &Tx{tx: sqlTx, now: s.now()}
	if s.dialect == Postgres {
		tx.forUpdate = " FOR UPDATE"
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// View выполняет fn в транзакции только для чтения (без мьютекса).
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx, now: s.now()}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// isUniqueViolation распознаёт нарушение уникальности в обоих драйверах.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func unixOrZero(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0)
}
