package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RecordLoginAttempt записывает неудачную попытку входа админа.
func (t *Tx) RecordLoginAttempt(ctx context.Context, adminID int64) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO admin_login_attempts (admin_id, attempted_at) VALUES ($1, $2)",
		adminID, t.now.Unix())
	if err != nil {
		return fmt.Errorf("ошибка записи попытки входа: %w", err)
	}
	return nil
}

// LoginAttemptsSince считает неудачные попытки входа начиная с since.
func (t *Tx) LoginAttemptsSince(ctx context.Context, adminID int64, since time.Time) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM admin_login_attempts WHERE admin_id = $1 AND attempted_at >= $2",
		adminID, since.Unix()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта попыток входа: %w", err)
	}
	return n, nil
}

// ClearLoginAttempts удаляет историю попыток после успешного входа.
func (t *Tx) ClearLoginAttempts(ctx context.Context, adminID int64) error {
	if _, err := t.tx.ExecContext(ctx,
		"DELETE FROM admin_login_attempts WHERE admin_id = $1", adminID); err != nil {
		return fmt.Errorf("ошибка очистки попыток входа: %w", err)
	}
	return nil
}

// SaveSession создаёт или продлевает сессию админа.
func (t *Tx) SaveSession(ctx context.Context, adminID int64, token string, expiresAt time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO admin_sessions (admin_id, token, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (admin_id) DO UPDATE SET token = excluded.token, expires_at = excluded.expires_at`,
		adminID, token, expiresAt.Unix())
	if err != nil {
		return fmt.Errorf("ошибка сохранения сессии: %w", err)
	}
	return nil
}

// SessionExpiry возвращает срок действия сессии. ErrNotFound — сессии нет.
func (t *Tx) SessionExpiry(ctx context.Context, adminID int64) (time.Time, error) {
	var expires int64
	err := t.tx.QueryRowContext(ctx,
		"SELECT expires_at FROM admin_sessions WHERE admin_id = $1", adminID).Scan(&expires)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("ошибка чтения сессии: %w", err)
	}
	return time.Unix(expires, 0), nil
}

// DeleteSession завершает сессию админа.
func (t *Tx) DeleteSession(ctx context.Context, adminID int64) error {
	if _, err := t.tx.ExecContext(ctx,
		"DELETE FROM admin_sessions WHERE admin_id = $1", adminID); err != nil {
		return fmt.Errorf("ошибка удаления сессии: %w", err)
	}
	return nil
}
