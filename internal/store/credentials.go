package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PopCredential забирает из пула первую учётку, имя которой ещё не занято
// аккаунтом, и удаляет её из пула. Пустой пул → ErrNotFound.
func (t *Tx) PopCredential(ctx context.Context) (*Credential, error) {
	var (
		c        Credential
		position int64
		addedAt  int64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT p.position, p.name, p.secret, p.added_at FROM credential_pool p
		WHERE NOT EXISTS (SELECT 1 FROM accounts a WHERE a.credential_name = p.name)
		ORDER BY p.position LIMIT 1`+t.forUpdate,
	).Scan(&position, &c.Name, &c.Secret, &addedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки учётки из пула: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM credential_pool WHERE position = $1", position); err != nil {
		return nil, fmt.Errorf("ошибка удаления учётки %q из пула: %w", c.Name, err)
	}
	c.AddedAt = time.Unix(addedAt, 0)
	return &c, nil
}

// AddCredential кладёт учётку в конец пула.
func (t *Tx) AddCredential(ctx context.Context, c *Credential) error {
	c.AddedAt = t.now
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO credential_pool (name, secret, added_at) VALUES ($1, $2, $3)",
		c.Name, c.Secret, c.AddedAt.Unix())
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("ошибка добавления учётки %q: %w", c.Name, err)
	}
	return nil
}

// DeleteCredential удаляет учётку из пула по имени.
func (t *Tx) DeleteCredential(ctx context.Context, name string) error {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM credential_pool WHERE name = $1", name)
	if err != nil {
		return fmt.Errorf("ошибка удаления учётки %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка удаления учётки %q: %w", name, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Credentials возвращает пул в порядке выдачи.
func (t *Tx) Credentials(ctx context.Context) ([]*Credential, error) {
	rows, err := t.tx.QueryContext(ctx,
		"SELECT name, secret, added_at FROM credential_pool ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения пула учёток: %w", err)
	}
	defer rows.Close()

	var out []*Credential
	for rows.Next() {
		var (
			c       Credential
			addedAt int64
		)
		if err := rows.Scan(&c.Name, &c.Secret, &addedAt); err != nil {
			return nil, fmt.Errorf("ошибка разбора учётки: %w", err)
		}
		c.AddedAt = time.Unix(addedAt, 0)
		out = append(out, &c)
	}
	return out, rows.Err()
}
