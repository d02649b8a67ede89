package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendEntry добавляет запись в журнал операций. ID выдаётся здесь.
func (t *Tx) AppendEntry(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = t.now
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (id, identity, type, amount, bonus, fee, counterparty_ref, method, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.Identity, e.Type, e.Amount, e.Bonus, e.Fee, e.CounterpartyRef, e.Method, e.Note, e.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("ошибка записи операции %s для %d: %w", e.Type, e.Identity, err)
	}
	return nil
}

// Entries возвращает последние limit записей пользователя, новые первыми.
func (t *Tx) Entries(ctx context.Context, identity int64, limit int) ([]*Entry, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, identity, type, amount, bonus, fee, counterparty_ref, method, note, created_at
		FROM transactions WHERE identity = $1
		ORDER BY seq DESC LIMIT $2`, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала %d: %w", identity, err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var (
			e       Entry
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Identity, &e.Type, &e.Amount, &e.Bonus, &e.Fee,
			&e.CounterpartyRef, &e.Method, &e.Note, &created); err != nil {
			return nil, fmt.Errorf("ошибка разбора операции: %w", err)
		}
		e.CreatedAt = time.Unix(created, 0)
		out = append(out, &e)
	}
	return out, rows.Err()
}
