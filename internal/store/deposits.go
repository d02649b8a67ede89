package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InsertDepositRequest сохраняет новую заявку в статусе pending.
// ID — uuid без дефисов, чтобы влезать в данные inline-кнопки.
func (t *Tx) InsertDepositRequest(ctx context.Context, r *DepositRequest) error {
	if r.ID == "" {
		r.ID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	r.Status = RequestPending
	r.CreatedAt = t.now
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO deposit_requests (id, identity, method, amount, usd_amount, tx_ref, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.Identity, r.Method, r.Amount, r.USDAmount, r.TxRef, r.Status, r.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("ошибка сохранения заявки: %w", err)
	}
	return nil
}

// DepositRequest читает заявку.
func (t *Tx) DepositRequest(ctx context.Context, id string) (*DepositRequest, error) {
	var (
		r        DepositRequest
		created  int64
		resolved sql.NullInt64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, identity, method, amount, usd_amount, tx_ref, status, created_at, resolved_at
		FROM deposit_requests WHERE id = $1`+t.forUpdate, id,
	).Scan(&r.ID, &r.Identity, &r.Method, &r.Amount, &r.USDAmount, &r.TxRef, &r.Status, &created, &resolved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения заявки %s: %w", id, err)
	}
	r.CreatedAt = time.Unix(created, 0)
	r.ResolvedAt = unixOrZero(resolved)
	return &r, nil
}

// ResolveDepositRequest переводит заявку из pending в status.
// false — заявка уже была обработана.
func (t *Tx) ResolveDepositRequest(ctx context.Context, id, status string) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE deposit_requests SET status = $1, resolved_at = $2 WHERE id = $3 AND status = $4",
		status, t.now.Unix(), id, RequestPending)
	if err != nil {
		return false, fmt.Errorf("ошибка обновления заявки %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ошибка обновления заявки %s: %w", id, err)
	}
	return n == 1, nil
}
