package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const giftCodeColumns = "code, value, issuer_id, used, used_by, used_at, created_at"

func scanGiftCode(row rowScanner) (*GiftCode, error) {
	var (
		g       GiftCode
		usedBy  sql.NullInt64
		usedAt  sql.NullInt64
		created int64
	)
	if err := row.Scan(&g.Code, &g.Value, &g.IssuerID, &g.Used, &usedBy, &usedAt, &created); err != nil {
		return nil, err
	}
	if usedBy.Valid {
		by := usedBy.Int64
		g.UsedBy = &by
	}
	g.UsedAt = unixOrZero(usedAt)
	g.CreatedAt = time.Unix(created, 0)
	return &g, nil
}

// InsertGiftCode сохраняет новый код. Повтор кода → ErrDuplicate.
func (t *Tx) InsertGiftCode(ctx context.Context, g *GiftCode) error {
	g.CreatedAt = t.now
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO gift_codes (code, value, issuer_id, used, created_at) VALUES ($1, $2, $3, $4, $5)",
		g.Code, g.Value, g.IssuerID, false, g.CreatedAt.Unix())
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("ошибка сохранения кода: %w", err)
	}
	return nil
}

// GiftCode читает код.
func (t *Tx) GiftCode(ctx context.Context, code string) (*GiftCode, error) {
	row := t.tx.QueryRowContext(ctx,
		"SELECT "+giftCodeColumns+" FROM gift_codes WHERE code = $1"+t.forUpdate, code)
	g, err := scanGiftCode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения кода: %w", err)
	}
	return g, nil
}

// MarkGiftCodeUsed помечает код использованным, только если он ещё свободен.
// false — код уже был использован.
func (t *Tx) MarkGiftCodeUsed(ctx context.Context, code string, by int64) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE gift_codes SET used = $1, used_by = $2, used_at = $3 WHERE code = $4 AND used = $5",
		true, by, t.now.Unix(), code, false)
	if err != nil {
		return false, fmt.Errorf("ошибка активации кода: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ошибка активации кода: %w", err)
	}
	return n == 1, nil
}

// GiftCodesByIssuer возвращает коды, выпущенные issuer, новые первыми.
func (t *Tx) GiftCodesByIssuer(ctx context.Context, issuer int64) ([]*GiftCode, error) {
	rows, err := t.tx.QueryContext(ctx,
		"SELECT "+giftCodeColumns+" FROM gift_codes WHERE issuer_id = $1 ORDER BY created_at DESC, code",
		issuer)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения кодов: %w", err)
	}
	defer rows.Close()

	var out []*GiftCode
	for rows.Next() {
		g, err := scanGiftCode(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора кода: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
