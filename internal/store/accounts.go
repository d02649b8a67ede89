package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const accountColumns = `identity, credential_name, credential_secret, bot_balance, external_balance,
	referred_by, has_deposited, daily_gift_count, daily_withdrawal_count, counters_day,
	banned, ban_reason, phone_number, payeer_wallet, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var (
		a          Account
		referredBy sql.NullInt64
		createdAt  int64
		updatedAt  int64
	)
	err := row.Scan(
		&a.Identity, &a.CredentialName, &a.CredentialSecret, &a.BotBalance, &a.ExternalBalance,
		&referredBy, &a.HasDeposited, &a.DailyGiftCount, &a.DailyWithdrawalCount, &a.CountersDay,
		&a.Banned, &a.BanReason, &a.PhoneNumber, &a.PayeerWallet, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if referredBy.Valid {
		ref := referredBy.Int64
		a.ReferredBy = &ref
	}
	a.CreatedAt = time.Unix(createdAt, 0)
	a.UpdatedAt = time.Unix(updatedAt, 0)
	return &a, nil
}

// Account читает аккаунт по идентификатору. Внутри Update строка
// блокируется до конца транзакции (PostgreSQL).
func (t *Tx) Account(ctx context.Context, identity int64) (*Account, error) {
	row := t.tx.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE identity = $1"+t.forUpdate, identity)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения аккаунта %d: %w", identity, err)
	}
	return a, nil
}

// AccountByCredential ищет аккаунт по имени учётки.
func (t *Tx) AccountByCredential(ctx context.Context, name string) (*Account, error) {
	row := t.tx.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE credential_name = $1"+t.forUpdate, name)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения аккаунта %q: %w", name, err)
	}
	return a, nil
}

// Accounts возвращает все аккаунты в порядке создания.
func (t *Tx) Accounts(ctx context.Context) ([]*Account, error) {
	rows, err := t.tx.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts ORDER BY created_at, identity")
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения аккаунтов: %w", err)
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора аккаунта: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertAccount создаёт аккаунт. Дубликат идентификатора или имени учётки → ErrDuplicate.
func (t *Tx) InsertAccount(ctx context.Context, a *Account) error {
	a.CreatedAt = t.now
	a.UpdatedAt = t.now
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		a.Identity, a.CredentialName, a.CredentialSecret, a.BotBalance, a.ExternalBalance,
		nullableID(a.ReferredBy), a.HasDeposited, a.DailyGiftCount, a.DailyWithdrawalCount, a.CountersDay,
		a.Banned, a.BanReason, a.PhoneNumber, a.PayeerWallet, a.CreatedAt.Unix(), a.UpdatedAt.Unix(),
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("ошибка создания аккаунта %d: %w", a.Identity, err)
	}
	return nil
}

// SaveAccount записывает изменяемые поля аккаунта.
// identity, referred_by и created_at не меняются никогда.
func (t *Tx) SaveAccount(ctx context.Context, a *Account) error {
	a.UpdatedAt = t.now
	res, err := t.tx.ExecContext(ctx, `
		UPDATE accounts SET
			credential_name = $2, credential_secret = $3,
			bot_balance = $4, external_balance = $5, has_deposited = $6,
			daily_gift_count = $7, daily_withdrawal_count = $8, counters_day = $9,
			banned = $10, ban_reason = $11, phone_number = $12, payeer_wallet = $13,
			updated_at = $14
		WHERE identity = $1`,
		a.Identity, a.CredentialName, a.CredentialSecret,
		a.BotBalance, a.ExternalBalance, a.HasDeposited,
		a.DailyGiftCount, a.DailyWithdrawalCount, a.CountersDay,
		a.Banned, a.BanReason, a.PhoneNumber, a.PayeerWallet,
		a.UpdatedAt.Unix(),
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("ошибка сохранения аккаунта %d: %w", a.Identity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка сохранения аккаунта %d: %w", a.Identity, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAccount удаляет аккаунт. Журнал операций остаётся.
func (t *Tx) DeleteAccount(ctx context.Context, identity int64) error {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM accounts WHERE identity = $1", identity)
	if err != nil {
		return fmt.Errorf("ошибка удаления аккаунта %d: %w", identity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка удаления аккаунта %d: %w", identity, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReferralCounts считает приглашённых и тех из них, кто уже пополнял счёт.
func (t *Tx) ReferralCounts(ctx context.Context, referrer int64) (total, deposited int, err error) {
	err = t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN has_deposited THEN 1 ELSE 0 END), 0)
		FROM accounts WHERE referred_by = $1`, referrer,
	).Scan(&total, &deposited)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка подсчёта рефералов %d: %w", referrer, err)
	}
	return total, deposited, nil
}

// ResetDailyCounters обнуляет дневные счётчики всех аккаунтов, у которых день не равен day.
func (t *Tx) ResetDailyCounters(ctx context.Context, day string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE accounts
		SET daily_gift_count = 0, daily_withdrawal_count = 0, counters_day = $1, updated_at = $2
		WHERE counters_day <> $1`, day, t.now.Unix())
	if err != nil {
		return 0, fmt.Errorf("ошибка сброса дневных счётчиков: %w", err)
	}
	return res.RowsAffected()
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
