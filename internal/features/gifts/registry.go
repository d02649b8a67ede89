// Package gifts — подарочные коды и подарки баланса между пользователями.
package gifts

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/common"
	"wallet-bot/internal/features/ledger"
	"wallet-bot/internal/store"
)

const (
	// CodeLength — длина подарочного кода.
	CodeLength = 10
	// MaxCount — сколько кодов можно выпустить за раз.
	MaxCount = 50

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// попыток на один код при совпадении с уже выпущенным
	maxAttempts = 5
)

// Redemption — итог активации кода.
type Redemption struct {
	Code    string
	Value   int64
	Account *store.Account
}

// Registry выпускает и активирует подарочные коды.
type Registry struct {
	store *store.Store
}

// NewRegistry создаёт реестр кодов.
func NewRegistry(st *store.Store) *Registry {
	return &Registry{store: st}
}

// NewCode возвращает случайный код из A-Z0-9.
func NewCode() (string, error) {
	var sb strings.Builder
	base := big.NewInt(int64(len(alphabet)))
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("ошибка генерации кода: %w", err)
		}
		sb.WriteByte(alphabet[n.Int64()])
	}
	return sb.String(), nil
}

// Normalize приводит ввод пользователя к виду кода.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Generate выпускает count кодов номиналом value.
// Каждый код пишется отдельной транзакцией: совпадение с существующим
// кодом просто перегенерирует его.
func (r *Registry) Generate(ctx context.Context, issuer, value int64, count int) ([]string, error) {
	if value <= 0 {
		return nil, common.Invalid("value", "номинал должен быть больше нуля")
	}
	if value > ledger.MaxAmount {
		return nil, common.Invalid("value", "слишком большой номинал")
	}
	if count < 1 || count > MaxCount {
		return nil, common.Invalid("count", fmt.Sprintf("количество кодов от 1 до %d", MaxCount))
	}

	codes := make([]string, 0, count)
	for len(codes) < count {
		code, err := r.insertUnique(ctx, issuer, value)
		if err != nil {
			return codes, err
		}
		codes = append(codes, code)
	}

	log.WithFields(log.Fields{"issuer": issuer, "value": value, "count": count}).Info("Выпущены подарочные коды")
	return codes, nil
}

func (r *Registry) insertUnique(ctx context.Context, issuer, value int64) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := NewCode()
		if err != nil {
			return "", err
		}
		err = r.store.Update(ctx, func(tx *store.Tx) error {
			return tx.InsertGiftCode(ctx, &store.GiftCode{Code: code, Value: value, IssuerID: issuer})
		})
		if errors.Is(err, store.ErrDuplicate) {
			log.WithField("code", code).Debug("Код уже существует, генерируем заново")
			continue
		}
		if err != nil {
			return "", err
		}
		return code, nil
	}
	return "", fmt.Errorf("не удалось подобрать уникальный код за %d попыток", maxAttempts)
}

// Redeem активирует код: отметка об использовании и зачисление идут
// одной транзакцией, поэтому код срабатывает ровно один раз.
func (r *Registry) Redeem(ctx context.Context, code string, identity int64) (*Redemption, error) {
	code = Normalize(code)
	if code == "" {
		return nil, common.Invalid("code", "введите код")
	}

	var res *Redemption
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		g, err := tx.GiftCode(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return common.ErrGiftCodeNotFound
		}
		if err != nil {
			return err
		}
		if g.Used {
			return common.ErrGiftCodeUsed
		}

		a, err := tx.Account(ctx, identity)
		if errors.Is(err, store.ErrNotFound) {
			return common.ErrAccountNotFound
		}
		if err != nil {
			return err
		}

		ok, err := tx.MarkGiftCodeUsed(ctx, code, identity)
		if err != nil {
			return err
		}
		if !ok {
			return common.ErrGiftCodeUsed
		}

		a.BotBalance += g.Value
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, &store.Entry{
			Identity:        identity,
			Type:            store.EntryGiftCode,
			Amount:          g.Value,
			CounterpartyRef: code,
		}); err != nil {
			return err
		}
		res = &Redemption{Code: code, Value: g.Value, Account: a}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"user": identity, "code": code, "value": res.Value}).Info("Подарочный код активирован")
	return res, nil
}

// Issued возвращает коды, выпущенные issuer.
func (r *Registry) Issued(ctx context.Context, issuer int64) ([]*store.GiftCode, error) {
	var out []*store.GiftCode
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.GiftCodesByIssuer(ctx, issuer)
		return err
	})
	return out, err
}
