// Package referral — реферальная программа: кто кого пригласил
// и комиссия пригласившему с каждого пополнения приглашённого.
package referral

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/store"
)

// Percent — доля пригласившего с каждого одобренного пополнения.
const Percent = 5

// tokenPrefix — префикс параметра /start в реферальной ссылке.
const tokenPrefix = "ref_"

// Commission считает вознаграждение пригласившему: floor(amount * 5%).
func Commission(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return amount * Percent / 100
}

// Credit — начисление пригласившему.
type Credit struct {
	Referrer int64
	Referee  int64
	Amount   int64
}

// CreditReferrer начисляет комиссию пригласившему внутри транзакции пополнения.
// Граф не обходится: платит только прямой пригласивший, записанный при регистрации.
// nil — начислять некому.
func CreditReferrer(ctx context.Context, tx *store.Tx, referee *store.Account, depositAmount int64) (*Credit, error) {
	if referee.ReferredBy == nil || *referee.ReferredBy == referee.Identity {
		return nil, nil
	}
	amount := Commission(depositAmount)
	if amount == 0 {
		return nil, nil
	}

	referrer, err := tx.Account(ctx, *referee.ReferredBy)
	if errors.Is(err, store.ErrNotFound) {
		// Пригласивший удалён — комиссию не начисляем
		log.WithFields(log.Fields{
			"referee":  referee.Identity,
			"referrer": *referee.ReferredBy,
		}).Warn("Пригласивший не найден, реферальная комиссия пропущена")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	referrer.BotBalance += amount
	if err := tx.SaveAccount(ctx, referrer); err != nil {
		return nil, err
	}
	if err := tx.AppendEntry(ctx, &store.Entry{
		Identity:        referrer.Identity,
		Type:            store.EntryReferralBonus,
		Amount:          amount,
		CounterpartyRef: strconv.FormatInt(referee.Identity, 10),
		Note:            fmt.Sprintf("%d%% от пополнения %d", Percent, depositAmount),
	}); err != nil {
		return nil, err
	}

	return &Credit{Referrer: referrer.Identity, Referee: referee.Identity, Amount: amount}, nil
}

// ParseStartToken разбирает параметр /start вида ref_<id>.
func ParseStartToken(arg string) (int64, bool) {
	arg = strings.TrimSpace(arg)
	if !strings.HasPrefix(arg, tokenPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, tokenPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Link строит реферальную ссылку пользователя.
func Link(botUsername string, identity int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%d", botUsername, tokenPrefix, identity)
}

// Stats — статистика приглашений.
type Stats struct {
	Total     int
	Deposited int
}

// Service отдаёт статистику и ссылки.
type Service struct {
	store       *store.Store
	botUsername string
}

// NewService создаёт сервис рефералов.
func NewService(st *store.Store, botUsername string) *Service {
	return &Service{store: st, botUsername: botUsername}
}

// Link — реферальная ссылка пользователя.
func (s *Service) Link(identity int64) string {
	return Link(s.botUsername, identity)
}

// Stats считает приглашённых пользователем и пополнивших из них.
func (s *Service) Stats(ctx context.Context, identity int64) (Stats, error) {
	var st Stats
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		st.Total, st.Deposited, err = tx.ReferralCounts(ctx, identity)
		return err
	})
	return st, err
}
