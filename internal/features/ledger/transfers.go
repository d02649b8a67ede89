package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/common"
	"wallet-bot/internal/store"
)

// Channel — канал вывода.
type Channel string

const (
	ChannelSyriatel Channel = "syriatel"
	ChannelPayeer   Channel = "payeer"
)

// Минимальные суммы.
const (
	MinSyriatelWithdrawal int64 = 20000
	MinPayeerWithdrawal   int64 = 40000
	MinInternalTransfer   int64 = 10000
)

// MinWithdrawal возвращает минимум вывода для канала.
func MinWithdrawal(ch Channel) int64 {
	if ch == ChannelPayeer {
		return MinPayeerWithdrawal
	}
	return MinSyriatelWithdrawal
}

// Tiers — ставки комиссии в базисных пунктах (1% = 100):
// первая операция за день и все последующие.
type Tiers struct {
	First  int64
	Repeat int64
}

// Rate выбирает ставку по числу уже сделанных сегодня операций.
func (t Tiers) Rate(countToday int) int64 {
	if countToday == 0 {
		return t.First
	}
	return t.Repeat
}

var (
	// WithdrawalTiers — комиссия вывода: 10% первый раз за день, дальше 5%.
	WithdrawalTiers = Tiers{First: 1000, Repeat: 500}
	// SettleGiftTiers — комиссия подарка при списании: 5%, дальше 3.5%.
	SettleGiftTiers = Tiers{First: 500, Repeat: 350}
	// QuoteGiftTiers — ставки в предварительном расчёте подарка: 5%, дальше 3%.
	QuoteGiftTiers = Tiers{First: 500, Repeat: 300}
)

// Commission считает floor(amount * bps / 10000).
func Commission(amount, bps int64) int64 {
	return amount * bps / 10000
}

// FormatRate печатает ставку в процентах: 350 → "3.5%".
func FormatRate(bps int64) string {
	if bps%100 == 0 {
		return strconv.FormatInt(bps/100, 10) + "%"
	}
	return strconv.FormatFloat(float64(bps)/100, 'f', -1, 64) + "%"
}

// ===== Вывод =====

// WithdrawalQuote — расчёт вывода, показанный пользователю перед подтверждением.
type WithdrawalQuote struct {
	Channel    Channel
	Amount     int64
	RateBps    int64
	Commission int64
	Net        int64
}

// QuoteWithdrawal проверяет минимум и считает комиссию по дневному счётчику.
// Баланс здесь не проверяется: это делает ApplyWithdrawal.
func (p *Processor) QuoteWithdrawal(ctx context.Context, identity int64, ch Channel, amount int64) (*WithdrawalQuote, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	if floor := MinWithdrawal(ch); amount < floor {
		return nil, common.Invalid("amount", "минимальная сумма вывода "+common.FormatAmount(floor))
	}
	a, err := p.Account(ctx, identity)
	if err != nil {
		return nil, err
	}
	rate := WithdrawalTiers.Rate(a.DailyWithdrawalCount)
	commission := Commission(amount, rate)
	return &WithdrawalQuote{Channel: ch, Amount: amount, RateBps: rate, Commission: commission, Net: amount - commission}, nil
}

// WithdrawalInput — подтверждённый пользователем вывод.
type WithdrawalInput struct {
	Identity      int64
	Channel       Channel
	Amount        int64
	Commission    int64
	Net           int64
	PayoutAddress string
}

// ApplyWithdrawal списывает полную сумму (не нетто), увеличивает дневной
// счётчик выводов и запоминает адрес выплаты.
func (p *Processor) ApplyWithdrawal(ctx context.Context, in WithdrawalInput) (a *store.Account, err error) {
	defer p.observe("withdrawal", time.Now(), &err)
	if err := checkAmount(in.Amount); err != nil {
		return nil, err
	}
	if in.Commission < 0 || in.Net != in.Amount-in.Commission {
		return nil, fmt.Errorf("некорректный расчёт вывода: amount=%d commission=%d net=%d", in.Amount, in.Commission, in.Net)
	}

	err = p.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		a, err = loadAccount(ctx, tx, in.Identity)
		if err != nil {
			return err
		}
		p.rollover(a, tx.Now())
		if a.BotBalance < in.Amount {
			return common.ErrInsufficientBalance
		}

		a.BotBalance -= in.Amount
		a.DailyWithdrawalCount++
		switch in.Channel {
		case ChannelSyriatel:
			a.PhoneNumber = in.PayoutAddress
		case ChannelPayeer:
			a.PayeerWallet = in.PayoutAddress
		}
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, &store.Entry{
			Identity:        in.Identity,
			Type:            store.EntryWithdrawal,
			Amount:          in.Amount,
			Fee:             in.Commission,
			CounterpartyRef: in.PayoutAddress,
			Method:          string(in.Channel),
			Note:            fmt.Sprintf("к выплате %d", in.Net),
		})
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user":       in.Identity,
		"channel":    in.Channel,
		"amount":     in.Amount,
		"commission": in.Commission,
		"net":        in.Net,
	}).Info("Заявка на вывод принята")
	return a, nil
}

// ===== Подарки =====

// GiftQuote — расчёт подарка.
type GiftQuote struct {
	Amount     int64
	RateBps    int64
	Commission int64
	Total      int64
}

// QuoteGift считает комиссию подарка по таблице ставок tiers.
func (p *Processor) QuoteGift(ctx context.Context, sender, amount int64, tiers Tiers) (*GiftQuote, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	a, err := p.Account(ctx, sender)
	if err != nil {
		return nil, err
	}
	rate := tiers.Rate(a.DailyGiftCount)
	commission := Commission(amount, rate)
	return &GiftQuote{Amount: amount, RateBps: rate, Commission: commission, Total: amount + commission}, nil
}

// GiftResult — итог подарка.
type GiftResult struct {
	Sender     *store.Account
	Recipient  *store.Account
	Amount     int64
	RateBps    int64
	Commission int64
	Total      int64
}

// ApplyGift переводит amount получателю по ставке rateBps. Отправитель
// платит amount + комиссию; комиссия никому не зачисляется.
func (p *Processor) ApplyGift(ctx context.Context, sender, recipient, amount, rateBps int64) (*GiftResult, error) {
	return p.gift(ctx, sender, recipient, amount, func(*store.Account) int64 { return rateBps })
}

// SettleGift — ApplyGift со ставкой из SettleGiftTiers по счётчику
// подарков отправителя на момент списания.
func (p *Processor) SettleGift(ctx context.Context, sender, recipient, amount int64) (*GiftResult, error) {
	return p.gift(ctx, sender, recipient, amount, func(a *store.Account) int64 {
		return SettleGiftTiers.Rate(a.DailyGiftCount)
	})
}

func (p *Processor) gift(ctx context.Context, sender, recipient, amount int64, rateOf func(*store.Account) int64) (res *GiftResult, err error) {
	defer p.observe("gift", time.Now(), &err)
	if sender == recipient {
		return nil, common.ErrSelfTransfer
	}
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	err = p.store.Update(ctx, func(tx *store.Tx) error {
		from, err := loadAccount(ctx, tx, sender)
		if err != nil {
			return err
		}
		to, err := loadAccount(ctx, tx, recipient)
		if err != nil {
			return err
		}
		p.rollover(from, tx.Now())

		rate := rateOf(from)
		commission := Commission(amount, rate)
		total := amount + commission
		if from.BotBalance < total {
			return common.ErrInsufficientBalance
		}

		from.BotBalance -= total
		from.DailyGiftCount++
		to.BotBalance += amount
		if err := tx.SaveAccount(ctx, from); err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, to); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, &store.Entry{
			Identity:        sender,
			Type:            store.EntryGiftSent,
			Amount:          amount,
			Fee:             commission,
			CounterpartyRef: strconv.FormatInt(recipient, 10),
		}); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, &store.Entry{
			Identity:        recipient,
			Type:            store.EntryGiftReceived,
			Amount:          amount,
			CounterpartyRef: strconv.FormatInt(sender, 10),
		}); err != nil {
			return err
		}
		res = &GiftResult{Sender: from, Recipient: to, Amount: amount, RateBps: rate, Commission: commission, Total: total}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"from":       sender,
		"to":         recipient,
		"amount":     amount,
		"commission": res.Commission,
	}).Info("Подарок отправлен")
	return res, nil
}

// ===== Переводы бот ↔ внешняя платформа =====

// Direction — направление внутреннего перевода.
type Direction int

const (
	// ToExternal — с баланса бота на внешнюю платформу.
	ToExternal Direction = iota
	// FromExternal — с внешней платформы на баланс бота.
	FromExternal
)

// ApplyInternalTransfer переводит amount между балансами без комиссии.
func (p *Processor) ApplyInternalTransfer(ctx context.Context, identity int64, dir Direction, amount int64) (a *store.Account, err error) {
	defer p.observe("internal_transfer", time.Now(), &err)
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	if amount < MinInternalTransfer {
		return nil, common.Invalid("amount", "минимальная сумма перевода "+common.FormatAmount(MinInternalTransfer))
	}

	err = p.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		a, err = loadAccount(ctx, tx, identity)
		if err != nil {
			return err
		}

		entryType := store.EntryTransferOut
		switch dir {
		case ToExternal:
			if a.BotBalance < amount {
				return common.ErrInsufficientBalance
			}
			a.BotBalance -= amount
			a.ExternalBalance += amount
			a.HasDeposited = true
		case FromExternal:
			if a.ExternalBalance < amount {
				return common.ErrInsufficientBalance
			}
			a.ExternalBalance -= amount
			a.BotBalance += amount
			entryType = store.EntryTransferIn
		default:
			return fmt.Errorf("неизвестное направление перевода %d", dir)
		}

		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, &store.Entry{
			Identity: identity,
			Type:     entryType,
			Amount:   amount,
			Method:   "ichancy",
		})
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"user": identity, "direction": dir, "amount": amount}).Info("Внутренний перевод выполнен")
	return a, nil
}
