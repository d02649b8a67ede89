// Package ledger — обработчик операций с балансами: пополнения, выводы,
// подарки, переводы между балансом бота и внешней платформой.
//
// Каждая операция — одна транзакция хранилища: проверка, изменение,
// запись в журнал, фиксация. Уведомления отправляет вызывающий код,
// уже после успешной фиксации.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/common"
	"wallet-bot/internal/config"
	"wallet-bot/internal/features/referral"
	"wallet-bot/internal/metrics"
	"wallet-bot/internal/store"
)

// MaxAmount — верхняя граница любой суммы; защищает от переполнения int64.
const MaxAmount int64 = 1_000_000_000_000

// Processor применяет операции с балансами.
type Processor struct {
	store   *store.Store
	loc     *time.Location
	policy  string
	metrics *metrics.Metrics
}

// NewProcessor создаёт обработчик. policy — config.CounterResetDaily или CounterResetNever.
func NewProcessor(st *store.Store, loc *time.Location, policy string, m *metrics.Metrics) *Processor {
	if loc == nil {
		loc = time.UTC
	}
	return &Processor{store: st, loc: loc, policy: policy, metrics: m}
}

// rollover обнуляет дневные счётчики, если наступил новый день.
func (p *Processor) rollover(a *store.Account, now time.Time) {
	if p.policy != config.CounterResetDaily {
		return
	}
	today := common.DayKey(now, p.loc)
	if a.CountersDay != today {
		a.DailyGiftCount = 0
		a.DailyWithdrawalCount = 0
		a.CountersDay = today
	}
}

func checkAmount(amount int64) error {
	if amount <= 0 {
		return common.Invalid("amount", "сумма должна быть больше нуля")
	}
	if amount > MaxAmount {
		return common.Invalid("amount", "слишком большая сумма")
	}
	return nil
}

func loadAccount(ctx context.Context, tx *store.Tx, identity int64) (*store.Account, error) {
	a, err := tx.Account(ctx, identity)
	if errors.Is(err, store.ErrNotFound) {
		return nil, common.ErrAccountNotFound
	}
	return a, err
}

// ===== Пополнение =====

// DepositInput — параметры пополнения.
type DepositInput struct {
	Identity     int64
	Amount       int64
	BonusPercent decimal.Decimal
	TxRef        string
	Method       string
	Note         string
}

// DepositResult — итог пополнения для уведомлений.
type DepositResult struct {
	Account  *store.Account
	Amount   int64
	Bonus    int64
	Total    int64
	Referral *referral.Credit
}

// Bonus считает бонус: floor(amount * percent / 100).
func Bonus(amount int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(percent).Div(decimal.NewFromInt(100)).Floor().IntPart()
}

func checkDeposit(in DepositInput) error {
	if err := checkAmount(in.Amount); err != nil {
		return err
	}
	if in.BonusPercent.IsNegative() || in.BonusPercent.GreaterThan(decimal.NewFromInt(1000)) {
		return common.Invalid("bonus", "процент бонуса должен быть от 0 до 1000")
	}
	return nil
}

// ApplyDeposit зачисляет пополнение с бонусом и платит комиссию пригласившему.
func (p *Processor) ApplyDeposit(ctx context.Context, in DepositInput) (res *DepositResult, err error) {
	defer p.observe("deposit", time.Now(), &err)
	if err := checkDeposit(in); err != nil {
		return nil, err
	}

	err = p.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		res, err = p.applyDeposit(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	p.logDeposit(in, res)
	return res, nil
}

func (p *Processor) applyDeposit(ctx context.Context, tx *store.Tx, in DepositInput) (*DepositResult, error) {
	a, err := loadAccount(ctx, tx, in.Identity)
	if err != nil {
		return nil, err
	}

	bonus := Bonus(in.Amount, in.BonusPercent)
	total := in.Amount + bonus
	a.BotBalance += total
	a.HasDeposited = true
	if err := tx.SaveAccount(ctx, a); err != nil {
		return nil, err
	}
	if err := tx.AppendEntry(ctx, &store.Entry{
		Identity:        a.Identity,
		Type:            store.EntryDeposit,
		Amount:          in.Amount,
		Bonus:           bonus,
		CounterpartyRef: in.TxRef,
		Method:          in.Method,
		Note:            in.Note,
	}); err != nil {
		return nil, err
	}

	credit, err := referral.CreditReferrer(ctx, tx, a, in.Amount)
	if err != nil {
		return nil, fmt.Errorf("ошибка начисления реферальной комиссии: %w", err)
	}
	return &DepositResult{Account: a, Amount: in.Amount, Bonus: bonus, Total: total, Referral: credit}, nil
}

func (p *Processor) logDeposit(in DepositInput, res *DepositResult) {
	fields := log.Fields{
		"user":   in.Identity,
		"amount": in.Amount,
		"bonus":  res.Bonus,
		"method": in.Method,
		"tx_ref": in.TxRef,
	}
	if res.Referral != nil {
		fields["referrer"] = res.Referral.Referrer
		fields["referral_bonus"] = res.Referral.Amount
	}
	log.WithFields(fields).Info("Пополнение зачислено")
}

// SubmitDeposit создаёт заявку на пополнение для решения админа.
func (p *Processor) SubmitDeposit(ctx context.Context, req *store.DepositRequest) error {
	if err := checkAmount(req.Amount); err != nil {
		return err
	}
	return p.store.Update(ctx, func(tx *store.Tx) error {
		if _, err := loadAccount(ctx, tx, req.Identity); err != nil {
			return err
		}
		return tx.InsertDepositRequest(ctx, req)
	})
}

// PendingDeposit читает заявку, ещё ожидающую решения.
func (p *Processor) PendingDeposit(ctx context.Context, id string) (*store.DepositRequest, error) {
	var req *store.DepositRequest
	err := p.store.View(ctx, func(tx *store.Tx) error {
		var err error
		req, err = loadPending(ctx, tx, id)
		return err
	})
	return req, err
}

func loadPending(ctx context.Context, tx *store.Tx, id string) (*store.DepositRequest, error) {
	req, err := tx.DepositRequest(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, common.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	if req.Status != store.RequestPending {
		return nil, common.ErrRequestResolved
	}
	return req, nil
}

// ApproveDeposit одобряет заявку и зачисляет её одной транзакцией.
// Повторное одобрение → ErrRequestResolved.
func (p *Processor) ApproveDeposit(ctx context.Context, id string, bonusPercent decimal.Decimal) (req *store.DepositRequest, res *DepositResult, err error) {
	defer p.observe("deposit_approve", time.Now(), &err)

	err = p.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		req, err = loadPending(ctx, tx, id)
		if err != nil {
			return err
		}
		in := DepositInput{
			Identity:     req.Identity,
			Amount:       req.Amount,
			BonusPercent: bonusPercent,
			TxRef:        req.TxRef,
			Method:       req.Method,
			Note:         "заявка " + req.ID,
		}
		if err := checkDeposit(in); err != nil {
			return err
		}
		ok, err := tx.ResolveDepositRequest(ctx, id, store.RequestApproved)
		if err != nil {
			return err
		}
		if !ok {
			return common.ErrRequestResolved
		}
		res, err = p.applyDeposit(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	req.Status = store.RequestApproved
	p.logDeposit(DepositInput{Identity: req.Identity, Amount: req.Amount, Method: req.Method, TxRef: req.TxRef}, res)
	return req, res, nil
}

// RejectDeposit отклоняет заявку.
func (p *Processor) RejectDeposit(ctx context.Context, id string) (req *store.DepositRequest, err error) {
	defer p.observe("deposit_reject", time.Now(), &err)

	err = p.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		req, err = loadPending(ctx, tx, id)
		if err != nil {
			return err
		}
		ok, err := tx.ResolveDepositRequest(ctx, id, store.RequestRejected)
		if err != nil {
			return err
		}
		if !ok {
			return common.ErrRequestResolved
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	req.Status = store.RequestRejected
	log.WithFields(log.Fields{"user": req.Identity, "request": req.ID}).Info("Заявка на пополнение отклонена")
	return req, nil
}

// ===== Списание админом =====

// ApplyDeduction списывает сумму с баланса бота.
func (p *Processor) ApplyDeduction(ctx context.Context, identity, amount int64, note string) (a *store.Account, err error) {
	defer p.observe("deduct", time.Now(), &err)
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	err = p.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		a, err = loadAccount(ctx, tx, identity)
		if err != nil {
			return err
		}
		if a.BotBalance < amount {
			return common.ErrInsufficientBalance
		}
		a.BotBalance -= amount
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, &store.Entry{
			Identity: identity,
			Type:     store.EntryAdminDeduct,
			Amount:   amount,
			Note:     note,
		})
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"user": identity, "amount": amount}).Info("Баланс списан администратором")
	return a, nil
}

// ===== Сервисные операции =====

// ResetDailyCounters обнуляет дневные счётчики всех аккаунтов (по расписанию).
func (p *Processor) ResetDailyCounters(ctx context.Context) (int64, error) {
	if p.policy != config.CounterResetDaily {
		return 0, nil
	}
	var n int64
	err := p.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		n, err = tx.ResetDailyCounters(ctx, common.DayKey(tx.Now(), p.loc))
		return err
	})
	return n, err
}

// Account читает аккаунт с применённым переходом дня (без записи).
func (p *Processor) Account(ctx context.Context, identity int64) (*store.Account, error) {
	var a *store.Account
	err := p.store.View(ctx, func(tx *store.Tx) error {
		var err error
		a, err = loadAccount(ctx, tx, identity)
		if err != nil {
			return err
		}
		p.rollover(a, tx.Now())
		return nil
	})
	return a, err
}

// History возвращает последние операции пользователя.
func (p *Processor) History(ctx context.Context, identity int64, limit int) ([]*store.Entry, error) {
	var entries []*store.Entry
	err := p.store.View(ctx, func(tx *store.Tx) error {
		var err error
		entries, err = tx.Entries(ctx, identity, limit)
		return err
	})
	return entries, err
}

// observe учитывает операцию в метриках; err читается в момент выхода.
func (p *Processor) observe(op string, started time.Time, err *error) {
	p.metrics.ObserveLedger(op, *err, started)
}
