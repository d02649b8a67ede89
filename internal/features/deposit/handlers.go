// Package deposit — пополнение баланса: заявки пользователей по каналам
// и их разбор администратором.
package deposit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	"wallet-bot/internal/callback"
	"wallet-bot/internal/common"
	"wallet-bot/internal/config"
	"wallet-bot/internal/convo"
	"wallet-bot/internal/features/ledger"
	"wallet-bot/internal/features/menu"
	"wallet-bot/internal/features/settings"
	"wallet-bot/internal/messenger"
	"wallet-bot/internal/store"
)

// Способы пополнения в заявках и журнале.
const (
	MethodSyriatel = "syriatel"
	MethodPayeer   = "payeer"
	MethodCwallet  = "cwallet"
	methodUSDT     = "usdt"
)

const (
	stepTxRef   = "tx_ref"
	stepAmount  = "amount"
	stepConfirm = "confirm"
	stepPercent = "percent"

	maxTxRefLen = 64
)

// Handler ведёт сценарии пополнения.
type Handler struct {
	ledger   *ledger.Processor
	settings *settings.Service
	payments *config.Payments
	machine  *convo.Machine
	sink     messenger.Sink
	adminID  int64
}

// NewHandler создаёт обработчик и регистрирует сценарии пополнения.
func NewHandler(proc *ledger.Processor, svc *settings.Service, payments *config.Payments, machine *convo.Machine, sink messenger.Sink, adminID int64) *Handler {
	h := &Handler{
		ledger:   proc,
		settings: svc,
		payments: payments,
		machine:  machine,
		sink:     sink,
		adminID:  adminID,
	}
	machine.Register(convo.FlowDepositSyriatel, h.stepSyriatel)
	machine.Register(convo.FlowDepositPayeer, h.stepUSD(MethodPayeer, payments.Deposit.Payeer.Rate))
	machine.Register(convo.FlowDepositCwallet, h.stepUSD(MethodCwallet, payments.Deposit.Cwallet.Rate))
	machine.Register(convo.FlowDepositUSDT, h.stepUSDT)
	machine.Register(convo.FlowDepositBonus, h.stepBonus)
	return h
}

var maxLocal = decimal.NewFromInt(ledger.MaxAmount)

// ToLocal переводит сумму в USD в валюту бота с округлением вниз.
// Результат больше ledger.MaxAmount отклоняется до перевода в int64.
func ToLocal(usd, rate decimal.Decimal) (int64, error) {
	local := usd.Mul(rate).Floor()
	if local.GreaterThan(maxLocal) {
		return 0, common.Invalid("usd", "слишком большая сумма")
	}
	return local.IntPart(), nil
}

// ParseUSD разбирает положительную сумму в USD; запятая допускается.
func ParseUSD(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, common.Invalid("usd", "введите число, например 10.5")
	}
	if !v.IsPositive() {
		return decimal.Zero, common.Invalid("usd", "сумма должна быть больше нуля")
	}
	return v, nil
}

func parseTxRef(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && utf8.RuneCountInString(s) <= maxTxRefLen
}

// HandleMenu — выбор способа пополнения.
func (h *Handler) HandleMenu(ctx context.Context, ev *messenger.Event) {
	if !h.registered(ctx, ev) {
		return
	}
	kb := messenger.Keyboard{
		messenger.Row(messenger.Btn("Syriatel Cash", callback.Of(callback.DepositSyriatel))),
		messenger.Row(
			messenger.Btn("Payeer", callback.Of(callback.DepositPayeer)),
			messenger.Btn("Cwallet", callback.Of(callback.DepositCwallet)),
		),
		messenger.Row(
			messenger.Btn("USDT", callback.Of(callback.DepositUSDT)),
			messenger.Btn("Sham Cash", callback.Of(callback.DepositSham)),
		),
		messenger.Row(messenger.Btn("⬅️ В меню", callback.Of(callback.MainMenu))),
	}
	h.send(ctx, messenger.Reply(ev, "💰 Выберите способ пополнения:", kb))
}

// ===== Syriatel Cash =====

// HandleSyriatel начинает пополнение через Syriatel Cash.
func (h *Handler) HandleSyriatel(ctx context.Context, ev *messenger.Event) {
	if !h.registered(ctx, ev) {
		return
	}
	addr, ok, err := h.settings.SyriatelAddress(ctx)
	if err != nil {
		h.fail(ctx, ev, err, "deposit_syriatel")
		return
	}
	if !ok {
		h.send(ctx, messenger.Reply(ev, "⛔ Пополнение через Syriatel Cash временно недоступно.", menu.Back()))
		return
	}
	text := fmt.Sprintf("📲 Переведите сумму на номер Syriatel Cash:\n<code>%s</code>\n\nЗатем введите номер операции:",
		common.Escape(addr))
	h.begin(ctx, ev, convo.FlowDepositSyriatel, stepTxRef, text)
}

func (h *Handler) stepSyriatel(ctx context.Context, ev *messenger.Event, st *convo.State) convo.Result {
	switch st.Step {
	case stepTxRef:
		ref, ok := parseTxRef(ev.Text)
		if !ok {
			h.send(ctx, messenger.Text(ev.ChatID, "❌ Введите номер операции."))
			return convo.Stay
		}
		st.Scratch.TxRef = ref
		st.Step = stepAmount
		h.send(ctx, messenger.Text(ev.ChatID, "Введите отправленную сумму:"))
		return convo.Advance

	case stepAmount:
		amount, err := common.ParseAmount(ev.Text)
		if err != nil {
			h.send(ctx, messenger.Text(ev.ChatID, "❌ Введите целое число больше нуля."))
			return convo.Stay
		}
		h.submit(ctx, ev, &store.DepositRequest{
			Identity: ev.Identity,
			Method:   MethodSyriatel,
			Amount:   amount,
			TxRef:    st.Scratch.TxRef,
		})
		return convo.Done
	}
	return convo.Done
}

// ===== Payeer и Cwallet =====

// HandlePayeer начинает пополнение через Payeer.
func (h *Handler) HandlePayeer(ctx context.Context, ev *messenger.Event) {
	h.beginUSD(ctx, ev, convo.FlowDepositPayeer, "Payeer", h.payments.Deposit.Payeer)
}

// HandleCwallet начинает пополнение через Cwallet.
func (h *Handler) HandleCwallet(ctx context.Context, ev *messenger.Event) {
	h.beginUSD(ctx, ev, convo.FlowDepositCwallet, "Cwallet", h.payments.Deposit.Cwallet)
}

func (h *Handler) beginUSD(ctx context.Context, ev *messenger.Event, flow convo.Flow, title string, ch config.Channel) {
	if !h.registered(ctx, ev) {
		return
	}
	text := fmt.Sprintf("💵 Пополнение через %s\n\nАдрес: <code>%s</code>\nКурс: 1 USD = %s\n\nПосле перевода введите номер операции:",
		title, common.Escape(ch.Address), common.FormatAmount(ch.Rate.IntPart()))
	h.begin(ctx, ev, flow, stepTxRef, text)
}

func (h *Handler) stepUSD(method string, rate decimal.Decimal) convo.StepFunc {
	return func(ctx context.Context, ev *messenger.Event, st *convo.State) convo.Result {
		switch st.Step {
		case stepTxRef:
			ref, ok := parseTxRef(ev.Text)
			if !ok {
				h.send(ctx, messenger.Text(ev.ChatID, "❌ Введите номер операции."))
				return convo.Stay
			}
			st.Scratch.TxRef = ref
			st.Step = stepAmount
			h.send(ctx, messenger.Text(ev.ChatID, "Введите отправленную сумму в USD:"))
			return convo.Advance

		case stepAmount:
			usd, err := ParseUSD(ev.Text)
			if err != nil {
				h.send(ctx, messenger.Text(ev.ChatID, "❌ Введите сумму в USD, например 10.5"))
				return convo.Stay
			}
			amount, err := ToLocal(usd, rate)
			if err != nil {
				h.send(ctx, messenger.Text(ev.ChatID, "❌ Слишком большая сумма."))
				return convo.Stay
			}
			if amount <= 0 {
				h.send(ctx, messenger.Text(ev.ChatID, "❌ Слишком маленькая сумма."))
				return convo.Stay
			}
			h.submit(ctx, ev, &store.DepositRequest{
				Identity:  ev.Identity,
				Method:    method,
				Amount:    amount,
				USDAmount: usd.String(),
				TxRef:     st.Scratch.TxRef,
			})
			return convo.Done
		}
		return convo.Done
	}
}

// ===== USDT =====

// HandleUSDT — выбор сети USDT.
func (h *Handler) HandleUSDT(ctx context.Context, ev *messenger.Event) {
	if !h.registered(ctx, ev) {
		return
	}
	var kb messenger.Keyboard
	for _, n := range h.payments.Deposit.USDT.Networks {
		p := callback.Payload{Action: callback.DepositNetwork, Network: n.Name}
		kb = append(kb, messenger.Row(messenger.Btn(n.Title, p)))
	}
	kb = append(kb, messenger.Row(messenger.Btn("⬅️ В меню", callback.Of(callback.MainMenu))))
	h.send(ctx, messenger.Reply(ev, "🪙 Выберите сеть USDT:", kb))
}

// HandleNetwork — сеть выбрана, ждём сумму.
func (h *Handler) HandleNetwork(ctx context.Context, ev *messenger.Event) {
	n, ok := h.payments.Network(ev.Payload.Network)
	if !ok {
		log.WithFields(log.Fields{"user": ev.Identity, "network": ev.Payload.Network}).Warn("Неизвестная сеть USDT")
		h.send(ctx, messenger.Reply(ev, "❌ Эта сеть недоступна.", menu.Back()))
		return
	}
	if err := h.machine.Begin(ctx, ev.Identity, convo.FlowDepositUSDT, stepAmount, convo.Scratch{Network: n.Name}); err != nil {
		h.fail(ctx, ev, err, "deposit_usdt")
		return
	}
	text := fmt.Sprintf("Введите сумму в USDT (%s), минимум %s:", n.Title, n.Min.String())
	h.send(ctx, messenger.Reply(ev, text, menu.CancelOnly()))
}

func (h *Handler) stepUSDT(ctx context.Context, ev *messenger.Event, st *convo.State) convo.Result {
	if st.Step == stepConfirm {
		h.send(ctx, messenger.Text(ev.ChatID, "Нажмите «Подтвердить» или «Отмена»."))
		return convo.Stay
	}

	n, ok := h.payments.Network(st.Scratch.Network)
	if !ok {
		h.send(ctx, messenger.Message{ChatID: ev.ChatID, Text: "❌ Эта сеть недоступна.", Keyboard: menu.Back()})
		return convo.Done
	}
	usd, err := ParseUSD(ev.Text)
	if err != nil {
		h.send(ctx, messenger.Text(ev.ChatID, "❌ Введите сумму, например 10.5"))
		return convo.Stay
	}
	if usd.LessThan(n.Min) {
		h.send(ctx, messenger.Text(ev.ChatID, fmt.Sprintf("❌ Минимальная сумма для %s: %s USDT", n.Title, n.Min.String())))
		return convo.Stay
	}

	amount, err := ToLocal(usd, h.payments.Deposit.USDT.Rate)
	if err != nil {
		h.send(ctx, messenger.Text(ev.ChatID, "❌ Слишком большая сумма."))
		return convo.Stay
	}

	st.Scratch.USDAmount = usd.String()
	st.Scratch.Amount = amount
	st.Scratch.Address = n.Address
	st.Step = stepConfirm
	text := fmt.Sprintf("Сумма к пополнению: <b>%s USDT</b> (%s)\nЗачислится: %s\n\nНачать пополнение?",
		usd.String(), n.Title, common.FormatAmount(st.Scratch.Amount))
	h.send(ctx, messenger.Message{ChatID: ev.ChatID, Text: text, Keyboard: menu.ConfirmCancel(callback.DepositUSDTOK)})
	return convo.Advance
}

// HandleUSDTConfirm выдаёт адрес с QR-кодом и создаёт заявку.
func (h *Handler) HandleUSDTConfirm(ctx context.Context, ev *messenger.Event) {
	st, err := h.machine.Confirm(ctx, ev.Identity, stepConfirm, convo.FlowDepositUSDT)
	if errors.Is(err, convo.ErrExpired) {
		h.send(ctx, messenger.Reply(ev, "⌛ Операция устарела, начните заново.", menu.Back()))
		return
	}
	if err != nil {
		h.fail(ctx, ev, err, "deposit_usdt")
		return
	}
	h.cancelFlow(ctx, ev.Identity)

	sc := st.Scratch
	req := &store.DepositRequest{
		Identity:  ev.Identity,
		Method:    methodUSDT + "-" + sc.Network,
		Amount:    sc.Amount,
		USDAmount: sc.USDAmount,
	}
	if err := h.ledger.SubmitDeposit(ctx, req); err != nil {
		h.fail(ctx, ev, err, "deposit_usdt")
		return
	}

	expiry := h.payments.Deposit.USDT.Expiry
	text := fmt.Sprintf("Переведите ровно <b>%s USDT</b> на адрес:\n<code>%s</code>\n\n⏳ Заявка действует %s. "+
		"Если сумма будет другой или перевод придёт позже, баланс не пополнится.\n\nПосле проверки будет зачислено %s.",
		sc.USDAmount, common.Escape(sc.Address), formatHours(expiry.Hours()), common.FormatAmount(sc.Amount))

	png, err := qrcode.Encode(sc.Address, qrcode.Medium, 256)
	if err != nil {
		log.WithError(err).WithField("user", ev.Identity).Warn("Не удалось построить QR-код")
		h.send(ctx, messenger.Message{ChatID: ev.ChatID, Text: text, Keyboard: menu.Back()})
	} else {
		h.send(ctx, messenger.Message{ChatID: ev.ChatID, Text: text, Photo: png, Keyboard: menu.Back()})
	}
	h.notifyAdmin(ctx, ev, req)
}

func formatHours(h float64) string {
	n := int64(h)
	if float64(n) != h {
		return fmt.Sprintf("%.1f ч", h)
	}
	return fmt.Sprintf("%d %s", n, common.Pluralize(n, "час", "часа", "часов"))
}

// HandleSham — Sham Cash идёт через поддержку.
func (h *Handler) HandleSham(ctx context.Context, ev *messenger.Event) {
	text := "Для пополнения через Sham Cash (USD или SYP) свяжитесь с поддержкой."
	if addr, ok, err := h.settings.ContactAddress(ctx); err == nil && ok {
		text += "\n\n☎️ " + common.Escape(addr)
	}
	h.send(ctx, messenger.Reply(ev, text, menu.Back()))
}

// ===== Общее =====

func (h *Handler) submit(ctx context.Context, ev *messenger.Event, req *store.DepositRequest) {
	if err := h.ledger.SubmitDeposit(ctx, req); err != nil {
		h.fail(ctx, ev, err, "deposit_submit")
		return
	}
	log.WithFields(log.Fields{"user": req.Identity, "request": req.ID, "method": req.Method, "amount": req.Amount}).Info("Заявка на пополнение создана")

	h.send(ctx, messenger.Message{
		ChatID:   ev.ChatID,
		Text:     fmt.Sprintf("✅ Заявка на пополнение %s отправлена. Ожидайте подтверждения.", common.FormatAmount(req.Amount)),
		Keyboard: menu.Back(),
	})
	h.notifyAdmin(ctx, ev, req)
}

func (h *Handler) notifyAdmin(ctx context.Context, ev *messenger.Event, req *store.DepositRequest) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 Новая заявка на пополнение (%s)\n\n", req.Method)
	fmt.Fprintf(&sb, "Пользователь: %s (ID <code>%d</code>)\n", common.Escape(ev.DisplayName()), req.Identity)
	if req.USDAmount != "" {
		fmt.Fprintf(&sb, "Сумма: %s USD\n", req.USDAmount)
	}
	fmt.Fprintf(&sb, "К зачислению: %s\n", common.FormatAmount(req.Amount))
	if req.TxRef != "" {
		fmt.Fprintf(&sb, "Номер операции: <code>%s</code>\n", common.Escape(req.TxRef))
	}
	kb := messenger.Keyboard{messenger.Row(
		messenger.Btn("✅ Одобрить", callback.Payload{Action: callback.ApproveDeposit, Request: req.ID}),
		messenger.Btn("❌ Отклонить", callback.Payload{Action: callback.RejectDeposit, Request: req.ID}),
	)}
	h.send(ctx, messenger.Message{ChatID: h.adminID, Text: sb.String(), Keyboard: kb})
}

func (h *Handler) registered(ctx context.Context, ev *messenger.Event) bool {
	_, err := h.ledger.Account(ctx, ev.Identity)
	if errors.Is(err, common.ErrAccountNotFound) {
		h.send(ctx, messenger.Reply(ev, menu.NotRegistered, menu.CreateAccount(0)))
		return false
	}
	if err != nil {
		h.fail(ctx, ev, err, "account")
		return false
	}
	return true
}

func (h *Handler) begin(ctx context.Context, ev *messenger.Event, flow convo.Flow, step, prompt string) {
	if err := h.machine.Begin(ctx, ev.Identity, flow, step, convo.Scratch{}); err != nil {
		h.fail(ctx, ev, err, string(flow))
		return
	}
	h.send(ctx, messenger.Reply(ev, prompt, menu.CancelOnly()))
}

func (h *Handler) cancelFlow(ctx context.Context, identity int64) {
	if err := h.machine.Cancel(ctx, identity); err != nil {
		log.WithError(err).WithField("user", identity).Warn("Не удалось сбросить сценарий")
	}
}

func (h *Handler) fail(ctx context.Context, ev *messenger.Event, err error, op string) {
	log.WithError(err).WithFields(log.Fields{"user": ev.Identity, "op": op}).Error("Ошибка обработки")
	h.send(ctx, messenger.Text(ev.ChatID, menu.Failure))
}

func (h *Handler) send(ctx context.Context, msg messenger.Message) {
	if _, err := h.sink.Send(ctx, msg); err != nil {
		log.WithError(err).WithField("chat_id", msg.ChatID).Error("Ошибка отправки сообщения")
	}
}
