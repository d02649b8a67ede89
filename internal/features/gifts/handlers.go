package gifts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/callback"
	"wallet-bot/internal/common"
	"wallet-bot/internal/convo"
	"wallet-bot/internal/features/ledger"
	"wallet-bot/internal/features/menu"
	"wallet-bot/internal/messenger"
)

const (
	stepCode      = "code"
	stepRecipient = "recipient"
	stepAmount    = "amount"
	stepCount     = "count"
	stepConfirm   = "confirm"
)

// Handler — активация кодов, выпуск кодов админом и подарки баланса.
type Handler struct {
	registry *Registry
	ledger   *ledger.Processor
	machine  *convo.Machine
	sink     messenger.Sink
	adminID  int64
}

// NewHandler создаёт обработчик и регистрирует сценарии подарков.
func NewHandler(reg *Registry, proc *ledger.Processor, machine *convo.Machine, sink messenger.Sink, adminID int64) *Handler {
	h := &Handler{registry: reg, ledger: proc, machine: machine, sink: sink, adminID: adminID}
	machine.Register(convo.FlowGiftRedeem, h.stepRedeem)
	machine.Register(convo.FlowGiftGenerate, h.stepGenerate)
	machine.Register(convo.FlowGiftSend, h.stepSend)
	return h
}

// FormatCodes — список кодов для сообщения админу.
func FormatCodes(codes []string, value int64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎁 Выпущено %d %s номиналом %s:\n\n",
		len(codes), common.PluralizeCodes(int64(len(codes))), common.FormatAmount(value))
	for _, c := range codes {
		sb.WriteString("<code>" + c + "</code>\n")
	}
	return sb.String()
}

// ===== Активация кода =====

// HandleRedeem начинает ввод подарочного кода.
func (h *Handler) HandleRedeem(ctx context.Context, ev *messenger.Event) {
	if !h.registered(ctx, ev) {
		return
	}
	h.begin(ctx, ev, convo.FlowGiftRedeem, stepCode, convo.Scratch{}, "🎁 Введите подарочный код:")
}

func (h *Handler) stepRedeem(ctx context.Context, ev *messenger.Event, _ *convo.State) convo.Result {
	res, err := h.registry.Redeem(ctx, ev.Text, ev.Identity)
	switch {
	case common.IsValidation(err):
		h.send(ctx, messenger.Text(ev.ChatID, "❌ Введите код."))
		return convo.Stay
	case errors.Is(err, common.ErrGiftCodeNotFound):
		h.send(ctx, messenger.Message{ChatID: ev.ChatID, Text: "❌ Такого кода не существует.", Keyboard: menu.Back()})
		return convo.Done
	case errors.Is(err, common.ErrGiftCodeUsed):
		h.send(ctx, messenger.Message{ChatID: ev.ChatID, Text: "❌ Этот код уже использован.", Keyboard: menu.Back()})
		return convo.Done
	case err != nil:
		h.fail(ctx, ev, err, "gift_redeem")
		return convo.Done
	}

	h.send(ctx, messenger.Message{
		ChatID: ev.ChatID,
		Text: fmt.Sprintf("✅ Код активирован! Зачислено %s.\n\n💰 Баланс: %s",
			common.FormatAmount(res.Value), common.FormatAmount(res.Account.BotBalance)),
		Keyboard: menu.Back(),
	})
	h.send(ctx, messenger.Text(h.adminID, fmt.Sprintf("🎁 %s (ID <code>%d</code>) активировал код <code>%s</code> на %s",
		common.Escape(ev.DisplayName()), ev.Identity, res.Code, common.FormatAmount(res.Value))))
	return convo.Done
}

// ===== Выпуск кодов админом =====

// HandleGenerate — кнопка админа «выпустить коды».
func (h *Handler) HandleGenerate(ctx context.Context, ev *messenger.Event) {
	h.begin(ctx, ev, convo.FlowGiftGenerate, stepAmount, convo.Scratch{}, "Введите номинал кода:")
}

func (h *Handler) stepGenerate(ctx context.Context, ev *messenger.Event, st *convo.State) convo.Result {
	switch st.Step {
	case stepAmount:
		amount, err := common.ParseAmount(ev.Text)
		if err != nil {
			h.send(ctx, messenger.Text(ev.ChatID, "❌ Введите целое число больше нуля."))
			return convo.Stay
		}
		if amount > ledger.MaxAmount {
			h.send(ctx, messenger.Text(ev.ChatID, "❌ Слишком большой номинал."))
			return convo.Stay
		}
		st.Scratch.Amount = amount
		st.Step = stepCount
		h.send(ctx, messenger.Text(ev.ChatID, fmt.Sprintf("Сколько кодов выпустить? (1-%d)", MaxCount)))
		return convo.Advance

	case stepCount:
		count, err := strconv.Atoi(strings.TrimSpace(ev.Text))
		if err != nil || count < 1 || count > MaxCount {
			h.send(ctx, messenger.Text(ev.ChatID, fmt.Sprintf("❌ Введите число от 1 до %d.", MaxCount)))
			return convo.Stay
		}
		codes, err := h.registry.Generate(ctx, ev.Identity, st.Scratch.Amount, count)
		if err != nil {
			h.fail(ctx, ev, err, "gift_generate")
			return convo.Done
		}
		h.send(ctx, messenger.Text(ev.ChatID, FormatCodes(codes, st.Scratch.Amount)))
		return convo.Done
	}
	return convo.Done
}

// ===== Подарок баланса =====

// HandleSend начинает подарок баланса другому пользователю.
func (h *Handler) HandleSend(ctx context.Context, ev *messenger.Event) {
	if !h.registered(ctx, ev) {
		return
	}
	text := fmt.Sprintf("🎀 Подарок баланса\n\nКомиссия: %s за первый подарок в день, дальше %s.\n\nВведите ID получателя:",
		ledger.FormatRate(ledger.QuoteGiftTiers.First), ledger.FormatRate(ledger.QuoteGiftTiers.Repeat))
	h.begin(ctx, ev, convo.FlowGiftSend, stepRecipient, convo.Scratch{}, text)
}

func (h *Handler) stepSend(ctx context.Context, ev *messenger.Event, st *convo.State) convo.Result {
	switch st.Step {
	case stepRecipient:
		id, err := strconv.ParseInt(strings.TrimSpace(ev.Text), 10, 64)
		if err != nil || id <= 0 {
			h.send(ctx, messenger.Text(ev.ChatID, "❌ ID должен быть числом."))
			return convo.Stay
		}
		if id == ev.Identity {
			h.send(ctx, messenger.Text(ev.ChatID, "❌ Нельзя подарить баланс самому себе. Введите другой ID:"))
			return convo.Stay
		}
		if _, err := h.ledger.Account(ctx, id); errors.Is(err, common.ErrAccountNotFound) {
			h.send(ctx, messenger.Text(ev.ChatID, "❌ Пользователь с таким ID не зарегистрирован. Введите другой ID:"))
			return convo.Stay
		} else if err != nil {
			h.fail(ctx, ev, err, "gift_send")
			return convo.Done
		}
		st.Scratch.Recipient = id
		st.Step = stepAmount
		h.send(ctx, messenger.Text(ev.ChatID, "Введите сумму подарка:"))
		return convo.Advance

	case stepAmount:
		amount, err := common.ParseAmount(ev.Text)
		if err != nil {
			h.send(ctx, messenger.Text(ev.ChatID, "❌ Введите целое число больше нуля."))
			return convo.Stay
		}
		q, err := h.ledger.QuoteGift(ctx, ev.Identity, amount, ledger.QuoteGiftTiers)
		if err != nil {
			h.fail(ctx, ev, err, "gift_send")
			return convo.Done
		}
		a, err := h.ledger.Account(ctx, ev.Identity)
		if err != nil {
			h.fail(ctx, ev, err, "gift_send")
			return convo.Done
		}
		if a.BotBalance < q.Total {
			h.send(ctx, messenger.Text(ev.ChatID, fmt.Sprintf("❌ Недостаточно средств: нужно %s с комиссией, на балансе %s. Введите другую сумму:",
				common.FormatAmount(q.Total), common.FormatAmount(a.BotBalance))))
			return convo.Stay
		}

		st.Scratch.Amount = amount
		st.Scratch.Commission = q.Commission
		st.Scratch.RateBps = q.RateBps
		st.Step = stepConfirm
		text := fmt.Sprintf("🎀 Подтвердите подарок\n\nПолучатель: <code>%d</code>\nСумма: %s\nКомиссия (%s): %s\nСпишется: <b>%s</b>",
			st.Scratch.Recipient, common.FormatAmount(amount), ledger.FormatRate(q.RateBps),
			common.FormatAmount(q.Commission), common.FormatAmount(q.Total))
		h.send(ctx, messenger.Message{ChatID: ev.ChatID, Text: text, Keyboard: menu.ConfirmCancel(callback.GiftConfirm)})
		return convo.Advance

	case stepConfirm:
		h.send(ctx, messenger.Text(ev.ChatID, "Нажмите «Подтвердить» или «Отмена»."))
		return convo.Stay
	}
	return convo.Done
}

// HandleConfirm проводит подарок после нажатия «Подтвердить».
func (h *Handler) HandleConfirm(ctx context.Context, ev *messenger.Event) {
	st, err := h.machine.Confirm(ctx, ev.Identity, stepConfirm, convo.FlowGiftSend)
	if errors.Is(err, convo.ErrExpired) {
		h.send(ctx, messenger.Reply(ev, "⌛ Операция устарела, начните заново.", menu.Back()))
		return
	}
	if err != nil {
		h.fail(ctx, ev, err, "gift_confirm")
		return
	}
	// Дальше сценарий не нужен при любом исходе
	if err := h.machine.Cancel(ctx, ev.Identity); err != nil {
		log.WithError(err).WithField("user", ev.Identity).Warn("Не удалось сбросить сценарий")
	}

	res, err := h.ledger.SettleGift(ctx, ev.Identity, st.Scratch.Recipient, st.Scratch.Amount)
	switch {
	case errors.Is(err, common.ErrInsufficientBalance):
		h.send(ctx, messenger.Reply(ev, "❌ Недостаточно средств для подарка с комиссией.", menu.Back()))
		return
	case errors.Is(err, common.ErrAccountNotFound):
		h.send(ctx, messenger.Reply(ev, "❌ Получатель не найден.", menu.Back()))
		return
	case err != nil:
		h.fail(ctx, ev, err, "gift_confirm")
		return
	}

	h.send(ctx, messenger.Reply(ev, fmt.Sprintf("✅ Подарок отправлен!\n\nПолучатель: <code>%d</code>\nСумма: %s\nКомиссия: %s\n💰 Баланс: %s",
		res.Recipient.Identity, common.FormatAmount(res.Amount), common.FormatAmount(res.Commission),
		common.FormatAmount(res.Sender.BotBalance)), menu.Back()))
	h.send(ctx, messenger.Text(res.Recipient.Identity, fmt.Sprintf("🎀 Вам подарили %s от пользователя <code>%d</code>!\n\n💰 Баланс: %s",
		common.FormatAmount(res.Amount), ev.Identity, common.FormatAmount(res.Recipient.BotBalance))))
}

// ===== Помощники =====

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

func (h *Handler) begin(ctx context.Context, ev *messenger.Event, flow convo.Flow, step string, scratch convo.Scratch, prompt string) {
	if err := h.machine.Begin(ctx, ev.Identity, flow, step, scratch); err != nil {
		h.fail(ctx, ev, err, string(flow))
		return
	}
	h.send(ctx, messenger.Reply(ev, prompt, menu.CancelOnly()))
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
