// Package withdraw — вывод средств на Syriatel Cash и Payeer.
package withdraw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/callback"
	"wallet-bot/internal/common"
	"wallet-bot/internal/convo"
	"wallet-bot/internal/features/ledger"
	"wallet-bot/internal/features/menu"
	"wallet-bot/internal/messenger"
	"wallet-bot/internal/store"
)

const (
	stepAddress = "address"
	stepAmount  = "amount"
	stepConfirm = "confirm"
)

// ValidPhone — номер Syriatel: 10 цифр, начинается с 09.
func ValidPhone(s string) bool {
	if len(s) != 10 || !strings.HasPrefix(s, "09") {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ValidPayeerWallet — кошелёк Payeer: начинается с P, не короче 8 символов.
func ValidPayeerWallet(s string) bool {
	return strings.HasPrefix(s, "P") && len(s) >= 8
}

// channel описывает отличия каналов вывода.
type channel struct {
	ledger ledger.Channel
	flow   convo.Flow
	title  string
	// что просим ввести как адрес
	addressPrompt string
	addressError  string
	valid         func(string) bool
	saved         func(a *store.Account) string
}

var channels = map[ledger.Channel]channel{
	ledger.ChannelSyriatel: {
		ledger:        ledger.ChannelSyriatel,
		flow:          convo.FlowWithdrawSyriatel,
		title:         "Syriatel Cash",
		addressPrompt: "Введите номер Syriatel Cash (10 цифр, начинается с 09):",
		addressError:  "❌ Неверный номер. Нужно 10 цифр, начиная с 09.",
		valid:         ValidPhone,
		saved:         func(a *store.Account) string { return a.PhoneNumber },
	},
	ledger.ChannelPayeer: {
		ledger:        ledger.ChannelPayeer,
		flow:          convo.FlowWithdrawPayeer,
		title:         "Payeer",
		addressPrompt: "Введите номер кошелька Payeer (начинается с P):",
		addressError:  "❌ Неверный кошелёк. Номер начинается с P и содержит не меньше 8 символов.",
		valid:         ValidPayeerWallet,
		saved:         func(a *store.Account) string { return a.PayeerWallet },
	},
}

func channelOf(flow convo.Flow) (channel, bool) {
	for _, ch := range channels {
		if ch.flow == flow {
			return ch, true
		}
	}
	return channel{}, false
}

// Handler ведёт сценарии вывода.
type Handler struct {
	ledger     *ledger.Processor
	machine    *convo.Machine
	sink       messenger.Sink
	adminID    int64
	payeerRate decimal.Decimal
}

// NewHandler создаёт обработчик. payeerRate — курс для оценки вывода в USD.
func NewHandler(proc *ledger.Processor, machine *convo.Machine, sink messenger.Sink, adminID int64, payeerRate decimal.Decimal) *Handler {
	h := &Handler{ledger: proc, machine: machine, sink: sink, adminID: adminID, payeerRate: payeerRate}
	machine.Register(convo.FlowWithdrawSyriatel, h.step)
	machine.Register(convo.FlowWithdrawPayeer, h.step)
	return h
}

// HandleMenu — выбор способа вывода.
func (h *Handler) HandleMenu(ctx context.Context, ev *messenger.Event) {
	if _, ok := h.account(ctx, ev); !ok {
		return
	}
	text := fmt.Sprintf("💸 Вывод средств\n\nКомиссия: %s за первый вывод в день, дальше %s.",
		ledger.FormatRate(ledger.WithdrawalTiers.First), ledger.FormatRate(ledger.WithdrawalTiers.Repeat))
	kb := messenger.Keyboard{
		messenger.Row(
			messenger.Btn("Syriatel Cash", callback.Of(callback.WithdrawSyriatel)),
			messenger.Btn("Payeer", callback.Of(callback.WithdrawPayeer)),
		),
		messenger.Row(
			messenger.Btn("USDT", callback.Of(callback.WithdrawUSDT)),
			messenger.Btn("Bemo", callback.Of(callback.WithdrawBemo)),
		),
		messenger.Row(messenger.Btn("⬅️ В меню", callback.Of(callback.MainMenu))),
	}
	h.send(ctx, messenger.Reply(ev, text, kb))
}

// HandleSyriatel начинает вывод на Syriatel Cash.
func (h *Handler) HandleSyriatel(ctx context.Context, ev *messenger.Event) {
	h.begin(ctx, ev, channels[ledger.ChannelSyriatel])
}

// HandlePayeer начинает вывод на Payeer.
func (h *Handler) HandlePayeer(ctx context.Context, ev *messenger.Event) {
	h.begin(ctx, ev, channels[ledger.ChannelPayeer])
}

// HandleUSDT — вывод в USDT только через поддержку.
func (h *Handler) HandleUSDT(ctx context.Context, ev *messenger.Event) {
	h.send(ctx, messenger.Reply(ev, "Для вывода в USDT свяжитесь с поддержкой.", menu.Back()))
}

// HandleBemo — канал выключен.
func (h *Handler) HandleBemo(ctx context.Context, ev *messenger.Event) {
	h.send(ctx, messenger.Reply(ev, "⛔ Вывод через Bemo временно недоступен.", menu.Back()))
}

// begin пропускает шаг адреса, если адрес уже сохранён.
func (h *Handler) begin(ctx context.Context, ev *messenger.Event, ch channel) {
	a, ok := h.account(ctx, ev)
	if !ok {
		return
	}

	step, prompt := stepAddress, ch.addressPrompt
	scratch := convo.Scratch{}
	if addr := ch.saved(a); addr != "" {
		step = stepAmount
		scratch.Address = addr
		prompt = fmt.Sprintf("Вывод на %s <code>%s</code>\n\n%s", ch.title, common.Escape(addr), amountPrompt(ch, a))
	}
	if err := h.machine.Begin(ctx, ev.Identity, ch.flow, step, scratch); err != nil {
		h.fail(ctx, ev, err, string(ch.flow))
		return
	}
	h.send(ctx, messenger.Reply(ev, prompt, menu.CancelOnly()))
}

func amountPrompt(ch channel, a *store.Account) string {
	return fmt.Sprintf("💰 Баланс: %s\nВведите сумму вывода (минимум %s):",
		common.FormatAmount(a.BotBalance), common.FormatAmount(ledger.MinWithdrawal(ch.ledger)))
}

func (h *Handler) step(ctx context.Context, ev *messenger.Event, st *convo.State) convo.Result {
	ch, ok := channelOf(st.Flow)
	if !ok {
		return convo.Done
	}

	switch st.Step {
	case stepAddress:
		addr := strings.TrimSpace(ev.Text)
		if !ch.valid(addr) {
			h.send(ctx, messenger.Text(ev.ChatID, ch.addressError))
			return convo.Stay
		}
		a, ok := h.account(ctx, ev)
		if !ok {
			return convo.Done
		}
		st.Scratch.Address = addr
		st.Step = stepAmount
		h.send(ctx, messenger.Text(ev.ChatID, amountPrompt(ch, a)))
		return convo.Advance

	case stepAmount:
		amount, err := common.ParseAmount(ev.Text)
		if err != nil {
			h.send(ctx, messenger.Text(ev.ChatID, "❌ Введите целое число больше нуля."))
			return convo.Stay
		}
		q, err := h.ledger.QuoteWithdrawal(ctx, ev.Identity, ch.ledger, amount)
		var ve *common.ValidationError
		if errors.As(err, &ve) {
			h.send(ctx, messenger.Text(ev.ChatID, "❌ "+ve.Reason))
			return convo.Stay
		}
		if err != nil {
			h.fail(ctx, ev, err, string(st.Flow))
			return convo.Done
		}

		st.Scratch.Amount = q.Amount
		st.Scratch.Commission = q.Commission
		st.Scratch.Net = q.Net
		st.Scratch.RateBps = q.RateBps
		st.Step = stepConfirm
		h.send(ctx, messenger.Message{
			ChatID:   ev.ChatID,
			Text:     h.quoteText(ch, st.Scratch),
			Keyboard: menu.ConfirmCancel(callback.WithdrawConfirm),
		})
		return convo.Advance

	case stepConfirm:
		h.send(ctx, messenger.Text(ev.ChatID, "Нажмите «Подтвердить» или «Отмена»."))
		return convo.Stay
	}
	return convo.Done
}

func (h *Handler) quoteText(ch channel, sc convo.Scratch) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "💸 Подтвердите вывод на %s\n\n", ch.title)
	fmt.Fprintf(&sb, "Адрес: <code>%s</code>\n", common.Escape(sc.Address))
	fmt.Fprintf(&sb, "Сумма: %s\n", common.FormatAmount(sc.Amount))
	fmt.Fprintf(&sb, "Комиссия (%s): %s\n", ledger.FormatRate(sc.RateBps), common.FormatAmount(sc.Commission))
	fmt.Fprintf(&sb, "К получению: <b>%s</b>", common.FormatAmount(sc.Net))
	if ch.ledger == ledger.ChannelPayeer {
		fmt.Fprintf(&sb, " (≈ %s USD)", h.usdEstimate(sc.Net))
	}
	return sb.String()
}

// usdEstimate — net / курс Payeer, два знака.
func (h *Handler) usdEstimate(net int64) string {
	if !h.payeerRate.IsPositive() {
		return "?"
	}
	return decimal.NewFromInt(net).Div(h.payeerRate).StringFixed(2)
}

// HandleConfirm проводит вывод по снимку расчёта.
func (h *Handler) HandleConfirm(ctx context.Context, ev *messenger.Event) {
	st, err := h.machine.Confirm(ctx, ev.Identity, stepConfirm, convo.FlowWithdrawSyriatel, convo.FlowWithdrawPayeer)
	if errors.Is(err, convo.ErrExpired) {
		h.send(ctx, messenger.Reply(ev, "⌛ Операция устарела, начните заново.", menu.Back()))
		return
	}
	if err != nil {
		h.fail(ctx, ev, err, "withdraw_confirm")
		return
	}
	if err := h.machine.Cancel(ctx, ev.Identity); err != nil {
		log.WithError(err).WithField("user", ev.Identity).Warn("Не удалось сбросить сценарий")
	}
	ch, _ := channelOf(st.Flow)
	sc := st.Scratch

	a, err := h.ledger.ApplyWithdrawal(ctx, ledger.WithdrawalInput{
		Identity:      ev.Identity,
		Channel:       ch.ledger,
		Amount:        sc.Amount,
		Commission:    sc.Commission,
		Net:           sc.Net,
		PayoutAddress: sc.Address,
	})
	if errors.Is(err, common.ErrInsufficientBalance) {
		h.send(ctx, messenger.Reply(ev, "❌ Недостаточно средств на балансе.", menu.Back()))
		return
	}
	if err != nil {
		h.fail(ctx, ev, err, "withdraw_confirm")
		return
	}

	h.send(ctx, messenger.Reply(ev, fmt.Sprintf("✅ Заявка на вывод %s принята. К получению: %s.\n\n💰 Баланс: %s",
		common.FormatAmount(sc.Amount), common.FormatAmount(sc.Net), common.FormatAmount(a.BotBalance)), menu.Back()))

	var sb strings.Builder
	fmt.Fprintf(&sb, "💸 Новая заявка на вывод (%s)\n\n", ch.title)
	fmt.Fprintf(&sb, "Пользователь: %s (ID <code>%d</code>)\n", common.Escape(ev.DisplayName()), ev.Identity)
	fmt.Fprintf(&sb, "Адрес: <code>%s</code>\n", common.Escape(sc.Address))
	fmt.Fprintf(&sb, "Сумма: %s\nКомиссия: %s\n", common.FormatAmount(sc.Amount), common.FormatAmount(sc.Commission))
	fmt.Fprintf(&sb, "К выплате: <b>%s</b>", common.FormatAmount(sc.Net))
	if ch.ledger == ledger.ChannelPayeer {
		fmt.Fprintf(&sb, " (≈ %s USD)", h.usdEstimate(sc.Net))
	}
	h.send(ctx, messenger.Text(h.adminID, sb.String()))
}

// ===== Помощники =====

func (h *Handler) account(ctx context.Context, ev *messenger.Event) (*store.Account, bool) {
	a, err := h.ledger.Account(ctx, ev.Identity)
	if errors.Is(err, common.ErrAccountNotFound) {
		h.send(ctx, messenger.Reply(ev, menu.NotRegistered, menu.CreateAccount(0)))
		return nil, false
	}
	if err != nil {
		h.fail(ctx, ev, err, "account")
		return nil, false
	}
	return a, true
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
