package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/callback"
	"wallet-bot/internal/common"
	"wallet-bot/internal/convo"
	"wallet-bot/internal/features/ledger"
	"wallet-bot/internal/features/menu"
	"wallet-bot/internal/features/referral"
	"wallet-bot/internal/messenger"
	"wallet-bot/internal/store"
)

// Шаги сценариев аккаунта.
const (
	stepName   = "name"
	stepSecret = "secret"
	stepAmount = "amount"
)

// Gate — проверка обязательной подписки на канал.
type Gate interface {
	Channel() string
	Subscribed(ctx context.Context, identity int64) bool
}

// Handler обрабатывает регистрацию, главное меню и раздел Ichancy.
type Handler struct {
	registry  *Registry
	ledger    *ledger.Processor
	machine   *convo.Machine
	sink      messenger.Sink
	gate      Gate
	adminID   int64
	frameStep time.Duration
}

// NewHandler создаёт обработчик и регистрирует его сценарии в машине.
// gate == nil — подписка не проверяется. animate включает «анимацию» создания аккаунта.
func NewHandler(reg *Registry, proc *ledger.Processor, machine *convo.Machine, sink messenger.Sink, gate Gate, adminID int64, animate bool) *Handler {
	h := &Handler{
		registry: reg,
		ledger:   proc,
		machine:  machine,
		sink:     sink,
		gate:     gate,
		adminID:  adminID,
	}
	if animate {
		h.frameStep = 700 * time.Millisecond
	}

	machine.Register(convo.FlowCredentialSet, h.stepCredentials)
	machine.Register(convo.FlowExternalDeposit, h.stepExternal(ledger.ToExternal))
	machine.Register(convo.FlowExternalWithdraw, h.stepExternal(ledger.FromExternal))
	return h
}

// subscribed проверяет подписку и при её отсутствии показывает приглашение.
func (h *Handler) subscribed(ctx context.Context, ev *messenger.Event) bool {
	if h.gate == nil || h.gate.Subscribed(ctx, ev.Identity) {
		return true
	}
	text, kb := menu.Subscribe(h.gate.Channel())
	h.send(ctx, messenger.Reply(ev, text, kb))
	return false
}

// HandleStart — /start [ref_<id>].
func (h *Handler) HandleStart(ctx context.Context, ev *messenger.Event) {
	h.cancelFlow(ctx, ev.Identity)
	if !h.subscribed(ctx, ev) {
		return
	}

	a, err := h.registry.FindByIdentity(ctx, ev.Identity)
	if err == nil {
		h.send(ctx, messenger.Reply(ev, menu.MainText(a), menu.Main()))
		return
	}
	if !errors.Is(err, common.ErrAccountNotFound) {
		h.fail(ctx, ev, err, "start")
		return
	}

	var referrer int64
	if len(ev.Args) > 0 {
		if id, ok := referral.ParseStartToken(ev.Args[0]); ok {
			referrer = id
		}
	}
	text := fmt.Sprintf("👋 Добро пожаловать, %s!\n\nЭто кошелёк для Ichancy: пополнение, вывод, подарки и реферальная программа.\n\n%s",
		common.Escape(ev.DisplayName()), menu.NotRegistered)
	h.send(ctx, messenger.Reply(ev, text, menu.CreateAccount(referrer)))
}

// HandleCheckSub — повторная проверка подписки.
func (h *Handler) HandleCheckSub(ctx context.Context, ev *messenger.Event) {
	h.HandleStart(ctx, ev)
}

// HandleMainMenu показывает главное меню и сбрасывает сценарий.
func (h *Handler) HandleMainMenu(ctx context.Context, ev *messenger.Event) {
	h.cancelFlow(ctx, ev.Identity)
	a, ok := h.account(ctx, ev)
	if !ok {
		return
	}
	h.send(ctx, messenger.Reply(ev, menu.MainText(a), menu.Main()))
}

// HandleCancel отменяет текущий сценарий.
func (h *Handler) HandleCancel(ctx context.Context, ev *messenger.Event) {
	h.cancelFlow(ctx, ev.Identity)
	h.send(ctx, messenger.Reply(ev, "Операция отменена ❌", menu.Back()))
}

// HandleCreateAccount выдаёт пользователю учётку из пула.
func (h *Handler) HandleCreateAccount(ctx context.Context, ev *messenger.Event) {
	if !h.subscribed(ctx, ev) {
		return
	}

	a, err := h.registry.Register(ctx, ev.Identity, ev.Payload.User)
	switch {
	case errors.Is(err, common.ErrAlreadyRegistered):
		a, err = h.registry.FindByIdentity(ctx, ev.Identity)
		if err != nil {
			h.fail(ctx, ev, err, "create_account")
			return
		}
		h.send(ctx, messenger.Reply(ev, "У вас уже есть аккаунт ✅\n\n"+menu.MainText(a), menu.Main()))
		return
	case errors.Is(err, common.ErrNoCredentialsAvailable):
		h.send(ctx, messenger.Reply(ev, "⏳ Сервер сейчас занят. Попробуйте снова через 5 минут.", nil))
		h.notifyNoCredentials(ctx, ev)
		return
	case err != nil:
		h.fail(ctx, ev, err, "create_account")
		return
	}

	// Анимация идёт уже после фиксации, без блокировки хранилища
	h.animate(ctx, ev.ChatID)

	h.send(ctx, messenger.Message{
		ChatID:   ev.ChatID,
		Text:     credentialsText("✅ Аккаунт создан!", a),
		Keyboard: messenger.Keyboard{messenger.Row(messenger.Btn("Продолжить ✅", callback.Of(callback.MainMenu)))},
	})
	if a.ReferredBy != nil {
		h.send(ctx, messenger.Text(*a.ReferredBy,
			fmt.Sprintf("👥 По вашей ссылке зарегистрировался новый пользователь (ID <code>%d</code>).", a.Identity)))
	}
}

func (h *Handler) notifyNoCredentials(ctx context.Context, ev *messenger.Event) {
	log.WithField("user", ev.Identity).Warn("Пул учёток пуст, регистрация отклонена")
	text := fmt.Sprintf("⚠️ Закончились готовые учётки.\n\nПользователь %s (ID <code>%d</code>) ждёт регистрации.",
		common.Escape(ev.DisplayName()), ev.Identity)
	kb := messenger.Keyboard{messenger.Row(messenger.Btn("Задать данные ⚙️",
		callback.Payload{Action: callback.SetCredentials, User: ev.Identity}))}
	h.send(ctx, messenger.Message{ChatID: h.adminID, Text: text, Keyboard: kb})
}

func (h *Handler) animate(ctx context.Context, chatID int64) {
	if h.frameStep <= 0 {
		return
	}
	frames := []string{
		"⏳ Создаём аккаунт...\n▱▱▱▱▱ 0%",
		"⏳ Создаём аккаунт...\n▰▰▱▱▱ 40%",
		"⏳ Создаём аккаунт...\n▰▰▰▰▱ 80%",
		"⏳ Создаём аккаунт...\n▰▰▰▰▰ 100%",
	}
	id, err := h.sink.Send(ctx, messenger.Text(chatID, frames[0]))
	if err != nil {
		return
	}
	for _, f := range frames[1:] {
		select {
		case <-ctx.Done():
			return
		case <-time.After(h.frameStep):
		}
		h.send(ctx, messenger.Message{ChatID: chatID, Text: f, EditMessageID: id})
	}
}

func credentialsText(title string, a *store.Account) string {
	return fmt.Sprintf("%s\n\n👤 Логин: <code>%s</code>\n🔑 Пароль: <code>%s</code>",
		title, common.Escape(a.CredentialName), common.Escape(a.CredentialSecret))
}

// ===== Ichancy =====

// HandleIchancy — меню внешней платформы.
func (h *Handler) HandleIchancy(ctx context.Context, ev *messenger.Event) {
	if _, ok := h.account(ctx, ev); !ok {
		return
	}
	kb := messenger.Keyboard{
		messenger.Row(messenger.Btn("Мой аккаунт 👤", callback.Of(callback.IchancyInfo))),
		messenger.Row(
			messenger.Btn("Пополнить Ichancy ⬆️", callback.Of(callback.IchancyDeposit)),
			messenger.Btn("Вывести с Ichancy ⬇️", callback.Of(callback.IchancyWithdraw)),
		),
		messenger.Row(messenger.Btn("⬅️ В меню", callback.Of(callback.MainMenu))),
	}
	h.send(ctx, messenger.Reply(ev, "⚡ Ichancy", kb))
}

// HandleIchancyInfo показывает учётку и баланс на внешней платформе.
func (h *Handler) HandleIchancyInfo(ctx context.Context, ev *messenger.Event) {
	a, ok := h.account(ctx, ev)
	if !ok {
		return
	}
	text := credentialsText("👤 Ваш аккаунт Ichancy", a) +
		fmt.Sprintf("\n💳 Баланс Ichancy: <b>%s</b>", common.FormatAmount(a.ExternalBalance))
	h.send(ctx, messenger.Reply(ev, text, menu.Back()))
}

// HandleIchancyDeposit начинает перевод с баланса бота на Ichancy.
func (h *Handler) HandleIchancyDeposit(ctx context.Context, ev *messenger.Event) {
	h.beginExternal(ctx, ev, convo.FlowExternalDeposit,
		"Введите сумму для пополнения Ichancy (минимум %s):")
}

// HandleIchancyWithdraw начинает перевод с Ichancy на баланс бота.
func (h *Handler) HandleIchancyWithdraw(ctx context.Context, ev *messenger.Event) {
	h.beginExternal(ctx, ev, convo.FlowExternalWithdraw,
		"Введите сумму для вывода с Ichancy (минимум %s):")
}

func (h *Handler) beginExternal(ctx context.Context, ev *messenger.Event, flow convo.Flow, prompt string) {
	if _, ok := h.account(ctx, ev); !ok {
		return
	}
	if err := h.machine.Begin(ctx, ev.Identity, flow, stepAmount, convo.Scratch{}); err != nil {
		h.fail(ctx, ev, err, string(flow))
		return
	}
	h.send(ctx, messenger.Reply(ev, fmt.Sprintf(prompt, common.FormatAmount(ledger.MinInternalTransfer)), menu.CancelOnly()))
}

func (h *Handler) stepExternal(dir ledger.Direction) convo.StepFunc {
	return func(ctx context.Context, ev *messenger.Event, st *convo.State) convo.Result {
		amount, err := common.ParseAmount(ev.Text)
		if err != nil {
			h.send(ctx, messenger.Text(ev.ChatID, "❌ Введите целое число больше нуля."))
			return convo.Stay
		}

		a, err := h.ledger.ApplyInternalTransfer(ctx, ev.Identity, dir, amount)
		var ve *common.ValidationError
		switch {
		case errors.As(err, &ve):
			h.send(ctx, messenger.Text(ev.ChatID, "❌ "+ve.Reason))
			return convo.Stay
		case errors.Is(err, common.ErrInsufficientBalance):
			msg := "❌ Недостаточно средств на балансе бота."
			if dir == ledger.FromExternal {
				msg = "❌ Недостаточно средств на балансе Ichancy."
			}
			h.send(ctx, messenger.Message{ChatID: ev.ChatID, Text: msg, Keyboard: menu.Back()})
			return convo.Done
		case err != nil:
			h.fail(ctx, ev, err, string(st.Flow))
			return convo.Done
		}

		text := fmt.Sprintf("✅ Ichancy пополнен на %s", common.FormatAmount(amount))
		if dir == ledger.FromExternal {
			text = fmt.Sprintf("✅ С Ichancy выведено %s", common.FormatAmount(amount))
		}
		text += fmt.Sprintf("\n\n💰 Баланс в боте: %s\n💳 Баланс Ichancy: %s",
			common.FormatAmount(a.BotBalance), common.FormatAmount(a.ExternalBalance))
		h.send(ctx, messenger.Message{ChatID: ev.ChatID, Text: text, Keyboard: menu.Back()})
		return convo.Done
	}
}

// ===== Назначение учётки админом =====

// HandleSetCredentials — кнопка админа «задать данные» для пользователя.
func (h *Handler) HandleSetCredentials(ctx context.Context, ev *messenger.Event) {
	target := ev.Payload.User
	if target == 0 {
		return
	}
	if err := h.machine.Begin(ctx, ev.Identity, convo.FlowCredentialSet, stepName, convo.Scratch{Target: target}); err != nil {
		h.fail(ctx, ev, err, "set_credentials")
		return
	}
	h.send(ctx, messenger.Message{
		ChatID:   ev.ChatID,
		Text:     fmt.Sprintf("Введите логин для пользователя <code>%d</code>:", target),
		Keyboard: menu.CancelOnly(),
	})
}

func (h *Handler) stepCredentials(ctx context.Context, ev *messenger.Event, st *convo.State) convo.Result {
	input := strings.TrimSpace(ev.Text)
	if input == "" || strings.ContainsAny(input, " \n\t") {
		h.send(ctx, messenger.Text(ev.ChatID, "❌ Значение не должно быть пустым или содержать пробелы."))
		return convo.Stay
	}

	switch st.Step {
	case stepName:
		st.Scratch.Name = input
		st.Step = stepSecret
		h.send(ctx, messenger.Text(ev.ChatID, "Введите пароль:"))
		return convo.Advance

	case stepSecret:
		target := st.Scratch.Target
		created, err := h.registry.SetCredentials(ctx, target, st.Scratch.Name, input)
		if errors.Is(err, common.ErrCredentialTaken) {
			st.Step = stepName
			h.send(ctx, messenger.Text(ev.ChatID, "❌ Этот логин уже занят. Введите другой логин:"))
			return convo.Advance
		}
		if err != nil {
			h.fail(ctx, ev, err, "set_credentials")
			return convo.Done
		}

		a := &store.Account{Identity: target, CredentialName: st.Scratch.Name, CredentialSecret: input}
		h.send(ctx, messenger.Message{
			ChatID:   target,
			Text:     credentialsText("✅ Ваш аккаунт готов!", a),
			Keyboard: messenger.Keyboard{messenger.Row(messenger.Btn("Продолжить ✅", callback.Of(callback.MainMenu)))},
		})
		status := "обновлены"
		if created {
			status = "созданы"
		}
		h.send(ctx, messenger.Text(ev.ChatID, fmt.Sprintf("✅ Данные пользователя <code>%d</code> %s.", target, status)))
		return convo.Done
	}
	return convo.Done
}

// ===== Помощники =====

// account читает аккаунт; если его нет — предлагает зарегистрироваться.
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
