// Package support — обращения в поддержку, ответы админа, контакты и правила.
package support

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/callback"
	"wallet-bot/internal/common"
	"wallet-bot/internal/convo"
	"wallet-bot/internal/features/accounts"
	"wallet-bot/internal/features/menu"
	"wallet-bot/internal/features/settings"
	"wallet-bot/internal/messenger"
)

const (
	stepText = "text"

	maxMessageLen = 3000
)

// Terms — текст правил.
const Terms = `📜 Правила

1. Пополнение зачисляется после проверки администратором.
2. Комиссия вывода: 10% за первый вывод в день, дальше 5%.
3. Комиссия подарка баланса: 5% за первый подарок в день, дальше меньше.
4. Минимальный вывод: Syriatel Cash 20 000, Payeer 40 000.
5. Перевод суммы, отличной от указанной в заявке, не зачисляется.
6. За мошенничество аккаунт блокируется без возврата средств.`

// Handler ведёт обращения в поддержку.
type Handler struct {
	settings *settings.Service
	machine  *convo.Machine
	sink     messenger.Sink
	gate     accounts.Gate
	adminID  int64
}

// NewHandler создаёт обработчик и регистрирует сценарии поддержки.
func NewHandler(svc *settings.Service, machine *convo.Machine, sink messenger.Sink, gate accounts.Gate, adminID int64) *Handler {
	h := &Handler{settings: svc, machine: machine, sink: sink, gate: gate, adminID: adminID}
	machine.Register(convo.FlowSupportMessage, h.stepMessage)
	machine.Register(convo.FlowAdminReply, h.stepReply)
	return h
}

// HandleSupport просит пользователя написать сообщение.
func (h *Handler) HandleSupport(ctx context.Context, ev *messenger.Event) {
	if h.gate != nil && !h.gate.Subscribed(ctx, ev.Identity) {
		text, kb := menu.Subscribe(h.gate.Channel())
		h.send(ctx, messenger.Reply(ev, text, kb))
		return
	}
	if err := h.machine.Begin(ctx, ev.Identity, convo.FlowSupportMessage, stepText, convo.Scratch{}); err != nil {
		h.fail(ctx, ev, err, "support")
		return
	}
	h.send(ctx, messenger.Reply(ev, "📩 Напишите ваше сообщение, администратор ответит здесь же:", menu.CancelOnly()))
}

func (h *Handler) stepMessage(ctx context.Context, ev *messenger.Event, _ *convo.State) convo.Result {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		h.send(ctx, messenger.Text(ev.ChatID, "❌ Сообщение пустое, напишите текст."))
		return convo.Stay
	}
	if len([]rune(text)) > maxMessageLen {
		h.send(ctx, messenger.Text(ev.ChatID, fmt.Sprintf("❌ Слишком длинное сообщение (максимум %d символов).", maxMessageLen)))
		return convo.Stay
	}

	kb := messenger.Keyboard{messenger.Row(
		messenger.Btn("✉️ Ответить", callback.Payload{Action: callback.SupportReply, User: ev.Identity}),
	)}
	h.send(ctx, messenger.Message{
		ChatID: h.adminID,
		Text: fmt.Sprintf("📩 Сообщение от %s (ID <code>%d</code>):\n\n%s",
			common.Escape(ev.DisplayName()), ev.Identity, common.Escape(text)),
		Keyboard: kb,
	})
	log.WithField("user", ev.Identity).Info("Сообщение в поддержку отправлено")

	h.send(ctx, messenger.Message{ChatID: ev.ChatID, Text: "✅ Сообщение отправлено. Ожидайте ответа.", Keyboard: menu.Back()})
	return convo.Done
}

// HandleReply — админ нажал «Ответить».
func (h *Handler) HandleReply(ctx context.Context, ev *messenger.Event) {
	target := ev.Payload.User
	if target == 0 {
		return
	}
	if err := h.machine.Begin(ctx, ev.Identity, convo.FlowAdminReply, stepText, convo.Scratch{Target: target}); err != nil {
		h.fail(ctx, ev, err, "support_reply")
		return
	}
	h.send(ctx, messenger.Message{
		ChatID:   ev.ChatID,
		Text:     fmt.Sprintf("Введите ответ пользователю <code>%d</code>:", target),
		Keyboard: menu.CancelOnly(),
	})
}

func (h *Handler) stepReply(ctx context.Context, ev *messenger.Event, st *convo.State) convo.Result {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		h.send(ctx, messenger.Text(ev.ChatID, "❌ Ответ пустой."))
		return convo.Stay
	}
	target := st.Scratch.Target
	if _, err := h.sink.Send(ctx, messenger.Text(target, "📨 Ответ поддержки:\n\n"+common.Escape(text))); err != nil {
		log.WithError(err).WithField("user", target).Warn("Не удалось доставить ответ поддержки")
		h.send(ctx, messenger.Text(ev.ChatID, "❌ Не удалось доставить ответ. Возможно, пользователь заблокировал бота."))
		return convo.Done
	}
	h.send(ctx, messenger.Text(ev.ChatID, fmt.Sprintf("✅ Ответ отправлен пользователю <code>%d</code>.", target)))
	return convo.Done
}

// HandleContact показывает контакт поддержки.
func (h *Handler) HandleContact(ctx context.Context, ev *messenger.Event) {
	addr, ok, err := h.settings.ContactAddress(ctx)
	if err != nil {
		h.fail(ctx, ev, err, "contact")
		return
	}
	text := "☎️ Контакт поддержки сейчас недоступен."
	if ok {
		text = "☎️ Связь с нами: " + common.Escape(addr)
	}
	h.send(ctx, messenger.Reply(ev, text, menu.Back()))
}

// HandleTerms показывает правила.
func (h *Handler) HandleTerms(ctx context.Context, ev *messenger.Event) {
	h.send(ctx, messenger.Reply(ev, Terms, menu.Back()))
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
