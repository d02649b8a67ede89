package referral

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/callback"
	"wallet-bot/internal/common"
	"wallet-bot/internal/features/menu"
	"wallet-bot/internal/messenger"
)

// Handler — раздел «Рефералы».
type Handler struct {
	service *Service
	sink    messenger.Sink
}

// NewHandler создаёт обработчик.
func NewHandler(svc *Service, sink messenger.Sink) *Handler {
	return &Handler{service: svc, sink: sink}
}

// HandleMenu показывает раздел.
func (h *Handler) HandleMenu(ctx context.Context, ev *messenger.Event) {
	kb := messenger.Keyboard{
		messenger.Row(messenger.Btn("🔗 Моя ссылка", callback.Of(callback.ReferralLink))),
		messenger.Row(
			messenger.Btn("ℹ️ Как это работает", callback.Of(callback.ReferralInfo)),
			messenger.Btn("📊 Статистика", callback.Of(callback.ReferralStats)),
		),
		messenger.Row(messenger.Btn("⬅️ В меню", callback.Of(callback.MainMenu))),
	}
	h.send(ctx, messenger.Reply(ev, "👥 Реферальная программа", kb))
}

// HandleLink выдаёт реферальную ссылку.
func (h *Handler) HandleLink(ctx context.Context, ev *messenger.Event) {
	text := fmt.Sprintf("🔗 Ваша реферальная ссылка:\n<code>%s</code>\n\nДелитесь ей с друзьями!",
		common.Escape(h.service.Link(ev.Identity)))
	h.send(ctx, messenger.Reply(ev, text, back()))
}

// HandleInfo объясняет условия.
func (h *Handler) HandleInfo(ctx context.Context, ev *messenger.Event) {
	text := fmt.Sprintf("ℹ️ Приглашайте друзей по своей ссылке.\n\n"+
		"С каждого подтверждённого пополнения приглашённого вы получаете %d%% на баланс бота.", Percent)
	h.send(ctx, messenger.Reply(ev, text, back()))
}

// HandleStats показывает число приглашённых.
func (h *Handler) HandleStats(ctx context.Context, ev *messenger.Event) {
	st, err := h.service.Stats(ctx, ev.Identity)
	if err != nil {
		log.WithError(err).WithField("user", ev.Identity).Error("Ошибка чтения статистики рефералов")
		h.send(ctx, messenger.Text(ev.ChatID, menu.Failure))
		return
	}
	text := fmt.Sprintf("📊 Приглашено: %d %s\n💰 Из них пополнили: %d",
		st.Total, common.PluralizeUsers(int64(st.Total)), st.Deposited)
	h.send(ctx, messenger.Reply(ev, text, back()))
}

func back() messenger.Keyboard {
	return messenger.Keyboard{messenger.Row(messenger.Btn("⬅️ Назад", callback.Of(callback.Referral)))}
}

func (h *Handler) send(ctx context.Context, msg messenger.Message) {
	if _, err := h.sink.Send(ctx, msg); err != nil {
		log.WithError(err).WithField("chat_id", msg.ChatID).Error("Ошибка отправки сообщения")
	}
}
