package deposit

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
	"wallet-bot/internal/messenger"
)

// HandleApprove — админ нажал «Одобрить»: спрашиваем про бонус.
func (h *Handler) HandleApprove(ctx context.Context, ev *messenger.Event) {
	req, err := h.ledger.PendingDeposit(ctx, ev.Payload.Request)
	if h.resolvedOrMissing(ctx, ev, err) {
		return
	}
	if err != nil {
		h.fail(ctx, ev, err, "deposit_approve")
		return
	}

	text := fmt.Sprintf("Заявка пользователя <code>%d</code> на %s.\n\nНачислить бонус?",
		req.Identity, common.FormatAmount(req.Amount))
	kb := messenger.Keyboard{messenger.Row(
		messenger.Btn("🎁 С бонусом", callback.Payload{Action: callback.DepositBonus, Request: req.ID}),
		messenger.Btn("Без бонуса", callback.Payload{Action: callback.DepositNoBonus, Request: req.ID}),
	)}
	h.send(ctx, messenger.Reply(ev, text, kb))
}

// HandleNoBonus одобряет заявку без бонуса.
func (h *Handler) HandleNoBonus(ctx context.Context, ev *messenger.Event) {
	h.approve(ctx, ev, ev.Payload.Request, decimal.Zero)
}

// HandleBonus спрашивает у админа процент бонуса.
func (h *Handler) HandleBonus(ctx context.Context, ev *messenger.Event) {
	req, err := h.ledger.PendingDeposit(ctx, ev.Payload.Request)
	if h.resolvedOrMissing(ctx, ev, err) {
		return
	}
	if err != nil {
		h.fail(ctx, ev, err, "deposit_bonus")
		return
	}
	if err := h.machine.Begin(ctx, ev.Identity, convo.FlowDepositBonus, stepPercent, convo.Scratch{RequestID: req.ID}); err != nil {
		h.fail(ctx, ev, err, "deposit_bonus")
		return
	}
	h.send(ctx, messenger.Text(ev.ChatID, fmt.Sprintf("Введите процент бонуса для заявки на %s (например 5 или 2.5):",
		common.FormatAmount(req.Amount))))
}

func (h *Handler) stepBonus(ctx context.Context, ev *messenger.Event, st *convo.State) convo.Result {
	in := strings.TrimSuffix(strings.TrimSpace(ev.Text), "%")
	pct, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(in), ",", "."))
	if err != nil || pct.IsNegative() {
		h.send(ctx, messenger.Text(ev.ChatID, "❌ Введите неотрицательное число."))
		return convo.Stay
	}
	if !h.approve(ctx, ev, st.Scratch.RequestID, pct) {
		// недопустимый процент: ждём новый ввод
		return convo.Stay
	}
	return convo.Done
}

// approve одобряет заявку. false — только если процент отвергнут валидацией.
func (h *Handler) approve(ctx context.Context, ev *messenger.Event, id string, pct decimal.Decimal) bool {
	req, res, err := h.ledger.ApproveDeposit(ctx, id, pct)
	var ve *common.ValidationError
	switch {
	case errors.As(err, &ve):
		h.send(ctx, messenger.Text(ev.ChatID, "❌ "+ve.Reason))
		return false
	case h.resolvedOrMissing(ctx, ev, err):
		return true
	case errors.Is(err, common.ErrAccountNotFound):
		h.send(ctx, messenger.Text(ev.ChatID, "❌ Аккаунт пользователя удалён, заявку нельзя одобрить."))
		return true
	case err != nil:
		h.fail(ctx, ev, err, "deposit_approve")
		return true
	}

	h.send(ctx, messenger.Reply(ev, fmt.Sprintf("✅ Заявка одобрена\n\nПользователь: <code>%d</code>\nСумма: %s\nБонус: %s\nИтого: %s",
		req.Identity, common.FormatAmount(res.Amount), common.FormatAmount(res.Bonus), common.FormatAmount(res.Total)), nil))

	text := fmt.Sprintf("✅ Пополнение на %s подтверждено!", common.FormatAmount(res.Amount))
	if res.Bonus > 0 {
		text += fmt.Sprintf("\n🎁 Бонус: %s", common.FormatAmount(res.Bonus))
	}
	text += fmt.Sprintf("\n\n💰 Баланс: %s", common.FormatAmount(res.Account.BotBalance))
	h.send(ctx, messenger.Text(req.Identity, text))
	NotifyReferrer(ctx, h.sink, res)
	return true
}

// NotifyReferrer сообщает пригласившему о начисленной комиссии.
func NotifyReferrer(ctx context.Context, sink messenger.Sink, res *ledger.DepositResult) {
	if res == nil || res.Referral == nil {
		return
	}
	text := fmt.Sprintf("👥 Ваш реферал (ID <code>%d</code>) пополнил баланс. Вам начислено %s.",
		res.Account.Identity, common.FormatAmount(res.Referral.Amount))
	if _, err := sink.Send(ctx, messenger.Text(res.Referral.Referrer, text)); err != nil {
		log.WithError(err).WithField("chat_id", res.Referral.Referrer).Error("Ошибка отправки сообщения")
	}
}

// HandleReject отклоняет заявку.
func (h *Handler) HandleReject(ctx context.Context, ev *messenger.Event) {
	req, err := h.ledger.RejectDeposit(ctx, ev.Payload.Request)
	if h.resolvedOrMissing(ctx, ev, err) {
		return
	}
	if err != nil {
		h.fail(ctx, ev, err, "deposit_reject")
		return
	}
	h.send(ctx, messenger.Reply(ev, fmt.Sprintf("❌ Заявка отклонена\n\nПользователь: <code>%d</code>\nСумма: %s\nНомер операции: <code>%s</code>",
		req.Identity, common.FormatAmount(req.Amount), common.Escape(req.TxRef)), nil))
	h.send(ctx, messenger.Text(req.Identity, fmt.Sprintf("❌ Заявка на пополнение %s отклонена. Если это ошибка, напишите в поддержку.",
		common.FormatAmount(req.Amount))))
}

// resolvedOrMissing сообщает админу об уже обработанной или отсутствующей заявке.
func (h *Handler) resolvedOrMissing(ctx context.Context, ev *messenger.Event, err error) bool {
	switch {
	case errors.Is(err, common.ErrRequestResolved):
		h.send(ctx, messenger.Text(ev.ChatID, "ℹ️ Заявка уже обработана."))
		return true
	case errors.Is(err, common.ErrRequestNotFound):
		h.send(ctx, messenger.Text(ev.ChatID, "❌ Заявка не найдена."))
		return true
	}
	return false
}
