package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/callback"
	"wallet-bot/internal/common"
	"wallet-bot/internal/features/accounts"
	"wallet-bot/internal/features/deposit"
	"wallet-bot/internal/features/gifts"
	"wallet-bot/internal/features/ledger"
	"wallet-bot/internal/features/menu"
	"wallet-bot/internal/features/settings"
	"wallet-bot/internal/messenger"
	"wallet-bot/internal/store"
)

const (
	historyLimit = 20
	// Запас до лимита Telegram в 4096 символов
	chunkLimit = 3500
)

var entryLabels = map[string]string{
	store.EntryDeposit:       "пополнение",
	store.EntryWithdrawal:    "вывод",
	store.EntryGiftSent:      "подарок отправлен",
	store.EntryGiftReceived:  "подарок получен",
	store.EntryGiftCode:      "подарочный код",
	store.EntryReferralBonus: "реферальная комиссия",
	store.EntryTransferOut:   "перевод в Ichancy",
	store.EntryTransferIn:    "перевод из Ichancy",
	store.EntryAdminDeduct:   "списание админом",
}

// Handler обрабатывает команды админа.
type Handler struct {
	service  *Service
	registry *accounts.Registry
	ledger   *ledger.Processor
	gifts    *gifts.Registry
	settings *settings.Service
	sink     messenger.Sink
	loc      *time.Location
}

// NewHandler создаёт обработчик команд админа.
func NewHandler(svc *Service, reg *accounts.Registry, proc *ledger.Processor, giftReg *gifts.Registry,
	settingsSvc *settings.Service, sink messenger.Sink, loc *time.Location) *Handler {
	return &Handler{
		service:  svc,
		registry: reg,
		ledger:   proc,
		gifts:    giftReg,
		settings: settingsSvc,
		sink:     sink,
		loc:      loc,
	}
}

// Authorize пропускает только админа. Чужие команды и кнопки молча
// игнорируются, админу без сессии напоминаем про /login.
func (h *Handler) Authorize(ctx context.Context, ev *messenger.Event) bool {
	if !h.service.IsAdmin(ev.Identity) {
		log.WithFields(log.Fields{
			"user":    ev.Identity,
			"command": ev.Command,
			"action":  ev.Payload.Action,
		}).Debug("Действие админа от обычного пользователя проигнорировано")
		return false
	}
	if ev.Kind == messenger.KindCommand && ev.Command == "login" {
		return true
	}
	if h.service.Authorized(ctx, ev.Identity) {
		return true
	}
	h.send(ctx, messenger.Text(ev.ChatID, "🔐 Сессия не активна. Войдите: /login &lt;пароль&gt;"))
	return false
}

// ===== Сессия =====

// HandleLogin — /login <пароль>.
func (h *Handler) HandleLogin(ctx context.Context, ev *messenger.Event) {
	if !h.service.PasswordRequired() {
		h.reply(ctx, ev, "Пароль не настроен, вход не требуется.")
		return
	}
	password := tail(ev.Text, 1)
	if password == "" {
		h.usage(ctx, ev, "login")
		return
	}
	err := h.service.Login(ctx, ev.Identity, password)
	switch {
	case errors.Is(err, common.ErrWrongPassword), errors.Is(err, common.ErrTooManyAttempts):
		h.reply(ctx, ev, "❌ "+err.Error())
	case err != nil:
		h.fail(ctx, ev, err, "login")
	default:
		h.reply(ctx, ev, "✅ Вход выполнен.")
	}
}

// HandleLogout — /logout.
func (h *Handler) HandleLogout(ctx context.Context, ev *messenger.Event) {
	if err := h.service.Logout(ctx, ev.Identity); err != nil {
		h.fail(ctx, ev, err, "logout")
		return
	}
	h.reply(ctx, ev, "👋 Сессия завершена.")
}

// ===== Сообщения =====

// HandleBroadcast — /broadcast <текст>.
func (h *Handler) HandleBroadcast(ctx context.Context, ev *messenger.Event) {
	text := tail(ev.Text, 1)
	if text == "" {
		h.usage(ctx, ev, "broadcast")
		return
	}
	list, err := h.registry.List(ctx)
	if err != nil {
		h.fail(ctx, ev, err, "broadcast")
		return
	}

	delivered := 0
	for _, a := range list {
		if _, err := h.sink.Send(ctx, messenger.Text(a.Identity, common.Escape(text))); err != nil {
			log.WithError(err).WithField("user", a.Identity).Debug("Рассылка не доставлена")
			continue
		}
		delivered++
	}
	log.WithFields(log.Fields{"delivered": delivered, "total": len(list)}).Info("Рассылка завершена")
	h.reply(ctx, ev, fmt.Sprintf("📢 Рассылка доставлена %d из %d.", delivered, len(list)))
}

// HandleSend — /send <id> <текст>.
func (h *Handler) HandleSend(ctx context.Context, ev *messenger.Event) {
	text := tail(ev.Text, 2)
	id, ok := argID(ev, 0)
	if !ok || text == "" {
		h.usage(ctx, ev, "send")
		return
	}
	if _, err := h.sink.Send(ctx, messenger.Text(id, common.Escape(text))); err != nil {
		log.WithError(err).WithField("user", id).Warn("Сообщение пользователю не доставлено")
		h.reply(ctx, ev, "❌ Не удалось отправить сообщение.")
		return
	}
	h.reply(ctx, ev, "✅ Сообщение отправлено.")
}

// ===== Аккаунты =====

// HandleAddUser — /adduser <id> <пароль> [имя].
func (h *Handler) HandleAddUser(ctx context.Context, ev *messenger.Event) {
	id, ok := argID(ev, 0)
	if !ok || len(ev.Args) < 2 {
		h.usage(ctx, ev, "adduser")
		return
	}
	name := ""
	if len(ev.Args) > 2 {
		name = ev.Args[2]
	}
	a, err := h.registry.CreateManual(ctx, id, ev.Args[1], name)
	if h.rejected(ctx, ev, err) {
		return
	}
	if err != nil {
		h.fail(ctx, ev, err, "adduser")
		return
	}
	h.reply(ctx, ev, fmt.Sprintf("✅ Аккаунт создан\n\nID: <code>%d</code>\nЛогин: <code>%s</code>",
		a.Identity, common.Escape(a.CredentialName)))
}

// HandleDelUser — /deluser <id|имя>.
func (h *Handler) HandleDelUser(ctx context.Context, ev *messenger.Event) {
	if len(ev.Args) != 1 {
		h.usage(ctx, ev, "deluser")
		return
	}
	a, err := h.registry.Delete(ctx, ev.Args[0])
	if h.rejected(ctx, ev, err) {
		return
	}
	if err != nil {
		h.fail(ctx, ev, err, "deluser")
		return
	}
	h.reply(ctx, ev, fmt.Sprintf("✅ Аккаунт <code>%d</code> (%s) удалён.", a.Identity, common.Escape(a.CredentialName)))
}

// HandleUsers — /users.
func (h *Handler) HandleUsers(ctx context.Context, ev *messenger.Event) {
	list, err := h.registry.List(ctx)
	if err != nil {
		h.fail(ctx, ev, err, "users")
		return
	}
	if len(list) == 0 {
		h.reply(ctx, ev, "Зарегистрированных пользователей пока нет.")
		return
	}

	blocks := make([]string, 0, len(list)+1)
	blocks = append(blocks, fmt.Sprintf("👥 Пользователи: %d\n", len(list)))
	for _, a := range list {
		var sb strings.Builder
		fmt.Fprintf(&sb, "ID: <code>%d</code>\n", a.Identity)
		fmt.Fprintf(&sb, "Логин: <code>%s</code>\n", common.Escape(a.CredentialName))
		fmt.Fprintf(&sb, "Пароль: <code>%s</code>\n", common.Escape(a.CredentialSecret))
		fmt.Fprintf(&sb, "Баланс бота: %s\n", common.FormatAmount(a.BotBalance))
		fmt.Fprintf(&sb, "Баланс Ichancy: %s\n", common.FormatAmount(a.ExternalBalance))
		fmt.Fprintf(&sb, "Создан: %s\n", common.FormatDateTime(a.CreatedAt, h.loc))
		if a.Banned {
			fmt.Fprintf(&sb, "⛔ Заблокирован: %s\n", common.Escape(a.BanReason))
		}
		sb.WriteString("—————————————")
		blocks = append(blocks, sb.String())
	}
	h.sendChunks(ctx, ev.ChatID, blocks)
}

// HandleHistory — /history <id>.
func (h *Handler) HandleHistory(ctx context.Context, ev *messenger.Event) {
	id, ok := argID(ev, 0)
	if !ok {
		h.usage(ctx, ev, "history")
		return
	}
	entries, err := h.ledger.History(ctx, id, historyLimit)
	if err != nil {
		h.fail(ctx, ev, err, "history")
		return
	}
	if len(entries) == 0 {
		h.reply(ctx, ev, fmt.Sprintf("У пользователя <code>%d</code> пока нет операций.", id))
		return
	}

	blocks := []string{fmt.Sprintf("📜 Последние операции <code>%d</code>:\n", id)}
	for _, e := range entries {
		label, ok := entryLabels[e.Type]
		if !ok {
			label = e.Type
		}
		line := fmt.Sprintf("%s • %s • %s", common.FormatDateTime(e.CreatedAt, h.loc), label, common.FormatAmount(e.Amount))
		if e.Bonus > 0 {
			line += " + бонус " + common.FormatNumber(e.Bonus)
		}
		if e.Fee > 0 {
			line += ", комиссия " + common.FormatNumber(e.Fee)
		}
		if e.Method != "" {
			line += " (" + common.Escape(e.Method) + ")"
		}
		if e.CounterpartyRef != "" {
			line += " ↔ " + common.Escape(e.CounterpartyRef)
		}
		blocks = append(blocks, line)
	}
	h.sendChunks(ctx, ev.ChatID, blocks)
}

// HandleBan — /ban <id> [причина].
func (h *Handler) HandleBan(ctx context.Context, ev *messenger.Event) {
	id, ok := argID(ev, 0)
	if !ok {
		h.usage(ctx, ev, "ban")
		return
	}
	reason := tail(ev.Text, 2)
	if reason == "" {
		reason = accounts.DefaultBanReason
	}
	outcome, err := h.registry.Ban(ctx, id, reason)
	if err != nil {
		h.fail(ctx, ev, err, "ban")
		return
	}
	switch outcome {
	case accounts.BanNotFound:
		h.reply(ctx, ev, "❌ Пользователь не найден.")
	case accounts.BanUnchanged:
		h.reply(ctx, ev, fmt.Sprintf("Пользователь <code>%d</code> уже заблокирован.", id))
	default:
		h.send(ctx, messenger.Text(id, "⛔ Ваш аккаунт заблокирован.\nПричина: "+common.Escape(reason)))
		h.reply(ctx, ev, fmt.Sprintf("✅ Пользователь <code>%d</code> заблокирован.\nПричина: %s", id, common.Escape(reason)))
	}
}

// HandleUnban — /unban <id>.
func (h *Handler) HandleUnban(ctx context.Context, ev *messenger.Event) {
	id, ok := argID(ev, 0)
	if !ok {
		h.usage(ctx, ev, "unban")
		return
	}
	outcome, err := h.registry.Unban(ctx, id)
	if err != nil {
		h.fail(ctx, ev, err, "unban")
		return
	}
	switch outcome {
	case accounts.BanNotFound:
		h.reply(ctx, ev, "❌ Пользователь не найден.")
	case accounts.BanUnchanged:
		h.reply(ctx, ev, fmt.Sprintf("Пользователь <code>%d</code> не заблокирован.", id))
	default:
		h.send(ctx, messenger.Text(id, "✅ Ваш аккаунт разблокирован."))
		h.reply(ctx, ev, fmt.Sprintf("✅ Пользователь <code>%d</code> разблокирован.", id))
	}
}

// ===== Пул учёток =====

// HandleListPredefined — /listpredefined.
func (h *Handler) HandleListPredefined(ctx context.Context, ev *messenger.Event) {
	pool, err := h.registry.ListPredefined(ctx)
	if err != nil {
		h.fail(ctx, ev, err, "listpredefined")
		return
	}
	if len(pool) == 0 {
		h.reply(ctx, ev, "Пул готовых учёток пуст.")
		return
	}
	blocks := []string{fmt.Sprintf("📋 Готовые учётки: %d\n", len(pool))}
	for _, c := range pool {
		blocks = append(blocks, fmt.Sprintf("Логин: <code>%s</code>\nПароль: <code>%s</code>\n—————————————",
			common.Escape(c.Name), common.Escape(c.Secret)))
	}
	h.sendChunks(ctx, ev.ChatID, blocks)
}

// HandleAddPredefined — /addpredefined <имя> <пароль>.
func (h *Handler) HandleAddPredefined(ctx context.Context, ev *messenger.Event) {
	if len(ev.Args) != 2 {
		h.usage(ctx, ev, "addpredefined")
		return
	}
	err := h.registry.AddPredefined(ctx, ev.Args[0], ev.Args[1])
	if h.rejected(ctx, ev, err) {
		return
	}
	if err != nil {
		h.fail(ctx, ev, err, "addpredefined")
		return
	}
	h.reply(ctx, ev, "✅ Учётка добавлена в пул.")
}

// HandleDelPredefined — /delpredefined <имя>.
func (h *Handler) HandleDelPredefined(ctx context.Context, ev *messenger.Event) {
	if len(ev.Args) != 1 {
		h.usage(ctx, ev, "delpredefined")
		return
	}
	err := h.registry.DeletePredefined(ctx, ev.Args[0])
	if h.rejected(ctx, ev, err) {
		return
	}
	if err != nil {
		h.fail(ctx, ev, err, "delpredefined")
		return
	}
	h.reply(ctx, ev, "✅ Учётка удалена из пула.")
}

// ===== Баланс =====

// HandleAddBalance — /addbalance <id> <сумма> <бонус%> <номер операции> <способ> [заметка].
func (h *Handler) HandleAddBalance(ctx context.Context, ev *messenger.Event) {
	id, ok := argID(ev, 0)
	if !ok || len(ev.Args) < 5 {
		h.usage(ctx, ev, "addbalance")
		return
	}
	amount, err := common.ParseAmount(ev.Args[1])
	if h.rejected(ctx, ev, err) {
		return
	}
	pct, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSuffix(ev.Args[2], "%"), ",", "."))
	if err != nil {
		h.reply(ctx, ev, "❌ Процент бонуса должен быть числом.")
		return
	}

	res, err := h.ledger.ApplyDeposit(ctx, ledger.DepositInput{
		Identity:     id,
		Amount:       amount,
		BonusPercent: pct,
		TxRef:        ev.Args[3],
		Method:       ev.Args[4],
		Note:         tail(ev.Text, 6),
	})
	if h.rejected(ctx, ev, err) {
		return
	}
	if err != nil {
		h.fail(ctx, ev, err, "addbalance")
		return
	}

	h.reply(ctx, ev, fmt.Sprintf("✅ Баланс пополнен\n\n👤 Пользователь: <code>%d</code>\n💰 Сумма: %s\n🎁 Бонус: %s (%s%%)\n💵 Итого: %s\n🔢 Операция: <code>%s</code>\n💳 Способ: %s",
		id, common.FormatAmount(res.Amount), common.FormatAmount(res.Bonus), pct.String(),
		common.FormatAmount(res.Total), common.Escape(ev.Args[3]), common.Escape(ev.Args[4])))

	h.send(ctx, messenger.Text(id, fmt.Sprintf("✅ Баланс пополнен\n\nСумма: %s\nСпособ: %s\nОперация: <code>%s</code>",
		common.FormatAmount(res.Amount), common.Escape(ev.Args[4]), common.Escape(ev.Args[3]))))
	if res.Bonus > 0 {
		h.send(ctx, messenger.Text(id, fmt.Sprintf("🎁 Поздравляем! Вам начислен бонус %s (%s%%).",
			common.FormatAmount(res.Bonus), pct.String())))
	}
	deposit.NotifyReferrer(ctx, h.sink, res)
}

// HandleDeductBalance — /deductbalance <id> <сумма>.
func (h *Handler) HandleDeductBalance(ctx context.Context, ev *messenger.Event) {
	id, ok := argID(ev, 0)
	if !ok || len(ev.Args) != 2 {
		h.usage(ctx, ev, "deductbalance")
		return
	}
	amount, err := common.ParseAmount(ev.Args[1])
	if h.rejected(ctx, ev, err) {
		return
	}
	a, err := h.ledger.ApplyDeduction(ctx, id, amount, "списание администратором")
	if h.rejected(ctx, ev, err) {
		return
	}
	if err != nil {
		h.fail(ctx, ev, err, "deductbalance")
		return
	}
	h.reply(ctx, ev, fmt.Sprintf("✅ Списано %s. Баланс пользователя: %s",
		common.FormatAmount(amount), common.FormatAmount(a.BotBalance)))
}

// ===== Настройки =====

// HandleSetPayAddr — /setpayaddr <номер|000>.
func (h *Handler) HandleSetPayAddr(ctx context.Context, ev *messenger.Event) {
	if len(ev.Args) != 1 {
		h.usage(ctx, ev, "setpayaddr")
		return
	}
	if err := h.settings.Set(ctx, store.SettingSyriatelAddress, ev.Args[0]); err != nil {
		h.fail(ctx, ev, err, "setpayaddr")
		return
	}
	if ev.Args[0] == settings.Disabled {
		h.reply(ctx, ev, "✅ Адрес обновлён. Пополнение через Syriatel Cash выключено.")
		return
	}
	h.reply(ctx, ev, "✅ Адрес для пополнения: <code>"+common.Escape(ev.Args[0])+"</code>")
}

// HandleSetContactAddr — /setcontactaddr <контакт|000>.
func (h *Handler) HandleSetContactAddr(ctx context.Context, ev *messenger.Event) {
	if len(ev.Args) != 1 {
		h.usage(ctx, ev, "setcontactaddr")
		return
	}
	if err := h.settings.Set(ctx, store.SettingContactAddress, ev.Args[0]); err != nil {
		h.fail(ctx, ev, err, "setcontactaddr")
		return
	}
	if ev.Args[0] == settings.Disabled {
		h.reply(ctx, ev, "✅ Контакт поддержки скрыт.")
		return
	}
	h.reply(ctx, ev, "✅ Контакт поддержки: "+common.Escape(ev.Args[0])+
		"\n\nПроверьте кнопку «Контакты» в главном меню.")
}

// ===== Подарочные коды =====

// HandleGiftCode — /giftcode <сумма> <количество>.
func (h *Handler) HandleGiftCode(ctx context.Context, ev *messenger.Event) {
	if len(ev.Args) != 2 {
		h.usage(ctx, ev, "giftcode")
		return
	}
	value, err := common.ParseAmount(ev.Args[0])
	count, cerr := strconv.Atoi(ev.Args[1])
	if err != nil || cerr != nil || count < 1 || count > gifts.MaxCount {
		h.reply(ctx, ev, fmt.Sprintf("❌ Сумма должна быть больше нуля, количество от 1 до %d.", gifts.MaxCount))
		return
	}
	codes, err := h.gifts.Generate(ctx, ev.Identity, value, count)
	if h.rejected(ctx, ev, err) {
		return
	}
	if err != nil {
		h.fail(ctx, ev, err, "giftcode")
		return
	}
	h.reply(ctx, ev, gifts.FormatCodes(codes, value))
}

// HandleGiftCodes — /giftcodes, выпущенные админом коды и их статус.
func (h *Handler) HandleGiftCodes(ctx context.Context, ev *messenger.Event) {
	issued, err := h.gifts.Issued(ctx, ev.Identity)
	if err != nil {
		h.fail(ctx, ev, err, "giftcodes")
		return
	}
	if len(issued) == 0 {
		h.reply(ctx, ev, "Вы ещё не выпускали подарочные коды.")
		return
	}

	used := 0
	blocks := make([]string, 0, len(issued)+1)
	for _, g := range issued {
		status := "свободен"
		if g.Used {
			used++
			status = "использован"
			if g.UsedBy != nil {
				status = fmt.Sprintf("использован <code>%d</code>", *g.UsedBy)
			}
		}
		blocks = append(blocks, fmt.Sprintf("<code>%s</code> • %s • %s",
			g.Code, common.FormatAmount(g.Value), status))
	}
	head := fmt.Sprintf("🎁 Подарочные коды: %d, использовано %d\n", len(issued), used)
	h.sendChunks(ctx, ev.ChatID, append([]string{head}, blocks...))
}

// ===== Справка =====

// HandleHelp — /help [команда]. Админ получает справку по своим командам.
func (h *Handler) HandleHelp(ctx context.Context, ev *messenger.Event) {
	if !h.service.IsAdmin(ev.Identity) {
		h.reply(ctx, ev, userHelp)
		return
	}
	if len(ev.Args) > 0 {
		text, ok := topicHelp(ev.Args[0])
		if !ok {
			text = "❌ Команда не найдена. /help — список команд."
		}
		h.reply(ctx, ev, text)
		return
	}
	kb := messenger.Keyboard{messenger.Row(messenger.Btn("🎁 Выпустить коды", callback.Of(callback.GenerateCodes)))}
	h.send(ctx, messenger.Message{ChatID: ev.ChatID, Text: adminHelp(), Keyboard: kb})
}

// ===== Вспомогательное =====

// tail возвращает текст после первых n слов, сохраняя переносы строк.
func tail(text string, n int) string {
	s := strings.TrimSpace(text)
	for i := 0; i < n; i++ {
		idx := strings.IndexAny(s, " \t\n")
		if idx < 0 {
			return ""
		}
		s = strings.TrimLeft(s[idx:], " \t\n")
	}
	return strings.TrimSpace(s)
}

func argID(ev *messenger.Event, i int) (int64, bool) {
	if len(ev.Args) <= i {
		return 0, false
	}
	id, err := strconv.ParseInt(ev.Args[i], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// rejected отвечает на ожидаемые ошибки. false — ошибки нет или она внутренняя.
func (h *Handler) rejected(ctx context.Context, ev *messenger.Event, err error) bool {
	var ve *common.ValidationError
	switch {
	case err == nil:
		return false
	case errors.As(err, &ve):
		h.reply(ctx, ev, "❌ "+common.Escape(ve.Reason))
	case errors.Is(err, common.ErrAccountNotFound),
		errors.Is(err, common.ErrAlreadyRegistered),
		errors.Is(err, common.ErrCredentialTaken),
		errors.Is(err, common.ErrCredentialNotFound),
		errors.Is(err, common.ErrInsufficientBalance):
		h.reply(ctx, ev, "❌ "+err.Error())
	default:
		return false
	}
	return true
}

func (h *Handler) usage(ctx context.Context, ev *messenger.Event, name string) {
	text, _ := topicHelp(name)
	h.reply(ctx, ev, "Использование:\n"+text)
}

// sendChunks склеивает блоки в сообщения, не превышая лимит длины.
func (h *Handler) sendChunks(ctx context.Context, chatID int64, blocks []string) {
	var sb strings.Builder
	for _, b := range blocks {
		if sb.Len() > 0 && sb.Len()+len(b)+1 > chunkLimit {
			h.send(ctx, messenger.Text(chatID, sb.String()))
			sb.Reset()
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(b)
	}
	if sb.Len() > 0 {
		h.send(ctx, messenger.Text(chatID, sb.String()))
	}
}

func (h *Handler) reply(ctx context.Context, ev *messenger.Event, text string) {
	h.send(ctx, messenger.Text(ev.ChatID, text))
}

func (h *Handler) fail(ctx context.Context, ev *messenger.Event, err error, op string) {
	log.WithError(err).WithFields(log.Fields{"user": ev.Identity, "op": op}).Error("Ошибка команды админа")
	h.send(ctx, messenger.Text(ev.ChatID, menu.Failure))
}

func (h *Handler) send(ctx context.Context, msg messenger.Message) {
	if _, err := h.sink.Send(ctx, msg); err != nil {
		log.WithError(err).WithField("chat_id", msg.ChatID).Error("Ошибка отправки сообщения")
	}
}
