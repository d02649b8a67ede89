// Package menu — общие клавиатуры бота.
package menu

import (
	"fmt"
	"strings"

	"wallet-bot/internal/callback"
	"wallet-bot/internal/common"
	"wallet-bot/internal/messenger"
	"wallet-bot/internal/store"
)

// Main — главное меню.
func Main() messenger.Keyboard {
	return messenger.Keyboard{
		messenger.Row(messenger.Btn("Ichancy ⚡", callback.Of(callback.Ichancy))),
		messenger.Row(
			messenger.Btn("Пополнить 💰", callback.Of(callback.DepositMenu)),
			messenger.Btn("Вывести 💸", callback.Of(callback.WithdrawMenu)),
		),
		messenger.Row(
			messenger.Btn("Рефералы 👥", callback.Of(callback.Referral)),
			messenger.Btn("Подарочный код 🎁", callback.Of(callback.GiftRedeem)),
		),
		messenger.Row(messenger.Btn("Подарить баланс 🎀", callback.Of(callback.GiftSend))),
		messenger.Row(
			messenger.Btn("Поддержка 📩", callback.Of(callback.Support)),
			messenger.Btn("Контакты ☎️", callback.Of(callback.Contact)),
		),
		messenger.Row(messenger.Btn("Правила 📜", callback.Of(callback.Terms))),
	}
}

// MainText — шапка главного меню с балансом.
func MainText(a *store.Account) string {
	return fmt.Sprintf("🏠 Главное меню\n\n💰 Баланс в боте: <b>%s</b>\n🆔 Ваш ID: <code>%d</code>",
		common.FormatAmount(a.BotBalance), a.Identity)
}

// Back — одна кнопка «назад в меню».
func Back() messenger.Keyboard {
	return messenger.Keyboard{messenger.Row(messenger.Btn("⬅️ В меню", callback.Of(callback.MainMenu)))}
}

// CancelOnly — одна кнопка отмены сценария.
func CancelOnly() messenger.Keyboard {
	return messenger.Keyboard{messenger.Row(messenger.Btn("❌ Отмена", callback.Of(callback.Cancel)))}
}

// ConfirmCancel — подтверждение операции.
func ConfirmCancel(confirm callback.Action) messenger.Keyboard {
	return messenger.Keyboard{messenger.Row(
		messenger.Btn("✅ Подтвердить", callback.Of(confirm)),
		messenger.Btn("❌ Отмена", callback.Of(callback.Cancel)),
	)}
}

// CreateAccount — приглашение зарегистрироваться. Пригласивший едет в кнопке.
func CreateAccount(referrer int64) messenger.Keyboard {
	p := callback.Payload{Action: callback.CreateAccount, User: referrer}
	return messenger.Keyboard{messenger.Row(messenger.Btn("Создать аккаунт ✨", p))}
}

// NotRegistered — текст для незарегистрированных.
const NotRegistered = "У вас ещё нет аккаунта. Нажмите «Создать аккаунт», чтобы начать."

// Failure — общий текст при внутренней ошибке.
const Failure = "❌ Произошла ошибка, попробуйте позже."

// Subscribe — просьба подписаться на канал и кнопка повторной проверки.
func Subscribe(channel string) (string, messenger.Keyboard) {
	text := fmt.Sprintf("📢 Чтобы пользоваться ботом, подпишитесь на канал %s и нажмите «Проверить».", common.Escape(channel))
	kb := messenger.Keyboard{
		messenger.Row(messenger.Link("Подписаться", "https://t.me/"+strings.TrimPrefix(channel, "@"))),
		messenger.Row(messenger.Btn("Проверить ✅", callback.Of(callback.CheckSub))),
	}
	return text, kb
}
