// Package messenger описывает транспорт бота в нейтральных типах:
// входящие события и исходящие сообщения. Telegram-реализация живёт
// в internal/bot, бизнес-логика знает только этот пакет.
package messenger

import (
	"context"

	"wallet-bot/internal/callback"
)

// Kind — тип входящего события.
type Kind int

const (
	KindCommand Kind = iota
	KindCallback
	KindText
)

// Event — входящее событие от пользователя.
type Event struct {
	Kind      Kind
	Identity  int64
	ChatID    int64
	FirstName string
	Username  string

	// Команда без слэша и аргументы (KindCommand)
	Command string
	Args    []string
	// Исходный текст (KindCommand, KindText)
	Text string

	// Нажатая кнопка (KindCallback)
	Payload   callback.Payload
	MessageID int
}

// DisplayName — имя для сообщений админу.
func (e *Event) DisplayName() string {
	if e.Username != "" {
		return "@" + e.Username
	}
	if e.FirstName != "" {
		return e.FirstName
	}
	return "без имени"
}

// Button — inline-кнопка: либо callback, либо ссылка.
type Button struct {
	Text    string
	Payload callback.Payload
	URL     string
}

// Keyboard — ряды кнопок.
type Keyboard [][]Button

// Message — исходящее сообщение.
type Message struct {
	ChatID int64
	// HTML-разметка Telegram; пользовательские данные экранируются отправителем
	Text     string
	Keyboard Keyboard
	// PNG-картинка, Text становится подписью
	Photo []byte
	// Если задан — редактировать это сообщение вместо отправки нового
	EditMessageID int
}

// Sink — исходящий канал. Возвращает ID отправленного сообщения.
type Sink interface {
	Send(ctx context.Context, msg Message) (int, error)
}

// Btn — кнопка-действие.
func Btn(text string, p callback.Payload) Button {
	return Button{Text: text, Payload: p}
}

// Link — кнопка-ссылка.
func Link(text, url string) Button {
	return Button{Text: text, URL: url}
}

// Row — один ряд кнопок.
func Row(buttons ...Button) []Button {
	return buttons
}

// Text — простое сообщение в чат.
func Text(chatID int64, text string) Message {
	return Message{ChatID: chatID, Text: text}
}

// Reply — ответ на событие: на нажатие кнопки редактируем исходное
// сообщение, на текст отправляем новое.
func Reply(ev *Event, text string, kb Keyboard) Message {
	msg := Message{ChatID: ev.ChatID, Text: text, Keyboard: kb}
	if ev.Kind == KindCallback && ev.MessageID != 0 {
		msg.EditMessageID = ev.MessageID
	}
	return msg
}
