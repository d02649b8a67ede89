// Package middleware содержит промежуточные обработчики для логирования,
// восстановления после паники, rate-limiting и очереди событий пользователя.
package middleware

import (
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/messenger"
)

const maxLoggedText = 50

// LogEvent логирует входящее событие.
// Записывает: user_id, chat_id, username и команду, кнопку или начало текста.
func LogEvent(ev *messenger.Event) {
	if ev == nil {
		return
	}

	fields := log.Fields{
		"user_id":  ev.Identity,
		"chat_id":  ev.ChatID,
		"username": ev.Username,
	}
	switch ev.Kind {
	case messenger.KindCommand:
		fields["command"] = ev.Command
		fields["args"] = len(ev.Args)
	case messenger.KindCallback:
		fields["action"] = ev.Payload.Action
	default:
		fields["text"] = truncate(ev.Text, maxLoggedText)
	}
	log.WithFields(fields).Debug("Входящее событие")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
