package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/callback"
	"wallet-bot/internal/messenger"
	"wallet-bot/internal/metrics"
)

// sender — часть BotAPI, через которую уходят сообщения.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sink отправляет сообщения в Telegram.
type Sink struct {
	api     sender
	metrics *metrics.Metrics
}

var _ messenger.Sink = (*Sink)(nil)

// NewSink создаёт Telegram-реализацию messenger.Sink.
func NewSink(api sender, m *metrics.Metrics) *Sink {
	return &Sink{api: api, metrics: m}
}

// Send отправляет сообщение, фото или правку старого сообщения.
func (s *Sink) Send(_ context.Context, msg messenger.Message) (int, error) {
	kb, err := inlineKeyboard(msg.Keyboard)
	if err != nil {
		return 0, err
	}

	if msg.EditMessageID != 0 && msg.Photo == nil {
		id, err := s.edit(msg, kb)
		if err == nil {
			return id, nil
		}
		// Старое сообщение не редактируется: отправляем новое
		log.WithError(err).WithField("chat_id", msg.ChatID).Debug("Правка не удалась, отправляем новое сообщение")
	}

	sent, err := s.api.Send(buildMessage(msg, kb))
	s.metrics.Outgoing(err)
	if err != nil {
		return 0, fmt.Errorf("ошибка отправки в чат %d: %w", msg.ChatID, err)
	}
	return sent.MessageID, nil
}

func (s *Sink) edit(msg messenger.Message, kb *tgbotapi.InlineKeyboardMarkup) (int, error) {
	e := tgbotapi.NewEditMessageText(msg.ChatID, msg.EditMessageID, msg.Text)
	e.ParseMode = tgbotapi.ModeHTML
	e.DisableWebPagePreview = true
	e.ReplyMarkup = kb

	_, err := s.api.Send(e)
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return msg.EditMessageID, nil
	}
	s.metrics.Outgoing(err)
	if err != nil {
		return 0, err
	}
	return msg.EditMessageID, nil
}

func buildMessage(msg messenger.Message, kb *tgbotapi.InlineKeyboardMarkup) tgbotapi.Chattable {
	if msg.Photo != nil {
		p := tgbotapi.NewPhoto(msg.ChatID, tgbotapi.FileBytes{Name: "qr.png", Bytes: msg.Photo})
		p.Caption = msg.Text
		p.ParseMode = tgbotapi.ModeHTML
		if kb != nil {
			p.ReplyMarkup = *kb
		}
		return p
	}
	m := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	m.ParseMode = tgbotapi.ModeHTML
	m.DisableWebPagePreview = true
	if kb != nil {
		m.ReplyMarkup = *kb
	}
	return m
}

// inlineKeyboard переводит клавиатуру в разметку Telegram. nil — кнопок нет.
func inlineKeyboard(kb messenger.Keyboard) (*tgbotapi.InlineKeyboardMarkup, error) {
	if len(kb) == 0 {
		return nil, nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
				continue
			}
			data, err := callback.Encode(b.Payload)
			if err != nil {
				return nil, fmt.Errorf("кнопка %q: %w", b.Text, err)
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, data))
		}
		rows = append(rows, buttons)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup, nil
}
