// Package bot — Telegram-адаптер кошелька: polling, перевод апдейтов
// в события, маршрутизация и отправка сообщений.
package bot

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/bot/middleware"
	"wallet-bot/internal/callback"
	"wallet-bot/internal/config"
	"wallet-bot/internal/messenger"
	"wallet-bot/internal/metrics"
)

// botAPI — часть tgbotapi.BotAPI, которая нужна polling-циклу.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot принимает апдейты Telegram и отдаёт их маршрутизатору.
type Bot struct {
	api         botAPI
	username    string
	cfg         *config.Config
	router      *Router
	rateLimiter *middleware.RateLimiter
	locks       *middleware.KeyedMutex
	metrics     *metrics.Metrics

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
	wg       sync.WaitGroup
}

// New создаёт бота. username — имя бота без @, для команд вида /cmd@Bot.
func New(api botAPI, username string, cfg *config.Config, router *Router, m *metrics.Metrics) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:         api,
		username:    username,
		cfg:         cfg,
		router:      router,
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		locks:       middleware.NewKeyedMutex(),
		metrics:     m,
		inflight:    make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling и блокирует до отмены ctx.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds
	u.AllowedUpdates = []string{"message", "callback_query"}

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"bot":          b.username,
		"max_inflight": cap(b.inflight),
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			select {
			case b.inflight <- struct{}{}:
			case <-ctx.Done():
				continue
			}
			b.wg.Add(1)
			go func(upd tgbotapi.Update) {
				defer b.wg.Done()
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// Wait ждёт завершения обработчиков, запущенных Start.
func (b *Bot) Wait() {
	b.wg.Wait()
}

// Close освобождает ресурсы middleware.
func (b *Bot) Close() {
	b.rateLimiter.Close()
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic(senderID(update))

	if q := update.CallbackQuery; q != nil {
		// Подтверждаем нажатие до обработки
		if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
			log.WithError(err).WithField("user_id", q.From.ID).Debug("Не удалось ответить на callback")
		}
	}

	ev := toEvent(update, b.username)
	if ev == nil {
		return
	}
	middleware.LogEvent(ev)

	if !b.rateLimiter.Allow(ev.Identity) {
		log.WithField("user_id", ev.Identity).Debug("rate limited")
		b.metrics.Update("rate_limited")
		return
	}

	unlock := b.locks.Lock(ev.Identity)
	defer unlock()

	b.router.Dispatch(ctx, ev)
}

func senderID(update tgbotapi.Update) int64 {
	if u := update.SentFrom(); u != nil {
		return u.ID
	}
	return 0
}

// toEvent переводит апдейт в событие. nil — апдейт не для нас:
// не личный чат, пустой текст или битая кнопка.
func toEvent(update tgbotapi.Update, botUsername string) *messenger.Event {
	switch {
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		if q.From == nil || q.Message == nil || q.Message.Chat == nil || !q.Message.Chat.IsPrivate() {
			return nil
		}
		p, err := callback.Decode(q.Data)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"user_id": q.From.ID,
				"data":    q.Data,
			}).Warn("Не удалось разобрать данные кнопки")
			return nil
		}
		return &messenger.Event{
			Kind:      messenger.KindCallback,
			Identity:  q.From.ID,
			ChatID:    q.Message.Chat.ID,
			FirstName: q.From.FirstName,
			Username:  q.From.UserName,
			Payload:   p,
			MessageID: q.Message.MessageID,
		}

	case update.Message != nil:
		m := update.Message
		if m.From == nil || m.Chat == nil || !m.Chat.IsPrivate() || strings.TrimSpace(m.Text) == "" {
			return nil
		}
		ev := &messenger.Event{
			Kind:      messenger.KindText,
			Identity:  m.From.ID,
			ChatID:    m.Chat.ID,
			FirstName: m.From.FirstName,
			Username:  m.From.UserName,
			Text:      m.Text,
			MessageID: m.MessageID,
		}
		if cmd, args, ok := ParseCommand(m.Text, botUsername); ok {
			ev.Kind = messenger.KindCommand
			ev.Command = cmd
			ev.Args = args
		}
		return ev
	}
	return nil
}

// ParseCommand разбирает "/cmd@Bot arg1 arg2" на команду и аргументы.
// Команда, адресованная другому боту, командой не считается.
func ParseCommand(text, botUsername string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}

	parts := strings.Fields(strings.TrimPrefix(text, "/"))
	if len(parts) == 0 {
		return "", nil, false
	}

	command := parts[0]
	if name, mention, found := strings.Cut(command, "@"); found {
		if botUsername != "" && !strings.EqualFold(mention, botUsername) {
			return "", nil, false
		}
		command = name
	}
	if command == "" {
		return "", nil, false
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	return strings.ToLower(command), args, true
}
