// Package filters — проверки доступа к боту.
package filters

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// memberGetter — часть BotAPI для проверки членства.
type memberGetter interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// Subscription проверяет подписку на обязательный канал.
type Subscription struct {
	api     memberGetter
	channel string
}

// NewSubscription создаёт фильтр для канала вида @channel.
func NewSubscription(api memberGetter, channel string) *Subscription {
	if !strings.HasPrefix(channel, "@") {
		channel = "@" + channel
	}
	return &Subscription{api: api, channel: channel}
}

// Channel — имя канала для кнопки «Подписаться».
func (s *Subscription) Channel() string {
	return s.channel
}

// Subscribed сообщает, состоит ли пользователь в канале.
// Ошибка Telegram API трактуется как «не подписан».
func (s *Subscription) Subscribed(_ context.Context, identity int64) bool {
	logger := log.WithFields(log.Fields{
		"component": "Subscription",
		"channel":   s.channel,
		"user_id":   identity,
	})

	cm, err := s.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			SuperGroupUsername: s.channel,
			UserID:             identity,
		},
	})
	if err != nil {
		logger.WithError(err).Error("member check failed (telegram GetChatMember)")
		return false
	}

	switch cm.Status {
	case "creator", "administrator", "member":
		return true
	case "restricted":
		return cm.IsMember
	default:
		logger.WithField("tg_status", cm.Status).Debug("deny: not subscribed")
		return false
	}
}
