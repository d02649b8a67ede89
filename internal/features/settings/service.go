// Package settings — адреса для пополнения и связи, которые админ меняет
// на лету командами /setpayaddr и /setcontactaddr.
package settings

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/common"
	"wallet-bot/internal/store"
)

// Disabled — значение, выключающее канал.
const Disabled = "000"

// Service читает и пишет настройки.
type Service struct {
	store *store.Store
}

// NewService создаёт сервис настроек.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Get возвращает значение настройки. ok=false, если она не задана или выключена.
func (s *Service) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.store.View(ctx, func(tx *store.Tx) error {
		value, ok, err = tx.Setting(ctx, key)
		return err
	})
	if err != nil {
		return "", false, err
	}
	if !ok || value == "" || value == Disabled {
		return "", false, nil
	}
	return value, true, nil
}

// Set записывает настройку. "000" выключает канал.
func (s *Service) Set(ctx context.Context, key, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return common.Invalid(key, "значение не может быть пустым")
	}
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		return tx.SetSetting(ctx, key, value)
	})
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"key": key, "value": value}).Info("Настройка изменена")
	return nil
}

// SyriatelAddress — номер для пополнения через Syriatel Cash.
func (s *Service) SyriatelAddress(ctx context.Context) (string, bool, error) {
	return s.Get(ctx, store.SettingSyriatelAddress)
}

// ContactAddress — контакт поддержки.
func (s *Service) ContactAddress(ctx context.Context) (string, bool, error) {
	return s.Get(ctx, store.SettingContactAddress)
}
