// Package admin — команды администратора кошелька и их авторизация.
// service.go содержит проверку пароля Argon2id и сессии админа.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"wallet-bot/internal/common"
	"wallet-bot/internal/config"
	"wallet-bot/internal/store"
)

// Защита от перебора: столько неудачных попыток за окно блокируют вход.
const (
	MaxLoginAttempts = 3
	AttemptWindow    = time.Hour
)

// Параметры Argon2id для новых хешей.
const (
	hashMemory      uint32 = 64 * 1024
	hashIterations  uint32 = 3
	hashParallelism uint8  = 2
	hashKeyLength   uint32 = 32
	hashSaltLength         = 16
)

// Service решает, кто может выполнять команды админа.
type Service struct {
	store        *store.Store
	adminID      int64
	passwordHash string
	sessionTTL   time.Duration
}

// NewService создаёт сервис авторизации.
func NewService(st *store.Store, cfg *config.Config) *Service {
	return &Service{
		store:        st,
		adminID:      cfg.AdminID,
		passwordHash: cfg.AdminPasswordHash,
		sessionTTL:   cfg.AdminSessionTTL,
	}
}

// IsAdmin сообщает, что identity — администратор (без учёта сессии).
func (s *Service) IsAdmin(identity int64) bool {
	return identity == s.adminID
}

// PasswordRequired — включён ли второй фактор.
func (s *Service) PasswordRequired() bool {
	return s.passwordHash != ""
}

// HasActiveSession проверяет, что у админа есть неистёкшая сессия.
func (s *Service) HasActiveSession(ctx context.Context, identity int64) bool {
	var expires time.Time
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		expires, err = tx.SessionExpiry(ctx, identity)
		return err
	})
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.WithError(err).Error("Ошибка проверки сессии админа")
		}
		return false
	}
	return s.store.Now().Before(expires)
}

// Authorized — может ли identity выполнять команды админа прямо сейчас.
func (s *Service) Authorized(ctx context.Context, identity int64) bool {
	if !s.IsAdmin(identity) {
		return false
	}
	return !s.PasswordRequired() || s.HasActiveSession(ctx, identity)
}

// Login проверяет пароль и открывает сессию.
// 3 неудачные попытки за час блокируют вход.
func (s *Service) Login(ctx context.Context, identity int64, password string) error {
	if !s.IsAdmin(identity) {
		return common.ErrUnauthorized
	}
	if !s.PasswordRequired() {
		return nil
	}

	var attempts int
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		attempts, err = tx.LoginAttemptsSince(ctx, identity, s.store.Now().Add(-AttemptWindow))
		return err
	})
	if err != nil {
		return err
	}
	if attempts >= MaxLoginAttempts {
		return common.ErrTooManyAttempts
	}

	// Хеш считаем вне блокировки хранилища
	match := verifyArgon2id(password, s.passwordHash)

	err = s.store.Update(ctx, func(tx *store.Tx) error {
		if !match {
			return tx.RecordLoginAttempt(ctx, identity)
		}
		if err := tx.ClearLoginAttempts(ctx, identity); err != nil {
			return err
		}
		return tx.SaveSession(ctx, identity, generateSecureToken(), tx.Now().Add(s.sessionTTL))
	})
	if err != nil {
		return err
	}
	if !match {
		log.WithField("user", identity).Warn("Неверный пароль админа")
		return common.ErrWrongPassword
	}
	log.WithField("user", identity).Info("Админ вошёл")
	return nil
}

// Logout завершает сессию.
func (s *Service) Logout(ctx context.Context, identity int64) error {
	return s.store.Update(ctx, func(tx *store.Tx) error {
		return tx.DeleteSession(ctx, identity)
	})
}

// --- Криптографические утилиты ---

// HashPassword кодирует пароль в формат ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	salt := make([]byte, hashSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("ошибка генерации соли: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, hashIterations, hashMemory, hashParallelism, hashKeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, hashMemory, hashIterations, hashParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// verifyArgon2id проверяет пароль по хешу Argon2id.
// Формат хеша: $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))
	// Сравнение в постоянном времени
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

// generateSecureToken генерирует токен сессии.
func generateSecureToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}
