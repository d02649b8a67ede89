// Package accounts — реестр аккаунтов: регистрация с выдачей учётки из
// пула, баны, ручное управление учётками админом.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/common"
	"wallet-bot/internal/store"
)

// DefaultBanReason — причина бана, если админ её не указал.
const DefaultBanReason = "не указана"

// BanOutcome — итог бана или разбана.
type BanOutcome int

const (
	// BanChanged — состояние изменено.
	BanChanged BanOutcome = iota
	// BanNotFound — аккаунта нет.
	BanNotFound
	// BanUnchanged — уже забанен (для Ban) или не забанен (для Unban).
	BanUnchanged
)

// Registry управляет аккаунтами.
type Registry struct {
	store *store.Store
}

// NewRegistry создаёт реестр.
func NewRegistry(st *store.Store) *Registry {
	return &Registry{store: st}
}

// Register создаёт аккаунт с первой свободной учёткой из пула.
// referredBy == 0 — без пригласившего. Пустой пул → ErrNoCredentialsAvailable,
// аккаунт не создаётся.
func (r *Registry) Register(ctx context.Context, identity, referredBy int64) (*store.Account, error) {
	var a *store.Account
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		if _, err := tx.Account(ctx, identity); err == nil {
			return common.ErrAlreadyRegistered
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		ref, err := checkReferrer(ctx, tx, identity, referredBy)
		if err != nil {
			return err
		}

		cred, err := tx.PopCredential(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return common.ErrNoCredentialsAvailable
		}
		if err != nil {
			return err
		}

		a = &store.Account{
			Identity:         identity,
			CredentialName:   cred.Name,
			CredentialSecret: cred.Secret,
			ReferredBy:       ref,
		}
		if err := tx.InsertAccount(ctx, a); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return common.ErrAlreadyRegistered
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user":       identity,
		"credential": a.CredentialName,
		"referrer":   referredBy,
	}).Info("Зарегистрирован новый аккаунт")
	return a, nil
}

// checkReferrer отбрасывает приглашение самого себя и приглашение
// от несуществующего аккаунта.
func checkReferrer(ctx context.Context, tx *store.Tx, identity, referredBy int64) (*int64, error) {
	if referredBy == 0 {
		return nil, nil
	}
	fields := log.Fields{"user": identity, "referrer": referredBy}
	if referredBy == identity {
		log.WithFields(fields).Warn("Попытка пригласить самого себя, реферал не записан")
		return nil, nil
	}
	_, err := tx.Account(ctx, referredBy)
	if errors.Is(err, store.ErrNotFound) {
		log.WithFields(fields).Warn("Пригласивший не зарегистрирован, реферал не записан")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &referredBy, nil
}

// FindByIdentity ищет аккаунт по идентификатору.
func (r *Registry) FindByIdentity(ctx context.Context, identity int64) (*store.Account, error) {
	var a *store.Account
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		a, err = tx.Account(ctx, identity)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, common.ErrAccountNotFound
	}
	return a, err
}

// BanStatus сообщает, забанен ли пользователь. Незарегистрированные не забанены.
func (r *Registry) BanStatus(ctx context.Context, identity int64) (bool, string, error) {
	a, err := r.FindByIdentity(ctx, identity)
	if errors.Is(err, common.ErrAccountNotFound) {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	return a.Banned, a.BanReason, nil
}

// Ban банит пользователя. Повторный бан ничего не меняет.
func (r *Registry) Ban(ctx context.Context, identity int64, reason string) (BanOutcome, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultBanReason
	}
	return r.setBan(ctx, identity, true, reason)
}

// Unban снимает бан. Разбан незабаненного ничего не меняет.
func (r *Registry) Unban(ctx context.Context, identity int64) (BanOutcome, error) {
	return r.setBan(ctx, identity, false, "")
}

func (r *Registry) setBan(ctx context.Context, identity int64, banned bool, reason string) (BanOutcome, error) {
	outcome := BanChanged
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		a, err := tx.Account(ctx, identity)
		if errors.Is(err, store.ErrNotFound) {
			outcome = BanNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if a.Banned == banned {
			outcome = BanUnchanged
			return nil
		}
		a.Banned = banned
		a.BanReason = reason
		return tx.SaveAccount(ctx, a)
	})
	if err != nil {
		return outcome, err
	}
	if outcome == BanChanged {
		log.WithFields(log.Fields{"user": identity, "banned": banned, "reason": reason}).Info("Изменён статус бана")
	}
	return outcome, nil
}

// SetCredentials задаёт учётку пользователю по его идентификатору.
// Нет аккаунта — создаёт его. created сообщает, что аккаунт новый.
func (r *Registry) SetCredentials(ctx context.Context, identity int64, name, secret string) (created bool, err error) {
	name, secret = strings.TrimSpace(name), strings.TrimSpace(secret)
	if name == "" || secret == "" {
		return false, common.Invalid("credentials", "имя и пароль не могут быть пустыми")
	}

	err = r.store.Update(ctx, func(tx *store.Tx) error {
		if err := checkNameFree(ctx, tx, name, identity); err != nil {
			return err
		}
		a, err := tx.Account(ctx, identity)
		if errors.Is(err, store.ErrNotFound) {
			created = true
			return tx.InsertAccount(ctx, &store.Account{Identity: identity, CredentialName: name, CredentialSecret: secret})
		}
		if err != nil {
			return err
		}
		a.CredentialName = name
		a.CredentialSecret = secret
		return tx.SaveAccount(ctx, a)
	})
	if errors.Is(err, store.ErrDuplicate) {
		return false, common.ErrCredentialTaken
	}
	if err != nil {
		return false, err
	}

	log.WithFields(log.Fields{"user": identity, "credential": name, "created": created}).Info("Учётные данные назначены")
	return created, nil
}

// checkNameFree проверяет, что имя учётки не занято другим аккаунтом.
func checkNameFree(ctx context.Context, tx *store.Tx, name string, owner int64) error {
	other, err := tx.AccountByCredential(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if other.Identity != owner {
		return common.ErrCredentialTaken
	}
	return nil
}

// CreateManual создаёт аккаунт вручную (/adduser). Пустое имя — идентификатор.
func (r *Registry) CreateManual(ctx context.Context, identity int64, secret, name string) (*store.Account, error) {
	if identity <= 0 {
		return nil, common.Invalid("identity", "некорректный идентификатор")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, common.Invalid("secret", "пароль не может быть пустым")
	}
	if name == "" {
		name = strconv.FormatInt(identity, 10)
	}

	a := &store.Account{Identity: identity, CredentialName: name, CredentialSecret: secret}
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		if _, err := tx.Account(ctx, identity); err == nil {
			return common.ErrAlreadyRegistered
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := checkNameFree(ctx, tx, name, identity); err != nil {
			return err
		}
		return tx.InsertAccount(ctx, a)
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, common.ErrCredentialTaken
	}
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"user": identity, "credential": name}).Info("Аккаунт создан администратором")
	return a, nil
}

// Delete удаляет аккаунт по идентификатору или по имени учётки.
// Учётка в пул не возвращается.
func (r *Registry) Delete(ctx context.Context, ref string) (*store.Account, error) {
	ref = strings.TrimSpace(ref)
	var a *store.Account
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
			a, err = tx.Account(ctx, id)
		} else {
			err = store.ErrNotFound
		}
		if errors.Is(err, store.ErrNotFound) {
			a, err = tx.AccountByCredential(ctx, ref)
		}
		if err != nil {
			return err
		}
		return tx.DeleteAccount(ctx, a.Identity)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, common.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"user": a.Identity, "credential": a.CredentialName}).Info("Аккаунт удалён")
	return a, nil
}

// List возвращает все аккаунты.
func (r *Registry) List(ctx context.Context) ([]*store.Account, error) {
	var out []*store.Account
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.Accounts(ctx)
		return err
	})
	return out, err
}

// AddPredefined кладёт учётку в пул. Имя не должно встречаться ни в пуле,
// ни среди выданных.
func (r *Registry) AddPredefined(ctx context.Context, name, secret string) error {
	name, secret = strings.TrimSpace(name), strings.TrimSpace(secret)
	if name == "" || secret == "" {
		return common.Invalid("credentials", "имя и пароль не могут быть пустыми")
	}
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		if err := checkNameFree(ctx, tx, name, 0); err != nil {
			return err
		}
		return tx.AddCredential(ctx, &store.Credential{Name: name, Secret: secret})
	})
	if errors.Is(err, store.ErrDuplicate) {
		return common.ErrCredentialTaken
	}
	if err != nil {
		return fmt.Errorf("ошибка добавления учётки в пул: %w", err)
	}
	return nil
}

// DeletePredefined удаляет учётку из пула.
func (r *Registry) DeletePredefined(ctx context.Context, name string) error {
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		return tx.DeleteCredential(ctx, strings.TrimSpace(name))
	})
	if errors.Is(err, store.ErrNotFound) {
		return common.ErrCredentialNotFound
	}
	return err
}

// ListPredefined возвращает пул в порядке выдачи.
func (r *Registry) ListPredefined(ctx context.Context) ([]*store.Credential, error) {
	var out []*store.Credential
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.Credentials(ctx)
		return err
	})
	return out, err
}
