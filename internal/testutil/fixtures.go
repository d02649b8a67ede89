package testutil

import (
	"context"
	"fmt"
	"testing"

	"wallet-bot/internal/store"
)

// AccountOption настраивает создаваемый аккаунт.
type AccountOption func(a *store.Account)

// WithBalance задаёт баланс в боте.
func WithBalance(v int64) AccountOption {
	return func(a *store.Account) { a.BotBalance = v }
}

// WithExternalBalance задаёт баланс на внешней платформе.
func WithExternalBalance(v int64) AccountOption {
	return func(a *store.Account) { a.ExternalBalance = v }
}

// WithReferrer задаёт пригласившего.
func WithReferrer(id int64) AccountOption {
	return func(a *store.Account) { a.ReferredBy = &id }
}

// WithPhone задаёт сохранённый номер для вывода.
func WithPhone(phone string) AccountOption {
	return func(a *store.Account) { a.PhoneNumber = phone }
}

// CreateAccount вставляет аккаунт напрямую в хранилище.
func CreateAccount(t *testing.T, st *store.Store, identity int64, opts ...AccountOption) *store.Account {
	t.Helper()

	a := &store.Account{
		Identity:         identity,
		CredentialName:   fmt.Sprintf("user%d", identity),
		CredentialSecret: "secret",
	}
	for _, opt := range opts {
		opt(a)
	}
	err := st.Update(context.Background(), func(tx *store.Tx) error {
		return tx.InsertAccount(context.Background(), a)
	})
	if err != nil {
		t.Fatalf("create account %d: %v", identity, err)
	}
	return a
}

// GetAccount читает аккаунт или валит тест.
func GetAccount(t *testing.T, st *store.Store, identity int64) *store.Account {
	t.Helper()

	var a *store.Account
	err := st.View(context.Background(), func(tx *store.Tx) error {
		var err error
		a, err = tx.Account(context.Background(), identity)
		return err
	})
	if err != nil {
		t.Fatalf("get account %d: %v", identity, err)
	}
	return a
}

// AddCredentials кладёт учётки в пул.
func AddCredentials(t *testing.T, st *store.Store, names ...string) {
	t.Helper()

	err := st.Update(context.Background(), func(tx *store.Tx) error {
		for _, name := range names {
			if err := tx.AddCredential(context.Background(), &store.Credential{Name: name, Secret: "pw-" + name}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("add credentials: %v", err)
	}
}

// SetSetting записывает настройку.
func SetSetting(t *testing.T, st *store.Store, key, value string) {
	t.Helper()

	err := st.Update(context.Background(), func(tx *store.Tx) error {
		return tx.SetSetting(context.Background(), key, value)
	})
	if err != nil {
		t.Fatalf("set setting %s: %v", key, err)
	}
}
