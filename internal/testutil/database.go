// Package testutil — общие помощники для тестов: хранилище на временной
// SQLite-базе, записывающий Sink и проверки.
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wallet-bot/internal/db/sqlite"
	"wallet-bot/internal/store"
)

// Clock — управляемые часы для тестов.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock создаёт часы, стоящие на t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now возвращает текущее время часов.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance сдвигает часы вперёд.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Epoch — стартовое время тестовых часов (полдень по UTC).
var Epoch = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

// NewStore открывает чистую SQLite-базу во временном каталоге и применяет миграции.
func NewStore(t *testing.T) (*store.Store, *Clock) {
	t.Helper()

	ctx := context.Background()
	conn, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "wallet.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	st := store.New(conn, store.SQLite)
	clock := NewClock(Epoch)
	st.SetClock(clock.Now)
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st, clock
}
