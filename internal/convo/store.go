package convo

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// StateStore хранит состояния диалогов. Load возвращает nil, если
// состояния нет или оно истекло.
type StateStore interface {
	Load(ctx context.Context, identity int64) (*State, error)
	Save(ctx context.Context, identity int64, st *State) error
	Delete(ctx context.Context, identity int64) error
}

// MemoryStore — хранилище в памяти процесса.
type MemoryStore struct {
	mu     sync.Mutex
	states map[int64]State
	now    func() time.Time
}

// NewMemoryStore создаёт хранилище. now == nil — time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{states: make(map[int64]State), now: now}
}

// Load возвращает копию состояния.
func (m *MemoryStore) Load(_ context.Context, identity int64) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[identity]
	if !ok {
		return nil, nil
	}
	if st.Expired(m.now()) {
		delete(m.states, identity)
		return nil, nil
	}
	return &st, nil
}

// Save сохраняет копию состояния.
func (m *MemoryStore) Save(_ context.Context, identity int64, st *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[identity] = *st
	return nil
}

// Delete удаляет состояние.
func (m *MemoryStore) Delete(_ context.Context, identity int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, identity)
	return nil
}

// Sweep удаляет истёкшие состояния и возвращает их число.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for id, st := range m.states {
		if st.Expired(now) {
			delete(m.states, id)
			n++
		}
	}
	return n
}

// Len — число хранимых состояний (включая ещё не выметенные истёкшие).
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

// JSONCache — часть cache.Redis, нужная RedisStore.
type JSONCache interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	Delete(ctx context.Context, key string) error
}

// RedisStore хранит состояния в Redis; истечение делает сам Redis по TTL ключа.
type RedisStore struct {
	redis  JSONCache
	prefix string
	now    func() time.Time
}

// NewRedisStore создаёт хранилище с префиксом ключей "convo:".
func NewRedisStore(r JSONCache) *RedisStore {
	return &RedisStore{redis: r, prefix: "convo:", now: time.Now}
}

// SetClock подменяет часы (для тестов).
func (r *RedisStore) SetClock(now func() time.Time) {
	r.now = now
}

func (r *RedisStore) key(identity int64) string {
	return r.prefix + strconv.FormatInt(identity, 10)
}

// Load читает состояние.
func (r *RedisStore) Load(ctx context.Context, identity int64) (*State, error) {
	var st State
	ok, err := r.redis.GetJSON(ctx, r.key(identity), &st)
	if err != nil || !ok {
		return nil, err
	}
	if st.Expired(r.now()) {
		return nil, nil
	}
	return &st, nil
}

// Save записывает состояние с TTL до ExpiresAt.
func (r *RedisStore) Save(ctx context.Context, identity int64, st *State) error {
	ttl := st.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return r.redis.Delete(ctx, r.key(identity))
	}
	return r.redis.SetJSON(ctx, r.key(identity), st, ttl)
}

// Delete удаляет состояние.
func (r *RedisStore) Delete(ctx context.Context, identity int64) error {
	return r.redis.Delete(ctx, r.key(identity))
}
