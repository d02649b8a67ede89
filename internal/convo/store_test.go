package convo_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"wallet-bot/internal/cache"
	"wallet-bot/internal/convo"
	"wallet-bot/internal/testutil"
)

var _ convo.JSONCache = (*cache.Redis)(nil)

// fakeCache хранит JSON как Redis и запоминает TTL последней записи.
type fakeCache struct {
	data   map[string][]byte
	ttls   map[string]time.Duration
	sets   int
	getErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (c *fakeCache) SetJSON(_ context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.sets++
	c.data[key] = b
	c.ttls[key] = ttl
	return nil
}

func (c *fakeCache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	if c.getErr != nil {
		return false, c.getErr
	}
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	delete(c.data, key)
	delete(c.ttls, key)
	return nil
}

func newRedisStore() (*convo.RedisStore, *fakeCache, *testutil.Clock) {
	kv := newFakeCache()
	clock := testutil.NewClock(testutil.Epoch)
	rs := convo.NewRedisStore(kv)
	rs.SetClock(clock.Now)
	return rs, kv, clock
}

func TestRedisStoreSaveSetsTTL(t *testing.T) {
	rs, kv, _ := newRedisStore()
	ctx := context.Background()

	st := &convo.State{
		Flow:      convo.FlowDepositSyriatel,
		Step:      "amount",
		Scratch:   convo.Scratch{TxRef: "TX-1", Amount: 5000},
		ExpiresAt: testutil.Epoch.Add(30 * time.Minute),
	}
	testutil.AssertNoError(t, rs.Save(ctx, 10, st))

	if ttl := kv.ttls["convo:10"]; ttl != 30*time.Minute {
		t.Fatalf("ttl = %v, want 30m", ttl)
	}

	got, err := rs.Load(ctx, 10)
	testutil.AssertNoError(t, err)
	if got == nil {
		t.Fatal("state not loaded")
	}
	if got.Flow != st.Flow || got.Step != st.Step || got.Scratch != st.Scratch || !got.ExpiresAt.Equal(st.ExpiresAt) {
		t.Fatalf("loaded %+v, want %+v", got, st)
	}
}

func TestRedisStoreSaveExpiredDeletesKey(t *testing.T) {
	rs, kv, clock := newRedisStore()
	ctx := context.Background()

	st := &convo.State{Flow: convo.FlowGiftSend, Step: "amount", ExpiresAt: testutil.Epoch.Add(time.Minute)}
	testutil.AssertNoError(t, rs.Save(ctx, 10, st))

	// срок истёк к моменту записи
	clock.Advance(time.Minute)
	st.Step = "confirm"
	testutil.AssertNoError(t, rs.Save(ctx, 10, st))

	if _, ok := kv.data["convo:10"]; ok {
		t.Fatal("expired state must remove the key")
	}
	if kv.sets != 1 {
		t.Fatalf("sets = %d, want 1", kv.sets)
	}
	got, err := rs.Load(ctx, 10)
	testutil.AssertNoError(t, err)
	if got != nil {
		t.Fatalf("loaded %+v after expiry", got)
	}
}

func TestRedisStoreLoadExpiredBeforeEviction(t *testing.T) {
	rs, kv, clock := newRedisStore()
	ctx := context.Background()

	st := &convo.State{Flow: convo.FlowGiftSend, Step: "amount", ExpiresAt: testutil.Epoch.Add(time.Minute)}
	testutil.AssertNoError(t, rs.Save(ctx, 10, st))

	clock.Advance(2 * time.Minute)
	got, err := rs.Load(ctx, 10)
	testutil.AssertNoError(t, err)
	if got != nil {
		t.Fatalf("loaded expired state %+v", got)
	}
	if _, ok := kv.data["convo:10"]; !ok {
		t.Fatal("load must not touch the key")
	}
}

func TestRedisStoreMissingAndDelete(t *testing.T) {
	rs, kv, _ := newRedisStore()
	ctx := context.Background()

	got, err := rs.Load(ctx, 10)
	testutil.AssertNoError(t, err)
	if got != nil {
		t.Fatalf("loaded %+v for unknown user", got)
	}

	st := &convo.State{Flow: convo.FlowGiftSend, Step: "amount", ExpiresAt: testutil.Epoch.Add(time.Minute)}
	testutil.AssertNoError(t, rs.Save(ctx, 10, st))
	testutil.AssertNoError(t, rs.Save(ctx, 11, st))
	testutil.AssertNoError(t, rs.Delete(ctx, 10))

	if _, ok := kv.data["convo:10"]; ok {
		t.Fatal("state not deleted")
	}
	if _, ok := kv.data["convo:11"]; !ok {
		t.Fatal("other user's state deleted")
	}
}

func TestRedisStoreLoadError(t *testing.T) {
	rs, kv, _ := newRedisStore()
	kv.getErr = errors.New("connection refused")

	got, err := rs.Load(context.Background(), 10)
	testutil.AssertErrorIs(t, err, kv.getErr)
	if got != nil {
		t.Fatalf("loaded %+v on error", got)
	}
}
