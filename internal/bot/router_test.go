package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"wallet-bot/internal/callback"
	"wallet-bot/internal/convo"
	"wallet-bot/internal/features/menu"
	"wallet-bot/internal/messenger"
	"wallet-bot/internal/testutil"
)

type bans map[int64]string

func (b bans) BanStatus(_ context.Context, id int64) (bool, string, error) {
	if id < 0 {
		return false, "", errors.New("db down")
	}
	reason, ok := b[id]
	return ok, reason, nil
}

func newRouter(t *testing.T, banned bans) (*Router, *convo.Machine, *testutil.Recorder) {
	t.Helper()
	rec := &testutil.Recorder{}
	machine := convo.NewMachine(convo.NewMemoryStore(nil), 30*time.Minute, nil)
	return NewRouter(machine, banned, rec, nil), machine, rec
}

func command(id int64, name string) *messenger.Event {
	return &messenger.Event{Kind: messenger.KindCommand, Identity: id, ChatID: id, Command: name, Text: "/" + name}
}

func text(id int64, s string) *messenger.Event {
	return &messenger.Event{Kind: messenger.KindText, Identity: id, ChatID: id, Text: s}
}

func TestRouterBannedUser(t *testing.T) {
	r, _, rec := newRouter(t, bans{5: "спам <b>"})
	called := false
	r.Command("start", func(context.Context, *messenger.Event) { called = true })

	r.Dispatch(context.Background(), command(5, "start"))
	if called {
		t.Fatal("banned user reached handler")
	}
	got := rec.Last(5).Text
	if !strings.Contains(got, "заблокирован") || !strings.Contains(got, "спам &lt;b&gt;") {
		t.Errorf("ban notice = %q", got)
	}
}

func TestRouterBanCheckFailure(t *testing.T) {
	r, _, rec := newRouter(t, bans{})
	r.Command("start", func(context.Context, *messenger.Event) { t.Fatal("handler called") })

	r.Dispatch(context.Background(), command(-1, "start"))
	if rec.Last(-1).Text != menu.Failure {
		t.Errorf("reply = %q", rec.Last(-1).Text)
	}
}

func TestRouterAdminGate(t *testing.T) {
	r, _, _ := newRouter(t, bans{})
	calls := 0
	r.AdminCommand("users", func(context.Context, *messenger.Event) { calls++ })
	r.Action(callback.ApproveDeposit, func(context.Context, *messenger.Event) { calls++ })

	// без SetAdminGate всё закрыто
	r.Dispatch(context.Background(), command(1, "users"))
	if calls != 0 {
		t.Fatal("default gate must deny")
	}

	r.SetAdminGate(func(_ context.Context, ev *messenger.Event) bool { return ev.Identity == 1 })
	r.Dispatch(context.Background(), command(1, "users"))
	r.Dispatch(context.Background(), command(2, "users"))
	r.Dispatch(context.Background(), &messenger.Event{
		Kind: messenger.KindCallback, Identity: 2, ChatID: 2,
		Payload: callback.Payload{Action: callback.ApproveDeposit},
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRouterUnknownCommand(t *testing.T) {
	r, _, rec := newRouter(t, bans{})
	r.Dispatch(context.Background(), command(1, "nope"))
	if !strings.Contains(rec.Last(1).Text, "Неизвестная команда") {
		t.Errorf("reply = %q", rec.Last(1).Text)
	}
}

func TestRouterTextGoesToActiveFlow(t *testing.T) {
	r, machine, _ := newRouter(t, bans{})
	ctx := context.Background()

	var steps []string
	machine.Register(convo.FlowGiftRedeem, func(_ context.Context, ev *messenger.Event, st *convo.State) convo.Result {
		steps = append(steps, ev.Text)
		return convo.Done
	})
	fallbacks := 0
	r.Fallback(func(context.Context, *messenger.Event) { fallbacks++ })

	testutil.AssertNoError(t, machine.Begin(ctx, 1, convo.FlowGiftRedeem, "code", convo.Scratch{}))
	r.Dispatch(ctx, text(1, "ABCDEF1234"))
	r.Dispatch(ctx, text(1, "ещё"))

	if len(steps) != 1 || steps[0] != "ABCDEF1234" {
		t.Fatalf("flow steps = %v", steps)
	}
	if fallbacks != 1 {
		t.Fatalf("fallbacks = %d, want 1", fallbacks)
	}
}
