package support_test

import (
	"context"
	"testing"
	"time"

	"wallet-bot/internal/callback"
	"wallet-bot/internal/convo"
	"wallet-bot/internal/features/settings"
	"wallet-bot/internal/features/support"
	"wallet-bot/internal/messenger"
	"wallet-bot/internal/store"
	"wallet-bot/internal/testutil"
)

const adminID int64 = 1

func newHandler(t *testing.T) (*support.Handler, *convo.Machine, *testutil.Recorder, *store.Store) {
	t.Helper()
	st, _ := testutil.NewStore(t)
	sink := &testutil.Recorder{}
	machine := convo.NewMachine(convo.NewMemoryStore(nil), 30*time.Minute, nil)
	h := support.NewHandler(settings.NewService(st), machine, sink, nil, adminID)
	return h, machine, sink, st
}

func say(t *testing.T, m *convo.Machine, id int64, text string) {
	t.Helper()
	handled, err := m.Handle(context.Background(), &messenger.Event{Kind: messenger.KindText, Identity: id, ChatID: id, Text: text, Username: "tester"})
	testutil.AssertNoError(t, err)
	if !handled {
		t.Fatalf("input %q not handled", text)
	}
}

func TestSupportRoundTrip(t *testing.T) {
	h, m, sink, _ := newHandler(t)
	ctx := context.Background()

	h.HandleSupport(ctx, &messenger.Event{Kind: messenger.KindCallback, Identity: 10, ChatID: 10, Payload: callback.Of(callback.Support)})
	say(t, m, 10, "   ")
	say(t, m, 10, "не пришло <пополнение>")

	msg := sink.AssertSent(t, adminID, "&lt;пополнение&gt;")
	b, ok := testutil.FindButton(msg, callback.SupportReply)
	if !ok || b.Payload.User != 10 {
		t.Fatalf("reply button missing: %+v", msg.Keyboard)
	}

	h.HandleReply(ctx, &messenger.Event{Kind: messenger.KindCallback, Identity: adminID, ChatID: adminID, Payload: b.Payload})
	say(t, m, adminID, "Проверили, всё зачислено")
	sink.AssertSent(t, 10, "Проверили, всё зачислено")
	sink.AssertSent(t, adminID, "Ответ отправлен")

	for _, id := range []int64{10, adminID} {
		if st, _ := m.Current(ctx, id); st != nil {
			t.Fatalf("flow of %d not finished: %+v", id, st)
		}
	}
}

func TestContact(t *testing.T) {
	h, _, sink, st := newHandler(t)
	ctx := context.Background()
	ev := &messenger.Event{Kind: messenger.KindCallback, Identity: 10, ChatID: 10, Payload: callback.Of(callback.Contact)}

	h.HandleContact(ctx, ev)
	sink.AssertSent(t, 10, "недоступен")

	testutil.SetSetting(t, st, store.SettingContactAddress, "@wallet_support")
	h.HandleContact(ctx, ev)
	sink.AssertSent(t, 10, "@wallet_support")

	sink.Reset()
	testutil.SetSetting(t, st, store.SettingContactAddress, settings.Disabled)
	h.HandleContact(ctx, ev)
	sink.AssertSent(t, 10, "недоступен")
}
