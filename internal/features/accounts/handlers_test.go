package accounts_test

import (
	"context"
	"testing"
	"time"

	"wallet-bot/internal/callback"
	"wallet-bot/internal/config"
	"wallet-bot/internal/convo"
	"wallet-bot/internal/features/accounts"
	"wallet-bot/internal/features/ledger"
	"wallet-bot/internal/messenger"
	"wallet-bot/internal/store"
	"wallet-bot/internal/testutil"
)

const adminID int64 = 1

type fixture struct {
	st      *store.Store
	sink    *testutil.Recorder
	machine *convo.Machine
	h       *accounts.Handler
}

type fakeGate struct {
	subscribed map[int64]bool
}

func (g *fakeGate) Channel() string { return "@wallet_news" }

func (g *fakeGate) Subscribed(_ context.Context, id int64) bool { return g.subscribed[id] }

func newFixture(t *testing.T, gate accounts.Gate) *fixture {
	t.Helper()
	st, _ := testutil.NewStore(t)
	sink := &testutil.Recorder{}
	machine := convo.NewMachine(convo.NewMemoryStore(nil), 30*time.Minute, nil)
	proc := ledger.NewProcessor(st, time.UTC, config.CounterResetDaily, nil)
	h := accounts.NewHandler(accounts.NewRegistry(st), proc, machine, sink, gate, adminID, false)
	return &fixture{st: st, sink: sink, machine: machine, h: h}
}

func press(id int64, p callback.Payload) *messenger.Event {
	return &messenger.Event{Kind: messenger.KindCallback, Identity: id, ChatID: id, Payload: p, MessageID: 10}
}

func say(id int64, s string) *messenger.Event {
	return &messenger.Event{Kind: messenger.KindText, Identity: id, ChatID: id, Text: s}
}

func TestStartOffersRegistrationWithReferrer(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.h.HandleStart(ctx, &messenger.Event{Kind: messenger.KindCommand, Identity: 50, ChatID: 50, Command: "start", Args: []string{"ref_7"}})

	msg := f.sink.Last(50)
	b, ok := testutil.FindButton(msg, callback.CreateAccount)
	if !ok {
		t.Fatalf("no create-account button: %+v", msg)
	}
	if b.Payload.User != 7 {
		t.Fatalf("referrer in button = %d, want 7", b.Payload.User)
	}
}

func TestStartRequiresSubscription(t *testing.T) {
	gate := &fakeGate{subscribed: map[int64]bool{}}
	f := newFixture(t, gate)
	ctx := context.Background()
	testutil.CreateAccount(t, f.st, 50)

	f.h.HandleStart(ctx, &messenger.Event{Kind: messenger.KindCommand, Identity: 50, ChatID: 50, Command: "start"})
	msg := f.sink.AssertSent(t, 50, "@wallet_news")
	if _, ok := testutil.FindButton(msg, callback.CheckSub); !ok {
		t.Fatal("no check-subscription button")
	}

	gate.subscribed[50] = true
	f.sink.Reset()
	f.h.HandleCheckSub(ctx, press(50, callback.Of(callback.CheckSub)))
	f.sink.AssertSent(t, 50, "Главное меню")
}

func TestCreateAccountEmptyPoolNotifiesAdmin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.h.HandleCreateAccount(ctx, press(50, callback.Of(callback.CreateAccount)))

	f.sink.AssertSent(t, 50, "5 минут")
	msg := f.sink.AssertSent(t, adminID, "<code>50</code>")
	b, ok := testutil.FindButton(msg, callback.SetCredentials)
	if !ok || b.Payload.User != 50 {
		t.Fatalf("admin button missing or wrong target: %+v", msg)
	}

	err := f.st.View(ctx, func(tx *store.Tx) error {
		_, err := tx.Account(ctx, 50)
		return err
	})
	testutil.AssertErrorIs(t, err, store.ErrNotFound)
}

func TestCreateAccountSendsCredentialsAndNotifiesReferrer(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	testutil.CreateAccount(t, f.st, 7)
	testutil.AddCredentials(t, f.st, "alpha")

	f.h.HandleCreateAccount(ctx, press(50, callback.Payload{Action: callback.CreateAccount, User: 7}))

	f.sink.AssertSent(t, 50, "alpha")
	f.sink.AssertSent(t, 7, "<code>50</code>")
	a := testutil.GetAccount(t, f.st, 50)
	if a.ReferredBy == nil || *a.ReferredBy != 7 {
		t.Fatalf("referrer not stored: %+v", a.ReferredBy)
	}
}

func TestAdminSetsCredentialsAfterNameClash(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	testutil.CreateAccount(t, f.st, 7)

	f.h.HandleSetCredentials(ctx, press(adminID, callback.Payload{Action: callback.SetCredentials, User: 50}))

	inputs := []string{"user7", "pw", "newname", "pw2"}
	for _, in := range inputs {
		handled, err := f.machine.Handle(ctx, say(adminID, in))
		testutil.AssertNoError(t, err)
		if !handled {
			t.Fatalf("input %q not handled", in)
		}
	}
	f.sink.AssertSent(t, adminID, "уже занят")
	f.sink.AssertSent(t, 50, "newname")

	a := testutil.GetAccount(t, f.st, 50)
	if a.CredentialName != "newname" || a.CredentialSecret != "pw2" {
		t.Fatalf("credentials = %s/%s", a.CredentialName, a.CredentialSecret)
	}
	if st, _ := f.machine.Current(ctx, adminID); st != nil {
		t.Fatalf("flow not finished: %+v", st)
	}
}

func TestIchancyTransferFlow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	testutil.CreateAccount(t, f.st, 50, testutil.WithBalance(30000))

	f.h.HandleIchancyDeposit(ctx, press(50, callback.Of(callback.IchancyDeposit)))
	for _, in := range []string{"abc", "5000", "20000"} {
		_, err := f.machine.Handle(ctx, say(50, in))
		testutil.AssertNoError(t, err)
	}
	a := testutil.GetAccount(t, f.st, 50)
	testutil.AssertBalance(t, a.BotBalance, 10000)
	testutil.AssertBalance(t, a.ExternalBalance, 20000)

	f.h.HandleIchancyWithdraw(ctx, press(50, callback.Of(callback.IchancyWithdraw)))
	_, err := f.machine.Handle(ctx, say(50, "25000"))
	testutil.AssertNoError(t, err)
	f.sink.AssertSent(t, 50, "Недостаточно средств на балансе Ichancy")
	if st, _ := f.machine.Current(ctx, 50); st != nil {
		t.Fatalf("flow should end on insufficient balance: %+v", st)
	}
}
