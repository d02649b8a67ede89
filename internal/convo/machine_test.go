package convo_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"wallet-bot/internal/convo"
	"wallet-bot/internal/messenger"
	"wallet-bot/internal/testutil"
)

func newMachine(t *testing.T) (*convo.Machine, *convo.MemoryStore, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock(testutil.Epoch)
	store := convo.NewMemoryStore(clock.Now)
	m := convo.NewMachine(store, 30*time.Minute, nil)
	m.SetClock(clock.Now)
	return m, store, clock
}

func text(identity int64, s string) *messenger.Event {
	return &messenger.Event{Kind: messenger.KindText, Identity: identity, ChatID: identity, Text: s}
}

// Двухшаговый сценарий: номер транзакции, затем сумма.
func registerDeposit(m *convo.Machine, done *[]convo.Scratch) {
	m.Register(convo.FlowDepositSyriatel, func(_ context.Context, ev *messenger.Event, st *convo.State) convo.Result {
		switch st.Step {
		case "tx_ref":
			st.Scratch.TxRef = ev.Text
			st.Step = "amount"
			return convo.Advance
		case "amount":
			n, err := strconv.ParseInt(ev.Text, 10, 64)
			if err != nil || n <= 0 {
				return convo.Stay
			}
			st.Scratch.Amount = n
			*done = append(*done, st.Scratch)
			return convo.Done
		}
		return convo.Done
	})
}

func TestMachineStepResults(t *testing.T) {
	m, _, _ := newMachine(t)
	ctx := context.Background()
	var done []convo.Scratch
	registerDeposit(m, &done)

	handled, err := m.Handle(ctx, text(1, "hello"))
	testutil.AssertNoError(t, err)
	if handled {
		t.Fatal("text without active flow must not be handled")
	}

	testutil.AssertNoError(t, m.Begin(ctx, 1, convo.FlowDepositSyriatel, "tx_ref", convo.Scratch{}))

	steps := []struct {
		input    string
		wantStep string
	}{
		{"TX-1", "amount"},
		{"abc", "amount"}, // остаётся на шаге
		{"-5", "amount"},
		{"5000", ""},
	}
	for _, s := range steps {
		handled, err := m.Handle(ctx, text(1, s.input))
		testutil.AssertNoError(t, err)
		if !handled {
			t.Fatalf("input %q not handled", s.input)
		}
		st, err := m.Current(ctx, 1)
		testutil.AssertNoError(t, err)
		got := ""
		if st != nil {
			got = st.Step
		}
		if got != s.wantStep {
			t.Fatalf("after %q step = %q, want %q", s.input, got, s.wantStep)
		}
	}

	if len(done) != 1 || done[0].TxRef != "TX-1" || done[0].Amount != 5000 {
		t.Fatalf("unexpected completion: %+v", done)
	}
}

func TestMachineBeginOverwrites(t *testing.T) {
	m, _, _ := newMachine(t)
	ctx := context.Background()

	testutil.AssertNoError(t, m.Begin(ctx, 1, convo.FlowGiftSend, "amount", convo.Scratch{Recipient: 9, Amount: 100}))
	testutil.AssertNoError(t, m.Begin(ctx, 1, convo.FlowGiftRedeem, "code", convo.Scratch{}))

	st, err := m.Current(ctx, 1)
	testutil.AssertNoError(t, err)
	if st.Flow != convo.FlowGiftRedeem || st.Scratch.Recipient != 0 || st.Scratch.Amount != 0 {
		t.Fatalf("previous scratch leaked into new flow: %+v", st)
	}
}

func TestMachineStateExpires(t *testing.T) {
	m, store, clock := newMachine(t)
	ctx := context.Background()
	var done []convo.Scratch
	registerDeposit(m, &done)

	testutil.AssertNoError(t, m.Begin(ctx, 1, convo.FlowDepositSyriatel, "tx_ref", convo.Scratch{}))
	testutil.AssertNoError(t, m.Begin(ctx, 2, convo.FlowDepositSyriatel, "tx_ref", convo.Scratch{}))

	clock.Advance(20 * time.Minute)
	// Шаг продлевает состояние первого пользователя
	_, err := m.Handle(ctx, text(1, "TX"))
	testutil.AssertNoError(t, err)

	clock.Advance(15 * time.Minute)
	if n := store.Sweep(); n != 1 {
		t.Fatalf("swept %d states, want 1", n)
	}
	handled, err := m.Handle(ctx, text(2, "TX"))
	testutil.AssertNoError(t, err)
	if handled {
		t.Fatal("expired flow must not handle input")
	}
	st, err := m.Current(ctx, 1)
	testutil.AssertNoError(t, err)
	if st == nil || st.Step != "amount" {
		t.Fatalf("active flow lost: %+v", st)
	}
}

func TestMachineConfirm(t *testing.T) {
	m, _, _ := newMachine(t)
	ctx := context.Background()

	_, err := m.Confirm(ctx, 1, "confirm", convo.FlowWithdrawSyriatel)
	if !errors.Is(err, convo.ErrExpired) {
		t.Fatalf("expected ErrExpired without state, got %v", err)
	}

	testutil.AssertNoError(t, m.Begin(ctx, 1, convo.FlowWithdrawPayeer, "confirm", convo.Scratch{Amount: 40000}))

	_, err = m.Confirm(ctx, 1, "confirm", convo.FlowWithdrawSyriatel)
	if !errors.Is(err, convo.ErrExpired) {
		t.Fatalf("expected ErrExpired for other flow, got %v", err)
	}
	_, err = m.Confirm(ctx, 1, "amount", convo.FlowWithdrawPayeer)
	if !errors.Is(err, convo.ErrExpired) {
		t.Fatalf("expected ErrExpired for other step, got %v", err)
	}

	st, err := m.Confirm(ctx, 1, "confirm", convo.FlowWithdrawSyriatel, convo.FlowWithdrawPayeer)
	testutil.AssertNoError(t, err)
	if st.Scratch.Amount != 40000 {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestMachineUnknownFlowIsCleared(t *testing.T) {
	m, _, _ := newMachine(t)
	ctx := context.Background()

	testutil.AssertNoError(t, m.Begin(ctx, 1, convo.FlowAdminReply, "text", convo.Scratch{Target: 5}))
	handled, err := m.Handle(ctx, text(1, "hi"))
	testutil.AssertNoError(t, err)
	if handled {
		t.Fatal("flow without handler must fall through")
	}
	st, err := m.Current(ctx, 1)
	testutil.AssertNoError(t, err)
	if st != nil {
		t.Fatalf("state not cleared: %+v", st)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := convo.NewMemoryStore(nil)
	ctx := context.Background()

	testutil.AssertNoError(t, store.Save(ctx, 1, &convo.State{Flow: convo.FlowGiftSend, Step: "amount"}))
	st, err := store.Load(ctx, 1)
	testutil.AssertNoError(t, err)
	st.Step = "mutated"

	again, err := store.Load(ctx, 1)
	testutil.AssertNoError(t, err)
	if again.Step != "amount" {
		t.Fatalf("stored state mutated through returned pointer: %+v", again)
	}
}
