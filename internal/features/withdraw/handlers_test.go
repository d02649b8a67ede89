package withdraw_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"wallet-bot/internal/callback"
	"wallet-bot/internal/config"
	"wallet-bot/internal/convo"
	"wallet-bot/internal/features/ledger"
	"wallet-bot/internal/features/withdraw"
	"wallet-bot/internal/messenger"
	"wallet-bot/internal/store"
	"wallet-bot/internal/testutil"
)

const adminID int64 = 1

func TestValidPhone(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0933123456", true},
		{"0999999999", true},
		{"0833123456", false},
		{"093312345", false},
		{"09331234567", false},
		{"09331234a6", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := withdraw.ValidPhone(tt.in); got != tt.want {
			t.Errorf("ValidPhone(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidPayeerWallet(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"P1130351459", true},
		{"P1234567", true},
		{"P123456", false},
		{"p1130351459", false},
		{"1130351459", false},
	}
	for _, tt := range tests {
		if got := withdraw.ValidPayeerWallet(tt.in); got != tt.want {
			t.Errorf("ValidPayeerWallet(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

type fixture struct {
	st      *store.Store
	sink    *testutil.Recorder
	machine *convo.Machine
	h       *withdraw.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, _ := testutil.NewStore(t)
	sink := &testutil.Recorder{}
	machine := convo.NewMachine(convo.NewMemoryStore(nil), 30*time.Minute, nil)
	proc := ledger.NewProcessor(st, time.UTC, config.CounterResetDaily, nil)
	h := withdraw.NewHandler(proc, machine, sink, adminID, decimal.NewFromInt(12400))
	return &fixture{st: st, sink: sink, machine: machine, h: h}
}

func (f *fixture) say(t *testing.T, id int64, inputs ...string) {
	t.Helper()
	for _, in := range inputs {
		handled, err := f.machine.Handle(context.Background(), &messenger.Event{Kind: messenger.KindText, Identity: id, ChatID: id, Text: in})
		testutil.AssertNoError(t, err)
		if !handled {
			t.Fatalf("input %q not handled", in)
		}
	}
}

func press(id int64, a callback.Action) *messenger.Event {
	return &messenger.Event{Kind: messenger.KindCallback, Identity: id, ChatID: id, Payload: callback.Of(a), MessageID: 9}
}

func TestSyriatelWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.CreateAccount(t, f.st, 10, testutil.WithBalance(50000))

	f.h.HandleSyriatel(ctx, press(10, callback.WithdrawSyriatel))
	f.say(t, 10, "12345", "0933123456", "10000", "20000")
	f.sink.AssertSent(t, 10, "Неверный номер")
	f.sink.AssertSent(t, 10, "минимальная сумма вывода")
	msg := f.sink.AssertSent(t, 10, "К получению: <b>18 000")
	if _, ok := testutil.FindButton(msg, callback.WithdrawConfirm); !ok {
		t.Fatal("no confirm button")
	}

	f.h.HandleConfirm(ctx, press(10, callback.WithdrawConfirm))
	a := testutil.GetAccount(t, f.st, 10)
	testutil.AssertBalance(t, a.BotBalance, 30000)
	if a.PhoneNumber != "0933123456" || a.DailyWithdrawalCount != 1 {
		t.Fatalf("account after withdrawal: phone=%q count=%d", a.PhoneNumber, a.DailyWithdrawalCount)
	}
	f.sink.AssertSent(t, adminID, "0933123456")

	// второй вывод: номер сохранён, ставка 5%
	f.sink.Reset()
	f.h.HandleSyriatel(ctx, press(10, callback.WithdrawSyriatel))
	st, err := f.machine.Current(ctx, 10)
	testutil.AssertNoError(t, err)
	if st.Step != "amount" {
		t.Fatalf("saved phone should skip address step, got %q", st.Step)
	}
	f.say(t, 10, "20000")
	f.sink.AssertSent(t, 10, "К получению: <b>19 000")
}

func TestPayeerWithdrawalShowsUSD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.CreateAccount(t, f.st, 10, testutil.WithBalance(100000))

	f.h.HandlePayeer(ctx, press(10, callback.WithdrawPayeer))
	f.say(t, 10, "P1130351459", "30000", "49600")
	f.sink.AssertSent(t, 10, "минимальная сумма вывода")
	// 49600 - 10% = 44640; 44640 / 12400 = 3.60
	f.sink.AssertSent(t, 10, "≈ 3.60 USD")
}

func TestConfirmAfterBalanceDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.CreateAccount(t, f.st, 10, testutil.WithBalance(25000), testutil.WithPhone("0933123456"))

	f.h.HandleSyriatel(ctx, press(10, callback.WithdrawSyriatel))
	f.say(t, 10, "25000")

	proc := ledger.NewProcessor(f.st, time.UTC, config.CounterResetDaily, nil)
	_, err := proc.ApplyDeduction(ctx, 10, 10000, "")
	testutil.AssertNoError(t, err)

	f.h.HandleConfirm(ctx, press(10, callback.WithdrawConfirm))
	f.sink.AssertSent(t, 10, "Недостаточно средств")
	testutil.AssertBalance(t, testutil.GetAccount(t, f.st, 10).BotBalance, 15000)
	f.sink.AssertNothingTo(t, adminID)
}

func TestDisabledChannels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.h.HandleUSDT(ctx, press(10, callback.WithdrawUSDT))
	f.sink.AssertSent(t, 10, "поддержкой")
	f.h.HandleBemo(ctx, press(10, callback.WithdrawBemo))
	f.sink.AssertSent(t, 10, "временно недоступен")
}
