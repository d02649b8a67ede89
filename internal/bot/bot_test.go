package bot

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wallet-bot/internal/callback"
	"wallet-bot/internal/config"
	"wallet-bot/internal/convo"
	"wallet-bot/internal/messenger"
	"wallet-bot/internal/testutil"
)

type fakeAPI struct {
	mu       sync.Mutex
	answered []string
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.answered = append(f.answered, cb.CallbackQueryID)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func privateMessage(id int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: id, FirstName: "Sami", UserName: "sami"},
		Chat:      &tgbotapi.Chat{ID: id, Type: "private"},
		Text:      text,
	}}
}

func button(id int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: id, FirstName: "Sami"},
		Message: &tgbotapi.Message{
			MessageID: 42,
			Chat:      &tgbotapi.Chat{ID: id, Type: "private"},
		},
		Data: data,
	}}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text    string
		command string
		args    []string
		ok      bool
	}{
		{"/start", "start", nil, true},
		{"/START ref_5", "start", []string{"ref_5"}, true},
		{"/addbalance@WalletBot 1 2000 0 tx1 syriatel", "addbalance", []string{"1", "2000", "0", "tx1", "syriatel"}, true},
		{"/help@walletbot", "help", nil, true},
		{"/help@OtherBot", "", nil, false},
		{"  /login   secret  ", "login", []string{"secret"}, true},
		{"/", "", nil, false},
		{"/@WalletBot", "", nil, false},
		{"hello", "", nil, false},
	}
	for _, tt := range tests {
		cmd, args, ok := ParseCommand(tt.text, "WalletBot")
		if cmd != tt.command || ok != tt.ok || !reflect.DeepEqual(args, tt.args) {
			t.Errorf("ParseCommand(%q) = %q %v %v, want %q %v %v", tt.text, cmd, args, ok, tt.command, tt.args, tt.ok)
		}
	}
}

func TestToEventMessage(t *testing.T) {
	ev := toEvent(privateMessage(10, "/start ref_3"), "WalletBot")
	if ev == nil || ev.Kind != messenger.KindCommand || ev.Command != "start" || ev.Identity != 10 || ev.ChatID != 10 {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Text != "/start ref_3" || ev.Username != "sami" {
		t.Errorf("text/username not carried: %+v", ev)
	}

	ev = toEvent(privateMessage(10, "0912345678"), "WalletBot")
	if ev == nil || ev.Kind != messenger.KindText || ev.Text != "0912345678" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestToEventSkipsForeignUpdates(t *testing.T) {
	group := privateMessage(10, "/start")
	group.Message.Chat.Type = "supergroup"
	if toEvent(group, "WalletBot") != nil {
		t.Error("group messages must be skipped")
	}
	if toEvent(privateMessage(10, "   "), "WalletBot") != nil {
		t.Error("empty text must be skipped")
	}
	if toEvent(button(10, `{"a":"nope"}`), "WalletBot") != nil {
		t.Error("unknown action must be skipped")
	}
	if toEvent(tgbotapi.Update{}, "WalletBot") != nil {
		t.Error("empty update must be skipped")
	}
}

func TestToEventCallback(t *testing.T) {
	data, err := callback.Encode(callback.Payload{Action: callback.ApproveDeposit, Request: "r1"})
	testutil.AssertNoError(t, err)

	ev := toEvent(button(10, data), "WalletBot")
	if ev == nil || ev.Kind != messenger.KindCallback {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Payload.Action != callback.ApproveDeposit || ev.Payload.Request != "r1" || ev.MessageID != 42 {
		t.Errorf("payload not decoded: %+v", ev)
	}
}

func newTestBot(t *testing.T, limit int) (*Bot, *fakeAPI, *testutil.Recorder, *Router) {
	t.Helper()

	api := &fakeAPI{}
	rec := &testutil.Recorder{}
	machine := convo.NewMachine(convo.NewMemoryStore(nil), 30*time.Minute, nil)
	router := NewRouter(machine, bans{}, rec, nil)
	cfg := &config.Config{
		BotMaxInflight:          4,
		BotUpdateTimeoutSeconds: 60,
		RateLimitRequests:       limit,
		RateLimitWindow:         time.Minute,
	}
	b := New(api, "WalletBot", cfg, router, nil)
	t.Cleanup(b.Close)
	return b, api, rec, router
}

func TestHandleUpdateDispatches(t *testing.T) {
	b, api, rec, router := newTestBot(t, 10)

	var got []string
	router.Command("start", func(ctx context.Context, ev *messenger.Event) {
		got = append(got, "start:"+ev.Text)
	})
	router.Action(callback.MainMenu, func(ctx context.Context, ev *messenger.Event) {
		got = append(got, "menu")
	})

	b.handleUpdate(context.Background(), privateMessage(10, "/start"))
	data, _ := callback.Encode(callback.Of(callback.MainMenu))
	b.handleUpdate(context.Background(), button(10, data))

	if !reflect.DeepEqual(got, []string{"start:/start", "menu"}) {
		t.Fatalf("handlers called: %v", got)
	}
	if len(api.answered) != 1 || api.answered[0] != "cb-1" {
		t.Errorf("callback answers: %v", api.answered)
	}
	if len(rec.Messages()) != 0 {
		t.Errorf("unexpected replies: %v", rec.Messages())
	}
}

func TestHandleUpdateRateLimited(t *testing.T) {
	b, _, _, router := newTestBot(t, 2)

	calls := 0
	router.Command("start", func(context.Context, *messenger.Event) { calls++ })
	for i := 0; i < 5; i++ {
		b.handleUpdate(context.Background(), privateMessage(10, "/start"))
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}

	b.handleUpdate(context.Background(), privateMessage(11, "/start"))
	if calls != 3 {
		t.Fatalf("other user must not be limited, calls = %d", calls)
	}
}

func TestHandleUpdateRecoversPanic(t *testing.T) {
	b, _, _, router := newTestBot(t, 10)
	router.Command("start", func(context.Context, *messenger.Event) { panic("boom") })

	b.handleUpdate(context.Background(), privateMessage(10, "/start"))
	if b.locks.Len() != 0 {
		t.Fatal("lock must be released after panic")
	}
}
