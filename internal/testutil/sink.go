package testutil

import (
	"context"
	"strings"
	"sync"
	"testing"

	"wallet-bot/internal/callback"
	"wallet-bot/internal/messenger"
)

// Recorder — Sink, который запоминает все исходящие сообщения.
type Recorder struct {
	mu   sync.Mutex
	msgs []messenger.Message
	next int
}

// Send записывает сообщение.
func (r *Recorder) Send(_ context.Context, msg messenger.Message) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	if msg.EditMessageID != 0 {
		return msg.EditMessageID, nil
	}
	r.next++
	return r.next, nil
}

// Messages возвращает копию всех сообщений.
func (r *Recorder) Messages() []messenger.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]messenger.Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// To возвращает сообщения одному чату.
func (r *Recorder) To(chatID int64) []messenger.Message {
	var out []messenger.Message
	for _, m := range r.Messages() {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// Last возвращает последнее сообщение чату или пустое.
func (r *Recorder) Last(chatID int64) messenger.Message {
	msgs := r.To(chatID)
	if len(msgs) == 0 {
		return messenger.Message{}
	}
	return msgs[len(msgs)-1]
}

// Reset очищает записи.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

// AssertSent проверяет, что чату ушло сообщение, содержащее substr.
func (r *Recorder) AssertSent(t *testing.T, chatID int64, substr string) messenger.Message {
	t.Helper()

	for _, m := range r.To(chatID) {
		if strings.Contains(m.Text, substr) {
			return m
		}
	}
	t.Fatalf("no message to %d containing %q; got %d messages: %v", chatID, substr, len(r.To(chatID)), texts(r.To(chatID)))
	return messenger.Message{}
}

// AssertNothingTo проверяет, что чату ничего не отправлялось.
func (r *Recorder) AssertNothingTo(t *testing.T, chatID int64) {
	t.Helper()

	if msgs := r.To(chatID); len(msgs) > 0 {
		t.Fatalf("expected no messages to %d, got %v", chatID, texts(msgs))
	}
}

// FindButton ищет кнопку с действием action в сообщении.
func FindButton(msg messenger.Message, action callback.Action) (messenger.Button, bool) {
	for _, row := range msg.Keyboard {
		for _, b := range row {
			if b.Payload.Action == action {
				return b, true
			}
		}
	}
	return messenger.Button{}, false
}

func texts(msgs []messenger.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}
