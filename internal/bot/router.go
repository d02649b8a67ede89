package bot

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/callback"
	"wallet-bot/internal/common"
	"wallet-bot/internal/convo"
	"wallet-bot/internal/features/menu"
	"wallet-bot/internal/messenger"
	"wallet-bot/internal/metrics"
)

// HandlerFunc обрабатывает одно событие.
type HandlerFunc func(ctx context.Context, ev *messenger.Event)

// GateFunc решает, пропустить ли событие к обработчику админа.
type GateFunc func(ctx context.Context, ev *messenger.Event) bool

// BanChecker сообщает, заблокирован ли пользователь.
type BanChecker interface {
	BanStatus(ctx context.Context, identity int64) (bool, string, error)
}

type route struct {
	fn    HandlerFunc
	admin bool
}

// Router раскладывает события по обработчикам.
// Порядок: бан → проверка админа → обработчик; свободный текст идёт в
// активный сценарий, а без сценария в fallback.
type Router struct {
	commands map[string]route
	actions  map[callback.Action]route
	fallback HandlerFunc
	gate     GateFunc

	machine *convo.Machine
	bans    BanChecker
	sink    messenger.Sink
	metrics *metrics.Metrics
}

// NewRouter создаёт маршрутизатор.
func NewRouter(machine *convo.Machine, bans BanChecker, sink messenger.Sink, m *metrics.Metrics) *Router {
	return &Router{
		commands: make(map[string]route),
		actions:  make(map[callback.Action]route),
		machine:  machine,
		bans:     bans,
		sink:     sink,
		metrics:  m,
		gate:     func(context.Context, *messenger.Event) bool { return false },
	}
}

// SetAdminGate задаёт проверку для команд и кнопок админа.
func (r *Router) SetAdminGate(g GateFunc) {
	r.gate = g
}

// Command регистрирует пользовательскую команду (без слэша).
func (r *Router) Command(name string, fn HandlerFunc) {
	r.commands[name] = route{fn: fn}
}

// AdminCommand регистрирует команду админа.
func (r *Router) AdminCommand(name string, fn HandlerFunc) {
	r.commands[name] = route{fn: fn, admin: true}
}

// Action регистрирует обработчик кнопки. Действия "ad.*" доступны только админу.
func (r *Router) Action(a callback.Action, fn HandlerFunc) {
	r.actions[a] = route{fn: fn, admin: a.IsAdmin()}
}

// Fallback — обработчик текста без активного сценария.
func (r *Router) Fallback(fn HandlerFunc) {
	r.fallback = fn
}

// Dispatch обрабатывает событие.
func (r *Router) Dispatch(ctx context.Context, ev *messenger.Event) {
	r.metrics.Update(kindName(ev.Kind))

	banned, reason, err := r.bans.BanStatus(ctx, ev.Identity)
	if err != nil {
		log.WithError(err).WithField("user", ev.Identity).Error("Ошибка проверки бана")
		r.metrics.Error("router")
		r.send(ctx, messenger.Text(ev.ChatID, menu.Failure))
		return
	}
	if banned {
		r.send(ctx, messenger.Text(ev.ChatID, fmt.Sprintf("⛔ Ваш аккаунт заблокирован.\nПричина: %s", common.Escape(reason))))
		return
	}

	switch ev.Kind {
	case messenger.KindCommand:
		rt, ok := r.commands[ev.Command]
		if !ok {
			r.send(ctx, messenger.Text(ev.ChatID, "Неизвестная команда. /help — список команд."))
			return
		}
		r.run(ctx, ev, rt)

	case messenger.KindCallback:
		rt, ok := r.actions[ev.Payload.Action]
		if !ok {
			log.WithFields(log.Fields{"user": ev.Identity, "action": ev.Payload.Action}).Warn("Кнопка без обработчика")
			return
		}
		r.run(ctx, ev, rt)

	case messenger.KindText:
		handled, err := r.machine.Handle(ctx, ev)
		if err != nil {
			log.WithError(err).WithField("user", ev.Identity).Error("Ошибка шага диалога")
			r.metrics.Error("convo")
			r.send(ctx, messenger.Text(ev.ChatID, menu.Failure))
			return
		}
		if !handled && r.fallback != nil {
			r.fallback(ctx, ev)
		}
	}
}

func (r *Router) run(ctx context.Context, ev *messenger.Event, rt route) {
	if rt.admin && !r.gate(ctx, ev) {
		return
	}
	rt.fn(ctx, ev)
}

func (r *Router) send(ctx context.Context, msg messenger.Message) {
	if _, err := r.sink.Send(ctx, msg); err != nil {
		log.WithError(err).WithField("chat_id", msg.ChatID).Error("Ошибка отправки сообщения")
	}
}

func kindName(k messenger.Kind) string {
	switch k {
	case messenger.KindCommand:
		return "command"
	case messenger.KindCallback:
		return "callback"
	default:
		return "text"
	}
}
