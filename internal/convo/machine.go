package convo

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/messenger"
	"wallet-bot/internal/metrics"
)

// Result — исход шага.
type Result int

const (
	// Stay — ввод отклонён, пользователь остаётся на том же шаге.
	Stay Result = iota
	// Advance — шаг пройден, обновлённое состояние сохраняется.
	Advance
	// Done — сценарий завершён, состояние удаляется.
	Done
)

func (r Result) String() string {
	switch r {
	case Stay:
		return "stay"
	case Advance:
		return "advance"
	case Done:
		return "done"
	}
	return "unknown"
}

// StepFunc обрабатывает очередной текст в рамках сценария. Для Advance
// функция меняет st.Step и st.Scratch на месте.
type StepFunc func(ctx context.Context, ev *messenger.Event, st *State) Result

// ErrExpired — подтверждение пришло к сценарию, которого уже нет.
var ErrExpired = errors.New("операция устарела")

// Machine ведёт сценарии пользователей.
type Machine struct {
	store   StateStore
	ttl     time.Duration
	now     func() time.Time
	steps   map[Flow]StepFunc
	metrics *metrics.Metrics
}

// NewMachine создаёт машину. ttl ограничивает жизнь брошенного сценария.
func NewMachine(store StateStore, ttl time.Duration, m *metrics.Metrics) *Machine {
	return &Machine{
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		steps:   make(map[Flow]StepFunc),
		metrics: m,
	}
}

// SetClock подменяет часы (для тестов).
func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

// Register назначает обработчик шагов сценария.
func (m *Machine) Register(flow Flow, fn StepFunc) {
	if _, dup := m.steps[flow]; dup {
		panic(fmt.Sprintf("convo: сценарий %q зарегистрирован дважды", flow))
	}
	m.steps[flow] = fn
}

// Begin запускает сценарий, затирая предыдущий.
func (m *Machine) Begin(ctx context.Context, identity int64, flow Flow, step string, scratch Scratch) error {
	st := &State{Flow: flow, Step: step, Scratch: scratch, ExpiresAt: m.now().Add(m.ttl)}
	if err := m.store.Save(ctx, identity, st); err != nil {
		return fmt.Errorf("ошибка сохранения состояния диалога: %w", err)
	}
	log.WithFields(log.Fields{"user": identity, "flow": flow, "step": step}).Debug("Сценарий начат")
	return nil
}

// Current возвращает активный сценарий или nil.
func (m *Machine) Current(ctx context.Context, identity int64) (*State, error) {
	st, err := m.store.Load(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения состояния диалога: %w", err)
	}
	return st, nil
}

// Cancel сбрасывает сценарий.
func (m *Machine) Cancel(ctx context.Context, identity int64) error {
	if err := m.store.Delete(ctx, identity); err != nil {
		return fmt.Errorf("ошибка сброса состояния диалога: %w", err)
	}
	return nil
}

// Confirm возвращает состояние для нажатой кнопки подтверждения, если
// пользователь всё ещё в одном из сценариев flows и на шаге step.
func (m *Machine) Confirm(ctx context.Context, identity int64, step string, flows ...Flow) (*State, error) {
	st, err := m.Current(ctx, identity)
	if err != nil {
		return nil, err
	}
	if st == nil || st.Step != step {
		return nil, ErrExpired
	}
	for _, f := range flows {
		if st.Flow == f {
			return st, nil
		}
	}
	return nil, ErrExpired
}

// Handle передаёт текст активному сценарию. false — сценария нет,
// текст обрабатывается дальше без состояния.
func (m *Machine) Handle(ctx context.Context, ev *messenger.Event) (bool, error) {
	st, err := m.Current(ctx, ev.Identity)
	if err != nil {
		return false, err
	}
	if st == nil || st.Flow == FlowNone {
		return false, nil
	}

	fn, ok := m.steps[st.Flow]
	if !ok {
		log.WithFields(log.Fields{"user": ev.Identity, "flow": st.Flow}).Warn("Нет обработчика сценария, состояние сброшено")
		return false, m.Cancel(ctx, ev.Identity)
	}

	flow := st.Flow
	res := fn(ctx, ev, st)
	m.metrics.Step(string(flow), res.String())

	switch res {
	case Advance:
		st.ExpiresAt = m.now().Add(m.ttl)
		if err := m.store.Save(ctx, ev.Identity, st); err != nil {
			return true, fmt.Errorf("ошибка сохранения состояния диалога: %w", err)
		}
	case Done:
		if err := m.Cancel(ctx, ev.Identity); err != nil {
			return true, err
		}
	}
	return true, nil
}
