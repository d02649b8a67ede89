// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: сброс дневных счётчиков
// и ежечасную чистку истёкших диалогов.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/metrics"
)

// CounterResetter обнуляет дневные счётчики аккаунтов.
type CounterResetter interface {
	ResetDailyCounters(ctx context.Context) (int64, error)
}

// Sweeper удаляет истёкшие состояния диалогов.
type Sweeper interface {
	Sweep() int
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron    *cron.Cron
	loc     *time.Location
	metrics *metrics.Metrics
}

// NewScheduler создаёт планировщик в часовом поясе loc.
func NewScheduler(loc *time.Location, m *metrics.Metrics) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		loc:     loc,
		metrics: m,
	}
}

// AddCounterReset ставит сброс счётчиков по расписанию spec.
func (s *Scheduler) AddCounterReset(ctx context.Context, spec string, r CounterResetter) error {
	_, err := s.cron.AddFunc(spec, func() {
		n, err := r.ResetDailyCounters(ctx)
		if err != nil {
			log.WithError(err).Error("[CRON] Ошибка сброса дневных счётчиков")
			s.metrics.Error("jobs")
			return
		}
		log.WithField("accounts", n).Info("[CRON] Дневные счётчики сброшены")
	})
	if err != nil {
		return fmt.Errorf("расписание сброса %q: %w", spec, err)
	}
	return nil
}

// AddSweep ставит ежечасную чистку состояний диалогов.
func (s *Scheduler) AddSweep(sw Sweeper) error {
	_, err := s.cron.AddFunc("0 * * * *", func() {
		if n := sw.Sweep(); n > 0 {
			log.WithField("states", n).Debug("[CRON] Истёкшие диалоги удалены")
		}
	})
	if err != nil {
		return fmt.Errorf("расписание чистки диалогов: %w", err)
	}
	return nil
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.WithFields(log.Fields{
		"timezone": s.loc.String(),
		"jobs":     len(s.cron.Entries()),
	}).Info("Планировщик задач запущен")
}

// Stop останавливает планировщик и ждёт выполняющиеся задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
