// Package jobs управляет фоновыми задачами (cron).
// scheduler.go периодически сбрасывает кэши счётчиков в БД
// и выполняет финальный сброс при остановке.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/strawberry-py/strawberry-boards/internal/cache"
)

// Flusher — кэш, который планировщик сбрасывает по расписанию.
type Flusher interface {
	Name() string
	Flush(ctx context.Context) cache.FlushResult
	Drain(ctx context.Context) cache.FlushResult
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	ctx      context.Context
	flushers []Flusher
	stopOnce sync.Once
}

// NewScheduler создаёт планировщик. Упавшая задача не роняет процесс,
// а задача, которая ещё выполняется, не запускается повторно.
func NewScheduler() *Scheduler {
	logger := cron.PrintfLogger(log.StandardLogger())
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return &Scheduler{
		cron: c,
		ctx:  context.Background(),
	}
}

// Register добавляет периодический сброс f каждые every.
// Вызывается до Start.
func (s *Scheduler) Register(f Flusher, every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("интервал сброса кэша %s должен быть > 0", f.Name())
	}
	if _, err := s.cron.AddFunc("@every "+every.String(), func() { s.run(f) }); err != nil {
		return fmt.Errorf("ошибка регистрации сброса кэша %s: %w", f.Name(), err)
	}
	s.flushers = append(s.flushers, f)

	log.WithFields(log.Fields{
		"cache":    f.Name(),
		"interval": every,
	}).Info("[CRON] Сброс кэша запланирован")
	return nil
}

// run выполняет один сброс.
func (s *Scheduler) run(f Flusher) {
	res := f.Flush(s.ctx)
	if res.Failed > 0 {
		log.WithFields(log.Fields{
			"cache":   f.Name(),
			"written": res.Written,
			"failed":  res.Failed,
		}).Warn("[CRON] Сброс кэша завершился с потерями")
	}
}

// Start запускает все фоновые задачи. Сбросы не отменяются вместе с ctx,
// иначе запись, начатая перед остановкой, оборвалась бы на середине.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = context.WithoutCancel(ctx)
	s.cron.Start()
	log.WithField("jobs", len(s.flushers)).Info("Планировщик задач запущен")
}

// Stop останавливает планировщик, дожидается текущих сбросов и
// один раз сбрасывает каждый кэш. Повторные вызовы ничего не делают.
func (s *Scheduler) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		<-s.cron.Stop().Done()
		log.Info("Планировщик задач остановлен")

		for _, f := range s.flushers {
			f.Drain(ctx)
		}
	})
}
