// Package cache реализует кэш счётчиков, который копит дельты в памяти
// и периодически пишет их в БД одной агрегированной записью на ключ.
//
// Событий (реакций, сообщений) много, и писать каждое в БД дорого.
// Counter суммирует дельты по ключу, а Flush отправляет в хранилище
// только итоговую сумму за окно.
package cache

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/strawberry-py/strawberry-boards/internal/metrics"
)

// Sink — хранилище, в которое сбрасываются накопленные дельты.
// Increment должен выполнять «get-or-create, затем прибавить delta».
type Sink[A comparable, K comparable] interface {
	Increment(ctx context.Context, acc A, key K, delta int64) error
}

// SinkFunc позволяет использовать обычную функцию как Sink.
type SinkFunc[A comparable, K comparable] func(ctx context.Context, acc A, key K, delta int64) error

// Increment вызывает f.
func (f SinkFunc[A, K]) Increment(ctx context.Context, acc A, key K, delta int64) error {
	return f(ctx, acc, key, delta)
}

// FlushResult — итог одного сброса.
type FlushResult struct {
	Skipped bool // сброс уже шёл, этот вызов ничего не сделал
	Written int  // записей успешно записано
	Failed  int  // записей потеряно из-за ошибки хранилища
}

// Counter — кэш дельт с несколькими независимыми аккумуляторами.
// A — имя аккумулятора (например, karma.Board), K — ключ (например, karma.ScopeKey).
type Counter[A comparable, K comparable] struct {
	name string
	sink Sink[A, K]

	mu    sync.Mutex
	accs  map[A]map[K]int64
	order []A // порядок сброса аккумуляторов = порядок первого появления

	// flushMu держится на всё время сброса, включая I/O.
	flushMu sync.Mutex
}

// NewCounter создаёт кэш. name используется в логах и метриках.
func NewCounter[A comparable, K comparable](name string, sink Sink[A, K]) *Counter[A, K] {
	return &Counter[A, K]{
		name: name,
		sink: sink,
		accs: make(map[A]map[K]int64),
	}
}

// Name возвращает имя кэша.
func (c *Counter[A, K]) Name() string {
	return c.name
}

// Apply прибавляет delta к значению ключа в аккумуляторе acc.
// Не делает I/O и не может завершиться ошибкой.
func (c *Counter[A, K]) Apply(acc A, key K, delta int64) {
	if delta == 0 {
		return
	}

	c.mu.Lock()
	m, ok := c.accs[acc]
	if !ok {
		m = make(map[K]int64)
		c.accs[acc] = m
		c.order = append(c.order, acc)
	}
	m[key] += delta
	pending := c.pendingLocked()
	c.mu.Unlock()

	metrics.CacheDeltasApplied.WithLabelValues(c.name).Inc()
	metrics.CachePending.WithLabelValues(c.name).Set(float64(pending))
}

// Pending возвращает число несброшенных записей во всех аккумуляторах.
func (c *Counter[A, K]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *Counter[A, K]) pendingLocked() int {
	n := 0
	for _, m := range c.accs {
		n += len(m)
	}
	return n
}

// Flush сбрасывает накопленные дельты в хранилище.
// Если другой сброс этого же кэша уже идёт — ничего не делает (Skipped).
// Вызывается по таймеру.
func (c *Counter[A, K]) Flush(ctx context.Context) FlushResult {
	if !c.flushMu.TryLock() {
		metrics.CacheFlushes.WithLabelValues(c.name, "skipped").Inc()
		log.WithField("cache", c.name).Debug("Сброс уже выполняется, пропускаем")
		return FlushResult{Skipped: true}
	}
	defer c.flushMu.Unlock()

	return c.flushLocked(ctx)
}

// Drain дожидается окончания текущего сброса и выполняет ещё один.
// Вызывается один раз при остановке, чтобы не потерять последнее окно.
func (c *Counter[A, K]) Drain(ctx context.Context) FlushResult {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	res := c.flushLocked(ctx)
	log.WithFields(log.Fields{
		"cache":   c.name,
		"written": res.Written,
		"failed":  res.Failed,
	}).Info("Финальный сброс кэша выполнен")
	return res
}

// flushLocked вызывается под flushMu.
func (c *Counter[A, K]) flushLocked(ctx context.Context) FlushResult {
	order, snapshot := c.swap()

	var res FlushResult
	for _, acc := range order {
		for key, delta := range snapshot[acc] {
			if delta == 0 {
				continue
			}
			if err := c.sink.Increment(ctx, acc, key, delta); err != nil {
				res.Failed++
				log.WithError(err).WithFields(log.Fields{
					"cache":       c.name,
					"accumulator": fmt.Sprint(acc),
					"key":         fmt.Sprintf("%+v", key),
					"delta":       delta,
				}).Error("Не удалось записать дельту, значение потеряно")
				continue
			}
			res.Written++
		}
	}

	metrics.CacheFlushes.WithLabelValues(c.name, "done").Inc()
	metrics.CacheEntriesFlushed.WithLabelValues(c.name).Add(float64(res.Written))
	metrics.CacheEntriesFailed.WithLabelValues(c.name).Add(float64(res.Failed))
	metrics.CachePending.WithLabelValues(c.name).Set(float64(c.Pending()))

	if res.Written > 0 || res.Failed > 0 {
		log.WithFields(log.Fields{
			"cache":   c.name,
			"written": res.Written,
			"failed":  res.Failed,
		}).Debug("Кэш сброшен")
	}
	return res
}

// swap атомарно забирает все аккумуляторы и заменяет их пустыми.
// Дельты, пришедшие после swap, попадут уже в следующий сброс.
func (c *Counter[A, K]) swap() ([]A, map[A]map[K]int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.accs
	order := c.order
	c.accs = make(map[A]map[K]int64, len(snapshot))
	c.order = nil
	return order, snapshot
}
