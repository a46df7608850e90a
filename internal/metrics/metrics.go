// Package metrics описывает Prometheus-метрики бота.
//
// Категории:
//   - кэши счётчиков: применённые дельты, сбросы, записанные/потерянные записи
//   - starboard: репосты, подавленные дубликаты реакций
//   - платформа: ошибки запросов к Discord
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CacheDeltasApplied считает дельты, попавшие в кэш.
	CacheDeltasApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boards_cache_deltas_applied_total",
			Help: "Total number of deltas applied to counter caches",
		},
		[]string{"cache"},
	)

	// CacheFlushes считает запуски сброса по результату (done/skipped).
	CacheFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boards_cache_flushes_total",
			Help: "Total number of counter cache flush runs",
		},
		[]string{"cache", "result"},
	)

	// CacheEntriesFlushed считает записи, успешно записанные в БД.
	CacheEntriesFlushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boards_cache_entries_flushed_total",
			Help: "Total number of aggregated entries written to the store",
		},
		[]string{"cache"},
	)

	// CacheEntriesFailed считает записи, потерянные из-за ошибки БД.
	CacheEntriesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boards_cache_entries_failed_total",
			Help: "Total number of aggregated entries dropped because the store failed",
		},
		[]string{"cache"},
	)

	// CachePending — число несброшенных записей после последнего Apply/Flush.
	CachePending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "boards_cache_pending_entries",
			Help: "Number of entries waiting for the next flush",
		},
		[]string{"cache"},
	)

	// StarboardReposts считает попытки репоста по результату (sent/failed).
	StarboardReposts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boards_starboard_reposts_total",
			Help: "Total number of starboard repost attempts",
		},
		[]string{"result"},
	)

	// KarmaRelays считает исходы проксирования кармы со starboard.
	KarmaRelays = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boards_karma_relays_total",
			Help: "Outcome of relaying starboard reactions into karma",
		},
		[]string{"outcome"},
	)

	// PlatformErrors считает ошибки запросов к платформе.
	PlatformErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boards_platform_errors_total",
			Help: "Total number of failed chat platform requests",
		},
		[]string{"op"},
	)
)

// Handler возвращает HTTP-обработчик /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
