// Package main — точка входа бота.
// Загружает конфигурацию, инициализирует приложение и запускает.
// Поддерживает graceful shutdown по SIGINT/SIGTERM: сначала закрывается
// шлюз, затем кэши сбрасываются в БД, затем закрывается пул.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/strawberry-py/strawberry-boards/internal/app"
	"github.com/strawberry-py/strawberry-boards/internal/config"
	"github.com/strawberry-py/strawberry-boards/internal/metrics"
)

func main() {
	// Настраиваем логирование
	setupLogging()

	log.Info("=== Бот запускается ===")

	// Загружаем конфигурацию из .env и переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	// Устанавливаем уровень логирования из конфига
	level, err := log.ParseLevel(cfg.AppLogLevel)
	if err == nil {
		log.SetLevel(level)
	}

	// Контекст отменяется по SIGINT/SIGTERM (Ctrl+C, docker stop)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Инициализируем приложение (БД, сессия, сервисы, кэши)
	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Не удалось инициализировать приложение")
	}

	metricsServer := startMetrics(cfg.MetricsAddr)

	// Запускаем планировщик сброса кэшей (cron)
	application.Scheduler.Start(ctx)

	// Запускаем бота в отдельной горутине
	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Bot.Start(ctx)
	}()

	log.Info("=== Бот готов к работе ===")

	// Ждём сигнала остановки или падения бота
	select {
	case <-ctx.Done():
		log.Info("Получен сигнал остановки, останавливаемся...")
		if err := <-errCh; err != nil {
			log.WithError(err).Error("Бот завершился с ошибкой")
		}
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("Бот завершился с ошибкой")
		}
		stop()
	}

	// Бот больше не принимает события — сбрасываем кэши
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownFlushTimeout)
	defer cancel()

	application.Shutdown(shutdownCtx)

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Ошибка остановки сервера метрик")
		}
	}

	log.Info("=== Бот остановлен ===")
}

// startMetrics поднимает /metrics, если задан адрес.
func startMetrics(addr string) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Сервер метрик остановлен с ошибкой")
		}
	}()
	log.WithField("addr", addr).Info("Сервер метрик запущен")
	return srv
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}
