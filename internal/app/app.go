// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, сессию Discord, репозитории,
// сервисы, кэши и собирает всё в один объект Bot.
package app

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/strawberry-py/strawberry-boards/internal/bot"
	"github.com/strawberry-py/strawberry-boards/internal/bot/filters"
	"github.com/strawberry-py/strawberry-boards/internal/config"
	"github.com/strawberry-py/strawberry-boards/internal/db/postgres"
	"github.com/strawberry-py/strawberry-boards/internal/features/karma"
	"github.com/strawberry-py/strawberry-boards/internal/features/messages"
	"github.com/strawberry-py/strawberry-boards/internal/features/points"
	"github.com/strawberry-py/strawberry-boards/internal/features/starboard"
	"github.com/strawberry-py/strawberry-boards/internal/jobs"
	"github.com/strawberry-py/strawberry-boards/internal/platform/discord"
)

// Services — сервисы включённых фич для командного слоя. Выключенная фича — nil.
type Services struct {
	Karma     *karma.Service
	Starboard *starboard.Service
	Messages  *messages.Service
	Points    *points.Service
}

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool
	Session   *discordgo.Session
	Services  Services

	recent *bot.RecentMessages
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool, migrations); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Discord ===
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка создания сессии Discord: %w", err)
	}
	session.Identify.Intents = bot.Intents
	session.Client.Timeout = cfg.DiscordHTTPTimeout
	// сообщения помнит RecentMessages, состоянию нужны только серверы и каналы
	session.State.MaxMessageCount = 0
	session.LogLevel = discordLogLevel(cfg.AppEnv)

	client := discord.NewClient(session)

	// === 3. Фичи ===
	var (
		svc       Services
		handlers  bot.Handlers
		scheduler = jobs.NewScheduler()
	)

	if cfg.FeatureKarmaEnabled {
		svc.Karma = karma.NewService(karma.NewRepository(pool))
		handlers.Karma = karma.NewHandler(svc.Karma, client)
		if err := scheduler.Register(svc.Karma.Cache(), cfg.KarmaFlushInterval); err != nil {
			pool.Close()
			return nil, err
		}
	}

	if cfg.FeatureStarboardEnabled {
		// без кармы движок только репостит
		var karmaRelay starboard.Karma
		if svc.Karma != nil {
			karmaRelay = svc.Karma
		}

		repo := starboard.NewRepository(pool)
		channels := starboard.NewChannelSet()
		engine := starboard.NewEngine(repo, client, karmaRelay, channels)
		svc.Starboard = starboard.NewService(repo, client, engine, channels)
		if err := svc.Starboard.LoadChannels(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ошибка загрузки каналов starboard: %w", err)
		}
		handlers.Starboard = engine
	}

	if cfg.FeatureMessagesEnabled {
		svc.Messages = messages.NewService(messages.NewRepository(pool))
		handlers.Messages = svc.Messages
		if err := scheduler.Register(svc.Messages, cfg.MessagesFlushInterval); err != nil {
			pool.Close()
			return nil, err
		}
	}

	if cfg.FeaturePointsEnabled {
		svc.Points = points.NewService(points.NewRepository(pool), points.Rules{
			Message:          points.Range{Min: cfg.PointsMessageMin, Max: cfg.PointsMessageMax},
			Reaction:         points.Range{Min: cfg.PointsReactionMin, Max: cfg.PointsReactionMax},
			MessageCooldown:  cfg.PointsMessageCooldown,
			ReactionCooldown: cfg.PointsReactionCooldown,
		})
		handlers.Points = svc.Points
		if err := scheduler.Register(svc.Points.Cache(), cfg.PointsFlushInterval); err != nil {
			svc.Points.Close()
			pool.Close()
			return nil, err
		}
	}

	// === 4. Собираем бота ===
	recent, err := bot.NewRecentMessages(cfg.RecentMessagesMax)
	if err != nil {
		if svc.Points != nil {
			svc.Points.Close()
		}
		pool.Close()
		return nil, err
	}

	b := bot.New(session, cfg, filters.NewEventFilter(), recent, handlers)

	log.WithFields(log.Fields{
		"karma":     svc.Karma != nil,
		"starboard": svc.Starboard != nil,
		"messages":  svc.Messages != nil,
		"points":    svc.Points != nil,
	}).Info("Приложение собрано")

	return &App{
		Bot:       b,
		Scheduler: scheduler,
		DB:        pool,
		Session:   session,
		Services:  svc,
		recent:    recent,
	}, nil
}

// Shutdown сбрасывает кэши и освобождает ресурсы. Вызывается после
// того, как Bot.Start вернул управление: новых событий уже не будет.
func (a *App) Shutdown(ctx context.Context) {
	a.Scheduler.Stop(ctx)

	a.recent.Close()
	if a.Services.Points != nil {
		a.Services.Points.Close()
	}
	a.DB.Close()
	log.Info("Ресурсы освобождены")
}

func discordLogLevel(env string) int {
	if env == "development" {
		return discordgo.LogInformational
	}
	return discordgo.LogError
}
