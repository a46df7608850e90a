// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры,
// а для локального запуска переменные можно положить в .env.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Discord ---
	DiscordToken       string        `envconfig:"DISCORD_TOKEN" required:"true"`
	DiscordHTTPTimeout time.Duration `envconfig:"DISCORD_HTTP_TIMEOUT" default:"20s"`

	// Сколько последних сообщений помнит бот. Удаление сообщения, которого
	// уже нет в памяти, не вычитается из статистики.
	RecentMessagesMax int `envconfig:"RECENT_MESSAGES_MAX" default:"50000"`

	// --- Database ---
	// Дефолт "postgres" — имя сервиса в docker-compose, для локалки DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"boards"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"boards"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	// Адрес HTTP-сервера метрик Prometheus. Пусто — сервер не запускается.
	MetricsAddr string `envconfig:"METRICS_ADDR" default:""`

	// --- Bot runtime ---
	// Сколько событий обрабатываем параллельно.
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`

	// --- Cache flush ---
	KarmaFlushInterval    time.Duration `envconfig:"KARMA_FLUSH_INTERVAL" default:"30s"`
	MessagesFlushInterval time.Duration `envconfig:"MESSAGES_FLUSH_INTERVAL" default:"5s"`
	PointsFlushInterval   time.Duration `envconfig:"POINTS_FLUSH_INTERVAL" default:"30s"`
	// Сколько ждём финальный сброс кэшей при остановке.
	ShutdownFlushTimeout time.Duration `envconfig:"SHUTDOWN_FLUSH_TIMEOUT" default:"30s"`

	// --- Points ---
	PointsMessageMin       int           `envconfig:"POINTS_MESSAGE_MIN" default:"15"`
	PointsMessageMax       int           `envconfig:"POINTS_MESSAGE_MAX" default:"25"`
	PointsReactionMin      int           `envconfig:"POINTS_REACTION_MIN" default:"0"`
	PointsReactionMax      int           `envconfig:"POINTS_REACTION_MAX" default:"5"`
	PointsMessageCooldown  time.Duration `envconfig:"POINTS_MESSAGE_COOLDOWN" default:"60s"`
	PointsReactionCooldown time.Duration `envconfig:"POINTS_REACTION_COOLDOWN" default:"30s"`

	// --- Feature Flags ---
	FeatureKarmaEnabled     bool `envconfig:"FEATURE_KARMA_ENABLED" default:"true"`
	FeatureStarboardEnabled bool `envconfig:"FEATURE_STARBOARD_ENABLED" default:"true"`
	FeatureMessagesEnabled  bool `envconfig:"FEATURE_MESSAGES_ENABLED" default:"true"`
	FeaturePointsEnabled    bool `envconfig:"FEATURE_POINTS_ENABLED" default:"true"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Validate проверяет значения, которые envconfig проверить не может.
func (c *Config) Validate() error {
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.RecentMessagesMax <= 0 {
		return fmt.Errorf("RECENT_MESSAGES_MAX должен быть > 0")
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"DISCORD_HTTP_TIMEOUT", c.DiscordHTTPTimeout},
		{"KARMA_FLUSH_INTERVAL", c.KarmaFlushInterval},
		{"MESSAGES_FLUSH_INTERVAL", c.MessagesFlushInterval},
		{"POINTS_FLUSH_INTERVAL", c.PointsFlushInterval},
		{"SHUTDOWN_FLUSH_TIMEOUT", c.ShutdownFlushTimeout},
		{"POINTS_MESSAGE_COOLDOWN", c.PointsMessageCooldown},
		{"POINTS_REACTION_COOLDOWN", c.PointsReactionCooldown},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s должен быть > 0", d.name)
		}
	}

	if c.PointsMessageMin < 0 || c.PointsMessageMin > c.PointsMessageMax {
		return fmt.Errorf("некорректные POINTS_MESSAGE_MIN/POINTS_MESSAGE_MAX")
	}
	if c.PointsReactionMin < 0 || c.PointsReactionMin > c.PointsReactionMax {
		return fmt.Errorf("некорректные POINTS_REACTION_MIN/POINTS_REACTION_MAX")
	}
	return nil
}

// Load читает .env (если он есть) и переменные окружения и заполняет Config.
// Уже заданные переменные окружения имеют приоритет над .env.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("не удалось прочитать %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
