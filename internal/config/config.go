// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Драйверы хранилища.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Политики сброса дневных счётчиков (подарки, выводы).
const (
	// CounterResetDaily — счётчики обнуляются при смене календарного дня.
	CounterResetDaily = "daily"
	// CounterResetNever — счётчики копятся за всё время жизни аккаунта.
	CounterResetNever = "never"
)

// Бэкенды хранения состояния диалогов.
const (
	ConvoBackendMemory = "memory"
	ConvoBackendRedis  = "redis"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	// Единственный администратор кошелька
	AdminID int64 `envconfig:"ADMIN_ID" required:"true"`
	// Канал, подписка на который обязательна (@channel). Пусто — проверка выключена.
	RequiredChannel string `envconfig:"REQUIRED_CHANNEL" default:""`

	// --- Database ---
	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"`
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"botuser"`
	DBPassword string `envconfig:"DB_PASSWORD" default:""`
	DBName     string `envconfig:"DB_NAME" default:"wallet_bot"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"data/wallet.db"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Asia/Damascus"`
	// Название валюты в сообщениях
	CurrencyName string `envconfig:"CURRENCY_NAME" default:"SYP"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно. Иначе "go на каждый апдейт" = утечка памяти при флуде.
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`
	// Анимация «создания аккаунта» при регистрации
	RegistrationAnimation bool `envconfig:"REGISTRATION_ANIMATION" default:"true"`

	// --- Admin ---
	// Пустой хеш — команды админа доступны без /login
	AdminPasswordHash string        `envconfig:"ADMIN_PASSWORD_HASH" default:""`
	AdminSessionTTL   time.Duration `envconfig:"ADMIN_SESSION_TTL" default:"24h"`

	// --- Conversations ---
	ConvoBackend string        `envconfig:"CONVO_BACKEND" default:"memory"`
	ConvoTTL     time.Duration `envconfig:"CONVO_TTL" default:"30m"`

	// --- Redis ---
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"redis:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// --- Metrics ---
	// Пустой адрес выключает HTTP-сервер метрик
	MetricsAddr      string `envconfig:"METRICS_ADDR" default:":9090"`
	MetricsNamespace string `envconfig:"METRICS_NAMESPACE" default:"walletbot"`

	// --- Payments ---
	// YAML-каталог платёжных каналов; пусто — встроенный каталог
	PaymentsFile string `envconfig:"PAYMENTS_FILE" default:""`

	// --- Counters ---
	CounterResetPolicy string `envconfig:"COUNTER_RESET_POLICY" default:"daily"`
	CounterResetCron   string `envconfig:"COUNTER_RESET_CRON" default:"0 0 * * *"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"20"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Location возвращает часовой пояс приложения. Ошибку ловит Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Validate() error {
	if c.AdminID == 0 {
		return fmt.Errorf("ADMIN_ID не задан или равен 0")
	}
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	switch c.DBDriver {
	case DriverPostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD обязателен для DB_DRIVER=postgres")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH не задан")
		}
	default:
		return fmt.Errorf("неизвестный DB_DRIVER %q (postgres|sqlite)", c.DBDriver)
	}
	switch c.ConvoBackend {
	case ConvoBackendMemory, ConvoBackendRedis:
	default:
		return fmt.Errorf("неизвестный CONVO_BACKEND %q (memory|redis)", c.ConvoBackend)
	}
	if c.ConvoTTL <= 0 {
		return fmt.Errorf("CONVO_TTL должен быть > 0")
	}
	switch c.CounterResetPolicy {
	case CounterResetDaily, CounterResetNever:
	default:
		return fmt.Errorf("неизвестная COUNTER_RESET_POLICY %q (daily|never)", c.CounterResetPolicy)
	}
	if _, err := time.LoadLocation(c.AppTimezone); err != nil {
		return fmt.Errorf("APP_TIMEZONE %q: %w", c.AppTimezone, err)
	}
	if c.RequiredChannel != "" && !strings.HasPrefix(c.RequiredChannel, "@") {
		return fmt.Errorf("REQUIRED_CHANNEL должен начинаться с @")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
