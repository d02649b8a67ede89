// Команда bot запускает кошелёк: конфигурация из окружения и .env,
// сборка приложения, polling до SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/app"
	"wallet-bot/internal/config"
)

func main() {
	setupLogging()
	log.Info("=== Кошелёк запускается ===")

	// .env необязателен: в Docker переменные приходят из compose
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Warn("Не удалось прочитать .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	configureLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wallet, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Не удалось собрать приложение")
	}
	defer wallet.Close()

	log.Info("=== Кошелёк готов к работе ===")
	wallet.Run(ctx)
	log.Info("=== Кошелёк остановлен ===")
}

// setupLogging — текстовые логи до чтения конфига.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}

// configureLogging применяет APP_LOG_LEVEL и APP_ENV.
func configureLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.AppLogLevel)
	if err != nil {
		log.WithError(err).Warnf("Неизвестный APP_LOG_LEVEL %q, остаётся debug", cfg.AppLogLevel)
	} else {
		log.SetLevel(level)
	}

	if cfg.AppEnv == "production" {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05Z07:00"})
	}
}
