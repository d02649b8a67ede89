// Package postgres открывает подключение к PostgreSQL через пул pgxpool.
// Хранилищу пул отдаётся как *sql.DB, чтобы один код работал
// и с PostgreSQL, и с SQLite.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/config"
)

// Параметры жизни соединений пула.
const (
	maxConnLifetime   = time.Hour
	maxConnIdleTime   = 30 * time.Minute
	healthCheckPeriod = time.Minute
)

// poolConfig собирает настройки пула из конфигурации.
func poolConfig(cfg *config.Config) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	pc.MaxConns = cfg.DBMaxConns
	pc.MinConns = cfg.DBMinConns
	pc.MaxConnLifetime = maxConnLifetime
	pc.MaxConnIdleTime = maxConnIdleTime
	pc.HealthCheckPeriod = healthCheckPeriod
	return pc, nil
}

// Open поднимает пул, проверяет доступность базы и оборачивает пул в *sql.DB.
// Пул закрывается вместе с *sql.DB.
func Open(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("база данных %s:%d недоступна: %w", cfg.DBHost, cfg.DBPort, err)
	}

	log.WithFields(log.Fields{
		"host":      cfg.DBHost,
		"db":        cfg.DBName,
		"max_conns": pc.MaxConns,
	}).Info("Подключение к PostgreSQL установлено")
	return stdlib.OpenDBFromPool(pool), nil
}
