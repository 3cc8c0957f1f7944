package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/giantcranberry/Newsworthy-sub000/config"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// Connection пул pgx и обертка sqlx над ним
type Connection struct {
	Pool *pgxpool.Pool
	DB   *sqlx.DB
}

// Close закрывает sqlx и пул
func (c *Connection) Close() {
	_ = c.DB.Close()
	c.Pool.Close()
}

// NewConnection создает новое подключение к PostgreSQL
func NewConnection(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*Connection, error) {
	log.Info("Connecting to PostgreSQL")

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Настраиваем пул соединений
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Проверяем подключение
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	db := sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx")

	log.Infow("Successfully connected to PostgreSQL", "maxConns", cfg.MaxConns)
	return &Connection{Pool: pool, DB: db}, nil
}
