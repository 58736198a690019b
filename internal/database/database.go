package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"van-dispatch/internal/config"
	"van-dispatch/internal/logger"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// DB представляет подключение к базе данных
type DB struct {
	*sql.DB
}

// DSN собирает строку подключения lib/pq из конфигурации
func DSN(cfg *config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// Connect создает подключение к базе данных
func Connect(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	db, err := sql.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("Successfully connected to database")

	return &DB{DB: db}, nil
}

// Migrate создает таблицы заявок, фургонов, расписаний и назначений, если их нет
func (db *DB) Migrate(ctx context.Context, log *logger.Logger) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	log.Info("Database schema is up to date")
	return nil
}

// Close закрывает подключение к базе данных
func (db *DB) Close() error {
	return db.DB.Close()
}

// Health проверяет состояние базы данных
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}
