package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// Open 建立並回傳 *sql.DB，連線失敗時依設定重試
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*sql.DB, error) {
	cfg.SetDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	var db *sql.DB
	var err error
	for i := 0; i < cfg.ConnectRetries; i++ {
		db, err = sql.Open("postgres", cfg.DSN())
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				break
			}
			db.Close()
		}
		logger.Info("waiting for database", "attempt", i+1, "of", cfg.ConnectRetries, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryInterval):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("could not reach postgres after %d attempts: %w", cfg.ConnectRetries, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	logger.Info("database connection established", "host", cfg.Host, "db", cfg.DBName)

	if cfg.Migrate {
		if err := RunMigrations(ctx, db, logger); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// RunMigrations 以 idempotent 的方式建立資料表與索引
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id         BIGSERIAL     PRIMARY KEY,
			first_name VARCHAR(100)  NOT NULL DEFAULT '',
			last_name  VARCHAR(100)  NOT NULL DEFAULT '',
			balance    NUMERIC(20,4) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			created_at TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS cards (
			id         BIGSERIAL    PRIMARY KEY,
			user_id    BIGINT       NOT NULL REFERENCES users(id),
			name       VARCHAR(100) NOT NULL DEFAULT '',
			brand      VARCHAR(32)  NOT NULL DEFAULT '',
			last4      VARCHAR(4)   NOT NULL DEFAULT '',
			exp_month  INT          NOT NULL DEFAULT 0,
			exp_year   INT          NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS operations (
			id           BIGSERIAL     PRIMARY KEY,
			ref_id       UUID          NOT NULL UNIQUE,
			type         VARCHAR(16)   NOT NULL CHECK (type IN ('deposit', 'withdraw', 'transfer')),
			user_id      BIGINT        NOT NULL REFERENCES users(id),
			card_id      BIGINT        REFERENCES cards(id),
			recipient_id BIGINT        REFERENCES users(id),
			amount       NUMERIC(20,4) NOT NULL CHECK (amount > 0),
			description  VARCHAR(255)  NOT NULL,
			created_at   TIMESTAMPTZ   NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_user_id ON cards(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_user_created ON operations(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_recipient_created ON operations(recipient_id, created_at)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	logger.Info("migrations completed")
	return nil
}
