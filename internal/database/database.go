package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"

	appconfig "github.com/GTDGit/catalog_api/internal/config"
)

// Retry policy: up to 5 attempts, exponential backoff starting at 500ms.
const (
	maxAttempts = 5
	baseDelay   = 500 * time.Millisecond
	maxDelay    = 5 * time.Second
)

// Connect establishes a PostgreSQL connection for the catalog store. Transient
// failures (database container still starting) are retried with backoff until
// ctx is done. The returned *sqlx.DB has pool settings applied and has been
// pinged.
func Connect(ctx context.Context, cfg *appconfig.DatabaseConfig) (*sqlx.DB, error) {
	if cfg == nil {
		return nil, errors.New("nil database config")
	}

	dsn := DSN(cfg)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var db *sqlx.DB
		db, lastErr = sqlx.Open("postgres", dsn)
		if lastErr == nil {
			setPool(db.DB)

			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			lastErr = db.PingContext(pingCtx)
			cancel()
			if lastErr == nil {
				return db, nil
			}
			_ = db.Close()
		}

		if attempt == maxAttempts {
			break
		}
		log.Warn().Err(lastErr).Int("attempt", attempt).Msg("Database not ready, retrying")
		select {
		case <-time.After(backoff(attempt)):
		case <-ctx.Done():
			return nil, fmt.Errorf("database connect aborted: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxAttempts, lastErr)
}

// DSN builds the lib/pq connection URL.
func DSN(cfg *appconfig.DatabaseConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(cfg.User), url.QueryEscape(cfg.Password), cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode,
	)
}

func setPool(db *sql.DB) {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
}

// backoff returns base * 2^(attempt-1), capped.
func backoff(attempt int) time.Duration {
	d := baseDelay << (attempt - 1)
	if d > maxDelay {
		d = maxDelay
	}
	return d
}
