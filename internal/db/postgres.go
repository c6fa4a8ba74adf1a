package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

const connectAttempts = 10

// ConnectPostgres opens the database and waits until it answers a ping,
// giving a freshly started container time to come up.
func ConnectPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}

	for i := 1; i <= connectAttempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return db, nil
		}
		logger.Warn("postgres not reachable yet", "attempt", i, "error", err)

		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}

	_ = db.Close()
	return nil, fmt.Errorf("postgres unreachable after %d attempts: %w", connectAttempts, err)
}
