package pg

import (
	"PShare/logger"
	"PShare/tools/errs"
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pool on databaseURL and checks it with a round trip.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errs.New("DATABASE_URL is required for the postgres store")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errs.WrapMsg(err, "parse database url")
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errs.WrapMsg(err, "unable to connect to database")
	}

	var result string
	if err := pool.QueryRow(ctx, "SELECT 'hello pgxpool'").Scan(&result); err != nil {
		pool.Close()
		return nil, errs.WrapMsg(err, "postgres ping failed")
	}
	logger.Infof("postgres connected: %s", result)
	return pool, nil
}
