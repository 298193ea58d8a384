package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config is the Redis client setup.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// New dials redis and checks the connection with a ping.
func New(ctx context.Context, c Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
