package storage

import (
	"PShare/global"
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisPresence keeps presence in the set im:presence:<user> whose members
// are connection ids. Registration sets the TTL and live connections renew
// it through Refresh, so only a crashed node's entries expire.
type RedisPresence struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisPresence(rdb *redis.Client, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisPresence{rdb: rdb, ttl: ttl}
}

func (p *RedisPresence) Online(ctx context.Context, userID, connID string) (bool, error) {
	key := global.PresenceKey(userID)
	pipe := p.rdb.TxPipeline()
	pipe.SAdd(ctx, key, connID)
	card := pipe.SCard(ctx, key)
	pipe.Expire(ctx, key, p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, errors.Wrap(err, "presence online")
	}
	return card.Val() == 1, nil
}

// Refresh pushes the key's expiry out by one TTL. It never re-adds connID,
// so a ping racing Offline cannot resurrect a closed connection.
func (p *RedisPresence) Refresh(ctx context.Context, userID, _ string) error {
	if err := p.rdb.Expire(ctx, global.PresenceKey(userID), p.ttl).Err(); err != nil {
		return errors.Wrap(err, "presence refresh")
	}
	return nil
}

func (p *RedisPresence) Offline(ctx context.Context, userID, connID string) (int64, error) {
	key := global.PresenceKey(userID)
	pipe := p.rdb.TxPipeline()
	pipe.SRem(ctx, key, connID)
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.Wrap(err, "presence offline")
	}
	return card.Val(), nil
}

func (p *RedisPresence) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := p.rdb.SCard(ctx, global.PresenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "presence lookup")
	}
	return n > 0, nil
}
