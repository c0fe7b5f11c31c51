package session

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "session:"

// Redis backs the session table with Redis, giving sessions a TTL for free.
// Selected by REDIS_ADDR; the memory store is the default.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Create(ctx context.Context, userID int) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	if err := r.client.Set(ctx, redisKeyPrefix+token, userID, r.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (r *Redis) Resolve(ctx context.Context, token string) (int, error) {
	val, err := r.client.Get(ctx, redisKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrInvalidToken
	}
	if err != nil {
		return 0, err
	}
	userID, err := strconv.Atoi(val)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return userID, nil
}

func (r *Redis) Invalidate(ctx context.Context, token string) error {
	return r.client.Del(ctx, redisKeyPrefix+token).Err()
}
