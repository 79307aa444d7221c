package seedvault

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"raffle-backend/internal/platform/redis"
)

const keyPrefixSeed = "raffle:seed:"

// Redis keeps seeds in Redis so a process restart between commit and draw
// does not strand a ready raffle. SET NX gives the same first-writer-wins
// guarantee as the in-memory vault, across processes.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func makeSeedKey(raffleID int64) string {
	return fmt.Sprintf("%s%d", keyPrefixSeed, raffleID)
}

func (r *Redis) StoreIfAbsent(ctx context.Context, raffleID int64, seed string) (bool, error) {
	ok, err := r.client.SetNX(ctx, makeSeedKey(raffleID), seed, SeedRetention).Result()
	if err != nil {
		return false, fmt.Errorf("store seed: %w", err)
	}
	return ok, nil
}

func (r *Redis) Get(ctx context.Context, raffleID int64) (string, bool, error) {
	seed, err := r.client.Get(ctx, makeSeedKey(raffleID)).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get seed: %w", err)
	}
	return seed, true, nil
}

func (r *Redis) Delete(ctx context.Context, raffleID int64) error {
	return r.client.Del(ctx, makeSeedKey(raffleID)).Err()
}
