package redis

import (
	"context"
	"fmt"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const identityMapKey = "studymesh:identity_map"

// RedisIdentityMapRepository persists external-id to stable-id mappings in a
// single hash so normalization survives restarts.
type RedisIdentityMapRepository struct {
	client *redis.Client
}

func NewRedisIdentityMapRepository(client *redis.Client) ports.IdentityMapRepository {
	return &RedisIdentityMapRepository{client: client}
}

func (r *RedisIdentityMapRepository) Get(ctx context.Context, externalID string) (domain.Identity, bool, error) {
	val, err := r.client.HGet(ctx, identityMapKey, externalID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read identity mapping: %w", err)
	}
	return domain.Identity(val), true, nil
}

func (r *RedisIdentityMapRepository) Put(ctx context.Context, externalID string, id domain.Identity) error {
	if err := r.client.HSet(ctx, identityMapKey, externalID, string(id)).Err(); err != nil {
		return fmt.Errorf("failed to store identity mapping: %w", err)
	}
	return nil
}
