package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisProfileRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisProfileRepository(client *redis.Client) ports.ProfileRepository {
	return &RedisProfileRepository{
		client: client,
		prefix: "studymesh:profile:",
	}
}

func (r *RedisProfileRepository) profileKey(userID domain.Identity) string {
	return r.prefix + string(userID)
}

func (r *RedisProfileRepository) GetByID(ctx context.Context, userID domain.Identity) (*domain.Profile, error) {
	data, err := r.client.Get(ctx, r.profileKey(userID)).Result()
	if err == redis.Nil {
		return nil, domain.ErrParticipantUnknown
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile from Redis: %w", err)
	}

	var profile domain.Profile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &profile, nil
}

func (r *RedisProfileRepository) Save(ctx context.Context, profile *domain.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := r.client.Set(ctx, r.profileKey(profile.UserID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store profile in Redis: %w", err)
	}
	return nil
}
