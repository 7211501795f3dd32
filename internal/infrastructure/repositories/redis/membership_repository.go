package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisMembershipRepository keeps one hash per room, field per user. HSET is
// naturally idempotent, which is exactly the Upsert contract.
type RedisMembershipRepository struct {
	client *redis.Client
}

func NewRedisMembershipRepository(client *redis.Client) ports.MembershipRepository {
	return &RedisMembershipRepository{client: client}
}

func (r *RedisMembershipRepository) membersKey(roomID domain.RoomID) string {
	return fmt.Sprintf("studymesh:room:%s:members", roomID)
}

func (r *RedisMembershipRepository) Upsert(ctx context.Context, m *domain.Membership) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal membership: %w", err)
	}
	if err := r.client.HSet(ctx, r.membersKey(m.RoomID), string(m.UserID), data).Err(); err != nil {
		return fmt.Errorf("failed to store membership in Redis: %w", err)
	}
	return nil
}

func (r *RedisMembershipRepository) FindActiveByRoom(ctx context.Context, roomID domain.RoomID) ([]*domain.Membership, error) {
	entries, err := r.client.HGetAll(ctx, r.membersKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read memberships from Redis: %w", err)
	}

	memberships := make([]*domain.Membership, 0, len(entries))
	for _, raw := range entries {
		var m domain.Membership
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal membership: %w", err)
		}
		if m.Active {
			memberships = append(memberships, &m)
		}
	}
	return memberships, nil
}

func (r *RedisMembershipRepository) CountActive(ctx context.Context, roomID domain.RoomID) (int, error) {
	memberships, err := r.FindActiveByRoom(ctx, roomID)
	if err != nil {
		return 0, err
	}
	return len(memberships), nil
}
