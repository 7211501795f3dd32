package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisFollowerRepository stores each user's followers as a set keyed on the
// followee, which makes the count a single SCARD.
type RedisFollowerRepository struct {
	client *redis.Client
}

func NewRedisFollowerRepository(client *redis.Client) ports.FollowerRepository {
	return &RedisFollowerRepository{client: client}
}

func (r *RedisFollowerRepository) followersKey(userID domain.Identity) string {
	return fmt.Sprintf("studymesh:user:%s:followers", userID)
}

func (r *RedisFollowerRepository) Add(ctx context.Context, edge *domain.FollowerEdge) error {
	if err := r.client.SAdd(ctx, r.followersKey(edge.FolloweeID), string(edge.FollowerID)).Err(); err != nil {
		return fmt.Errorf("failed to add follower edge: %w", err)
	}
	return nil
}

func (r *RedisFollowerRepository) Remove(ctx context.Context, followerID, followeeID domain.Identity) error {
	if err := r.client.SRem(ctx, r.followersKey(followeeID), string(followerID)).Err(); err != nil {
		return fmt.Errorf("failed to remove follower edge: %w", err)
	}
	return nil
}

func (r *RedisFollowerRepository) CountFollowers(ctx context.Context, userID domain.Identity) (int, error) {
	n, err := r.client.SCard(ctx, r.followersKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count followers: %w", err)
	}
	return int(n), nil
}

type RedisPostRepository struct {
	client *redis.Client
}

func NewRedisPostRepository(client *redis.Client) ports.PostRepository {
	return &RedisPostRepository{client: client}
}

func (r *RedisPostRepository) postsKey(authorID domain.Identity) string {
	return fmt.Sprintf("studymesh:user:%s:posts", authorID)
}

func (r *RedisPostRepository) Create(ctx context.Context, post *domain.Post) error {
	data, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("failed to marshal post: %w", err)
	}
	if err := r.client.RPush(ctx, r.postsKey(post.AuthorID), data).Err(); err != nil {
		return fmt.Errorf("failed to store post in Redis: %w", err)
	}
	return nil
}

func (r *RedisPostRepository) CountByAuthor(ctx context.Context, authorID domain.Identity) (int, error) {
	n, err := r.client.LLen(ctx, r.postsKey(authorID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return int(n), nil
}
