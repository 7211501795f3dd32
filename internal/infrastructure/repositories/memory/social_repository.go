package memory

import (
	"context"
	"sync"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"
)

type followKey struct {
	followerID domain.Identity
	followeeID domain.Identity
}

type MemoryFollowerRepository struct {
	edges map[followKey]*domain.FollowerEdge
	mu    sync.RWMutex
}

func NewMemoryFollowerRepository() ports.FollowerRepository {
	return &MemoryFollowerRepository{
		edges: make(map[followKey]*domain.FollowerEdge),
	}
}

func (r *MemoryFollowerRepository) Add(ctx context.Context, edge *domain.FollowerEdge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *edge
	r.edges[followKey{followerID: edge.FollowerID, followeeID: edge.FolloweeID}] = &copied
	return nil
}

func (r *MemoryFollowerRepository) Remove(ctx context.Context, followerID, followeeID domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.edges, followKey{followerID: followerID, followeeID: followeeID})
	return nil
}

func (r *MemoryFollowerRepository) CountFollowers(ctx context.Context, userID domain.Identity) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for key := range r.edges {
		if key.followeeID == userID {
			count++
		}
	}
	return count, nil
}

type MemoryPostRepository struct {
	posts []*domain.Post
	mu    sync.RWMutex
}

func NewMemoryPostRepository() ports.PostRepository {
	return &MemoryPostRepository{}
}

func (r *MemoryPostRepository) Create(ctx context.Context, post *domain.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *post
	r.posts = append(r.posts, &copied)
	return nil
}

func (r *MemoryPostRepository) CountByAuthor(ctx context.Context, authorID domain.Identity) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, post := range r.posts {
		if post.AuthorID == authorID {
			count++
		}
	}
	return count, nil
}
