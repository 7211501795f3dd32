package memory

import (
	"context"
	"sync"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"
)

type MemoryIdentityMapRepository struct {
	mapping map[string]domain.Identity
	mu      sync.RWMutex
}

func NewMemoryIdentityMapRepository() ports.IdentityMapRepository {
	return &MemoryIdentityMapRepository{
		mapping: make(map[string]domain.Identity),
	}
}

func (r *MemoryIdentityMapRepository) Get(ctx context.Context, externalID string) (domain.Identity, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.mapping[externalID]
	return id, exists, nil
}

func (r *MemoryIdentityMapRepository) Put(ctx context.Context, externalID string, id domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mapping[externalID] = id
	return nil
}
