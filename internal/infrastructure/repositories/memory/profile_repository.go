package memory

import (
	"context"
	"sync"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"
)

type MemoryProfileRepository struct {
	profiles map[domain.Identity]*domain.Profile
	mu       sync.RWMutex
}

func NewMemoryProfileRepository() ports.ProfileRepository {
	return &MemoryProfileRepository{
		profiles: make(map[domain.Identity]*domain.Profile),
	}
}

func (r *MemoryProfileRepository) GetByID(ctx context.Context, userID domain.Identity) (*domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, exists := r.profiles[userID]
	if !exists {
		return nil, domain.ErrParticipantUnknown
	}

	copied := *profile
	return &copied, nil
}

func (r *MemoryProfileRepository) Save(ctx context.Context, profile *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *profile
	r.profiles[profile.UserID] = &copied
	return nil
}
