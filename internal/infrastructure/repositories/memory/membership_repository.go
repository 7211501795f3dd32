package memory

import (
	"context"
	"sync"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"
)

type membershipKey struct {
	roomID domain.RoomID
	userID domain.Identity
}

type MemoryMembershipRepository struct {
	memberships map[membershipKey]*domain.Membership
	mu          sync.RWMutex
}

func NewMemoryMembershipRepository() ports.MembershipRepository {
	return &MemoryMembershipRepository{
		memberships: make(map[membershipKey]*domain.Membership),
	}
}

func (r *MemoryMembershipRepository) Upsert(ctx context.Context, m *domain.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *m
	r.memberships[membershipKey{roomID: m.RoomID, userID: m.UserID}] = &copied
	return nil
}

func (r *MemoryMembershipRepository) FindActiveByRoom(ctx context.Context, roomID domain.RoomID) ([]*domain.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	memberships := make([]*domain.Membership, 0)
	for key, m := range r.memberships {
		if key.roomID == roomID && m.Active {
			copied := *m
			memberships = append(memberships, &copied)
		}
	}
	return memberships, nil
}

func (r *MemoryMembershipRepository) CountActive(ctx context.Context, roomID domain.RoomID) (int, error) {
	memberships, err := r.FindActiveByRoom(ctx, roomID)
	if err != nil {
		return 0, err
	}
	return len(memberships), nil
}
