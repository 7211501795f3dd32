package ports

import (
	"context"

	"studymesh/internal/core/domain"
)

// The backend record store is an external collaborator; these interfaces are
// the slices of it the core consumes.

type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	Delete(ctx context.Context, id domain.RoomID) error
	ListActive(ctx context.Context) ([]*domain.Room, error)
}

type MembershipRepository interface {
	// Upsert flips the membership keyed on room+user; calling it twice with
	// the same arguments is a no-op.
	Upsert(ctx context.Context, m *domain.Membership) error
	FindActiveByRoom(ctx context.Context, roomID domain.RoomID) ([]*domain.Membership, error)
	CountActive(ctx context.Context, roomID domain.RoomID) (int, error)
}

type ProfileRepository interface {
	GetByID(ctx context.Context, userID domain.Identity) (*domain.Profile, error)
	Save(ctx context.Context, profile *domain.Profile) error
}

type FollowerRepository interface {
	Add(ctx context.Context, edge *domain.FollowerEdge) error
	Remove(ctx context.Context, followerID, followeeID domain.Identity) error
	CountFollowers(ctx context.Context, userID domain.Identity) (int, error)
}

type PostRepository interface {
	Create(ctx context.Context, post *domain.Post) error
	CountByAuthor(ctx context.Context, authorID domain.Identity) (int, error)
}

// IdentityMapRepository persists the external-id to stable-id mapping used by
// the identity normalizer.
type IdentityMapRepository interface {
	Get(ctx context.Context, externalID string) (domain.Identity, bool, error)
	Put(ctx context.Context, externalID string, id domain.Identity) error
}
