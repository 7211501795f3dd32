package memory

import (
	"context"
	"testing"
	"time"

	"studymesh/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomRepository(t *testing.T) {
	repo := NewMemoryRoomRepository()
	ctx := context.Background()

	room := &domain.Room{ID: "R1", Name: "Focus", OwnerID: "u1", CreatedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, room))

	got, err := repo.GetByID(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, "Focus", got.Name)

	// Returned value is a copy.
	got.Name = "mutated"
	again, err := repo.GetByID(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, "Focus", again.Name)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	rooms, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)

	require.NoError(t, repo.Delete(ctx, "R1"))
	assert.ErrorIs(t, repo.Delete(ctx, "R1"), domain.ErrRoomNotFound)

	rooms, err = repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestMembershipRepository(t *testing.T) {
	repo := NewMemoryMembershipRepository()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &domain.Membership{RoomID: "R1", UserID: "u1", Active: true}))
	require.NoError(t, repo.Upsert(ctx, &domain.Membership{RoomID: "R1", UserID: "u2", Active: true}))
	require.NoError(t, repo.Upsert(ctx, &domain.Membership{RoomID: "R2", UserID: "u1", Active: true}))

	count, err := repo.CountActive(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Upsert is keyed by (room, user): flipping active replaces the record.
	require.NoError(t, repo.Upsert(ctx, &domain.Membership{RoomID: "R1", UserID: "u2", Active: false}))

	members, err := repo.FindActiveByRoom(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, domain.Identity("u1"), members[0].UserID)

	count, err = repo.CountActive(ctx, "R2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProfileRepository(t *testing.T) {
	repo := NewMemoryProfileRepository()
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrParticipantUnknown)

	require.NoError(t, repo.Save(ctx, &domain.Profile{UserID: "u1", DisplayName: "Uma"}))

	got, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Uma", got.DisplayName)

	// Save overwrites.
	require.NoError(t, repo.Save(ctx, &domain.Profile{UserID: "u1", DisplayName: "Uma R."}))
	got, err = repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Uma R.", got.DisplayName)
}

func TestFollowerRepository(t *testing.T) {
	repo := NewMemoryFollowerRepository()
	ctx := context.Background()

	require.NoError(t, repo.Add(ctx, &domain.FollowerEdge{FollowerID: "u2", FolloweeID: "u1"}))
	require.NoError(t, repo.Add(ctx, &domain.FollowerEdge{FollowerID: "u3", FolloweeID: "u1"}))
	// Duplicate edges do not double count.
	require.NoError(t, repo.Add(ctx, &domain.FollowerEdge{FollowerID: "u2", FolloweeID: "u1"}))

	count, err := repo.CountFollowers(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, repo.Remove(ctx, "u2", "u1"))
	count, err = repo.CountFollowers(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIdentityMapRepository(t *testing.T) {
	repo := NewMemoryIdentityMapRepository()
	ctx := context.Background()

	_, found, err := repo.Get(ctx, "ext-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.Put(ctx, "ext-1", "u1"))

	id, found, err := repo.Get(ctx, "ext-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.Identity("u1"), id)
}
