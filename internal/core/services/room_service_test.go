package services

import (
	"context"
	"testing"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"
	"studymesh/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newRoomService(t *testing.T) (*RoomService, ports.MembershipRepository) {
	t.Helper()
	memberships := memory.NewMemoryMembershipRepository()
	svc := NewRoomService(
		memory.NewMemoryRoomRepository(),
		memberships,
		zaptest.NewLogger(t).Sugar(),
	)
	return svc, memberships
}

func seedMember(t *testing.T, repo ports.MembershipRepository, roomID domain.RoomID, userID domain.Identity) {
	t.Helper()
	require.NoError(t, repo.Upsert(context.Background(), &domain.Membership{
		RoomID: roomID, UserID: userID, Active: true,
	}))
}

func TestCreateRoom_Defaults(t *testing.T) {
	svc, _ := newRoomService(t)

	room, err := svc.CreateRoom(context.Background(), "Focus", "math", "u1", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, room.ID)
	assert.Equal(t, 9, room.MaxSeats)
	assert.Equal(t, domain.Identity("u1"), room.OwnerID)
	assert.False(t, room.CreatedAt.IsZero())
}

func TestCreateRoom_EmptyNameRejected(t *testing.T) {
	svc, _ := newRoomService(t)

	_, err := svc.CreateRoom(context.Background(), "  ", "", "u1", 0)
	assert.Error(t, err)
}

func TestDeleteRoom_OwnershipEnforced(t *testing.T) {
	svc, _ := newRoomService(t)
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, "Mine", "", "u1", 0)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteRoom(ctx, room.ID, "u2"), domain.ErrUnauthorized)
	require.NoError(t, svc.DeleteRoom(ctx, room.ID, "u1"))

	_, err = svc.GetRoom(ctx, room.ID)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestListRooms_WithOccupancy(t *testing.T) {
	svc, memberships := newRoomService(t)
	ctx := context.Background()

	full, err := svc.CreateRoom(ctx, "Busy", "", "u1", 0)
	require.NoError(t, err)
	_, err = svc.CreateRoom(ctx, "Quiet", "", "u1", 0)
	require.NoError(t, err)

	seedMember(t, memberships, full.ID, "u1")
	seedMember(t, memberships, full.ID, "u2")

	listings, err := svc.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 2)

	counts := map[string]int{}
	for _, l := range listings {
		counts[l.Room.Name] = l.ActiveUsers
	}
	assert.Equal(t, 2, counts["Busy"])
	assert.Equal(t, 0, counts["Quiet"])
}
