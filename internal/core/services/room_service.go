package services

import (
	"context"
	"time"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"
	"studymesh/pkg/utils"
	"studymesh/pkg/validation"

	"go.uber.org/zap"
)

// RoomService manages room records. Room ids are random 128-bit strings
// minted here; everything downstream treats them as opaque.
type RoomService struct {
	rooms       ports.RoomRepository
	memberships ports.MembershipRepository
	logger      *zap.SugaredLogger
}

func NewRoomService(rooms ports.RoomRepository, memberships ports.MembershipRepository, logger *zap.SugaredLogger) *RoomService {
	return &RoomService{
		rooms:       rooms,
		memberships: memberships,
		logger:      logger,
	}
}

func (s *RoomService) CreateRoom(ctx context.Context, name, subject string, ownerID domain.Identity, maxSeats int) (*domain.Room, error) {
	if err := validation.ValidateDisplayName(name); err != nil {
		return nil, err
	}
	if maxSeats <= 0 {
		maxSeats = 9
	}

	room := &domain.Room{
		ID:        domain.RoomID(utils.GenerateRoomID()),
		Name:      name,
		Subject:   subject,
		OwnerID:   ownerID,
		MaxSeats:  maxSeats,
		CreatedAt: time.Now(),
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, err
	}

	s.logger.Infow("room created", "room_id", room.ID, "owner_id", ownerID)
	return room, nil
}

func (s *RoomService) GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	return s.rooms.GetByID(ctx, id)
}

func (s *RoomService) DeleteRoom(ctx context.Context, id domain.RoomID, callerID domain.Identity) error {
	room, err := s.rooms.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if room.OwnerID != callerID {
		return domain.ErrUnauthorized
	}
	return s.rooms.Delete(ctx, id)
}

// RoomListing is a room with its live occupancy.
type RoomListing struct {
	Room        domain.Room `json:"room"`
	ActiveUsers int         `json:"active_users"`
}

func (s *RoomService) ListRooms(ctx context.Context) ([]RoomListing, error) {
	rooms, err := s.rooms.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	listings := make([]RoomListing, 0, len(rooms))
	for _, room := range rooms {
		count, err := s.memberships.CountActive(ctx, room.ID)
		if err != nil {
			s.logger.Warnw("occupancy query failed", "room_id", room.ID, "error", err)
		}
		listings = append(listings, RoomListing{Room: *room, ActiveUsers: count})
	}
	return listings, nil
}
