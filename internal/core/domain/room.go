package domain

import "time"

// Room is the persisted room record in the backend record store.
type Room struct {
	ID        RoomID    `json:"id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject,omitempty"`
	OwnerID   Identity  `json:"owner_id"`
	MaxSeats  int       `json:"max_seats"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership records that a user belongs to a room. The Active flag is
// flipped idempotently on join/leave, keyed on room+user.
type Membership struct {
	RoomID    RoomID    `json:"room_id"`
	UserID    Identity  `json:"user_id"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionState is the coordinator lifecycle state.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionJoining
	SessionActive
	SessionLeaving
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionJoining:
		return "joining"
	case SessionActive:
		return "active"
	case SessionLeaving:
		return "leaving"
	default:
		return "unknown"
	}
}

// SessionSnapshot is the read-only view of the active session exposed to the
// UI layer. Slices are copies; mutating them does not affect the coordinator.
type SessionSnapshot struct {
	RoomID        RoomID
	State         SessionState
	Joining       bool
	Local         *Participant
	Roster        []Participant
	Chat          []ChatMessage
	Muted         bool
	VideoOff      bool
	ScreenSharing bool
}
