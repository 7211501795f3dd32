package domain

import "time"

// ChatMessage is an append-only room-scoped text record. Render order is
// arrival order at each client; no cross-client total order is promised.
type ChatMessage struct {
	ID         string    `json:"id"`
	RoomID     RoomID    `json:"room_id"`
	SenderID   Identity  `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	System     bool      `json:"system,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
