package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateRoomID returns a random 128-bit identifier, hex encoded. Room ids
// are opaque to every consumer; this is only their birthplace.
func GenerateRoomID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// GenerateID generates a short random id with a prefix.
func GenerateID(prefix string) string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(b))
}

// GenerateGuestID generates a stable-for-the-session guest identity.
func GenerateGuestID() string {
	return GenerateID("guest")
}
