package ports

import (
	"context"

	"studymesh/internal/core/domain"
)

// RoomCoordinator is the single control surface the UI layer consumes.
type RoomCoordinator interface {
	JoinRoom(ctx context.Context, roomID domain.RoomID) error
	LeaveRoom(ctx context.Context) error
	SendChatMessage(ctx context.Context, text string) (*domain.ChatMessage, error)
	ToggleAudio(ctx context.Context) (muted bool, err error)
	ToggleVideo(ctx context.Context) (videoOff bool, err error)
	ToggleScreenShare(ctx context.Context) (sharing bool, err error)
	Snapshot() domain.SessionSnapshot
}

// CurrentUser is what the auth provider knows about the caller.
type CurrentUser struct {
	ID          domain.Identity
	DisplayName string
	AvatarURL   string
	Guest       bool
}

// AuthProvider fronts the external auth/identity platform.
type AuthProvider interface {
	Login(ctx context.Context, email, password string) (token string, user CurrentUser, err error)
	Signup(ctx context.Context, email, password, displayName string) (token string, user CurrentUser, err error)
	Logout(ctx context.Context, token string) error
	// Current resolves the bearer token to an identity; an empty token yields
	// a generated stable guest identity rather than an error.
	Current(ctx context.Context, token string) (CurrentUser, error)
}

// IdentityNormalizer maps arbitrary external ids onto stable identifiers
// accepted by the record store. Lookup-or-create; injected, never ambient.
type IdentityNormalizer interface {
	Normalize(ctx context.Context, externalID string) (domain.Identity, error)
}

// ObjectStore uploads avatar/banner assets and returns their public URL.
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
}
