package ports

import (
	"context"

	"studymesh/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// LocalTrack is one owned outbound track. Mute and video-off disable the
// track instead of stopping it, so re-enabling never renegotiates.
type LocalTrack interface {
	Kind() domain.TrackKind
	Enabled() bool
	SetEnabled(enabled bool)
	// RTPTrack exposes the underlying track handed to peer connections.
	RTPTrack() webrtc.TrackLocal
}

// LocalStream is the local media handle. It is exclusively owned by the
// coordinator and lent to the peer link layer for outbound calls; only the
// coordinator's teardown may call Close.
type LocalStream interface {
	ID() string
	Kind() domain.StreamKind
	Tracks() []LocalTrack
	Track(kind domain.TrackKind) LocalTrack
	Close()
}

// AcquireResult carries the media handle (nil when no devices are usable)
// and the initial capability flags derived from which tier succeeded.
// Notice is a non-fatal user-visible message, empty on full success.
type AcquireResult struct {
	Stream   LocalStream
	Muted    bool
	VideoOff bool
	Notice   string
}

// MediaAcquirer requests capture devices with tiered fallback
// (audio+video, audio only, none). It never returns an error; every tier
// failure is absorbed into the result flags.
type MediaAcquirer interface {
	Acquire(ctx context.Context) AcquireResult
	AcquireScreen(ctx context.Context) (LocalStream, error)
}
