package ports

import (
	"context"

	"studymesh/internal/core/domain"
)

// PresenceHandlers receive membership signaling for the open room topic.
// Sync is delivered at least once after open and logically precedes the
// join/leave/update deltas for the same topic.
type PresenceHandlers struct {
	OnSync   func(descriptors []domain.Descriptor)
	OnJoin   func(d domain.Descriptor)
	OnUpdate func(d domain.Descriptor)
	OnLeave  func(identity domain.Identity)
}

// PresenceChannel is the per-room membership signaling topic. Connection
// drops are the transport's concern; the channel does not retry internally.
type PresenceChannel interface {
	Open(ctx context.Context, roomID domain.RoomID, local domain.Descriptor, handlers PresenceHandlers) error
	UpdateDescriptor(ctx context.Context, d domain.Descriptor) error
	Close() error
}

// BroadcastChannel is the per-room fire-and-forget chat topic. OnMessage is
// invoked only for messages whose sender is not the local identity; the
// sender appends its own message locally before transmitting.
type BroadcastChannel interface {
	Open(ctx context.Context, roomID domain.RoomID, self domain.Identity, onMessage func(domain.ChatMessage)) error
	Send(ctx context.Context, msg domain.ChatMessage) error
	Close() error
}

// RemoteMedia is emitted by the peer link layer when an inbound stream
// arrives on a link.
type RemoteMedia struct {
	PeerAddress domain.PeerAddress
	Identity    domain.Identity
	StreamID    string
	Kinds       []domain.TrackKind
}

// PeerEvents receive link lifecycle events from the connector.
type PeerEvents struct {
	OnRemoteMedia func(m RemoteMedia)
	OnLinkClosed  func(addr domain.PeerAddress)
}

// PeerConnector owns the full mesh of one-to-one media links. At most one
// link exists per remote address; replacing outbound media closes and
// re-originates every link rather than mutating tracks in place.
type PeerConnector interface {
	Initialize(ctx context.Context, self domain.Descriptor, local LocalStream, events PeerEvents) error
	ConnectTo(ctx context.Context, remote domain.Descriptor) error
	ReplaceOutgoingMedia(ctx context.Context, stream LocalStream) error
	CloseLink(addr domain.PeerAddress)
	CloseAll()
	OpenAddresses() []domain.PeerAddress
}
