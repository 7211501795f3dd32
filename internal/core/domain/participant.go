package domain

import "time"

type Identity string

type RoomID string

// PeerAddress is the opaque transport address a participant answers calls on.
// It is generated per room+user and carried explicitly alongside the identity;
// nothing in the system derives one from the other by string parsing.
type PeerAddress string

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// StreamKind labels what a local stream is capturing.
type StreamKind string

const (
	StreamCamera StreamKind = "camera"
	StreamScreen StreamKind = "screen"
)

// Descriptor is the presence advertisement for one participant. It is the
// payload attached to presence sync/join/update events and is re-published
// every time the local capability flags change.
type Descriptor struct {
	RoomID        RoomID      `json:"room_id"`
	Identity      Identity    `json:"identity"`
	DisplayName   string      `json:"display_name"`
	AvatarURL     string      `json:"avatar_url,omitempty"`
	PeerAddress   PeerAddress `json:"peer_address,omitempty"`
	Muted         bool        `json:"muted"`
	VideoOff      bool        `json:"video_off"`
	ScreenSharing bool        `json:"screen_sharing"`
}

// MediaInfo describes a live inbound media stream attached to a participant.
type MediaInfo struct {
	StreamID string
	Kinds    []TrackKind
}

func (m *MediaInfo) HasKind(kind TrackKind) bool {
	if m == nil {
		return false
	}
	for _, k := range m.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Participant is one roster entry. At most one exists per identity within a
// room; the local user is tracked separately as a distinguished participant.
type Participant struct {
	Identity      Identity
	DisplayName   string
	AvatarURL     string
	PeerAddress   PeerAddress
	Media         *MediaInfo
	Muted         bool
	VideoOff      bool
	ScreenSharing bool
	JoinedAt      time.Time
}

// ApplyDescriptor refreshes the mutable presence-driven fields. Media is
// owned by the peer link layer and is deliberately left alone here.
func (p *Participant) ApplyDescriptor(d Descriptor) {
	if d.DisplayName != "" {
		p.DisplayName = d.DisplayName
	}
	if d.AvatarURL != "" {
		p.AvatarURL = d.AvatarURL
	}
	if d.PeerAddress != "" {
		p.PeerAddress = d.PeerAddress
	}
	p.Muted = d.Muted
	p.VideoOff = d.VideoOff
	p.ScreenSharing = d.ScreenSharing
}
