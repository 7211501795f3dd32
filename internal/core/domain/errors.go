package domain

import "errors"

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrParticipantUnknown = errors.New("participant not found")
	ErrLinkNotFound       = errors.New("peer link not found")
	ErrNoActiveSession    = errors.New("no active room session")
	ErrSessionBusy        = errors.New("another session operation is in progress")
	ErrNoLocalMedia       = errors.New("no local media available")
	ErrChannelClosed      = errors.New("realtime channel closed")
	ErrUnauthorized       = errors.New("unauthorized")
)
