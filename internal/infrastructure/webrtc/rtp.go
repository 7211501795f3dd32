package webrtc

import (
	"errors"
	"io"
	"time"

	"studymesh/internal/core/domain"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
)

const keyframeInterval = 3 * time.Second

// drainTrack keeps the inbound RTP flow moving. Rendering is the caller's
// concern; without a reader pion stalls the track buffers.
func (m *LinkManager) drainTrack(addr domain.PeerAddress, track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		_, _, err := track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				m.logger.Debugw("remote track read ended",
					"remote_address", addr,
					"error", err,
				)
			}
			return
		}
	}
}

// readRTCP drains sender reports and feedback from the remote side.
func (m *LinkManager) readRTCP(addr domain.PeerAddress, receiver *webrtc.RTPReceiver) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := receiver.Read(buf); err != nil {
			return
		}
	}
}

// keyframeLoop asks the sender for a keyframe periodically so late joiners
// and recovered links get decodable video promptly.
func (m *LinkManager) keyframeLoop(addr domain.PeerAddress, pc *webrtc.PeerConnection, track *webrtc.TrackRemote) {
	ticker := time.NewTicker(keyframeInterval)
	defer ticker.Stop()

	for range ticker.C {
		if pc.ConnectionState() == webrtc.PeerConnectionStateClosed {
			return
		}
		err := pc.WriteRTCP([]rtcp.Packet{
			&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
		})
		if err != nil {
			m.logger.Debugw("keyframe request failed", "remote_address", addr, "error", err)
			return
		}
	}
}
