package media

import (
	"sync"
	"sync/atomic"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Track wraps an outbound RTP track with an enabled flag. Disabling pauses
// the packet pump without stopping the capture device, so mute and video-off
// never force a renegotiation.
type Track struct {
	kind    domain.TrackKind
	rtp     *webrtc.TrackLocalStaticRTP
	enabled atomic.Bool
}

func newTrack(kind domain.TrackKind, rtp *webrtc.TrackLocalStaticRTP) *Track {
	t := &Track{kind: kind, rtp: rtp}
	t.enabled.Store(true)
	return t
}

func (t *Track) Kind() domain.TrackKind { return t.kind }

func (t *Track) Enabled() bool { return t.enabled.Load() }

func (t *Track) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

func (t *Track) RTPTrack() webrtc.TrackLocal { return t.rtp }

// Stream is a local media handle: one or two tracks fed by capture devices.
// It is owned by the coordinator; only the coordinator's teardown closes it.
type Stream struct {
	id      string
	kind    domain.StreamKind
	tracks  []*Track
	devices []CaptureDevice

	logger    *zap.SugaredLogger
	closeOnce sync.Once
	done      chan struct{}
}

func newStream(id string, kind domain.StreamKind, logger *zap.SugaredLogger) *Stream {
	return &Stream{
		id:     id,
		kind:   kind,
		logger: logger,
		done:   make(chan struct{}),
	}
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Kind() domain.StreamKind { return s.kind }

func (s *Stream) Tracks() []ports.LocalTrack {
	out := make([]ports.LocalTrack, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *Stream) Track(kind domain.TrackKind) ports.LocalTrack {
	for _, t := range s.tracks {
		if t.kind == kind {
			return t
		}
	}
	return nil
}

// attach registers a device-fed track and starts its packet pump.
func (s *Stream) attach(device CaptureDevice, track *Track) {
	s.devices = append(s.devices, device)
	s.tracks = append(s.tracks, track)
	go s.pump(device, track)
}

// pump moves RTP packets from the capture device into the outbound track.
// Disabled tracks keep draining the device so capture never backs up.
func (s *Stream) pump(device CaptureDevice, track *Track) {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		pkt, err := device.ReadRTP()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Warnw("capture device read failed",
					"stream_id", s.id,
					"kind", track.kind,
					"error", err,
				)
			}
			return
		}

		if !track.enabled.Load() {
			continue
		}

		if err := track.rtp.WriteRTP(pkt); err != nil {
			s.logger.Debugw("dropping outbound packet",
				"stream_id", s.id,
				"kind", track.kind,
				"error", err,
			)
		}
	}
}

// Close stops all pumps and capture devices. Idempotent.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		for _, device := range s.devices {
			if err := device.Close(); err != nil {
				s.logger.Debugw("capture device close failed",
					"stream_id", s.id,
					"error", err,
				)
			}
		}
	})
}
