package media

import (
	"context"
	"fmt"
	"net"

	"studymesh/internal/core/domain"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// CaptureDevice is one local capture source producing RTP packets.
type CaptureDevice interface {
	Kind() domain.TrackKind
	Codec() webrtc.RTPCodecCapability
	ReadRTP() (*rtp.Packet, error)
	Close() error
}

// DeviceProvider opens capture devices. Each Open call may fail
// independently; the acquirer turns those failures into fallback tiers.
type DeviceProvider interface {
	OpenAudio(ctx context.Context) (CaptureDevice, error)
	OpenVideo(ctx context.Context) (CaptureDevice, error)
	OpenScreen(ctx context.Context) (CaptureDevice, error)
}

// rtpDevice reads RTP from a loopback UDP socket. Encoding is delegated to
// an external capture process publishing to the configured port; a port of
// zero means the device is not present on this machine.
type rtpDevice struct {
	kind  domain.TrackKind
	codec webrtc.RTPCodecCapability
	conn  *net.UDPConn
	buf   []byte
}

func openRTPDevice(kind domain.TrackKind, codec webrtc.RTPCodecCapability, port int) (CaptureDevice, error) {
	if port <= 0 {
		return nil, fmt.Errorf("no %s capture port configured", kind)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s capture socket: %w", kind, err)
	}

	return &rtpDevice{
		kind:  kind,
		codec: codec,
		conn:  conn,
		buf:   make([]byte, 1500), // MTU size
	}, nil
}

func (d *rtpDevice) Kind() domain.TrackKind { return d.kind }

func (d *rtpDevice) Codec() webrtc.RTPCodecCapability { return d.codec }

func (d *rtpDevice) ReadRTP() (*rtp.Packet, error) {
	n, _, err := d.conn.ReadFrom(d.buf)
	if err != nil {
		return nil, err
	}
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(d.buf[:n]); err != nil {
		return nil, fmt.Errorf("malformed RTP packet: %w", err)
	}
	return pkt, nil
}

func (d *rtpDevice) Close() error {
	return d.conn.Close()
}

// RTPDeviceConfig selects the loopback ports the capture pipeline feeds.
type RTPDeviceConfig struct {
	AudioPort  int
	VideoPort  int
	ScreenPort int
}

// RTPDeviceProvider opens RTP-over-UDP capture devices.
type RTPDeviceProvider struct {
	cfg RTPDeviceConfig
}

func NewRTPDeviceProvider(cfg RTPDeviceConfig) *RTPDeviceProvider {
	return &RTPDeviceProvider{cfg: cfg}
}

func (p *RTPDeviceProvider) OpenAudio(ctx context.Context) (CaptureDevice, error) {
	return openRTPDevice(domain.TrackAudio,
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		p.cfg.AudioPort,
	)
}

func (p *RTPDeviceProvider) OpenVideo(ctx context.Context) (CaptureDevice, error) {
	return openRTPDevice(domain.TrackVideo,
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		p.cfg.VideoPort,
	)
}

func (p *RTPDeviceProvider) OpenScreen(ctx context.Context) (CaptureDevice, error) {
	return openRTPDevice(domain.TrackVideo,
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		p.cfg.ScreenPort,
	)
}
