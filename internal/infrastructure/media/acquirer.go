package media

import (
	"context"
	"fmt"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"
	"studymesh/pkg/utils"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Acquirer requests local capture with three-tier fallback:
// audio+video, then audio only, then none. It never returns an error past
// its boundary; a device-less session still proceeds as chat-only.
type Acquirer struct {
	provider DeviceProvider
	logger   *zap.SugaredLogger
}

func NewAcquirer(provider DeviceProvider, logger *zap.SugaredLogger) *Acquirer {
	return &Acquirer{provider: provider, logger: logger}
}

func (a *Acquirer) Acquire(ctx context.Context) ports.AcquireResult {
	// Tier 1: combined audio+video capture.
	if stream, err := a.open(ctx, domain.StreamCamera, true, true); err == nil {
		return ports.AcquireResult{Stream: stream}
	} else {
		a.logger.Infow("combined capture unavailable, trying audio only", "error", err)
	}

	// Tier 2: audio only.
	if stream, err := a.open(ctx, domain.StreamCamera, true, false); err == nil {
		return ports.AcquireResult{
			Stream:   stream,
			VideoOff: true,
			Notice:   "camera unavailable, joining with audio only",
		}
	} else {
		a.logger.Infow("audio capture unavailable, joining without devices", "error", err)
	}

	// Tier 3: no devices. Chat-only participation is still valid.
	return ports.AcquireResult{
		Muted:    true,
		VideoOff: true,
		Notice:   "no capture devices available, joining as chat-only",
	}
}

// AcquireScreen opens the screen capture source as a standalone stream.
func (a *Acquirer) AcquireScreen(ctx context.Context) (ports.LocalStream, error) {
	device, err := a.provider.OpenScreen(ctx)
	if err != nil {
		return nil, fmt.Errorf("screen capture unavailable: %w", err)
	}

	stream := newStream(utils.GenerateID("screen"), domain.StreamScreen, a.logger)
	track, err := a.buildTrack(device, "screen")
	if err != nil {
		device.Close()
		return nil, err
	}
	stream.attach(device, track)
	return stream, nil
}

func (a *Acquirer) open(ctx context.Context, kind domain.StreamKind, wantAudio, wantVideo bool) (ports.LocalStream, error) {
	stream := newStream(utils.GenerateID("cam"), kind, a.logger)

	if wantAudio {
		device, err := a.provider.OpenAudio(ctx)
		if err != nil {
			stream.Close()
			return nil, err
		}
		track, err := a.buildTrack(device, "audio")
		if err != nil {
			device.Close()
			stream.Close()
			return nil, err
		}
		stream.attach(device, track)
	}

	if wantVideo {
		device, err := a.provider.OpenVideo(ctx)
		if err != nil {
			stream.Close()
			return nil, err
		}
		track, err := a.buildTrack(device, "video")
		if err != nil {
			device.Close()
			stream.Close()
			return nil, err
		}
		stream.attach(device, track)
	}

	return stream, nil
}

func (a *Acquirer) buildTrack(device CaptureDevice, label string) (*Track, error) {
	rtpTrack, err := webrtc.NewTrackLocalStaticRTP(device.Codec(), label, utils.GenerateID("track"))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s track: %w", label, err)
	}
	return newTrack(device.Kind(), rtpTrack), nil
}
