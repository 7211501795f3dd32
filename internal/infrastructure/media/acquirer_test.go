package media

import (
	"context"
	"errors"
	"testing"

	"studymesh/internal/core/domain"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeDevice struct {
	kind   domain.TrackKind
	codec  webrtc.RTPCodecCapability
	closed bool
}

func (d *fakeDevice) Kind() domain.TrackKind           { return d.kind }
func (d *fakeDevice) Codec() webrtc.RTPCodecCapability { return d.codec }
func (d *fakeDevice) ReadRTP() (*rtp.Packet, error)    { return nil, errors.New("no data") }
func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

type fakeProvider struct {
	audioErr  error
	videoErr  error
	screenErr error
	audio     *fakeDevice
	video     *fakeDevice
	screen    *fakeDevice
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		audio: &fakeDevice{kind: domain.TrackAudio, codec: webrtc.RTPCodecCapability{
			MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2,
		}},
		video: &fakeDevice{kind: domain.TrackVideo, codec: webrtc.RTPCodecCapability{
			MimeType: webrtc.MimeTypeVP8, ClockRate: 90000,
		}},
		screen: &fakeDevice{kind: domain.TrackVideo, codec: webrtc.RTPCodecCapability{
			MimeType: webrtc.MimeTypeVP8, ClockRate: 90000,
		}},
	}
}

func (p *fakeProvider) OpenAudio(ctx context.Context) (CaptureDevice, error) {
	if p.audioErr != nil {
		return nil, p.audioErr
	}
	return p.audio, nil
}

func (p *fakeProvider) OpenVideo(ctx context.Context) (CaptureDevice, error) {
	if p.videoErr != nil {
		return nil, p.videoErr
	}
	return p.video, nil
}

func (p *fakeProvider) OpenScreen(ctx context.Context) (CaptureDevice, error) {
	if p.screenErr != nil {
		return nil, p.screenErr
	}
	return p.screen, nil
}

func TestAcquire_FullMedia(t *testing.T) {
	provider := newFakeProvider()
	acquirer := NewAcquirer(provider, zaptest.NewLogger(t).Sugar())

	result := acquirer.Acquire(context.Background())

	require.NotNil(t, result.Stream)
	assert.False(t, result.Muted)
	assert.False(t, result.VideoOff)
	assert.Empty(t, result.Notice)
	assert.Equal(t, domain.StreamCamera, result.Stream.Kind())
	assert.Len(t, result.Stream.Tracks(), 2)
	assert.NotNil(t, result.Stream.Track(domain.TrackAudio))
	assert.NotNil(t, result.Stream.Track(domain.TrackVideo))

	result.Stream.Close()
	assert.True(t, provider.audio.closed)
	assert.True(t, provider.video.closed)
}

func TestAcquire_AudioOnlyFallback(t *testing.T) {
	provider := newFakeProvider()
	provider.videoErr = errors.New("camera busy")
	acquirer := NewAcquirer(provider, zaptest.NewLogger(t).Sugar())

	result := acquirer.Acquire(context.Background())

	require.NotNil(t, result.Stream)
	assert.False(t, result.Muted)
	assert.True(t, result.VideoOff)
	assert.NotEmpty(t, result.Notice)
	assert.Len(t, result.Stream.Tracks(), 1)
	assert.NotNil(t, result.Stream.Track(domain.TrackAudio))
	assert.Nil(t, result.Stream.Track(domain.TrackVideo))
	result.Stream.Close()
}

func TestAcquire_NoDevices(t *testing.T) {
	provider := newFakeProvider()
	provider.audioErr = errors.New("no microphone")
	provider.videoErr = errors.New("no camera")
	acquirer := NewAcquirer(provider, zaptest.NewLogger(t).Sugar())

	result := acquirer.Acquire(context.Background())

	assert.Nil(t, result.Stream)
	assert.True(t, result.Muted)
	assert.True(t, result.VideoOff)
	assert.NotEmpty(t, result.Notice)
}

func TestAcquire_VideoFailureClosesAudioDevice(t *testing.T) {
	// The first tier opens audio before video. When video fails, the
	// half-built stream must release the audio device so the second tier
	// can reopen it.
	provider := newFakeProvider()
	provider.videoErr = errors.New("camera busy")
	acquirer := NewAcquirer(provider, zaptest.NewLogger(t).Sugar())

	result := acquirer.Acquire(context.Background())

	require.NotNil(t, result.Stream)
	result.Stream.Close()
	assert.True(t, provider.audio.closed)
}

func TestAcquireScreen(t *testing.T) {
	provider := newFakeProvider()
	acquirer := NewAcquirer(provider, zaptest.NewLogger(t).Sugar())

	stream, err := acquirer.AcquireScreen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StreamScreen, stream.Kind())
	assert.Len(t, stream.Tracks(), 1)

	stream.Close()
	assert.True(t, provider.screen.closed)
}

func TestAcquireScreen_Unavailable(t *testing.T) {
	provider := newFakeProvider()
	provider.screenErr = errors.New("no display")
	acquirer := NewAcquirer(provider, zaptest.NewLogger(t).Sugar())

	stream, err := acquirer.AcquireScreen(context.Background())
	require.Error(t, err)
	assert.Nil(t, stream)
}

func TestTrackToggle(t *testing.T) {
	provider := newFakeProvider()
	acquirer := NewAcquirer(provider, zaptest.NewLogger(t).Sugar())

	result := acquirer.Acquire(context.Background())
	require.NotNil(t, result.Stream)
	defer result.Stream.Close()

	audio := result.Stream.Track(domain.TrackAudio)
	assert.True(t, audio.Enabled())
	audio.SetEnabled(false)
	assert.False(t, audio.Enabled())
	audio.SetEnabled(true)
	assert.True(t, audio.Enabled())
}
