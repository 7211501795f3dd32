package webrtc

import (
	"context"
	"sync"
	"testing"
	"time"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"
	"studymesh/internal/infrastructure/signal"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeTransport struct {
	mu         sync.Mutex
	connected  domain.PeerAddress
	handler    func(signal.Envelope)
	sent       []signal.Envelope
	closeCount int
}

func (t *fakeTransport) Connect(ctx context.Context, self domain.PeerAddress) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = self
	return nil
}

func (t *fakeTransport) Send(env signal.Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, env)
	return nil
}

func (t *fakeTransport) SetHandler(fn func(signal.Envelope)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = fn
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeCount++
	return nil
}

func (t *fakeTransport) sentEnvelopes() []signal.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]signal.Envelope, len(t.sent))
	copy(out, t.sent)
	return out
}

func (t *fakeTransport) deliver(env signal.Envelope) {
	t.mu.Lock()
	fn := t.handler
	t.mu.Unlock()
	if fn != nil {
		fn(env)
	}
}

type localTrack struct {
	kind domain.TrackKind
	rtp  *webrtc.TrackLocalStaticRTP
}

func (t *localTrack) Kind() domain.TrackKind      { return t.kind }
func (t *localTrack) Enabled() bool               { return true }
func (t *localTrack) SetEnabled(bool)             {}
func (t *localTrack) RTPTrack() webrtc.TrackLocal { return t.rtp }

type localStream struct {
	tracks []ports.LocalTrack
}

func (s *localStream) ID() string                { return "local" }
func (s *localStream) Kind() domain.StreamKind   { return domain.StreamCamera }
func (s *localStream) Tracks() []ports.LocalTrack { return s.tracks }
func (s *localStream) Track(kind domain.TrackKind) ports.LocalTrack {
	for _, t := range s.tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}
func (s *localStream) Close() {}

func newLocalStream(t *testing.T) *localStream {
	t.Helper()
	audio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "local",
	)
	require.NoError(t, err)
	video, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video", "local",
	)
	require.NoError(t, err)
	return &localStream{tracks: []ports.LocalTrack{
		&localTrack{kind: domain.TrackAudio, rtp: audio},
		&localTrack{kind: domain.TrackVideo, rtp: video},
	}}
}

func selfDescriptor() domain.Descriptor {
	return domain.Descriptor{
		RoomID:      "R1",
		Identity:    "u1",
		DisplayName: "Uma",
		PeerAddress: "R1-u1",
	}
}

func newManager(t *testing.T, transport *fakeTransport) *LinkManager {
	t.Helper()
	return NewLinkManager(
		Config{DialTimeout: 5 * time.Second},
		transport,
		nil,
		zaptest.NewLogger(t).Sugar(),
	)
}

// remoteOffer builds a real SDP offer the way a remote endpoint would.
func remoteOffer(t *testing.T) string {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio)
	require.NoError(t, err)
	_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo)
	require.NoError(t, err)

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, pc.SetLocalDescription(offer))
	return offer.SDP
}

func TestConnectTo_BeforeInitialize(t *testing.T) {
	m := newManager(t, &fakeTransport{})
	err := m.ConnectTo(context.Background(), domain.Descriptor{PeerAddress: "R1-u2"})
	assert.Error(t, err)
}

func TestConnectTo_SendsOfferAndRegistersLink(t *testing.T) {
	transport := &fakeTransport{}
	m := newManager(t, transport)

	require.NoError(t, m.Initialize(context.Background(), selfDescriptor(), newLocalStream(t), ports.PeerEvents{}))
	assert.Equal(t, domain.PeerAddress("R1-u1"), transport.connected)

	remote := domain.Descriptor{RoomID: "R1", Identity: "u2", PeerAddress: "R1-u2"}
	require.NoError(t, m.ConnectTo(context.Background(), remote))

	sent := transport.sentEnvelopes()
	require.Len(t, sent, 1)
	assert.Equal(t, signal.TypeOffer, sent[0].Type)
	assert.Equal(t, domain.PeerAddress("R1-u1"), sent[0].From)
	assert.Equal(t, domain.PeerAddress("R1-u2"), sent[0].To)
	assert.Equal(t, domain.RoomID("R1"), sent[0].RoomID)
	assert.NotEmpty(t, sent[0].SDP)

	assert.Equal(t, []domain.PeerAddress{"R1-u2"}, m.OpenAddresses())

	m.CloseAll()
}

func TestConnectTo_DuplicateIsNoOp(t *testing.T) {
	transport := &fakeTransport{}
	m := newManager(t, transport)
	require.NoError(t, m.Initialize(context.Background(), selfDescriptor(), newLocalStream(t), ports.PeerEvents{}))

	remote := domain.Descriptor{RoomID: "R1", Identity: "u2", PeerAddress: "R1-u2"}
	require.NoError(t, m.ConnectTo(context.Background(), remote))
	require.NoError(t, m.ConnectTo(context.Background(), remote))

	assert.Len(t, transport.sentEnvelopes(), 1)
	assert.Len(t, m.OpenAddresses(), 1)

	m.CloseAll()
}

func TestConnectTo_NoLocalMedia(t *testing.T) {
	transport := &fakeTransport{}
	m := newManager(t, transport)
	require.NoError(t, m.Initialize(context.Background(), selfDescriptor(), nil, ports.PeerEvents{}))

	err := m.ConnectTo(context.Background(), domain.Descriptor{RoomID: "R1", PeerAddress: "R1-u2"})
	assert.ErrorIs(t, err, domain.ErrNoLocalMedia)
	assert.Empty(t, m.OpenAddresses())

	m.CloseAll()
}

func TestHandleOffer_AnswersInboundCall(t *testing.T) {
	transport := &fakeTransport{}
	m := newManager(t, transport)
	require.NoError(t, m.Initialize(context.Background(), selfDescriptor(), newLocalStream(t), ports.PeerEvents{}))

	transport.deliver(signal.Envelope{
		Type:     signal.TypeOffer,
		From:     "R1-u2",
		To:       "R1-u1",
		RoomID:   "R1",
		Identity: "u2",
		SDP:      remoteOffer(t),
	})

	sent := transport.sentEnvelopes()
	require.Len(t, sent, 1)
	assert.Equal(t, signal.TypeAnswer, sent[0].Type)
	assert.Equal(t, domain.PeerAddress("R1-u2"), sent[0].To)
	assert.NotEmpty(t, sent[0].SDP)
	assert.Equal(t, []domain.PeerAddress{"R1-u2"}, m.OpenAddresses())

	m.CloseAll()
}

func TestHandleOffer_NoLocalMediaStillAnswers(t *testing.T) {
	// Chat-only participants receive media without sending any.
	transport := &fakeTransport{}
	m := newManager(t, transport)
	require.NoError(t, m.Initialize(context.Background(), selfDescriptor(), nil, ports.PeerEvents{}))

	transport.deliver(signal.Envelope{
		Type:     signal.TypeOffer,
		From:     "R1-u2",
		To:       "R1-u1",
		RoomID:   "R1",
		Identity: "u2",
		SDP:      remoteOffer(t),
	})

	sent := transport.sentEnvelopes()
	require.Len(t, sent, 1)
	assert.Equal(t, signal.TypeAnswer, sent[0].Type)

	m.CloseAll()
}

func TestHandleOffer_SupersedesExistingLink(t *testing.T) {
	transport := &fakeTransport{}
	m := newManager(t, transport)
	require.NoError(t, m.Initialize(context.Background(), selfDescriptor(), newLocalStream(t), ports.PeerEvents{}))

	remote := domain.Descriptor{RoomID: "R1", Identity: "u2", PeerAddress: "R1-u2"}
	require.NoError(t, m.ConnectTo(context.Background(), remote))

	// Both sides dialed at once; the inbound offer wins.
	transport.deliver(signal.Envelope{
		Type:     signal.TypeOffer,
		From:     "R1-u2",
		To:       "R1-u1",
		RoomID:   "R1",
		Identity: "u2",
		SDP:      remoteOffer(t),
	})

	sent := transport.sentEnvelopes()
	require.Len(t, sent, 2)
	assert.Equal(t, signal.TypeOffer, sent[0].Type)
	assert.Equal(t, signal.TypeAnswer, sent[1].Type)

	// Still exactly one link for the address.
	assert.Equal(t, []domain.PeerAddress{"R1-u2"}, m.OpenAddresses())

	m.CloseAll()
}

func TestForeignRoomEnvelopeDropped(t *testing.T) {
	transport := &fakeTransport{}
	m := newManager(t, transport)
	require.NoError(t, m.Initialize(context.Background(), selfDescriptor(), newLocalStream(t), ports.PeerEvents{}))

	transport.deliver(signal.Envelope{
		Type:     signal.TypeOffer,
		From:     "other-u9",
		To:       "R1-u1",
		RoomID:   "other",
		Identity: "u9",
		SDP:      remoteOffer(t),
	})

	assert.Empty(t, transport.sentEnvelopes())
	assert.Empty(t, m.OpenAddresses())

	m.CloseAll()
}

func TestAnswerForUnknownAddressIgnored(t *testing.T) {
	transport := &fakeTransport{}
	m := newManager(t, transport)
	require.NoError(t, m.Initialize(context.Background(), selfDescriptor(), newLocalStream(t), ports.PeerEvents{}))

	transport.deliver(signal.Envelope{
		Type:   signal.TypeAnswer,
		From:   "R1-u2",
		To:     "R1-u1",
		RoomID: "R1",
		SDP:    "v=0",
	})

	assert.Empty(t, m.OpenAddresses())
	m.CloseAll()
}

func TestCloseLink_Idempotent(t *testing.T) {
	transport := &fakeTransport{}
	m := newManager(t, transport)
	require.NoError(t, m.Initialize(context.Background(), selfDescriptor(), newLocalStream(t), ports.PeerEvents{}))

	remote := domain.Descriptor{RoomID: "R1", Identity: "u2", PeerAddress: "R1-u2"}
	require.NoError(t, m.ConnectTo(context.Background(), remote))

	m.CloseLink("R1-u2")
	m.CloseLink("R1-u2")
	assert.Empty(t, m.OpenAddresses())

	m.CloseAll()
}

func TestCloseAll_ClosesTransportAndResets(t *testing.T) {
	transport := &fakeTransport{}
	m := newManager(t, transport)
	require.NoError(t, m.Initialize(context.Background(), selfDescriptor(), newLocalStream(t), ports.PeerEvents{}))

	remote := domain.Descriptor{RoomID: "R1", Identity: "u2", PeerAddress: "R1-u2"}
	require.NoError(t, m.ConnectTo(context.Background(), remote))

	m.CloseAll()
	m.CloseAll()

	assert.Empty(t, m.OpenAddresses())
	assert.Equal(t, 2, transport.closeCount)

	// A closed manager refuses new calls until reinitialized.
	err := m.ConnectTo(context.Background(), remote)
	assert.Error(t, err)

	require.NoError(t, m.Initialize(context.Background(), selfDescriptor(), newLocalStream(t), ports.PeerEvents{}))
	require.NoError(t, m.ConnectTo(context.Background(), remote))
	m.CloseAll()
}

func TestReplaceOutgoingMedia_RedialsSameAddresses(t *testing.T) {
	transport := &fakeTransport{}
	m := newManager(t, transport)
	require.NoError(t, m.Initialize(context.Background(), selfDescriptor(), newLocalStream(t), ports.PeerEvents{}))

	require.NoError(t, m.ConnectTo(context.Background(), domain.Descriptor{RoomID: "R1", Identity: "u2", PeerAddress: "R1-u2"}))
	require.NoError(t, m.ConnectTo(context.Background(), domain.Descriptor{RoomID: "R1", Identity: "u3", PeerAddress: "R1-u3"}))

	before := m.OpenAddresses()
	require.NoError(t, m.ReplaceOutgoingMedia(context.Background(), newLocalStream(t)))
	assert.ElementsMatch(t, before, m.OpenAddresses())

	// Two original offers plus two redials.
	offers := 0
	for _, env := range transport.sentEnvelopes() {
		if env.Type == signal.TypeOffer {
			offers++
		}
	}
	assert.Equal(t, 4, offers)

	m.CloseAll()
}

// remoteAnswer builds a real SDP answer to one of our offers.
func remoteAnswer(t *testing.T, offerSDP string) string {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	require.NoError(t, pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}))
	answer, err := pc.CreateAnswer(nil)
	require.NoError(t, err)
	require.NoError(t, pc.SetLocalDescription(answer))
	return answer.SDP
}

const hostCandidate = "candidate:1 1 udp 2130706431 127.0.0.1 54321 typ host"

func TestCandidateBeforeOfferBufferedAndReplayed(t *testing.T) {
	transport := &fakeTransport{}
	m := newManager(t, transport)
	require.NoError(t, m.Initialize(context.Background(), selfDescriptor(), newLocalStream(t), ports.PeerEvents{}))

	// The remote side's trickle candidate gets here first.
	transport.deliver(signal.Envelope{
		Type:      signal.TypeICECandidate,
		From:      "R1-u2",
		To:        "R1-u1",
		RoomID:    "R1",
		Candidate: hostCandidate,
	})

	m.mu.Lock()
	held := len(m.pending["R1-u2"])
	m.mu.Unlock()
	assert.Equal(t, 1, held)
	assert.Empty(t, m.OpenAddresses())

	transport.deliver(signal.Envelope{
		Type:     signal.TypeOffer,
		From:     "R1-u2",
		To:       "R1-u1",
		RoomID:   "R1",
		Identity: "u2",
		SDP:      remoteOffer(t),
	})

	// The answer went out and the held candidate was applied, not dropped.
	sent := transport.sentEnvelopes()
	require.NotEmpty(t, sent)
	assert.Equal(t, signal.TypeAnswer, sent[0].Type)

	m.mu.Lock()
	_, pendingLeft := m.pending["R1-u2"]
	l := m.links["R1-u2"]
	m.mu.Unlock()
	assert.False(t, pendingLeft)
	require.NotNil(t, l)
	assert.Empty(t, l.queued)

	m.CloseAll()
}

func TestCandidateBeforeAnswerHeldOnLink(t *testing.T) {
	transport := &fakeTransport{}
	m := newManager(t, transport)
	require.NoError(t, m.Initialize(context.Background(), selfDescriptor(), newLocalStream(t), ports.PeerEvents{}))

	remote := domain.Descriptor{RoomID: "R1", Identity: "u2", PeerAddress: "R1-u2"}
	require.NoError(t, m.ConnectTo(context.Background(), remote))

	// Candidate lands while we still wait for the answer.
	transport.deliver(signal.Envelope{
		Type:      signal.TypeICECandidate,
		From:      "R1-u2",
		To:        "R1-u1",
		RoomID:    "R1",
		Candidate: hostCandidate,
	})

	m.mu.Lock()
	l := m.links["R1-u2"]
	queued := len(l.queued)
	m.mu.Unlock()
	assert.Equal(t, 1, queued)

	sent := transport.sentEnvelopes()
	require.Len(t, sent, 1)
	transport.deliver(signal.Envelope{
		Type:   signal.TypeAnswer,
		From:   "R1-u2",
		To:     "R1-u1",
		RoomID: "R1",
		SDP:    remoteAnswer(t, sent[0].SDP),
	})

	m.mu.Lock()
	flushed := len(l.queued)
	m.mu.Unlock()
	assert.Zero(t, flushed)

	m.CloseAll()
}
