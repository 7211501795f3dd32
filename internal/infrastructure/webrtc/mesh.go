package webrtc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"
	"studymesh/internal/infrastructure/monitoring"
	"studymesh/internal/infrastructure/signal"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

type linkState int

const (
	linkConnecting linkState = iota
	linkOpen
	linkClosed
)

func (s linkState) String() string {
	switch s {
	case linkConnecting:
		return "connecting"
	case linkOpen:
		return "open"
	case linkClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// link is one peer media connection, keyed by remote address. At most one
// exists per address; on glare the later-established link wins and the
// discarded attempt is logged.
type link struct {
	addr      domain.PeerAddress
	identity  domain.Identity
	pc        *webrtc.PeerConnection
	state     linkState
	kinds     []domain.TrackKind
	streamID  string
	createdAt time.Time
	dialTimer *time.Timer
	// Trickle candidates held until the remote description is applied.
	queued []string
}

const (
	pendingCandidateTTL = 10 * time.Second
	pendingCandidateCap = 16
)

// pendingCandidate is a trickle candidate that outran the offer creating its
// link. Gathering starts as soon as the caller sets its local description,
// so candidates can arrive on the wire before the offer does.
type pendingCandidate struct {
	candidate string
	arrivedAt time.Time
}

type Config struct {
	ICEServers  []webrtc.ICEServer
	DialTimeout time.Duration
}

// LinkManager owns the full mesh of one-to-one media links for the active
// session. Local media is lent by the coordinator, never stopped here.
type LinkManager struct {
	cfg       Config
	transport signal.Transport
	collector *monitoring.Collector
	logger    *zap.SugaredLogger

	mu          sync.Mutex
	links       map[domain.PeerAddress]*link
	pending     map[domain.PeerAddress][]pendingCandidate
	self        domain.Descriptor
	local       ports.LocalStream
	events      ports.PeerEvents
	initialized bool
}

func NewLinkManager(cfg Config, transport signal.Transport, collector *monitoring.Collector, logger *zap.SugaredLogger) *LinkManager {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 15 * time.Second
	}
	return &LinkManager{
		cfg:       cfg,
		transport: transport,
		collector: collector,
		logger:    logger,
		links:     make(map[domain.PeerAddress]*link),
		pending:   make(map[domain.PeerAddress][]pendingCandidate),
	}
}

// Initialize opens the local transport endpoint under the self address.
func (m *LinkManager) Initialize(ctx context.Context, self domain.Descriptor, local ports.LocalStream, events ports.PeerEvents) error {
	m.mu.Lock()
	m.self = self
	m.local = local
	m.events = events
	m.initialized = true
	m.mu.Unlock()

	m.transport.SetHandler(m.handleEnvelope)
	if err := m.transport.Connect(ctx, self.PeerAddress); err != nil {
		return fmt.Errorf("failed to open peer transport: %w", err)
	}
	return nil
}

// ConnectTo originates a call to the remote address carrying the local
// media handle. A second call for an address with a live link is a no-op.
func (m *LinkManager) ConnectTo(ctx context.Context, remote domain.Descriptor) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return fmt.Errorf("link manager not initialized")
	}
	if _, exists := m.links[remote.PeerAddress]; exists {
		m.mu.Unlock()
		return nil
	}
	if m.local == nil {
		m.mu.Unlock()
		return domain.ErrNoLocalMedia
	}
	local := m.local
	m.mu.Unlock()

	pc, err := m.newPeerConnection(remote)
	if err != nil {
		return err
	}

	for _, t := range local.Tracks() {
		if _, err := pc.AddTrack(t.RTPTrack()); err != nil {
			pc.Close()
			return fmt.Errorf("failed to add %s track: %w", t.Kind(), err)
		}
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return fmt.Errorf("failed to set local description: %w", err)
	}

	m.register(remote, pc)

	if err := m.transport.Send(signal.Envelope{
		Type:     signal.TypeOffer,
		From:     m.self.PeerAddress,
		To:       remote.PeerAddress,
		RoomID:   m.self.RoomID,
		Identity: m.self.Identity,
		SDP:      offer.SDP,
	}); err != nil {
		m.CloseLink(remote.PeerAddress)
		return fmt.Errorf("failed to send offer: %w", err)
	}

	m.logger.Infow("originating call",
		"remote_address", remote.PeerAddress,
		"remote_identity", remote.Identity,
	)
	return nil
}

// ReplaceOutgoingMedia closes every link and re-originates it carrying the
// new handle. Track swaps incompatible with in-place replacement (screen
// share start/stop, device changes) go through here.
func (m *LinkManager) ReplaceOutgoingMedia(ctx context.Context, stream ports.LocalStream) error {
	m.mu.Lock()
	remotes := make([]domain.Descriptor, 0, len(m.links))
	for _, l := range m.links {
		remotes = append(remotes, domain.Descriptor{
			RoomID:      m.self.RoomID,
			Identity:    l.identity,
			PeerAddress: l.addr,
		})
	}
	for addr := range m.links {
		m.closeLinkLocked(addr, "media replaced")
	}
	m.local = stream
	m.mu.Unlock()

	var firstErr error
	for _, remote := range remotes {
		if err := m.ConnectTo(ctx, remote); err != nil {
			m.logger.Warnw("redial after media replacement failed",
				"remote_address", remote.PeerAddress,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// CloseLink closes the link for the address if one exists. Idempotent.
func (m *LinkManager) CloseLink(addr domain.PeerAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLinkLocked(addr, "closed by coordinator")
}

// CloseAll closes every link and the transport endpoint. Idempotent.
func (m *LinkManager) CloseAll() {
	m.mu.Lock()
	for addr := range m.links {
		m.closeLinkLocked(addr, "session teardown")
	}
	m.pending = make(map[domain.PeerAddress][]pendingCandidate)
	m.initialized = false
	m.mu.Unlock()

	if err := m.transport.Close(); err != nil {
		m.logger.Warnw("failed to close signal transport", "error", err)
	}
}

// OpenAddresses returns the remote addresses with a live link.
func (m *LinkManager) OpenAddresses() []domain.PeerAddress {
	m.mu.Lock()
	defer m.mu.Unlock()

	addrs := make([]domain.PeerAddress, 0, len(m.links))
	for addr := range m.links {
		addrs = append(addrs, addr)
	}
	return addrs
}

func (m *LinkManager) handleEnvelope(env signal.Envelope) {
	// Routed envelopes from other rooms are never valid on this endpoint.
	m.mu.Lock()
	selfRoom := m.self.RoomID
	m.mu.Unlock()
	if env.RoomID != "" && selfRoom != "" && env.RoomID != selfRoom {
		m.logger.Warnw("dropping signaling envelope from foreign room",
			"envelope_room", env.RoomID,
			"session_room", selfRoom,
			"type", env.Type,
		)
		return
	}

	switch env.Type {
	case signal.TypeOffer:
		m.handleOffer(env)
	case signal.TypeAnswer:
		m.handleAnswer(env)
	case signal.TypeICECandidate:
		m.handleICECandidate(env)
	default:
		m.logger.Warnw("unknown signaling envelope type", "type", env.Type)
	}
}

// handleOffer answers an inbound call with the current local media handle,
// or with an empty answer when there is none.
func (m *LinkManager) handleOffer(env signal.Envelope) {
	m.mu.Lock()
	if existing, ok := m.links[env.From]; ok {
		// Glare: an outbound attempt and an inbound call raced. The
		// later-established link wins; drop the earlier one.
		m.logger.Infow("discarding earlier link attempt on inbound call",
			"remote_address", env.From,
			"previous_state", existing.state,
		)
		m.closeLinkLocked(env.From, "superseded by inbound call")
	}
	local := m.local
	m.mu.Unlock()

	remote := domain.Descriptor{RoomID: env.RoomID, Identity: env.Identity, PeerAddress: env.From}
	pc, err := m.newPeerConnection(remote)
	if err != nil {
		m.logger.Errorw("failed to create connection for inbound call",
			"remote_address", env.From,
			"error", err,
		)
		return
	}

	if local != nil {
		for _, t := range local.Tracks() {
			if _, err := pc.AddTrack(t.RTPTrack()); err != nil {
				m.logger.Warnw("failed to add local track to answer",
					"remote_address", env.From,
					"kind", t.Kind(),
					"error", err,
				)
			}
		}
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  env.SDP,
	}); err != nil {
		m.logger.Errorw("failed to apply inbound offer", "remote_address", env.From, "error", err)
		pc.Close()
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		m.logger.Errorw("failed to create answer", "remote_address", env.From, "error", err)
		pc.Close()
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		m.logger.Errorw("failed to set local answer", "remote_address", env.From, "error", err)
		pc.Close()
		return
	}

	m.register(remote, pc)

	if err := m.transport.Send(signal.Envelope{
		Type:     signal.TypeAnswer,
		From:     m.self.PeerAddress,
		To:       env.From,
		RoomID:   m.self.RoomID,
		Identity: m.self.Identity,
		SDP:      answer.SDP,
	}); err != nil {
		m.logger.Errorw("failed to send answer", "remote_address", env.From, "error", err)
		m.CloseLink(env.From)
		return
	}

	m.logger.Infow("answered inbound call",
		"remote_address", env.From,
		"remote_identity", env.Identity,
		"with_media", local != nil,
	)
}

func (m *LinkManager) handleAnswer(env signal.Envelope) {
	m.mu.Lock()
	l, ok := m.links[env.From]
	m.mu.Unlock()
	if !ok {
		m.logger.Warnw("answer for unknown link", "remote_address", env.From)
		return
	}

	if err := l.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  env.SDP,
	}); err != nil {
		m.logger.Errorw("failed to apply answer", "remote_address", env.From, "error", err)
		m.CloseLink(env.From)
		return
	}

	m.flushQueuedCandidates(env.From, l.pc)
}

func (m *LinkManager) handleICECandidate(env signal.Envelope) {
	m.mu.Lock()
	l, ok := m.links[env.From]
	if !ok {
		// The candidate outran the offer that will create its link. Hold
		// it; register replays the buffer when the link appears.
		buf := m.pending[env.From]
		if len(buf) < pendingCandidateCap {
			m.pending[env.From] = append(buf, pendingCandidate{
				candidate: env.Candidate,
				arrivedAt: time.Now(),
			})
		}
		m.mu.Unlock()
		return
	}
	if l.pc.RemoteDescription() == nil {
		l.queued = append(l.queued, env.Candidate)
		m.mu.Unlock()
		return
	}
	pc := l.pc
	m.mu.Unlock()

	if err := pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: env.Candidate}); err != nil {
		m.logger.Warnw("failed to add ICE candidate", "remote_address", env.From, "error", err)
	}
}

// flushQueuedCandidates applies candidates held for the link. Callers ensure
// the remote description is set on pc first.
func (m *LinkManager) flushQueuedCandidates(addr domain.PeerAddress, pc *webrtc.PeerConnection) {
	m.mu.Lock()
	l, ok := m.links[addr]
	if !ok || l.pc != pc {
		m.mu.Unlock()
		return
	}
	queued := l.queued
	l.queued = nil
	m.mu.Unlock()

	for _, cand := range queued {
		if err := pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: cand}); err != nil {
			m.logger.Warnw("failed to add buffered ICE candidate", "remote_address", addr, "error", err)
		}
	}
}

func (m *LinkManager) newPeerConnection(remote domain.Descriptor) (*webrtc.PeerConnection, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: m.cfg.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		if err := m.transport.Send(signal.Envelope{
			Type:      signal.TypeICECandidate,
			From:      m.self.PeerAddress,
			To:        remote.PeerAddress,
			RoomID:    m.self.RoomID,
			Identity:  m.self.Identity,
			Candidate: cand.ToJSON().Candidate,
		}); err != nil {
			m.logger.Debugw("failed to send ICE candidate",
				"remote_address", remote.PeerAddress,
				"error", err,
			)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		m.onRemoteTrack(remote, pc, track, receiver)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.logger.Infow("link connection state changed",
			"remote_address", remote.PeerAddress,
			"state", state,
		)
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			m.onLinkFailed(remote.PeerAddress, pc)
		}
	})

	return pc, nil
}

func (m *LinkManager) register(remote domain.Descriptor, pc *webrtc.PeerConnection) {
	l := &link{
		addr:      remote.PeerAddress,
		identity:  remote.Identity,
		pc:        pc,
		state:     linkConnecting,
		createdAt: time.Now(),
	}
	l.dialTimer = time.AfterFunc(m.cfg.DialTimeout, func() {
		m.onDialTimeout(remote.PeerAddress, pc)
	})

	m.mu.Lock()
	for _, p := range m.pending[remote.PeerAddress] {
		if time.Since(p.arrivedAt) <= pendingCandidateTTL {
			l.queued = append(l.queued, p.candidate)
		}
	}
	delete(m.pending, remote.PeerAddress)
	m.links[remote.PeerAddress] = l
	m.mu.Unlock()

	m.collector.LinkDialed()

	// The answering side already holds the remote description; the calling
	// side flushes when the answer lands.
	if pc.RemoteDescription() != nil {
		m.flushQueuedCandidates(remote.PeerAddress, pc)
	}
}

func (m *LinkManager) onRemoteTrack(remote domain.Descriptor, pc *webrtc.PeerConnection, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	kind := domain.TrackAudio
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		kind = domain.TrackVideo
	}

	m.mu.Lock()
	l, ok := m.links[remote.PeerAddress]
	if !ok || l.pc != pc {
		m.mu.Unlock()
		// Track arrived on a link that already lost the glare tie-break.
		m.logger.Infow("ignoring track from superseded link", "remote_address", remote.PeerAddress)
		return
	}
	if l.state != linkOpen {
		l.state = linkOpen
		if l.dialTimer != nil {
			l.dialTimer.Stop()
		}
		m.collector.LinkOpened(time.Since(l.createdAt))
	}
	l.kinds = append(l.kinds, kind)
	l.streamID = track.StreamID()
	media := ports.RemoteMedia{
		PeerAddress: l.addr,
		Identity:    l.identity,
		StreamID:    l.streamID,
		Kinds:       append([]domain.TrackKind(nil), l.kinds...),
	}
	events := m.events
	m.mu.Unlock()

	m.logger.Infow("inbound stream arrived",
		"remote_address", remote.PeerAddress,
		"kind", kind,
		"codec", track.Codec().MimeType,
	)

	if events.OnRemoteMedia != nil {
		events.OnRemoteMedia(media)
	}

	go m.drainTrack(remote.PeerAddress, track)
	go m.readRTCP(remote.PeerAddress, receiver)
	if kind == domain.TrackVideo {
		go m.keyframeLoop(remote.PeerAddress, pc, track)
	}
}

func (m *LinkManager) onLinkFailed(addr domain.PeerAddress, pc *webrtc.PeerConnection) {
	m.mu.Lock()
	l, ok := m.links[addr]
	if !ok || l.pc != pc {
		m.mu.Unlock()
		return
	}
	m.closeLinkLocked(addr, "connection failed")
	events := m.events
	m.mu.Unlock()

	if events.OnLinkClosed != nil {
		events.OnLinkClosed(addr)
	}
}

func (m *LinkManager) onDialTimeout(addr domain.PeerAddress, pc *webrtc.PeerConnection) {
	m.mu.Lock()
	l, ok := m.links[addr]
	if !ok || l.pc != pc || l.state == linkOpen {
		m.mu.Unlock()
		return
	}
	m.logger.Warnw("link establishment timed out", "remote_address", addr)
	m.closeLinkLocked(addr, "dial timeout")
	events := m.events
	m.mu.Unlock()

	if events.OnLinkClosed != nil {
		events.OnLinkClosed(addr)
	}
}

// closeLinkLocked must be called with the mutex held.
func (m *LinkManager) closeLinkLocked(addr domain.PeerAddress, reason string) {
	l, ok := m.links[addr]
	if !ok {
		return
	}
	if l.dialTimer != nil {
		l.dialTimer.Stop()
	}
	l.state = linkClosed
	if l.pc != nil {
		l.pc.Close()
	}
	delete(m.links, addr)
	m.collector.LinkClosed()

	m.logger.Infow("peer link closed", "remote_address", addr, "reason", reason)
}
