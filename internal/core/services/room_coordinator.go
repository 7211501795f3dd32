package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"
	"studymesh/internal/infrastructure/monitoring"
	"studymesh/pkg/cache"
	apperrors "studymesh/pkg/errors"
	"studymesh/pkg/tracing"
	"studymesh/pkg/utils"
	"studymesh/pkg/validation"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	profileCacheTTL = 5 * time.Minute
	connectTimeout  = 30 * time.Second
	publishTimeout  = 10 * time.Second
)

// CoordinatorConfig carries the tunables the coordinator needs.
type CoordinatorConfig struct {
	ChatMessagesPerSecond float64
	ChatBurst             int
}

// roomCoordinator drives the session lifecycle: Idle → Joining → Active →
// Leaving → Idle. One opMu serializes the public operations, so a Leave
// issued during an in-flight Join waits for it to settle instead of racing
// its resource setup. Event handlers from presence and the link layer only
// ever take the state mutex, never opMu.
type roomCoordinator struct {
	user        ports.CurrentUser
	acquirer    ports.MediaAcquirer
	presence    ports.PresenceChannel
	chat        ports.BroadcastChannel
	connector   ports.PeerConnector
	rooms       ports.RoomRepository
	memberships ports.MembershipRepository
	profiles    ports.ProfileRepository

	profileCache *cache.Cache
	collector    *monitoring.Collector
	chatLimiter  *rate.Limiter
	logger       *zap.SugaredLogger

	// opMu is the single in-progress-operation token.
	opMu sync.Mutex

	// mu guards everything below.
	mu            sync.RWMutex
	state         domain.SessionState
	roomID        domain.RoomID
	local         *domain.Participant
	localStream   ports.LocalStream
	screenStream  ports.LocalStream
	roster        map[domain.Identity]*domain.Participant
	chatLog       []domain.ChatMessage
	muted         bool
	videoOff      bool
	screenSharing bool
}

func NewRoomCoordinator(
	user ports.CurrentUser,
	acquirer ports.MediaAcquirer,
	presence ports.PresenceChannel,
	chat ports.BroadcastChannel,
	connector ports.PeerConnector,
	rooms ports.RoomRepository,
	memberships ports.MembershipRepository,
	profiles ports.ProfileRepository,
	collector *monitoring.Collector,
	cfg CoordinatorConfig,
	logger *zap.SugaredLogger,
) ports.RoomCoordinator {
	if cfg.ChatMessagesPerSecond <= 0 {
		cfg.ChatMessagesPerSecond = 5
	}
	if cfg.ChatBurst <= 0 {
		cfg.ChatBurst = 10
	}
	return &roomCoordinator{
		user:         user,
		acquirer:     acquirer,
		presence:     presence,
		chat:         chat,
		connector:    connector,
		rooms:        rooms,
		memberships:  memberships,
		profiles:     profiles,
		profileCache: cache.New(profileCacheTTL),
		collector:    collector,
		chatLimiter:  rate.NewLimiter(rate.Limit(cfg.ChatMessagesPerSecond), cfg.ChatBurst),
		logger:       logger,
		state:        domain.SessionIdle,
		roster:       make(map[domain.Identity]*domain.Participant),
	}
}

// JoinRoom runs the join sequence. Any failure after resource allocation
// rolls everything back to Idle; no orphaned channels, tracks or links
// survive a failed join.
func (rc *roomCoordinator) JoinRoom(ctx context.Context, roomID domain.RoomID) error {
	rc.opMu.Lock()
	defer rc.opMu.Unlock()

	if err := validation.ValidateRoomID(string(roomID)); err != nil {
		return apperrors.NewInvalidInput(err.Error())
	}

	// Joining while a session is live tears the old one down first.
	if rc.currentState() != domain.SessionIdle {
		rc.teardown()
	}

	ctx, span := tracing.TraceSessionOperation(ctx, "join", string(roomID))
	defer span.End()

	start := time.Now()

	// Preconditions surface before any media or channel is allocated.
	room, err := rc.rooms.GetByID(ctx, roomID)
	if err != nil {
		tracing.RecordError(ctx, err)
		rc.collector.JoinFailed()
		if err == domain.ErrRoomNotFound {
			return apperrors.NewNotFound("room")
		}
		return apperrors.NewJoinFailed(err)
	}

	rc.setState(domain.SessionJoining)

	if err := rc.runJoin(ctx, room); err != nil {
		tracing.RecordError(ctx, err)
		rc.logger.Errorw("join failed, rolling back", "room_id", roomID, "error", err)
		rc.teardown()
		rc.collector.JoinFailed()
		return apperrors.NewJoinFailed(err)
	}

	rc.setState(domain.SessionActive)
	rc.collector.SessionStarted(time.Since(start))
	rc.logger.Infow("joined room",
		"room_id", roomID,
		"identity", rc.user.ID,
		"duration", time.Since(start),
	)
	return nil
}

func (rc *roomCoordinator) runJoin(ctx context.Context, room *domain.Room) error {
	// Tier-fallback media acquisition: never fails, only degrades.
	result := rc.acquirer.Acquire(ctx)
	if result.Notice != "" {
		rc.logger.Warnw("media acquired with degraded capability",
			"room_id", room.ID,
			"notice", result.Notice,
		)
	}

	// The peer address is minted per room+user and carried explicitly from
	// here on; nothing downstream parses it back apart.
	peerAddress := domain.PeerAddress(fmt.Sprintf("%s-%s", room.ID, rc.user.ID))

	local := &domain.Participant{
		Identity:    rc.user.ID,
		DisplayName: rc.user.DisplayName,
		AvatarURL:   rc.user.AvatarURL,
		PeerAddress: peerAddress,
		Muted:       result.Muted,
		VideoOff:    result.VideoOff,
		JoinedAt:    time.Now(),
	}

	rc.mu.Lock()
	rc.roomID = room.ID
	rc.local = local
	rc.localStream = result.Stream
	rc.muted = result.Muted
	rc.videoOff = result.VideoOff
	rc.screenSharing = false
	rc.roster = make(map[domain.Identity]*domain.Participant)
	rc.chatLog = nil
	rc.mu.Unlock()

	if err := rc.memberships.Upsert(ctx, &domain.Membership{
		RoomID:    room.ID,
		UserID:    rc.user.ID,
		Active:    true,
		UpdatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("failed to record membership: %w", err)
	}

	// Best-effort roster enrichment before the presence sync lands.
	rc.enrichRoster(ctx, room.ID)

	self := rc.selfDescriptor()

	if err := rc.connector.Initialize(ctx, self, result.Stream, ports.PeerEvents{
		OnRemoteMedia: rc.handleRemoteMedia,
		OnLinkClosed:  rc.handleLinkClosed,
	}); err != nil {
		return fmt.Errorf("failed to initialize peer links: %w", err)
	}

	if err := rc.presence.Open(ctx, room.ID, self, ports.PresenceHandlers{
		OnSync:   rc.handlePresenceSync,
		OnJoin:   rc.handlePresenceJoin,
		OnUpdate: rc.handlePresenceUpdate,
		OnLeave:  rc.handlePresenceLeave,
	}); err != nil {
		return fmt.Errorf("failed to open presence channel: %w", err)
	}

	if err := rc.chat.Open(ctx, room.ID, rc.user.ID, rc.handleChatMessage); err != nil {
		return fmt.Errorf("failed to open chat channel: %w", err)
	}

	welcome := domain.ChatMessage{
		ID:         utils.GenerateID("msg"),
		RoomID:     room.ID,
		SenderName: "StudyMesh",
		Text:       fmt.Sprintf("Welcome to %s!", room.Name),
		System:     true,
		CreatedAt:  time.Now(),
	}
	rc.mu.Lock()
	rc.chatLog = append(rc.chatLog, welcome)
	rc.mu.Unlock()

	return nil
}

// enrichRoster seeds roster entries from the membership records so names and
// avatars show before presence sync arrives. Failures here are logged, never
// fatal; presence is the authoritative source.
func (rc *roomCoordinator) enrichRoster(ctx context.Context, roomID domain.RoomID) {
	members, err := rc.memberships.FindActiveByRoom(ctx, roomID)
	if err != nil {
		rc.logger.Warnw("roster enrichment query failed", "room_id", roomID, "error", err)
		return
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	for _, m := range members {
		if m.UserID == rc.user.ID {
			continue
		}
		if _, exists := rc.roster[m.UserID]; exists {
			continue
		}
		p := &domain.Participant{
			Identity: m.UserID,
			JoinedAt: m.UpdatedAt,
		}
		if profile := rc.lookupProfile(ctx, m.UserID); profile != nil {
			p.DisplayName = profile.DisplayName
			p.AvatarURL = profile.AvatarURL
		}
		rc.roster[m.UserID] = p
	}
}

func (rc *roomCoordinator) lookupProfile(ctx context.Context, userID domain.Identity) *domain.Profile {
	if cached, ok := rc.profileCache.Get(string(userID)); ok {
		return cached.(*domain.Profile)
	}
	profile, err := rc.profiles.GetByID(ctx, userID)
	if err != nil {
		if err != domain.ErrParticipantUnknown {
			rc.logger.Debugw("profile lookup failed", "user_id", userID, "error", err)
		}
		return nil
	}
	rc.profileCache.Set(string(userID), profile)
	return profile
}

// LeaveRoom tears the session down. Safe from any state, including repeated
// calls and mid-join failures; a no-op when no session is active.
func (rc *roomCoordinator) LeaveRoom(ctx context.Context) error {
	rc.opMu.Lock()
	defer rc.opMu.Unlock()

	if rc.currentState() == domain.SessionIdle {
		return nil
	}

	_, span := tracing.TraceSessionOperation(ctx, "leave", string(rc.currentRoomID()))
	defer span.End()

	rc.teardown()
	return nil
}

// teardown releases everything in reverse acquisition order. Every step is
// individually guarded so a failure in one never strands the rest.
func (rc *roomCoordinator) teardown() {
	rc.mu.Lock()
	wasActive := rc.state == domain.SessionActive
	rc.state = domain.SessionLeaving
	roomID := rc.roomID
	localStream := rc.localStream
	screenStream := rc.screenStream
	rc.mu.Unlock()

	rc.chat.Close()
	rc.presence.Close()
	rc.connector.CloseAll()

	if screenStream != nil {
		screenStream.Close()
	}
	if localStream != nil {
		localStream.Close()
	}

	if roomID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rc.memberships.Upsert(ctx, &domain.Membership{
			RoomID:    roomID,
			UserID:    rc.user.ID,
			Active:    false,
			UpdatedAt: time.Now(),
		}); err != nil {
			rc.logger.Warnw("failed to flip membership off", "room_id", roomID, "error", err)
		}
		cancel()
	}

	rc.mu.Lock()
	rc.roomID = ""
	rc.local = nil
	rc.localStream = nil
	rc.screenStream = nil
	rc.roster = make(map[domain.Identity]*domain.Participant)
	rc.chatLog = nil
	rc.muted = false
	rc.videoOff = false
	rc.screenSharing = false
	rc.state = domain.SessionIdle
	rc.mu.Unlock()

	if wasActive {
		rc.collector.SessionEnded()
	}
	if roomID != "" {
		rc.logger.Infow("left room", "room_id", roomID, "identity", rc.user.ID)
	}
}

// SendChatMessage appends the message locally before publishing, so the
// sender always sees it even when the broadcast round-trip is slow or lost.
func (rc *roomCoordinator) SendChatMessage(ctx context.Context, text string) (*domain.ChatMessage, error) {
	if err := validation.ValidateChatMessage(text); err != nil {
		return nil, apperrors.NewInvalidInput(err.Error())
	}

	rc.mu.Lock()
	if rc.state != domain.SessionActive {
		rc.mu.Unlock()
		return nil, domain.ErrNoActiveSession
	}
	if !rc.chatLimiter.Allow() {
		rc.mu.Unlock()
		return nil, apperrors.NewRateLimit()
	}

	msg := domain.ChatMessage{
		ID:         utils.GenerateID("msg"),
		RoomID:     rc.roomID,
		SenderID:   rc.user.ID,
		SenderName: rc.user.DisplayName,
		Text:       text,
		CreatedAt:  time.Now(),
	}
	rc.chatLog = append(rc.chatLog, msg)
	rc.mu.Unlock()

	rc.collector.ChatSent()

	// Fire-and-forget: send failures are logged, never retried; the local
	// echo above is the sender's feedback.
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := rc.chat.Send(sendCtx, msg); err != nil {
			rc.logger.Warnw("chat broadcast failed", "room_id", msg.RoomID, "error", err)
		}
	}()

	return &msg, nil
}

// ToggleAudio flips the mute flag, disables or re-enables the live audio
// track without renegotiating, and re-advertises the descriptor.
func (rc *roomCoordinator) ToggleAudio(ctx context.Context) (bool, error) {
	rc.opMu.Lock()
	defer rc.opMu.Unlock()

	rc.mu.Lock()
	if rc.state != domain.SessionActive {
		rc.mu.Unlock()
		return false, domain.ErrNoActiveSession
	}
	rc.muted = !rc.muted
	muted := rc.muted
	if rc.local != nil {
		rc.local.Muted = muted
	}
	stream := rc.localStream
	rc.mu.Unlock()

	if stream != nil {
		if track := stream.Track(domain.TrackAudio); track != nil {
			track.SetEnabled(!muted)
		}
	}

	rc.advertise(ctx)
	return muted, nil
}

// ToggleVideo mirrors ToggleAudio for the camera track.
func (rc *roomCoordinator) ToggleVideo(ctx context.Context) (bool, error) {
	rc.opMu.Lock()
	defer rc.opMu.Unlock()

	rc.mu.Lock()
	if rc.state != domain.SessionActive {
		rc.mu.Unlock()
		return false, domain.ErrNoActiveSession
	}
	rc.videoOff = !rc.videoOff
	videoOff := rc.videoOff
	if rc.local != nil {
		rc.local.VideoOff = videoOff
	}
	stream := rc.localStream
	rc.mu.Unlock()

	if stream != nil {
		if track := stream.Track(domain.TrackVideo); track != nil {
			track.SetEnabled(!videoOff)
		}
	}

	rc.advertise(ctx)
	return videoOff, nil
}

// ToggleScreenShare swaps the outgoing media between camera and screen. The
// swap recreates every peer link rather than mutating tracks in place.
func (rc *roomCoordinator) ToggleScreenShare(ctx context.Context) (bool, error) {
	rc.opMu.Lock()
	defer rc.opMu.Unlock()

	rc.mu.Lock()
	if rc.state != domain.SessionActive {
		rc.mu.Unlock()
		return false, domain.ErrNoActiveSession
	}
	sharing := rc.screenSharing
	camera := rc.localStream
	screen := rc.screenStream
	rc.mu.Unlock()

	if !sharing {
		screenStream, err := rc.acquirer.AcquireScreen(ctx)
		if err != nil {
			return false, apperrors.Wrap(err, apperrors.ErrCodeDeviceUnavailable, "screen capture unavailable", http.StatusServiceUnavailable)
		}
		if err := rc.connector.ReplaceOutgoingMedia(ctx, screenStream); err != nil {
			rc.logger.Warnw("some links failed to carry the screen stream", "error", err)
		}
		rc.mu.Lock()
		rc.screenStream = screenStream
		rc.screenSharing = true
		if rc.local != nil {
			rc.local.ScreenSharing = true
		}
		rc.mu.Unlock()
		rc.advertise(ctx)
		return true, nil
	}

	// A chat-only participant has no camera to restore. Keep the links so
	// the inbound streams they carry survive; the closed screen tracks
	// simply go silent.
	if camera != nil {
		if err := rc.connector.ReplaceOutgoingMedia(ctx, camera); err != nil {
			rc.logger.Warnw("some links failed to restore the camera stream", "error", err)
		}
	}
	if screen != nil {
		screen.Close()
	}
	rc.mu.Lock()
	rc.screenStream = nil
	rc.screenSharing = false
	if rc.local != nil {
		rc.local.ScreenSharing = false
	}
	rc.mu.Unlock()
	rc.advertise(ctx)
	return false, nil
}

// Snapshot returns a copy of the observable session state.
func (rc *roomCoordinator) Snapshot() domain.SessionSnapshot {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	snap := domain.SessionSnapshot{
		RoomID:        rc.roomID,
		State:         rc.state,
		Joining:       rc.state == domain.SessionJoining,
		Muted:         rc.muted,
		VideoOff:      rc.videoOff,
		ScreenSharing: rc.screenSharing,
	}
	if rc.local != nil {
		local := *rc.local
		snap.Local = &local
	}
	snap.Roster = make([]domain.Participant, 0, len(rc.roster))
	for _, p := range rc.roster {
		snap.Roster = append(snap.Roster, *p)
	}
	snap.Chat = append([]domain.ChatMessage(nil), rc.chatLog...)
	return snap
}

// advertise re-publishes the local descriptor so remote rosters track the
// local capability flags.
func (rc *roomCoordinator) advertise(ctx context.Context) {
	if err := rc.presence.UpdateDescriptor(ctx, rc.selfDescriptor()); err != nil {
		rc.logger.Warnw("failed to re-advertise descriptor", "error", err)
	}
}

func (rc *roomCoordinator) selfDescriptor() domain.Descriptor {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	d := domain.Descriptor{
		RoomID:        rc.roomID,
		Identity:      rc.user.ID,
		DisplayName:   rc.user.DisplayName,
		AvatarURL:     rc.user.AvatarURL,
		Muted:         rc.muted,
		VideoOff:      rc.videoOff,
		ScreenSharing: rc.screenSharing,
	}
	if rc.local != nil {
		d.PeerAddress = rc.local.PeerAddress
	}
	return d
}

func (rc *roomCoordinator) setState(s domain.SessionState) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.state = s
}

func (rc *roomCoordinator) currentState() domain.SessionState {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.state
}

func (rc *roomCoordinator) currentRoomID() domain.RoomID {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.roomID
}

// --- presence event handlers ---

func (rc *roomCoordinator) handlePresenceSync(descriptors []domain.Descriptor) {
	for _, d := range descriptors {
		rc.mergeDescriptor(d)
	}
}

func (rc *roomCoordinator) handlePresenceJoin(d domain.Descriptor) {
	rc.mergeDescriptor(d)
}

func (rc *roomCoordinator) handlePresenceUpdate(d domain.Descriptor) {
	rc.upsertRosterEntry(d)
}

// mergeDescriptor upserts the roster entry and dials the peer when it
// advertises an address we have no link for yet.
func (rc *roomCoordinator) mergeDescriptor(d domain.Descriptor) {
	if !rc.upsertRosterEntry(d) {
		return
	}
	if d.PeerAddress == "" {
		return
	}
	for _, addr := range rc.connector.OpenAddresses() {
		if addr == d.PeerAddress {
			return
		}
	}
	go rc.dial(d)
}

// upsertRosterEntry returns false when the descriptor was dropped (self or
// foreign room).
func (rc *roomCoordinator) upsertRosterEntry(d domain.Descriptor) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.state != domain.SessionActive && rc.state != domain.SessionJoining {
		return false
	}
	if d.Identity == rc.user.ID {
		return false
	}
	if d.RoomID != "" && d.RoomID != rc.roomID {
		rc.logger.Warnw("dropping descriptor from foreign room",
			"descriptor_room", d.RoomID,
			"session_room", rc.roomID,
		)
		return false
	}

	p, exists := rc.roster[d.Identity]
	if !exists {
		p = &domain.Participant{
			Identity: d.Identity,
			JoinedAt: time.Now(),
		}
		rc.roster[d.Identity] = p
	}
	p.ApplyDescriptor(d)
	return true
}

func (rc *roomCoordinator) dial(d domain.Descriptor) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	err := rc.connector.ConnectTo(ctx, d)
	if err == nil {
		return
	}
	if err == domain.ErrNoLocalMedia {
		// Chat-only participation: the remote side will originate instead.
		rc.logger.Debugw("skipping outbound call without local media", "remote_identity", d.Identity)
		return
	}
	rc.logger.Warnw("failed to establish peer link",
		"remote_identity", d.Identity,
		"remote_address", d.PeerAddress,
		"error", err,
	)
}

func (rc *roomCoordinator) handlePresenceLeave(identity domain.Identity) {
	rc.mu.Lock()
	p, exists := rc.roster[identity]
	var addr domain.PeerAddress
	if exists {
		addr = p.PeerAddress
		delete(rc.roster, identity)
	}
	rc.mu.Unlock()

	if !exists {
		return
	}
	if addr != "" {
		rc.connector.CloseLink(addr)
	}
	rc.logger.Infow("participant left", "identity", identity)
}

// --- peer link event handlers ---

func (rc *roomCoordinator) handleRemoteMedia(m ports.RemoteMedia) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	p, exists := rc.roster[m.Identity]
	if !exists {
		// Media can land before the presence delta; create a minimal entry.
		p = &domain.Participant{
			Identity:    m.Identity,
			PeerAddress: m.PeerAddress,
			JoinedAt:    time.Now(),
		}
		rc.roster[m.Identity] = p
	}
	p.Media = &domain.MediaInfo{
		StreamID: m.StreamID,
		Kinds:    m.Kinds,
	}
	if p.Media.HasKind(domain.TrackVideo) {
		p.VideoOff = false
	}
}

// handleLinkClosed clears the media handle but keeps the roster entry with
// its last-known display state; presence leave, not link failure, is the
// authoritative removal signal.
func (rc *roomCoordinator) handleLinkClosed(addr domain.PeerAddress) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for _, p := range rc.roster {
		if p.PeerAddress == addr {
			p.Media = nil
			return
		}
	}
}

// --- chat event handler ---

func (rc *roomCoordinator) handleChatMessage(msg domain.ChatMessage) {
	rc.mu.Lock()
	if rc.state != domain.SessionActive {
		rc.mu.Unlock()
		return
	}
	rc.chatLog = append(rc.chatLog, msg)
	rc.mu.Unlock()

	rc.collector.ChatReceived()
}
