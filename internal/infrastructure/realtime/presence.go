package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	presenceTTL       = 90 * time.Second
	heartbeatInterval = 30 * time.Second
)

type presenceEventType string

const (
	eventJoin   presenceEventType = "join"
	eventUpdate presenceEventType = "update"
	eventLeave  presenceEventType = "leave"
)

type presenceEvent struct {
	Type       presenceEventType  `json:"type"`
	RoomID     domain.RoomID      `json:"room_id"`
	Identity   domain.Identity    `json:"identity"`
	Descriptor *domain.Descriptor `json:"descriptor,omitempty"`
}

func presenceKey(roomID domain.RoomID) string {
	return fmt.Sprintf("studymesh:room:%s:presence", roomID)
}

func eventsChannel(roomID domain.RoomID) string {
	return fmt.Sprintf("studymesh:room:%s:events", roomID)
}

// PresenceChannel tracks who is in a room through a Redis hash and fans out
// join/update/leave deltas over pub/sub. The hash snapshot taken at open is
// the roster sync; everything after arrives as a delta.
type PresenceChannel struct {
	client *redis.Client
	logger *zap.SugaredLogger

	mu       sync.Mutex
	roomID   domain.RoomID
	self     domain.Descriptor
	handlers ports.PresenceHandlers
	pubsub   *redis.PubSub
	done     chan struct{}
	open     bool
}

func NewPresenceChannel(client *redis.Client, logger *zap.SugaredLogger) *PresenceChannel {
	return &PresenceChannel{
		client: client,
		logger: logger,
	}
}

func (p *PresenceChannel) Open(ctx context.Context, roomID domain.RoomID, local domain.Descriptor, handlers ports.PresenceHandlers) error {
	if local.RoomID != roomID {
		return fmt.Errorf("descriptor addressed to room %s but channel opens %s", local.RoomID, roomID)
	}

	p.mu.Lock()
	if p.open {
		p.mu.Unlock()
		return fmt.Errorf("presence channel already open")
	}
	p.roomID = roomID
	p.self = local
	p.handlers = handlers
	p.pubsub = p.client.Subscribe(ctx, eventsChannel(roomID))
	p.done = make(chan struct{})
	p.open = true
	p.mu.Unlock()

	// Wait for the subscription to land before announcing, so no delta
	// published in response to our join can be missed.
	if _, err := p.pubsub.Receive(ctx); err != nil {
		p.teardown()
		return fmt.Errorf("failed to subscribe to room events: %w", err)
	}

	if err := p.writeSelf(ctx); err != nil {
		p.teardown()
		return err
	}
	if err := p.publish(ctx, presenceEvent{
		Type:       eventJoin,
		RoomID:     local.RoomID,
		Identity:   local.Identity,
		Descriptor: &local,
	}); err != nil {
		p.teardown()
		return err
	}

	roster, err := p.snapshot(ctx)
	if err != nil {
		p.teardown()
		return err
	}

	go p.dispatchLoop()
	go p.heartbeatLoop()

	if handlers.OnSync != nil {
		handlers.OnSync(roster)
	}

	p.logger.Infow("presence channel opened",
		"room_id", local.RoomID,
		"identity", local.Identity,
		"roster_size", len(roster),
	)
	return nil
}

// UpdateDescriptor republishes the local descriptor so remote rosters pick
// up mute, video and screen-share state changes.
func (p *PresenceChannel) UpdateDescriptor(ctx context.Context, d domain.Descriptor) error {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return domain.ErrChannelClosed
	}
	p.self = d
	p.mu.Unlock()

	if err := p.writeSelf(ctx); err != nil {
		return err
	}
	return p.publish(ctx, presenceEvent{
		Type:       eventUpdate,
		RoomID:     d.RoomID,
		Identity:   d.Identity,
		Descriptor: &d,
	})
}

// Close announces departure and releases the subscription. Idempotent.
func (p *PresenceChannel) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return nil
	}
	roomID := p.roomID
	identity := p.self.Identity
	p.mu.Unlock()

	if err := p.publish(ctx, presenceEvent{
		Type:     eventLeave,
		RoomID:   roomID,
		Identity: identity,
	}); err != nil {
		p.logger.Warnw("failed to announce departure", "room_id", roomID, "error", err)
	}
	if err := p.client.HDel(ctx, presenceKey(roomID), string(identity)).Err(); err != nil {
		p.logger.Warnw("failed to clear presence entry", "room_id", roomID, "error", err)
	}

	p.teardown()
	p.logger.Infow("presence channel closed", "room_id", roomID, "identity", identity)
	return nil
}

func (p *PresenceChannel) teardown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return
	}
	p.open = false
	close(p.done)
	if p.pubsub != nil {
		p.pubsub.Close()
	}
}

func (p *PresenceChannel) writeSelf(ctx context.Context) error {
	p.mu.Lock()
	self := p.self
	p.mu.Unlock()

	data, err := json.Marshal(self)
	if err != nil {
		return fmt.Errorf("failed to marshal descriptor: %w", err)
	}
	key := presenceKey(self.RoomID)
	pipe := p.client.Pipeline()
	pipe.HSet(ctx, key, string(self.Identity), data)
	pipe.Expire(ctx, key, presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write presence entry: %w", err)
	}
	return nil
}

func (p *PresenceChannel) publish(ctx context.Context, event presenceEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal presence event: %w", err)
	}
	if err := p.client.Publish(ctx, eventsChannel(event.RoomID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish presence event: %w", err)
	}
	return nil
}

func (p *PresenceChannel) snapshot(ctx context.Context) ([]domain.Descriptor, error) {
	p.mu.Lock()
	roomID := p.roomID
	selfIdentity := p.self.Identity
	p.mu.Unlock()

	entries, err := p.client.HGetAll(ctx, presenceKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read room roster: %w", err)
	}

	roster := make([]domain.Descriptor, 0, len(entries))
	for identity, raw := range entries {
		if domain.Identity(identity) == selfIdentity {
			continue
		}
		var d domain.Descriptor
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			p.logger.Warnw("skipping malformed presence entry",
				"room_id", roomID,
				"identity", identity,
				"error", err,
			)
			continue
		}
		roster = append(roster, d)
	}
	return roster, nil
}

func (p *PresenceChannel) dispatchLoop() {
	ch := p.pubsub.Channel()
	for {
		select {
		case <-p.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			p.dispatch(msg.Payload)
		}
	}
}

func (p *PresenceChannel) dispatch(payload string) {
	var event presenceEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		p.logger.Warnw("failed to unmarshal presence event", "error", err, "payload", payload)
		return
	}

	p.mu.Lock()
	roomID := p.roomID
	selfIdentity := p.self.Identity
	handlers := p.handlers
	p.mu.Unlock()

	if event.RoomID != roomID {
		p.logger.Warnw("dropping presence event from foreign room",
			"event_room", event.RoomID,
			"session_room", roomID,
		)
		return
	}
	if event.Identity == selfIdentity {
		return
	}

	switch event.Type {
	case eventJoin:
		if event.Descriptor != nil && handlers.OnJoin != nil {
			handlers.OnJoin(*event.Descriptor)
		}
	case eventUpdate:
		if event.Descriptor != nil && handlers.OnUpdate != nil {
			handlers.OnUpdate(*event.Descriptor)
		}
	case eventLeave:
		if handlers.OnLeave != nil {
			handlers.OnLeave(event.Identity)
		}
	default:
		p.logger.Warnw("unknown presence event type", "type", event.Type)
	}
}

func (p *PresenceChannel) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := p.writeSelf(ctx); err != nil {
				p.logger.Warnw("presence heartbeat failed", "error", err)
			}
			cancel()
		}
	}
}
