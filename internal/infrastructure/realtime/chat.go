package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"studymesh/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func chatChannel(roomID domain.RoomID) string {
	return fmt.Sprintf("studymesh:room:%s:chat", roomID)
}

// ChatChannel broadcasts chat messages to every participant in a room over
// Redis pub/sub. The sender's own messages are echoed locally by the
// coordinator and filtered out here.
type ChatChannel struct {
	client *redis.Client
	logger *zap.SugaredLogger

	mu        sync.Mutex
	roomID    domain.RoomID
	self      domain.Identity
	onMessage func(domain.ChatMessage)
	pubsub    *redis.PubSub
	done      chan struct{}
	open      bool
}

func NewChatChannel(client *redis.Client, logger *zap.SugaredLogger) *ChatChannel {
	return &ChatChannel{
		client: client,
		logger: logger,
	}
}

func (c *ChatChannel) Open(ctx context.Context, roomID domain.RoomID, self domain.Identity, onMessage func(domain.ChatMessage)) error {
	c.mu.Lock()
	if c.open {
		c.mu.Unlock()
		return fmt.Errorf("chat channel already open")
	}
	c.roomID = roomID
	c.self = self
	c.onMessage = onMessage
	c.pubsub = c.client.Subscribe(ctx, chatChannel(roomID))
	c.done = make(chan struct{})
	c.open = true
	c.mu.Unlock()

	if _, err := c.pubsub.Receive(ctx); err != nil {
		c.teardown()
		return fmt.Errorf("failed to subscribe to chat channel: %w", err)
	}

	go c.dispatchLoop()

	c.logger.Infow("chat channel opened", "room_id", roomID)
	return nil
}

func (c *ChatChannel) Send(ctx context.Context, msg domain.ChatMessage) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return domain.ErrChannelClosed
	}
	roomID := c.roomID
	c.mu.Unlock()

	if msg.RoomID != roomID {
		return fmt.Errorf("message addressed to room %s but channel is bound to %s", msg.RoomID, roomID)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}
	if err := c.client.Publish(ctx, chatChannel(roomID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish chat message: %w", err)
	}
	return nil
}

// Close releases the subscription. Idempotent.
func (c *ChatChannel) Close() error {
	c.teardown()
	return nil
}

func (c *ChatChannel) teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return
	}
	c.open = false
	close(c.done)
	if c.pubsub != nil {
		c.pubsub.Close()
	}
}

func (c *ChatChannel) dispatchLoop() {
	ch := c.pubsub.Channel()
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			c.dispatch(msg.Payload)
		}
	}
}

func (c *ChatChannel) dispatch(payload string) {
	var msg domain.ChatMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		c.logger.Warnw("failed to unmarshal chat message", "error", err)
		return
	}

	c.mu.Lock()
	roomID := c.roomID
	self := c.self
	onMessage := c.onMessage
	c.mu.Unlock()

	if msg.RoomID != roomID {
		c.logger.Warnw("dropping chat message from foreign room",
			"message_room", msg.RoomID,
			"session_room", roomID,
		)
		return
	}
	if msg.SenderID == self {
		return
	}

	if onMessage != nil {
		onMessage(msg)
	}
}
