package signal

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"studymesh/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice_candidate"
)

// Envelope is one routed signaling message. Identity travels alongside the
// peer address so no receiver ever has to parse one out of the other.
type Envelope struct {
	Type      string             `json:"type"`
	From      domain.PeerAddress `json:"from"`
	To        domain.PeerAddress `json:"to"`
	RoomID    domain.RoomID      `json:"room_id,omitempty"`
	Identity  domain.Identity    `json:"identity,omitempty"`
	SDP       string             `json:"sdp,omitempty"`
	Candidate string             `json:"candidate,omitempty"`
}

// Transport relays signaling envelopes between peer addresses.
type Transport interface {
	Connect(ctx context.Context, self domain.PeerAddress) error
	Send(env Envelope) error
	SetHandler(fn func(Envelope))
	Close() error
}

type Config struct {
	URL          string
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
}

// Client is a WebSocket signaling client. The relay server routes each
// envelope to the connection registered under its To address.
type Client struct {
	cfg    Config
	logger *zap.SugaredLogger

	mu      sync.Mutex
	conn    *websocket.Conn
	handler func(Envelope)
	closed  bool
	done    chan struct{}
}

func NewClient(cfg Config, logger *zap.SugaredLogger) *Client {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Client{cfg: cfg, logger: logger, done: make(chan struct{})}
}

func (c *Client) SetHandler(fn func(Envelope)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = fn
}

func (c *Client) Connect(ctx context.Context, self domain.PeerAddress) error {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("invalid signal url: %w", err)
	}
	q := u.Query()
	q.Set("peer_address", string(self))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("signal dial failed: %w", err)
	}

	c.mu.Lock()
	if c.conn != nil && !c.closed {
		close(c.done)
		c.conn.Close()
	}
	c.conn = conn
	c.closed = false
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		return nil
	})

	go c.readLoop(conn)
	go c.pingLoop(conn, done)

	c.logger.Infow("signal transport connected", "peer_address", self)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warnw("signal read failed", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))

		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()
		if handler != nil {
			handler(env)
		}
	}
}

// pingLoop keeps the connection alive. WriteControl is safe to call
// concurrently with the JSON writes in Send; done is captured at spawn so a
// reconnect never leaves the old loop watching the new channel.
func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Warnw("signal ping failed", "error", err)
				return
			}
		}
	}
}

func (c *Client) Send(env Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.closed {
		return fmt.Errorf("signal transport not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteJSON(env)
}

// Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
