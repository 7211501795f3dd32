package signal

import (
	"net/http"
	"sync"
	"time"

	"studymesh/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // tighten per deployment
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Relay is the signaling rendezvous: each participant connects under its
// peer address and envelopes are forwarded to the address in To. The relay
// never inspects SDP or candidates.
type Relay struct {
	connections map[domain.PeerAddress]*relayConn
	mu          sync.RWMutex

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	logger *zap.SugaredLogger
}

type relayConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (rc *relayConn) writeJSON(v interface{}, timeout time.Duration) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.conn.SetWriteDeadline(time.Now().Add(timeout))
	return rc.conn.WriteJSON(v)
}

func NewRelay(logger *zap.SugaredLogger) *Relay {
	return &Relay{
		connections:  make(map[domain.PeerAddress]*relayConn),
		pingInterval: 30 * time.Second,
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
}

func (s *Relay) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	addr := domain.PeerAddress(r.URL.Query().Get("peer_address"))
	if addr == "" {
		s.logger.Warn("missing peer_address in query parameters")
		return
	}

	rc := &relayConn{conn: conn}

	s.mu.Lock()
	if existing, reconnect := s.connections[addr]; reconnect && existing != nil {
		existing.conn.Close()
		s.logger.Infow("closing old connection for reconnecting peer", "peer_address", addr)
	}
	s.connections[addr] = rc
	s.mu.Unlock()

	s.logger.Infow("peer connected", "peer_address", addr)

	defer func() {
		s.mu.Lock()
		if s.connections[addr] == rc {
			delete(s.connections, addr)
		}
		s.mu.Unlock()
		s.logger.Infow("peer disconnected", "peer_address", addr)
	}()

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	envelopes := make(chan Envelope, 10)
	errs := make(chan error, 1)

	go func() {
		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				errs <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
			envelopes <- env
		}
	}()

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case env := <-envelopes:
			// Untrusted From is overwritten with the authenticated address.
			env.From = addr
			s.forward(env)
		case err := <-errs:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warnw("read failed", "peer_address", addr, "error", err)
			}
			return
		case <-pingTicker.C:
			rc.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			rc.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *Relay) forward(env Envelope) {
	if env.To == "" {
		s.logger.Warnw("envelope without destination", "type", env.Type, "from", env.From)
		return
	}

	s.mu.RLock()
	target, ok := s.connections[env.To]
	s.mu.RUnlock()

	if !ok {
		s.logger.Debugw("destination not connected", "to", env.To, "type", env.Type)
		return
	}

	if err := target.writeJSON(env, s.writeTimeout); err != nil {
		s.logger.Warnw("forward failed", "to", env.To, "type", env.Type, "error", err)
	}
}

// ConnectedAddresses reports who is currently registered, for health checks.
func (s *Relay) ConnectedAddresses() []domain.PeerAddress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addrs := make([]domain.PeerAddress, 0, len(s.connections))
	for addr := range s.connections {
		addrs = append(addrs, addr)
	}
	return addrs
}

func (s *Relay) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
