package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/entrhq/hootspot/pkg/logging"
	"github.com/entrhq/hootspot/pkg/security/origin"
	"github.com/entrhq/hootspot/pkg/types"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Rendered reports with a chart
	// snapshot are a few MB once base64 encoded.
	maxMessageSize = 32 << 20

	// Size of the receive buffer per connection.
	receiveBufferSize = 64
)

// Conn is an Endpoint backed by a WebSocket connection.
type Conn struct {
	conn       *websocket.Conn
	origin     string
	peerOrigin string
	logger     *logging.Logger

	inbox chan Message
	done  chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, self, peer string, logger *logging.Logger) *Conn {
	c := &Conn{
		conn:       ws,
		origin:     self,
		peerOrigin: peer,
		logger:     logger,
		inbox:      make(chan Message, receiveBufferSize),
		done:       make(chan struct{}),
	}
	go c.readPump()
	go c.pingLoop()
	return c
}

// Origin implements Endpoint.
func (c *Conn) Origin() string {
	return c.origin
}

// PeerOrigin returns the origin attributed to everything read from this connection.
func (c *Conn) PeerOrigin() string {
	return c.peerOrigin
}

// Post implements Endpoint.
func (c *Conn) Post(ctx context.Context, env *types.Envelope, targetOrigin string) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	addressed, err := resolveTarget(targetOrigin, c.peerOrigin)
	if err != nil {
		return err
	}
	if !addressed {
		c.logger.Debugf("dropping %s for %s: peer is %s", env.Type, targetOrigin, c.peerOrigin)
		return nil
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write envelope: %w", err)
	}
	return nil
}

// Messages implements Endpoint.
func (c *Conn) Messages() <-chan Message {
	return c.inbox
}

// Done is closed once the connection has shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close implements Endpoint.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}

// readPump decodes envelopes until the connection fails, then closes inbox.
func (c *Conn) readPump() {
	defer func() {
		close(c.inbox)
		_ = c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warnf("connection to %s closed: %v", c.peerOrigin, err)
			}
			return
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			// Unrelated or corrupt traffic is not our concern.
			c.logger.Debugf("ignoring undecodable message from %s: %v", c.peerOrigin, err)
			continue
		}

		select {
		case c.inbox <- Message{Origin: c.peerOrigin, Envelope: &env}:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Server accepts WebSocket connections from trusted origins and hands each
// one out as an Endpoint.
type Server struct {
	origin   string
	allowed  origin.Matcher
	logger   *logging.Logger
	upgrader websocket.Upgrader

	conns     chan *Conn
	done      chan struct{}
	closeOnce sync.Once
}

// NewServer creates a server whose own origin is selfOrigin. Only handshakes
// carrying an Origin header accepted by allowed are upgraded.
func NewServer(selfOrigin string, allowed origin.Matcher, logger *logging.Logger) (*Server, error) {
	self, err := origin.Normalize(selfOrigin)
	if err != nil {
		return nil, fmt.Errorf("invalid server origin: %w", err)
	}
	if allowed == nil {
		return nil, fmt.Errorf("an origin matcher is required")
	}

	s := &Server{
		origin:  self,
		allowed: allowed,
		logger:  logger,
		conns:   make(chan *Conn, 16),
		done:    make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return allowed.Allows(r.Header.Get("Origin"))
		},
	}
	return s, nil
}

// ServeHTTP upgrades the request and queues the new connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	peer, err := origin.Normalize(r.Header.Get("Origin"))
	if err != nil || !s.allowed.Allows(peer) {
		s.logger.Warnf("rejecting connection from origin %q", r.Header.Get("Origin"))
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}

	conn := newConn(ws, s.origin, peer, s.logger)
	select {
	case s.conns <- conn:
		s.logger.Infof("accepted connection from %s", peer)
	case <-s.done:
		_ = conn.Close()
	case <-r.Context().Done():
		_ = conn.Close()
	}
}

// Connections yields accepted connections.
func (s *Server) Connections() <-chan *Conn {
	return s.conns
}

// Origin returns the server's own origin.
func (s *Server) Origin() string {
	return s.origin
}

// Close stops handing out connections.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

// Dial connects to a renderer server at rawURL, presenting selfOrigin in the
// handshake. The peer origin is derived from the URL (ws→http, wss→https).
func Dial(ctx context.Context, rawURL, selfOrigin string, logger *logging.Logger) (*Conn, error) {
	self, err := origin.Normalize(selfOrigin)
	if err != nil {
		return nil, fmt.Errorf("invalid local origin: %w", err)
	}
	peer, err := OriginForURL(rawURL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Origin", self)

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to renderer at %s: %w", rawURL, err)
	}

	return newConn(ws, self, peer, logger), nil
}

// OriginForURL returns the HTTP origin corresponding to a ws:// or wss:// URL.
func OriginForURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid renderer URL %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported renderer URL scheme %q", u.Scheme)
	}
	return origin.Normalize(u.Scheme + "://" + u.Host)
}
