// Package chat is the storefront's realtime messaging transport: one
// websocket per session, reconnecting with capped backoff while the user
// stays signed in, deduplicating server redeliveries by message ID.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/localmart/authgate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512KB

	// reconnect backoff: 1s, 2s, 4s, ... capped at 30s, plus jitter.
	backoffBase = time.Second
	backoffCap  = 30 * time.Second

	// dedupeWindow bounds how many recent message IDs are remembered.
	dedupeWindow = 512

	sendBuffer = 64
)

// ErrNotConnected is returned by Send when no connection is up.
var ErrNotConnected = errors.New("chat: not connected")

// Event types carried in Message.Type.
const (
	EventMessageReceived = "messageReceived"
	EventMessageSent     = "messageSent"
	EventUserOnline      = "userOnline"
	EventUserOffline     = "userOffline"
)

// Message is the wire unit in both directions.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	SenderID  string          `json:"senderId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// Handler receives inbound messages. Invoked from the read loop, one
// message at a time.
type Handler func(Message)

// TokenSource supplies the current bearer token. *authgate.Controller
// satisfies it.
type TokenSource interface {
	Token() string
}

// Client maintains the chat connection. Construct with NewClient, then
// Run; Close tears everything down.
type Client struct {
	url     string
	tokens  TokenSource
	handler Handler
	metrics *authgate.Metrics
	dialer  *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
	send chan outbound

	seen *dedupeSet

	closed    chan struct{}
	closeOnce sync.Once
}

type outbound struct {
	msg  Message
	done chan error
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics attaches a metrics registry.
func WithMetrics(m *authgate.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithDialer replaces the default websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// NewClient builds a chat client for the given websocket URL. handler may
// be nil when the caller only sends.
func NewClient(url string, tokens TokenSource, handler Handler, opts ...Option) *Client {
	c := &Client{
		url:     url,
		tokens:  tokens,
		handler: handler,
		dialer:  websocket.DefaultDialer,
		send:    make(chan outbound, sendBuffer),
		seen:    newDedupeSet(dedupeWindow),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run connects and keeps the connection alive until ctx is cancelled or
// Close is called. Each drop is followed by a reconnect with capped
// exponential backoff; a session without a token stops the loop, since an
// unauthenticated client has no chat to run.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	sessions := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return nil
		default:
		}

		token := c.tokens.Token()
		if token == "" {
			return authgate.ErrNotAuthenticated
		}

		if err := c.connect(ctx, token); err != nil {
			attempt++
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.closed:
				return nil
			case <-time.After(backoff(attempt)):
			}
			continue
		}

		if sessions == 0 {
			c.metrics.Inc(authgate.MetricChatConnect)
		} else {
			c.metrics.Inc(authgate.MetricChatReconnect)
		}
		sessions++
		attempt = 0

		c.serve(ctx)
	}
}

// backoff returns the delay before reconnect attempt n, with jitter so a
// fleet of clients does not stampede the server after an outage.
func backoff(n int) time.Duration {
	d := backoffBase << (n - 1)
	if n > 5 || d > backoffCap {
		d = backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4))
	return d + jitter
}

func (c *Client) connect(ctx context.Context, token string) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// serve runs the pumps for one connection and returns when it drops.
func (c *Client) serve(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	done := make(chan struct{})
	go c.writePump(ctx, conn, done)
	c.readPump(conn)
	close(done)

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	conn.Close()
}

func (c *Client) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("chat: read: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("chat: drop unparseable frame: %v", err)
			continue
		}

		// The server redelivers on reconnect; the ID window keeps
		// redeliveries from reaching the handler twice.
		if msg.ID != "" && !c.seen.add(msg.ID) {
			c.metrics.Inc(authgate.MetricChatDuplicateDropped)
			continue
		}
		if c.handler != nil {
			c.handler(msg)
		}
	}
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-c.closed:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case out := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			raw, err := json.Marshal(out.msg)
			if err == nil {
				err = conn.WriteMessage(websocket.TextMessage, raw)
			}
			out.done <- err
			if err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send queues a message for delivery, assigning it a fresh ID, and waits
// for the write result.
func (c *Client) Send(ctx context.Context, msgType string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	connected := c.conn != nil
	c.mu.Unlock()
	if !connected {
		return "", ErrNotConnected
	}

	out := outbound{
		msg: Message{
			ID:        uuid.NewString(),
			Type:      msgType,
			Payload:   raw,
			Timestamp: time.Now().UTC(),
		},
		done: make(chan error, 1),
	}

	select {
	case c.send <- out:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.closed:
		return "", ErrNotConnected
	}

	select {
	case err := <-out.done:
		return out.msg.ID, err
	case <-ctx.Done():
		return out.msg.ID, ctx.Err()
	}
}

// Close stops the run loop and drops the connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	})
}

// dedupeSet remembers the last cap message IDs: a map for lookup, a ring
// for eviction order.
type dedupeSet struct {
	mu   sync.Mutex
	cap  int
	ring []string
	next int
	ids  map[string]struct{}
}

func newDedupeSet(cap int) *dedupeSet {
	return &dedupeSet{
		cap:  cap,
		ring: make([]string, cap),
		ids:  make(map[string]struct{}, cap),
	}
}

// add records id and reports whether it was new.
func (s *dedupeSet) add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.ids[id]; dup {
		return false
	}
	if old := s.ring[s.next]; old != "" {
		delete(s.ids, old)
	}
	s.ring[s.next] = id
	s.next = (s.next + 1) % s.cap
	s.ids[id] = struct{}{}
	return true
}
