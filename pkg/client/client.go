// Package client is the presence adapter run inside a participant process:
// one logical connection with bounded reconnect, join/leave/cursor/activity
// operations and callbacks for the server's presence events. Local
// participant state is replaced wholesale from server payloads; the client
// never computes membership deltas itself.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lesson/internal/domain"
	"github.com/dkeye/Lesson/internal/protocol"
)

var (
	ErrClosed       = errors.New("client closed")
	ErrNotConnected = errors.New("not connected")
)

type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Options tunes the transport. Backoff values are configuration, not a
// contract; zero fields take the defaults below.
type Options struct {
	URL string

	MaxAttempts      int           // default 5
	BaseDelay        time.Duration // default 1s, doubles per attempt
	MaxDelay         time.Duration // default 30s
	HandshakeTimeout time.Duration // default 10s
}

func (o *Options) withDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
}

// Handlers are the event subscription surface. Nil entries are skipped.
// Callbacks run on the read loop goroutine; don't block in them.
type Handlers struct {
	OnSessionJoined     func(roomID string, participants []domain.Participant)
	OnParticipantJoined func(p domain.Participant, participants []domain.Participant)
	OnParticipantLeft   func(identity domain.ParticipantID, participants []domain.Participant)
	OnCursorMoved       func(identity domain.ParticipantID, cursor domain.Cursor)
	OnActivityChanged   func(identity domain.ParticipantID, isActive bool)
	OnError             func(err error)
}

// ParticipantInfo is what the caller supplies at join time.
type ParticipantInfo struct {
	Identity    string
	DisplayName string
	Role        string
}

type Client struct {
	opts Options
	h    Handlers

	mu           sync.Mutex
	status       Status
	lastErr      error
	conn         *websocket.Conn
	connecting   chan struct{} // non-nil while a connect attempt is in flight
	connectErr   error
	closed       bool
	roomID       string
	pendingJoin  *protocol.Join // re-issued after a successful reconnect
	participants []domain.Participant

	writeMu sync.Mutex
}

func New(opts Options, h Handlers) *Client {
	opts.withDefaults()
	return &Client{opts: opts, h: h}
}

// Connect is idempotent: already connected returns immediately, and
// concurrent callers share one in-flight attempt instead of dialing twice.
// It fails once the bounded backoff schedule is exhausted.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.status == StatusConnected {
		c.mu.Unlock()
		return nil
	}
	if ch := c.connecting; ch != nil {
		c.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		err := c.connectErr
		c.mu.Unlock()
		return err
	}
	ch := make(chan struct{})
	c.connecting = ch
	c.status = StatusConnecting
	c.mu.Unlock()

	err := c.dialWithBackoff(ctx)

	c.mu.Lock()
	c.connectErr = err
	c.connecting = nil
	if err != nil {
		c.status = StatusDisconnected
		c.lastErr = err
	} else {
		c.status = StatusConnected
	}
	close(ch)
	c.mu.Unlock()
	return err
}

func (c *Client) dialWithBackoff(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	delay := c.opts.BaseDelay

	var lastErr error
	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
			if delay > c.opts.MaxDelay {
				delay = c.opts.MaxDelay
			}
		}
		if c.isClosed() {
			return ErrClosed
		}

		conn, _, err := dialer.DialContext(ctx, c.opts.URL, nil)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("module", "client").Int("attempt", attempt+1).Msg("dial failed")
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return ErrClosed
		}
		c.conn = conn
		c.mu.Unlock()

		go c.readLoop(conn)
		return nil
	}
	return lastErr
}

// JoinSession ensures the connection is up and sends the join. The server
// snapshot arrives asynchronously through OnSessionJoined.
func (c *Client) JoinSession(ctx context.Context, roomID string, info ParticipantInfo) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	join := &protocol.Join{
		RoomID: roomID,
		Participant: protocol.ParticipantInfo{
			Identity:    domain.ParticipantID(info.Identity),
			DisplayName: info.DisplayName,
			Role:        domain.Role(info.Role),
		},
	}
	c.mu.Lock()
	c.pendingJoin = join
	c.mu.Unlock()
	return c.send(join)
}

// LeaveSession sends leave for the current room; no room, no-op. Local
// room state is cleared only once the frame is written, so a failed send
// never leaves the client claiming it left while the server still holds
// the membership.
func (c *Client) LeaveSession() error {
	c.mu.Lock()
	if c.roomID == "" {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.send(&protocol.Leave{}); err != nil {
		return err
	}

	c.mu.Lock()
	c.roomID = ""
	c.pendingJoin = nil
	c.participants = nil
	c.mu.Unlock()
	return nil
}

// UpdateCursor is fire-and-forget; not connected or not in a room means a
// silent no-op, mirroring the server's tolerance.
func (c *Client) UpdateCursor(line, column int) {
	if !c.inRoom() {
		return
	}
	_ = c.send(&protocol.CursorUpdate{Line: line, Column: column})
}

func (c *Client) UpdateActivityStatus(isActive bool) {
	if !c.inRoom() {
		return
	}
	_ = c.send(&protocol.ActivityStatus{IsActive: isActive})
}

// Disconnect tears the transport down and stops any reconnect attempts.
// Room state from before the disconnect is never resurrected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.status = StatusDisconnected
	c.roomID = ""
	c.pendingJoin = nil
	c.participants = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Participants is the last list received from the server for the current
// room.
func (c *Client) Participants() []domain.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Participant, len(c.participants))
	copy(out, c.participants)
	return out
}

func (c *Client) inRoom() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == StatusConnected && c.roomID != ""
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) send(m protocol.ClientMessage) error {
	data, err := protocol.EncodeClient(m)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}
