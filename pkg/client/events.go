package client

import (
	"context"
	"errors"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lesson/internal/protocol"
)

// readLoop consumes server frames until the transport dies, then hands
// off to the reconnect path unless Disconnect was called.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.onTransportDown(conn, err)
			return
		}
		msg, derr := protocol.DecodeServer(data)
		if derr != nil {
			log.Warn().Err(derr).Str("module", "client").Msg("undecodable server frame")
			continue
		}
		c.handle(msg)
	}
}

// handle updates local state before invoking the callback, so a handler
// that reads back through the client sees the post-event view. Lists are
// replaced wholesale whenever the payload carries one.
func (c *Client) handle(msg protocol.ServerMessage) {
	switch m := msg.(type) {
	case *protocol.SessionJoined:
		c.mu.Lock()
		c.roomID = string(m.RoomID)
		c.participants = m.Participants
		c.mu.Unlock()
		if c.h.OnSessionJoined != nil {
			c.h.OnSessionJoined(string(m.RoomID), m.Participants)
		}
	case *protocol.ParticipantJoined:
		c.mu.Lock()
		c.participants = m.Participants
		c.mu.Unlock()
		if c.h.OnParticipantJoined != nil {
			c.h.OnParticipantJoined(m.Participant, m.Participants)
		}
	case *protocol.ParticipantLeft:
		c.mu.Lock()
		c.participants = m.Participants
		c.mu.Unlock()
		if c.h.OnParticipantLeft != nil {
			c.h.OnParticipantLeft(m.ParticipantIdentity, m.Participants)
		}
	case *protocol.CursorMoved:
		c.mu.Lock()
		for i := range c.participants {
			if c.participants[i].ID == m.ParticipantIdentity {
				cur := m.Cursor
				c.participants[i].Cursor = &cur
				break
			}
		}
		c.mu.Unlock()
		if c.h.OnCursorMoved != nil {
			c.h.OnCursorMoved(m.ParticipantIdentity, m.Cursor)
		}
	case *protocol.ActivityChanged:
		c.mu.Lock()
		for i := range c.participants {
			if c.participants[i].ID == m.ParticipantIdentity {
				c.participants[i].IsActive = m.IsActive
				break
			}
		}
		c.mu.Unlock()
		if c.h.OnActivityChanged != nil {
			c.h.OnActivityChanged(m.ParticipantIdentity, m.IsActive)
		}
	case *protocol.ErrorMessage:
		log.Warn().Str("module", "client").Str("error", m.Message).Msg("server error")
		if c.h.OnError != nil {
			c.h.OnError(errors.New(m.Message))
		}
	}
}

// onTransportDown runs the reconnect path: mark disconnected, redial with
// the same bounded backoff and re-issue the join — the server treats it as
// a fresh join and overwrites prior state for the identity.
func (c *Client) onTransportDown(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.status = StatusDisconnected
	c.lastErr = cause
	rejoin := c.pendingJoin
	c.participants = nil
	c.roomID = ""
	c.mu.Unlock()

	log.Warn().Err(cause).Str("module", "client").Msg("transport down, reconnecting")

	if err := c.Connect(context.Background()); err != nil {
		if c.h.OnError != nil && !errors.Is(err, ErrClosed) {
			c.h.OnError(err)
		}
		return
	}
	if rejoin != nil {
		if err := c.send(rejoin); err != nil && c.h.OnError != nil {
			c.h.OnError(err)
		}
	}
}
