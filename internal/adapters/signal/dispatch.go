package signal

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/Lesson/internal/core"
	"github.com/dkeye/Lesson/internal/domain"
	"github.com/dkeye/Lesson/internal/protocol"
	"github.com/rs/zerolog/log"
)

// dispatch routes one inbound frame. A handler failure becomes either a
// no-op or an error envelope to the offender; it never kills the
// connection or escapes into the read loop.
func (g *Gateway) dispatch(id core.ConnID, data []byte) {
	msg, err := protocol.DecodeClient(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("unknown message type")
			return
		}
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad payload")
		g.Send(id, protocol.NewError("bad_payload"))
		return
	}

	switch m := msg.(type) {
	case *protocol.Join:
		g.handleJoin(id, m)
	case *protocol.Leave:
		g.coord.Leave(id)
	case *protocol.CursorUpdate:
		g.coord.CursorUpdate(id, domain.Cursor{Line: m.Line, Column: m.Column})
	case *protocol.ActivityStatus:
		g.coord.ActivityStatus(id, m.IsActive)
	default:
		// DecodeClient's union is closed; reaching here is programmer error.
		log.Error().Str("module", "signal").Str("conn", string(id)).Msgf("unhandled message %T", msg)
	}
}

func (g *Gateway) handleJoin(id core.ConnID, m *protocol.Join) {
	if m.RoomID == "" {
		g.Send(id, protocol.NewError("roomId required"))
		return
	}
	p, err := domain.NewParticipant(m.Participant.Identity, m.Participant.DisplayName, m.Participant.Role, m.Participant.Cursor)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("invalid join")
		g.Send(id, protocol.NewError(err.Error()))
		return
	}
	g.coord.Join(id, domain.RoomID(m.RoomID), p)
}

// BroadcastToRoom delivers msg to every connection currently in roomID
// except exclude. Membership comes from the coordinator, the single
// authority, never from a gateway-side room index that could diverge.
func (g *Gateway) BroadcastToRoom(roomID domain.RoomID, msg protocol.ServerMessage, exclude core.ConnID) {
	for _, conn := range g.coord.RoomConns(roomID) {
		if conn == exclude {
			continue
		}
		g.Send(conn, msg)
	}
}

// Send marshals and delivers one envelope, best-effort. A connection that
// no longer exists, or one too slow to drain its buffer, drops the frame
// without surfacing an error to the caller.
func (g *Gateway) Send(id core.ConnID, msg protocol.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("send marshal")
		return
	}

	g.mu.RLock()
	conn, ok := g.conns[id]
	g.mu.RUnlock()
	if !ok {
		return
	}
	if err := conn.trySend(data); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("send dropped")
	}
}
