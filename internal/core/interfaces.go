package core

import (
	"time"

	"github.com/dkeye/Lesson/internal/domain"
	"github.com/dkeye/Lesson/internal/protocol"
)

// ConnID is the opaque identity the gateway assigns per live connection.
type ConnID string

// Sender delivers outbound envelopes to one connection. Implemented by the
// gateway; sends are best-effort and must swallow dead-connection races.
type Sender interface {
	Send(id ConnID, msg protocol.ServerMessage)
}

// RoomInfo is a read-only presence view for APIs (no connection fields).
type RoomInfo struct {
	ID               domain.RoomID `json:"id"`
	ParticipantCount int           `json:"participantCount"`
	CreatedAt        time.Time     `json:"createdAt"`
	LastActivity     time.Time     `json:"lastActivity"`
}
