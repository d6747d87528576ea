// Package protocol defines the wire envelopes exchanged over the signal
// socket. Every message is a JSON object with a "type" tag; the client set
// is decoded into a closed union so the gateway's dispatch switch is
// exhaustive by construction.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Lesson/internal/domain"
)

// Client → server type tags.
const (
	TypeJoin           = "join"
	TypeLeave          = "leave"
	TypeCursorUpdate   = "cursorUpdate"
	TypeActivityStatus = "activityStatus"
)

// Server → client type tags.
const (
	TypeSessionJoined     = "sessionJoined"
	TypeParticipantJoined = "participantJoined"
	TypeParticipantLeft   = "participantLeft"
	TypeCursorMoved       = "cursorMoved"
	TypeActivityChanged   = "activityChanged"
	TypeError             = "error"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrBadPayload  = errors.New("bad payload")
)

// ClientMessage is the union of inbound envelopes.
type ClientMessage interface {
	clientMessage()
}

// ParticipantInfo is the join-time view of a participant, before the
// coordinator stamps join time and activity state.
type ParticipantInfo struct {
	Identity    domain.ParticipantID `json:"identity"`
	DisplayName string               `json:"displayName"`
	Role        domain.Role          `json:"role"`
	Cursor      *domain.Cursor       `json:"cursor,omitempty"`
}

type Join struct {
	RoomID      string          `json:"roomId"`
	Participant ParticipantInfo `json:"participant"`
}

type Leave struct{}

type CursorUpdate struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type ActivityStatus struct {
	IsActive bool `json:"isActive"`
}

func (*Join) clientMessage()           {}
func (*Leave) clientMessage()          {}
func (*CursorUpdate) clientMessage()   {}
func (*ActivityStatus) clientMessage() {}

type envelope struct {
	Type string `json:"type"`
}

// DecodeClient parses one inbound frame. Unknown type tags return
// ErrUnknownType; a recognized tag with an unparseable body returns
// ErrBadPayload.
func DecodeClient(data []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	var msg ClientMessage
	switch env.Type {
	case TypeJoin:
		msg = &Join{}
	case TypeLeave:
		msg = &Leave{}
	case TypeCursorUpdate:
		msg = &CursorUpdate{}
	case TypeActivityStatus:
		msg = &ActivityStatus{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return msg, nil
}
