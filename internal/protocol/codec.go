package protocol

import (
	"encoding/json"
	"fmt"
)

// EncodeClient marshals one outbound-from-client envelope with its type
// tag. The switch is exhaustive over the client union; a new message type
// fails here at review time, not on the wire.
func EncodeClient(m ClientMessage) ([]byte, error) {
	switch v := m.(type) {
	case *Join:
		return json.Marshal(struct {
			Type string `json:"type"`
			*Join
		}{TypeJoin, v})
	case *Leave:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{TypeLeave})
	case *CursorUpdate:
		return json.Marshal(struct {
			Type string `json:"type"`
			*CursorUpdate
		}{TypeCursorUpdate, v})
	case *ActivityStatus:
		return json.Marshal(struct {
			Type string `json:"type"`
			*ActivityStatus
		}{TypeActivityStatus, v})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, m)
	}
}

// DecodeServer parses one server frame on the client side.
func DecodeServer(data []byte) (ServerMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	var msg ServerMessage
	switch env.Type {
	case TypeSessionJoined:
		msg = &SessionJoined{}
	case TypeParticipantJoined:
		msg = &ParticipantJoined{}
	case TypeParticipantLeft:
		msg = &ParticipantLeft{}
	case TypeCursorMoved:
		msg = &CursorMoved{}
	case TypeActivityChanged:
		msg = &ActivityChanged{}
	case TypeError:
		msg = &ErrorMessage{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return msg, nil
}
