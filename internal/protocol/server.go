package protocol

import "github.com/dkeye/Lesson/internal/domain"

// ServerMessage is the union of outbound envelopes. Constructors below
// prefill the type tag so adapters never hand-write it.
type ServerMessage interface {
	serverMessage()
}

type SessionJoined struct {
	Type         string               `json:"type"`
	RoomID       domain.RoomID        `json:"roomId"`
	Participants []domain.Participant `json:"participants"`
}

type ParticipantJoined struct {
	Type         string               `json:"type"`
	Participant  domain.Participant   `json:"participant"`
	Participants []domain.Participant `json:"participants"`
}

type ParticipantLeft struct {
	Type                string               `json:"type"`
	ParticipantIdentity domain.ParticipantID `json:"participantIdentity"`
	Participant         domain.Participant   `json:"participant"`
	Participants        []domain.Participant `json:"participants"`
}

type CursorMoved struct {
	Type                string               `json:"type"`
	ParticipantIdentity domain.ParticipantID `json:"participantIdentity"`
	Cursor              domain.Cursor        `json:"cursor"`
}

type ActivityChanged struct {
	Type                string               `json:"type"`
	ParticipantIdentity domain.ParticipantID `json:"participantIdentity"`
	IsActive            bool                 `json:"isActive"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (*SessionJoined) serverMessage()     {}
func (*ParticipantJoined) serverMessage() {}
func (*ParticipantLeft) serverMessage()   {}
func (*CursorMoved) serverMessage()       {}
func (*ActivityChanged) serverMessage()   {}
func (*ErrorMessage) serverMessage()      {}

func NewSessionJoined(roomID domain.RoomID, participants []domain.Participant) *SessionJoined {
	return &SessionJoined{Type: TypeSessionJoined, RoomID: roomID, Participants: participants}
}

func NewParticipantJoined(p domain.Participant, participants []domain.Participant) *ParticipantJoined {
	return &ParticipantJoined{Type: TypeParticipantJoined, Participant: p, Participants: participants}
}

func NewParticipantLeft(p domain.Participant, participants []domain.Participant) *ParticipantLeft {
	return &ParticipantLeft{
		Type:                TypeParticipantLeft,
		ParticipantIdentity: p.ID,
		Participant:         p,
		Participants:        participants,
	}
}

func NewCursorMoved(id domain.ParticipantID, cursor domain.Cursor) *CursorMoved {
	return &CursorMoved{Type: TypeCursorMoved, ParticipantIdentity: id, Cursor: cursor}
}

func NewActivityChanged(id domain.ParticipantID, isActive bool) *ActivityChanged {
	return &ActivityChanged{Type: TypeActivityChanged, ParticipantIdentity: id, IsActive: isActive}
}

func NewError(message string) *ErrorMessage {
	return &ErrorMessage{Type: TypeError, Message: message}
}
