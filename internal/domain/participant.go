// Package domain holds the plain presence and session entities; no
// transport or lifecycle logic lives here.
package domain

import (
	"errors"
	"time"
)

const (
	MaxIdentityLen    = 64
	MaxDisplayNameLen = 64
)

var (
	ErrIdentityEmpty      = errors.New("participant identity empty")
	ErrIdentityTooLong    = errors.New("participant identity too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrUnknownRole        = errors.New("unknown role")
)

type ParticipantID string

// Role is the closed set of participation roles in a lesson room.
type Role string

const (
	RoleHost     Role = "host"
	RoleAttendee Role = "attendee"
)

func (r Role) Valid() bool {
	return r == RoleHost || r == RoleAttendee
}

// Cursor is a last-known editor position.
type Cursor struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Participant is one user's presence record inside one room.
// Identity is supplied by the client at join time, never generated here.
type Participant struct {
	ID          ParticipantID `json:"identity"`
	DisplayName string        `json:"displayName"`
	Role        Role          `json:"role"`
	JoinedAt    time.Time     `json:"joinedAt"`
	IsActive    bool          `json:"isActive"`
	Cursor      *Cursor       `json:"cursor,omitempty"`
}

// NewParticipant validates join-time fields and keeps construction obvious,
// so adapters never build raw literals.
func NewParticipant(id ParticipantID, displayName string, role Role, cursor *Cursor) (*Participant, error) {
	if len(id) == 0 {
		return nil, ErrIdentityEmpty
	}
	if len(id) > MaxIdentityLen {
		return nil, ErrIdentityTooLong
	}
	if len(displayName) == 0 {
		return nil, ErrDisplayNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	if !role.Valid() {
		return nil, ErrUnknownRole
	}
	return &Participant{
		ID:          id,
		DisplayName: displayName,
		Role:        role,
		IsActive:    true,
		Cursor:      cursor,
	}, nil
}
