package domain

import (
	"errors"
	"time"
)

const MaxSessionNameLen = 200

var (
	ErrSessionNameEmpty   = errors.New("session name empty")
	ErrSessionNameTooLong = errors.New("session name too long")
)

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// Session is the persisted lesson metadata. Presence rooms reference it by
// ID only; the coordinator never reads it back.
type Session struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Language  string        `json:"language,omitempty"`
	CreatedBy string        `json:"createdBy"`
	CreatedAt time.Time     `json:"createdAt"`
	EndedAt   *time.Time    `json:"endedAt,omitempty"`
	Status    SessionStatus `json:"status"`
}

func NewSession(id, name, language, createdBy string) (*Session, error) {
	if len(name) == 0 {
		return nil, ErrSessionNameEmpty
	}
	if len(name) > MaxSessionNameLen {
		return nil, ErrSessionNameTooLong
	}
	return &Session{
		ID:        id,
		Name:      name,
		Language:  language,
		CreatedBy: createdBy,
		CreatedAt: time.Now(),
		Status:    SessionActive,
	}, nil
}
