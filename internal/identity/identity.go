// Package identity resolves the client-token cookie to a stable identity
// with display metadata. The presence coordinator never calls into it;
// joins carry participant info explicitly and this feeds the HTTP surface.
package identity

import (
	"github.com/dkeye/Lesson/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	tokenCookie    = "ct"
	keyDisplayName = "display_name"
	keyRole        = "role"
)

// Identity is the resolved caller: a stable id plus display metadata.
type Identity struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"displayName"`
	Role        domain.Role `json:"role"`
}

// TokenMiddleware assigns every caller an opaque client token, kept in a
// long-lived cookie so the identity survives page reloads.
func TokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(tokenCookie)
		if token == "" {
			token = uuid.NewString()
			c.SetCookie(tokenCookie, token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// Resolve maps the current request to an Identity. Callers that never set
// a profile come back as an attendee named guest.
func Resolve(c *gin.Context) Identity {
	id := Identity{
		ID:          c.GetString("client_token"),
		DisplayName: "guest",
		Role:        domain.RoleAttendee,
	}
	s := sessions.Default(c)
	if v, ok := s.Get(keyDisplayName).(string); ok && v != "" {
		id.DisplayName = v
	}
	if v, ok := s.Get(keyRole).(string); ok && domain.Role(v).Valid() {
		id.Role = domain.Role(v)
	}
	return id
}

// SaveProfile stores display metadata in the cookie session.
func SaveProfile(c *gin.Context, displayName string, role domain.Role) error {
	s := sessions.Default(c)
	s.Set(keyDisplayName, displayName)
	s.Set(keyRole, string(role))
	return s.Save()
}
