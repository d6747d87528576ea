package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/Lesson/internal/adapters/signal"
	"github.com/dkeye/Lesson/internal/config"
	"github.com/dkeye/Lesson/internal/core"
	"github.com/dkeye/Lesson/internal/domain"
	"github.com/dkeye/Lesson/internal/identity"
	"github.com/dkeye/Lesson/internal/store"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func SetupRouter(cfg *config.Config, gw *signal.Gateway, coord *core.Coordinator, st *store.Store) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cs := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("LessonSessions", cs))
	r.Use(identity.TokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	api.GET("/ws", gw.HandleWS)

	api.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, identity.Resolve(c))
	})
	api.POST("/profile", saveProfile)

	api.POST("/sessions", createSession(st))
	api.GET("/sessions", listSessions(st))
	api.GET("/sessions/:id", getSession(st))
	api.DELETE("/sessions/:id", endSession(st))

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, coord.Rooms())
	})

	return r
}

func saveProfile(c *gin.Context) {
	var req struct {
		DisplayName string `json:"displayName" binding:"required,max=64"`
		Role        string `json:"role" binding:"required,oneof=host attendee"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := identity.SaveProfile(c, req.DisplayName, domain.Role(req.Role)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save profile"})
		return
	}
	c.JSON(http.StatusOK, identity.Resolve(c))
}

func createSession(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name     string `json:"name" binding:"required,max=200"`
			Language string `json:"language" binding:"max=32"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		caller := identity.Resolve(c)
		sess, err := domain.NewSession(uuid.NewString(), req.Name, req.Language, caller.ID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := st.CreateSession(c.Request.Context(), sess); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("create session")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
			return
		}
		c.JSON(http.StatusCreated, sess)
	}
}

func listSessions(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := st.ListActiveSessions(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("list sessions")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
			return
		}
		if out == nil {
			out = []*domain.Session{}
		}
		c.JSON(http.StatusOK, out)
	}
}

func getSession(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := st.GetSession(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("get session")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
			return
		}
		c.JSON(http.StatusOK, sess)
	}
}

func endSession(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := st.EndSession(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("end session")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end session"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
