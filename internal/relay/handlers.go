package relay

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pairshare/pairshare/internal/sessions"
)

// SessionHandlers provides HTTP handlers for session administration
type SessionHandlers struct {
	engine *Engine
	logger *zap.Logger
}

// NewSessionHandlers creates new session handlers
func NewSessionHandlers(engine *Engine, logger *zap.Logger) *SessionHandlers {
	return &SessionHandlers{engine: engine, logger: logger}
}

// RegisterRoutes registers the session administration routes
func (h *SessionHandlers) RegisterRoutes(router *gin.RouterGroup) {
	sessionsGroup := router.Group("/sessions")
	{
		sessionsGroup.DELETE("/:code", h.EndSession)
		sessionsGroup.GET("/:code/events", h.SessionEvents)
	}
}

// EndSession terminates a live session
func (h *SessionHandlers) EndSession(c *gin.Context) {
	code := sessions.NormalizeCode(c.Param("code"))

	if err := h.engine.EndSession(c.Request.Context(), code); err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": Reason(err)})
			return
		}
		h.logger.Error("Failed to end session", zap.String("session_code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to end session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session ended successfully"})
}

// SessionEvents returns a session's audit trail, newest first
func (h *SessionHandlers) SessionEvents(c *gin.Context) {
	code := sessions.NormalizeCode(c.Param("code"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	events, err := h.engine.SessionEvents(c.Request.Context(), code, limit)
	if err != nil {
		h.logger.Error("Failed to get session events", zap.String("session_code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get session events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_code": code,
		"events":       events,
		"count":        len(events),
	})
}
