package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/collab-relay/internal/core"
	"github.com/vovakirdan/collab-relay/internal/store"
)

// PresenceHandlers reports identity presence.
type PresenceHandlers struct {
	hub   *core.Hub
	store store.PresenceStore
	log   *zerolog.Logger
}

// NewPresenceHandlers creates a new presence handlers instance. st may be nil.
func NewPresenceHandlers(hub *core.Hub, st store.PresenceStore, logger *zerolog.Logger) *PresenceHandlers {
	return &PresenceHandlers{hub: hub, store: st, log: logger}
}

// PresenceResponse describes an identity's presence.
type PresenceResponse struct {
	UserID      string     `json:"userId"`
	IsOnline    bool       `json:"isOnline"`
	LastSeen    *time.Time `json:"lastSeen"`
	Connections int        `json:"connections"`
}

// Get returns presence for one identity. Connections counts this instance only.
// GET /api/users/:id/presence
func (h *PresenceHandlers) Get(c *gin.Context) {
	userID := c.Param("id")

	conns, err := h.hub.ConnectionCount(userID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "relay unavailable"})
		return
	}
	resp := PresenceResponse{UserID: userID, Connections: conns, IsOnline: conns > 0}

	if h.store != nil {
		p, err := h.store.GetPresence(c.Request.Context(), userID)
		switch {
		case err == nil:
			resp.IsOnline = resp.IsOnline || p.IsOnline
			if !p.LastSeen.IsZero() {
				resp.LastSeen = &p.LastSeen
			}
		case errors.Is(err, store.ErrNotFound):
		default:
			h.log.Error().Err(err).Str("user_id", userID).Msg("failed to load presence")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}
