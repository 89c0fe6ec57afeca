package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/collab-relay/internal/auth"
	"github.com/vovakirdan/collab-relay/internal/config"
	"github.com/vovakirdan/collab-relay/internal/core"
	"github.com/vovakirdan/collab-relay/internal/service/messages"
	"github.com/vovakirdan/collab-relay/internal/service/notifications"
	"github.com/vovakirdan/collab-relay/internal/store"
)

// Deps wires the HTTP layer to the relay and its services.
type Deps struct {
	Hub           *core.Hub
	Auth          *auth.Service
	Notifications *notifications.Service
	Messages      *messages.Service
	Presence      store.PresenceStore
}

// NewServer builds an HTTP server with the websocket endpoint and REST API.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(NewWSHandler(deps.Hub, deps.Auth, cfg, logger)))

	api := router.Group("/api", AuthMiddleware(deps.Auth, logger))

	if deps.Notifications != nil {
		nh := NewNotificationHandlers(deps.Notifications, logger)
		api.GET("/notifications", nh.List)
		api.PUT("/notifications/read-all", nh.MarkAllRead)
		api.PUT("/notifications/:id/read", nh.MarkRead)
		api.DELETE("/notifications/:id", nh.Delete)
	}

	if deps.Messages != nil {
		mh := NewMessageHandlers(deps.Messages, logger)
		api.POST("/direct-messages", mh.Send)
		api.GET("/direct-messages/:friendId", mh.Conversation)
		api.PUT("/direct-messages/:id/read", mh.MarkRead)
		api.DELETE("/direct-messages/:id", mh.Delete)
	}

	ph := NewPresenceHandlers(deps.Hub, deps.Presence, logger)
	api.GET("/users/:id/presence", ph.Get)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
