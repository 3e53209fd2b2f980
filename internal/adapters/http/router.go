package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sumohast/meet-room/internal/adapters/ws"
	"github.com/sumohast/meet-room/internal/config"
	"github.com/sumohast/meet-room/internal/domain"
	"github.com/sumohast/meet-room/internal/hub"
	"github.com/sumohast/meet-room/internal/mailer"
)

// SetupRouter wires the WebSocket routes and the small REST surface
// (presence snapshots, notification dispatch).
func SetupRouter(ctx context.Context, cfg *config.Config, ctl *ws.Controller, registry *hub.Registry, dispatcher *mailer.Dispatcher) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("meetroom_session", store))
	r.Use(IdentityMiddleware(cfg.Secret))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ws/chat/:reservation_id", func(c *gin.Context) {
		ctl.HandleChat(ctx, c)
	})
	r.GET("/ws/webrtc/:reservation_id", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})
	r.GET("/ws/whiteboard/:room_id", func(c *gin.Context) {
		ctl.HandleWhiteboard(ctx, c)
	})

	api := r.Group("/api")

	// GET /api/rooms — populated broadcast domains
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": registry.Rooms()})
	})

	// GET /api/rooms/:kind/:id/members — who is in one room
	api.GET("/rooms/:kind/:id/members", func(c *gin.Context) {
		key, err := domain.ParseRoomKey(c.Param("kind") + ":" + c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad room key"})
			return
		}
		members := make([]domain.User, 0)
		for _, s := range registry.Snapshot(key) {
			if u := s.User(); u != nil {
				members = append(members, *u)
			}
		}
		c.JSON(http.StatusOK, gin.H{"room": key.String(), "members": members})
	})

	// POST /api/notify — fire-and-forget email dispatch for the booking
	// views; replies with the correlation id, never with the outcome.
	api.POST("/notify", RequireIdentity(), func(c *gin.Context) {
		var req struct {
			Subject    string   `json:"subject" binding:"required"`
			Body       string   `json:"body" binding:"required"`
			Recipients []string `json:"recipients"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		correlationID := uuid.NewString()
		dispatcher.Dispatch(req.Subject, req.Body, req.Recipients, correlationID)
		c.JSON(http.StatusAccepted, gin.H{"correlation_id": correlationID})
	})

	return r
}
