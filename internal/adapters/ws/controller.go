package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sumohast/meet-room/internal/config"
	"github.com/sumohast/meet-room/internal/domain"
	"github.com/sumohast/meet-room/internal/hub"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller accepts WebSocket connects for each room kind and runs the
// session lifecycle: join, presence, read loop, teardown.
type Controller struct {
	Cfg         *config.Config
	Registry    *hub.Registry
	Broadcaster *hub.Broadcaster
	Router      *hub.Router
}

// IdentityFrom reads the identity the HTTP middleware resolved, nil for
// anonymous requests.
func IdentityFrom(c *gin.Context) *domain.User {
	v, ok := c.Get("user")
	if !ok {
		return nil
	}
	user, ok := v.(*domain.User)
	if !ok {
		return nil
	}
	return user
}

func (ctl *Controller) HandleChat(ctx context.Context, c *gin.Context) {
	ctl.serve(ctx, c, domain.RoomKey{Kind: domain.KindChat, ID: c.Param("reservation_id")})
}

func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ctl.serve(ctx, c, domain.RoomKey{Kind: domain.KindWebRTC, ID: c.Param("reservation_id")})
}

func (ctl *Controller) HandleWhiteboard(ctx context.Context, c *gin.Context) {
	ctl.serve(ctx, c, domain.RoomKey{Kind: domain.KindWhiteboard, ID: c.Param("room_id")})
}

func (ctl *Controller) serve(ctx context.Context, c *gin.Context, key domain.RoomKey) {
	user := IdentityFrom(c)
	if key.RequiresIdentity() && user == nil {
		// Refused before any registry join; nobody observes a
		// presence event for this attempt.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("room", key.String()).Msg("upgrade")
		return
	}
	conn.SetReadLimit(ctl.Cfg.ReadLimit)

	wc := newWSConn(conn, ctl.Cfg.SendBuffer, ctl.Cfg.WriteTimeout)
	sess := hub.NewSession(user, wc)
	log.Info().Str("module", "ws").Str("room", key.String()).Str("sid", string(sess.ID())).Bool("anonymous", user == nil).Msg("connected")

	ctx, cancel := context.WithCancel(ctx)
	go wc.writePump(ctx)

	ctl.Registry.Join(key, sess)
	sess.Open()

	// Presence is derived from the connection lifecycle and only
	// emitted for identified sessions; self is excluded.
	if user != nil {
		ctl.Broadcaster.Broadcast(key, hub.NewPresenceEvent(hub.EventUserJoin, *user), sess)
	}
	if key.Kind == domain.KindChat {
		ctl.Router.SendHistory(ctx, sess, key)
	}

	go ctl.readPump(ctx, cancel, sess, key, wc)
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, sess *hub.Session, key domain.RoomKey, wc *wsConn) {
	defer func() {
		cancel()
		ctl.teardown(sess, key)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := wc.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "ws").Str("sid", string(sess.ID())).Msg("read loop exit")
				return
			}
			ctl.Router.HandleFrame(ctx, sess, key, data)
		}
	}
}

// teardown deregisters and emits the leave event. Best-effort: a
// session already gone from the registry is a no-op, not an error.
func (ctl *Controller) teardown(sess *hub.Session, key domain.RoomKey) {
	sess.Close()
	left := ctl.Registry.Leave(key, sess)
	if user := sess.User(); left && user != nil {
		ctl.Broadcaster.Broadcast(key, hub.NewPresenceEvent(hub.EventUserLeave, *user), sess)
	}
	sess.MarkClosed()
	log.Info().Str("module", "ws").Str("room", key.String()).Str("sid", string(sess.ID())).Msg("disconnected")
}
