// Package ws owns the gorilla/websocket transport: upgrade, the
// per-connection send channel, and the read/write pumps.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sumohast/meet-room/internal/hub"
)

type wsConn struct {
	conn         *websocket.Conn
	send         chan hub.Frame
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

func newWSConn(conn *websocket.Conn, buffer int, writeTimeout time.Duration) *wsConn {
	return &wsConn{
		conn:         conn,
		send:         make(chan hub.Frame, buffer),
		writeTimeout: writeTimeout,
	}
}

func (c *wsConn) TrySend(f hub.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return hub.ErrSessionClosed
	}
	select {
	case c.send <- f:
	default:
		return hub.ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *wsConn) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump write error")
				return
			}
		}
	}
}
