package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sumohast/meet-room/internal/domain"
)

const memoryCap = 1000

// MemoryGateway keeps messages in process memory, capped per room. Used
// when no Mongo URI is configured (dev mode) and by tests.
type MemoryGateway struct {
	mu     sync.RWMutex
	byRoom map[string][]*Record
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{byRoom: make(map[string][]*Record)}
}

func (g *MemoryGateway) AppendMessage(_ context.Context, roomID string, user domain.User, body string) (*Record, error) {
	rec := &Record{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		UserID:    user.ID,
		Username:  user.Username,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	msgs := append(g.byRoom[roomID], rec)
	if len(msgs) > memoryCap {
		msgs = msgs[len(msgs)-memoryCap:]
	}
	g.byRoom[roomID] = msgs
	return rec, nil
}

// ListRecent returns newest-first, matching the Mongo gateway's contract.
func (g *MemoryGateway) ListRecent(_ context.Context, roomID string, limit int) ([]*Record, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	msgs := g.byRoom[roomID]
	if limit <= 0 || limit > len(msgs) {
		limit = len(msgs)
	}
	out := make([]*Record, 0, limit)
	for i := len(msgs) - 1; i >= len(msgs)-limit; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}
