// Package store is the persistence gateway of the hub: append chat
// messages, list the recent tail. The backing store is an external
// collaborator; this package only implements the narrow interface the
// router consumes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sumohast/meet-room/internal/domain"
)

var ErrUnavailable = errors.New("store unavailable")

// Record is one persisted chat message. Immutable once created; the hub
// never updates or deletes records.
type Record struct {
	ID        string        `json:"id" bson:"_id,omitempty"`
	RoomID    string        `json:"room_id" bson:"room_id"`
	UserID    domain.UserID `json:"user_id" bson:"user_id"`
	Username  string        `json:"username" bson:"username"`
	Body      string        `json:"body" bson:"body"`
	CreatedAt time.Time     `json:"created_at" bson:"created_at"`
}

// Gateway is what the message router talks to. ListRecent returns
// newest-first; callers reverse to chronological order themselves.
type Gateway interface {
	AppendMessage(ctx context.Context, roomID string, user domain.User, body string) (*Record, error)
	ListRecent(ctx context.Context, roomID string, limit int) ([]*Record, error)
}
