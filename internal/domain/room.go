package domain

import (
	"errors"
	"fmt"
	"strings"
)

// RoomKind selects which realtime surface a connection speaks. Two kinds
// over the same reservation id are distinct broadcast domains: "chat:42"
// and "webrtc:42" never cross-deliver.
type RoomKind string

const (
	KindChat       RoomKind = "chat"
	KindWebRTC     RoomKind = "webrtc"
	KindWhiteboard RoomKind = "whiteboard"
)

var ErrBadRoomKey = errors.New("bad room key")

// RoomKey identifies one isolated broadcast domain.
type RoomKey struct {
	Kind RoomKind
	ID   string
}

func (k RoomKey) String() string {
	return fmt.Sprintf("%s:%s", k.Kind, k.ID)
}

// RequiresIdentity reports whether anonymous sessions are refused for
// this kind. Chat and signaling rooms need an authenticated user; the
// whiteboard admits viewers.
func (k RoomKey) RequiresIdentity() bool {
	return k.Kind == KindChat || k.Kind == KindWebRTC
}

// ParseRoomKey is the inverse of String, used by the cluster bridge when
// recovering the room from a pub/sub channel name.
func ParseRoomKey(s string) (RoomKey, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return RoomKey{}, ErrBadRoomKey
	}
	switch RoomKind(kind) {
	case KindChat, KindWebRTC, KindWhiteboard:
		return RoomKey{Kind: RoomKind(kind), ID: id}, nil
	}
	return RoomKey{}, ErrBadRoomKey
}
