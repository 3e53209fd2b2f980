// Package hub is the realtime core: session handles, the room registry,
// the fan-out broadcaster and the inbound message router. Transport and
// persistence live behind small interfaces owned by the adapters.
package hub

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/sumohast/meet-room/internal/domain"
)

// Frame is one encoded wire payload.
type Frame []byte

var ErrBackpressure = errors.New("backpressure")
var ErrSessionClosed = errors.New("session closed")

// Conn abstracts the transport endpoint of one session.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	TrySend(Frame) error
	Close()
}

type SessionID string

type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

// Session is the server-side handle for one live connection: the
// transport, the authenticated identity (nil if anonymous) and the set
// of rooms it joined. Membership is mutated only by the session itself
// and the Registry.
type Session struct {
	id   SessionID
	user *domain.User
	conn Conn

	mu    sync.Mutex
	state State
	rooms map[domain.RoomKey]struct{}
}

func NewSession(user *domain.User, conn Conn) *Session {
	return &Session{
		id:    SessionID(uuid.NewString()),
		user:  user,
		conn:  conn,
		state: StateConnecting,
		rooms: make(map[domain.RoomKey]struct{}),
	}
}

func (s *Session) ID() SessionID      { return s.id }
func (s *Session) User() *domain.User { return s.user }
func (s *Session) Anonymous() bool    { return s.user == nil }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open transitions Connecting -> Open once the registry join is done.
func (s *Session) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnecting {
		s.state = StateOpen
	}
}

// BeginClose transitions to Closing. Returns false when the session was
// already closing or closed, so a double-close stays a no-op.
func (s *Session) BeginClose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosing || s.state == StateClosed {
		return false
	}
	s.state = StateClosing
	return true
}

func (s *Session) MarkClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}

// Close tears down the transport. Safe to call from any goroutine;
// deregistration happens when the read loop observes the closed socket.
func (s *Session) Close() {
	s.BeginClose()
	s.conn.Close()
}

// Rooms returns a snapshot of the joined room keys.
func (s *Session) Rooms() []domain.RoomKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RoomKey, 0, len(s.rooms))
	for k := range s.rooms {
		out = append(out, k)
	}
	return out
}

// Send marshals v and enqueues it on the session's transport.
func (s *Session) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.conn.TrySend(b)
}

// trackJoin and trackLeave are registry-only hooks keeping the handle's
// own membership view in sync.
func (s *Session) trackJoin(key domain.RoomKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[key] = struct{}{}
}

func (s *Session) trackLeave(key domain.RoomKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, key)
}
