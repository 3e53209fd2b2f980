package hub

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sumohast/meet-room/internal/domain"
)

// Registry maps room keys to the sessions currently joined. It does not
// own session lifetime; it is a lookup relation populated by Join and
// pruned by Leave. Operations on distinct keys never contend.
type Registry struct {
	mu     sync.RWMutex
	groups map[domain.RoomKey]*group
}

type group struct {
	mu sync.RWMutex
	// fanout serializes broadcast enqueue so events reach every member
	// of one room in the order they were broadcast.
	fanout  sync.Mutex
	members map[*Session]struct{}
	// dead marks a group pruned from the registry; joiners that raced
	// the prune retry against a fresh group.
	dead bool
}

func (g *group) snapshot() []*Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Session, 0, len(g.members))
	for s := range g.members {
		out = append(out, s)
	}
	return out
}

func NewRegistry() *Registry {
	return &Registry{groups: make(map[domain.RoomKey]*group)}
}

func (r *Registry) Join(key domain.RoomKey, s *Session) {
	for {
		g := r.getOrCreate(key)
		g.mu.Lock()
		if g.dead {
			g.mu.Unlock()
			continue
		}
		g.members[s] = struct{}{}
		g.mu.Unlock()
		break
	}
	s.trackJoin(key)
	log.Info().Str("module", "hub.registry").Str("room", key.String()).Str("sid", string(s.ID())).Msg("joined")
}

func (r *Registry) getOrCreate(key domain.RoomKey) *group {
	r.mu.RLock()
	g, ok := r.groups[key]
	r.mu.RUnlock()
	if ok {
		return g
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok = r.groups[key]; ok {
		return g
	}
	g = &group{members: make(map[*Session]struct{})}
	r.groups[key] = g
	return g
}

// Leave removes the session from the room. Returns false when the
// session was not a member, which callers treat as a no-op, not an
// error (double-close).
func (r *Registry) Leave(key domain.RoomKey, s *Session) bool {
	r.mu.RLock()
	g, ok := r.groups[key]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	g.mu.Lock()
	_, present := g.members[s]
	delete(g.members, s)
	empty := len(g.members) == 0
	g.mu.Unlock()
	if !present {
		return false
	}
	s.trackLeave(key)
	if empty {
		r.prune(key)
	}
	log.Info().Str("module", "hub.registry").Str("room", key.String()).Str("sid", string(s.ID())).Msg("left")
	return present
}

// prune drops the group entry if it is still empty, marking it dead so
// a racing Join retries against a fresh group instead of landing in an
// orphan.
func (r *Registry) prune(key domain.RoomKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[key]
	if !ok {
		return
	}
	g.mu.Lock()
	if len(g.members) == 0 {
		g.dead = true
		delete(r.groups, key)
	}
	g.mu.Unlock()
}

// LeaveAll deregisters the session from every room it joined and
// returns the keys it actually left.
func (r *Registry) LeaveAll(s *Session) []domain.RoomKey {
	keys := s.Rooms()
	left := make([]domain.RoomKey, 0, len(keys))
	for _, key := range keys {
		if r.Leave(key, s) {
			left = append(left, key)
		}
	}
	return left
}

// Snapshot returns the members of a room at call time. Safe to iterate
// without holding any registry lock.
func (r *Registry) Snapshot(key domain.RoomKey) []*Session {
	r.mu.RLock()
	g, ok := r.groups[key]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return g.snapshot()
}

func (r *Registry) MemberCount(key domain.RoomKey) int {
	r.mu.RLock()
	g, ok := r.groups[key]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

// lookup is the broadcaster's accessor; it never creates a group.
func (r *Registry) lookup(key domain.RoomKey) (*group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[key]
	return g, ok
}

type RoomInfo struct {
	Room        string `json:"room"`
	MemberCount int    `json:"member_count"`
}

// Rooms lists currently populated rooms, sorted for stable API output.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.RLock()
	out := make([]RoomInfo, 0, len(r.groups))
	for key, g := range r.groups {
		g.mu.RLock()
		n := len(g.members)
		g.mu.RUnlock()
		out = append(out, RoomInfo{Room: key.String(), MemberCount: n})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out
}
