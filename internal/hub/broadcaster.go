package hub

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/sumohast/meet-room/internal/domain"
)

// BridgePublisher mirrors room fan-out to other instances. Nil in a
// single-process deployment.
type BridgePublisher interface {
	Publish(ctx context.Context, key domain.RoomKey, payload []byte) error
}

// Broadcaster fans one event out to every member of a room at call
// time. A failed delivery schedules the failing session for async close
// and never blocks the rest of the fan-out.
type Broadcaster struct {
	registry *Registry
	bridge   BridgePublisher
}

func NewBroadcaster(reg *Registry, bridge BridgePublisher) *Broadcaster {
	return &Broadcaster{registry: reg, bridge: bridge}
}

// Broadcast delivers event to every session registered under key,
// skipping exclude if non-nil.
func (b *Broadcaster) Broadcast(key domain.RoomKey, event any, exclude *Session) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("module", "hub.broadcast").Str("room", key.String()).Msg("marshal event")
		return
	}
	b.deliver(key, payload, exclude)
	if b.bridge != nil {
		if err := b.bridge.Publish(context.Background(), key, payload); err != nil {
			log.Warn().Err(err).Str("module", "hub.broadcast").Str("room", key.String()).Msg("bridge publish")
		}
	}
}

// DeliverRemote injects an event received from another instance into
// the local room. It never republishes, so bridged events cannot loop.
func (b *Broadcaster) DeliverRemote(key domain.RoomKey, payload []byte) {
	b.deliver(key, payload, nil)
}

func (b *Broadcaster) deliver(key domain.RoomKey, payload []byte, exclude *Session) {
	g, ok := b.registry.lookup(key)
	if !ok {
		return
	}
	// Holding the group's fanout lock keeps per-room FIFO: two
	// broadcasts into the same room enqueue in the same relative order
	// on every member. Distinct rooms never contend here.
	g.fanout.Lock()
	defer g.fanout.Unlock()

	sent, dropped := 0, 0
	for _, s := range g.snapshot() {
		if s == exclude {
			continue
		}
		if err := s.conn.TrySend(payload); err != nil {
			dropped++
			// Not removed inline: the membership set is being
			// iterated. The closed socket makes the session's read
			// loop exit and deregister.
			go s.Close()
			log.Warn().Err(err).Str("module", "hub.broadcast").Str("room", key.String()).Str("sid", string(s.ID())).Msg("delivery failed, scheduling close")
			continue
		}
		sent++
	}
	log.Debug().Str("module", "hub.broadcast").Str("room", key.String()).Int("sent", sent).Int("dropped", dropped).Msg("fan-out")
}
