// Package bridge mirrors room fan-out across instances through Redis
// pub/sub, one topic per room. Without it the registry is purely
// process-local.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/sumohast/meet-room/internal/domain"
)

type envelope struct {
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

type Bridge struct {
	client   *redis.Client
	prefix   string
	instance string
}

func New(ctx context.Context, addr, prefix string) (*Bridge, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Bridge{
		client:   client,
		prefix:   prefix,
		instance: uuid.NewString(),
	}, nil
}

func (b *Bridge) channel(key domain.RoomKey) string {
	return fmt.Sprintf("%s:room:%s", b.prefix, key)
}

// Publish mirrors one local broadcast to the room's topic.
func (b *Bridge) Publish(ctx context.Context, key domain.RoomKey, payload []byte) error {
	env, err := json.Marshal(envelope{Instance: b.instance, Data: payload})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel(key), env).Err()
}

// Run subscribes to every room topic and feeds remote events to
// deliver. Events published by this instance are filtered out, so a
// broadcast is never re-delivered locally. Blocks until ctx is done.
func (b *Bridge) Run(ctx context.Context, deliver func(domain.RoomKey, []byte)) {
	sub := b.client.PSubscribe(ctx, fmt.Sprintf("%s:room:*", b.prefix))
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handle(msg, deliver)
		}
	}
}

func (b *Bridge) handle(msg *redis.Message, deliver func(domain.RoomKey, []byte)) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		log.Warn().Err(err).Str("module", "bridge").Msg("bad envelope")
		return
	}
	if env.Instance == b.instance {
		return
	}
	raw, ok := strings.CutPrefix(msg.Channel, fmt.Sprintf("%s:room:", b.prefix))
	if !ok {
		return
	}
	key, err := domain.ParseRoomKey(raw)
	if err != nil {
		log.Warn().Err(err).Str("module", "bridge").Str("channel", msg.Channel).Msg("bad room key")
		return
	}
	deliver(key, env.Data)
}

func (b *Bridge) Close() error {
	return b.client.Close()
}
