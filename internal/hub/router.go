package hub

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sumohast/meet-room/internal/domain"
	"github.com/sumohast/meet-room/internal/store"
)

// FrameKind discriminates inbound frames. The router's switch over this
// set is exhaustive; anything else is answered with a sender-only error.
type FrameKind string

const (
	FrameFetchHistory     FrameKind = "fetch_history"
	FrameChatMessage      FrameKind = "chat_message"
	FrameOffer            FrameKind = "offer"
	FrameAnswer           FrameKind = "answer"
	FrameICECandidate     FrameKind = "ice_candidate"
	FrameWhiteboardUpdate FrameKind = "whiteboard_update"
)

// InboundFrame is the tagged union of everything a client may send.
type InboundFrame struct {
	Type       FrameKind       `json:"type"`
	Message    string          `json:"message"`
	Offer      json.RawMessage `json:"offer"`
	Answer     json.RawMessage `json:"answer"`
	Candidate  json.RawMessage `json:"candidate"`
	ReceiverID string          `json:"receiver_id"`
}

// Router validates and dispatches inbound frames. Gateway calls may
// block the issuing session's goroutine but never the broadcaster.
type Router struct {
	Gateway      store.Gateway
	Broadcaster  *Broadcaster
	Limiter      *RateLimiter
	HistoryLimit int
}

// HandleFrame processes one raw frame from s in room key. Every failure
// mode ends in a sender-only error event; nothing here may close the
// connection or escape to the read loop.
func (rt *Router) HandleFrame(ctx context.Context, s *Session, key domain.RoomKey, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "hub.router").Str("room", key.String()).Any("panic", r).Msg("recovered handler panic")
			rt.sendError(s, "an error occurred")
		}
	}()

	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		rt.sendError(s, "invalid message format")
		return
	}

	switch f.Type {
	case FrameFetchHistory:
		rt.SendHistory(ctx, s, key)
	case FrameChatMessage:
		rt.handleChat(ctx, s, key, f)
	case FrameOffer, FrameAnswer, FrameICECandidate:
		rt.handleSignal(s, key, f)
	case FrameWhiteboardUpdate:
		rt.handleWhiteboard(s, key, data)
	default:
		rt.sendError(s, "unknown message type")
	}
}

// SendHistory replies to the sender only with the most recent messages
// of the room, oldest first. Also pushed right after a chat connect.
func (rt *Router) SendHistory(ctx context.Context, s *Session, key domain.RoomKey) {
	recent, err := rt.Gateway.ListRecent(ctx, key.ID, rt.HistoryLimit)
	if err != nil {
		log.Error().Err(err).Str("module", "hub.router").Str("room", key.String()).Msg("list history")
		rt.sendError(s, "error fetching messages")
		return
	}
	if err := s.Send(NewHistoryEvent(recent)); err != nil {
		log.Warn().Err(err).Str("module", "hub.router").Str("sid", string(s.ID())).Msg("history send")
	}
}

func (rt *Router) handleChat(ctx context.Context, s *Session, key domain.RoomKey, f InboundFrame) {
	user := s.User()
	if user == nil {
		rt.sendError(s, "authentication required")
		return
	}
	body := strings.TrimSpace(f.Message)
	if body == "" {
		rt.sendError(s, "empty message")
		return
	}
	if rt.Limiter != nil && !rt.Limiter.Allow(user.ID) {
		rt.sendError(s, "too many messages")
		return
	}
	rec, err := rt.Gateway.AppendMessage(ctx, key.ID, *user, body)
	if err != nil {
		// Never broadcast unpersisted content as if persisted.
		log.Error().Err(err).Str("module", "hub.router").Str("room", key.String()).Msg("append message")
		rt.sendError(s, "failed to save message")
		return
	}
	// Echo included: the sender's UI reconciles via its own copy.
	rt.Broadcaster.Broadcast(key, NewChatEvent(rec), nil)
}

func (rt *Router) handleSignal(s *Session, key domain.RoomKey, f InboundFrame) {
	user := s.User()
	if user == nil {
		rt.sendError(s, "authentication required")
		return
	}
	ev := SignalEvent{
		Type:       string(f.Type),
		SenderID:   user.ID,
		ReceiverID: f.ReceiverID,
	}
	switch f.Type {
	case FrameOffer:
		ev.Offer = f.Offer
	case FrameAnswer:
		ev.Answer = f.Answer
	case FrameICECandidate:
		ev.Candidate = f.Candidate
	}
	// Room-scoped fan-out only; receiver-side filtering is a client
	// responsibility.
	rt.Broadcaster.Broadcast(key, ev, nil)
}

// handleWhiteboard relays the frame as-is, stamping sender_id when the
// session is authenticated. No persistence.
func (rt *Router) handleWhiteboard(s *Session, key domain.RoomKey, raw []byte) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		rt.sendError(s, "invalid message format")
		return
	}
	if user := s.User(); user != nil {
		id, _ := json.Marshal(user.ID)
		fields["sender_id"] = id
	}
	rt.Broadcaster.Broadcast(key, fields, nil)
}

func (rt *Router) sendError(s *Session, msg string) {
	if err := s.Send(NewErrorEvent(msg)); err != nil {
		log.Warn().Err(err).Str("module", "hub.router").Str("sid", string(s.ID())).Msg("error send")
	}
}
