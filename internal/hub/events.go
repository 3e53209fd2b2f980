package hub

import (
	"encoding/json"
	"time"

	"github.com/sumohast/meet-room/internal/domain"
	"github.com/sumohast/meet-room/internal/store"
)

// Outbound event type discriminators. Clients switch on "type".
const (
	EventFetchMessages = "fetch_messages"
	EventChatMessage   = "chat_message"
	EventUserJoin      = "user_join"
	EventUserLeave     = "user_leave"
	EventError         = "error"
)

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorEvent(msg string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: msg}
}

type PresenceEvent struct {
	Type     string        `json:"type"`
	Username string        `json:"username"`
	UserID   domain.UserID `json:"user_id"`
}

func NewPresenceEvent(kind string, user domain.User) PresenceEvent {
	return PresenceEvent{Type: kind, Username: user.Username, UserID: user.ID}
}

type ChatEvent struct {
	Type      string        `json:"type"`
	Message   string        `json:"message"`
	Username  string        `json:"username"`
	UserID    domain.UserID `json:"user_id"`
	Timestamp string        `json:"timestamp"`
}

func NewChatEvent(rec *store.Record) ChatEvent {
	return ChatEvent{
		Type:      EventChatMessage,
		Message:   rec.Body,
		Username:  rec.Username,
		UserID:    rec.UserID,
		Timestamp: rec.CreatedAt.Format(time.RFC3339),
	}
}

type HistoryMessage struct {
	Message   string        `json:"message"`
	Username  string        `json:"username"`
	UserID    domain.UserID `json:"user_id"`
	Timestamp string        `json:"timestamp"`
}

type HistoryEvent struct {
	Type     string           `json:"type"`
	Messages []HistoryMessage `json:"messages"`
}

// NewHistoryEvent converts the gateway's newest-first tail into the
// oldest-first payload the client renders.
func NewHistoryEvent(recent []*store.Record) HistoryEvent {
	msgs := make([]HistoryMessage, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		rec := recent[i]
		msgs = append(msgs, HistoryMessage{
			Message:   rec.Body,
			Username:  rec.Username,
			UserID:    rec.UserID,
			Timestamp: rec.CreatedAt.Format(time.RFC3339),
		})
	}
	return HistoryEvent{Type: EventFetchMessages, Messages: msgs}
}

// SignalEvent relays WebRTC negotiation payloads without interpreting
// them. Exactly one of Offer, Answer, Candidate is set, matching Type.
type SignalEvent struct {
	Type       string          `json:"type"`
	Offer      json.RawMessage `json:"offer,omitempty"`
	Answer     json.RawMessage `json:"answer,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
	SenderID   domain.UserID   `json:"sender_id"`
	ReceiverID string          `json:"receiver_id,omitempty"`
}
