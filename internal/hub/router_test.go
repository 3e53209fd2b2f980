package hub

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sumohast/meet-room/internal/domain"
	"github.com/sumohast/meet-room/internal/store"
)

// fakeGateway is an in-memory store.Gateway with switchable failure
// modes.
type fakeGateway struct {
	records   []*store.Record
	appendErr error
	listErr   error
	panics    bool
}

func (g *fakeGateway) AppendMessage(_ context.Context, roomID string, user domain.User, body string) (*store.Record, error) {
	if g.panics {
		panic("gateway exploded")
	}
	if g.appendErr != nil {
		return nil, g.appendErr
	}
	rec := &store.Record{
		ID:        fmt.Sprintf("r%d", len(g.records)),
		RoomID:    roomID,
		UserID:    user.ID,
		Username:  user.Username,
		Body:      body,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, len(g.records), 0, time.UTC),
	}
	g.records = append(g.records, rec)
	return rec, nil
}

// ListRecent returns newest-first like the real gateways.
func (g *fakeGateway) ListRecent(_ context.Context, roomID string, limit int) ([]*store.Record, error) {
	if g.panics {
		panic("gateway exploded")
	}
	if g.listErr != nil {
		return nil, g.listErr
	}
	var out []*store.Record
	for i := len(g.records) - 1; i >= 0 && len(out) < limit; i-- {
		if g.records[i].RoomID == roomID {
			out = append(out, g.records[i])
		}
	}
	return out, nil
}

type routerFixture struct {
	gateway *fakeGateway
	reg     *Registry
	router  *Router
	key     domain.RoomKey
}

func newRouterFixture(gateway *fakeGateway) *routerFixture {
	reg := NewRegistry()
	return &routerFixture{
		gateway: gateway,
		reg:     reg,
		router: &Router{
			Gateway:      gateway,
			Broadcaster:  NewBroadcaster(reg, nil),
			HistoryLimit: 50,
		},
		key: domain.RoomKey{Kind: domain.KindChat, ID: "1"},
	}
}

func (f *routerFixture) join(id string) (*Session, *fakeConn) {
	s, c := newSessionWithConn(id)
	f.reg.Join(f.key, s)
	s.Open()
	return s, c
}

func TestRouterChatMessageBroadcastIncludesSender(t *testing.T) {
	f := newRouterFixture(&fakeGateway{})
	a, connA := f.join("a")
	_, connB := f.join("b")

	f.router.HandleFrame(context.Background(), a, f.key, []byte(`{"type":"chat_message","message":"hi"}`))

	for name, c := range map[string]*fakeConn{"sender": connA, "other": connB} {
		evs := c.events(t)
		if len(evs) != 1 {
			t.Fatalf("%s received %d events, want exactly 1", name, len(evs))
		}
		ev := evs[0]
		if ev["type"] != EventChatMessage || ev["message"] != "hi" || ev["username"] != "user-a" {
			t.Fatalf("%s got %v", name, ev)
		}
	}
	if len(f.gateway.records) != 1 || f.gateway.records[0].Body != "hi" {
		t.Fatalf("persisted records = %+v, want one with body hi", f.gateway.records)
	}
}

func TestRouterChatMessageTrimsBody(t *testing.T) {
	f := newRouterFixture(&fakeGateway{})
	a, _ := f.join("a")

	f.router.HandleFrame(context.Background(), a, f.key, []byte(`{"type":"chat_message","message":"  spaced  "}`))

	if len(f.gateway.records) != 1 || f.gateway.records[0].Body != "spaced" {
		t.Fatalf("records = %+v, want one trimmed to %q", f.gateway.records, "spaced")
	}
}

func TestRouterEmptyChatMessageRejectedSenderOnly(t *testing.T) {
	cases := []string{
		`{"type":"chat_message","message":""}`,
		`{"type":"chat_message","message":"   "}`,
		`{"type":"chat_message","message":"\t\n"}`,
	}
	for _, raw := range cases {
		f := newRouterFixture(&fakeGateway{})
		a, connA := f.join("a")
		_, connB := f.join("b")

		f.router.HandleFrame(context.Background(), a, f.key, []byte(raw))

		if got := connA.eventTypes(t); len(got) != 1 || got[0] != EventError {
			t.Fatalf("frame %s: sender events = %v, want exactly one error", raw, got)
		}
		if got := connB.count(); got != 0 {
			t.Fatalf("frame %s: other member received %d events, want 0", raw, got)
		}
		if len(f.gateway.records) != 0 {
			t.Fatalf("frame %s: empty body was persisted", raw)
		}
	}
}

func TestRouterMalformedFrameSenderOnlyError(t *testing.T) {
	f := newRouterFixture(&fakeGateway{})
	a, connA := f.join("a")
	_, connB := f.join("b")

	f.router.HandleFrame(context.Background(), a, f.key, []byte(`{not json`))

	if got := connA.eventTypes(t); len(got) != 1 || got[0] != EventError {
		t.Fatalf("sender events = %v, want exactly one error", got)
	}
	if got := connB.count(); got != 0 {
		t.Fatalf("other member received %d events, want 0", got)
	}
}

func TestRouterUnknownFrameType(t *testing.T) {
	f := newRouterFixture(&fakeGateway{})
	a, connA := f.join("a")

	f.router.HandleFrame(context.Background(), a, f.key, []byte(`{"type":"mystery"}`))

	if got := connA.eventTypes(t); len(got) != 1 || got[0] != EventError {
		t.Fatalf("sender events = %v, want exactly one error", got)
	}
}

func TestRouterPersistenceFailureSkipsBroadcast(t *testing.T) {
	f := newRouterFixture(&fakeGateway{appendErr: errors.New("db down")})
	a, connA := f.join("a")
	_, connB := f.join("b")

	f.router.HandleFrame(context.Background(), a, f.key, []byte(`{"type":"chat_message","message":"hi"}`))

	if got := connA.eventTypes(t); len(got) != 1 || got[0] != EventError {
		t.Fatalf("sender events = %v, want exactly one error", got)
	}
	// Never broadcast unpersisted content as if persisted.
	if got := connB.count(); got != 0 {
		t.Fatalf("other member received %d events, want 0", got)
	}
}

func TestRouterRecoversHandlerPanic(t *testing.T) {
	f := newRouterFixture(&fakeGateway{panics: true})
	a, connA := f.join("a")
	_, connB := f.join("b")

	f.router.HandleFrame(context.Background(), a, f.key, []byte(`{"type":"chat_message","message":"boom"}`))

	if got := connA.eventTypes(t); len(got) != 1 || got[0] != EventError {
		t.Fatalf("sender events = %v, want exactly one error", got)
	}
	if got := connB.count(); got != 0 {
		t.Fatalf("other member received %d events, want 0", got)
	}
}

func TestRouterFetchHistoryAscendingSenderOnly(t *testing.T) {
	gw := &fakeGateway{}
	f := newRouterFixture(gw)
	a, connA := f.join("a")
	_, connB := f.join("b")

	for i := 0; i < 3; i++ {
		f.router.HandleFrame(context.Background(), a, f.key, []byte(fmt.Sprintf(`{"type":"chat_message","message":"m%d"}`, i)))
	}
	connA.mu.Lock()
	connA.frames = nil
	connA.mu.Unlock()
	connB.mu.Lock()
	connB.frames = nil
	connB.mu.Unlock()

	f.router.HandleFrame(context.Background(), a, f.key, []byte(`{"type":"fetch_history"}`))

	evs := connA.events(t)
	if len(evs) != 1 || evs[0]["type"] != EventFetchMessages {
		t.Fatalf("sender events = %v, want one fetch_messages", evs)
	}
	msgs, ok := evs[0]["messages"].([]any)
	if !ok || len(msgs) != 3 {
		t.Fatalf("messages = %v, want 3", evs[0]["messages"])
	}
	for i, m := range msgs {
		entry := m.(map[string]any)
		if want := fmt.Sprintf("m%d", i); entry["message"] != want {
			t.Fatalf("history[%d] = %v, want %q (oldest first)", i, entry, want)
		}
	}
	if got := connB.count(); got != 0 {
		t.Fatalf("history leaked to another member: %d events", got)
	}
}

func TestRouterHistoryFailure(t *testing.T) {
	f := newRouterFixture(&fakeGateway{listErr: errors.New("db down")})
	a, connA := f.join("a")

	f.router.HandleFrame(context.Background(), a, f.key, []byte(`{"type":"fetch_history"}`))

	if got := connA.eventTypes(t); len(got) != 1 || got[0] != EventError {
		t.Fatalf("sender events = %v, want exactly one error", got)
	}
}

func TestRouterSignalPassThrough(t *testing.T) {
	cases := []struct {
		raw        string
		wantType   string
		payloadKey string
	}{
		{`{"type":"offer","offer":{"sdp":"v=0"},"receiver_id":"u2"}`, "offer", "offer"},
		{`{"type":"answer","answer":{"sdp":"v=0"},"receiver_id":"u2"}`, "answer", "answer"},
		{`{"type":"ice_candidate","candidate":{"mid":"0"},"receiver_id":"u2"}`, "ice_candidate", "candidate"},
	}
	for _, tc := range cases {
		f := newRouterFixture(&fakeGateway{})
		f.key = domain.RoomKey{Kind: domain.KindWebRTC, ID: "1"}
		a, connA := f.join("a")
		_, connB := f.join("b")

		f.router.HandleFrame(context.Background(), a, f.key, []byte(tc.raw))

		// Broadcast includes the sender; receiver-side filtering is
		// the client's job.
		for name, c := range map[string]*fakeConn{"sender": connA, "other": connB} {
			evs := c.events(t)
			if len(evs) != 1 {
				t.Fatalf("%s %s: received %d events, want 1", tc.wantType, name, len(evs))
			}
			ev := evs[0]
			if ev["type"] != tc.wantType || ev["sender_id"] != "a" || ev["receiver_id"] != "u2" {
				t.Fatalf("%s %s: event = %v", tc.wantType, name, ev)
			}
			if _, ok := ev[tc.payloadKey]; !ok {
				t.Fatalf("%s %s: payload field %q missing: %v", tc.wantType, name, tc.payloadKey, ev)
			}
		}
	}
}

func TestRouterWhiteboardPassThrough(t *testing.T) {
	f := newRouterFixture(&fakeGateway{})
	f.key = domain.RoomKey{Kind: domain.KindWhiteboard, ID: "9"}
	a, connA := f.join("a")
	_, connB := f.join("b")

	f.router.HandleFrame(context.Background(), a, f.key, []byte(`{"type":"whiteboard_update","stroke":{"x":1,"y":2},"color":"#fff"}`))

	for name, c := range map[string]*fakeConn{"sender": connA, "other": connB} {
		evs := c.events(t)
		if len(evs) != 1 {
			t.Fatalf("%s received %d events, want 1", name, len(evs))
		}
		ev := evs[0]
		if ev["type"] != "whiteboard_update" || ev["color"] != "#fff" || ev["sender_id"] != "a" {
			t.Fatalf("%s: opaque payload mangled: %v", name, ev)
		}
	}
	if len(f.gateway.records) != 0 {
		t.Fatal("whiteboard update was persisted")
	}
}

func TestRouterAnonymousChatRejected(t *testing.T) {
	f := newRouterFixture(&fakeGateway{})
	conn := &fakeConn{}
	anon := NewSession(nil, conn)
	f.reg.Join(f.key, anon)

	f.router.HandleFrame(context.Background(), anon, f.key, []byte(`{"type":"chat_message","message":"hi"}`))

	if got := conn.eventTypes(t); len(got) != 1 || got[0] != EventError {
		t.Fatalf("anonymous sender events = %v, want exactly one error", got)
	}
	if len(f.gateway.records) != 0 {
		t.Fatal("anonymous message was persisted")
	}
}

func TestRouterRateLimitRejection(t *testing.T) {
	f := newRouterFixture(&fakeGateway{})
	f.router.Limiter = NewRateLimiter(1, time.Minute)
	a, connA := f.join("a")

	f.router.HandleFrame(context.Background(), a, f.key, []byte(`{"type":"chat_message","message":"one"}`))
	f.router.HandleFrame(context.Background(), a, f.key, []byte(`{"type":"chat_message","message":"two"}`))

	types := connA.eventTypes(t)
	if len(types) != 2 || types[0] != EventChatMessage || types[1] != EventError {
		t.Fatalf("sender events = %v, want [chat_message error]", types)
	}
	if len(f.gateway.records) != 1 {
		t.Fatalf("records = %d, want 1", len(f.gateway.records))
	}
}
