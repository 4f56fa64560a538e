package websocket_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"chat-live/internal/models"
	"chat-live/internal/registry"
	"chat-live/internal/rooms"
	ws "chat-live/internal/websocket"
)

// recordingConn captures every frame sent to it.
type recordingConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *recordingConn) Send(_ context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
	return nil
}

func (c *recordingConn) Close() {}

func (c *recordingConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		var env struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(f, &env)
		out = append(out, env.Type)
	}
	return out
}

// stuckConn never accepts a frame.
type stuckConn struct{}

func (stuckConn) Send(ctx context.Context, _ []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stuckConn) Close() {}

var (
	_ registry.Conn = (*recordingConn)(nil)
	_ registry.Conn = stuckConn{}
)

func register(t *testing.T, reg *registry.Registry, id, user string, conn registry.Conn, roomIDs ...rooms.ID) {
	t.Helper()
	if _, err := reg.Register(registry.ConnID(id), models.Identity{UserID: models.UserID(user)}, conn); err != nil {
		t.Fatalf("Register(%s) error = %v", id, err)
	}
	for _, r := range roomIDs {
		if err := reg.AddToRoom(registry.ConnID(id), r); err != nil {
			t.Fatalf("AddToRoom(%s) error = %v", id, err)
		}
	}
}

func TestHub_PublishEmptyRoom(t *testing.T) {
	hub := ws.NewHub(registry.New(), time.Second, 4)

	res := hub.Publish(context.Background(), models.UserTypingEvent{UserID: "a"}, rooms.ForPair("a", "b"))
	if res.Recipients != 0 || res.Dropped != 0 {
		t.Errorf("Publish() = %+v, want zero result", res)
	}
}

func TestHub_PublishDeliversToRoomOnly(t *testing.T) {
	reg := registry.New()
	hub := ws.NewHub(reg, time.Second, 4)
	pair := rooms.ForPair("alice", "bob")

	inRoom := &recordingConn{}
	outside := &recordingConn{}
	register(t, reg, "b1", "bob", inRoom, pair)
	register(t, reg, "c1", "carol", outside, rooms.ForUser("carol"))

	res := hub.Publish(context.Background(), models.UserTypingEvent{UserID: "alice", IsTyping: true}, pair)
	if res.Delivered != 1 {
		t.Errorf("Delivered = %d, want 1", res.Delivered)
	}
	if got := inRoom.types(); len(got) != 1 || got[0] != "userTyping" {
		t.Errorf("in-room frames = %v, want [userTyping]", got)
	}
	if got := outside.types(); len(got) != 0 {
		t.Errorf("outside frames = %v, want none", got)
	}
}

func TestHub_PublishDeduplicatesAcrossRooms(t *testing.T) {
	reg := registry.New()
	hub := ws.NewHub(reg, time.Second, 4)
	pair := rooms.ForPair("alice", "bob")

	conn := &recordingConn{}
	register(t, reg, "a1", "alice", conn, pair, rooms.ForUser("alice"))

	hub.Publish(context.Background(), models.MessagesReadEvent{ReaderID: "bob", SenderID: "alice", Count: 1}, pair, rooms.ForUser("alice"))

	if got := conn.types(); len(got) != 1 {
		t.Errorf("frames = %v, want exactly one", got)
	}
}

func TestHub_PublishExcept(t *testing.T) {
	reg := registry.New()
	hub := ws.NewHub(reg, time.Second, 4)
	pair := rooms.ForPair("alice", "bob")

	self := &recordingConn{}
	peer := &recordingConn{}
	register(t, reg, "a1", "alice", self, pair)
	register(t, reg, "b1", "bob", peer, pair)

	hub.PublishExcept(context.Background(), "a1", models.UserTypingEvent{UserID: "alice", IsTyping: true}, pair)

	if got := self.types(); len(got) != 0 {
		t.Errorf("excluded connection got %v", got)
	}
	if got := peer.types(); len(got) != 1 {
		t.Errorf("peer frames = %v, want one", got)
	}
}

func TestHub_SlowPeerDoesNotBlockOthers(t *testing.T) {
	reg := registry.New()
	timeout := 100 * time.Millisecond
	hub := ws.NewHub(reg, timeout, 1)
	pair := rooms.ForPair("alice", "bob")

	fast := &recordingConn{}
	register(t, reg, "stuck", "bob", stuckConn{}, pair)
	register(t, reg, "fast", "bob", fast, pair)

	start := time.Now()
	res := hub.Publish(context.Background(), models.UserTypingEvent{UserID: "alice"}, pair)
	elapsed := time.Since(start)

	if res.Delivered != 1 || res.Dropped != 1 {
		t.Errorf("Publish() = %+v, want 1 delivered and 1 dropped", res)
	}
	if got := fast.types(); len(got) != 1 {
		t.Errorf("fast peer frames = %v, want one", got)
	}
	if elapsed > 5*timeout {
		t.Errorf("Publish() took %v, want bounded by delivery timeout", elapsed)
	}
}

func TestHub_CancelledCallerStillDelivers(t *testing.T) {
	reg := registry.New()
	hub := ws.NewHub(reg, time.Second, 4)
	pair := rooms.ForPair("alice", "bob")

	conn := &recordingConn{}
	register(t, reg, "b1", "bob", conn, pair)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Publish(ctx, models.UserTypingEvent{UserID: "alice"}, pair)

	if got := conn.types(); len(got) != 1 {
		t.Errorf("frames = %v, want one", got)
	}
}
