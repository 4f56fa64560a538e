package session_test

import (
	"context"
	"encoding/json"
	"testing"

	"chat-live/internal/models"
	"chat-live/internal/session"
	"chat-live/internal/websocket"
)

var _ websocket.FrameHandler = (*session.Dispatcher)(nil)

func newDispatcher(h *harness) (*session.Dispatcher, *session.Session, *fakeConn) {
	s, conn := h.open()
	return session.NewDispatcher(context.Background(), s, conn, 0), s, conn
}

func TestDispatcher_AuthenticateAndPing(t *testing.T) {
	h := newHarness(t)
	d, s, conn := newDispatcher(h)

	d.HandleFrame([]byte(`{"type":"ping","request_id":"p1"}`))
	d.HandleFrame([]byte(`{"type":"authenticate","request_id":"r1","token":"` + h.token(t, "alice") + `"}`))

	if pongs := conn.received("pong"); len(pongs) != 1 || pongs[0].RequestID != "p1" {
		t.Errorf("pong frames = %+v", pongs)
	}
	acks := conn.received("ack")
	if len(acks) != 1 || acks[0].RequestID != "r1" {
		t.Fatalf("ack frames = %+v", acks)
	}
	var id models.Identity
	if err := json.Unmarshal(acks[0].Payload, &id); err != nil || id.UserID != "alice" {
		t.Errorf("ack payload = %s, want alice", acks[0].Payload)
	}
	if s.State() != session.StateAuthenticated {
		t.Errorf("State() = %v, want authenticated", s.State())
	}
}

func TestDispatcher_BadTokenClosesConnection(t *testing.T) {
	h := newHarness(t)
	d, s, conn := newDispatcher(h)

	d.HandleFrame([]byte(`{"type":"authenticate","request_id":"r1","token":"nope"}`))

	errFrames := conn.received("error")
	if len(errFrames) != 1 || errFrames[0].Error.Code != "authentication_error" || errFrames[0].RequestID != "r1" {
		t.Errorf("error frames = %+v", errFrames)
	}
	if !conn.isClosed() {
		t.Error("connection left open after authentication failure")
	}
	if s.State() != session.StateClosed {
		t.Errorf("State() = %v, want closed", s.State())
	}
}

func TestDispatcher_Errors(t *testing.T) {
	h := newHarness(t)
	d, _, conn := newDispatcher(h)

	d.HandleFrame([]byte(`{"type":"join","request_id":"j1","partner_id":"bob"}`))
	d.HandleFrame([]byte(`not json`))

	errFrames := conn.received("error")
	if len(errFrames) != 2 {
		t.Fatalf("got %d error frames, want 2", len(errFrames))
	}
	if errFrames[0].Error.Code != "authorization_error" || errFrames[0].RequestID != "j1" {
		t.Errorf("join before auth = %+v", errFrames[0].Error)
	}
	if errFrames[1].Error.Code != "invalid_request" {
		t.Errorf("malformed frame = %+v", errFrames[1].Error)
	}
	if conn.isClosed() {
		t.Error("connection closed by a non-authentication error")
	}

	d.HandleFrame([]byte(`{"type":"authenticate","token":"` + h.token(t, "alice") + `"}`))
	d.HandleFrame([]byte(`{"type":"dance","request_id":"x"}`))
	if last := conn.received("error"); len(last) != 3 || last[2].Error.Code != "invalid_request" {
		t.Errorf("unknown type frames = %+v", last)
	}
}

func TestDispatcher_ConversationFlow(t *testing.T) {
	h := newHarness(t)
	_, bConn := h.connect(t, "bob")
	d, _, conn := newDispatcher(h)

	frames := []string{
		`{"type":"authenticate","token":"` + h.token(t, "alice") + `"}`,
		`{"type":"join","request_id":"1","partner_id":"bob"}`,
		`{"type":"typingStart","request_id":"2","partner_id":"bob"}`,
		`{"type":"send","request_id":"3","receiver_id":"bob","body":"hi","context":"listing-7"}`,
		`{"type":"typingStop","request_id":"4","partner_id":"bob"}`,
		`{"type":"history","request_id":"5","partner_id":"bob"}`,
		`{"type":"unreadCount","request_id":"6"}`,
		`{"type":"markRead","request_id":"7","partner_id":"bob"}`,
		`{"type":"setPresence","request_id":"8","status":"busy"}`,
		`{"type":"leave","request_id":"9","partner_id":"bob"}`,
	}
	for _, f := range frames {
		d.HandleFrame([]byte(f))
	}

	if errFrames := conn.received("error"); len(errFrames) != 0 {
		t.Fatalf("unexpected errors: %+v", errFrames[0].Error)
	}
	acks := conn.received("ack")
	if len(acks) != len(frames) {
		t.Fatalf("got %d acks, want %d", len(acks), len(frames))
	}

	var sent models.Message
	if err := json.Unmarshal(acks[3].Payload, &sent); err != nil {
		t.Fatalf("decode send ack: %v", err)
	}
	if sent.Body != "hi" || sent.ConversationContext == nil || *sent.ConversationContext != "listing-7" {
		t.Errorf("send ack = %+v", sent)
	}

	var hist models.HistoryPayload
	if err := json.Unmarshal(acks[5].Payload, &hist); err != nil {
		t.Fatalf("decode history ack: %v", err)
	}
	if len(hist.Messages) != 1 || hist.Messages[0].ID != sent.ID {
		t.Errorf("history ack = %+v", hist)
	}

	var unread models.UnreadPayload
	if err := json.Unmarshal(acks[6].Payload, &unread); err != nil || unread.Unread != 0 {
		t.Errorf("unread ack = %s", acks[6].Payload)
	}

	var marked models.CountPayload
	if err := json.Unmarshal(acks[7].Payload, &marked); err != nil || marked.Count != 0 {
		t.Errorf("markRead ack = %s", acks[7].Payload)
	}

	if n := len(bConn.received("messageNotification")); n != 1 {
		t.Errorf("bob got %d notifications, want 1", n)
	}
	if n := len(bConn.received("userTyping")); n != 0 {
		t.Errorf("bob outside the room got %d typing events", n)
	}
	if n := len(bConn.received("userStatusChanged")); n == 0 {
		t.Error("bob saw no presence change from alice")
	}
}

func TestDispatcher_DisconnectCloses(t *testing.T) {
	h := newHarness(t)
	d, s, _ := newDispatcher(h)
	d.HandleFrame([]byte(`{"type":"authenticate","token":"` + h.token(t, "alice") + `"}`))

	d.HandleDisconnect()

	if s.State() != session.StateClosed || h.reg.Count() != 0 {
		t.Errorf("State() = %v, registry count = %d after disconnect", s.State(), h.reg.Count())
	}
}
