package models_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"chat-live/internal/models"
)

func TestEncodeEvent_Envelope(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name     string
		event    models.Event
		wantType string
	}{
		{"new message", models.NewMessageEvent{Message: &models.Message{ID: "m1", Body: "hello"}}, "newMessage"},
		{"notification", models.MessageNotificationEvent{MessageID: "m1", CreatedAt: now}, "messageNotification"},
		{"typing", models.UserTypingEvent{UserID: "a", IsTyping: true}, "userTyping"},
		{"read", models.MessagesReadEvent{ReaderID: "b", SenderID: "a", Count: 2, ReadAt: now}, "messagesRead"},
		{"presence", models.UserStatusChangedEvent{UserID: "a", Status: models.PresenceOffline, ChangedAt: now}, "userStatusChanged"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := models.EncodeEvent(tt.event)
			if err != nil {
				t.Fatalf("EncodeEvent() error = %v", err)
			}
			var frame struct {
				Type    string          `json:"type"`
				Payload json.RawMessage `json:"payload"`
			}
			if err := json.Unmarshal(data, &frame); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if frame.Type != tt.wantType {
				t.Errorf("type = %q, want %q", frame.Type, tt.wantType)
			}
			if len(frame.Payload) == 0 {
				t.Error("payload is empty")
			}
		})
	}
}

func TestEncodeEvent_NewMessageRequiresMessage(t *testing.T) {
	if _, err := models.EncodeEvent(models.NewMessageEvent{}); err == nil {
		t.Error("expected error for newMessage without message")
	}
}

func TestMessageDraft_Normalize(t *testing.T) {
	empty := "  "
	tests := []struct {
		name    string
		draft   models.MessageDraft
		wantErr bool
	}{
		{"text default kind", models.MessageDraft{ReceiverID: "b", Body: "hi"}, false},
		{"attachment only", models.MessageDraft{ReceiverID: "b", Kind: models.MessageKindImage, Attachments: []string{"s3://x"}}, false},
		{"missing receiver", models.MessageDraft{Body: "hi"}, true},
		{"empty body and attachments", models.MessageDraft{ReceiverID: "b", Body: " ", Attachments: []string{" "}}, true},
		{"system kind rejected", models.MessageDraft{ReceiverID: "b", Body: "hi", Kind: models.MessageKindSystem}, true},
		{"blank context dropped", models.MessageDraft{ReceiverID: "b", Body: "hi", ConversationContext: &empty}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.draft
			err := d.Normalize()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if d.Kind == "" {
				t.Error("kind not defaulted")
			}
			if d.ConversationContext != nil && strings.TrimSpace(*d.ConversationContext) == "" {
				t.Error("blank context kept")
			}
		})
	}
}

func TestMessage_Preview(t *testing.T) {
	long := strings.Repeat("x", 200)
	m := &models.Message{Body: long}
	if got := []rune(m.Preview()); len(got) != 81 {
		t.Errorf("len(Preview()) = %d, want 81", len(got))
	}

	m = &models.Message{Kind: models.MessageKindImage, Attachments: []string{"a"}}
	if got := m.Preview(); got != "[image]" {
		t.Errorf("Preview() = %q, want %q", got, "[image]")
	}
}
