package models

import (
	"fmt"
	"strings"
	"time"
)

type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindImage  MessageKind = "image"
	MessageKindFile   MessageKind = "file"
	MessageKindSystem MessageKind = "system"
)

// Message is a persisted direct message. Only IsRead ever changes after
// creation.
type Message struct {
	ID                  string      `json:"id"`
	SenderID            UserID      `json:"sender_id"`
	ReceiverID          UserID      `json:"receiver_id"`
	ConversationContext *string     `json:"conversation_context,omitempty"`
	Body                string      `json:"body"`
	Kind                MessageKind `json:"kind"`
	Attachments         []string    `json:"attachments"`
	CreatedAt           time.Time   `json:"created_at"`
	IsRead              bool        `json:"is_read"`
}

// MessageDraft is the input to a durable append.
type MessageDraft struct {
	SenderID            UserID
	ReceiverID          UserID
	Body                string
	Kind                MessageKind
	Attachments         []string
	ConversationContext *string
}

// Normalize trims the draft and applies the default kind. It rejects drafts
// a client may not send.
func (d *MessageDraft) Normalize() error {
	d.ReceiverID = UserID(strings.TrimSpace(string(d.ReceiverID)))
	if d.ReceiverID == "" {
		return fmt.Errorf("receiver is required")
	}
	if d.Kind == "" {
		d.Kind = MessageKindText
	}
	switch d.Kind {
	case MessageKindText, MessageKindImage, MessageKindFile:
	default:
		return fmt.Errorf("unsupported message kind %q", d.Kind)
	}

	attachments := d.Attachments[:0:0]
	for _, a := range d.Attachments {
		if a = strings.TrimSpace(a); a != "" {
			attachments = append(attachments, a)
		}
	}
	d.Attachments = attachments

	if strings.TrimSpace(d.Body) == "" && len(d.Attachments) == 0 {
		return fmt.Errorf("message body or attachment is required")
	}
	if d.ConversationContext != nil && strings.TrimSpace(*d.ConversationContext) == "" {
		d.ConversationContext = nil
	}
	return nil
}

// Preview is the short text carried by badge notifications.
func (m *Message) Preview() string {
	const max = 80
	switch {
	case m.Body == "" && len(m.Attachments) > 0:
		return fmt.Sprintf("[%s]", m.Kind)
	case len([]rune(m.Body)) > max:
		return string([]rune(m.Body)[:max]) + "…"
	default:
		return m.Body
	}
}
