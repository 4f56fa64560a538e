package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventNewMessage          EventType = "newMessage"
	EventMessageNotification EventType = "messageNotification"
	EventUserTyping          EventType = "userTyping"
	EventMessagesRead        EventType = "messagesRead"
	EventUserStatusChanged   EventType = "userStatusChanged"
)

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
	PresenceOffline PresenceStatus = "offline"
)

func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceOnline, PresenceAway, PresenceBusy, PresenceOffline:
		return true
	}
	return false
}

// Event is the closed set of payloads delivered to live connections.
type Event interface {
	Type() EventType
	isEvent()
}

type NewMessageEvent struct {
	Message *Message `json:"message"`
}

// MessageNotificationEvent is the light badge payload sent to the
// receiver's personal room.
type MessageNotificationEvent struct {
	MessageID  string       `json:"message_id"`
	SenderID   UserID       `json:"sender_id"`
	SenderInfo *DisplayInfo `json:"sender_info,omitempty"`
	Preview    string       `json:"preview"`
	Kind       MessageKind  `json:"kind"`
	CreatedAt  time.Time    `json:"created_at"`
}

type UserTypingEvent struct {
	UserID   UserID `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type MessagesReadEvent struct {
	ReaderID UserID    `json:"reader_id"`
	SenderID UserID    `json:"sender_id"`
	Count    int64     `json:"count"`
	ReadAt   time.Time `json:"read_at"`
}

type UserStatusChangedEvent struct {
	UserID    UserID         `json:"user_id"`
	Status    PresenceStatus `json:"status"`
	ChangedAt time.Time      `json:"changed_at"`
}

func (NewMessageEvent) Type() EventType          { return EventNewMessage }
func (MessageNotificationEvent) Type() EventType { return EventMessageNotification }
func (UserTypingEvent) Type() EventType          { return EventUserTyping }
func (MessagesReadEvent) Type() EventType        { return EventMessagesRead }
func (UserStatusChangedEvent) Type() EventType   { return EventUserStatusChanged }

func (NewMessageEvent) isEvent()          {}
func (MessageNotificationEvent) isEvent() {}
func (UserTypingEvent) isEvent()          {}
func (MessagesReadEvent) isEvent()        {}
func (UserStatusChangedEvent) isEvent()   {}

// EncodeEvent renders an event as a server frame.
func EncodeEvent(e Event) ([]byte, error) {
	var payload any
	switch ev := e.(type) {
	case NewMessageEvent:
		if ev.Message == nil {
			return nil, fmt.Errorf("newMessage without message")
		}
		payload = ev
	case MessageNotificationEvent:
		payload = ev
	case UserTypingEvent:
		payload = ev
	case MessagesReadEvent:
		payload = ev
	case UserStatusChangedEvent:
		payload = ev
	default:
		return nil, fmt.Errorf("unknown event %T", e)
	}

	return json.Marshal(ServerFrame{Type: string(e.Type()), Payload: payload})
}
