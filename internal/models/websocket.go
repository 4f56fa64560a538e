package models

type FrameType string

const (
	FrameAuthenticate FrameType = "authenticate"
	FrameJoin         FrameType = "join"
	FrameLeave        FrameType = "leave"
	FrameSend         FrameType = "send"
	FrameTypingStart  FrameType = "typingStart"
	FrameTypingStop   FrameType = "typingStop"
	FrameMarkRead     FrameType = "markRead"
	FrameSetPresence  FrameType = "setPresence"
	FrameHistory      FrameType = "history"
	FrameUnreadCount  FrameType = "unreadCount"
	FramePing         FrameType = "ping"
)

// ClientFrame is any request a client may send; only the fields relevant to
// Type are read.
type ClientFrame struct {
	Type        FrameType      `json:"type"`
	RequestID   string         `json:"request_id,omitempty"`
	Token       string         `json:"token,omitempty"`
	PartnerID   UserID         `json:"partner_id,omitempty"`
	ReceiverID  UserID         `json:"receiver_id,omitempty"`
	Body        string         `json:"body,omitempty"`
	Kind        MessageKind    `json:"kind,omitempty"`
	Attachments []string       `json:"attachments,omitempty"`
	Context     *string        `json:"context,omitempty"`
	Status      PresenceStatus `json:"status,omitempty"`
	Page        int            `json:"page,omitempty"`
	PageSize    int            `json:"page_size,omitempty"`
}

const (
	ServerFrameAck   = "ack"
	ServerFrameError = "error"
	ServerFramePong  = "pong"
)

type ServerFrame struct {
	Type      string     `json:"type"`
	RequestID string     `json:"request_id,omitempty"`
	Payload   any        `json:"payload,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CountPayload struct {
	Count int64 `json:"count"`
}

type UnreadPayload struct {
	Unread int `json:"unread"`
}

type HistoryPayload struct {
	PartnerID UserID     `json:"partner_id"`
	Page      int        `json:"page"`
	PageSize  int        `json:"page_size"`
	Messages  []*Message `json:"messages"`
}
