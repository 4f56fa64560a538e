package database

import (
	"context"
	"errors"

	"chat-live/internal/models"
)

// ErrUserNotFound is returned by AccountDirectory lookups for unknown ids.
var ErrUserNotFound = errors.New("user not found")

// AccountDirectory is the read side of the account collaborator.
type AccountDirectory interface {
	UserExists(ctx context.Context, id models.UserID) (bool, error)
	UserDisplayInfo(ctx context.Context, id models.UserID) (*models.DisplayInfo, error)
}

// MessageStore is append-only message persistence. Appends from one caller
// are stored in call order.
type MessageStore interface {
	AppendMessage(ctx context.Context, draft *models.MessageDraft) (*models.Message, error)
	// MarkRangeRead flips every unread message from sender to receiver.
	MarkRangeRead(ctx context.Context, senderID, receiverID models.UserID) (int64, error)
	CountUnread(ctx context.Context, userID models.UserID) (int, error)
	// ListRecentMessages pages back from the newest message of the pair
	// (page 1 is the newest) and returns the page oldest first.
	ListRecentMessages(ctx context.Context, userID, partnerID models.UserID, page, pageSize int) ([]*models.Message, error)
	// ListPartners returns every user that exchanged a message with userID.
	ListPartners(ctx context.Context, userID models.UserID) ([]models.UserID, error)
}

type Database interface {
	AccountDirectory
	MessageStore
	Close() error
}
