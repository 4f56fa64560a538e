package services

import (
	"context"
	"fmt"
	"strings"

	"chat-live/internal/database"
	"chat-live/internal/errs"
	"chat-live/internal/models"
)

// MaxHistoryPage bounds the page offset so page*pageSize cannot overflow.
const MaxHistoryPage = 100000

// ConversationService answers the read queries the live layer depends on.
type ConversationService struct {
	store       database.MessageStore
	accounts    database.AccountDirectory
	defaultSize int
	maxSize     int
}

func NewConversationService(store database.MessageStore, accounts database.AccountDirectory, defaultSize, maxSize int) *ConversationService {
	if maxSize < 1 {
		maxSize = 100
	}
	if defaultSize < 1 || defaultSize > maxSize {
		defaultSize = maxSize
	}
	return &ConversationService{
		store:       store,
		accounts:    accounts,
		defaultSize: defaultSize,
		maxSize:     maxSize,
	}
}

// History returns one page of the conversation between userID and
// partnerID, oldest first. Zero page and size select the defaults; size is
// clamped.
func (s *ConversationService) History(ctx context.Context, userID, partnerID models.UserID, page, pageSize int) (*models.HistoryPayload, error) {
	partnerID = models.UserID(strings.TrimSpace(string(partnerID)))
	if partnerID == "" {
		return nil, fmt.Errorf("%w: partner is required", errs.ErrInvalidRequest)
	}
	if page < 0 || pageSize < 0 {
		return nil, fmt.Errorf("%w: page and page size must not be negative", errs.ErrInvalidRequest)
	}
	if page == 0 {
		page = 1
	}
	if page > MaxHistoryPage {
		return nil, fmt.Errorf("%w: page must not exceed %d", errs.ErrInvalidRequest, MaxHistoryPage)
	}
	if pageSize == 0 {
		pageSize = s.defaultSize
	}
	if pageSize > s.maxSize {
		pageSize = s.maxSize
	}

	exists, err := s.accounts.UserExists(ctx, partnerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrPersistence, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: user %s", errs.ErrNotFound, partnerID)
	}

	messages, err := s.store.ListRecentMessages(ctx, userID, partnerID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrPersistence, err)
	}
	if messages == nil {
		messages = []*models.Message{}
	}

	return &models.HistoryPayload{
		PartnerID: partnerID,
		Page:      page,
		PageSize:  pageSize,
		Messages:  messages,
	}, nil
}

func (s *ConversationService) UnreadCount(ctx context.Context, userID models.UserID) (int, error) {
	n, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errs.ErrPersistence, err)
	}
	return n, nil
}
