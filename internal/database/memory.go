package database

import (
	"context"
	"sync"
	"time"

	"chat-live/internal/models"

	"github.com/google/uuid"
)

// MemoryDB keeps users and messages in process. It backs development runs
// (DATABASE_DRIVER=memory) and tests.
type MemoryDB struct {
	mu       sync.RWMutex
	users    map[models.UserID]models.DisplayInfo
	messages []*models.Message
	now      func() time.Time
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users: make(map[models.UserID]models.DisplayInfo),
		now:   time.Now,
	}
}

// AddUser creates or replaces an account.
func (db *MemoryDB) AddUser(id models.UserID, info models.DisplayInfo) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[id] = info
}

func (db *MemoryDB) Close() error { return nil }

func (db *MemoryDB) UserExists(_ context.Context, id models.UserID) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.users[id]
	return ok, nil
}

func (db *MemoryDB) UserDisplayInfo(_ context.Context, id models.UserID) (*models.DisplayInfo, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	info, ok := db.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &info, nil
}

func (db *MemoryDB) AppendMessage(ctx context.Context, draft *models.MessageDraft) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	attachments := make([]string, len(draft.Attachments))
	copy(attachments, draft.Attachments)

	msg := &models.Message{
		ID:                  uuid.NewString(),
		SenderID:            draft.SenderID,
		ReceiverID:          draft.ReceiverID,
		ConversationContext: draft.ConversationContext,
		Body:                draft.Body,
		Kind:                draft.Kind,
		Attachments:         attachments,
	}

	db.mu.Lock()
	msg.CreatedAt = db.now().UTC()
	db.messages = append(db.messages, msg)
	db.mu.Unlock()

	out := *msg
	return &out, nil
}

func (db *MemoryDB) MarkRangeRead(ctx context.Context, senderID, receiverID models.UserID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	var n int64
	for _, m := range db.messages {
		if m.SenderID == senderID && m.ReceiverID == receiverID && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

func (db *MemoryDB) CountUnread(ctx context.Context, userID models.UserID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	n := 0
	for _, m := range db.messages {
		if m.ReceiverID == userID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

func (db *MemoryDB) ListRecentMessages(ctx context.Context, userID, partnerID models.UserID, page, pageSize int) ([]*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 || pageSize < 1 {
		return []*models.Message{}, nil
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	if page-1 > len(db.messages)/pageSize {
		return []*models.Message{}, nil
	}

	// Walk newest to oldest, then reverse the page to show oldest first.
	skip := (page - 1) * pageSize
	out := make([]*models.Message, 0, pageSize)
	for i := len(db.messages) - 1; i >= 0 && len(out) < pageSize; i-- {
		m := db.messages[i]
		if !inPair(m, userID, partnerID) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		cp := *m
		out = append(out, &cp)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (db *MemoryDB) ListPartners(ctx context.Context, userID models.UserID) ([]models.UserID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	seen := make(map[models.UserID]struct{})
	var out []models.UserID
	for _, m := range db.messages {
		var p models.UserID
		switch userID {
		case m.SenderID:
			p = m.ReceiverID
		case m.ReceiverID:
			p = m.SenderID
		default:
			continue
		}
		if _, ok := seen[p]; ok || p == userID {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

func inPair(m *models.Message, a, b models.UserID) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}
