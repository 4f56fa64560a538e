package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"

	"chat-live/internal/models"
	"chat-live/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string, maxConns int32) (*PostgresDB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// Account Directory Implementation
func (db *PostgresDB) UserExists(ctx context.Context, id models.UserID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`

	var exists bool
	err := db.pool.QueryRow(ctx, query, string(id)).Scan(&exists)
	return exists, err
}

func (db *PostgresDB) UserDisplayInfo(ctx context.Context, id models.UserID) (*models.DisplayInfo, error) {
	query := `SELECT username, avatar_url FROM users WHERE id = $1`

	info := &models.DisplayInfo{}
	err := db.pool.QueryRow(ctx, query, string(id)).Scan(&info.Name, &info.Avatar)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return info, nil
}

// Message Store Implementation
func (db *PostgresDB) AppendMessage(ctx context.Context, draft *models.MessageDraft) (*models.Message, error) {
	attachments := draft.Attachments
	if attachments == nil {
		attachments = []string{}
	}

	query := `
		INSERT INTO direct_messages (sender_id, receiver_id, context_ref, body, kind, attachments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id::text, created_at`

	msg := &models.Message{
		SenderID:            draft.SenderID,
		ReceiverID:          draft.ReceiverID,
		ConversationContext: draft.ConversationContext,
		Body:                draft.Body,
		Kind:                draft.Kind,
		Attachments:         attachments,
	}
	err := db.pool.QueryRow(ctx, query,
		string(draft.SenderID), string(draft.ReceiverID), draft.ConversationContext,
		draft.Body, string(draft.Kind), attachments,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	return msg, nil
}

func (db *PostgresDB) MarkRangeRead(ctx context.Context, senderID, receiverID models.UserID) (int64, error) {
	query := `UPDATE direct_messages SET is_read = TRUE WHERE sender_id = $1 AND receiver_id = $2 AND NOT is_read`

	tag, err := db.pool.Exec(ctx, query, string(senderID), string(receiverID))
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (db *PostgresDB) CountUnread(ctx context.Context, userID models.UserID) (int, error) {
	query := `SELECT COUNT(*) FROM direct_messages WHERE receiver_id = $1 AND NOT is_read`

	var n int
	err := db.pool.QueryRow(ctx, query, string(userID)).Scan(&n)
	return n, err
}

func (db *PostgresDB) ListRecentMessages(ctx context.Context, userID, partnerID models.UserID, page, pageSize int) ([]*models.Message, error) {
	if page < 1 || pageSize < 1 {
		return []*models.Message{}, nil
	}
	if page-1 > math.MaxInt/pageSize {
		return []*models.Message{}, nil
	}

	query := `
		SELECT id::text, sender_id, receiver_id, context_ref, body, kind, attachments, is_read, created_at
		FROM direct_messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY seq DESC
		LIMIT $3 OFFSET $4`

	rows, err := db.pool.Query(ctx, query, string(userID), string(partnerID), pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*models.Message, 0, pageSize)
	for rows.Next() {
		var (
			msg        = &models.Message{}
			sender     string
			receiver   string
			kind       string
			contextRef *string
		)
		if err := rows.Scan(&msg.ID, &sender, &receiver, &contextRef, &msg.Body, &kind, &msg.Attachments, &msg.IsRead, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.SenderID = models.UserID(sender)
		msg.ReceiverID = models.UserID(receiver)
		msg.Kind = models.MessageKind(kind)
		msg.ConversationContext = contextRef
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (db *PostgresDB) ListPartners(ctx context.Context, userID models.UserID) ([]models.UserID, error) {
	query := `
		SELECT DISTINCT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END
		FROM direct_messages
		WHERE (sender_id = $1 OR receiver_id = $1) AND sender_id <> receiver_id`

	rows, err := db.pool.Query(ctx, query, string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var partners []models.UserID
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		partners = append(partners, models.UserID(p))
	}

	return partners, rows.Err()
}

// CreateUser inserts an account row. The account collaborator owns users in
// production; this exists for seeding and tests.
func (db *PostgresDB) CreateUser(ctx context.Context, id models.UserID, info models.DisplayInfo) error {
	query := `
		INSERT INTO users (id, username, avatar_url, created_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, avatar_url = EXCLUDED.avatar_url`

	_, err := db.pool.Exec(ctx, query, string(id), info.Name, info.Avatar)
	return err
}
