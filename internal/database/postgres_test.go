package database_test

import (
	"context"
	"os"
	"testing"

	"chat-live/internal/database"
	"chat-live/internal/models"

	"github.com/google/uuid"
)

// Runs against a real Postgres only when TEST_DATABASE_URL is set.
func TestPostgresDB_RoundTrip(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.NewPostgresDB(ctx, url, 4)
	if err != nil {
		t.Fatalf("NewPostgresDB() error = %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	alice := models.UserID("alice-" + uuid.NewString())
	bob := models.UserID("bob-" + uuid.NewString())
	for _, id := range []models.UserID{alice, bob} {
		if err := db.CreateUser(ctx, id, models.DisplayInfo{Name: string(id)}); err != nil {
			t.Fatalf("CreateUser() error = %v", err)
		}
	}

	listing := "listing-42"
	first, err := db.AppendMessage(ctx, &models.MessageDraft{
		SenderID: alice, ReceiverID: bob, Body: "hello", Kind: models.MessageKindText, ConversationContext: &listing,
	})
	if err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if _, err := db.AppendMessage(ctx, &models.MessageDraft{
		SenderID: alice, ReceiverID: bob, Kind: models.MessageKindImage, Attachments: []string{"s3://a.png"},
	}); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	msgs, err := db.ListRecentMessages(ctx, bob, alice, 1, 10)
	if err != nil {
		t.Fatalf("ListRecentMessages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("ListRecentMessages() = %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != first.ID {
		t.Errorf("first message = %q, want %q", msgs[0].ID, first.ID)
	}
	if msgs[0].ConversationContext == nil || *msgs[0].ConversationContext != listing {
		t.Errorf("context = %v, want %q", msgs[0].ConversationContext, listing)
	}
	if len(msgs[1].Attachments) != 1 {
		t.Errorf("attachments = %v, want one", msgs[1].Attachments)
	}

	if n, _ := db.CountUnread(ctx, bob); n != 2 {
		t.Errorf("CountUnread() = %d, want 2", n)
	}
	if n, err := db.MarkRangeRead(ctx, alice, bob); err != nil || n != 2 {
		t.Errorf("MarkRangeRead() = %d, %v, want 2", n, err)
	}
	if n, _ := db.CountUnread(ctx, bob); n != 0 {
		t.Errorf("CountUnread() after read = %d, want 0", n)
	}

	partners, err := db.ListPartners(ctx, alice)
	if err != nil || len(partners) != 1 || partners[0] != bob {
		t.Errorf("ListPartners() = %v, %v, want [%s]", partners, err, bob)
	}
}
