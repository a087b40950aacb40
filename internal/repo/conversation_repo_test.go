package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mkaramanlis/oracle-backend/internal/domain"
)

func newRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestCreateConversation_Error_NoTable(t *testing.T) {
	db := newRepoDB(t /* no migrations */)
	conv, err := CreateConversation(context.Background(), db, "ip:1.2.3.4", "en", time.Now().UTC())
	if err == nil || conv != nil {
		t.Fatalf("expected error creating without table, got conv=%v err=%v", conv, err)
	}
}

func TestCreateConversation_Success_PersistsAndSetsFields(t *testing.T) {
	db := newRepoDB(t, &domain.Conversation{})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	conv, err := CreateConversation(context.Background(), db, "ip:1.2.3.4", "el", now)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if conv.ID == "" || conv.ClientID != "ip:1.2.3.4" || conv.Language != "el" {
		t.Fatalf("unexpected Conversation fields: %+v", conv)
	}
	if conv.MessageCount != 0 {
		t.Fatalf("new conversation must start at count 0, got %d", conv.MessageCount)
	}
	if !conv.StartedAt.Equal(now) || !conv.LastMessageAt.Equal(now) {
		t.Fatalf("timestamps not set from now: %+v", conv)
	}
	// round-trip
	var got domain.Conversation
	if err := db.First(&got, "id = ?", conv.ID).Error; err != nil {
		t.Fatalf("load created conversation: %v", err)
	}
	if got.ClientID != "ip:1.2.3.4" || got.Language != "el" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestFindRecentConversation_BoundaryAndNewest(t *testing.T) {
	db := newRepoDB(t, &domain.Conversation{})

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	seed := []domain.Conversation{
		{ID: "old", ClientID: "c1", Language: "en", StartedAt: base.Add(-2 * time.Hour)},
		{ID: "edge", ClientID: "c1", Language: "en", StartedAt: base.Add(-30 * time.Minute)},
		{ID: "new", ClientID: "c1", Language: "en", StartedAt: base.Add(-5 * time.Minute)},
		{ID: "other-lang", ClientID: "c1", Language: "el", StartedAt: base},
		{ID: "other-client", ClientID: "c2", Language: "en", StartedAt: base},
	}
	for _, c := range seed {
		if err := db.Create(&c).Error; err != nil {
			t.Fatalf("seed %s: %v", c.ID, err)
		}
	}

	// Newest match wins.
	got, err := FindRecentConversation(context.Background(), db, "c1", "en", base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("FindRecentConversation: %v", err)
	}
	if got.ID != "new" {
		t.Fatalf("expected newest conversation, got %q", got.ID)
	}

	// A conversation started exactly at the cutoff is still reusable.
	got, err = FindRecentConversation(context.Background(), db, "c1", "en", base.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("FindRecentConversation at boundary: %v", err)
	}
	if got.ID != "new" {
		t.Fatalf("expected newest within boundary, got %q", got.ID)
	}

	// Nothing within the window.
	_, err = FindRecentConversation(context.Background(), db, "c1", "en", base.Add(time.Minute))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Language is part of the session key.
	got, err = FindRecentConversation(context.Background(), db, "c1", "el", base.Add(-time.Hour))
	if err != nil || got.ID != "other-lang" {
		t.Fatalf("language filter broken: got=%v err=%v", got, err)
	}
}

func TestGetConversation(t *testing.T) {
	db := newRepoDB(t, &domain.Conversation{})

	if err := db.Create(&domain.Conversation{ID: "cv1", ClientID: "c1", Language: "en"}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := GetConversation(context.Background(), db, "cv1")
	if err != nil || got.ID != "cv1" {
		t.Fatalf("GetConversation: got=%v err=%v", got, err)
	}

	if _, err := GetConversation(context.Background(), db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListConversationsPage_OrderByLastActivity(t *testing.T) {
	db := newRepoDB(t, &domain.Conversation{})

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		c := domain.Conversation{ID: id, ClientID: "c1", Language: "en", LastMessageAt: base.Add(time.Duration(i) * time.Hour)}
		if err := db.Create(&c).Error; err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	page, err := ListConversationsPage(context.Background(), db, 0, 2)
	if err != nil {
		t.Fatalf("ListConversationsPage: %v", err)
	}
	if len(page) != 2 || page[0].ID != "c" || page[1].ID != "b" {
		t.Fatalf("unexpected page: %#v", page)
	}

	page, err = ListConversationsPage(context.Background(), db, 2, 2)
	if err != nil || len(page) != 1 || page[0].ID != "a" {
		t.Fatalf("unexpected second page: %#v err=%v", page, err)
	}

	total, err := CountConversations(context.Background(), db)
	if err != nil || total != 3 {
		t.Fatalf("CountConversations = %d, %v", total, err)
	}
}

func TestBumpConversation_AdvancesCounterAndTimestamp(t *testing.T) {
	db := newRepoDB(t, &domain.Conversation{})

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if err := db.Create(&domain.Conversation{ID: "cv1", ClientID: "c1", Language: "en", MessageCount: 2, LastMessageAt: start}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	at := start.Add(time.Minute)
	if err := BumpConversation(db, "cv1", 3, at); err != nil {
		t.Fatalf("BumpConversation: %v", err)
	}

	var got domain.Conversation
	if err := db.First(&got, "id = ?", "cv1").Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.MessageCount != 5 {
		t.Fatalf("MessageCount = %d; want 5", got.MessageCount)
	}
	if !got.LastMessageAt.Equal(at) {
		t.Fatalf("LastMessageAt = %v; want %v", got.LastMessageAt, at)
	}
}

func TestBumpConversation_NotFound(t *testing.T) {
	db := newRepoDB(t, &domain.Conversation{})
	if err := BumpConversation(db, "missing", 1, time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
