// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a conversation is not found, functions return
//     gorm.ErrRecordNotFound (also exported here as ErrNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mkaramanlis/oracle-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateConversation inserts a new Conversation row for clientID/language
// with a zero message count. The ID is a randomly generated UUID and both
// StartedAt and LastMessageAt are set to now.
func CreateConversation(ctx context.Context, db *gorm.DB, clientID, language string, now time.Time) (*domain.Conversation, error) {
	c := &domain.Conversation{
		ID:            uuid.NewString(),
		ClientID:      clientID,
		Language:      language,
		MessageCount:  0,
		StartedAt:     now,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// FindRecentConversation returns the newest conversation for
// (clientID, language) whose StartedAt is at or after since. When no such
// conversation exists it returns ErrNotFound.
func FindRecentConversation(ctx context.Context, db *gorm.DB, clientID, language string, since time.Time) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("client_id = ? AND language = ? AND started_at >= ?", clientID, language, since).
		Order("started_at desc").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversation fetches a single conversation by its ID, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CountConversations returns the total number of conversations.
func CountConversations(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Count(&total).Error
	return total, err
}

// ListConversationsPage returns a paginated slice of conversations ordered by
// last activity descending. Use CountConversations to obtain the total for
// pagination metadata.
func ListConversationsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Order("last_message_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// BumpConversation advances a conversation's message counter by delta and
// stamps its last activity time. It is meant to run inside the same
// transaction as the corresponding message inserts so the pair can never
// diverge. Returns ErrNotFound when the conversation does not exist.
func BumpConversation(db *gorm.DB, id string, delta int, at time.Time) error {
	res := db.Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"message_count":   gorm.Expr("message_count + ?", delta),
			"last_message_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
