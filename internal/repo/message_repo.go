// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mkaramanlis/oracle-backend/internal/domain"
)

// InsertMessages writes a batch of message rows, skipping any row whose
// (conversation_id, seq) already exists. It returns the number of rows
// actually inserted, which callers use to advance the conversation counter
// so replayed batches cannot double count.
func InsertMessages(db *gorm.DB, rows []domain.Message) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "seq"}},
		DoNothing: true,
	}).Create(&rows)
	return res.RowsAffected, res.Error
}

// ListMessages returns messages for a conversation ordered by their position.
func ListMessages(db *gorm.DB, conversationID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.Where("conversation_id = ?", conversationID).Order("seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountMessages returns how many message rows a conversation holds.
func CountMessages(db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered by position.
func ListMessagesPage(db *gorm.DB, conversationID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.
		Where("conversation_id = ?", conversationID).
		Order("seq ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
