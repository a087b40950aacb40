// Package domain defines the persistence models for conversations and
// messages. These types are mapped with GORM and form the data layer of the
// oracle backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Role values allowed on a Message row.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation groups the turns exchanged by one client session. A
// conversation is reused for a given (client, language) pair while its
// StartedAt falls inside the configured reuse window; after that a new one is
// created lazily on the next logged exchange.
//
// MessageCount is maintained in the same transaction as the message inserts,
// so it always equals the number of message rows belonging to the
// conversation.
type Conversation struct {
	ID            string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ClientID      string         `json:"client_id"       gorm:"type:varchar(64);not null;index:idx_client_convs,priority:1"`
	Language      string         `json:"language"        gorm:"type:varchar(35);not null;default:'en';index:idx_client_convs,priority:2"`
	MessageCount  int            `json:"message_count"   gorm:"not null;default:0"`
	StartedAt     time.Time      `json:"started_at"      gorm:"index"`
	LastMessageAt time.Time      `json:"last_message_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-"               gorm:"index"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message represents a single turn within a conversation, authored either by
// the "user" or the "assistant". Rows are immutable once written.
//
// Seq is the turn's ordinal position inside its conversation. The unique
// (conversation_id, seq) index makes replayed batches harmless: a duplicate
// insert targets the same seq and is skipped by the conflict-ignoring write
// path instead of erroring the whole batch.
type Message struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string         `json:"conversation_id" gorm:"type:char(36);not null;uniqueIndex:ux_conv_seq,priority:1;index:idx_conv_msgs,priority:1"`
	Seq            int            `json:"seq"             gorm:"not null;uniqueIndex:ux_conv_seq,priority:2"`
	Role           string         `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content        string         `json:"content"         gorm:"type:text;not null"`
	CreatedAt      time.Time      `json:"created_at"      gorm:"index:idx_conv_msgs,priority:2"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"               gorm:"index"`

	// Conversation is the owning session. Messages are cascade-deleted
	// if their conversation is removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
