package models

import (
	"time"

	"gorm.io/gorm"
)

// ChatState is the conversation position of a ChatSession.
type ChatState string

const (
	ChatMenu            ChatState = "MENU"
	ChatSelectService   ChatState = "SELECT_SERVICE"
	ChatSelectDate      ChatState = "SELECT_DATE"
	ChatSelectTime      ChatState = "SELECT_TIME"
	ChatWaitingForEmail ChatState = "WAITING_FOR_EMAIL"
	ChatWaitingForAddr  ChatState = "WAITING_FOR_ADDRESS"
)

// ChatSession is the system-of-record snapshot of a per-phone booking
// conversation. The hot copy lives in Redis (see
// repository.ChatSessionRepository); this
// row is written on every transition so a session survives a cache
// eviction or Redis restart. Data holds the accumulated selections
// (service, date, offers, address) as a JSON document.
type ChatSession struct {
	ID    string    `gorm:"type:uuid;primaryKey" json:"id"`
	Phone string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"phone"`
	State ChatState `gorm:"type:varchar(32);not null" json:"state"`
	Data  string    `gorm:"type:text" json:"data,omitempty"`

	ExpiresAt time.Time `gorm:"index" json:"expiresAt"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (ChatSession) TableName() string { return "chat_sessions" }

func (c *ChatSession) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = newUUID()
	}
	return nil
}
