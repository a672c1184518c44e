package models

import (
	"time"

	"gorm.io/gorm"
)

// AdminAudit is an append-only log of administrative actions taken against
// reservations and schedules, independent of StatusHistory (which only
// tracks Reservation status). Covers actions like slot blocking, rule
// edits, and manual overrides.
type AdminAudit struct {
	ID       string `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID  string `gorm:"type:uuid;index;not null" json:"actorId"`
	Action   string `gorm:"type:varchar(64);not null" json:"action"`
	Entity   string `gorm:"type:varchar(64);not null" json:"entity"`
	EntityID string `gorm:"type:uuid;index;not null" json:"entityId"`
	Detail   string `gorm:"type:text" json:"detail,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

func (AdminAudit) TableName() string { return "admin_audits" }

func (a *AdminAudit) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = newUUID()
	}
	return nil
}
