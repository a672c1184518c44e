package models

import (
	"time"

	"gorm.io/gorm"
)

// ScheduleException is a one-off unavailability window for a professional
// (vacation, special event) that is not part of the recurring WorkSchedule.
type ScheduleException struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	ProfessionalID string    `gorm:"type:uuid;index:idx_exception_prof_date;not null" json:"professionalId"`
	Date           string    `gorm:"type:date;index:idx_exception_prof_date;not null" json:"date"`
	StartDatetime  time.Time `gorm:"not null" json:"startDatetime"`
	EndDatetime    time.Time `gorm:"not null" json:"endDatetime"`
	Reason         string    `gorm:"type:varchar(255)" json:"reason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

func (ScheduleException) TableName() string { return "schedule_exceptions" }

func (e *ScheduleException) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = newUUID()
	}
	return nil
}

// SlotBlock is a manually declared busy interval for a professional.
type SlotBlock struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	ProfessionalID string    `gorm:"type:uuid;index:idx_block_prof_date;not null" json:"professionalId"`
	Date           string    `gorm:"type:date;index:idx_block_prof_date;not null" json:"date"`
	StartDatetime  time.Time `gorm:"not null" json:"startDatetime"`
	EndDatetime    time.Time `gorm:"not null" json:"endDatetime"`
	Reason         string    `gorm:"type:varchar(255)" json:"reason,omitempty"`
	CreatedBy      string    `gorm:"type:uuid" json:"createdBy,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

func (SlotBlock) TableName() string { return "slot_blocks" }

func (b *SlotBlock) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = newUUID()
	}
	return nil
}
