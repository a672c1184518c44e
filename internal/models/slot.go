package models

import (
	"time"

	"gorm.io/gorm"
)

// SlotStatus is the tri-state lifecycle of a Slot.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "AVAILABLE"
	SlotBlocked   SlotStatus = "BLOCKED"
	SlotReserved  SlotStatus = "RESERVED"
)

// Slot is a fixed-length time interval for one professional with a status.
// (professional, start) is unique; end = start + slot length. Date is the
// calendar day in the business time zone, stored as "YYYY-MM-DD".
type Slot struct {
	ID             string     `gorm:"type:uuid;primaryKey" json:"id"`
	ProfessionalID string     `gorm:"type:uuid;uniqueIndex:idx_slot_professional_start;not null" json:"professionalId"`
	Date           string     `gorm:"type:date;index:idx_slot_prof_date;not null" json:"date"`
	StartDatetime  time.Time  `gorm:"uniqueIndex:idx_slot_professional_start;not null" json:"startDatetime"`
	EndDatetime    time.Time  `gorm:"not null" json:"endDatetime"`
	Status         SlotStatus `gorm:"type:varchar(20);index;not null" json:"status"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Slot) TableName() string { return "slots" }

func (s *Slot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = newUUID()
	}
	return nil
}
