package models

import (
	"time"

	"gorm.io/gorm"
)

// Professional is a service provider who can be booked for one or more
// services.
type Professional struct {
	ID                 string `gorm:"type:uuid;primaryKey" json:"id"`
	DisplayName        string `gorm:"type:varchar(255);not null" json:"displayName"`
	Active             bool   `gorm:"default:true" json:"active"`
	AcceptsReservations bool  `gorm:"default:true" json:"acceptsReservations"`
	UserID             *string `gorm:"type:uuid;index" json:"userId,omitempty"`
	Phone              string `gorm:"type:varchar(32)" json:"phone,omitempty"`
	Email              string `gorm:"type:varchar(255)" json:"email,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Professional) TableName() string { return "professionals" }

func (p *Professional) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = newUUID()
	}
	return nil
}

// ProfessionalService associates a Professional with a Service they are
// qualified to perform, with an optional duration override.
type ProfessionalService struct {
	ID                      string  `gorm:"type:uuid;primaryKey" json:"id"`
	ProfessionalID          string  `gorm:"type:uuid;uniqueIndex:idx_professional_service;not null" json:"professionalId"`
	ServiceID               string  `gorm:"type:uuid;uniqueIndex:idx_professional_service;not null" json:"serviceId"`
	DurationOverrideMinutes *int    `json:"durationOverrideMinutes,omitempty"`
	Active                  bool    `gorm:"default:true" json:"active"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (ProfessionalService) TableName() string { return "professional_services" }

func (ps *ProfessionalService) BeforeCreate(tx *gorm.DB) error {
	if ps.ID == "" {
		ps.ID = newUUID()
	}
	return nil
}

// EffectiveDurationMinutes returns the professional-specific override when
// set, otherwise the service's default duration.
func (ps ProfessionalService) EffectiveDurationMinutes(service Service) int {
	if ps.DurationOverrideMinutes != nil {
		return *ps.DurationOverrideMinutes
	}
	return service.DefaultDurationMinutes
}

// WorkSchedule is the weekly working-hours template for one professional.
type WorkSchedule struct {
	ID             string `gorm:"type:uuid;primaryKey" json:"id"`
	ProfessionalID string `gorm:"type:uuid;uniqueIndex:idx_professional_weekday;not null" json:"professionalId"`
	Weekday        int    `gorm:"uniqueIndex:idx_professional_weekday;not null" json:"weekday"` // 0=Sunday..6=Saturday
	StartTime      string `gorm:"type:varchar(5);not null" json:"startTime"`                    // "HH:MM"
	EndTime        string `gorm:"type:varchar(5);not null" json:"endTime"`
	Active         bool   `gorm:"default:true" json:"active"`

	Breaks []Break `gorm:"foreignKey:WorkScheduleID" json:"breaks,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (WorkSchedule) TableName() string { return "work_schedules" }

func (w *WorkSchedule) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = newUUID()
	}
	return nil
}

// Break is a recurring unavailability window inside a WorkSchedule.
type Break struct {
	ID             string `gorm:"type:uuid;primaryKey" json:"id"`
	WorkScheduleID string `gorm:"type:uuid;index;not null" json:"workScheduleId"`
	StartTime      string `gorm:"type:varchar(5);not null" json:"startTime"`
	EndTime        string `gorm:"type:varchar(5);not null" json:"endTime"`

	CreatedAt time.Time `json:"createdAt"`
}

func (Break) TableName() string { return "breaks" }

func (b *Break) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = newUUID()
	}
	return nil
}
