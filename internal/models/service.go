package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Service is the unit of work a client can request.
type Service struct {
	ID                     string `gorm:"type:uuid;primaryKey" json:"id"`
	Name                   string `gorm:"type:varchar(255);not null" json:"name"`
	DefaultDurationMinutes int    `gorm:"not null" json:"defaultDurationMinutes"`
	Active                 bool   `gorm:"default:true" json:"active"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Service) TableName() string { return "services" }

func (s *Service) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = newUUID()
	}
	return nil
}

// ServiceTimeRule restricts the start times a service may be booked at on a
// given weekday. Absence of a rule for a (service, weekday) pair means
// "unrestricted".
type ServiceTimeRule struct {
	ID               string         `gorm:"type:uuid;primaryKey" json:"id"`
	ServiceID        string         `gorm:"type:uuid;uniqueIndex:idx_service_weekday;not null" json:"serviceId"`
	Weekday          int            `gorm:"uniqueIndex:idx_service_weekday;not null" json:"weekday"`
	AllowedStartTimes pq.StringArray `gorm:"type:text[];not null" json:"allowedStartTimes"` // "HH:MM" values

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (ServiceTimeRule) TableName() string { return "service_time_rules" }

func (r *ServiceTimeRule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = newUUID()
	}
	return nil
}
