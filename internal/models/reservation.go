package models

import (
	"time"

	"gorm.io/gorm"
)

// ReservationStatus is the lifecycle state of a Reservation.
type ReservationStatus string

const (
	ReservationPending       ReservationStatus = "PENDING"
	ReservationWaitingClient ReservationStatus = "WAITING_CLIENT"
	ReservationConfirmed     ReservationStatus = "CONFIRMED"
	ReservationReconfirmed   ReservationStatus = "RECONFIRMED"
	ReservationInProgress    ReservationStatus = "IN_PROGRESS"
	ReservationCompleted     ReservationStatus = "COMPLETED"
	ReservationCancelled     ReservationStatus = "CANCELLED"
	ReservationNoShow        ReservationStatus = "NO_SHOW"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s ReservationStatus) IsTerminal() bool {
	switch s {
	case ReservationCancelled, ReservationCompleted, ReservationNoShow:
		return true
	}
	return false
}

// ActiveReservationStatuses are the states that count toward a
// professional's daily load and toward double-booking checks.
var ActiveReservationStatuses = []ReservationStatus{
	ReservationPending,
	ReservationWaitingClient,
	ReservationConfirmed,
	ReservationReconfirmed,
	ReservationInProgress,
}

// CancelActor identifies who cancelled a reservation.
type CancelActor string

const (
	CancelledByAdmin      CancelActor = "admin"
	CancelledByClient     CancelActor = "client"
	CancelledByClientChat CancelActor = "client_chat"
	CancelledBySystem     CancelActor = "system"
)

// ReservationSource records which channel created the reservation. It is
// informational (audit, debugging) and never changes booking semantics.
type ReservationSource string

const (
	SourceWeb   ReservationSource = "web"
	SourceAdmin ReservationSource = "admin"
	SourceChat  ReservationSource = "chat"
)

// Reservation is the header row for a booking. It is never soft-deleted:
// the normal end of life is a terminal status, and every transition is
// recorded in StatusHistory.
type Reservation struct {
	ID        string            `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID  string            `gorm:"type:uuid;index;not null" json:"clientId"`
	VehicleID *string           `gorm:"type:uuid" json:"vehicleId,omitempty"`
	AddressID *string           `gorm:"type:uuid" json:"addressId,omitempty"`
	Status    ReservationStatus `gorm:"type:varchar(32);index;not null" json:"status"`
	Source    ReservationSource `gorm:"type:varchar(16);not null;default:web" json:"source"`

	TotalMinutes int    `gorm:"not null" json:"totalMinutes"`
	Note         string `gorm:"type:text" json:"note,omitempty"`

	// ConfirmationToken is the opaque credential mailed or chatted to the
	// client for self-service confirmation. Only set while the reservation
	// is in the awaiting-client window; TokenExpiresAt is authoritative.
	ConfirmationToken *string    `gorm:"type:varchar(64);uniqueIndex" json:"-"`
	TokenExpiresAt    *time.Time `json:"tokenExpiresAt,omitempty"`

	CancelledBy *CancelActor `gorm:"type:varchar(16)" json:"cancelledBy,omitempty"`

	Client   *Client              `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Vehicle  *Vehicle             `gorm:"foreignKey:VehicleID" json:"vehicle,omitempty"`
	Address  *Address             `gorm:"foreignKey:AddressID" json:"address,omitempty"`
	Slots    []ReservationSlot    `gorm:"foreignKey:ReservationID" json:"slots,omitempty"`
	Services []ReservationService `gorm:"foreignKey:ReservationID" json:"services,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Reservation) TableName() string { return "reservations" }

func (r *Reservation) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = newUUID()
	}
	return nil
}

// ReservationSlot links a Reservation to one Slot of the contiguous run it
// occupies. All links for one reservation share a single professional.
type ReservationSlot struct {
	ID             string `gorm:"type:uuid;primaryKey" json:"id"`
	ReservationID  string `gorm:"type:uuid;index;not null" json:"reservationId"`
	SlotID         string `gorm:"type:uuid;uniqueIndex;not null" json:"slotId"`
	ProfessionalID string `gorm:"type:uuid;index;not null" json:"professionalId"`

	Slot *Slot `gorm:"foreignKey:SlotID" json:"slot,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

func (ReservationSlot) TableName() string { return "reservation_slots" }

func (rs *ReservationSlot) BeforeCreate(tx *gorm.DB) error {
	if rs.ID == "" {
		rs.ID = newUUID()
	}
	return nil
}

// ReservationService is one requested service within a Reservation, with
// the duration frozen at booking time so later catalog edits don't
// retroactively alter history.
type ReservationService struct {
	ID                       string `gorm:"type:uuid;primaryKey" json:"id"`
	ReservationID            string `gorm:"type:uuid;index;not null" json:"reservationId"`
	ServiceID                string `gorm:"type:uuid;not null" json:"serviceId"`
	ProfessionalID           string `gorm:"type:uuid;not null" json:"professionalId"`
	EffectiveDurationMinutes int    `gorm:"not null" json:"effectiveDurationMinutes"`

	Service *Service `gorm:"foreignKey:ServiceID" json:"service,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

func (ReservationService) TableName() string { return "reservation_services" }

func (rs *ReservationService) BeforeCreate(tx *gorm.DB) error {
	if rs.ID == "" {
		rs.ID = newUUID()
	}
	return nil
}

// StatusHistory is the append-only trail of status transitions for a
// Reservation. Rows are created, never updated or deleted.
type StatusHistory struct {
	ID            string            `gorm:"type:uuid;primaryKey" json:"id"`
	ReservationID string            `gorm:"type:uuid;index;not null" json:"reservationId"`
	Status        ReservationStatus `gorm:"type:varchar(32);not null" json:"status"`
	Note          string            `gorm:"type:varchar(255)" json:"note,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

func (StatusHistory) TableName() string { return "status_histories" }

func (h *StatusHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = newUUID()
	}
	return nil
}
