package models

import (
	"time"

	"gorm.io/gorm"
)

// Client is a person who books reservations. Identified by email; the
// phone is stored normalized (country prefix + subscriber number) so
// chat-channel lookups by suffix are reliable.
type Client struct {
	ID        string `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	FirstName string `gorm:"type:varchar(150)" json:"firstName"`
	LastName  string `gorm:"type:varchar(150)" json:"lastName"`
	Phone     string `gorm:"type:varchar(32);index" json:"phone,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Client) TableName() string { return "clients" }

func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = newUUID()
	}
	return nil
}

// Vehicle belongs to a Client. (owner, plate) is unique.
type Vehicle struct {
	ID      string `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID string `gorm:"type:uuid;uniqueIndex:idx_vehicle_owner_plate;not null" json:"ownerId"`
	Plate   string `gorm:"type:varchar(16);uniqueIndex:idx_vehicle_owner_plate;not null" json:"plate"`
	Brand   string `gorm:"type:varchar(64)" json:"brand,omitempty"`
	Model   string `gorm:"type:varchar(64)" json:"model,omitempty"`
	Year    *int   `json:"year,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Vehicle) TableName() string { return "vehicles" }

func (v *Vehicle) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = newUUID()
	}
	return nil
}

// Commune is an administrative district used to qualify addresses.
type Commune struct {
	ID     string `gorm:"type:uuid;primaryKey" json:"id"`
	Name   string `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Region string `gorm:"type:varchar(100)" json:"region,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

func (Commune) TableName() string { return "communes" }

func (c *Commune) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = newUUID()
	}
	return nil
}

// Address belongs to a Client. (owner, alias) is unique so repeat bookings
// to "Principal" update in place instead of accumulating rows.
type Address struct {
	ID         string  `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID    string  `gorm:"type:uuid;uniqueIndex:idx_address_owner_alias;not null" json:"ownerId"`
	Alias      string  `gorm:"type:varchar(64);uniqueIndex:idx_address_owner_alias;not null" json:"alias"`
	Street     string  `gorm:"type:varchar(255);not null" json:"street"`
	Number     string  `gorm:"type:varchar(16)" json:"number,omitempty"`
	Complement string  `gorm:"type:varchar(128)" json:"complement,omitempty"`
	CommuneID  *string `gorm:"type:uuid" json:"communeId,omitempty"`

	Commune *Commune `gorm:"foreignKey:CommuneID" json:"commune,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Address) TableName() string { return "addresses" }

func (a *Address) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = newUUID()
	}
	return nil
}
