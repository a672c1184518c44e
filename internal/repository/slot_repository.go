package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/revitek/scheduling-engine/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SlotRepository handles Slot persistence, including the pessimistic-lock
// reads used to serialize concurrent bookings against the same slot.
type SlotRepository struct {
	db *gorm.DB
}

// NewSlotRepository creates a new slot repository.
func NewSlotRepository(db *gorm.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// WithTx returns a repository bound to the given transaction. Locking
// methods are only meaningful when bound to a transaction.
func (r *SlotRepository) WithTx(tx *gorm.DB) *SlotRepository {
	return &SlotRepository{db: tx}
}

// GetByID retrieves a slot by ID without locking.
func (r *SlotRepository) GetByID(ctx context.Context, id string) (*models.Slot, error) {
	var s models.Slot
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(fmt.Errorf("fetching slot %s: %w", id, err))
	}
	return &s, nil
}

// LockByID locks a slot row for update and returns it. Must be called
// inside a transaction; concurrent bookings racing for the same slot
// serialize here.
func (r *SlotRepository) LockByID(ctx context.Context, id string) (*models.Slot, error) {
	var s models.Slot
	err := lockForUpdate(r.db.WithContext(ctx)).
		First(&s, "id = ?", id).Error
	if err != nil {
		return nil, wrapNotFound(fmt.Errorf("locking slot %s: %w", id, err))
	}
	return &s, nil
}

// LockAvailableAt locks the AVAILABLE slot starting exactly at start for a
// professional. ErrNotFound means no such slot exists or a concurrent
// transaction already consumed it.
func (r *SlotRepository) LockAvailableAt(ctx context.Context, professionalID string, start time.Time) (*models.Slot, error) {
	var s models.Slot
	err := lockForUpdate(r.db.WithContext(ctx)).
		Where("professional_id = ? AND start_datetime = ? AND status = ?",
			professionalID, start, models.SlotAvailable).
		First(&s).Error
	if err != nil {
		return nil, wrapNotFound(fmt.Errorf("locking slot for professional %s at %s: %w", professionalID, start, err))
	}
	return &s, nil
}

// OnDate returns all slots for a professional on a calendar date, ordered
// by start, regardless of status. Used by the generator's reconciliation.
func (r *SlotRepository) OnDate(ctx context.Context, professionalID string, date time.Time) ([]models.Slot, error) {
	var slots []models.Slot
	err := r.db.WithContext(ctx).
		Where("professional_id = ? AND date = ?", professionalID, date.Format("2006-01-02")).
		Order("start_datetime asc").
		Find(&slots).Error
	if err != nil {
		return nil, fmt.Errorf("listing slots for professional %s on %s: %w", professionalID, date, err)
	}
	return slots, nil
}

// AvailableOnDate returns the AVAILABLE slots on a date for any of the
// given professionals, ordered by (professional, start) for the
// availability calculator's grouping pass.
func (r *SlotRepository) AvailableOnDate(ctx context.Context, professionalIDs []string, date time.Time) ([]models.Slot, error) {
	if len(professionalIDs) == 0 {
		return nil, nil
	}
	var slots []models.Slot
	err := r.db.WithContext(ctx).
		Where("professional_id IN ? AND date = ? AND status = ?",
			professionalIDs, date.Format("2006-01-02"), models.SlotAvailable).
		Order("professional_id asc, start_datetime asc").
		Find(&slots).Error
	if err != nil {
		return nil, fmt.Errorf("listing available slots on %s: %w", date, err)
	}
	return slots, nil
}

// MarkReserved transitions a set of slots to RESERVED. Must run inside the
// same transaction that locked them.
func (r *SlotRepository) MarkReserved(ctx context.Context, slotIDs []string) error {
	result := r.db.WithContext(ctx).Model(&models.Slot{}).
		Where("id IN ?", slotIDs).
		Update("status", models.SlotReserved)
	if result.Error != nil {
		return fmt.Errorf("marking slots reserved: %w", result.Error)
	}
	if int(result.RowsAffected) != len(slotIDs) {
		return fmt.Errorf("%w: expected to reserve %d slots, affected %d", ErrDomainConflict, len(slotIDs), result.RowsAffected)
	}
	return nil
}

// Release transitions a set of slots back to AVAILABLE, used on
// cancellation and expiry sweeps.
func (r *SlotRepository) Release(ctx context.Context, slotIDs []string) error {
	if len(slotIDs) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(&models.Slot{}).
		Where("id IN ?", slotIDs).
		Update("status", models.SlotAvailable).Error; err != nil {
		return fmt.Errorf("releasing slots: %w", err)
	}
	return nil
}

// UpsertGenerated bulk-inserts freshly generated slots, skipping any
// (professional, start) pair that already exists so a regeneration re-run
// is idempotent and never clobbers a RESERVED slot.
func (r *SlotRepository) UpsertGenerated(ctx context.Context, slots []models.Slot) error {
	if len(slots) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "professional_id"}, {Name: "start_datetime"}},
			DoNothing: true,
		}).
		Create(&slots).Error
	if err != nil {
		return fmt.Errorf("upserting generated slots: %w", err)
	}
	return nil
}

// DeleteAvailableOnDate removes every AVAILABLE slot for a professional on
// a date. Used when the professional has no work schedule for that weekday.
func (r *SlotRepository) DeleteAvailableOnDate(ctx context.Context, professionalID string, date time.Time) error {
	err := r.db.WithContext(ctx).
		Where("professional_id = ? AND date = ? AND status = ?",
			professionalID, date.Format("2006-01-02"), models.SlotAvailable).
		Delete(&models.Slot{}).Error
	if err != nil {
		return fmt.Errorf("clearing available slots for professional %s: %w", professionalID, err)
	}
	return nil
}

// ReferencedByReservation reports whether any ReservationSlot links to the
// slot. A referenced slot must not be deleted during reconciliation; it is
// demoted to BLOCKED instead so the historical linkage survives.
func (r *SlotRepository) ReferencedByReservation(ctx context.Context, slotID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ReservationSlot{}).
		Where("slot_id = ?", slotID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking reservation links for slot %s: %w", slotID, err)
	}
	return count > 0, nil
}

// Delete removes a slot row by ID.
func (r *SlotRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&models.Slot{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("deleting slot %s: %w", id, err)
	}
	return nil
}

// SetStatus updates a single slot's status.
func (r *SlotRepository) SetStatus(ctx context.Context, id string, status models.SlotStatus) error {
	if err := r.db.WithContext(ctx).Model(&models.Slot{}).
		Where("id = ?", id).
		Update("status", status).Error; err != nil {
		return fmt.Errorf("updating slot %s status: %w", id, err)
	}
	return nil
}
