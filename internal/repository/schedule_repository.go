package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/revitek/scheduling-engine/internal/models"
	"gorm.io/gorm"
)

// ScheduleRepository handles ScheduleException and SlotBlock persistence —
// the two sources of one-off unavailability layered on top of a
// professional's recurring WorkSchedule.
type ScheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *ScheduleRepository) WithTx(tx *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: tx}
}

// ExceptionsOnDate returns every ScheduleException for a professional on a
// given calendar date.
func (r *ScheduleRepository) ExceptionsOnDate(ctx context.Context, professionalID string, date time.Time) ([]models.ScheduleException, error) {
	var exceptions []models.ScheduleException
	err := r.db.WithContext(ctx).
		Where("professional_id = ? AND date = ?", professionalID, date.Format("2006-01-02")).
		Find(&exceptions).Error
	if err != nil {
		return nil, fmt.Errorf("listing schedule exceptions for professional %s on %s: %w", professionalID, date, err)
	}
	return exceptions, nil
}

// BlocksOnDate returns every SlotBlock for a professional on a given
// calendar date.
func (r *ScheduleRepository) BlocksOnDate(ctx context.Context, professionalID string, date time.Time) ([]models.SlotBlock, error) {
	var blocks []models.SlotBlock
	err := r.db.WithContext(ctx).
		Where("professional_id = ? AND date = ?", professionalID, date.Format("2006-01-02")).
		Find(&blocks).Error
	if err != nil {
		return nil, fmt.Errorf("listing slot blocks for professional %s on %s: %w", professionalID, date, err)
	}
	return blocks, nil
}

// CreateBlock inserts a new manually declared unavailability window.
func (r *ScheduleRepository) CreateBlock(ctx context.Context, block *models.SlotBlock) error {
	if err := r.db.WithContext(ctx).Create(block).Error; err != nil {
		return fmt.Errorf("creating slot block: %w", err)
	}
	return nil
}

// DeleteBlock removes a manually declared block by ID.
func (r *ScheduleRepository) DeleteBlock(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.SlotBlock{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("deleting slot block %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
