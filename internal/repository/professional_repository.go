package repository

import (
	"context"
	"fmt"

	"github.com/revitek/scheduling-engine/internal/models"
	"gorm.io/gorm"
)

// ProfessionalRepository handles Professional, ProfessionalService and
// WorkSchedule persistence.
type ProfessionalRepository struct {
	db *gorm.DB
}

// NewProfessionalRepository creates a new professional repository.
func NewProfessionalRepository(db *gorm.DB) *ProfessionalRepository {
	return &ProfessionalRepository{db: db}
}

// WithTx returns a repository bound to the given transaction, so callers
// composing a larger unit of work can share one *gorm.DB across repos.
func (r *ProfessionalRepository) WithTx(tx *gorm.DB) *ProfessionalRepository {
	return &ProfessionalRepository{db: tx}
}

// GetByID retrieves a professional by ID.
func (r *ProfessionalRepository) GetByID(ctx context.Context, id string) (*models.Professional, error) {
	var p models.Professional
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(fmt.Errorf("fetching professional %s: %w", id, err))
	}
	return &p, nil
}

// ListActive returns professionals accepting reservations.
func (r *ProfessionalRepository) ListActive(ctx context.Context) ([]models.Professional, error) {
	var professionals []models.Professional
	err := r.db.WithContext(ctx).
		Where("active = ? AND accepts_reservations = ?", true, true).
		Order("display_name asc").
		Find(&professionals).Error
	if err != nil {
		return nil, fmt.Errorf("listing active professionals: %w", err)
	}
	return professionals, nil
}

// ServiceQualification returns the ProfessionalService row linking a
// professional to a service, if they are qualified to perform it.
func (r *ProfessionalRepository) ServiceQualification(ctx context.Context, professionalID, serviceID string) (*models.ProfessionalService, error) {
	var ps models.ProfessionalService
	err := r.db.WithContext(ctx).
		Where("professional_id = ? AND service_id = ? AND active = ?", professionalID, serviceID, true).
		First(&ps).Error
	if err != nil {
		return nil, wrapNotFound(fmt.Errorf("fetching qualification for professional %s service %s: %w", professionalID, serviceID, err))
	}
	return &ps, nil
}

// QualifiedProfessionals returns every professional qualified and active for
// the given service, with their qualification row preloaded.
func (r *ProfessionalRepository) QualifiedProfessionals(ctx context.Context, serviceID string) ([]models.ProfessionalService, error) {
	var rows []models.ProfessionalService
	err := r.db.WithContext(ctx).
		Joins("JOIN professionals ON professionals.id = professional_services.professional_id").
		Where("professional_services.service_id = ? AND professional_services.active = ? AND professionals.active = ? AND professionals.accepts_reservations = ?",
			serviceID, true, true, true).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing qualified professionals for service %s: %w", serviceID, err)
	}
	return rows, nil
}

// QualifiedProfessionalIDs returns just the ids of professionals active and
// qualified for a service, for set intersection across requested services.
func (r *ProfessionalRepository) QualifiedProfessionalIDs(ctx context.Context, serviceID string) ([]string, error) {
	rows, err := r.QualifiedProfessionals(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ProfessionalID)
	}
	return ids, nil
}

// QualificationsFor fetches every active ProfessionalService for the cross
// product of the given professionals and services in one read, so duration
// computation never does a per-professional lookup loop.
func (r *ProfessionalRepository) QualificationsFor(ctx context.Context, professionalIDs, serviceIDs []string) ([]models.ProfessionalService, error) {
	if len(professionalIDs) == 0 || len(serviceIDs) == 0 {
		return nil, nil
	}
	var rows []models.ProfessionalService
	err := r.db.WithContext(ctx).
		Where("professional_id IN ? AND service_id IN ? AND active = ?", professionalIDs, serviceIDs, true).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing qualifications: %w", err)
	}
	return rows, nil
}

// WorkScheduleForWeekday returns the active schedule row for a
// professional on one weekday (0=Sunday..6=Saturday), with breaks
// preloaded. ErrNotFound means the professional does not work that day.
func (r *ProfessionalRepository) WorkScheduleForWeekday(ctx context.Context, professionalID string, weekday int) (*models.WorkSchedule, error) {
	var ws models.WorkSchedule
	err := r.db.WithContext(ctx).
		Preload("Breaks").
		Where("professional_id = ? AND weekday = ? AND active = ?", professionalID, weekday, true).
		First(&ws).Error
	if err != nil {
		return nil, wrapNotFound(fmt.Errorf("fetching work schedule for professional %s weekday %d: %w", professionalID, weekday, err))
	}
	return &ws, nil
}

// WorkSchedules returns all active weekly schedule rows for a professional,
// with breaks preloaded.
func (r *ProfessionalRepository) WorkSchedules(ctx context.Context, professionalID string) ([]models.WorkSchedule, error) {
	var schedules []models.WorkSchedule
	err := r.db.WithContext(ctx).
		Preload("Breaks").
		Where("professional_id = ? AND active = ?", professionalID, true).
		Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("listing work schedules for professional %s: %w", professionalID, err)
	}
	return schedules, nil
}
