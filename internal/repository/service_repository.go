package repository

import (
	"context"
	"fmt"

	"github.com/revitek/scheduling-engine/internal/models"
	"gorm.io/gorm"
)

// ServiceRepository handles Service and ServiceTimeRule persistence.
type ServiceRepository struct {
	db *gorm.DB
}

// NewServiceRepository creates a new service repository.
func NewServiceRepository(db *gorm.DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *ServiceRepository) WithTx(tx *gorm.DB) *ServiceRepository {
	return &ServiceRepository{db: tx}
}

// GetByID retrieves a service by ID.
func (r *ServiceRepository) GetByID(ctx context.Context, id string) (*models.Service, error) {
	var s models.Service
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(fmt.Errorf("fetching service %s: %w", id, err))
	}
	return &s, nil
}

// ListActive returns every active service.
func (r *ServiceRepository) ListActive(ctx context.Context) ([]models.Service, error) {
	var services []models.Service
	if err := r.db.WithContext(ctx).Where("active = ?", true).Order("name asc").Find(&services).Error; err != nil {
		return nil, fmt.Errorf("listing active services: %w", err)
	}
	return services, nil
}

// GetByIDs retrieves a batch of services keyed by id.
func (r *ServiceRepository) GetByIDs(ctx context.Context, ids []string) (map[string]models.Service, error) {
	if len(ids) == 0 {
		return map[string]models.Service{}, nil
	}
	var services []models.Service
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&services).Error; err != nil {
		return nil, fmt.Errorf("fetching services: %w", err)
	}
	byID := make(map[string]models.Service, len(services))
	for _, s := range services {
		byID[s.ID] = s
	}
	return byID, nil
}

// TimeRuleForWeekday returns the ServiceTimeRule for a (service, weekday)
// pair. ErrNotFound means "no restriction" and must be treated as
// unrestricted start times by callers, per the data model's documented
// default.
func (r *ServiceRepository) TimeRuleForWeekday(ctx context.Context, serviceID string, weekday int) (*models.ServiceTimeRule, error) {
	var rule models.ServiceTimeRule
	err := r.db.WithContext(ctx).
		Where("service_id = ? AND weekday = ?", serviceID, weekday).
		First(&rule).Error
	if err != nil {
		return nil, wrapNotFound(fmt.Errorf("fetching time rule for service %s weekday %d: %w", serviceID, weekday, err))
	}
	return &rule, nil
}
