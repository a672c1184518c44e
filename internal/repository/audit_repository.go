package repository

import (
	"context"
	"fmt"

	"github.com/revitek/scheduling-engine/internal/models"
	"gorm.io/gorm"
)

// AuditRepository records administrative actions. Entries are append-only.
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *AuditRepository) WithTx(tx *gorm.DB) *AuditRepository {
	return &AuditRepository{db: tx}
}

// Record appends an audit entry.
func (r *AuditRepository) Record(ctx context.Context, actorID, action, entity, entityID, detail string) error {
	entry := models.AdminAudit{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Detail:   detail,
	}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("recording audit entry: %w", err)
	}
	return nil
}

// ListForEntity returns the audit trail of one entity, newest first.
func (r *AuditRepository) ListForEntity(ctx context.Context, entity, entityID string) ([]models.AdminAudit, error) {
	var entries []models.AdminAudit
	err := r.db.WithContext(ctx).
		Where("entity = ? AND entity_id = ?", entity, entityID).
		Order("created_at desc").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("listing audit entries for %s %s: %w", entity, entityID, err)
	}
	return entries, nil
}
