package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/revitek/scheduling-engine/internal/models"
	"gorm.io/gorm"
)

// ClientRepository handles Client, Vehicle, Address and Commune
// persistence for the booking transaction and the chat channel.
type ClientRepository struct {
	db *gorm.DB
}

// NewClientRepository creates a new client repository.
func NewClientRepository(db *gorm.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *ClientRepository) WithTx(tx *gorm.DB) *ClientRepository {
	return &ClientRepository{db: tx}
}

// GetByID retrieves a client by ID.
func (r *ClientRepository) GetByID(ctx context.Context, id string) (*models.Client, error) {
	var c models.Client
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(fmt.Errorf("fetching client %s: %w", id, err))
	}
	return &c, nil
}

// GetByEmail retrieves a client by email, case-insensitively.
func (r *ClientRepository) GetByEmail(ctx context.Context, email string) (*models.Client, error) {
	var c models.Client
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = LOWER(?)", strings.TrimSpace(email)).
		First(&c).Error
	if err != nil {
		return nil, wrapNotFound(fmt.Errorf("fetching client by email: %w", err))
	}
	return &c, nil
}

// FindByPhoneSuffix finds a client whose stored phone ends with the given
// digit suffix. Stored phones are normalized, so suffix matching tolerates
// inputs arriving with or without the country prefix.
func (r *ClientRepository) FindByPhoneSuffix(ctx context.Context, suffix string) (*models.Client, error) {
	if suffix == "" {
		return nil, ErrNotFound
	}
	var c models.Client
	err := r.db.WithContext(ctx).
		Where("phone LIKE ?", "%"+suffix).
		First(&c).Error
	if err != nil {
		return nil, wrapNotFound(fmt.Errorf("fetching client by phone suffix: %w", err))
	}
	return &c, nil
}

// FindByPhone finds a client by exact normalized phone.
func (r *ClientRepository) FindByPhone(ctx context.Context, normalized string) (*models.Client, error) {
	if normalized == "" {
		return nil, ErrNotFound
	}
	var c models.Client
	err := r.db.WithContext(ctx).Where("phone = ?", normalized).First(&c).Error
	if err != nil {
		return nil, wrapNotFound(fmt.Errorf("fetching client by phone: %w", err))
	}
	return &c, nil
}

// Create inserts a new client row.
func (r *ClientRepository) Create(ctx context.Context, c *models.Client) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	return nil
}

// Save persists changes to a client row.
func (r *ClientRepository) Save(ctx context.Context, c *models.Client) error {
	if err := r.db.WithContext(ctx).Save(c).Error; err != nil {
		return fmt.Errorf("saving client %s: %w", c.ID, err)
	}
	return nil
}

// UpsertVehicle creates or updates the vehicle identified by
// (owner, plate), refreshing brand/model/year from the incoming values.
func (r *ClientRepository) UpsertVehicle(ctx context.Context, v *models.Vehicle) error {
	var existing models.Vehicle
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND plate = ?", v.OwnerID, v.Plate).
		First(&existing).Error
	switch {
	case err == nil:
		existing.Brand = v.Brand
		existing.Model = v.Model
		existing.Year = v.Year
		if err := r.db.WithContext(ctx).Save(&existing).Error; err != nil {
			return fmt.Errorf("updating vehicle %s: %w", existing.ID, err)
		}
		*v = existing
		return nil
	case err == gorm.ErrRecordNotFound:
		if err := r.db.WithContext(ctx).Create(v).Error; err != nil {
			return fmt.Errorf("creating vehicle: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("fetching vehicle by owner/plate: %w", err)
	}
}

// UpsertAddress creates or updates the address identified by
// (owner, alias), replacing street/number/complement/commune.
func (r *ClientRepository) UpsertAddress(ctx context.Context, a *models.Address) error {
	var existing models.Address
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND alias = ?", a.OwnerID, a.Alias).
		First(&existing).Error
	switch {
	case err == nil:
		existing.Street = a.Street
		existing.Number = a.Number
		existing.Complement = a.Complement
		existing.CommuneID = a.CommuneID
		if err := r.db.WithContext(ctx).Save(&existing).Error; err != nil {
			return fmt.Errorf("updating address %s: %w", existing.ID, err)
		}
		*a = existing
		return nil
	case err == gorm.ErrRecordNotFound:
		if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
			return fmt.Errorf("creating address: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("fetching address by owner/alias: %w", err)
	}
}

// CommuneByID retrieves a commune by ID.
func (r *ClientRepository) CommuneByID(ctx context.Context, id string) (*models.Commune, error) {
	var c models.Commune
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(fmt.Errorf("fetching commune %s: %w", id, err))
	}
	return &c, nil
}

// CommuneByName retrieves a commune by case-insensitive name.
func (r *ClientRepository) CommuneByName(ctx context.Context, name string) (*models.Commune, error) {
	var c models.Commune
	err := r.db.WithContext(ctx).
		Where("LOWER(name) = LOWER(?)", strings.TrimSpace(name)).
		First(&c).Error
	if err != nil {
		return nil, wrapNotFound(fmt.Errorf("fetching commune by name: %w", err))
	}
	return &c, nil
}

// ListCommunes returns all known communes for the address parser.
func (r *ClientRepository) ListCommunes(ctx context.Context) ([]models.Commune, error) {
	var communes []models.Commune
	if err := r.db.WithContext(ctx).Order("name asc").Find(&communes).Error; err != nil {
		return nil, fmt.Errorf("listing communes: %w", err)
	}
	return communes, nil
}
