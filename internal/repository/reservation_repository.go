package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/revitek/scheduling-engine/internal/models"
	"gorm.io/gorm"
)

// ReservationRepository handles Reservation persistence together with its
// slot links, service lines and status history.
type ReservationRepository struct {
	db *gorm.DB
}

// NewReservationRepository creates a new reservation repository.
func NewReservationRepository(db *gorm.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *ReservationRepository) WithTx(tx *gorm.DB) *ReservationRepository {
	return &ReservationRepository{db: tx}
}

// Create inserts a new reservation row.
func (r *ReservationRepository) Create(ctx context.Context, res *models.Reservation) error {
	if err := r.db.WithContext(ctx).Create(res).Error; err != nil {
		return fmt.Errorf("creating reservation: %w", err)
	}
	return nil
}

// GetByID retrieves a reservation with its slots (and their slot rows),
// services and related client/vehicle/address preloaded.
func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	var res models.Reservation
	err := r.db.WithContext(ctx).
		Preload("Slots").
		Preload("Slots.Slot").
		Preload("Services").
		Preload("Services.Service").
		Preload("Client").
		Preload("Vehicle").
		Preload("Address").
		Preload("Address.Commune").
		First(&res, "id = ?", id).Error
	if err != nil {
		return nil, wrapNotFound(fmt.Errorf("fetching reservation %s: %w", id, err))
	}
	return &res, nil
}

// GetByToken retrieves, without locking, the reservation carrying a
// confirmation token, fully preloaded for the confirmation page.
func (r *ReservationRepository) GetByToken(ctx context.Context, token string) (*models.Reservation, error) {
	var res models.Reservation
	err := r.db.WithContext(ctx).
		Preload("Slots").
		Preload("Slots.Slot").
		Preload("Services").
		Preload("Services.Service").
		Preload("Client").
		Preload("Vehicle").
		Preload("Address").
		Preload("Address.Commune").
		First(&res, "confirmation_token = ?", token).Error
	if err != nil {
		return nil, wrapNotFound(fmt.Errorf("fetching reservation by token: %w", err))
	}
	return &res, nil
}

// LockByID locks a reservation row for update. Must run in a transaction.
func (r *ReservationRepository) LockByID(ctx context.Context, id string) (*models.Reservation, error) {
	var res models.Reservation
	err := lockForUpdate(r.db.WithContext(ctx)).
		First(&res, "id = ?", id).Error
	if err != nil {
		return nil, wrapNotFound(fmt.Errorf("locking reservation %s: %w", id, err))
	}
	return &res, nil
}

// LockByToken locks the reservation carrying the given confirmation token.
func (r *ReservationRepository) LockByToken(ctx context.Context, token string) (*models.Reservation, error) {
	var res models.Reservation
	err := lockForUpdate(r.db.WithContext(ctx)).
		First(&res, "confirmation_token = ?", token).Error
	if err != nil {
		return nil, wrapNotFound(fmt.Errorf("locking reservation by token: %w", err))
	}
	return &res, nil
}

// Save persists changes to a reservation row.
func (r *ReservationRepository) Save(ctx context.Context, res *models.Reservation) error {
	if err := r.db.WithContext(ctx).Save(res).Error; err != nil {
		return fmt.Errorf("saving reservation %s: %w", res.ID, err)
	}
	return nil
}

// CreateSlotLink inserts a ReservationSlot link row.
func (r *ReservationRepository) CreateSlotLink(ctx context.Context, link *models.ReservationSlot) error {
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		return fmt.Errorf("creating reservation slot link: %w", err)
	}
	return nil
}

// CreateServiceLine inserts a ReservationService row.
func (r *ReservationRepository) CreateServiceLine(ctx context.Context, line *models.ReservationService) error {
	if err := r.db.WithContext(ctx).Create(line).Error; err != nil {
		return fmt.Errorf("creating reservation service line: %w", err)
	}
	return nil
}

// AppendHistory records a status transition. History rows are append-only.
func (r *ReservationRepository) AppendHistory(ctx context.Context, reservationID string, status models.ReservationStatus, note string) error {
	entry := models.StatusHistory{
		ReservationID: reservationID,
		Status:        status,
		Note:          note,
	}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("appending status history for reservation %s: %w", reservationID, err)
	}
	return nil
}

// HistoryFor returns the ordered status trail of a reservation.
func (r *ReservationRepository) HistoryFor(ctx context.Context, reservationID string) ([]models.StatusHistory, error) {
	var entries []models.StatusHistory
	err := r.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		Order("created_at asc").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("listing status history for reservation %s: %w", reservationID, err)
	}
	return entries, nil
}

// SlotLinksFor returns the reservation's slot links with slot rows
// preloaded, ordered by slot start.
func (r *ReservationRepository) SlotLinksFor(ctx context.Context, reservationID string) ([]models.ReservationSlot, error) {
	var links []models.ReservationSlot
	err := r.db.WithContext(ctx).
		Preload("Slot").
		Joins("JOIN slots ON slots.id = reservation_slots.slot_id").
		Where("reservation_slots.reservation_id = ?", reservationID).
		Order("slots.start_datetime asc").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("listing slot links for reservation %s: %w", reservationID, err)
	}
	return links, nil
}

// DailyLoads counts, per professional, the distinct reservations in an
// active status holding at least one slot on the given date. The result
// orders offer preference between professionals with equal availability.
func (r *ReservationRepository) DailyLoads(ctx context.Context, professionalIDs []string, date time.Time) (map[string]int, error) {
	loads := make(map[string]int, len(professionalIDs))
	if len(professionalIDs) == 0 {
		return loads, nil
	}

	type row struct {
		ProfessionalID string
		N              int
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.ReservationSlot{}).
		Select("reservation_slots.professional_id as professional_id, COUNT(DISTINCT reservation_slots.reservation_id) as n").
		Joins("JOIN slots ON slots.id = reservation_slots.slot_id").
		Joins("JOIN reservations ON reservations.id = reservation_slots.reservation_id").
		Where("slots.date = ? AND reservation_slots.professional_id IN ? AND reservations.status IN ?",
			date.Format("2006-01-02"), professionalIDs, models.ActiveReservationStatuses).
		Group("reservation_slots.professional_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting daily loads on %s: %w", date, err)
	}
	for _, row := range rows {
		loads[row.ProfessionalID] = row.N
	}
	return loads, nil
}

// HasPendingForClient reports whether a PENDING reservation already exists
// for a client matched by email (case-insensitive) or by phone.
func (r *ReservationRepository) HasPendingForClient(ctx context.Context, email, phone string) (bool, error) {
	if email == "" && phone == "" {
		return false, nil
	}
	q := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Joins("JOIN clients ON clients.id = reservations.client_id").
		Where("reservations.status = ?", models.ReservationPending)

	switch {
	case email != "" && phone != "":
		q = q.Where("LOWER(clients.email) = LOWER(?) OR clients.phone = ?", email, phone)
	case email != "":
		q = q.Where("LOWER(clients.email) = LOWER(?)", email)
	default:
		q = q.Where("clients.phone = ?", phone)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("checking pending reservations: %w", err)
	}
	return count > 0, nil
}

// ActiveForClient lists a client's reservations in non-terminal states,
// slots preloaded, oldest first. Backs the chat channel's "my
// reservations" query.
func (r *ReservationRepository) ActiveForClient(ctx context.Context, clientID string) ([]models.Reservation, error) {
	var out []models.Reservation
	err := r.db.WithContext(ctx).
		Preload("Slots").
		Preload("Slots.Slot").
		Preload("Services").
		Preload("Services.Service").
		Where("client_id = ? AND status IN ?", clientID, models.ActiveReservationStatuses).
		Order("created_at asc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing active reservations for client %s: %w", clientID, err)
	}
	return out, nil
}

// ExpiredWaitingIDs lists reservations stuck in WAITING_CLIENT whose token
// expired before now. The sweeper locks each row individually afterwards,
// so a stale read here is harmless.
func (r *ReservationRepository) ExpiredWaitingIDs(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("status = ? AND token_expires_at < ?", models.ReservationWaitingClient, now).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("listing expired waiting reservations: %w", err)
	}
	return ids, nil
}
