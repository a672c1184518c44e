// Package booking implements the reservation-creation transaction: client
// resolution, consecutive-slot acquisition under row locks, and the
// all-or-nothing persistence of the reservation with its slot links and
// service lines.
package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/revitek/scheduling-engine/internal/apperror"
	"github.com/revitek/scheduling-engine/internal/interval"
	"github.com/revitek/scheduling-engine/internal/maskedvalue"
	"github.com/revitek/scheduling-engine/internal/models"
	"github.com/revitek/scheduling-engine/internal/phone"
	"github.com/revitek/scheduling-engine/internal/repository"
	"github.com/revitek/scheduling-engine/pkg/logger"
	"gorm.io/gorm"
)

// ServiceRequest names one service to book and the professional who will
// perform it. All entries must reference the reservation's professional.
type ServiceRequest struct {
	ServiceID      string `json:"serviceId"`
	ProfessionalID string `json:"professionalId"`
}

// ClientDescriptor carries the client identity fields of a booking
// payload. Masked echoes of previously stored values are detected and
// ignored rather than persisted.
type ClientDescriptor struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}

// VehicleInput is the optional vehicle section of a booking payload.
type VehicleInput struct {
	Plate string `json:"plate"`
	Brand string `json:"brand"`
	Model string `json:"model"`
	Year  *int   `json:"year"`
}

// AddressInput is the optional address section of a booking payload. The
// commune resolves by id when given, falling back to case-insensitive name.
type AddressInput struct {
	Alias       string `json:"alias"`
	Street      string `json:"street"`
	Number      string `json:"number"`
	Complement  string `json:"complement"`
	CommuneID   string `json:"communeId"`
	CommuneName string `json:"communeName"`
}

// CreateReservationRequest is the full booking payload.
type CreateReservationRequest struct {
	Client         ClientDescriptor         `json:"client"`
	Vehicle        *VehicleInput            `json:"vehicle"`
	Address        *AddressInput            `json:"address"`
	ProfessionalID string                   `json:"professionalId"`
	Services       []ServiceRequest         `json:"services"`
	SlotID         string                   `json:"slotId"`
	Note           string                   `json:"note"`
	Source         models.ReservationSource `json:"-"`

	// AutoConfirm creates the reservation directly in CONFIRMED, skipping
	// the client-confirmation loop. Used by the chat channel, where the
	// client is the one driving the conversation.
	AutoConfirm bool `json:"-"`
}

// Config carries the business rules the transactor enforces.
type Config struct {
	LeadTimeDays       int
	PhoneCountryPrefix string
	Location           *time.Location
}

// Transactor executes booking transactions.
type Transactor struct {
	db         *gorm.DB
	clientRepo *repository.ClientRepository
	profRepo   *repository.ProfessionalRepository
	svcRepo    *repository.ServiceRepository
	slotRepo   *repository.SlotRepository
	resRepo    *repository.ReservationRepository
	logger     *logger.Logger
	cfg        Config
}

// NewTransactor creates a booking transactor.
func NewTransactor(
	db *gorm.DB,
	clientRepo *repository.ClientRepository,
	profRepo *repository.ProfessionalRepository,
	svcRepo *repository.ServiceRepository,
	slotRepo *repository.SlotRepository,
	resRepo *repository.ReservationRepository,
	logger *logger.Logger,
	cfg Config,
) *Transactor {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Transactor{
		db:         db,
		clientRepo: clientRepo,
		profRepo:   profRepo,
		svcRepo:    svcRepo,
		slotRepo:   slotRepo,
		resRepo:    resRepo,
		logger:     logger,
		cfg:        cfg,
	}
}

// ValidateBookingRules runs the pre-transaction business checks: the
// configured lead time in days (1 means next-day) and the
// one-pending-reservation-per-client limit.
// Callers invoke it before CreateReservation; it takes no locks.
func (t *Transactor) ValidateBookingRules(ctx context.Context, req CreateReservationRequest) error {
	if req.SlotID != "" {
		slot, err := t.slotRepo.GetByID(ctx, req.SlotID)
		if err == nil {
			today := interval.DateOnly(time.Now(), t.cfg.Location)
			earliest := today.AddDate(0, 0, t.cfg.LeadTimeDays)
			slotDay := interval.DateOnly(slot.StartDatetime, t.cfg.Location)
			if slotDay.Before(earliest) {
				return apperror.Newf(apperror.DomainConflict, apperror.CodeLeadTimeViolation,
					"reservations must be made at least %d day(s) in advance", t.cfg.LeadTimeDays)
			}
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	}

	email := strings.ToLower(strings.TrimSpace(req.Client.Email))
	normalizedPhone := phone.Normalize(req.Client.Phone, t.cfg.PhoneCountryPrefix)
	if email != "" || normalizedPhone != "" {
		exists, err := t.resRepo.HasPendingForClient(ctx, email, normalizedPhone)
		if err != nil {
			return err
		}
		if exists {
			return apperror.New(apperror.DomainConflict, apperror.CodePendingDuplicate,
				"a pending reservation already exists for this client")
		}
	}
	return nil
}

// CreateReservation books a contiguous run of slots for one professional
// inside a single transaction. On any error the transaction rolls back and
// no slot is mutated. Concurrent calls racing for the same initial slot
// serialize on its row lock; the loser sees SLOT_UNAVAILABLE.
func (t *Transactor) CreateReservation(ctx context.Context, req CreateReservationRequest) (*models.Reservation, error) {
	var reservationID string

	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		clientRepo := t.clientRepo.WithTx(tx)
		profRepo := t.profRepo.WithTx(tx)
		svcRepo := t.svcRepo.WithTx(tx)
		slotRepo := t.slotRepo.WithTx(tx)
		resRepo := t.resRepo.WithTx(tx)

		client, err := t.resolveClient(ctx, clientRepo, req.Client)
		if err != nil {
			return err
		}
		if client == nil {
			return apperror.New(apperror.Validation, apperror.CodeInvalidInput,
				"a client email is required to book")
		}

		vehicleID, err := t.resolveVehicle(ctx, clientRepo, client, req.Vehicle)
		if err != nil {
			return err
		}
		addressID, err := t.resolveAddress(ctx, clientRepo, client, req.Address)
		if err != nil {
			return err
		}

		// Locks are held from here until commit. Nothing below performs
		// outbound I/O.
		initial, err := slotRepo.LockByID(ctx, req.SlotID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperror.New(apperror.NotFound, apperror.CodeSlotNotFound, "slot not found")
			}
			return err
		}
		if initial.Status != models.SlotAvailable {
			return apperror.New(apperror.DomainConflict, apperror.CodeSlotUnavailable, "slot is not available")
		}
		if initial.ProfessionalID != req.ProfessionalID {
			return apperror.New(apperror.DomainConflict, apperror.CodeSlotUnavailable,
				"slot does not belong to the selected professional")
		}
		for _, sr := range req.Services {
			if sr.ProfessionalID != req.ProfessionalID {
				return apperror.New(apperror.DomainConflict, apperror.CodeServiceProfessionalMismatch,
					"all services must be assigned to the selected professional")
			}
		}

		requiredMinutes, lines, err := t.computeDurations(ctx, profRepo, svcRepo, req)
		if err != nil {
			return err
		}

		base := int(initial.EndDatetime.Sub(initial.StartDatetime).Minutes())
		if base <= 0 {
			return apperror.New(apperror.DomainConflict, apperror.CodeSlotZeroDuration,
				"initial slot has zero duration")
		}
		needed := (requiredMinutes + base - 1) / base
		if needed < 1 {
			needed = 1
		}

		chain := []*models.Slot{initial}
		current := initial
		for i := 1; i < needed; i++ {
			next, err := slotRepo.LockAvailableAt(ctx, req.ProfessionalID, current.EndDatetime)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return apperror.Newf(apperror.DomainConflict, apperror.CodeInsufficientContiguousSlots,
						"not enough consecutive slots: required %d, found %d", needed, i).
						WithDetails(map[string]any{
							"slotsNeeded":     needed,
							"slotsFound":      i,
							"requiredMinutes": requiredMinutes,
						})
				}
				return err
			}
			chain = append(chain, next)
			current = next
		}

		status := models.ReservationPending
		if req.AutoConfirm {
			status = models.ReservationConfirmed
		}
		source := req.Source
		if source == "" {
			source = models.SourceWeb
		}
		res := &models.Reservation{
			ClientID:     client.ID,
			VehicleID:    vehicleID,
			AddressID:    addressID,
			Status:       status,
			Source:       source,
			TotalMinutes: requiredMinutes,
			Note:         req.Note,
		}
		if err := resRepo.Create(ctx, res); err != nil {
			return err
		}
		reservationID = res.ID

		slotIDs := make([]string, len(chain))
		for i, s := range chain {
			slotIDs[i] = s.ID
		}
		if err := slotRepo.MarkReserved(ctx, slotIDs); err != nil {
			return err
		}
		for _, s := range chain {
			link := &models.ReservationSlot{
				ReservationID:  res.ID,
				SlotID:         s.ID,
				ProfessionalID: req.ProfessionalID,
			}
			if err := resRepo.CreateSlotLink(ctx, link); err != nil {
				return err
			}
		}
		for _, line := range lines {
			line.ReservationID = res.ID
			if err := resRepo.CreateServiceLine(ctx, &line); err != nil {
				return err
			}
		}
		return resRepo.AppendHistory(ctx, res.ID, status, "created")
	})
	if err != nil {
		return nil, err
	}

	return t.resRepo.GetByID(ctx, reservationID)
}

// resolveClient upserts a client by email, skipping masked values so a
// payload echoing obfuscated data never corrupts the stored record.
// Returns nil when no usable email is present.
func (t *Transactor) resolveClient(ctx context.Context, clientRepo *repository.ClientRepository, desc ClientDescriptor) (*models.Client, error) {
	email := strings.ToLower(strings.TrimSpace(desc.Email))
	if email == "" || maskedvalue.IsMaskedEmail(email) {
		return nil, nil
	}

	normalizedPhone := phone.Normalize(desc.Phone, t.cfg.PhoneCountryPrefix)
	firstName := strings.TrimSpace(desc.FirstName)
	lastName := strings.TrimSpace(desc.LastName)

	client, err := clientRepo.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		client = &models.Client{
			Email:     email,
			FirstName: firstName,
			LastName:  lastName,
			Phone:     normalizedPhone,
		}
		if err := clientRepo.Create(ctx, client); err != nil {
			return nil, err
		}
		return client, nil
	}
	if err != nil {
		return nil, err
	}

	changed := false
	if firstName != "" && firstName != client.FirstName {
		client.FirstName = firstName
		changed = true
	}
	if lastName != "" && lastName != client.LastName && !maskedvalue.IsMaskedLastName(lastName, client.LastName) {
		client.LastName = lastName
		changed = true
	}
	if normalizedPhone != "" && normalizedPhone != client.Phone {
		client.Phone = normalizedPhone
		changed = true
	}
	if changed {
		if err := clientRepo.Save(ctx, client); err != nil {
			return nil, err
		}
	}
	return client, nil
}

func (t *Transactor) resolveVehicle(ctx context.Context, clientRepo *repository.ClientRepository, client *models.Client, in *VehicleInput) (*string, error) {
	if in == nil {
		return nil, nil
	}
	plate := strings.ToUpper(strings.TrimSpace(in.Plate))
	if plate == "" || maskedvalue.IsMasked(plate) {
		return nil, nil
	}
	vehicle := &models.Vehicle{
		OwnerID: client.ID,
		Plate:   plate,
		Brand:   strings.TrimSpace(in.Brand),
		Model:   strings.TrimSpace(in.Model),
		Year:    in.Year,
	}
	if err := clientRepo.UpsertVehicle(ctx, vehicle); err != nil {
		return nil, err
	}
	return &vehicle.ID, nil
}

func (t *Transactor) resolveAddress(ctx context.Context, clientRepo *repository.ClientRepository, client *models.Client, in *AddressInput) (*string, error) {
	if in == nil {
		return nil, nil
	}
	street := strings.TrimSpace(in.Street)
	if street == "" || maskedvalue.IsMasked(street) {
		return nil, nil
	}
	alias := strings.TrimSpace(in.Alias)
	if alias == "" {
		alias = "Principal"
	}

	var communeID *string
	if in.CommuneID != "" {
		commune, err := clientRepo.CommuneByID(ctx, in.CommuneID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if commune != nil {
			communeID = &commune.ID
		}
	} else if in.CommuneName != "" {
		commune, err := clientRepo.CommuneByName(ctx, in.CommuneName)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if commune != nil {
			communeID = &commune.ID
		}
	}

	addr := &models.Address{
		OwnerID:    client.ID,
		Alias:      alias,
		Street:     street,
		Number:     strings.TrimSpace(in.Number),
		Complement: strings.TrimSpace(in.Complement),
		CommuneID:  communeID,
	}
	if err := clientRepo.UpsertAddress(ctx, addr); err != nil {
		return nil, err
	}
	return &addr.ID, nil
}

// computeDurations sums the effective duration of each requested service
// for the selected professional, in one batched qualification read.
func (t *Transactor) computeDurations(ctx context.Context, profRepo *repository.ProfessionalRepository, svcRepo *repository.ServiceRepository, req CreateReservationRequest) (int, []models.ReservationService, error) {
	if len(req.Services) == 0 {
		return 0, nil, apperror.New(apperror.Validation, apperror.CodeInvalidInput, "at least one service is required")
	}

	serviceIDs := make([]string, len(req.Services))
	for i, sr := range req.Services {
		serviceIDs[i] = sr.ServiceID
	}
	quals, err := profRepo.QualificationsFor(ctx, []string{req.ProfessionalID}, serviceIDs)
	if err != nil {
		return 0, nil, err
	}
	services, err := svcRepo.GetByIDs(ctx, serviceIDs)
	if err != nil {
		return 0, nil, err
	}

	bySvc := make(map[string]models.ProfessionalService, len(quals))
	for _, q := range quals {
		bySvc[q.ServiceID] = q
	}

	total := 0
	lines := make([]models.ReservationService, 0, len(req.Services))
	for _, sr := range req.Services {
		q, ok := bySvc[sr.ServiceID]
		if !ok {
			return 0, nil, apperror.Newf(apperror.DomainConflict, apperror.CodeServiceNotAssigned,
				"service %s is not assigned to the professional or is inactive", sr.ServiceID)
		}
		svc, ok := services[sr.ServiceID]
		if !ok {
			return 0, nil, apperror.Newf(apperror.NotFound, apperror.CodeNotFound, "service %s not found", sr.ServiceID)
		}
		duration := q.EffectiveDurationMinutes(svc)
		total += duration
		lines = append(lines, models.ReservationService{
			ServiceID:                sr.ServiceID,
			ProfessionalID:           sr.ProfessionalID,
			EffectiveDurationMinutes: duration,
		})
	}
	return total, lines, nil
}
