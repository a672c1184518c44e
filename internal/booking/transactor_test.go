package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/revitek/scheduling-engine/internal/apperror"
	"github.com/revitek/scheduling-engine/internal/availability"
	"github.com/revitek/scheduling-engine/internal/booking"
	"github.com/revitek/scheduling-engine/internal/models"
	"github.com/revitek/scheduling-engine/internal/repository"
	"github.com/revitek/scheduling-engine/pkg/logger"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var bookingDay = time.Now().AddDate(0, 0, 7).UTC().Truncate(24 * time.Hour)

type BookingTestSuite struct {
	suite.Suite
	DB         *gorm.DB
	Transactor *booking.Transactor
	Generator  *availability.Generator

	svc60  models.Service
	svc120 models.Service
	prof   models.Professional
}

func (s *BookingTestSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	s.Require().NoError(err)
	s.Require().NoError(db.AutoMigrate(
		&models.Client{}, &models.Vehicle{}, &models.Commune{}, &models.Address{},
		&models.Professional{}, &models.ProfessionalService{},
		&models.WorkSchedule{}, &models.Break{}, &models.Service{}, &models.ServiceTimeRule{},
		&models.ScheduleException{}, &models.SlotBlock{}, &models.Slot{},
		&models.Reservation{}, &models.ReservationSlot{}, &models.ReservationService{},
		&models.StatusHistory{},
	))
	s.DB = db

	log := logger.New("error")
	clientRepo := repository.NewClientRepository(db)
	profRepo := repository.NewProfessionalRepository(db)
	svcRepo := repository.NewServiceRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	resRepo := repository.NewReservationRepository(db)
	schedRepo := repository.NewScheduleRepository(db)

	s.Generator = availability.NewGenerator(db, profRepo, schedRepo, slotRepo, nil, log, 60, time.UTC)
	s.Transactor = booking.NewTransactor(db, clientRepo, profRepo, svcRepo, slotRepo, resRepo, log, booking.Config{
		LeadTimeDays:       1,
		PhoneCountryPrefix: "56",
		Location:           time.UTC,
	})

	s.svc60 = models.Service{Name: "Oil change", DefaultDurationMinutes: 60, Active: true}
	s.Require().NoError(db.Create(&s.svc60).Error)
	s.svc120 = models.Service{Name: "Full service", DefaultDurationMinutes: 120, Active: true}
	s.Require().NoError(db.Create(&s.svc120).Error)

	s.prof = models.Professional{DisplayName: "Ana", Active: true, AcceptsReservations: true}
	s.Require().NoError(db.Create(&s.prof).Error)
	for _, svc := range []models.Service{s.svc60, s.svc120} {
		ps := models.ProfessionalService{ProfessionalID: s.prof.ID, ServiceID: svc.ID, Active: true}
		s.Require().NoError(db.Create(&ps).Error)
	}
	ws := models.WorkSchedule{
		ProfessionalID: s.prof.ID,
		Weekday:        int(bookingDay.Weekday()),
		StartTime:      "09:00",
		EndTime:        "18:00",
		Active:         true,
	}
	s.Require().NoError(db.Create(&ws).Error)

	_, err = s.Generator.Regenerate(context.Background(), s.prof.ID, bookingDay)
	s.Require().NoError(err)
}

func (s *BookingTestSuite) TearDownTest() {
	sqlDB, err := s.DB.DB()
	s.Require().NoError(err)
	sqlDB.Close()
}

func (s *BookingTestSuite) slotAt(hour int) models.Slot {
	var slot models.Slot
	s.Require().NoError(s.DB.First(&slot,
		"professional_id = ? AND start_datetime = ?", s.prof.ID,
		time.Date(bookingDay.Year(), bookingDay.Month(), bookingDay.Day(), hour, 0, 0, 0, time.UTC)).Error)
	return slot
}

func (s *BookingTestSuite) request(svc models.Service, slotID string) booking.CreateReservationRequest {
	return booking.CreateReservationRequest{
		Client: booking.ClientDescriptor{
			Email:     "jane@example.com",
			FirstName: "Jane",
			LastName:  "Pérez",
			Phone:     "986142813",
		},
		ProfessionalID: s.prof.ID,
		Services:       []booking.ServiceRequest{{ServiceID: svc.ID, ProfessionalID: s.prof.ID}},
		SlotID:         slotID,
		Note:           "ring the bell",
	}
}

func (s *BookingTestSuite) TestCreateReservationSingleSlot() {
	slot := s.slotAt(10)
	res, err := s.Transactor.CreateReservation(context.Background(), s.request(s.svc60, slot.ID))
	s.Require().NoError(err)

	s.Equal(models.ReservationPending, res.Status)
	s.Equal(60, res.TotalMinutes)
	s.Require().Len(res.Slots, 1)
	s.Require().Len(res.Services, 1)
	s.Equal(60, res.Services[0].EffectiveDurationMinutes)
	s.Require().NotNil(res.Client)
	s.Equal("jane@example.com", res.Client.Email)
	s.Equal("56986142813", res.Client.Phone)

	var reserved models.Slot
	s.Require().NoError(s.DB.First(&reserved, "id = ?", slot.ID).Error)
	s.Equal(models.SlotReserved, reserved.Status)

	var history []models.StatusHistory
	s.Require().NoError(s.DB.Find(&history, "reservation_id = ?", res.ID).Error)
	s.Require().Len(history, 1)
	s.Equal(models.ReservationPending, history[0].Status)
}

func (s *BookingTestSuite) TestCreateReservationChainsConsecutiveSlots() {
	slot := s.slotAt(15)
	res, err := s.Transactor.CreateReservation(context.Background(), s.request(s.svc120, slot.ID))
	s.Require().NoError(err)

	s.Equal(120, res.TotalMinutes)
	s.Require().Len(res.Slots, 2)

	for _, hour := range []int{15, 16} {
		got := s.slotAt(hour)
		s.Equal(models.SlotReserved, got.Status)
	}
	// 17:00 was not consumed.
	s.Equal(models.SlotAvailable, s.slotAt(17).Status)
}

func (s *BookingTestSuite) TestCreateReservationInsufficientChain() {
	// A 120-minute service anchored at 17:00 needs an 18:00 slot that
	// doesn't exist.
	slot := s.slotAt(17)
	_, err := s.Transactor.CreateReservation(context.Background(), s.request(s.svc120, slot.ID))
	s.Require().Error(err)
	s.True(apperror.IsCode(err, apperror.CodeInsufficientContiguousSlots))

	// Nothing was mutated.
	s.Equal(models.SlotAvailable, s.slotAt(17).Status)
	var count int64
	s.DB.Model(&models.Reservation{}).Count(&count)
	s.Zero(count)
}

func (s *BookingTestSuite) TestCreateReservationSlotTaken() {
	slot := s.slotAt(10)
	_, err := s.Transactor.CreateReservation(context.Background(), s.request(s.svc60, slot.ID))
	s.Require().NoError(err)

	req := s.request(s.svc60, slot.ID)
	req.Client.Email = "other@example.com"
	_, err = s.Transactor.CreateReservation(context.Background(), req)
	s.Require().Error(err)
	s.True(apperror.IsCode(err, apperror.CodeSlotUnavailable))
}

func (s *BookingTestSuite) TestCreateReservationServiceProfessionalMismatch() {
	other := models.Professional{DisplayName: "Bruno", Active: true, AcceptsReservations: true}
	s.Require().NoError(s.DB.Create(&other).Error)

	req := s.request(s.svc60, s.slotAt(10).ID)
	req.Services[0].ProfessionalID = other.ID
	_, err := s.Transactor.CreateReservation(context.Background(), req)
	s.Require().Error(err)
	s.True(apperror.IsCode(err, apperror.CodeServiceProfessionalMismatch))
}

func (s *BookingTestSuite) TestCreateReservationServiceNotAssigned() {
	orphan := models.Service{Name: "Detailing", DefaultDurationMinutes: 90, Active: true}
	s.Require().NoError(s.DB.Create(&orphan).Error)

	req := s.request(orphan, s.slotAt(10).ID)
	_, err := s.Transactor.CreateReservation(context.Background(), req)
	s.Require().Error(err)
	s.True(apperror.IsCode(err, apperror.CodeServiceNotAssigned))
}

func (s *BookingTestSuite) TestCreateReservationUsesDurationOverride() {
	// Ana performs the 120-minute service in 60 minutes.
	override := 60
	s.Require().NoError(s.DB.Model(&models.ProfessionalService{}).
		Where("professional_id = ? AND service_id = ?", s.prof.ID, s.svc120.ID).
		Update("duration_override_minutes", override).Error)

	res, err := s.Transactor.CreateReservation(context.Background(), s.request(s.svc120, s.slotAt(10).ID))
	s.Require().NoError(err)
	s.Equal(60, res.TotalMinutes)
	s.Len(res.Slots, 1)
}

func (s *BookingTestSuite) TestMaskedClientFieldsAreNotPersisted() {
	first, err := s.Transactor.CreateReservation(context.Background(), s.request(s.svc60, s.slotAt(10).ID))
	s.Require().NoError(err)

	// A later payload echoes masked values back.
	req := s.request(s.svc60, s.slotAt(11).ID)
	req.Client.LastName = "P."
	req.Vehicle = &booking.VehicleInput{Plate: "AB**12"}
	req.Address = &booking.AddressInput{Street: "Av. ***"}
	second, err := s.Transactor.CreateReservation(context.Background(), req)
	s.Require().NoError(err)

	s.Equal(first.ClientID, second.ClientID)
	var stored models.Client
	s.Require().NoError(s.DB.First(&stored, "id = ?", second.ClientID).Error)
	s.Equal("Pérez", stored.LastName)
	s.Nil(second.VehicleID)
	s.Nil(second.AddressID)
}

func (s *BookingTestSuite) TestVehicleAndAddressUpsert() {
	year := 2019
	req := s.request(s.svc60, s.slotAt(10).ID)
	req.Vehicle = &booking.VehicleInput{Plate: "abcd12", Brand: "Toyota", Model: "Yaris", Year: &year}
	commune := models.Commune{Name: "Ñuñoa"}
	s.Require().NoError(s.DB.Create(&commune).Error)
	req.Address = &booking.AddressInput{Street: "Los Leones", Number: "1200", CommuneName: "Ñuñoa"}

	res, err := s.Transactor.CreateReservation(context.Background(), req)
	s.Require().NoError(err)

	s.Require().NotNil(res.Vehicle)
	s.Equal("ABCD12", res.Vehicle.Plate)
	s.Require().NotNil(res.Address)
	s.Equal("Principal", res.Address.Alias)
	s.Require().NotNil(res.Address.CommuneID)
	s.Equal(commune.ID, *res.Address.CommuneID)
}

func (s *BookingTestSuite) TestValidateBookingRulesLeadTime() {
	// Create a slot for today; booking it violates the next-day rule.
	today := time.Now().UTC().Truncate(24 * time.Hour)
	slot := models.Slot{
		ProfessionalID: s.prof.ID,
		Date:           today.Format("2006-01-02"),
		StartDatetime:  today.Add(10 * time.Hour),
		EndDatetime:    today.Add(11 * time.Hour),
		Status:         models.SlotAvailable,
	}
	s.Require().NoError(s.DB.Create(&slot).Error)

	err := s.Transactor.ValidateBookingRules(context.Background(), s.request(s.svc60, slot.ID))
	s.Require().Error(err)
	s.True(apperror.IsCode(err, apperror.CodeLeadTimeViolation))
}

func (s *BookingTestSuite) TestValidateBookingRulesPendingDuplicate() {
	_, err := s.Transactor.CreateReservation(context.Background(), s.request(s.svc60, s.slotAt(10).ID))
	s.Require().NoError(err)

	// Same email, different casing.
	req := s.request(s.svc60, s.slotAt(11).ID)
	req.Client.Email = "Jane@Example.com"
	err = s.Transactor.ValidateBookingRules(context.Background(), req)
	s.Require().Error(err)
	s.True(apperror.IsCode(err, apperror.CodePendingDuplicate))

	// Different email but same phone still matches.
	req.Client.Email = "j2@example.com"
	err = s.Transactor.ValidateBookingRules(context.Background(), req)
	s.Require().Error(err)
	s.True(apperror.IsCode(err, apperror.CodePendingDuplicate))

	// A different client passes.
	req.Client.Email = "free@example.com"
	req.Client.Phone = "987654321"
	s.NoError(s.Transactor.ValidateBookingRules(context.Background(), req))
}

func (s *BookingTestSuite) TestAutoConfirmForChatChannel() {
	req := s.request(s.svc60, s.slotAt(10).ID)
	req.Source = models.SourceChat
	req.AutoConfirm = true
	res, err := s.Transactor.CreateReservation(context.Background(), req)
	s.Require().NoError(err)
	s.Equal(models.ReservationConfirmed, res.Status)
	s.Equal(models.SourceChat, res.Source)
}

func TestBookingTestSuite(t *testing.T) {
	suite.Run(t, new(BookingTestSuite))
}
