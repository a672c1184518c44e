package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/revitek/scheduling-engine/internal/apperror"
	"github.com/revitek/scheduling-engine/internal/availability"
	"github.com/revitek/scheduling-engine/internal/booking"
	"github.com/revitek/scheduling-engine/internal/dispatch"
	"github.com/revitek/scheduling-engine/internal/lifecycle"
	"github.com/revitek/scheduling-engine/internal/models"
	"github.com/revitek/scheduling-engine/internal/repository"
	"github.com/revitek/scheduling-engine/pkg/events"
	"github.com/revitek/scheduling-engine/pkg/logger"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type recordedEvent struct {
	Subject string
	Data    interface{}
}

type mockPublisher struct {
	Events []recordedEvent
}

func (m *mockPublisher) Publish(subject string, data interface{}) error {
	m.Events = append(m.Events, recordedEvent{Subject: subject, Data: data})
	return nil
}

func (m *mockPublisher) count(subject string) int {
	n := 0
	for _, e := range m.Events {
		if e.Subject == subject {
			n++
		}
	}
	return n
}

var lifecycleDay = time.Now().AddDate(0, 0, 7).UTC().Truncate(24 * time.Hour)

type LifecycleTestSuite struct {
	suite.Suite
	DB         *gorm.DB
	Controller *lifecycle.Controller
	Transactor *booking.Transactor
	Generator  *availability.Generator
	Calculator *availability.Calculator
	Publisher  *mockPublisher

	svc  models.Service
	prof models.Professional
}

func (s *LifecycleTestSuite) SetupTest() {
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
	s.Publisher = &mockPublisher{}

	clientRepo := repository.NewClientRepository(db)
	profRepo := repository.NewProfessionalRepository(db)
	svcRepo := repository.NewServiceRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	resRepo := repository.NewReservationRepository(db)
	schedRepo := repository.NewScheduleRepository(db)

	s.Generator = availability.NewGenerator(db, profRepo, schedRepo, slotRepo, nil, log, 60, time.UTC)
	s.Calculator = availability.NewCalculator(profRepo, svcRepo, slotRepo, resRepo, log, time.UTC)
	s.Transactor = booking.NewTransactor(db, clientRepo, profRepo, svcRepo, slotRepo, resRepo, log, booking.Config{
		LeadTimeDays: 1, PhoneCountryPrefix: "56", Location: time.UTC,
	})
	dispatcher := dispatch.NewDispatcher(s.Publisher, log)
	s.Controller = lifecycle.NewController(db, resRepo, slotRepo, s.Generator, dispatcher, log, lifecycle.Config{
		ConfirmationTTLEmail: 48 * time.Hour,
		ConfirmationTTLChat:  2 * time.Hour,
		Location:             time.UTC,
	})

	s.svc = models.Service{Name: "Oil change", DefaultDurationMinutes: 60, Active: true}
	s.Require().NoError(db.Create(&s.svc).Error)
	s.prof = models.Professional{DisplayName: "Ana", Active: true, AcceptsReservations: true}
	s.Require().NoError(db.Create(&s.prof).Error)
	ps := models.ProfessionalService{ProfessionalID: s.prof.ID, ServiceID: s.svc.ID, Active: true}
	s.Require().NoError(db.Create(&ps).Error)
	ws := models.WorkSchedule{
		ProfessionalID: s.prof.ID,
		Weekday:        int(lifecycleDay.Weekday()),
		StartTime:      "09:00",
		EndTime:        "18:00",
		Active:         true,
	}
	s.Require().NoError(db.Create(&ws).Error)
	_, err = s.Generator.Regenerate(context.Background(), s.prof.ID, lifecycleDay)
	s.Require().NoError(err)
}

func (s *LifecycleTestSuite) TearDownTest() {
	sqlDB, err := s.DB.DB()
	s.Require().NoError(err)
	sqlDB.Close()
}

func (s *LifecycleTestSuite) book(hour int) *models.Reservation {
	var slot models.Slot
	s.Require().NoError(s.DB.First(&slot,
		"professional_id = ? AND start_datetime = ?", s.prof.ID,
		time.Date(lifecycleDay.Year(), lifecycleDay.Month(), lifecycleDay.Day(), hour, 0, 0, 0, time.UTC)).Error)
	res, err := s.Transactor.CreateReservation(context.Background(), booking.CreateReservationRequest{
		Client:         booking.ClientDescriptor{Email: "jane@example.com", FirstName: "Jane", Phone: "986142813"},
		ProfessionalID: s.prof.ID,
		Services:       []booking.ServiceRequest{{ServiceID: s.svc.ID, ProfessionalID: s.prof.ID}},
		SlotID:         slot.ID,
	})
	s.Require().NoError(err)
	return res
}

func (s *LifecycleTestSuite) reload(id string) models.Reservation {
	var res models.Reservation
	s.Require().NoError(s.DB.First(&res, "id = ?", id).Error)
	return res
}

func (s *LifecycleTestSuite) TestApproveIssuesTokenAndEmitsChatLink() {
	res := s.book(10)
	s.Require().NoError(s.Controller.Approve(context.Background(), res.ID))

	got := s.reload(res.ID)
	s.Equal(models.ReservationWaitingClient, got.Status)
	s.Require().NotNil(got.ConfirmationToken)
	s.NotEmpty(*got.ConfirmationToken)
	s.Require().NotNil(got.TokenExpiresAt)
	ttl := time.Until(*got.TokenExpiresAt)
	s.Greater(ttl, time.Hour)
	s.LessOrEqual(ttl, 2*time.Hour)

	s.Equal(1, s.Publisher.count(events.ConfirmationLinkIssuedEvent))
}

func (s *LifecycleTestSuite) TestApproveRejectsNonPending() {
	res := s.book(10)
	s.Require().NoError(s.Controller.Approve(context.Background(), res.ID))
	err := s.Controller.Approve(context.Background(), res.ID)
	s.Require().Error(err)
	s.Equal(apperror.StateInvalid, apperror.KindOf(err))
}

func (s *LifecycleTestSuite) TestConfirmByToken() {
	res := s.book(10)
	s.Require().NoError(s.Controller.Approve(context.Background(), res.ID))
	tok := *s.reload(res.ID).ConfirmationToken

	ok, reason, id, err := s.Controller.ConfirmByToken(context.Background(), tok)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("confirmed", reason)
	s.Require().NotNil(id)
	s.Equal(res.ID, *id)
	s.Equal(models.ReservationConfirmed, s.reload(res.ID).Status)
	s.Equal(1, s.Publisher.count(events.ReservationConfirmedEvent))

	// Re-posting the same token is idempotent and emits nothing new.
	ok, reason, id, err = s.Controller.ConfirmByToken(context.Background(), tok)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("already_confirmed", reason)
	s.Require().NotNil(id)
	s.Equal(1, s.Publisher.count(events.ReservationConfirmedEvent))
}

func (s *LifecycleTestSuite) TestConfirmByTokenInvalidAndExpired() {
	ok, reason, _, err := s.Controller.ConfirmByToken(context.Background(), "no-such-token")
	s.Require().NoError(err)
	s.False(ok)
	s.Equal("invalid", reason)

	res := s.book(10)
	s.Require().NoError(s.Controller.Approve(context.Background(), res.ID))
	tok := *s.reload(res.ID).ConfirmationToken

	past := time.Now().Add(-time.Second)
	s.Require().NoError(s.DB.Model(&models.Reservation{}).
		Where("id = ?", res.ID).Update("token_expires_at", past).Error)

	ok, reason, _, err = s.Controller.ConfirmByToken(context.Background(), tok)
	s.Require().NoError(err)
	s.False(ok)
	s.Equal("expired", reason)
}

func (s *LifecycleTestSuite) TestCancelReleasesSlotsAndRegenerates() {
	res := s.book(10)
	before, err := s.Calculator.Availability(context.Background(), []string{s.svc.ID}, lifecycleDay)
	s.Require().NoError(err)

	s.Require().NoError(s.Controller.Cancel(context.Background(), res.ID, models.CancelledByClient))

	got := s.reload(res.ID)
	s.Equal(models.ReservationCancelled, got.Status)
	s.Require().NotNil(got.CancelledBy)
	s.Equal(models.CancelledByClient, *got.CancelledBy)

	after, err := s.Calculator.Availability(context.Background(), []string{s.svc.ID}, lifecycleDay)
	s.Require().NoError(err)
	s.Len(after, len(before)+1) // the 10:00 offer is back

	s.Equal(1, s.Publisher.count(events.ReservationCancelledEvent))
}

func (s *LifecycleTestSuite) TestCancelRejectsTerminal() {
	res := s.book(10)
	s.Require().NoError(s.Controller.Cancel(context.Background(), res.ID, models.CancelledByAdmin))
	err := s.Controller.Cancel(context.Background(), res.ID, models.CancelledByAdmin)
	s.Require().Error(err)
	s.Equal(apperror.StateInvalid, apperror.KindOf(err))
}

func (s *LifecycleTestSuite) TestCompletePrematureRejected() {
	res := s.book(10)
	s.Require().NoError(s.Controller.Approve(context.Background(), res.ID))
	tok := *s.reload(res.ID).ConfirmationToken
	_, _, _, err := s.Controller.ConfirmByToken(context.Background(), tok)
	s.Require().NoError(err)

	// The slot is a week out; completing now is premature.
	err = s.Controller.Complete(context.Background(), res.ID)
	s.Require().Error(err)
	s.True(apperror.IsCode(err, apperror.CodePrematureCompletion))
}

func (s *LifecycleTestSuite) TestCompleteAfterStart() {
	res := s.book(10)
	s.Require().NoError(s.Controller.Approve(context.Background(), res.ID))
	tok := *s.reload(res.ID).ConfirmationToken
	_, _, _, err := s.Controller.ConfirmByToken(context.Background(), tok)
	s.Require().NoError(err)

	// Backdate the slot chain to the past.
	past := time.Now().Add(-2 * time.Hour)
	var links []models.ReservationSlot
	s.Require().NoError(s.DB.Find(&links, "reservation_id = ?", res.ID).Error)
	for _, link := range links {
		s.Require().NoError(s.DB.Model(&models.Slot{}).Where("id = ?", link.SlotID).
			Updates(map[string]interface{}{
				"start_datetime": past,
				"end_datetime":   past.Add(time.Hour),
			}).Error)
	}

	s.Require().NoError(s.Controller.Start(context.Background(), res.ID))
	s.Equal(models.ReservationInProgress, s.reload(res.ID).Status)
	s.Require().NoError(s.Controller.Complete(context.Background(), res.ID))
	s.Equal(models.ReservationCompleted, s.reload(res.ID).Status)

	// Terminal: no further transitions.
	err = s.Controller.Cancel(context.Background(), res.ID, models.CancelledByAdmin)
	s.Require().Error(err)
}

func (s *LifecycleTestSuite) TestSweepExpired() {
	res := s.book(10)
	s.Require().NoError(s.Controller.Approve(context.Background(), res.ID))

	past := time.Now().Add(-time.Second)
	s.Require().NoError(s.DB.Model(&models.Reservation{}).
		Where("id = ?", res.ID).Update("token_expires_at", past).Error)

	swept := s.Controller.SweepExpired(context.Background())
	s.Equal(1, swept)

	got := s.reload(res.ID)
	s.Equal(models.ReservationCancelled, got.Status)
	s.Require().NotNil(got.CancelledBy)
	s.Equal(models.CancelledBySystem, *got.CancelledBy)

	// The freed 10:00 slot shows up in availability again.
	offers, err := s.Calculator.Availability(context.Background(), []string{s.svc.ID}, lifecycleDay)
	s.Require().NoError(err)
	found := false
	for _, o := range offers {
		if o.Start.UTC().Format("15:04") == "10:00" {
			found = true
		}
	}
	s.True(found)

	// A second sweep finds nothing.
	s.Zero(s.Controller.SweepExpired(context.Background()))
}

func TestLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(LifecycleTestSuite))
}
