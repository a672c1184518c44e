package availability_test

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/revitek/scheduling-engine/internal/availability"
	"github.com/revitek/scheduling-engine/internal/models"
	"github.com/revitek/scheduling-engine/internal/repository"
	"github.com/revitek/scheduling-engine/pkg/logger"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// tuesday is a fixed future weekday (weekday 2) all scenarios book against.
var tuesday = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

type AvailabilityTestSuite struct {
	suite.Suite
	DB         *gorm.DB
	Generator  *availability.Generator
	Calculator *availability.Calculator
	ProfRepo   *repository.ProfessionalRepository
	SvcRepo    *repository.ServiceRepository
	SlotRepo   *repository.SlotRepository
	ResRepo    *repository.ReservationRepository
}

func (s *AvailabilityTestSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	s.Require().NoError(err)
	s.Require().NoError(db.AutoMigrate(
		&models.Client{}, &models.Professional{}, &models.ProfessionalService{},
		&models.WorkSchedule{}, &models.Break{}, &models.Service{}, &models.ServiceTimeRule{},
		&models.ScheduleException{}, &models.SlotBlock{}, &models.Slot{},
		&models.Reservation{}, &models.ReservationSlot{}, &models.ReservationService{},
		&models.StatusHistory{},
	))
	s.DB = db

	log := logger.New("error")
	s.ProfRepo = repository.NewProfessionalRepository(db)
	s.SvcRepo = repository.NewServiceRepository(db)
	s.SlotRepo = repository.NewSlotRepository(db)
	s.ResRepo = repository.NewReservationRepository(db)
	schedRepo := repository.NewScheduleRepository(db)

	s.Generator = availability.NewGenerator(db, s.ProfRepo, schedRepo, s.SlotRepo, nil, log, 60, time.UTC)
	s.Calculator = availability.NewCalculator(s.ProfRepo, s.SvcRepo, s.SlotRepo, s.ResRepo, log, time.UTC)
}

func (s *AvailabilityTestSuite) TearDownTest() {
	sqlDB, err := s.DB.DB()
	s.Require().NoError(err)
	sqlDB.Close()
}

// seedProfessional creates an active professional working 09:00-18:00 on
// the test weekday, qualified for the given services.
func (s *AvailabilityTestSuite) seedProfessional(name string, services ...models.Service) models.Professional {
	prof := models.Professional{DisplayName: name, Active: true, AcceptsReservations: true}
	s.Require().NoError(s.DB.Create(&prof).Error)
	ws := models.WorkSchedule{
		ProfessionalID: prof.ID,
		Weekday:        int(tuesday.Weekday()),
		StartTime:      "09:00",
		EndTime:        "18:00",
		Active:         true,
	}
	s.Require().NoError(s.DB.Create(&ws).Error)
	for _, svc := range services {
		ps := models.ProfessionalService{ProfessionalID: prof.ID, ServiceID: svc.ID, Active: true}
		s.Require().NoError(s.DB.Create(&ps).Error)
	}
	return prof
}

func (s *AvailabilityTestSuite) seedService(name string, minutes int) models.Service {
	svc := models.Service{Name: name, DefaultDurationMinutes: minutes, Active: true}
	s.Require().NoError(s.DB.Create(&svc).Error)
	return svc
}

func (s *AvailabilityTestSuite) TestRegenerateFullDay() {
	svc := s.seedService("Oil change", 60)
	prof := s.seedProfessional("Ana", svc)

	slots, err := s.Generator.Regenerate(context.Background(), prof.ID, tuesday)
	s.Require().NoError(err)
	s.Len(slots, 9) // 09:00 .. 17:00 starts

	s.Equal("09:00", slots[0].StartDatetime.UTC().Format("15:04"))
	s.Equal("17:00", slots[len(slots)-1].StartDatetime.UTC().Format("15:04"))
	for _, slot := range slots {
		s.Equal(models.SlotAvailable, slot.Status)
		s.Equal(time.Hour, slot.EndDatetime.Sub(slot.StartDatetime))
	}
}

func (s *AvailabilityTestSuite) TestRegenerateSkipsBreaksExceptionsAndBlocks() {
	svc := s.seedService("Oil change", 60)
	prof := s.seedProfessional("Ana", svc)

	var ws models.WorkSchedule
	s.Require().NoError(s.DB.First(&ws, "professional_id = ?", prof.ID).Error)
	br := models.Break{WorkScheduleID: ws.ID, StartTime: "13:00", EndTime: "14:00"}
	s.Require().NoError(s.DB.Create(&br).Error)

	ex := models.ScheduleException{
		ProfessionalID: prof.ID,
		Date:           tuesday.Format("2006-01-02"),
		StartDatetime:  time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		EndDatetime:    time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		Reason:         "training",
	}
	s.Require().NoError(s.DB.Create(&ex).Error)

	bl := models.SlotBlock{
		ProfessionalID: prof.ID,
		Date:           tuesday.Format("2006-01-02"),
		StartDatetime:  time.Date(2026, 3, 10, 16, 30, 0, 0, time.UTC),
		EndDatetime:    time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC),
		Reason:         "errand",
	}
	s.Require().NoError(s.DB.Create(&bl).Error)

	slots, err := s.Generator.Regenerate(context.Background(), prof.ID, tuesday)
	s.Require().NoError(err)

	starts := make(map[string]bool)
	for _, slot := range slots {
		starts[slot.StartDatetime.UTC().Format("15:04")] = true
	}
	s.False(starts["09:00"]) // exception
	s.False(starts["13:00"]) // break
	// The 16:30-17:00 block overlaps the 16:00 raw slot; intervals are
	// half-open, so the 17:00 slot survives.
	s.False(starts["16:00"])
	s.True(starts["17:00"])
	s.True(starts["10:00"])
	// Remaining starts: 10, 11, 12, 14, 15, 17.
	s.Len(slots, 6)
}

func (s *AvailabilityTestSuite) TestRegenerateNoScheduleClearsAvailable() {
	svc := s.seedService("Oil change", 60)
	prof := s.seedProfessional("Ana", svc)

	_, err := s.Generator.Regenerate(context.Background(), prof.ID, tuesday)
	s.Require().NoError(err)

	// Monday has no schedule row.
	monday := tuesday.AddDate(0, 0, -1)
	stray := models.Slot{
		ProfessionalID: prof.ID,
		Date:           monday.Format("2006-01-02"),
		StartDatetime:  time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC),
		EndDatetime:    time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC),
		Status:         models.SlotAvailable,
	}
	s.Require().NoError(s.DB.Create(&stray).Error)

	slots, err := s.Generator.Regenerate(context.Background(), prof.ID, monday)
	s.Require().NoError(err)
	s.Empty(slots)

	var count int64
	s.DB.Model(&models.Slot{}).Where("date = ?", monday.Format("2006-01-02")).Count(&count)
	s.Zero(count)
}

func (s *AvailabilityTestSuite) TestRegenerateIsIdempotent() {
	svc := s.seedService("Oil change", 60)
	prof := s.seedProfessional("Ana", svc)

	first, err := s.Generator.Regenerate(context.Background(), prof.ID, tuesday)
	s.Require().NoError(err)
	second, err := s.Generator.Regenerate(context.Background(), prof.ID, tuesday)
	s.Require().NoError(err)

	s.Equal(len(first), len(second))
	for i := range first {
		s.Equal(first[i].ID, second[i].ID)
		s.True(first[i].StartDatetime.Equal(second[i].StartDatetime))
	}
}

func (s *AvailabilityTestSuite) TestRegenerateReconciliation() {
	svc := s.seedService("Oil change", 60)
	prof := s.seedProfessional("Ana", svc)

	_, err := s.Generator.Regenerate(context.Background(), prof.ID, tuesday)
	s.Require().NoError(err)

	// A schedule shrink invalidates late slots. One of them is referenced
	// by an old reservation and must be demoted instead of deleted.
	s.Require().NoError(s.DB.Model(&models.WorkSchedule{}).
		Where("professional_id = ?", prof.ID).
		Update("end_time", "12:00").Error)

	var lateSlot models.Slot
	s.Require().NoError(s.DB.First(&lateSlot,
		"professional_id = ? AND start_datetime = ?", prof.ID,
		time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)).Error)

	clientRow := models.Client{Email: "old@example.com"}
	s.Require().NoError(s.DB.Create(&clientRow).Error)
	res := models.Reservation{ClientID: clientRow.ID, Status: models.ReservationCancelled, TotalMinutes: 60}
	s.Require().NoError(s.DB.Create(&res).Error)
	link := models.ReservationSlot{ReservationID: res.ID, SlotID: lateSlot.ID, ProfessionalID: prof.ID}
	s.Require().NoError(s.DB.Create(&link).Error)

	slots, err := s.Generator.Regenerate(context.Background(), prof.ID, tuesday)
	s.Require().NoError(err)
	s.Len(slots, 3) // 09:00, 10:00, 11:00

	var kept models.Slot
	s.Require().NoError(s.DB.First(&kept, "id = ?", lateSlot.ID).Error)
	s.Equal(models.SlotBlocked, kept.Status)

	var gone int64
	s.DB.Model(&models.Slot{}).
		Where("professional_id = ? AND start_datetime > ? AND id <> ?",
			prof.ID, time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC), lateSlot.ID).
		Count(&gone)
	s.Zero(gone)
}

func (s *AvailabilityTestSuite) TestAvailabilitySingleService() {
	svc := s.seedService("Oil change", 60)
	prof := s.seedProfessional("Ana", svc)
	_, err := s.Generator.Regenerate(context.Background(), prof.ID, tuesday)
	s.Require().NoError(err)

	offers, err := s.Calculator.Availability(context.Background(), []string{svc.ID}, tuesday)
	s.Require().NoError(err)
	s.Len(offers, 9)
	s.Equal("09:00", offers[0].Start.Format("15:04"))
	s.Equal("17:00", offers[8].Start.Format("15:04"))
	s.Equal([]string{prof.ID}, offers[0].ProfessionalIDs)
	s.Len(offers[0].SlotIDs, 1)
}

func (s *AvailabilityTestSuite) TestAvailabilityTwoSlotChain() {
	svc := s.seedService("Full service", 120)
	prof := s.seedProfessional("Ana", svc)
	_, err := s.Generator.Regenerate(context.Background(), prof.ID, tuesday)
	s.Require().NoError(err)

	offers, err := s.Calculator.Availability(context.Background(), []string{svc.ID}, tuesday)
	s.Require().NoError(err)
	// 17:00 cannot anchor a 2-hour run inside a 09:00-18:00 day.
	s.Len(offers, 8)
	s.Equal("16:00", offers[len(offers)-1].Start.Format("15:04"))
}

func (s *AvailabilityTestSuite) TestAvailabilityTimeRuleIntersection() {
	svcC := s.seedService("Inspection", 60)
	svcD := s.seedService("Alignment", 60)
	prof := s.seedProfessional("Ana", svcC, svcD)
	_, err := s.Generator.Regenerate(context.Background(), prof.ID, tuesday)
	s.Require().NoError(err)

	weekday := int(tuesday.Weekday())
	ruleC := models.ServiceTimeRule{ServiceID: svcC.ID, Weekday: weekday,
		AllowedStartTimes: pq.StringArray{"09:00", "11:00", "13:00"}}
	ruleD := models.ServiceTimeRule{ServiceID: svcD.ID, Weekday: weekday,
		AllowedStartTimes: pq.StringArray{"11:00", "13:00", "15:00"}}
	s.Require().NoError(s.DB.Create(&ruleC).Error)
	s.Require().NoError(s.DB.Create(&ruleD).Error)

	offers, err := s.Calculator.Availability(context.Background(), []string{svcC.ID, svcD.ID}, tuesday)
	s.Require().NoError(err)
	s.Len(offers, 2)
	s.Equal("11:00", offers[0].Start.Format("15:04"))
	s.Equal("13:00", offers[1].Start.Format("15:04"))
}

func (s *AvailabilityTestSuite) TestAvailabilityEmptyWhenRuleIntersectionEmpty() {
	svcC := s.seedService("Inspection", 60)
	svcD := s.seedService("Alignment", 60)
	prof := s.seedProfessional("Ana", svcC, svcD)
	_, err := s.Generator.Regenerate(context.Background(), prof.ID, tuesday)
	s.Require().NoError(err)

	weekday := int(tuesday.Weekday())
	s.Require().NoError(s.DB.Create(&models.ServiceTimeRule{
		ServiceID: svcC.ID, Weekday: weekday, AllowedStartTimes: pq.StringArray{"09:00"}}).Error)
	s.Require().NoError(s.DB.Create(&models.ServiceTimeRule{
		ServiceID: svcD.ID, Weekday: weekday, AllowedStartTimes: pq.StringArray{"15:00"}}).Error)

	offers, err := s.Calculator.Availability(context.Background(), []string{svcC.ID, svcD.ID}, tuesday)
	s.Require().NoError(err)
	s.Empty(offers)
}

func (s *AvailabilityTestSuite) TestAvailabilityPrefersLessLoadedProfessional() {
	svc := s.seedService("Oil change", 60)
	profA := s.seedProfessional("Ana", svc)
	profB := s.seedProfessional("Bruno", svc)
	_, err := s.Generator.Regenerate(context.Background(), profA.ID, tuesday)
	s.Require().NoError(err)
	_, err = s.Generator.Regenerate(context.Background(), profB.ID, tuesday)
	s.Require().NoError(err)

	// Give Ana one active reservation on the date.
	clientRow := models.Client{Email: "busy@example.com"}
	s.Require().NoError(s.DB.Create(&clientRow).Error)
	res := models.Reservation{ClientID: clientRow.ID, Status: models.ReservationConfirmed, TotalMinutes: 60}
	s.Require().NoError(s.DB.Create(&res).Error)
	var anaSlot models.Slot
	s.Require().NoError(s.DB.First(&anaSlot,
		"professional_id = ? AND start_datetime = ?", profA.ID,
		time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)).Error)
	s.Require().NoError(s.DB.Model(&anaSlot).Update("status", models.SlotReserved).Error)
	link := models.ReservationSlot{ReservationID: res.ID, SlotID: anaSlot.ID, ProfessionalID: profA.ID}
	s.Require().NoError(s.DB.Create(&link).Error)

	offers, err := s.Calculator.Availability(context.Background(), []string{svc.ID}, tuesday)
	s.Require().NoError(err)
	s.Require().NotEmpty(offers)

	// 10:00 offer: both professionals qualify; Bruno (load 0) comes first.
	var tenAM *availability.Offer
	for i := range offers {
		if offers[i].Start.Format("15:04") == "10:00" {
			tenAM = &offers[i]
			break
		}
	}
	s.Require().NotNil(tenAM)
	s.Equal([]string{profB.ID, profA.ID}, tenAM.ProfessionalIDs)
}

func (s *AvailabilityTestSuite) TestAvailabilityEmptyInputs() {
	offers, err := s.Calculator.Availability(context.Background(), nil, tuesday)
	s.Require().NoError(err)
	s.Empty(offers)

	offers, err = s.Calculator.Availability(context.Background(), []string{"no-such-service"}, tuesday)
	s.Require().NoError(err)
	s.Empty(offers)
}

func TestAvailabilityTestSuite(t *testing.T) {
	suite.Run(t, new(AvailabilityTestSuite))
}
