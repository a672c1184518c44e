package chatfsm_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/revitek/scheduling-engine/internal/availability"
	"github.com/revitek/scheduling-engine/internal/booking"
	"github.com/revitek/scheduling-engine/internal/chatfsm"
	"github.com/revitek/scheduling-engine/internal/models"
	"github.com/revitek/scheduling-engine/internal/repository"
	"github.com/revitek/scheduling-engine/pkg/logger"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testPhone = "56986142813"

type fakeChat struct {
	Sent []string
}

func (f *fakeChat) SendText(ctx context.Context, to, body string) error {
	f.Sent = append(f.Sent, body)
	return nil
}

func (f *fakeChat) SendTemplate(ctx context.Context, to, name string, params map[string]string, idempotencyKey string) error {
	f.Sent = append(f.Sent, "template:"+name)
	return nil
}

func (f *fakeChat) last() string {
	if len(f.Sent) == 0 {
		return ""
	}
	return f.Sent[len(f.Sent)-1]
}

func (f *fakeChat) anyContains(sub string) bool {
	for _, s := range f.Sent {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var chatDay = time.Now().AddDate(0, 0, 7).UTC().Truncate(24 * time.Hour)

type ChatMachineTestSuite struct {
	suite.Suite
	DB      *gorm.DB
	Machine *chatfsm.Machine
	Chat    *fakeChat

	svc  models.Service
	prof models.Professional
}

func (s *ChatMachineTestSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	s.Require().NoError(err)
	s.Require().NoError(db.AutoMigrate(
		&models.Client{}, &models.Vehicle{}, &models.Commune{}, &models.Address{},
		&models.Professional{}, &models.ProfessionalService{},
		&models.WorkSchedule{}, &models.Break{}, &models.Service{}, &models.ServiceTimeRule{},
		&models.ScheduleException{}, &models.SlotBlock{}, &models.Slot{},
		&models.Reservation{}, &models.ReservationSlot{}, &models.ReservationService{},
		&models.StatusHistory{}, &models.ChatSession{},
	))
	s.DB = db

	log := logger.New("error")
	clientRepo := repository.NewClientRepository(db)
	profRepo := repository.NewProfessionalRepository(db)
	svcRepo := repository.NewServiceRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	resRepo := repository.NewReservationRepository(db)
	schedRepo := repository.NewScheduleRepository(db)
	sessions := repository.NewChatSessionRepository(nil, db)

	generator := availability.NewGenerator(db, profRepo, schedRepo, slotRepo, nil, log, 60, time.UTC)
	calculator := availability.NewCalculator(profRepo, svcRepo, slotRepo, resRepo, log, time.UTC)
	transactor := booking.NewTransactor(db, clientRepo, profRepo, svcRepo, slotRepo, resRepo, log, booking.Config{
		LeadTimeDays: 1, PhoneCountryPrefix: "56", Location: time.UTC,
	})

	s.Chat = &fakeChat{}
	s.Machine = chatfsm.NewMachine(sessions, svcRepo, clientRepo, profRepo, resRepo,
		calculator, transactor, s.Chat, log, chatfsm.Config{
			Location:           time.UTC,
			MaxFutureDays:      90,
			PhoneCountryPrefix: "56",
			SessionTTL:         time.Hour,
		})

	s.svc = models.Service{Name: "Cambio de aceite", DefaultDurationMinutes: 60, Active: true}
	s.Require().NoError(db.Create(&s.svc).Error)
	s.prof = models.Professional{DisplayName: "Ana", Active: true, AcceptsReservations: true}
	s.Require().NoError(db.Create(&s.prof).Error)
	s.Require().NoError(db.Create(&models.ProfessionalService{
		ProfessionalID: s.prof.ID, ServiceID: s.svc.ID, Active: true}).Error)
	s.Require().NoError(db.Create(&models.WorkSchedule{
		ProfessionalID: s.prof.ID,
		Weekday:        int(chatDay.Weekday()),
		StartTime:      "09:00",
		EndTime:        "18:00",
		Active:         true,
	}).Error)
	s.Require().NoError(db.Create(&models.Commune{Name: "Ñuñoa"}).Error)

	_, err = generator.Regenerate(context.Background(), s.prof.ID, chatDay)
	s.Require().NoError(err)
}

func (s *ChatMachineTestSuite) TearDownTest() {
	sqlDB, err := s.DB.DB()
	s.Require().NoError(err)
	sqlDB.Close()
}

func (s *ChatMachineTestSuite) say(body string) {
	s.Require().NoError(s.Machine.HandleMessage(context.Background(), testPhone, body))
}

func (s *ChatMachineTestSuite) sessionState() models.ChatState {
	var session models.ChatSession
	s.Require().NoError(s.DB.First(&session, "phone = ?", testPhone).Error)
	return session.State
}

func (s *ChatMachineTestSuite) TestMenuAndGlobalCommands() {
	s.say("hola")
	s.True(s.Chat.anyContains("No entendí"))

	s.say("menu")
	s.Equal(models.ChatMenu, s.sessionState())
	s.True(s.Chat.anyContains("Agendar una hora"))

	s.say("1")
	s.Equal(models.ChatSelectService, s.sessionState())
	s.True(s.Chat.anyContains("Cambio de aceite"))

	s.say("cancelar")
	s.Equal(models.ChatMenu, s.sessionState())
}

func (s *ChatMachineTestSuite) TestFullBookingFlowForNewClient() {
	s.say("1")
	s.say("1") // select the only service
	s.Equal(models.ChatSelectDate, s.sessionState())

	s.say(chatDay.Format("02/01/2006"))
	s.Equal(models.ChatSelectTime, s.sessionState())
	s.True(s.Chat.anyContains("Horarios disponibles"))

	s.say("1") // 09:00
	// Unknown phone: the machine asks for an email first.
	s.Equal(models.ChatWaitingForEmail, s.sessionState())

	s.say("not-an-email")
	s.Equal(models.ChatWaitingForEmail, s.sessionState())
	s.True(s.Chat.anyContains("no parece válido"))

	s.say("nuevo@example.com")
	s.Equal(models.ChatWaitingForAddr, s.sessionState())

	s.say("Av. Vicuña Mackenna 4927, Depto 3108, Ñuñoa")
	s.Equal(models.ChatMenu, s.sessionState())
	s.True(s.Chat.anyContains("Reserva confirmada"))
	s.True(s.Chat.anyContains("Av. Vicuña Mackenna #4927"))

	// The reservation exists, auto-confirmed, with the parsed address.
	var res models.Reservation
	s.Require().NoError(s.DB.First(&res).Error)
	s.Equal(models.ReservationConfirmed, res.Status)
	s.Equal(models.SourceChat, res.Source)
	s.Require().NotNil(res.AddressID)

	var slot models.Slot
	s.Require().NoError(s.DB.First(&slot,
		"professional_id = ? AND start_datetime = ?", s.prof.ID,
		time.Date(chatDay.Year(), chatDay.Month(), chatDay.Day(), 9, 0, 0, 0, time.UTC)).Error)
	s.Equal(models.SlotReserved, slot.Status)
}

func (s *ChatMachineTestSuite) TestKnownClientSkipsEmail() {
	s.Require().NoError(s.DB.Create(&models.Client{
		Email: "jane@example.com", FirstName: "Jane", Phone: testPhone}).Error)

	s.say("1")
	s.say("1")
	s.say(chatDay.Format("02/01/2006"))
	s.say("2") // 10:00
	s.Equal(models.ChatWaitingForAddr, s.sessionState())
}

func (s *ChatMachineTestSuite) TestDateValidation() {
	s.say("1")
	s.say("1")

	s.say("32/13/2026")
	s.Equal(models.ChatSelectDate, s.sessionState())
	s.True(s.Chat.anyContains("No pude leer esa fecha"))

	yesterday := time.Now().AddDate(0, 0, -1).Format("02/01/2006")
	s.say(yesterday)
	s.Equal(models.ChatSelectDate, s.sessionState())
	s.True(s.Chat.anyContains("ya pasó"))

	tooFar := time.Now().AddDate(0, 0, 120).Format("02/01/2006")
	s.say(tooFar)
	s.Equal(models.ChatSelectDate, s.sessionState())
	s.True(s.Chat.anyContains("Solo agendamos"))
}

func (s *ChatMachineTestSuite) TestQueryReservations() {
	s.say("2")
	s.True(s.Chat.anyContains("No encontré reservas"))

	// Book one, then ask again.
	s.Require().NoError(s.DB.Create(&models.Client{
		Email: "jane@example.com", FirstName: "Jane", Phone: testPhone}).Error)
	s.say("1")
	s.say("1")
	s.say(chatDay.Format("02/01/2006"))
	s.say("1")
	s.say("Los Leones 1200, Ñuñoa")
	s.Require().True(s.Chat.anyContains("Reserva confirmada"), fmt.Sprintf("sent: %v", s.Chat.Sent))

	s.Chat.Sent = nil
	s.say("2")
	s.True(s.Chat.anyContains("Cambio de aceite"))
}

func (s *ChatMachineTestSuite) TestBookingRaceFallsBackPolitely() {
	s.Require().NoError(s.DB.Create(&models.Client{
		Email: "jane@example.com", FirstName: "Jane", Phone: testPhone}).Error)
	s.say("1")
	s.say("1")
	s.say(chatDay.Format("02/01/2006"))
	s.say("1")

	// Another client grabs the offered slot before the address arrives.
	s.Require().NoError(s.DB.Model(&models.Slot{}).
		Where("professional_id = ? AND start_datetime = ?", s.prof.ID,
			time.Date(chatDay.Year(), chatDay.Month(), chatDay.Day(), 9, 0, 0, 0, time.UTC)).
		Update("status", models.SlotReserved).Error)

	s.say("Los Leones 1200, Ñuñoa")
	s.Equal(models.ChatMenu, s.sessionState())
	s.True(s.Chat.anyContains("No pude completar la reserva"))
}

func TestChatMachineTestSuite(t *testing.T) {
	suite.Run(t, new(ChatMachineTestSuite))
}
