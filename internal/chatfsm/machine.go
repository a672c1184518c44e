// Package chatfsm drives the per-phone booking conversation: a
// deterministic state machine that walks a client from the menu through
// service, date and time selection into a booked reservation, using the
// availability calculator and the booking transactor exactly as a web
// client would. Sessions are loaded and saved without a row lock;
// HandleMessage does not serialize concurrent calls for the same phone.
package chatfsm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/revitek/scheduling-engine/internal/address"
	"github.com/revitek/scheduling-engine/internal/availability"
	"github.com/revitek/scheduling-engine/internal/booking"
	"github.com/revitek/scheduling-engine/internal/dispatch"
	"github.com/revitek/scheduling-engine/internal/models"
	"github.com/revitek/scheduling-engine/internal/phone"
	"github.com/revitek/scheduling-engine/internal/repository"
	"github.com/revitek/scheduling-engine/pkg/logger"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// serviceListCap bounds the numbered service menu.
const serviceListCap = 20

// offerCap bounds the numbered time-slot menu.
const offerCap = 10

// phoneSuffixLen is the subscriber-number suffix used for identity
// matching (Chilean mobile numbers without the 56 9 prefix).
const phoneSuffixLen = 8

// offerRef is the slice of an availability offer the session keeps: the
// preferred professional and their anchor slot.
type offerRef struct {
	Start          string `json:"start"` // "HH:MM"
	Label          string `json:"label"`
	SlotID         string `json:"slotId"`
	ProfessionalID string `json:"professionalId"`
}

// sessionData is the accumulated conversation state, serialized into the
// session row's Data document.
type sessionData struct {
	ServiceID   string     `json:"serviceId,omitempty"`
	ServiceName string     `json:"serviceName,omitempty"`
	Duration    int        `json:"durationMinutes,omitempty"`
	Date        string     `json:"date,omitempty"`        // "2006-01-02"
	DateDisplay string     `json:"dateDisplay,omitempty"` // "DD/MM/YYYY"
	Offers      []offerRef `json:"offers,omitempty"`
	Time        string     `json:"time,omitempty"` // "HH:MM"
	SlotID      string     `json:"slotId,omitempty"`
	ProID       string     `json:"professionalId,omitempty"`
	ProName     string     `json:"professionalName,omitempty"`
	Address     string     `json:"address,omitempty"`
}

// Config carries the machine's business settings.
type Config struct {
	Location           *time.Location
	MaxFutureDays      int
	PhoneCountryPrefix string
	SessionTTL         time.Duration
}

// Machine is the chat session state machine.
type Machine struct {
	sessions   *repository.ChatSessionRepository
	svcRepo    *repository.ServiceRepository
	clientRepo *repository.ClientRepository
	profRepo   *repository.ProfessionalRepository
	resRepo    *repository.ReservationRepository
	calculator *availability.Calculator
	transactor *booking.Transactor
	chat       dispatch.Chat
	logger     *logger.Logger
	cfg        Config
}

// NewMachine creates a chat session machine.
func NewMachine(
	sessions *repository.ChatSessionRepository,
	svcRepo *repository.ServiceRepository,
	clientRepo *repository.ClientRepository,
	profRepo *repository.ProfessionalRepository,
	resRepo *repository.ReservationRepository,
	calculator *availability.Calculator,
	transactor *booking.Transactor,
	chat dispatch.Chat,
	logger *logger.Logger,
	cfg Config,
) *Machine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	return &Machine{
		sessions:   sessions,
		svcRepo:    svcRepo,
		clientRepo: clientRepo,
		profRepo:   profRepo,
		resRepo:    resRepo,
		calculator: calculator,
		transactor: transactor,
		chat:       chat,
		logger:     logger,
		cfg:        cfg,
	}
}

// HandleMessage consumes one inbound message for a phone and advances the
// conversation. Malformed input never errors at the caller: the current
// state replies with a polite re-prompt and keeps the session where it is.
// Only a session in an unrecognised state is reset to the menu.
func (m *Machine) HandleMessage(ctx context.Context, phoneNumber, body string) error {
	session, err := m.sessions.Get(ctx, phoneNumber)
	if errors.Is(err, repository.ErrNotFound) {
		session = &models.ChatSession{Phone: phoneNumber, State: models.ChatMenu}
	} else if err != nil {
		return err
	}

	data := sessionData{}
	if session.Data != "" {
		if err := json.Unmarshal([]byte(session.Data), &data); err != nil {
			m.logger.Warn("Resetting undecodable chat session data", "phone", phoneNumber, "error", err)
			data = sessionData{}
		}
	}

	text := strings.TrimSpace(body)
	lower := strings.ToLower(text)

	switch lower {
	case "menu", "reset", "inicio", "volver":
		session.State = models.ChatMenu
		data = sessionData{}
		m.send(ctx, phoneNumber, msgMenuReset)
		m.send(ctx, phoneNumber, msgMenu)
		return m.save(ctx, session, data)
	case "cancelar", "salir", "cancel":
		session.State = models.ChatMenu
		data = sessionData{}
		m.send(ctx, phoneNumber, msgCancelled)
		return m.save(ctx, session, data)
	case "ayuda", "help", "?":
		m.send(ctx, phoneNumber, msgHelp)
		return m.save(ctx, session, data)
	}

	switch session.State {
	case models.ChatMenu:
		m.handleMenu(ctx, session, &data, text)
	case models.ChatSelectService:
		m.handleSelectService(ctx, session, &data, text)
	case models.ChatSelectDate:
		m.handleSelectDate(ctx, session, &data, text)
	case models.ChatSelectTime:
		m.handleSelectTime(ctx, session, &data, text)
	case models.ChatWaitingForEmail:
		m.handleEmail(ctx, session, &data, text)
	case models.ChatWaitingForAddr:
		m.handleAddress(ctx, session, &data, text)
	default:
		session.State = models.ChatMenu
		data = sessionData{}
		m.send(ctx, session.Phone, msgMenu)
	}

	return m.save(ctx, session, data)
}

func (m *Machine) handleMenu(ctx context.Context, session *models.ChatSession, data *sessionData, text string) {
	lower := strings.ToLower(text)
	switch {
	case text == "1" || strings.Contains(lower, "agendar"):
		session.State = models.ChatSelectService
		m.sendServiceList(ctx, session.Phone)
	case text == "2" || strings.Contains(lower, "reserva"):
		m.sendReservations(ctx, session.Phone)
	case text == "3" || strings.Contains(lower, "ejecutivo") || strings.Contains(lower, "humano"):
		session.State = models.ChatMenu
		m.send(ctx, session.Phone, msgHumanHandoff)
	default:
		m.send(ctx, session.Phone, msgUnknownOption)
	}
}

func (m *Machine) sendServiceList(ctx context.Context, to string) {
	services, err := m.svcRepo.ListActive(ctx)
	if err != nil {
		m.logger.Error("Chat: listing services failed", "error", err)
		m.send(ctx, to, msgError)
		return
	}
	if len(services) > serviceListCap {
		services = services[:serviceListCap]
	}
	var b strings.Builder
	b.WriteString(msgServiceListHeader)
	for i, svc := range services {
		fmt.Fprintf(&b, "*%d.* %s (%d min)\n", i+1, svc.Name, svc.DefaultDurationMinutes)
	}
	b.WriteString(msgServiceListFooter)
	m.send(ctx, to, b.String())
}

func (m *Machine) handleSelectService(ctx context.Context, session *models.ChatSession, data *sessionData, text string) {
	idx, err := strconv.Atoi(text)
	if err != nil {
		m.send(ctx, session.Phone, msgServiceBadFormat)
		return
	}
	services, err := m.svcRepo.ListActive(ctx)
	if err != nil {
		m.logger.Error("Chat: listing services failed", "error", err)
		m.send(ctx, session.Phone, msgError)
		return
	}
	if len(services) > serviceListCap {
		services = services[:serviceListCap]
	}
	if idx < 1 || idx > len(services) {
		m.send(ctx, session.Phone, fmt.Sprintf(msgServiceBadOption, len(services)))
		return
	}
	svc := services[idx-1]
	data.ServiceID = svc.ID
	data.ServiceName = svc.Name
	data.Duration = svc.DefaultDurationMinutes
	session.State = models.ChatSelectDate
	m.send(ctx, session.Phone, fmt.Sprintf(msgServiceSelected, svc.Name, svc.DefaultDurationMinutes))
}

func (m *Machine) handleSelectDate(ctx context.Context, session *models.ChatSession, data *sessionData, text string) {
	date, err := time.ParseInLocation("02/01/2006", text, m.cfg.Location)
	if err != nil {
		tomorrow := time.Now().In(m.cfg.Location).AddDate(0, 0, 1)
		m.send(ctx, session.Phone, fmt.Sprintf(msgDateBadFormat, tomorrow.Format("02/01/2006")))
		return
	}

	now := time.Now().In(m.cfg.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, m.cfg.Location)
	if !date.After(today) {
		m.send(ctx, session.Phone, fmt.Sprintf(msgDatePast, today.AddDate(0, 0, 1).Format("02/01/2006")))
		return
	}
	maxDate := today.AddDate(0, 0, m.cfg.MaxFutureDays)
	if date.After(maxDate) {
		m.send(ctx, session.Phone, fmt.Sprintf(msgDateTooFar, maxDate.Format("02/01/2006")))
		return
	}

	offers, err := m.calculator.Availability(ctx, []string{data.ServiceID}, date)
	if err != nil {
		m.logger.Error("Chat: availability query failed", "error", err)
		m.send(ctx, session.Phone, msgError)
		return
	}
	if len(offers) == 0 {
		m.send(ctx, session.Phone, fmt.Sprintf(msgDateNoSlots, text))
		return
	}

	data.Date = date.Format("2006-01-02")
	data.DateDisplay = text
	data.Offers = nil

	var b strings.Builder
	fmt.Fprintf(&b, msgTimeSlotsHeader, text)
	for i, offer := range offers {
		if i >= offerCap {
			fmt.Fprintf(&b, msgTimeSlotsCapped, offerCap)
			break
		}
		start := offer.Start.In(m.cfg.Location)
		ref := offerRef{
			Start:          start.Format("15:04"),
			Label:          start.Format("03:04 PM"),
			SlotID:         offer.SlotIDs[0],
			ProfessionalID: offer.ProfessionalIDs[0],
		}
		data.Offers = append(data.Offers, ref)
		fmt.Fprintf(&b, "*%d.* %s\n", i+1, ref.Label)
	}
	b.WriteString(msgTimeSlotsFooter)

	session.State = models.ChatSelectTime
	m.send(ctx, session.Phone, b.String())
}

func (m *Machine) handleSelectTime(ctx context.Context, session *models.ChatSession, data *sessionData, text string) {
	if len(data.Offers) == 0 {
		session.State = models.ChatMenu
		m.send(ctx, session.Phone, msgTimeSessionLost)
		return
	}
	idx, err := strconv.Atoi(text)
	if err != nil {
		m.send(ctx, session.Phone, msgTimeBadFormat)
		return
	}
	if idx < 1 || idx > len(data.Offers) {
		m.send(ctx, session.Phone, fmt.Sprintf(msgTimeBadOption, len(data.Offers)))
		return
	}
	ref := data.Offers[idx-1]
	data.Time = ref.Start
	data.SlotID = ref.SlotID
	data.ProID = ref.ProfessionalID
	if prof, err := m.profRepo.GetByID(ctx, ref.ProfessionalID); err == nil {
		data.ProName = prof.DisplayName
	}
	m.send(ctx, session.Phone, fmt.Sprintf(msgTimeSelected, ref.Label))

	if m.findClient(ctx, session.Phone) == nil {
		session.State = models.ChatWaitingForEmail
		m.send(ctx, session.Phone, msgEmailRequest)
		return
	}
	session.State = models.ChatWaitingForAddr
	m.send(ctx, session.Phone, msgAddressRequest)
}

// findClient matches the chat phone to a known client: suffix match on the
// last eight digits first, exact normalized match as fallback.
func (m *Machine) findClient(ctx context.Context, phoneNumber string) *models.Client {
	if c, err := m.clientRepo.FindByPhoneSuffix(ctx, phone.Suffix(phoneNumber, phoneSuffixLen)); err == nil {
		return c
	}
	if c, err := m.clientRepo.FindByPhone(ctx, phone.Normalize(phoneNumber, m.cfg.PhoneCountryPrefix)); err == nil {
		return c
	}
	return nil
}

func (m *Machine) handleEmail(ctx context.Context, session *models.ChatSession, data *sessionData, text string) {
	email := strings.ToLower(strings.TrimSpace(text))
	if !emailPattern.MatchString(email) {
		m.send(ctx, session.Phone, msgEmailInvalid)
		return
	}

	normalized := phone.Normalize(session.Phone, m.cfg.PhoneCountryPrefix)
	existing, err := m.clientRepo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		existing.Phone = normalized
		if err := m.clientRepo.Save(ctx, existing); err != nil {
			m.logger.Error("Chat: linking phone to client failed", "error", err)
			m.send(ctx, session.Phone, msgError)
			return
		}
		m.send(ctx, session.Phone, fmt.Sprintf(msgEmailLinked, existing.FirstName))
	case errors.Is(err, repository.ErrNotFound):
		created := &models.Client{Email: email, FirstName: "Cliente", Phone: normalized}
		if err := m.clientRepo.Create(ctx, created); err != nil {
			m.logger.Error("Chat: creating client failed", "error", err)
			m.send(ctx, session.Phone, msgError)
			return
		}
		m.send(ctx, session.Phone, fmt.Sprintf(msgEmailCreated, email))
	default:
		m.logger.Error("Chat: client lookup failed", "error", err)
		m.send(ctx, session.Phone, msgError)
		return
	}

	session.State = models.ChatWaitingForAddr
	m.send(ctx, session.Phone, msgAddressRequest)
}

func (m *Machine) handleAddress(ctx context.Context, session *models.ChatSession, data *sessionData, text string) {
	data.Address = strings.TrimSpace(text)
	m.finalizeBooking(ctx, session, data)
}

// finalizeBooking books the selected offer for the identified client. The
// chat channel confirms directly: the client just asked for this booking
// in the conversation, so no separate confirmation loop runs.
func (m *Machine) finalizeBooking(ctx context.Context, session *models.ChatSession, data *sessionData) {
	client := m.findClient(ctx, session.Phone)
	if client == nil {
		session.State = models.ChatWaitingForEmail
		m.send(ctx, session.Phone, msgEmailRequest)
		return
	}

	communes, err := m.clientRepo.ListCommunes(ctx)
	if err != nil {
		m.logger.Error("Chat: listing communes failed", "error", err)
		m.send(ctx, session.Phone, msgError)
		return
	}
	parsed := address.Parse(data.Address, communes)
	formatted := address.Format(parsed)

	req := booking.CreateReservationRequest{
		Client: booking.ClientDescriptor{
			Email: client.Email,
			Phone: session.Phone,
		},
		Address: &booking.AddressInput{
			Alias:      "Casa (WhatsApp)",
			Street:     parsed.Street,
			Number:     parsed.Number,
			Complement: parsed.Complement,
		},
		ProfessionalID: data.ProID,
		Services:       []booking.ServiceRequest{{ServiceID: data.ServiceID, ProfessionalID: data.ProID}},
		SlotID:         data.SlotID,
		Note:           fmt.Sprintf("Reserva creada vía WhatsApp. Dirección: %s", formatted),
		Source:         models.SourceChat,
		AutoConfirm:    true,
	}
	if parsed.Commune != nil {
		req.Address.CommuneID = parsed.Commune.ID
	}

	res, err := m.transactor.CreateReservation(ctx, req)
	if err != nil {
		m.logger.Warn("Chat: booking failed", "phone", session.Phone, "error", err)
		m.send(ctx, session.Phone, msgBookingFailed)
		session.State = models.ChatMenu
		*data = sessionData{}
		return
	}

	m.send(ctx, session.Phone, fmt.Sprintf(msgBookingConfirmed,
		shortID(res.ID), data.ServiceName, res.TotalMinutes,
		data.DateDisplay, data.Time, data.ProName, formatted))

	session.State = models.ChatMenu
	*data = sessionData{}
}

func (m *Machine) sendReservations(ctx context.Context, phoneNumber string) {
	client := m.findClient(ctx, phoneNumber)
	if client == nil {
		m.send(ctx, phoneNumber, msgNoReservations)
		return
	}
	reservations, err := m.resRepo.ActiveForClient(ctx, client.ID)
	if err != nil {
		m.logger.Error("Chat: listing reservations failed", "error", err)
		m.send(ctx, phoneNumber, msgError)
		return
	}
	if len(reservations) == 0 {
		m.send(ctx, phoneNumber, msgNoReservations)
		return
	}
	var b strings.Builder
	for _, res := range reservations {
		when := "-"
		if len(res.Slots) > 0 && res.Slots[0].Slot != nil {
			when = res.Slots[0].Slot.StartDatetime.In(m.cfg.Location).Format("02/01/2006 15:04")
		}
		name := ""
		if len(res.Services) > 0 && res.Services[0].Service != nil {
			name = res.Services[0].Service.Name
		}
		fmt.Fprintf(&b, msgReservationRow, when, name, res.Status)
	}
	m.send(ctx, phoneNumber, b.String())
}

func (m *Machine) save(ctx context.Context, session *models.ChatSession, data sessionData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding chat session data: %w", err)
	}
	session.Data = string(raw)
	return m.sessions.Save(ctx, session, m.cfg.SessionTTL)
}

func (m *Machine) send(ctx context.Context, to, body string) {
	if err := m.chat.SendText(ctx, to, body); err != nil {
		m.logger.Error("Chat: sending message failed", "to", to, "error", err)
	}
}

// shortID compresses a UUID into the short reference quoted to clients.
func shortID(id string) string {
	if len(id) >= 8 {
		return strings.ToUpper(id[:8])
	}
	return strings.ToUpper(id)
}
