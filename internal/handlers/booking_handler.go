package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/revitek/scheduling-engine/internal/apperror"
	"github.com/revitek/scheduling-engine/internal/booking"
	"github.com/revitek/scheduling-engine/internal/lifecycle"
	"github.com/revitek/scheduling-engine/internal/maskedvalue"
	"github.com/revitek/scheduling-engine/internal/models"
	"github.com/revitek/scheduling-engine/internal/repository"
	"github.com/revitek/scheduling-engine/pkg/logger"
)

// BookingHandler serves reservation creation and retrieval.
type BookingHandler struct {
	transactor *booking.Transactor
	controller *lifecycle.Controller
	resRepo    *repository.ReservationRepository
	logger     *logger.Logger
	loc        *time.Location
}

// NewBookingHandler creates a new booking handler.
func NewBookingHandler(
	transactor *booking.Transactor,
	controller *lifecycle.Controller,
	resRepo *repository.ReservationRepository,
	logger *logger.Logger,
	loc *time.Location,
) *BookingHandler {
	return &BookingHandler{
		transactor: transactor,
		controller: controller,
		resRepo:    resRepo,
		logger:     logger,
		loc:        loc,
	}
}

// serviceLineResponse is one booked service in a reservation response.
type serviceLineResponse struct {
	ServiceID                string `json:"serviceId"`
	ServiceName              string `json:"serviceName"`
	ProfessionalID           string `json:"professionalId"`
	EffectiveDurationMinutes int    `json:"effectiveDurationMinutes"`
}

// slotsSummaryResponse condenses the slot chain into its boundaries.
type slotsSummaryResponse struct {
	SlotIDStart    string `json:"slotIdStart"`
	SlotIDEnd      string `json:"slotIdEnd"`
	Start          string `json:"start"`
	End            string `json:"end"`
	ProfessionalID string `json:"professionalId"`
}

// clientInfoResponse echoes who the reservation is for. On masked
// surfaces (the public confirmation page) the email, plate and last name
// are obfuscated.
type clientInfoResponse struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// reservationResponse is the canonical reservation shape.
type reservationResponse struct {
	ID           string                `json:"id"`
	Status       string                `json:"status"`
	TotalMinutes int                   `json:"totalMinutes"`
	Note         string                `json:"note,omitempty"`
	CreatedAt    string                `json:"createdAt"`
	Services     []serviceLineResponse `json:"services"`
	SlotsSummary *slotsSummaryResponse `json:"slotsSummary,omitempty"`
	ClientInfo   *clientInfoResponse   `json:"clientInfo,omitempty"`
	Address      *models.Address       `json:"address,omitempty"`
	Vehicle      *models.Vehicle       `json:"vehicle,omitempty"`
}

func (h *BookingHandler) buildResponse(res *models.Reservation, masked bool) reservationResponse {
	out := reservationResponse{
		ID:           res.ID,
		Status:       string(res.Status),
		TotalMinutes: res.TotalMinutes,
		Note:         res.Note,
		CreatedAt:    res.CreatedAt.In(h.loc).Format(time.RFC3339),
		Services:     []serviceLineResponse{},
	}

	for _, line := range res.Services {
		lr := serviceLineResponse{
			ServiceID:                line.ServiceID,
			ProfessionalID:           line.ProfessionalID,
			EffectiveDurationMinutes: line.EffectiveDurationMinutes,
		}
		if line.Service != nil {
			lr.ServiceName = line.Service.Name
		}
		out.Services = append(out.Services, lr)
	}

	if len(res.Slots) > 0 {
		first, last := res.Slots[0], res.Slots[len(res.Slots)-1]
		summary := &slotsSummaryResponse{
			SlotIDStart:    first.SlotID,
			SlotIDEnd:      last.SlotID,
			ProfessionalID: first.ProfessionalID,
		}
		if first.Slot != nil {
			summary.Start = first.Slot.StartDatetime.In(h.loc).Format(time.RFC3339)
		}
		if last.Slot != nil {
			summary.End = last.Slot.EndDatetime.In(h.loc).Format(time.RFC3339)
		}
		out.SlotsSummary = summary
	}

	if res.Client != nil {
		info := &clientInfoResponse{
			FirstName: res.Client.FirstName,
			LastName:  res.Client.LastName,
			Email:     res.Client.Email,
			Phone:     res.Client.Phone,
		}
		if masked {
			info.LastName = maskedvalue.MaskLastName(info.LastName)
			info.Email = maskedvalue.MaskEmail(info.Email)
			info.Phone = ""
		}
		out.ClientInfo = info
	}

	if masked {
		if res.Vehicle != nil {
			maskedVehicle := *res.Vehicle
			maskedVehicle.Plate = maskedvalue.MaskPlate(maskedVehicle.Plate)
			out.Vehicle = &maskedVehicle
		}
	} else {
		out.Address = res.Address
		out.Vehicle = res.Vehicle
	}
	return out
}

// CreateReservation handles POST /api/v1/reservations: business-rule
// pre-validation, the booking transaction, and the post-commit kickoff of
// the client confirmation loop.
func (h *BookingHandler) CreateReservation(c *gin.Context) {
	var req booking.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperror.Wrap(err, apperror.Validation, apperror.CodeInvalidInput,
			"invalid request payload"))
		return
	}
	req.Source = models.SourceWeb
	req.AutoConfirm = false

	if err := h.transactor.ValidateBookingRules(c.Request.Context(), req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	res, err := h.transactor.CreateReservation(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := h.controller.RequestClientConfirmation(c.Request.Context(), res.ID); err != nil {
		// The reservation exists; an admin can re-drive the confirmation
		// loop, so log and return the reservation anyway.
		h.logger.Error("Failed to start confirmation loop", "reservationId", res.ID, "error", err)
	}
	if fresh, err := h.resRepo.GetByID(c.Request.Context(), res.ID); err == nil {
		res = fresh
	}

	c.JSON(http.StatusCreated, h.buildResponse(res, false))
}

// GetReservation handles GET /api/v1/reservations/:id.
func (h *BookingHandler) GetReservation(c *gin.Context) {
	res, err := h.resRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(c, h.logger, apperror.New(apperror.NotFound, apperror.CodeNotFound, "reservation not found"))
			return
		}
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, h.buildResponse(res, false))
}

// GetReservationHistory handles GET /api/v1/reservations/:id/history.
func (h *BookingHandler) GetReservationHistory(c *gin.Context) {
	entries, err := h.resRepo.HistoryFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}
