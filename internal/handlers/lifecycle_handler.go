package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/revitek/scheduling-engine/internal/apperror"
	"github.com/revitek/scheduling-engine/internal/lifecycle"
	"github.com/revitek/scheduling-engine/internal/models"
	"github.com/revitek/scheduling-engine/internal/repository"
	"github.com/revitek/scheduling-engine/pkg/logger"
)

// LifecycleHandler serves status transitions: admin actions on a
// reservation and the public token confirmation endpoint.
type LifecycleHandler struct {
	controller *lifecycle.Controller
	booking    *BookingHandler
	resRepo    *repository.ReservationRepository
	logger     *logger.Logger
}

// NewLifecycleHandler creates a new lifecycle handler.
func NewLifecycleHandler(controller *lifecycle.Controller, booking *BookingHandler, resRepo *repository.ReservationRepository, logger *logger.Logger) *LifecycleHandler {
	return &LifecycleHandler{controller: controller, booking: booking, resRepo: resRepo, logger: logger}
}

// Approve handles POST /api/v1/reservations/:id/approve.
func (h *LifecycleHandler) Approve(c *gin.Context) {
	if err := h.controller.Approve(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(models.ReservationWaitingClient)})
}

// cancelRequest selects who is cancelling. Defaults to admin; the API
// layer has already authenticated the caller.
type cancelRequest struct {
	By string `json:"by"`
}

// Cancel handles POST /api/v1/reservations/:id/cancel.
func (h *LifecycleHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	_ = c.ShouldBindJSON(&req)

	by := models.CancelActor(req.By)
	switch by {
	case models.CancelledByAdmin, models.CancelledByClient, models.CancelledByClientChat:
	case "":
		by = models.CancelledByAdmin
	default:
		respondError(c, h.logger, apperror.Newf(apperror.Validation, apperror.CodeInvalidInput,
			"unknown cancel actor %q", req.By))
		return
	}

	if err := h.controller.Cancel(c.Request.Context(), c.Param("id"), by); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(models.ReservationCancelled)})
}

// Start handles POST /api/v1/reservations/:id/start.
func (h *LifecycleHandler) Start(c *gin.Context) {
	if err := h.controller.Start(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(models.ReservationInProgress)})
}

// Complete handles POST /api/v1/reservations/:id/complete.
func (h *LifecycleHandler) Complete(c *gin.Context) {
	if err := h.controller.Complete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(models.ReservationCompleted)})
}

// NoShow handles POST /api/v1/reservations/:id/no-show.
func (h *LifecycleHandler) NoShow(c *gin.Context) {
	if err := h.controller.NoShow(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(models.ReservationNoShow)})
}

// Reconfirm handles POST /api/v1/reservations/:id/reconfirm.
func (h *LifecycleHandler) Reconfirm(c *gin.Context) {
	if err := h.controller.Reconfirm(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(models.ReservationReconfirmed)})
}

// ShowConfirmation handles GET /api/v1/confirm/:token: the data backing
// the public confirmation page, with client fields masked.
func (h *LifecycleHandler) ShowConfirmation(c *gin.Context) {
	res, err := h.resRepo.GetByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(c, h.logger, apperror.New(apperror.NotFound, apperror.CodeNotFound,
				"confirmation link is invalid or expired"))
			return
		}
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, h.booking.buildResponse(res, true))
}

// ConfirmByToken handles POST /api/v1/confirm/:token.
func (h *LifecycleHandler) ConfirmByToken(c *gin.Context) {
	ok, reason, reservationID, err := h.controller.ConfirmByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	body := gin.H{"confirmed": ok, "reason": reason}
	if reservationID != nil {
		body["reservationId"] = *reservationID
	}
	status := http.StatusOK
	if !ok {
		switch reason {
		case "invalid":
			status = http.StatusNotFound
		default:
			status = http.StatusConflict
		}
	}
	c.JSON(status, body)
}
