package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/revitek/scheduling-engine/internal/apperror"
	"github.com/revitek/scheduling-engine/internal/availability"
	"github.com/revitek/scheduling-engine/internal/models"
	"github.com/revitek/scheduling-engine/internal/repository"
	"github.com/revitek/scheduling-engine/pkg/logger"
)

// ScheduleHandler serves the admin schedule surface: manual slot blocks
// and on-demand slot regeneration.
type ScheduleHandler struct {
	generator *availability.Generator
	schedRepo *repository.ScheduleRepository
	auditRepo *repository.AuditRepository
	logger    *logger.Logger
	loc       *time.Location
}

// NewScheduleHandler creates a new schedule handler.
func NewScheduleHandler(
	generator *availability.Generator,
	schedRepo *repository.ScheduleRepository,
	auditRepo *repository.AuditRepository,
	logger *logger.Logger,
	loc *time.Location,
) *ScheduleHandler {
	return &ScheduleHandler{
		generator: generator,
		schedRepo: schedRepo,
		auditRepo: auditRepo,
		logger:    logger,
		loc:       loc,
	}
}

// regenerateRequest asks for slots over a date range.
type regenerateRequest struct {
	StartDate string `json:"startDate" binding:"required"` // "YYYY-MM-DD"
	Days      int    `json:"days"`
}

// Regenerate handles POST /api/v1/professionals/:id/slots/regenerate.
func (h *ScheduleHandler) Regenerate(c *gin.Context) {
	var req regenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperror.Wrap(err, apperror.Validation, apperror.CodeInvalidInput,
			"invalid request payload"))
		return
	}
	start, err := time.ParseInLocation("2006-01-02", req.StartDate, h.loc)
	if err != nil {
		respondError(c, h.logger, apperror.New(apperror.Validation, apperror.CodeInvalidInput,
			"invalid startDate, expected YYYY-MM-DD"))
		return
	}
	days := req.Days
	if days <= 0 {
		days = 1
	}

	professionalID := c.Param("id")
	slots := h.generator.RegenerateRange(c.Request.Context(), professionalID, start, days)

	if actor := c.GetHeader("X-Actor-ID"); actor != "" {
		if err := h.auditRepo.Record(c.Request.Context(), actor, "regenerate_slots",
			"professional", professionalID, req.StartDate); err != nil {
			h.logger.Error("Failed to record audit entry", "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"generated": len(slots)})
}

// blockRequest declares a manual busy interval.
type blockRequest struct {
	Date          string    `json:"date" binding:"required"` // "YYYY-MM-DD"
	StartDatetime time.Time `json:"startDatetime" binding:"required"`
	EndDatetime   time.Time `json:"endDatetime" binding:"required"`
	Reason        string    `json:"reason"`
}

// CreateBlock handles POST /api/v1/professionals/:id/blocks. The affected
// day is regenerated immediately so blocked slots disappear from
// availability without waiting for the nightly refresh.
func (h *ScheduleHandler) CreateBlock(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperror.Wrap(err, apperror.Validation, apperror.CodeInvalidInput,
			"invalid request payload"))
		return
	}
	if !req.StartDatetime.Before(req.EndDatetime) {
		respondError(c, h.logger, apperror.New(apperror.Validation, apperror.CodeInvalidInput,
			"startDatetime must be before endDatetime"))
		return
	}
	date, err := time.ParseInLocation("2006-01-02", req.Date, h.loc)
	if err != nil {
		respondError(c, h.logger, apperror.New(apperror.Validation, apperror.CodeInvalidInput,
			"invalid date, expected YYYY-MM-DD"))
		return
	}

	professionalID := c.Param("id")
	block := &models.SlotBlock{
		ProfessionalID: professionalID,
		Date:           req.Date,
		StartDatetime:  req.StartDatetime,
		EndDatetime:    req.EndDatetime,
		Reason:         req.Reason,
		CreatedBy:      c.GetHeader("X-Actor-ID"),
	}
	if err := h.schedRepo.CreateBlock(c.Request.Context(), block); err != nil {
		respondError(c, h.logger, err)
		return
	}

	if _, err := h.generator.Regenerate(c.Request.Context(), professionalID, date); err != nil {
		h.logger.Error("Post-block regeneration failed", "professionalId", professionalID, "error", err)
	}

	if block.CreatedBy != "" {
		if err := h.auditRepo.Record(c.Request.Context(), block.CreatedBy, "create_block",
			"slot_block", block.ID, req.Reason); err != nil {
			h.logger.Error("Failed to record audit entry", "error", err)
		}
	}

	c.JSON(http.StatusCreated, block)
}

// DeleteBlock handles DELETE /api/v1/professionals/:id/blocks/:blockId.
func (h *ScheduleHandler) DeleteBlock(c *gin.Context) {
	blockID := c.Param("blockId")
	if err := h.schedRepo.DeleteBlock(c.Request.Context(), blockID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(c, h.logger, apperror.New(apperror.NotFound, apperror.CodeNotFound, "block not found"))
			return
		}
		respondError(c, h.logger, err)
		return
	}

	if actor := c.GetHeader("X-Actor-ID"); actor != "" {
		if err := h.auditRepo.Record(c.Request.Context(), actor, "delete_block",
			"slot_block", blockID, ""); err != nil {
			h.logger.Error("Failed to record audit entry", "error", err)
		}
	}
	c.Status(http.StatusNoContent)
}
