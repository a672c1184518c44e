package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/revitek/scheduling-engine/internal/apperror"
	"github.com/revitek/scheduling-engine/internal/availability"
	"github.com/revitek/scheduling-engine/pkg/logger"
)

// AvailabilityHandler serves consolidated availability queries.
type AvailabilityHandler struct {
	calculator *availability.Calculator
	logger     *logger.Logger
	loc        *time.Location
}

// NewAvailabilityHandler creates a new availability handler.
func NewAvailabilityHandler(calculator *availability.Calculator, logger *logger.Logger, loc *time.Location) *AvailabilityHandler {
	return &AvailabilityHandler{calculator: calculator, logger: logger, loc: loc}
}

// offerResponse is the wire shape of one offer: parallel professional and
// slot arrays, ordered by preference.
type offerResponse struct {
	Start         string   `json:"start"`
	End           string   `json:"end"`
	Professionals []string `json:"professionals"`
	SlotIDs       []string `json:"slotIds"`
}

// GetAvailability handles GET /api/v1/availability?serviceIds=a,b&date=YYYY-MM-DD.
func (h *AvailabilityHandler) GetAvailability(c *gin.Context) {
	rawIDs := c.Query("serviceIds")
	dateStr := c.Query("date")
	if rawIDs == "" || dateStr == "" {
		respondError(c, h.logger, apperror.New(apperror.Validation, apperror.CodeInvalidInput,
			"serviceIds and date are required query parameters"))
		return
	}

	date, err := time.ParseInLocation("2006-01-02", dateStr, h.loc)
	if err != nil {
		respondError(c, h.logger, apperror.New(apperror.Validation, apperror.CodeInvalidInput,
			"invalid date, expected YYYY-MM-DD"))
		return
	}

	var serviceIDs []string
	for _, id := range strings.Split(rawIDs, ",") {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			serviceIDs = append(serviceIDs, trimmed)
		}
	}

	offers, err := h.calculator.Availability(c.Request.Context(), serviceIDs, date)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	out := make([]offerResponse, 0, len(offers))
	for _, offer := range offers {
		out = append(out, offerResponse{
			Start:         offer.Start.Format(time.RFC3339),
			End:           offer.End.Format(time.RFC3339),
			Professionals: offer.ProfessionalIDs,
			SlotIDs:       offer.SlotIDs,
		})
	}
	c.JSON(http.StatusOK, gin.H{"offers": out})
}
