// Package handlers is the HTTP surface of the scheduling engine: thin Gin
// handlers that bind JSON, call into the core services, and map the error
// taxonomy to status codes. No business logic lives here.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/revitek/scheduling-engine/internal/apperror"
	"github.com/revitek/scheduling-engine/pkg/logger"
	"gorm.io/gorm"
)

// respondError maps the error taxonomy onto HTTP statuses. Foreign errors
// (repository I/O, drivers) surface as 500 without leaking internals.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	var ae *apperror.Error
	if !errors.As(err, &ae) {
		log.Error("Unhandled error", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "INTERNAL", "message": "internal error"},
		})
		return
	}

	status := http.StatusInternalServerError
	switch ae.Kind {
	case apperror.Validation:
		status = http.StatusBadRequest
	case apperror.DomainConflict, apperror.StateInvalid, apperror.Integrity:
		status = http.StatusConflict
	case apperror.NotFound:
		status = http.StatusNotFound
	case apperror.AuthZ:
		status = http.StatusForbidden
	case apperror.Transient:
		status = http.StatusServiceUnavailable
	}

	body := gin.H{"code": ae.Code, "message": ae.Message}
	if len(ae.Details) > 0 {
		body["details"] = ae.Details
	}
	c.JSON(status, gin.H{"error": body})
}

// HealthHandler reports service health for probes.
type HealthHandler struct {
	db     *gorm.DB
	redis  *redis.Client
	nats   *nats.Conn
	logger *logger.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db *gorm.DB, redis *redis.Client, nats *nats.Conn, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, nats: nats, logger: logger}
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "scheduling-engine"})
}

// Ready handles GET /health/ready: the service is ready when its database
// answers. Redis and NATS are optional in development.
func (h *HealthHandler) Ready(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
		return
	}
	status := gin.H{"status": "ready", "database": "ok"}
	if h.redis != nil {
		if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
			status["redis"] = "down"
		} else {
			status["redis"] = "ok"
		}
	}
	if h.nats != nil {
		if h.nats.IsConnected() {
			status["nats"] = "ok"
		} else {
			status["nats"] = "down"
		}
	}
	c.JSON(http.StatusOK, status)
}

// Live handles GET /health/live.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}
