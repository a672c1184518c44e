package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/revitek/scheduling-engine/internal/chatwire"
	"github.com/revitek/scheduling-engine/pkg/events"
	"github.com/revitek/scheduling-engine/pkg/logger"
)

// eventPublisher is the slice of pkg/events the webhook needs.
type eventPublisher interface {
	Publish(subject string, data interface{}) error
}

// ChatWebhookHandler accepts the chat provider's webhook. It stays thin:
// inbound messages are normalized and republished onto the bus for the
// session worker, so the provider always gets a fast 200.
type ChatWebhookHandler struct {
	publisher   eventPublisher
	verifyToken string
	logger      *logger.Logger
}

// NewChatWebhookHandler creates a new chat webhook handler.
func NewChatWebhookHandler(publisher eventPublisher, verifyToken string, logger *logger.Logger) *ChatWebhookHandler {
	return &ChatWebhookHandler{publisher: publisher, verifyToken: verifyToken, logger: logger}
}

// Verify handles GET /api/v1/chat/webhook, the provider's subscription
// handshake: echo the challenge when the verify token matches.
func (h *ChatWebhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	c.Status(http.StatusForbidden)
}

// Receive handles POST /api/v1/chat/webhook.
func (h *ChatWebhookHandler) Receive(c *gin.Context) {
	var payload chatwire.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warn("Undecodable chat webhook payload", "error", err)
		// Still 200: the provider retries aggressively on errors and the
		// payload will not get better.
		c.Status(http.StatusOK)
		return
	}

	for _, inbound := range chatwire.ExtractInbound(payload) {
		if err := h.publisher.Publish(events.ChatInboundEvent, inbound); err != nil {
			h.logger.Error("Failed to republish inbound chat message", "phone", inbound.Phone, "error", err)
		}
	}
	c.Status(http.StatusOK)
}
