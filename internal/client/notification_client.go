// Package client implements the outbound ports: a typed HTTP client for
// the email notification service and one for the Meta-style chat API.
// Both satisfy the dispatch package's port interfaces; the engine never
// touches transport specifics outside this package.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/revitek/scheduling-engine/internal/config"
	"github.com/revitek/scheduling-engine/pkg/logger"
)

// NotificationServiceClient delivers email through the notification
// service. With no base URL configured (local development) sends are
// logged and skipped.
type NotificationServiceClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *logger.Logger
}

// NewNotificationServiceClient creates a client for the notification service.
func NewNotificationServiceClient(cfg config.Notifications, logger *logger.Logger) *NotificationServiceClient {
	return &NotificationServiceClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    cfg.ServiceURL,
		logger:     logger,
	}
}

// sendNotificationRequest is the notification service's send payload.
type sendNotificationRequest struct {
	Type         string                 `json:"type"`
	Recipients   []string               `json:"recipients"`
	TemplateData map[string]interface{} `json:"templateData"`
}

// notificationResponse is the notification service's reply envelope.
type notificationResponse struct {
	Success   bool    `json:"success"`
	Message   string  `json:"message"`
	MessageID *string `json:"messageId,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// Send dispatches a templated email. Implements dispatch.Mailer.
func (c *NotificationServiceClient) Send(ctx context.Context, template string, recipients []string, data map[string]interface{}) error {
	if c.baseURL == "" {
		c.logger.Warn("Notification service URL not configured, skipping email", "template", template)
		return nil
	}

	payload, err := json.Marshal(sendNotificationRequest{
		Type:         template,
		Recipients:   recipients,
		TemplateData: data,
	})
	if err != nil {
		return fmt.Errorf("marshaling notification request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/notifications/send", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("creating notification request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request to notification service failed: %w", err)
	}
	defer resp.Body.Close()

	var decoded notificationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decoding notification response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 {
		msg := decoded.Message
		if decoded.Error != nil {
			msg = *decoded.Error
		}
		return fmt.Errorf("notification service returned status %d: %s", resp.StatusCode, msg)
	}

	c.logger.Info("Email dispatched", "template", template, "recipients", len(recipients))
	return nil
}
