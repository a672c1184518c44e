package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/revitek/scheduling-engine/internal/chatwire"
	"github.com/revitek/scheduling-engine/internal/config"
	"github.com/revitek/scheduling-engine/pkg/logger"
)

// ChatClient talks to the Meta-style messages endpoint. With no access
// token configured (local development) sends are logged and skipped.
type ChatClient struct {
	httpClient *http.Client
	cfg        config.ChatAPI
	logger     *logger.Logger
}

// NewChatClient creates a chat API client.
func NewChatClient(cfg config.ChatAPI, logger *logger.Logger) *ChatClient {
	return &ChatClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cfg:        cfg,
		logger:     logger,
	}
}

// SendText sends a plain text message. Implements dispatch.Chat.
func (c *ChatClient) SendText(ctx context.Context, to, body string) error {
	return c.post(ctx, chatwire.NewTextPayload(to, body), "")
}

// SendTemplate sends a pre-approved template message. The idempotency key
// is forwarded so the provider can drop rare duplicate deliveries.
// Implements dispatch.Chat.
func (c *ChatClient) SendTemplate(ctx context.Context, to, name string, params map[string]string, idempotencyKey string) error {
	ordered := make([]string, 0, len(params))
	for i := 1; ; i++ {
		v, ok := params[fmt.Sprintf("%d", i)]
		if !ok {
			break
		}
		ordered = append(ordered, v)
	}
	return c.post(ctx, chatwire.NewTemplatePayload(to, name, c.cfg.TemplateLanguage, ordered), idempotencyKey)
}

func (c *ChatClient) post(ctx context.Context, payload interface{}, idempotencyKey string) error {
	if c.cfg.AccessToken == "" {
		c.logger.Warn("Chat access token not configured, skipping message")
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling chat payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.cfg.APIURL, c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(raw))
	if err != nil {
		return fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to chat API failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
