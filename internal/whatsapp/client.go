package whatsapp

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dahshury/clinic-whatsapp-bot/internal/observability/metrics"
	"github.com/dahshury/clinic-whatsapp-bot/pkg/logging"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 3
)

// Client sends messages through the WhatsApp Cloud API.
type Client struct {
	http          *resty.Client
	phoneNumberID string
	metrics       *metrics.Metrics
	logger        *logging.Logger
}

// Config holds the Cloud API credentials and addressing.
type Config struct {
	BaseURL       string // default https://graph.facebook.com
	Version       string // e.g. v21.0
	AccessToken   string
	PhoneNumberID string
}

// New builds a Client with a 30 s timeout and retries on throttling and
// server errors.
func New(cfg Config, m *metrics.Metrics, logger *logging.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com"
	}
	if cfg.Version == "" {
		cfg.Version = "v21.0"
	}
	if m == nil {
		m = metrics.NewForTest()
	}
	if logger == nil {
		logger = logging.Default()
	}

	http := resty.New().
		SetBaseURL(fmt.Sprintf("%s/%s", cfg.BaseURL, cfg.Version)).
		SetAuthToken(cfg.AccessToken).
		SetTimeout(defaultTimeout).
		SetRetryCount(defaultRetries).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			code := r.StatusCode()
			return code == 408 || code == 429 || code >= 500
		}).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			base := time.Second << uint(resp.Request.Attempt-1)
			if base > 10*time.Second {
				base = 10 * time.Second
			}
			jitter := time.Duration(rand.Int63n(int64(base / 2)))
			return base/2 + jitter, nil
		})

	return &Client{
		http:          http,
		phoneNumberID: cfg.PhoneNumberID,
		metrics:       m,
		logger:        logger,
	}
}

// sendResponse is the slice of the Cloud API reply we care about.
type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("whatsapp: api error %d (%s): %s", e.Code, e.Type, e.Message)
}

// SendText delivers a plain text message and returns the provider message id.
func (c *Client) SendText(ctx context.Context, waID, body string) (string, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                waID,
		"type":              "text",
		"text":              map[string]any{"body": body},
	}
	return c.send(ctx, waID, "text", payload)
}

// SendLocation shares the clinic's pin.
func (c *Client) SendLocation(ctx context.Context, waID string, latitude, longitude float64, name, address string) (string, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                waID,
		"type":              "location",
		"location": map[string]any{
			"latitude":  latitude,
			"longitude": longitude,
			"name":      name,
			"address":   address,
		},
	}
	return c.send(ctx, waID, "location", payload)
}

// SendTemplate delivers a pre-approved template, used outside the 24-hour
// customer service window (reminders in particular).
func (c *Client) SendTemplate(ctx context.Context, waID, templateName, languageCode string, bodyParams []string) (string, error) {
	components := []map[string]any{}
	if len(bodyParams) > 0 {
		params := make([]map[string]any, 0, len(bodyParams))
		for _, p := range bodyParams {
			params = append(params, map[string]any{"type": "text", "text": p})
		}
		components = append(components, map[string]any{"type": "body", "parameters": params})
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                waID,
		"type":              "template",
		"template": map[string]any{
			"name":       templateName,
			"language":   map[string]any{"code": languageCode},
			"components": components,
		},
	}
	return c.send(ctx, waID, "template", payload)
}

func (c *Client) send(ctx context.Context, waID, messageType string, payload map[string]any) (string, error) {
	var out sendResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		SetError(&out).
		Post(fmt.Sprintf("/%s/messages", c.phoneNumberID))
	if err != nil {
		c.metrics.WhatsAppFailures.WithLabelValues("transport", messageType).Inc()
		return "", fmt.Errorf("whatsapp: send %s to %s: %w", messageType, waID, err)
	}
	if resp.IsError() {
		reason := fmt.Sprintf("http_%d", resp.StatusCode())
		c.metrics.WhatsAppFailures.WithLabelValues(reason, messageType).Inc()
		if out.Error != nil {
			c.logger.Error("whatsapp send rejected",
				"wa_id", waID, "type", messageType, "status", resp.StatusCode(), "api_code", out.Error.Code)
			return "", out.Error
		}
		return "", fmt.Errorf("whatsapp: send %s to %s: status %d", messageType, waID, resp.StatusCode())
	}
	if len(out.Messages) == 0 {
		c.metrics.WhatsAppFailures.WithLabelValues("empty_response", messageType).Inc()
		return "", fmt.Errorf("whatsapp: send %s to %s: no message id in response", messageType, waID)
	}
	return out.Messages[0].ID, nil
}
