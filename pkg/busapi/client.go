// Package busapi is the HTTP client for the remote CharruaBus API.
package busapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charruabus/booking-agent/internal/models"
	"github.com/sirupsen/logrus"
)

// maxErrorBody caps how much of an error response is read
const maxErrorBody = 64 << 10

// Config configures the client
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client talks to the CharruaBus API on behalf of an authenticated user
type Client struct {
	baseURL   string
	userAgent string
	client    *http.Client
	logger    *logrus.Logger
}

// NewClient creates a new API client
func NewClient(cfg Config, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// GetTripDetail fetches stops, prices and seats of one trip
func (c *Client) GetTripDetail(ctx context.Context, token, tripID string) (*models.TripDetail, error) {
	var trip models.TripDetail
	path := "/trips/" + url.PathEscape(tripID)
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &trip); err != nil {
		return nil, fmt.Errorf("failed to get trip %s: %w", tripID, err)
	}
	if trip.ID == "" {
		trip.ID = tripID
	}
	return &trip, nil
}

// GetBookingSettings fetches passenger limit and discount percentages
func (c *Client) GetBookingSettings(ctx context.Context, token string) (*models.BookingSettings, error) {
	var settings models.BookingSettings
	if err := c.doJSON(ctx, http.MethodGet, "/settings/booking", token, nil, &settings); err != nil {
		return nil, fmt.Errorf("failed to get booking settings: %w", err)
	}
	return &settings, nil
}

// CreatePaymentSession asks the API for an external payment session.
// Errors are returned unwrapped so the caller can classify the server message.
func (c *Client) CreatePaymentSession(ctx context.Context, token string, req *models.PurchaseRequest) (*models.PaymentSession, error) {
	var session models.PaymentSession
	if err := c.doJSON(ctx, http.MethodPost, "/purchases/payment-session", token, req, &session); err != nil {
		return nil, err
	}
	if session.SessionURL == "" {
		return nil, fmt.Errorf("payment session response has no url")
	}
	return &session, nil
}

// ConfirmPurchase confirms a paid purchase by provider session id
func (c *Client) ConfirmPurchase(ctx context.Context, token, sessionID string) error {
	req := models.PurchaseOutcomeRequest{SessionID: sessionID}
	if err := c.doJSON(ctx, http.MethodPost, "/purchases/confirm", token, req, nil); err != nil {
		return fmt.Errorf("failed to confirm purchase: %w", err)
	}
	return nil
}

// CancelPurchase cancels a purchase by provider session id
func (c *Client) CancelPurchase(ctx context.Context, token, sessionID string) error {
	req := models.PurchaseOutcomeRequest{SessionID: sessionID}
	if err := c.doJSON(ctx, http.MethodPost, "/purchases/cancel", token, req, nil); err != nil {
		return fmt.Errorf("failed to cancel purchase: %w", err)
	}
	return nil
}

// DownloadTicketPDF fetches the ticket PDF of a finished purchase
func (c *Client) DownloadTicketPDF(ctx context.Context, token, purchaseID string) ([]byte, error) {
	path := "/purchases/" + url.PathEscape(purchaseID) + "/ticket.pdf"
	httpReq, err := c.newRequest(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/pdf")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.decodeError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ticket pdf: %w", err)
	}
	return data, nil
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, body, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, token, body)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach API: %w", err)
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("CharruaBus API call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError turns a non-2xx response into an error. Bodies may be plain text
// or JSON carrying "message" or "error". 401 maps to ErrSessionExpired.
func (c *Client) decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := extractMessage(raw)

	if resp.StatusCode == http.StatusUnauthorized {
		if message == "" {
			return models.ErrSessionExpired
		}
		return fmt.Errorf("%w: %s", models.ErrSessionExpired, message)
	}

	return &models.APIError{StatusCode: resp.StatusCode, Message: message}
}

func extractMessage(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return ""
	}

	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if strings.HasPrefix(text, "{") && json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}

	// some endpoints answer with a bare JSON string
	var quoted string
	if strings.HasPrefix(text, "\"") && json.Unmarshal(raw, &quoted) == nil {
		return quoted
	}

	return text
}
