package bookingapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/shliew97/frappe-whatsapp/internal/booking"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

const (
	commitPath = "/api/method/soma_wellness.api.make_bookings"
	updatePath = "/api/method/soma_wellness.api.update_booking"
	cancelPath = "/api/method/soma_wellness.api.cancel_booking"

	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "whatsapp-booking-gateway/0.1"
)

// Config controls the HTTP client.
type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
	UserAgent  string
}

// HTTPClient calls the booking system's whitelisted methods.
type HTTPClient struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *logging.Logger
	userAgent  string
}

// New builds a configured client.
func New(cfg Config) (*HTTPClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("bookingapi: base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.APISecret) == "" {
		return nil, errors.New("bookingapi: API key and secret are required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 || timeout > defaultTimeout {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &HTTPClient{
		baseURL:    baseURL,
		authHeader: fmt.Sprintf("token %s:%s", cfg.APIKey, cfg.APISecret),
		httpClient: httpClient,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

func (c *HTTPClient) Commit(ctx context.Context, sender string, draft *booking.Draft) (Confirmation, error) {
	if draft == nil {
		return Confirmation{}, errors.New("bookingapi: draft required")
	}
	payload := NewPayload(sender, draft)
	payload.BookingReference = ""
	return c.call(ctx, commitPath, payload)
}

func (c *HTTPClient) Update(ctx context.Context, sender string, draft *booking.Draft, reference string) (Confirmation, error) {
	if draft == nil {
		return Confirmation{}, errors.New("bookingapi: draft required")
	}
	if strings.TrimSpace(reference) == "" {
		return Confirmation{}, errors.New("bookingapi: booking reference required")
	}
	payload := NewPayload(sender, draft)
	payload.BookingReference = reference
	conf, err := c.call(ctx, updatePath, payload)
	if err == nil && conf.Reference == "" {
		conf.Reference = reference
	}
	return conf, err
}

func (c *HTTPClient) Cancel(ctx context.Context, sender, reference string) (Confirmation, error) {
	if strings.TrimSpace(reference) == "" {
		return Confirmation{}, errors.New("bookingapi: booking reference required")
	}
	conf, err := c.call(ctx, cancelPath, map[string]string{"booking_reference": reference, "mobile": sender})
	if err == nil && conf.Reference == "" {
		conf.Reference = reference
	}
	return conf, err
}

func (c *HTTPClient) call(ctx context.Context, path string, payload any) (Confirmation, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Confirmation{}, fmt.Errorf("bookingapi: marshal request: %w", err)
	}
	data, err := c.invoke(ctx, path, body)
	if err != nil {
		return Confirmation{}, err
	}
	return decodeConfirmation(data)
}

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		BookingReference string `json:"booking_reference"`
		Status           string `json:"status"`
	} `json:"data"`
}

// decodeConfirmation accepts both the bare response and the {"message": {...}}
// envelope whitelisted methods are wrapped in.
func decodeConfirmation(data []byte) (Confirmation, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Confirmation{}, fmt.Errorf("bookingapi: decode response: %w", err)
	}
	if _, ok := envelope["status"]; !ok {
		if inner, ok := envelope["message"]; ok && len(inner) > 0 && inner[0] == '{' {
			data = inner
		}
	}
	var resp apiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return Confirmation{}, fmt.Errorf("bookingapi: decode response: %w", err)
	}
	if !strings.EqualFold(resp.Status, "success") {
		msg := resp.Message
		if msg == "" {
			msg = "status " + resp.Status
		}
		return Confirmation{}, fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	status := resp.Data.Status
	if status == "" {
		status = resp.Status
	}
	return Confirmation{Reference: resp.Data.BookingReference, Status: status, Message: resp.Message}, nil
}

func (c *HTTPClient) invoke(ctx context.Context, path string, body []byte) ([]byte, error) {
	fullURL := c.baseURL + path
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("bookingapi: build request: %w", err)
		}
		req.Header.Set("Authorization", c.authHeader)
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !shouldRetry(0, err) || attempt == c.maxRetries {
				return nil, fmt.Errorf("bookingapi: http error: %w", err)
			}
			lastErr = err
			c.logRetry(path, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("bookingapi: read response: %w", readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		apiErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(path, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("bookingapi: request failed without response")
}

func (c *HTTPClient) sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(c.backoff * time.Duration(1<<attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *HTTPClient) logRetry(path string, attempt, status int, err error) {
	c.logger.Warn("booking api retry", "path", path, "attempt", attempt+1, "status", status, "error", err)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}

// StatusError is a non-2xx answer from the booking system.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bookingapi: http status %d: %s", e.StatusCode, e.Body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
