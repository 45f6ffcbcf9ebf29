package whatsappclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v21.0"
	defaultUserAgent  = "whatsapp-booking-gateway/0.1"
	defaultLanguage   = "en"
)

// Config controls how the WhatsApp Cloud client behaves.
type Config struct {
	BaseURL       string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
	AppSecret     string
	Timeout       time.Duration
	MaxRetries    int
	Backoff       time.Duration
	HTTPClient    *http.Client
	Logger        *logging.Logger
	UserAgent     string
}

// Client wraps the Cloud API endpoints the gateway uses.
type Client struct {
	accessToken string
	messagesURL string
	appSecret   string
	httpClient  *http.Client
	maxRetries  int
	backoff     time.Duration
	logger      *logging.Logger
	userAgent   string
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("whatsappclient: access token is required")
	}
	if strings.TrimSpace(cfg.PhoneNumberID) == "" {
		return nil, errors.New("whatsappclient: phone number id is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	version := strings.Trim(strings.TrimSpace(cfg.APIVersion), "/")
	if version == "" {
		version = defaultAPIVersion
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		accessToken: cfg.AccessToken,
		messagesURL: fmt.Sprintf("%s/%s/%s/messages", baseURL, version, cfg.PhoneNumberID),
		appSecret:   cfg.AppSecret,
		httpClient:  httpClient,
		maxRetries:  maxRetries,
		backoff:     backoff,
		logger:      logger,
		userAgent:   userAgent,
	}, nil
}

// SendText sends a free-form text message inside the customer service window.
func (c *Client) SendText(ctx context.Context, to, body string) (*SendResponse, error) {
	if strings.TrimSpace(to) == "" {
		return nil, errors.New("whatsappclient: recipient required")
	}
	if strings.TrimSpace(body) == "" {
		return nil, errors.New("whatsappclient: body required")
	}
	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: body},
	})
}

// SendTemplate sends an approved template with positional body parameters.
func (c *Client) SendTemplate(ctx context.Context, to string, tpl Template) (*SendResponse, error) {
	if strings.TrimSpace(to) == "" {
		return nil, errors.New("whatsappclient: recipient required")
	}
	if err := tpl.validate(); err != nil {
		return nil, err
	}
	body := &templateBody{Name: tpl.Name}
	body.Language.Code = tpl.Language
	if body.Language.Code == "" {
		body.Language.Code = defaultLanguage
	}
	if len(tpl.Parameters) > 0 {
		params := make([]templateParameter, 0, len(tpl.Parameters))
		for _, p := range tpl.Parameters {
			params = append(params, templateParameter{Type: "text", Text: p})
		}
		body.Components = []templateComponent{{Type: "body", Parameters: params}}
	}
	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "template",
		Template:         body,
	})
}

// VerifySignature checks an X-Hub-Signature-256 header against the app secret.
func (c *Client) VerifySignature(header string, payload []byte) error {
	return VerifySignature(c.appSecret, header, payload)
}

// VerifySignature validates "sha256=<hex>" HMAC signatures over the raw body.
func VerifySignature(secret, header string, payload []byte) error {
	if secret == "" {
		return errors.New("whatsappclient: app secret not configured")
	}
	sig := strings.ToLower(strings.TrimSpace(header))
	if sig == "" {
		return errors.New("whatsappclient: missing signature header")
	}
	sig = strings.TrimPrefix(sig, "sha256=")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return errors.New("whatsappclient: signature mismatch")
	}
	return nil
}

func (c *Client) send(ctx context.Context, req sendRequest) (*SendResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("whatsappclient: marshal send body: %w", err)
	}
	data, err := c.invoke(ctx, body)
	if err != nil {
		return nil, err
	}
	var resp SendResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("whatsappclient: decode response: %w", err)
	}
	return &resp, nil
}

func (c *Client) invoke(ctx context.Context, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("whatsappclient: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !shouldRetry(0, err) || attempt == c.maxRetries {
				return nil, fmt.Errorf("whatsappclient: http error: %w", err)
			}
			lastErr = err
			c.logRetry(attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("whatsappclient: read response: %w", readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		apiErr := decodeAPIError(resp.StatusCode, data)
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(attempt, resp.StatusCode, apiErr)
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
	return nil, errors.New("whatsappclient: request failed without response")
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(c.backoff * time.Duration(1<<attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(attempt, status int, err error) {
	c.logger.Warn("whatsapp retry", "attempt", attempt+1, "status", status, "error", err)
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

// APIError is a Graph API error answer.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message,omitempty"`
	Type       string `json:"type,omitempty"`
	Code       int    `json:"code,omitempty"`
	Subcode    int    `json:"error_subcode,omitempty"`
	TraceID    string `json:"fbtrace_id,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("whatsappclient: %s (status=%d code=%d)", e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("whatsappclient: http status %d", e.StatusCode)
}

func decodeAPIError(status int, body []byte) error {
	var parsed struct {
		Error APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &APIError{StatusCode: status, Message: string(body)}
	}
	parsed.Error.StatusCode = status
	return &parsed.Error
}
