package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antoniostano/viola/internal/contacts"
)

const defaultBaseURL = "https://api.twilio.com"

// Client places calls through the Twilio-compatible REST API. Placed calls
// are pointed at the voice webhook URL; the conversation then runs over
// inbound webhooks like any answered call.
type Client struct {
	accountSID     string
	authToken      string
	from           string
	voiceURL       string
	statusCallback string
	baseURL        string
	httpClient     *http.Client
}

type Config struct {
	AccountSID     string
	AuthToken      string
	From           string
	VoiceURL       string
	StatusCallback string
	BaseURL        string
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" || strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, errors.New("telephony credentials are required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("origin number is required")
	}
	if strings.TrimSpace(cfg.VoiceURL) == "" {
		return nil, errors.New("voice webhook url is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		accountSID:     cfg.AccountSID,
		authToken:      cfg.AuthToken,
		from:           cfg.From,
		voiceURL:       cfg.VoiceURL,
		statusCallback: strings.TrimSpace(cfg.StatusCallback),
		baseURL:        baseURL,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// PlaceCall submits one outbound call and returns the provider call SID.
func (c *Client) PlaceCall(ctx context.Context, contact contacts.Contact) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", c.baseURL, c.accountSID)

	form := url.Values{}
	form.Set("To", contact.Number)
	form.Set("From", c.from)
	form.Set("Url", c.voiceURL)
	form.Set("Method", "POST")
	if c.statusCallback != "" {
		form.Set("StatusCallback", c.statusCallback)
		form.Set("StatusCallbackMethod", "POST")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("place call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("telephony api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result struct {
		SID     string `json:"sid"`
		Status  string `json:"status"`
		Message string `json:"message"`
		Code    int    `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if result.Code != 0 {
		return "", fmt.Errorf("telephony error %d: %s", result.Code, result.Message)
	}
	if result.SID == "" {
		return "", errors.New("telephony response missing call sid")
	}
	return result.SID, nil
}
