package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/voicebridge/callbridge/internal/bridgeerr"
)

// Config parameterizes a Client against one carrier account.
type Config struct {
	AccountSID string
	AuthToken  string
	PhoneNumber string
	// APIBaseURL defaults to the real carrier REST endpoint; overridable for
	// tests against an httptest.Server.
	APIBaseURL string
}

const defaultAPIBaseURL = "https://api.twilio.com/2010-04-01"

// Client places and manages calls over the carrier's REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	baseURL    string
}

// New constructs a Client. Shares one *http.Client across all calls, the
// only state that needs to be concurrency-safe (see SPEC_FULL.md's shared
// resources note).
func New(cfg Config) *Client {
	base := cfg.APIBaseURL
	if base == "" {
		base = defaultAPIBaseURL
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    base,
	}
}

// CallParams describes an outbound call placement.
type CallParams struct {
	To               string
	From             string
	TwiML            string
	StatusCallback   string
	StatusCallbackEvents []string
}

// CallResult is the carrier's response to placing a call.
type CallResult struct {
	SID    string
	Status string
}

// MakeCall places an outbound call with inline TwiML.
func (c *Client) MakeCall(ctx context.Context, p CallParams) (*CallResult, error) {
	form := url.Values{}
	form.Set("To", p.To)
	form.Set("From", p.From)
	form.Set("Twiml", p.TwiML)
	if p.StatusCallback != "" {
		form.Set("StatusCallback", p.StatusCallback)
		for _, ev := range p.StatusCallbackEvents {
			form.Add("StatusCallbackEvent", ev)
		}
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", c.baseURL, c.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindInternal, "carrier.client", "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindUpstreamProvider, "carrier.client", "place call", err)
	}
	defer resp.Body.Close()

	var body struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindUpstreamProvider, "carrier.client", "decode response", err)
	}

	if resp.StatusCode >= 300 {
		msg := body.Message
		if msg == "" {
			msg = fmt.Sprintf("carrier returned status %d", resp.StatusCode)
		}
		return nil, bridgeerr.New(bridgeerr.KindUpstreamProvider, "carrier.client", msg)
	}

	return &CallResult{SID: body.SID, Status: body.Status}, nil
}

// UpdateCallStatus transitions a live call (e.g. to "completed" to hang up).
func (c *Client) UpdateCallStatus(ctx context.Context, callSID, status string) error {
	form := url.Values{}
	form.Set("Status", status)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", c.baseURL, c.cfg.AccountSID, callSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.KindInternal, "carrier.client", "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.KindUpstreamProvider, "carrier.client", "update call", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return bridgeerr.New(bridgeerr.KindUpstreamProvider, "carrier.client", fmt.Sprintf("carrier returned status %d", resp.StatusCode))
	}
	return nil
}

// UpdateCallTwiML redirects a live call's control flow to new inline TwiML,
// the mechanism Speak falls back to when no media stream is attached.
func (c *Client) UpdateCallTwiML(ctx context.Context, callSID, twiml string) error {
	form := url.Values{}
	form.Set("Twiml", twiml)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", c.baseURL, c.cfg.AccountSID, callSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.KindInternal, "carrier.client", "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.KindUpstreamProvider, "carrier.client", "update call twiml", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return bridgeerr.New(bridgeerr.KindUpstreamProvider, "carrier.client", fmt.Sprintf("carrier returned status %d", resp.StatusCode))
	}
	return nil
}

// This package does not map the carrier's status strings onto
// SignalingState, so it has no dependency on the call data model; the call
// manager does the mapping via callrecord.ParseStatus using the same raw
// string this client hands back.

var nonDigitPlus = regexp.MustCompile(`[^\d+]`)

// NormalizePhoneNumber strips non-digit-non-plus characters and, absent a
// leading '+', assumes the configured default country code when the digit
// count matches a known pattern (10 digits → US/Canada), else prepends '+'
// to the digits as-is.
func NormalizePhoneNumber(raw, defaultCountry string) string {
	cleaned := nonDigitPlus.ReplaceAllString(raw, "")
	if strings.HasPrefix(cleaned, "+") {
		return cleaned
	}

	digits := cleaned
	if defaultCountry == "" || defaultCountry == "US" {
		if len(digits) == 10 {
			return "+1" + digits
		}
		if len(digits) == 11 && strings.HasPrefix(digits, "1") {
			return "+" + digits
		}
	}
	return "+" + digits
}
