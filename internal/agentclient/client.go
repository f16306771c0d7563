// Package agentclient forwards caller transcriptions to the external
// conversational agent and parses its reply.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/voicebridge/callbridge/internal/bridgeerr"
)

// Client POSTs transcribed caller speech to the agent gateway and returns
// its textual reply, if any.
type Client struct {
	gatewayURL string
	httpClient *http.Client
}

// New constructs a Client pointed at the agent gateway's base URL.
func New(gatewayURL string) *Client {
	return &Client{
		gatewayURL: gatewayURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type messageRequest struct {
	CallSID string `json:"call_sid"`
	From    string `json:"from"`
	Text    string `json:"text"`
}

type messageResponse struct {
	Response *string `json:"response,omitempty"`
}

// SendMessage forwards one user turn. Returns ("", nil) when the agent
// replies with no response field — per spec, any other response shape is
// treated as "no reply" rather than an error.
func (c *Client) SendMessage(ctx context.Context, callSID, from, text string) (string, error) {
	body, err := json.Marshal(messageRequest{CallSID: callSID, From: from, Text: text})
	if err != nil {
		return "", bridgeerr.Wrap(bridgeerr.KindInternal, "agentclient", "marshal request", err)
	}

	url := fmt.Sprintf("%s/api/voice/message", c.gatewayURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", bridgeerr.Wrap(bridgeerr.KindInternal, "agentclient", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", bridgeerr.Wrap(bridgeerr.KindUpstreamProvider, "agentclient", "post message", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", bridgeerr.New(bridgeerr.KindUpstreamProvider, "agentclient", fmt.Sprintf("agent gateway returned status %d", resp.StatusCode))
	}

	var parsed messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		// Malformed or unexpected response shape is "no reply", not an error.
		return "", nil
	}
	if parsed.Response == nil {
		return "", nil
	}
	return *parsed.Response, nil
}
