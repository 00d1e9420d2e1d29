package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"partsiq_backend/platform/apperr"
)

const (
	defaultBaseURL = "https://api.vapi.ai"
	submitTimeout  = 30 * time.Second
	maxErrorBody   = 4096
)

// Client calls the Vapi HTTP API. The API key is supplied per request so one
// client serves both platform and organization-supplied keys.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client. An empty baseURL selects the production API.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: submitTimeout},
	}
}

// CreateCall submits an outbound call. A non-2xx response becomes an
// upstream error carrying the provider's status and body.
func (c *Client) CreateCall(ctx context.Context, apiKey string, req *CreateCallRequest) (*CreateCallResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal call request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/call", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build call request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "voice provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, apperr.New(apperr.KindUpstream,
			fmt.Sprintf("voice provider rejected call: status %d: %s", resp.StatusCode, string(detail)))
	}

	var out CreateCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "decode call response", err)
	}
	if out.ID == "" {
		return nil, apperr.New(apperr.KindUpstream, "voice provider returned no call id")
	}
	return &out, nil
}
