package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ShayCichocki/gala/internal/tools"
)

// maxResponseBytes caps how much of a webhook reply is read.
const maxResponseBytes = 1 << 20

// HTTPConnector forwards tool calls to a JSON webhook:
//
//	POST <url> {"tool": "<name>", "input": {...}}
//
// The reply is {"success": bool, "data": any, "error": string}. A "token"
// secret is sent as a bearer token.
type HTTPConnector struct {
	id      string
	url     string
	enabled bool
	specs   []tools.Spec
	client  *http.Client
	token   string
}

var _ Connector = (*HTTPConnector)(nil)

// NewHTTPConnector creates a webhook connector advertising specs.
func NewHTTPConnector(id, url string, enabled bool, specs []tools.Spec) *HTTPConnector {
	return &HTTPConnector{
		id:      id,
		url:     url,
		enabled: enabled,
		specs:   specs,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPConnector) ID() string { return c.id }

func (c *HTTPConnector) Enabled() bool { return c.enabled }

func (c *HTTPConnector) Tools() []tools.Spec {
	return append([]tools.Spec(nil), c.specs...)
}

func (c *HTTPConnector) Initialize(_ context.Context, secrets map[string]string) error {
	c.token = secrets["token"]
	return nil
}

// TestConnection issues a GET and accepts any non-5xx answer.
func (c *HTTPConnector) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%s answered %s", c.url, resp.Status)
	}
	return nil
}

type webhookRequest struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
}

func (c *HTTPConnector) ExecuteTool(ctx context.Context, name string, input json.RawMessage) (any, error) {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	body, err := json.Marshal(webhookRequest{Tool: name, Input: input})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook answered %s: %s", resp.Status, bytes.TrimSpace(raw))
	}

	var out Result
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !out.Success {
		if out.Error == "" {
			out.Error = "webhook reported failure"
		}
		return nil, fmt.Errorf("%s", out.Error)
	}
	return out.Data, nil
}

func (c *HTTPConnector) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
