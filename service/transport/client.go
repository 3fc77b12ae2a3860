// Package transport carries invoke calls from the webview host process to
// the Beacon server over HTTP. Client satisfies bridge.Invoker.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

type invokeRequest struct {
	Command string         `json:"command"`
	Args    map[string]any `json:"args,omitempty"`
}

type invokeResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Invoke posts the command to the server's invoke surface and returns the
// raw result. A transport failure, a non-2xx status or an error field in
// the response all come back as errors; the bridge decides what to do with
// them.
func (c *Client) Invoke(ctx context.Context, command string, args map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(invokeRequest{Command: command, Args: args})
	if err != nil {
		return nil, fmt.Errorf("failed to encode invoke request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bridge/invoke", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build invoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke transport failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read invoke response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("invoke returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out invokeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode invoke response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%s failed: %s", command, out.Error)
	}

	return out.Result, nil
}
