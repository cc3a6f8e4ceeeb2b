package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"
)

// ChatModelClient lists models from an OpenAI-compatible /models endpoint and
// doubles as the transport for lightweight health checks.
type ChatModelClient struct {
	client  *resty.Client
	baseURL string
	name    string
}

type ModelsResponse struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

type Model struct {
	ID          string         `json:"id"`
	Object      string         `json:"object"`
	OwnedBy     string         `json:"owned_by"`
	Created     int            `json:"created"`
	DisplayName string         `json:"display_name"`
	Raw         map[string]any `json:"-"`
}

func (m *Model) UnmarshalJSON(data []byte) error {
	type Alias Model
	aux := Alias{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Model(aux)
	m.Raw = raw
	if m.DisplayName == "" {
		if display, ok := raw["display_name"].(string); ok && display != "" {
			m.DisplayName = display
		} else if name, ok := raw["name"].(string); ok && name != "" {
			m.DisplayName = name
		} else {
			m.DisplayName = m.ID
		}
	}
	return nil
}

func NewChatModelClient(client *resty.Client, name, baseURL string) *ChatModelClient {
	return &ChatModelClient{
		client:  client,
		baseURL: normalizeBaseURL(baseURL),
		name:    name,
	}
}

func (c *ChatModelClient) ListModels(ctx context.Context) (*ModelsResponse, error) {
	var respBody ModelsResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&respBody).
		Get(c.endpoint("/models"))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, errorFromResponse(ctx, resp, "list models request failed")
	}
	return &respBody, nil
}

// Ping performs a GET /models round trip and reports the latency. It is the
// cheapest probe an OpenAI-compatible endpoint offers without side effects.
func (c *ChatModelClient) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		Get(c.endpoint("/models"))
	latency := time.Since(start)
	if err != nil {
		return latency, err
	}
	if resp.IsError() {
		return latency, errorFromResponse(ctx, resp, fmt.Sprintf("health probe of %s failed", c.name))
	}
	return latency, nil
}

func (c *ChatModelClient) endpoint(path string) string {
	if path == "" {
		return c.baseURL
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if c.baseURL == "" {
		return path
	}
	if strings.HasPrefix(path, "/") {
		return c.baseURL + path
	}
	return c.baseURL + "/" + path
}
