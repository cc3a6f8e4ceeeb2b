package chat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"llm-gateway/internal/utils/platformerrors"

	"github.com/sashabaranov/go-openai"
	"resty.dev/v3"
)

// ChatCompletionClient talks to one OpenAI-compatible /chat/completions
// endpoint. It owns no retry policy; the connector layer wraps it.
type ChatCompletionClient struct {
	client  *resty.Client
	baseURL string
	name    string
}

func NewChatCompletionClient(client *resty.Client, name, baseURL string) *ChatCompletionClient {
	return &ChatCompletionClient{
		client:  client,
		baseURL: normalizeBaseURL(baseURL),
		name:    name,
	}
}

func (c *ChatCompletionClient) CreateChatCompletion(ctx context.Context, apiKey string, request openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	var respBody openai.ChatCompletionResponse
	resp, err := c.prepareRequest(ctx, apiKey).
		SetBody(request).
		SetResult(&respBody).
		Post(c.endpoint("/chat/completions"))
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerConnector, err, "chat completion request failed")
	}
	if resp.IsError() {
		return nil, errorFromResponse(ctx, resp, "chat completion request failed")
	}
	return &respBody, nil
}

func (c *ChatCompletionClient) prepareRequest(ctx context.Context, apiKey string) *resty.Request {
	req := c.client.R().SetContext(ctx)
	req.SetHeader("Content-Type", "application/json")
	if strings.TrimSpace(apiKey) != "" {
		req.SetHeader("Authorization", fmt.Sprintf("Bearer %s", apiKey))
	}
	return req
}

func (c *ChatCompletionClient) endpoint(path string) string {
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

func (c *ChatCompletionClient) BaseURL() string {
	return c.baseURL
}

// errorFromResponse maps an HTTP error response to the gateway error
// taxonomy. A 429 counts as quota only when the provider body indicates a
// daily or limit counter; otherwise it is transient and eligible for retry.
func errorFromResponse(ctx context.Context, resp *resty.Response, message string) error {
	body := readErrorBody(resp)
	status := statusCode(resp)
	errType := classifyStatus(status, body)
	msg := fmt.Sprintf("%s with status %d", message, status)
	if body != "" {
		msg = fmt.Sprintf("%s: %s", msg, body)
	}
	return platformerrors.NewError(ctx, platformerrors.LayerConnector, errType, msg, nil, "")
}

func classifyStatus(status int, body string) platformerrors.ErrorType {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return platformerrors.ErrorTypeAuth
	case status == http.StatusTooManyRequests:
		if indicatesDailyLimit(body) {
			return platformerrors.ErrorTypeQuota
		}
		return platformerrors.ErrorTypeTransient
	case status == http.StatusRequestTimeout || status >= 500:
		return platformerrors.ErrorTypeTransient
	default:
		return platformerrors.ErrorTypeMalformed
	}
}

func indicatesDailyLimit(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range []string{"daily", "quota", "limit exceeded", "billing"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func readErrorBody(resp *resty.Response) string {
	if resp == nil || resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return ""
	}
	defer resp.RawResponse.Body.Close()
	body, err := io.ReadAll(resp.RawResponse.Body)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(body))
}

func normalizeBaseURL(base string) string {
	trimmed := strings.TrimSpace(base)
	trimmed = strings.TrimRight(trimmed, "/")
	return trimmed
}

func statusCode(resp *resty.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode()
}
