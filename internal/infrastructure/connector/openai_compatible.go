package connector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sashabaranov/go-openai"

	"llm-gateway/internal/domain/credential"
	domainmodel "llm-gateway/internal/domain/model"
	"llm-gateway/internal/infrastructure/logger"
	httpclients "llm-gateway/internal/utils/httpclients"
	chatclient "llm-gateway/internal/utils/httpclients/chat"
	"llm-gateway/internal/utils/platformerrors"
)

// OpenAICompatible speaks any provider exposing the OpenAI wire shape
// (/chat/completions, /models). Provider kinds that deviate only in the auth
// header (Azure, Anthropic-compatible proxies) are handled at client
// construction.
type OpenAICompatible struct {
	provider *domainmodel.Provider
	chat     *chatclient.ChatCompletionClient
	models   *chatclient.ChatModelClient
	retry    RetryPolicy
}

// NewOpenAICompatible materializes a connector from an immutable provider
// descriptor and one user's credential record. The credential base URL, when
// set, overrides the descriptor's.
func NewOpenAICompatible(p *domainmodel.Provider, cred credential.Record, policy RetryPolicy, timeout time.Duration) *OpenAICompatible {
	baseURL := p.BaseURL
	if strings.TrimSpace(cred.BaseURL) != "" {
		baseURL = cred.BaseURL
	}

	client := httpclients.NewClient(fmt.Sprintf("%sClient", p.PublicID), timeout)
	client.SetBaseURL(baseURL)

	apiKey := strings.TrimSpace(cred.APIKey)
	if apiKey != "" && strings.ToLower(apiKey) != "none" {
		switch p.Kind {
		case domainmodel.ProviderAzureOpenAI:
			client.SetHeader("api-key", apiKey)
		case domainmodel.ProviderAnthropic:
			client.SetHeader("X-API-Key", apiKey)
			client.SetHeader("Anthropic-Version", "2023-06-01")
		default:
			client.SetHeader("Authorization", fmt.Sprintf("Bearer %s", apiKey))
		}
	}

	name := p.DisplayName
	return &OpenAICompatible{
		provider: p,
		chat:     chatclient.NewChatCompletionClient(client, name, baseURL),
		models:   chatclient.NewChatModelClient(client, name, baseURL),
		retry:    policy,
	}
}

func (c *OpenAICompatible) GenerateChat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResult, error) {
	normalized := NormalizeMessages(messages)
	if len(normalized) == 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerConnector, platformerrors.ErrorTypeValidation, "no messages to send", nil, "")
	}

	request := openai.ChatCompletionRequest{
		Model:       opts.Model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stop:        opts.StopAfter,
	}
	if request.Model == "" {
		request.Model = c.provider.DefaultModel
	}
	for _, m := range normalized {
		request.Messages = append(request.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	var resp *openai.ChatCompletionResponse
	err := retry.Do(
		func() error {
			var callErr error
			resp, callErr = c.chat.CreateChatCompletion(ctx, "", request)
			return callErr
		},
		retry.Context(ctx),
		retry.Attempts(c.retry.MaxAttempts),
		retry.Delay(c.retry.BaseDelay),
		retry.MaxJitter(c.retry.Jitter),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.RetryIf(platformerrors.IsTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			logger.Component("connector").Warn().
				Str("provider_id", c.provider.PublicID).
				Uint("attempt", attempt+1).
				Err(err).
				Msg("retrying transient provider failure")
		}),
	)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerConnector, err, "chat generation failed")
	}

	if len(resp.Choices) == 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerConnector, platformerrors.ErrorTypeMalformed, "provider returned no choices", nil, "")
	}

	result := &ChatResult{
		Text:          resp.Choices[0].Message.Content,
		ModelReported: resp.Model,
	}
	if resp.Usage.TotalTokens > 0 || resp.Usage.PromptTokens > 0 {
		result.Usage = &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

func (c *OpenAICompatible) GenerateText(ctx context.Context, prompt string, opts ChatOptions) (*ChatResult, error) {
	return c.GenerateChat(ctx, []Message{{Role: RoleUser, Content: prompt}}, opts)
}

func (c *OpenAICompatible) ListModels(ctx context.Context) ([]string, error) {
	resp, err := c.models.ListModels(ctx)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerConnector, err, "list models failed")
	}
	out := make([]string, 0, len(resp.Data))
	for _, m := range resp.Data {
		out = append(out, m.ID)
	}
	return out, nil
}

func (c *OpenAICompatible) HealthCheck(ctx context.Context) HealthStatus {
	latency, err := c.models.Ping(ctx)
	status := HealthStatus{
		OK:        err == nil,
		LatencyMs: latency.Milliseconds(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

var _ Connector = (*OpenAICompatible)(nil)
