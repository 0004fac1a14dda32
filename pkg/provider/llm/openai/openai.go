// Package openai implements [llm.Provider] on the OpenAI chat completions API.
// It is the only backend that accepts image inputs, so the tool server's
// vision tool always runs on it.
//
// The option set is shared with the image and speech providers through
// [RequestOptions] so every OpenAI client in the process is configured alike.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/toolroute/pkg/provider/llm"
)

// ErrEmptyChoices is returned when the API answers without a choice.
var ErrEmptyChoices = errors.New("openai: empty choices in response")

type clientConfig struct {
	baseURL      string
	organization string
	timeout      time.Duration
}

// Option configures the HTTP client of an OpenAI provider.
type Option func(*clientConfig)

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) { c.baseURL = url }
}

// WithOrganization sends the OpenAI-Organization header.
func WithOrganization(org string) Option {
	return func(c *clientConfig) { c.organization = org }
}

// WithTimeout bounds every HTTP request made by the client.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.timeout = d }
}

// RequestOptions turns apiKey and opts into SDK request options.
func RequestOptions(apiKey string, opts ...Option) []option.RequestOption {
	var cfg clientConfig
	for _, o := range opts {
		o(&cfg)
	}

	out := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		out = append(out, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		out = append(out, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		out = append(out, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return out
}

// Provider answers completion requests with one chat completion call each.
type Provider struct {
	client oai.Client
	model  string
}

var _ llm.Provider = (*Provider)(nil)

// New returns a Provider for model.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	switch {
	case apiKey == "":
		return nil, errors.New("openai: apiKey must not be empty")
	case model == "":
		return nil, errors.New("openai: model must not be empty")
	}
	return &Provider{client: oai.NewClient(RequestOptions(apiKey, opts...)...), model: model}, nil
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.params(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyChoices
	}

	choice := resp.Choices[0]
	return &llm.CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func (p *Provider) params(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}
	for i, m := range req.Messages {
		msg, err := message(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, fmt.Errorf("openai: message %d: %w", i, err)
		}
		messages = append(messages, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.JSONObject {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params, nil
}

// message maps m onto the SDK union. Images travel as image_url parts and are
// only valid on user messages.
func message(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	if len(m.ImageURLs) > 0 && m.Role != llm.RoleUser {
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("images are only supported on user messages, got role %q", m.Role)
	}

	switch m.Role {
	case llm.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case llm.RoleAssistant:
		return oai.AssistantMessage(m.Content), nil
	case llm.RoleUser:
		if len(m.ImageURLs) == 0 {
			return oai.UserMessage(m.Content), nil
		}
		parts := make([]oai.ChatCompletionContentPartUnionParam, 0, len(m.ImageURLs)+1)
		if m.Content != "" {
			parts = append(parts, oai.TextContentPart(m.Content))
		}
		for _, u := range m.ImageURLs {
			parts = append(parts, oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{URL: u}))
		}
		return oai.UserMessage(parts), nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unknown message role %q", m.Role)
	}
}
