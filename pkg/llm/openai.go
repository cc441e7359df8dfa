package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/askql/askql/pkg/config"
)

// OpenAIClient adapts the Chat Completions API to the Completer interface.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAI builds an OpenAI-backed completer. baseURL overrides the API
// endpoint when non-empty.
func NewOpenAI(apiKey, model, baseURL string) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAIErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmpty
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmpty
	}
	return content, nil
}

func classifyOpenAIErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", ErrQuota, err)
		case apierr.StatusCode >= 500:
			return fmt.Errorf("%w: %w", ErrTransport, err)
		default:
			// Auth and validation failures will not heal on retry.
			return permanent(fmt.Errorf("%w: %w", ErrTransport, err))
		}
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// NewCompleter selects the provider implementation named by the
// configuration.
func NewCompleter(cfg config.LLMConfig) (Completer, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	case config.ProviderAnthropic:
		return NewAnthropic(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
