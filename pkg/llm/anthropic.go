package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient adapts the Anthropic Messages API to the Completer
// interface.
type AnthropicClient struct {
	client sdk.Client
	model  string
}

// NewAnthropic builds an Anthropic-backed completer. baseURL overrides the
// API endpoint when non-empty, which record/replay rigs and proxies rely on.
func NewAnthropic(apiKey, model, baseURL string) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicClient{
		client: sdk.NewClient(opts...),
		model:  model,
	}
}

func (c *AnthropicClient) Complete(ctx context.Context, req Request) (string, error) {
	params := sdk.MessageNewParams{
		Model:       sdk.Model(c.model),
		MaxTokens:   int64(req.MaxTokens),
		Messages:    encodeAnthropicMessages(req.Messages),
		Temperature: sdk.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", classifyAnthropicErr(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", ErrEmpty
	}
	return text.String(), nil
}

func encodeAnthropicMessages(msgs []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	return out
}

func classifyAnthropicErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var apierr *sdk.Error
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
