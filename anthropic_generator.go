package destiny

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// TextGenerator turns a prompt into free text
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// AnthropicGenerator implements TextGenerator with the Anthropic Messages API
type AnthropicGenerator struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicGenerator creates a generator from reading config.
//
// An empty APIKey falls back to the ANTHROPIC_API_KEY environment variable.
func NewAnthropicGenerator(config *ReadingConfig, opts ...option.RequestOption) *AnthropicGenerator {
	if config == nil {
		config = DefaultReadingConfig()
	}

	clientOpts := make([]option.RequestOption, 0, len(opts)+2)
	if config.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(config.APIKey))
	}
	// retries are handled by ErrorRecovery
	clientOpts = append(clientOpts, option.WithMaxRetries(0))
	clientOpts = append(clientOpts, opts...)

	return &AnthropicGenerator{
		client:    anthropic.NewClient(clientOpts...),
		model:     anthropic.Model(config.Model),
		maxTokens: config.MaxTokens,
	}
}

// Generate sends prompt as a single user message and joins the text blocks of the reply
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", classifyAPIError(err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// classifyAPIError marks throttling and server-side failures as retryable;
// other API errors (auth, bad request) are permanent
func classifyAPIError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	details := fmt.Sprintf("status %d", apiErr.StatusCode)
	if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError {
		return ErrReadingUnavailable.WithCause(err).WithDetails(details)
	}
	return NewError(ErrCodeReadingUnavailable, "reading request rejected").WithCause(err).WithDetails(details)
}
