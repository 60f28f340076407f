package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/reviewlens/reviewlens/internal/report"
)

const openAIDefaultModel = "gpt-4o-mini"

// OpenAI summarises through the Chat Completions API of OpenAI or any
// compatible endpoint.
type OpenAI struct {
	model   string
	backoff time.Duration
	client  openai.Client
}

// NewOpenAI reads OPENAI_API_KEY. A custom baseURL points the client at a
// compatible endpoint.
func NewOpenAI(model, baseURL string) (*OpenAI, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
	}
	if model == "" {
		model = openAIDefaultModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{
		model:   model,
		backoff: time.Second,
		client:  openai.NewClient(opts...),
	}, nil
}

func (o *OpenAI) Name() string  { return "openai" }
func (o *OpenAI) Model() string { return o.model }

func (o *OpenAI) Summarize(ctx context.Context, facts report.Facts) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(report.SystemPrompt),
			openai.UserMessage(facts.Prompt()),
		},
		Temperature:         openai.Float(0),
		MaxCompletionTokens: openai.Int(maxSummaryTokens),
	}

	var content string
	err := retryWithBackoff(ctx, maxRetries, o.backoff, func() error {
		resp, err := o.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return classifyOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty response from model")
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	return content, err
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("sending request: %w", err)
	}
	switch apiErr.StatusCode {
	case http.StatusTooManyRequests:
		return &rateLimitError{status: apiErr.StatusCode}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &authError{message: apiErr.Message}
	default:
		return fmt.Errorf("API error (status %d): %w", apiErr.StatusCode, err)
	}
}
