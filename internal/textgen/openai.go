package textgen

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIClient implements Client against the OpenAI chat completions API.
type OpenAIClient struct {
	client         openai.Client
	model          string
	requestTimeout time.Duration
	logger         *slog.Logger
}

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	RequestTimeout time.Duration
}

// NewOpenAIClient creates a completion client for the configured model.
func NewOpenAIClient(cfg OpenAIConfig, logger *slog.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai client: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai client: model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		client:         openai.NewClient(opts...),
		model:          cfg.Model,
		requestTimeout: timeout,
		logger:         logger,
	}, nil
}

// Complete implements Client. Every request carries an explicit timeout
// so a stalled backend cannot block the per-viewer turn indefinitely.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt string, history []Message, maxTokens int, temperature float64) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, msg := range history {
		switch msg.Role {
		case RoleUser:
			messages = append(messages, openai.UserMessage(msg.Text))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Text))
		default:
			return "", fmt.Errorf("%w: unsupported role %q", ErrGeneration, msg.Role)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		c.logger.Warn("completion request failed", "model", c.model, "error", err)
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if len(resp.Choices) != 1 {
		return "", fmt.Errorf("%w: unexpected choices length %d", ErrGeneration, len(resp.Choices))
	}

	text := resp.Choices[0].Message.Content
	if text == "" {
		text = resp.Choices[0].Message.Refusal
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrGeneration)
	}

	c.logger.Debug("completion succeeded",
		"model", resp.Model,
		"total_tokens", resp.Usage.TotalTokens,
		"finish_reason", resp.Choices[0].FinishReason,
	)
	return text, nil
}
