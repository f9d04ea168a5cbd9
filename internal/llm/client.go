package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
)

// ChatClient implementa Completer contra una API chat/completions compatible con OpenAI.
type ChatClient struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

// NewChatClient construye el cliente de chat completions con el SDK oficial.
// Sin reintentos: los caminos asistidos por modelo caen al camino deterministico.
func NewChatClient(baseURL, apiKey, model string, logger *zap.Logger) *ChatClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.RequestOption{
		option.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
		option.WithMaxRetries(0),
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")))
	}
	return &ChatClient{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logger,
	}
}

func (c *ChatClient) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			c.logger.Warn("llm error status", zap.Int("status", apiErr.StatusCode), zap.String("message", apiErr.Message))
			return "", fmt.Errorf("llm http error: status=%d: %s", apiErr.StatusCode, strings.TrimSpace(apiErr.Message))
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("llm empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
