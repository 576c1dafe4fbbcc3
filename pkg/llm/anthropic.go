package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// AnthropicClient provides generation via the Anthropic Messages API.
// Anthropic does not serve embeddings, so embedding calls are delegated to an
// OpenAI-compatible embedding client.
type AnthropicClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int
	embedder  LLMClient
	logger    *zap.Logger
}

// AnthropicConfig holds configuration for creating an Anthropic client.
type AnthropicConfig struct {
	APIKey    string
	Model     string // e.g. "claude-sonnet-4-5"
	MaxTokens int    // Maximum completion length, 0 = 1024
}

// NewAnthropicClient creates a generation client backed by Anthropic.
// The embedder handles CreateEmbedding/CreateEmbeddings and may be nil when
// the pipeline runs with a separately configured embedding client.
func NewAnthropicClient(cfg *AnthropicConfig, embedder LLMClient, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(cfg.APIKey),
		model:     cfg.Model,
		maxTokens: maxTokens,
		embedder:  embedder,
		logger:    logger.Named("llm.anthropic"),
	}, nil
}

// GenerateResponse generates a chat completion response.
func (c *AnthropicClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error) {
	temp := float32(temperature)

	start := time.Now()
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		System:      systemMessage,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		c.logger.Error("Anthropic request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", ClassifyError(err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			c.logger.Info("Anthropic request completed",
				zap.Duration("elapsed", time.Since(start)))
			return *block.Text, nil
		}
	}

	return "", fmt.Errorf("no text content in response")
}

// CreateEmbedding delegates to the configured embedding client.
func (c *AnthropicClient) CreateEmbedding(ctx context.Context, input string, model string) ([]float32, error) {
	if c.embedder == nil {
		return nil, fmt.Errorf("no embedding client configured")
	}
	return c.embedder.CreateEmbedding(ctx, input, model)
}

// CreateEmbeddings delegates to the configured embedding client.
func (c *AnthropicClient) CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error) {
	if c.embedder == nil {
		return nil, fmt.Errorf("no embedding client configured")
	}
	return c.embedder.CreateEmbeddings(ctx, inputs, model)
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.model
}

// GetEndpoint returns the API endpoint.
func (c *AnthropicClient) GetEndpoint() string {
	return "https://api.anthropic.com"
}

// Ensure AnthropicClient implements LLMClient at compile time.
var _ LLMClient = (*AnthropicClient)(nil)
