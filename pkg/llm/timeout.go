package llm

import (
	"context"
	"time"
)

// TimeoutClient bounds every generation call with a fixed timeout. Embedding
// calls pass through untouched; the embedding batch size varies too much for
// a single deadline to fit.
type TimeoutClient struct {
	inner   LLMClient
	timeout time.Duration
}

// NewTimeoutClient wraps a client with a per-call generation timeout.
// A non-positive timeout returns the inner client unchanged.
func NewTimeoutClient(inner LLMClient, timeout time.Duration) LLMClient {
	if timeout <= 0 {
		return inner
	}
	return &TimeoutClient{inner: inner, timeout: timeout}
}

func (c *TimeoutClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.inner.GenerateResponse(callCtx, prompt, systemMessage, temperature)
}

func (c *TimeoutClient) CreateEmbedding(ctx context.Context, input string, model string) ([]float32, error) {
	return c.inner.CreateEmbedding(ctx, input, model)
}

func (c *TimeoutClient) CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error) {
	return c.inner.CreateEmbeddings(ctx, inputs, model)
}

func (c *TimeoutClient) GetModel() string {
	return c.inner.GetModel()
}

func (c *TimeoutClient) GetEndpoint() string {
	return c.inner.GetEndpoint()
}
