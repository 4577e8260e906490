package llm

import (
	"context"
	"time"

	"github.com/ekaya-inc/datagenie/pkg/metrics"
)

// InstrumentedClient records latency and token usage for every call.
type InstrumentedClient struct {
	next Client
}

func NewInstrumentedClient(next Client) *InstrumentedClient {
	return &InstrumentedClient{next: next}
}

func (c *InstrumentedClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	start := time.Now()
	result, err := c.next.GenerateResponse(ctx, prompt, systemMessage, temperature)

	outcome := "ok"
	if err != nil {
		outcome = string(GetErrorType(err))
	}
	provider := c.next.Provider()
	metrics.LLMRequestDuration.WithLabelValues(provider, PurposeFrom(ctx), outcome).Observe(time.Since(start).Seconds())

	if result != nil {
		metrics.LLMTokens.WithLabelValues(provider, "prompt").Add(float64(result.PromptTokens))
		metrics.LLMTokens.WithLabelValues(provider, "completion").Add(float64(result.CompletionTokens))
	}
	return result, err
}

func (c *InstrumentedClient) GetModel() string { return c.next.GetModel() }

func (c *InstrumentedClient) Provider() string { return c.next.Provider() }

var _ Client = (*InstrumentedClient)(nil)
