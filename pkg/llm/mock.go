package llm

import (
	"context"
	"sync"
)

// MockCall records one GenerateResponse invocation.
type MockCall struct {
	Prompt        string
	SystemMessage string
	Temperature   float64
	Purpose       string
}

// MockClient is a scripted Client for tests. Replies are returned in order;
// once exhausted the last reply repeats. GenerateFunc, when set, wins.
type MockClient struct {
	GenerateFunc func(ctx context.Context, prompt, systemMessage string) (string, error)
	Replies      []string
	Err          error
	Model        string

	mu    sync.Mutex
	calls []MockCall
}

func NewMockClient(replies ...string) *MockClient {
	return &MockClient{Replies: replies, Model: "mock-model"}
}

func (m *MockClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	m.mu.Lock()
	idx := len(m.calls)
	m.calls = append(m.calls, MockCall{
		Prompt:        prompt,
		SystemMessage: systemMessage,
		Temperature:   temperature,
		Purpose:       PurposeFrom(ctx),
	})
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		content, err := m.GenerateFunc(ctx, prompt, systemMessage)
		if err != nil {
			return nil, err
		}
		return &GenerateResponseResult{Content: content}, nil
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Replies) == 0 {
		return &GenerateResponseResult{}, nil
	}
	if idx >= len(m.Replies) {
		idx = len(m.Replies) - 1
	}
	return &GenerateResponseResult{Content: m.Replies[idx]}, nil
}

func (m *MockClient) GetModel() string { return m.Model }

func (m *MockClient) Provider() string { return "mock" }

// Calls returns a copy of the recorded invocations.
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallsFor returns the invocations made with the given purpose.
func (m *MockClient) CallsFor(purpose string) []MockCall {
	var out []MockCall
	for _, c := range m.Calls() {
		if c.Purpose == purpose {
			out = append(out, c)
		}
	}
	return out
}

var _ Client = (*MockClient)(nil)
