package llm

import (
	"context"
	"sync"
)

// MockClient permite tests sin llamar a un LLM real.
type MockClient struct {
	mu       sync.Mutex
	Response string
	Err      error
	Prompts  []string
}

func (m *MockClient) Complete(_ context.Context, prompt string, _ CompletionOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, prompt)
	return m.Response, m.Err
}

// Calls devuelve cuantas veces se invoco Complete.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}
