package main

import (
	"context"
	"fmt"
	"sync"

	"persona-engine/internal/llm"
)

// scriptedCompleter devuelve respuestas fijas en orden; permite correr el chequeo sin LLM.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	next    int
}

func newScriptedCompleter(replies []string) *scriptedCompleter {
	return &scriptedCompleter{replies: replies}
}

func (s *scriptedCompleter) Complete(_ context.Context, _ string, _ llm.CompletionOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.replies) {
		return "", fmt.Errorf("scripted completer exhausted after %d replies", len(s.replies))
	}
	r := s.replies[s.next]
	s.next++
	return r, nil
}
