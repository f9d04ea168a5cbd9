package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"persona-engine/internal/domain"
	"persona-engine/internal/llm"
)

const (
	minCandidateLength     = 5
	maxExtractedCandidates = 5
)

const memoryExtractionPrompt = `You maintain the long-term memory of a conversational persona.
From the exchange below, extract up to %d durable facts about the user worth remembering
(facts, preferences, events, relationships, skills). Skip small talk.

Respond ONLY with JSON:
{"memories": [{"content": "<short third-person fact>", "type": "fact|preference|event|relationship|skill",
  "importance": 0.0-1.0, "confidence": 0.0-1.0}]}

USER: %q
PERSONA: %q`

type extractionResponse struct {
	Memories []domain.MemoryCandidate `json:"memories"`
}

// Extract pide al modelo hechos candidatos de un intercambio y guarda los validos.
// Una respuesta malformada no es error: se registra y no se guarda nada.
func (m *MemoryManager) Extract(ctx context.Context, personaID, userID, userMessage, personaMessage string) ([]domain.Memory, error) {
	if m.completer == nil {
		return nil, ErrCompletionNotConfigured
	}

	prompt := fmt.Sprintf(memoryExtractionPrompt, maxExtractedCandidates, userMessage, personaMessage)
	raw, err := m.completer.Complete(ctx, prompt, llm.CompletionOptions{MaxTokens: 400, Temperature: 0.1})
	if err != nil {
		m.logger.Warn("memory extraction call failed", zap.String("persona_id", personaID), zap.Error(err))
		return nil, nil
	}

	var parsed extractionResponse
	if err := parseModelJSON(raw, memoryExtractionSchema, &parsed); err != nil {
		m.logger.Warn("memory extraction response malformed", zap.String("persona_id", personaID), zap.Error(err))
		return nil, nil
	}

	candidates := filterCandidates(parsed.Memories)
	if len(candidates) == 0 {
		return nil, nil
	}
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Content
	}
	vecs, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed extracted memories: %w", err)
	}
	if len(vecs) != len(candidates) {
		return nil, fmt.Errorf("embed extracted memories: got %d vectors for %d texts", len(vecs), len(candidates))
	}

	stored := make([]domain.Memory, 0, len(candidates))
	for i, c := range candidates {
		mem, err := m.persist(ctx, personaID, c.Content, domain.MemoryMetadata{
			UserID:     userID,
			Type:       c.Type,
			Importance: c.Importance,
			Confidence: c.Confidence,
		}, vecs[i])
		if err != nil {
			return stored, fmt.Errorf("store extracted memory: %w", err)
		}
		stored = append(stored, mem)
	}
	m.logger.Debug("memories extracted", zap.String("persona_id", personaID), zap.Int("count", len(stored)))
	return stored, nil
}

// filterCandidates descarta contenidos de menos de 5 caracteres y limita la cantidad.
func filterCandidates(list []domain.MemoryCandidate) []domain.MemoryCandidate {
	out := make([]domain.MemoryCandidate, 0, len(list))
	for _, c := range list {
		c.Content = strings.TrimSpace(c.Content)
		if utf8.RuneCountInString(c.Content) < minCandidateLength {
			continue
		}
		out = append(out, c)
		if len(out) == maxExtractedCandidates {
			break
		}
	}
	return out
}
