package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"persona-engine/internal/domain"
	"persona-engine/internal/llm"
)

// judgeResponse representa la respuesta estructurada del juez evaluador en formato JSON.
type judgeResponse struct {
	Reasoning      string `json:"reasoning"`
	CharacterScore int    `json:"character_score"`
	VoiceScore     int    `json:"voice_score"`
}

func evaluateResponse(
	ctx context.Context,
	judge llm.Completer,
	anchor domain.PersonalityAnchor,
	sc Scenario,
	response string,
) (judgeResponse, error) {
	assistantTone := detectAssistantTone(response)
	signature := usesSignaturePhrase(anchor, response)

	heuristicLine := fmt.Sprintf(
		"Indicadores heurísticos: tono_asistente=%t, frase_firma=%t",
		assistantTone, signature,
	)

	prompt := buildJudgePrompt(describeAnchor(anchor), heuristicLine, sc.Input, response, sc.ExpectedBehavior)

	raw, err := judge.Complete(ctx, prompt, llm.CompletionOptions{MaxTokens: 300, Temperature: 0})
	if err != nil {
		return judgeResponse{}, err
	}

	jsonStr := extractFirstJSONObject(raw)
	if jsonStr == "" {
		return judgeResponse{}, fmt.Errorf("juez devolvió no-json: %q", raw)
	}

	var jr judgeResponse
	if err := json.Unmarshal([]byte(jsonStr), &jr); err != nil {
		return judgeResponse{}, fmt.Errorf("error parseando JSON juez: %w (raw=%q full=%q)", err, jsonStr, raw)
	}

	jr.CharacterScore = clamp1to5(jr.CharacterScore)
	jr.VoiceScore = clamp1to5(jr.VoiceScore)

	// tono de asistente rompe el personaje
	if assistantTone && jr.CharacterScore > 2 {
		jr.CharacterScore = 2
	}

	return jr, nil
}

func clamp1to5(v int) int {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

func describeAnchor(a domain.PersonalityAnchor) string {
	parts := []string{a.CoreIdentity}
	if len(a.Traits) > 0 {
		parts = append(parts, "Rasgos: "+strings.Join(a.Traits, ", "))
	}
	if a.SpeechPatterns.Vocabulary != "" || a.SpeechPatterns.SentenceLength != "" {
		parts = append(parts, fmt.Sprintf("Habla: vocabulario %s, oraciones %s",
			a.SpeechPatterns.Vocabulary, a.SpeechPatterns.SentenceLength))
	}
	if len(a.Boundaries) > 0 {
		parts = append(parts, "Nunca: "+strings.Join(a.Boundaries, "; "))
	}
	return strings.Join(parts, "\n")
}

func detectAssistantTone(response string) bool {
	lNorm := normalizeASCIIString(strings.ToLower(response))

	strongSignals := []string{
		"as an ai",
		"language model",
		"how can i assist",
		"i'm here to help",
		"i am here to help",
		"here is a list",
		"here's a list",
	}

	softSignals := []string{
		"certainly",
		"of course",
		"great question",
		"i hope this helps",
		"feel free",
	}

	for _, s := range strongSignals {
		if strings.Contains(lNorm, s) {
			return true
		}
	}

	softCount := 0
	for _, s := range softSignals {
		if strings.Contains(lNorm, s) {
			softCount++
		}
	}

	return softCount >= 2
}

func usesSignaturePhrase(a domain.PersonalityAnchor, response string) bool {
	l := strings.ToLower(response)
	for _, p := range a.SignaturePhrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" && strings.Contains(l, p) {
			return true
		}
	}
	return false
}

func normalizeASCIIString(s string) string {
	replacer := strings.NewReplacer(
		"’", "'", "‘", "'",
		"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
	)
	return replacer.Replace(s)
}

func buildJudgePrompt(anchorStr, heuristicLine, input, response, expected string) string {
	return fmt.Sprintf(
		`Eres un juez experto que evalúa la coherencia de una persona conversacional.

Ancla de personalidad:
%s
%s

Input Usuario: %q
Respuesta Persona: %q
Expectativa del escenario: %s

Evalúa (1-5):
1) Personaje: ¿La respuesta se mantiene dentro de la identidad y los límites del ancla?
   - Si tono_asistente=true => Personaje máximo 2/5.
2) Voz: ¿Vocabulario y largo de oración coinciden con el ancla?
   - frase_firma=true suma, pero no es obligatoria para 5/5.

Responde SOLO JSON (sin markdown):
{
  "reasoning": "...",
  "character_score": 0,
  "voice_score": 0
}`,
		anchorStr, heuristicLine, input, response, expected,
	)
}

// extractFirstJSONObject devuelve el primer objeto {...} balanceado.
func extractFirstJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
