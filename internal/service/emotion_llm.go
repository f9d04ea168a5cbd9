package service

import (
	"context"
	"fmt"
	"strings"

	"persona-engine/internal/domain"
	"persona-engine/internal/llm"
)

const emotionAnalysisPrompt = `You are the affect analysis module of a conversational persona.
Classify the emotional state of the CURRENT MESSAGE. Use the recent conversation only as context.

Allowed emotions: %s

Respond ONLY with a JSON object, no prose:
{"primary_emotion": "<allowed emotion>", "confidence": 0.0-1.0, "intensity": 0.0-1.0,
 "secondary_emotions": [{"emotion": "<allowed emotion>", "confidence": 0.0-1.0}],
 "vad": {"valence": -1.0-1.0, "arousal": 0.0-1.0, "dominance": 0.0-1.0},
 "triggers": ["<phrase from the message>"]}

Recent conversation:
%s

CURRENT MESSAGE: %q`

type modelEmotionAnalysis struct {
	PrimaryEmotion string  `json:"primary_emotion"`
	Confidence     float64 `json:"confidence"`
	Intensity      float64 `json:"intensity"`
	Secondary      []struct {
		Emotion    string  `json:"emotion"`
		Confidence float64 `json:"confidence"`
	} `json:"secondary_emotions"`
	VAD      *domain.VAD `json:"vad"`
	Triggers []string    `json:"triggers"`
}

func buildEmotionAnalysisPrompt(text string, history []domain.ChatTurn) string {
	names := make([]string, 0, len(emotionOrder))
	for _, e := range emotionOrder {
		names = append(names, string(e))
	}
	return fmt.Sprintf(emotionAnalysisPrompt, strings.Join(names, ", "), formatHistory(history), text)
}

func formatHistory(history []domain.ChatTurn) string {
	if len(history) == 0 {
		return "(no previous messages)"
	}
	var b strings.Builder
	for _, t := range history {
		role := strings.TrimSpace(t.Role)
		if role == "" {
			role = "user"
		}
		fmt.Fprintf(&b, "- %s: %s\n", role, strings.TrimSpace(t.Content))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *EmotionDetector) analyzeWithModel(ctx context.Context, text string, history []domain.ChatTurn) (domain.AdvancedEmotionResult, error) {
	raw, err := d.completer.Complete(ctx, buildEmotionAnalysisPrompt(text, history), llm.CompletionOptions{
		MaxTokens:   300,
		Temperature: 0.2,
	})
	if err != nil {
		return domain.AdvancedEmotionResult{}, fmt.Errorf("complete: %w", err)
	}

	var parsed modelEmotionAnalysis
	if err := parseModelJSON(raw, emotionAnalysisSchema, &parsed); err != nil {
		return domain.AdvancedEmotionResult{}, err
	}

	primary, _ := ParseEmotion(parsed.PrimaryEmotion)
	res := domain.AdvancedEmotionResult{
		Emotion:    primary,
		Confidence: clamp01(parsed.Confidence),
		Intensity:  clamp01(parsed.Intensity),
		VAD:        VADFor(primary),
		Trend:      domain.TrendStable,
		Method:     domain.DetectionMethodModel,
	}
	if parsed.VAD != nil {
		res.VAD = domain.VAD{
			Valence:   clamp(parsed.VAD.Valence, -1, 1),
			Arousal:   clamp01(parsed.VAD.Arousal),
			Dominance: clamp01(parsed.VAD.Dominance),
		}
	}
	for _, s := range parsed.Secondary {
		e, ok := ParseEmotion(s.Emotion)
		if !ok || e == primary {
			continue
		}
		res.Secondary = append(res.Secondary, domain.SecondaryEmotion{Emotion: e, Confidence: clamp01(s.Confidence)})
		if len(res.Secondary) == maxSecondaryEmotions {
			break
		}
	}
	for _, t := range parsed.Triggers {
		if t = strings.TrimSpace(t); t != "" {
			res.Triggers = append(res.Triggers, t)
		}
	}
	return res, nil
}
