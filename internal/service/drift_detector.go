package service

import (
	"fmt"
	"strings"
	"time"

	"persona-engine/internal/domain"
)

const (
	maxSimpleWordLength        = 7.0
	minSophisticatedWordLength = 4.5
	maxShortSentenceWords      = 15.0
)

// DriftDetector decide si una respuesta se aleja de la voz definida en el ancla.
type DriftDetector interface {
	Detect(anchor domain.PersonalityAnchor, response string, at time.Time) []domain.DriftIndicator
}

// HeuristicDriftDetector usa frases prohibidas y promedios de largo de palabra/oracion.
type HeuristicDriftDetector struct{}

func (HeuristicDriftDetector) Detect(anchor domain.PersonalityAnchor, response string, at time.Time) []domain.DriftIndicator {
	if strings.TrimSpace(response) == "" {
		return nil
	}
	var out []domain.DriftIndicator

	lower := strings.ToLower(response)
	for _, b := range anchor.Boundaries {
		phrase := strings.ToLower(strings.TrimSpace(b))
		if phrase == "" || !strings.Contains(lower, phrase) {
			continue
		}
		out = append(out, domain.DriftIndicator{
			Type:       domain.DriftBoundary,
			Severity:   domain.DriftSevere,
			Message:    fmt.Sprintf("response contains boundary phrase %q", b),
			DetectedAt: at,
		})
	}

	avgWord := averageWordLength(splitWords(response))
	switch anchor.SpeechPatterns.Vocabulary {
	case domain.VocabularySimple:
		if avgWord > maxSimpleWordLength {
			out = append(out, domain.DriftIndicator{
				Type:       domain.DriftVocabulary,
				Severity:   domain.DriftMinor,
				Message:    fmt.Sprintf("average word length %.1f too high for simple vocabulary", avgWord),
				DetectedAt: at,
			})
		}
	case domain.VocabularySophisticated:
		if avgWord > 0 && avgWord < minSophisticatedWordLength {
			out = append(out, domain.DriftIndicator{
				Type:       domain.DriftVocabulary,
				Severity:   domain.DriftMinor,
				Message:    fmt.Sprintf("average word length %.1f too low for sophisticated vocabulary", avgWord),
				DetectedAt: at,
			})
		}
	}

	if anchor.SpeechPatterns.SentenceLength == domain.SentenceShort {
		if avgSentence := averageSentenceLength(response); avgSentence > maxShortSentenceWords {
			out = append(out, domain.DriftIndicator{
				Type:       domain.DriftSentenceLength,
				Severity:   domain.DriftMinor,
				Message:    fmt.Sprintf("average sentence length %.1f words too long for short style", avgSentence),
				DetectedAt: at,
			})
		}
	}
	return out
}
