package domain

import "time"

// Clases de estilo de habla.
const (
	SentenceShort  = "short"
	SentenceMedium = "medium"
	SentenceLong   = "long"

	VocabularySimple        = "simple"
	VocabularyModerate      = "moderate"
	VocabularySophisticated = "sophisticated"
)

type SpeechPatterns struct {
	SentenceLength      string `json:"sentence_length" yaml:"sentence_length"`
	Vocabulary          string `json:"vocabulary" yaml:"vocabulary"`
	EmotionalExpression string `json:"emotional_expression" yaml:"emotional_expression"`
	Humor               string `json:"humor" yaml:"humor"`
}

// PersonaDefinition es la configuracion de la persona tal como la guarda el repositorio.
type PersonaDefinition struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Archetype         string         `json:"archetype"`
	Description       string         `json:"description,omitempty"`
	Traits            []string       `json:"traits,omitempty"`
	SpeechPatterns    SpeechPatterns `json:"speech_patterns"`
	EmotionalBaseline EmotionState   `json:"emotional_baseline,omitempty"`
	Boundaries        []string       `json:"boundaries,omitempty"`
	SignaturePhrases  []string       `json:"signature_phrases,omitempty"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// PersonalityAnchor es la identidad fija derivada de una PersonaDefinition.
// Solo se reemplaza entera al recalcularla; nunca se muta en sitio.
type PersonalityAnchor struct {
	PersonaID         string         `json:"persona_id"`
	Name              string         `json:"name"`
	Archetype         string         `json:"archetype"`
	CoreIdentity      string         `json:"core_identity"`
	Boundaries        []string       `json:"boundaries"`
	SignaturePhrases  []string       `json:"signature_phrases"`
	Traits            []string       `json:"traits"`
	SpeechPatterns    SpeechPatterns `json:"speech_patterns"`
	EmotionalBaseline EmotionState   `json:"emotional_baseline"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Clone devuelve una copia sin slices compartidos.
func (a PersonalityAnchor) Clone() PersonalityAnchor {
	out := a
	out.Boundaries = append([]string(nil), a.Boundaries...)
	out.SignaturePhrases = append([]string(nil), a.SignaturePhrases...)
	out.Traits = append([]string(nil), a.Traits...)
	return out
}

type DriftType string

const (
	DriftBoundary       DriftType = "boundary"
	DriftVocabulary     DriftType = "vocabulary"
	DriftSentenceLength DriftType = "sentence_length"
)

type DriftSeverity string

const (
	DriftMinor  DriftSeverity = "minor"
	DriftSevere DriftSeverity = "severe"
)

type DriftIndicator struct {
	Type       DriftType     `json:"type"`
	Severity   DriftSeverity `json:"severity"`
	Message    string        `json:"message"`
	DetectedAt time.Time     `json:"detected_at"`
}

// ConsistencyMetrics sigue la coherencia de voz de una persona entre refuerzos.
type ConsistencyMetrics struct {
	PersonaID                  string           `json:"persona_id"`
	MessagesSinceReinforcement int              `json:"messages_since_reinforcement"`
	ConsistencyScore           float64          `json:"consistency_score"`
	DriftIndicators            []DriftIndicator `json:"drift_indicators"`
	Corrections                int              `json:"corrections"`
	LastReinforcementAt        time.Time        `json:"last_reinforcement_at"`
}

// NewConsistencyMetrics arranca con puntaje perfecto.
func NewConsistencyMetrics(personaID string) ConsistencyMetrics {
	return ConsistencyMetrics{
		PersonaID:        personaID,
		ConsistencyScore: 1.0,
		DriftIndicators:  []DriftIndicator{},
	}
}

func (m ConsistencyMetrics) Clone() ConsistencyMetrics {
	out := m
	out.DriftIndicators = append([]DriftIndicator(nil), m.DriftIndicators...)
	return out
}
