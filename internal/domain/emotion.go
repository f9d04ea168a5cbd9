package domain

import "time"

// EmotionState es una de las 11 categorias del modelo afectivo.
type EmotionState string

const (
	EmotionHappy      EmotionState = "happy"
	EmotionSad        EmotionState = "sad"
	EmotionAngry      EmotionState = "angry"
	EmotionSurprised  EmotionState = "surprised"
	EmotionThoughtful EmotionState = "thoughtful"
	EmotionExcited    EmotionState = "excited"
	EmotionCalm       EmotionState = "calm"
	EmotionConfident  EmotionState = "confident"
	EmotionCurious    EmotionState = "curious"
	EmotionConcerned  EmotionState = "concerned"
	EmotionNeutral    EmotionState = "neutral"
)

// VAD es una coordenada Valence-Arousal-Dominance.
// Valence en [-1,1], Arousal y Dominance en [0,1].
type VAD struct {
	Valence   float64 `json:"valence"`
	Arousal   float64 `json:"arousal"`
	Dominance float64 `json:"dominance"`
}

// EmotionTrend resume la direccion de la valencia reciente de una sesion.
type EmotionTrend string

const (
	TrendImproving EmotionTrend = "improving"
	TrendStable    EmotionTrend = "stable"
	TrendDeclining EmotionTrend = "declining"
)

// Metodos de deteccion reportados en AdvancedEmotionResult.
const (
	DetectionMethodPattern = "pattern"
	DetectionMethodContext = "context"
	DetectionMethodModel   = "model"
)

// EmotionResult es la salida del camino rapido (sin contexto).
type EmotionResult struct {
	Emotion    EmotionState `json:"emotion"`
	Confidence float64      `json:"confidence"`
	Intensity  float64      `json:"intensity"`
}

type SecondaryEmotion struct {
	Emotion    EmotionState `json:"emotion"`
	Confidence float64      `json:"confidence"`
}

// AdvancedEmotionResult es la salida de la deteccion con contexto de sesion.
type AdvancedEmotionResult struct {
	Emotion    EmotionState       `json:"emotion"`
	Confidence float64            `json:"confidence"`
	Intensity  float64            `json:"intensity"`
	Secondary  []SecondaryEmotion `json:"secondary,omitempty"`
	VAD        VAD                `json:"vad"`
	Triggers   []string           `json:"triggers,omitempty"`
	Trend      EmotionTrend       `json:"trend"`
	Method     string             `json:"method"`
	Warnings   []string           `json:"warnings,omitempty"`
}

// ChatTurn es un mensaje previo de la conversacion.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EmotionEntry es una deteccion registrada en el contexto de una sesion.
type EmotionEntry struct {
	Emotion    EmotionState `json:"emotion"`
	Confidence float64      `json:"confidence"`
	Intensity  float64      `json:"intensity"`
	VAD        VAD          `json:"vad"`
	DetectedAt time.Time    `json:"detected_at"`
}

// EmotionContext es la ventana emocional de una sesion.
type EmotionContext struct {
	SessionID string         `json:"session_id"`
	Messages  []string       `json:"messages"`
	Emotions  []EmotionEntry `json:"emotions"`
	Dominant  EmotionState   `json:"dominant"`
	Stability float64        `json:"stability"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Last devuelve la deteccion mas reciente, si existe.
func (c EmotionContext) Last() (EmotionEntry, bool) {
	if len(c.Emotions) == 0 {
		return EmotionEntry{}, false
	}
	return c.Emotions[len(c.Emotions)-1], true
}

// Clone devuelve una copia sin slices compartidos.
func (c EmotionContext) Clone() EmotionContext {
	out := c
	out.Messages = append([]string(nil), c.Messages...)
	out.Emotions = append([]EmotionEntry(nil), c.Emotions...)
	return out
}
