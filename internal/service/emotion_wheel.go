package service

import (
	"strings"

	"persona-engine/internal/domain"
)

// EmotionProfile es la entrada del catalogo afectivo para una emocion.
type EmotionProfile struct {
	Emotion  domain.EmotionState   `json:"emotion"`
	VAD      domain.VAD            `json:"vad"`
	Opposite domain.EmotionState   `json:"opposite"`
	Adjacent []domain.EmotionState `json:"adjacent"`
}

// emotionOrder es el orden canonico del catalogo; define el desempate del detector.
var emotionOrder = []domain.EmotionState{
	domain.EmotionHappy,
	domain.EmotionSad,
	domain.EmotionAngry,
	domain.EmotionSurprised,
	domain.EmotionThoughtful,
	domain.EmotionExcited,
	domain.EmotionCalm,
	domain.EmotionConfident,
	domain.EmotionCurious,
	domain.EmotionConcerned,
	domain.EmotionNeutral,
}

var emotionWheel = map[domain.EmotionState]EmotionProfile{
	domain.EmotionHappy: {
		VAD:      domain.VAD{Valence: 0.8, Arousal: 0.6, Dominance: 0.6},
		Opposite: domain.EmotionSad,
		Adjacent: []domain.EmotionState{domain.EmotionExcited, domain.EmotionCalm, domain.EmotionConfident},
	},
	domain.EmotionSad: {
		VAD:      domain.VAD{Valence: -0.7, Arousal: 0.3, Dominance: 0.2},
		Opposite: domain.EmotionHappy,
		Adjacent: []domain.EmotionState{domain.EmotionConcerned, domain.EmotionThoughtful},
	},
	domain.EmotionAngry: {
		VAD:      domain.VAD{Valence: -0.6, Arousal: 0.9, Dominance: 0.8},
		Opposite: domain.EmotionCalm,
		Adjacent: []domain.EmotionState{domain.EmotionConcerned, domain.EmotionConfident, domain.EmotionSurprised},
	},
	domain.EmotionSurprised: {
		VAD:      domain.VAD{Valence: 0.2, Arousal: 0.85, Dominance: 0.4},
		Opposite: domain.EmotionCurious,
		Adjacent: []domain.EmotionState{domain.EmotionExcited, domain.EmotionConcerned, domain.EmotionAngry},
	},
	domain.EmotionThoughtful: {
		VAD:      domain.VAD{Valence: 0.1, Arousal: 0.3, Dominance: 0.5},
		Opposite: domain.EmotionExcited,
		Adjacent: []domain.EmotionState{domain.EmotionCurious, domain.EmotionCalm, domain.EmotionSad, domain.EmotionNeutral},
	},
	domain.EmotionExcited: {
		VAD:      domain.VAD{Valence: 0.9, Arousal: 0.95, Dominance: 0.7},
		Opposite: domain.EmotionThoughtful,
		Adjacent: []domain.EmotionState{domain.EmotionHappy, domain.EmotionSurprised, domain.EmotionCurious},
	},
	domain.EmotionCalm: {
		VAD:      domain.VAD{Valence: 0.4, Arousal: 0.1, Dominance: 0.6},
		Opposite: domain.EmotionAngry,
		Adjacent: []domain.EmotionState{domain.EmotionHappy, domain.EmotionThoughtful, domain.EmotionConfident, domain.EmotionNeutral},
	},
	domain.EmotionConfident: {
		VAD:      domain.VAD{Valence: 0.6, Arousal: 0.5, Dominance: 0.9},
		Opposite: domain.EmotionConcerned,
		Adjacent: []domain.EmotionState{domain.EmotionHappy, domain.EmotionCalm, domain.EmotionAngry},
	},
	domain.EmotionCurious: {
		VAD:      domain.VAD{Valence: 0.4, Arousal: 0.6, Dominance: 0.5},
		Opposite: domain.EmotionSurprised,
		Adjacent: []domain.EmotionState{domain.EmotionThoughtful, domain.EmotionExcited, domain.EmotionNeutral},
	},
	domain.EmotionConcerned: {
		VAD:      domain.VAD{Valence: -0.4, Arousal: 0.6, Dominance: 0.3},
		Opposite: domain.EmotionConfident,
		Adjacent: []domain.EmotionState{domain.EmotionSad, domain.EmotionAngry, domain.EmotionSurprised},
	},
	domain.EmotionNeutral: {
		VAD:      domain.VAD{Valence: 0.0, Arousal: 0.4, Dominance: 0.5},
		Opposite: domain.EmotionNeutral,
		Adjacent: []domain.EmotionState{domain.EmotionCalm, domain.EmotionThoughtful, domain.EmotionCurious},
	},
}

// AllEmotions devuelve las 11 emociones en orden de catalogo.
func AllEmotions() []domain.EmotionState {
	return append([]domain.EmotionState(nil), emotionOrder...)
}

// EmotionWheel devuelve una copia del catalogo completo.
func EmotionWheel() map[domain.EmotionState]EmotionProfile {
	out := make(map[domain.EmotionState]EmotionProfile, len(emotionWheel))
	for e := range emotionWheel {
		p, _ := WheelEntry(e)
		out[e] = p
	}
	return out
}

// WheelEntry devuelve la entrada de una emocion.
func WheelEntry(e domain.EmotionState) (EmotionProfile, bool) {
	p, ok := emotionWheel[e]
	if !ok {
		return EmotionProfile{}, false
	}
	p.Emotion = e
	p.Adjacent = append([]domain.EmotionState(nil), p.Adjacent...)
	return p, true
}

// VADFor devuelve la coordenada de la emocion; desconocida cae a neutral.
func VADFor(e domain.EmotionState) domain.VAD {
	if p, ok := emotionWheel[e]; ok {
		return p.VAD
	}
	return emotionWheel[domain.EmotionNeutral].VAD
}

// IsAdjacent es true si cualquiera de las dos emociones lista a la otra como vecina.
func IsAdjacent(a, b domain.EmotionState) bool {
	for _, n := range emotionWheel[a].Adjacent {
		if n == b {
			return true
		}
	}
	for _, n := range emotionWheel[b].Adjacent {
		if n == a {
			return true
		}
	}
	return false
}

// ParseEmotion normaliza un nombre de emocion; desconocido devuelve neutral y false.
func ParseEmotion(s string) (domain.EmotionState, bool) {
	e := domain.EmotionState(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := emotionWheel[e]; ok {
		return e, true
	}
	return domain.EmotionNeutral, false
}
