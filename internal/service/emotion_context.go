package service

import "persona-engine/internal/domain"

const (
	maxContextMessages = 10
	maxContextEmotions = 20

	stabilityWindow = 5
	trendRecent     = 3
	trendThreshold  = 0.2
)

func appendBounded[T any](list []T, v T, max int) []T {
	list = append(list, v)
	if len(list) > max {
		list = append([]T(nil), list[len(list)-max:]...)
	}
	return list
}

// dominantEmotion es la moda del historial; en empate gana la vista mas recientemente.
func dominantEmotion(entries []domain.EmotionEntry) domain.EmotionState {
	if len(entries) == 0 {
		return domain.EmotionNeutral
	}
	counts := make(map[domain.EmotionState]int)
	lastSeen := make(map[domain.EmotionState]int)
	for i, e := range entries {
		counts[e.Emotion]++
		lastSeen[e.Emotion] = i
	}
	best := entries[len(entries)-1].Emotion
	for e, c := range counts {
		bc := counts[best]
		if c > bc || (c == bc && lastSeen[e] > lastSeen[best]) {
			best = e
		}
	}
	return best
}

// emotionStability = 1 - (distintas en las ultimas 5 - 1) / 4.
func emotionStability(entries []domain.EmotionEntry) float64 {
	if len(entries) == 0 {
		return 1
	}
	window := entries
	if len(window) > stabilityWindow {
		window = window[len(window)-stabilityWindow:]
	}
	distinct := make(map[domain.EmotionState]struct{}, len(window))
	for _, e := range window {
		distinct[e.Emotion] = struct{}{}
	}
	return clamp01(1 - float64(len(distinct)-1)/4)
}

// emotionTrend compara la valencia media de las 3 ultimas entradas contra las anteriores.
func emotionTrend(entries []domain.EmotionEntry) domain.EmotionTrend {
	if len(entries) <= trendRecent {
		return domain.TrendStable
	}
	split := len(entries) - trendRecent
	valences := func(list []domain.EmotionEntry) []float64 {
		out := make([]float64, len(list))
		for i, e := range list {
			out[i] = e.VAD.Valence
		}
		return out
	}
	diff := mean(valences(entries[split:])) - mean(valences(entries[:split]))
	switch {
	case diff > trendThreshold:
		return domain.TrendImproving
	case diff < -trendThreshold:
		return domain.TrendDeclining
	default:
		return domain.TrendStable
	}
}

// recentHistory prioriza el historial explicito; si no hay, usa los mensajes del contexto.
func recentHistory(history []domain.ChatTurn, c domain.EmotionContext) []domain.ChatTurn {
	if len(history) > 0 {
		if len(history) > maxContextMessages {
			history = history[len(history)-maxContextMessages:]
		}
		return history
	}
	out := make([]domain.ChatTurn, 0, len(c.Messages))
	for _, m := range c.Messages {
		out = append(out, domain.ChatTurn{Role: "user", Content: m})
	}
	return out
}
