package service

import (
	"math"
	"time"

	"persona-engine/internal/domain"
)

const (
	decayHoursPerStrength = 24.0
	recencyWindowHours    = 30 * 24.0
	frequencyDivisor      = 5.0
	minRetention          = 0.1
)

// Retention estima cuanto sigue "vivo" un recuerdo (curva de Ebbinghaus):
// exp(-horas / (24 * importancia * (1 + ln(accesos + 1)))).
func Retention(m domain.Memory, now time.Time) float64 {
	hours := hoursSince(m.LastAccessedAt, now)
	if hours == 0 {
		return 1
	}
	strength := m.Importance * (1 + math.Log(float64(maxInt(m.AccessCount, 1))+1))
	if strength <= 0 {
		return 0
	}
	return clamp01(math.Exp(-hours / (decayHoursPerStrength * strength)))
}

// RecencyScore baja linealmente de 1 a 0 en 30 dias desde el ultimo acceso.
func RecencyScore(m domain.Memory, now time.Time) float64 {
	return clamp01(1 - hoursSince(m.LastAccessedAt, now)/recencyWindowHours)
}

// FrequencyScore = ln(accesos + 1) / 5.
func FrequencyScore(m domain.Memory) float64 {
	return math.Log(float64(maxInt(m.AccessCount, 1))+1) / frequencyDivisor
}

// RelevanceScore combina similitud con los bonos de recencia y frecuencia.
func RelevanceScore(similarity float64, m domain.Memory, now time.Time, recencyBoost, frequencyBoost float64) float64 {
	return similarity + recencyBoost*RecencyScore(m, now) + frequencyBoost*FrequencyScore(m)
}

func hoursSince(t, now time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	h := now.Sub(t).Hours()
	if h < 0 {
		return 0
	}
	return h
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
