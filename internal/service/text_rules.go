package service

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// normalize baja a minusculas y elimina diacriticos simples.
// Ej: "Café" -> "cafe", "preocupación" -> "preocupacion"
func normalize(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(foldAccent(r))
	}
	return b.String()
}

func foldAccent(r rune) rune {
	switch r {
	case 'á', 'à', 'ä', 'â':
		return 'a'
	case 'é', 'è', 'ë', 'ê':
		return 'e'
	case 'í', 'ì', 'ï', 'î':
		return 'i'
	case 'ó', 'ò', 'ö', 'ô':
		return 'o'
	case 'ú', 'ù', 'ü', 'û':
		return 'u'
	case 'ñ':
		return 'n'
	}
	return r
}

func containsAny(s string, list []string) bool {
	for _, x := range list {
		if x != "" && strings.Contains(s, x) {
			return true
		}
	}
	return false
}

// splitWords separa por espacios y recorta puntuacion en los bordes de cada palabra.
func splitWords(text string) []string {
	fields := strings.Fields(text)
	out := fields[:0]
	for _, f := range fields {
		w := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// splitSentences corta en . ! ? y descarta fragmentos vacios.
func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func averageWordLength(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	total := 0
	for _, w := range words {
		total += len([]rune(w))
	}
	return float64(total) / float64(len(words))
}

// averageSentenceLength es palabras por oracion.
func averageSentenceLength(text string) float64 {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return 0
	}
	words := 0
	for _, s := range sentences {
		words += len(splitWords(s))
	}
	return float64(words) / float64(len(sentences))
}

// humanizeSince describe una antiguedad en palabras para el bloque de contexto.
func humanizeSince(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour") + " ago"
	}
	days := int(d.Hours()) / 24
	if days < 30 {
		return plural(days, "day") + " ago"
	}
	if days < 365 {
		return plural(days/30, "month") + " ago"
	}
	return plural(days/365, "year") + " ago"
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
