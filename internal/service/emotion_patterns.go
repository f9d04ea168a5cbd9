package service

import (
	"regexp"

	"persona-engine/internal/domain"
)

// emotionPatternSource son las expresiones del camino rapido por categoria.
// Se evaluan sobre el texto normalizado (minusculas, sin acentos).
var emotionPatternSource = map[domain.EmotionState][]string{
	domain.EmotionHappy: {
		`\bhappy\b`, `\bglad\b`, `\bjoy(ful)?\b`, `\bdelighted\b`, `\bcheerful\b`,
		`\blove (it|this|that)\b`, `\bfeliz\b`, `\bcontent[oa]\b`, `\balegre\b`,
		`😊|😀|😄|🙂|😁|☺|😃`,
	},
	domain.EmotionSad: {
		`\bsad\b`, `\bunhappy\b`, `\bdepressed\b`, `\bheartbroken\b`, `\bmiserable\b`,
		`\blonely\b`, `\bcry(ing)?\b`, `\btrist[ea]\b`, `\bdeprimid[oa]\b`,
		`😢|😭|☹|🙁|💔|😞`,
	},
	domain.EmotionAngry: {
		`\bangry\b`, `\bfurious\b`, `\bmad\b`, `\bannoyed\b`, `\birritated\b`,
		`\bhate\b`, `\bpissed\b`, `\bfurios[oa]\b`, `\benojad[oa]\b`,
		`😠|😡|🤬`,
	},
	domain.EmotionSurprised: {
		`\bsurprised\b`, `\bwow\b`, `\bunexpected\b`, `\bno way\b`, `\bshocked\b`,
		`\bcan'?t believe\b`, `\bsorprendid[oa]\b`,
		`😮|😲|😯|🤯`,
	},
	domain.EmotionThoughtful: {
		`\bthink(ing)?\b`, `\bwonder(ing)?\b`, `\bponder(ing)?\b`, `\breflect(ing)?\b`,
		`\bconsider(ing)?\b`, `\bmaybe\b`, `\bpienso\b`,
		`🤔`,
	},
	domain.EmotionExcited: {
		`\bexcited\b`, `\bthrilled\b`, `\bamazing\b`, `\bawesome\b`, `\bcan'?t wait\b`,
		`\bincredible\b`, `\bemocionad[oa]\b`, `!{2,}`,
		`🎉|🤩|🔥`,
	},
	domain.EmotionCalm: {
		`\bcalm\b`, `\brelaxed\b`, `\bpeaceful\b`, `\bserene\b`, `\bat ease\b`,
		`\btranquil[oa]?\b`,
		`😌|🧘`,
	},
	domain.EmotionConfident: {
		`\bconfident\b`, `\bcertain\b`, `\bdefinitely\b`, `\bi can do\b`, `\bproud\b`,
		`\bsegur[oa]\b`,
		`💪|😎`,
	},
	domain.EmotionCurious: {
		`\bcurious\b`, `\bwhy\b`, `\bhow does\b`, `\bwhat if\b`, `\binterested\b`,
		`\btell me more\b`, `\bcurios[oa]\b`,
		`🧐`,
	},
	domain.EmotionConcerned: {
		`\bworried\b`, `\bconcerned\b`, `\banxious\b`, `\bnervous\b`, `\bafraid\b`,
		`\bscared\b`, `\bpreocupad[oa]\b`,
		`😟|😰|😨`,
	},
	domain.EmotionNeutral: {
		`\bok(ay)?\b`, `\bfine\b`, `\balright\b`, `\bwhatever\b`, `\bnormal\b`,
	},
}

var emotionPatterns = compileEmotionPatterns(emotionPatternSource)

func compileEmotionPatterns(src map[domain.EmotionState][]string) map[domain.EmotionState][]*regexp.Regexp {
	out := make(map[domain.EmotionState][]*regexp.Regexp, len(src))
	for e, list := range src {
		for _, p := range list {
			out[e] = append(out[e], regexp.MustCompile(p))
		}
	}
	return out
}
