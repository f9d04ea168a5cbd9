package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"persona-engine/internal/domain"
	"persona-engine/internal/llm"
	"persona-engine/internal/store"
)

const (
	defaultEmotionConfidence = 0.5
	maxPatternConfidence     = 0.9
	maxSecondaryEmotions     = 3

	neutralContextPenalty = 0.7
	repeatConfidenceBoost = 1.2
	repeatIntensityBoost  = 1.1
)

// EmotionDetector convierte texto en una emocion detectada.
// Detect es puro; DetectAdvanced usa y actualiza el contexto de la sesion.
type EmotionDetector struct {
	contexts  store.Store[domain.EmotionContext]
	locks     *store.KeyedMutex
	completer llm.Completer
	logger    *zap.Logger
	now       func() time.Time
}

// NewEmotionDetector arma el detector. contexts nil usa un store en memoria;
// completer nil desactiva el camino asistido por modelo.
func NewEmotionDetector(contexts store.Store[domain.EmotionContext], completer llm.Completer, logger *zap.Logger) *EmotionDetector {
	if contexts == nil {
		contexts = store.NewMemoryStore(domain.EmotionContext.Clone)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmotionDetector{
		contexts:  contexts,
		locks:     store.NewKeyedMutex(),
		completer: completer,
		logger:    logger,
		now:       time.Now,
	}
}

type patternScore struct {
	counts   map[domain.EmotionState]int
	triggers map[domain.EmotionState][]string
	total    int
}

func scorePatterns(text string) patternScore {
	s := patternScore{
		counts:   make(map[domain.EmotionState]int),
		triggers: make(map[domain.EmotionState][]string),
	}
	norm := normalize(text)
	if norm == "" {
		return s
	}
	for _, e := range emotionOrder {
		for _, re := range emotionPatterns[e] {
			for _, m := range re.FindAllString(norm, -1) {
				s.counts[e]++
				s.triggers[e] = append(s.triggers[e], m)
				s.total++
			}
		}
	}
	return s
}

// best aplica el desempate: mayor conteo; en empate gana neutral si esta
// entre los empatados, si no la primera en orden de catalogo.
func (s patternScore) best() (domain.EmotionState, int) {
	best := domain.EmotionNeutral
	bestCount := 0
	for _, e := range emotionOrder {
		c := s.counts[e]
		if c > bestCount {
			best, bestCount = e, c
		}
	}
	if bestCount > 0 && s.counts[domain.EmotionNeutral] == bestCount {
		best = domain.EmotionNeutral
	}
	return best, bestCount
}

func (s patternScore) result() domain.EmotionResult {
	emotion, count := s.best()
	if count == 0 {
		return domain.EmotionResult{Emotion: domain.EmotionNeutral, Confidence: defaultEmotionConfidence}
	}
	return domain.EmotionResult{
		Emotion:    emotion,
		Confidence: minFloat(maxPatternConfidence, float64(count)/float64(s.total)+0.2),
		Intensity:  minFloat(1, float64(count)/3),
	}
}

func (s patternScore) secondary(primary domain.EmotionState) []domain.SecondaryEmotion {
	var out []domain.SecondaryEmotion
	for _, e := range emotionOrder {
		if e == primary || s.counts[e] == 0 {
			continue
		}
		out = append(out, domain.SecondaryEmotion{
			Emotion:    e,
			Confidence: float64(s.counts[e]) / float64(s.total),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > maxSecondaryEmotions {
		out = out[:maxSecondaryEmotions]
	}
	return out
}

func (s patternScore) allTriggers() []string {
	var out []string
	for _, e := range emotionOrder {
		out = append(out, s.triggers[e]...)
	}
	return out
}

// Detect es el camino rapido sin contexto.
func (d *EmotionDetector) Detect(text string) domain.EmotionResult {
	return scorePatterns(text).result()
}

// DetectAdvanced detecta con contexto de sesion y, si hay completer, con el modelo.
// Las fallas del modelo o del store no se propagan: quedan como warning.
// Solo devuelve error si ctx ya fue cancelado.
func (d *EmotionDetector) DetectAdvanced(ctx context.Context, text, sessionID string, history []domain.ChatTurn) (domain.AdvancedEmotionResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.AdvancedEmotionResult{}, err
	}

	score := scorePatterns(text)
	base := score.result()
	res := domain.AdvancedEmotionResult{
		Emotion:    base.Emotion,
		Confidence: base.Confidence,
		Intensity:  base.Intensity,
		Secondary:  score.secondary(base.Emotion),
		VAD:        VADFor(base.Emotion),
		Triggers:   score.allTriggers(),
		Trend:      domain.TrendStable,
		Method:     domain.DetectionMethodPattern,
	}

	var snapshot domain.EmotionContext
	if sessionID != "" {
		c, ok, err := d.contexts.Get(ctx, sessionID)
		if err != nil {
			d.logger.Warn("emotion context read failed", zap.String("session_id", sessionID), zap.Error(err))
			res.Warnings = append(res.Warnings, "session context unavailable")
		} else if ok {
			snapshot = c
			applyContextRules(&res, c)
		}
	}

	if d.completer != nil {
		modelRes, err := d.analyzeWithModel(ctx, text, recentHistory(history, snapshot))
		if err != nil {
			d.logger.Warn("model emotion analysis failed, using pattern result",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			res.Warnings = append(res.Warnings, "model analysis failed: "+err.Error())
		} else {
			modelRes.Warnings = res.Warnings
			if len(modelRes.Triggers) == 0 {
				modelRes.Triggers = res.Triggers
			}
			res = modelRes
		}
	}

	if sessionID != "" {
		updated, err := d.record(ctx, sessionID, text, res)
		if err != nil {
			d.logger.Warn("emotion context write failed", zap.String("session_id", sessionID), zap.Error(err))
			res.Warnings = append(res.Warnings, "session context not updated")
			res.Trend = emotionTrend(snapshot.Emotions)
		} else {
			res.Trend = emotionTrend(updated.Emotions)
		}
	}
	return res, nil
}

// SessionContext devuelve una copia del contexto de la sesion.
func (d *EmotionDetector) SessionContext(ctx context.Context, sessionID string) (domain.EmotionContext, bool) {
	c, ok, err := d.contexts.Get(ctx, sessionID)
	if err != nil {
		d.logger.Warn("emotion context read failed", zap.String("session_id", sessionID), zap.Error(err))
		return domain.EmotionContext{}, false
	}
	return c, ok
}

// applyContextRules ajusta el resultado del camino rapido con la emocion previa.
func applyContextRules(res *domain.AdvancedEmotionResult, c domain.EmotionContext) {
	prev, ok := c.Last()
	if !ok {
		return
	}
	switch {
	case res.Emotion == domain.EmotionNeutral &&
		prev.Emotion != domain.EmotionNeutral &&
		IsAdjacent(prev.Emotion, domain.EmotionNeutral):
		res.Confidence *= neutralContextPenalty
		res.Method = domain.DetectionMethodContext
	case res.Emotion == prev.Emotion:
		res.Confidence = minFloat(1, res.Confidence*repeatConfidenceBoost)
		res.Intensity = minFloat(1, res.Intensity*repeatIntensityBoost)
		res.Method = domain.DetectionMethodContext
	}
}

func (d *EmotionDetector) record(ctx context.Context, sessionID, text string, res domain.AdvancedEmotionResult) (domain.EmotionContext, error) {
	unlock := d.locks.Lock(sessionID)
	defer unlock()

	c, ok, err := d.contexts.Get(ctx, sessionID)
	if err != nil {
		return domain.EmotionContext{}, err
	}
	if !ok {
		c = domain.EmotionContext{SessionID: sessionID}
	}
	now := d.now()
	c.Messages = appendBounded(c.Messages, text, maxContextMessages)
	c.Emotions = appendBounded(c.Emotions, domain.EmotionEntry{
		Emotion:    res.Emotion,
		Confidence: res.Confidence,
		Intensity:  res.Intensity,
		VAD:        res.VAD,
		DetectedAt: now,
	}, maxContextEmotions)
	c.Dominant = dominantEmotion(c.Emotions)
	c.Stability = emotionStability(c.Emotions)
	c.UpdatedAt = now

	if err := d.contexts.Put(ctx, sessionID, c); err != nil {
		return domain.EmotionContext{}, err
	}
	return c, nil
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
