package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"persona-engine/internal/catalog"
	"persona-engine/internal/domain"
	"persona-engine/internal/repository"
	"persona-engine/internal/store"
)

const (
	defaultReinforcementInterval = 5
	reinforcementScoreThreshold  = 0.7
	maxAnchorTraits              = 5
	maxDriftLog                  = 100

	driftPenalty  = 0.1
	cleanRecovery = 0.02
)

// AnchorManager mantiene el ancla de personalidad de cada persona y su puntaje de coherencia.
type AnchorManager struct {
	catalog *catalog.Catalog
	source  repository.PersonaRepository
	anchors store.Store[domain.PersonalityAnchor]
	metrics store.Store[domain.ConsistencyMetrics]
	drift   DriftDetector
	locks   *store.KeyedMutex
	logger  *zap.Logger
	now     func() time.Time
}

// AnchorManagerOptions agrupa dependencias opcionales. Los campos nil usan defaults en memoria.
type AnchorManagerOptions struct {
	Catalog *catalog.Catalog
	Source  repository.PersonaRepository
	Anchors store.Store[domain.PersonalityAnchor]
	Metrics store.Store[domain.ConsistencyMetrics]
	Drift   DriftDetector
	Logger  *zap.Logger
}

func NewAnchorManager(opts AnchorManagerOptions) *AnchorManager {
	m := &AnchorManager{
		catalog: opts.Catalog,
		source:  opts.Source,
		anchors: opts.Anchors,
		metrics: opts.Metrics,
		drift:   opts.Drift,
		locks:   store.NewKeyedMutex(),
		logger:  opts.Logger,
		now:     time.Now,
	}
	if m.catalog == nil {
		m.catalog = catalog.Default()
	}
	if m.anchors == nil {
		m.anchors = store.NewMemoryStore(domain.PersonalityAnchor.Clone)
	}
	if m.metrics == nil {
		m.metrics = store.NewMemoryStore(domain.ConsistencyMetrics.Clone)
	}
	if m.drift == nil {
		m.drift = HeuristicDriftDetector{}
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

// CreateAnchor deriva el ancla desde la definicion y reemplaza la anterior, reiniciando las metricas.
func (m *AnchorManager) CreateAnchor(ctx context.Context, def domain.PersonaDefinition) (domain.PersonalityAnchor, error) {
	if strings.TrimSpace(def.ID) == "" {
		return domain.PersonalityAnchor{}, fmt.Errorf("persona id is required")
	}
	anchor := m.buildAnchor(def)

	unlock := m.locks.Lock(def.ID)
	defer unlock()

	if err := m.putAnchor(ctx, def.ID, anchor, true); err != nil {
		return domain.PersonalityAnchor{}, err
	}
	return anchor, nil
}

// Anchor devuelve el ancla cacheada o la crea desde el repositorio la primera vez.
// Una persona desconocida devuelve ok=false sin error.
func (m *AnchorManager) Anchor(ctx context.Context, personaID string) (domain.PersonalityAnchor, bool, error) {
	a, ok, err := m.anchors.Get(ctx, personaID)
	if err != nil {
		return domain.PersonalityAnchor{}, false, fmt.Errorf("load anchor: %w", err)
	}
	if ok {
		return a, true, nil
	}
	if m.source == nil {
		return domain.PersonalityAnchor{}, false, nil
	}

	unlock := m.locks.Lock(personaID)
	defer unlock()

	// Otro llamador pudo crearla mientras esperabamos la clave.
	a, ok, err = m.anchors.Get(ctx, personaID)
	if err != nil {
		return domain.PersonalityAnchor{}, false, fmt.Errorf("load anchor: %w", err)
	}
	if ok {
		return a, true, nil
	}

	def, err := m.source.LoadAnchorSource(ctx, personaID)
	if err != nil {
		return domain.PersonalityAnchor{}, false, fmt.Errorf("load persona definition: %w", err)
	}
	if def == nil {
		return domain.PersonalityAnchor{}, false, nil
	}
	def.ID = personaID
	a = m.buildAnchor(*def)
	if err := m.putAnchor(ctx, personaID, a, false); err != nil {
		return domain.PersonalityAnchor{}, false, err
	}
	return a, true, nil
}

// putAnchor guarda el ancla; con resetMetrics=false conserva las metricas existentes.
// Debe llamarse con la clave de la persona tomada.
func (m *AnchorManager) putAnchor(ctx context.Context, personaID string, anchor domain.PersonalityAnchor, resetMetrics bool) error {
	if err := m.anchors.Put(ctx, personaID, anchor); err != nil {
		return fmt.Errorf("store anchor: %w", err)
	}
	if !resetMetrics {
		_, ok, err := m.metrics.Get(ctx, personaID)
		if err != nil {
			return fmt.Errorf("load metrics: %w", err)
		}
		resetMetrics = !ok
	}
	if resetMetrics {
		if err := m.metrics.Put(ctx, personaID, domain.NewConsistencyMetrics(personaID)); err != nil {
			return fmt.Errorf("store metrics: %w", err)
		}
	}
	m.logger.Info("personality anchor created",
		zap.String("persona_id", personaID),
		zap.String("archetype", anchor.Archetype),
	)
	return nil
}

// Metrics devuelve una copia de las metricas de coherencia.
func (m *AnchorManager) Metrics(ctx context.Context, personaID string) (domain.ConsistencyMetrics, bool) {
	met, ok, err := m.metrics.Get(ctx, personaID)
	if err != nil {
		m.logger.Warn("consistency metrics read failed", zap.String("persona_id", personaID), zap.Error(err))
		return domain.ConsistencyMetrics{}, false
	}
	return met, ok
}

// NeedsReinforcement es true si pasaron interval mensajes desde el ultimo refuerzo
// o si la coherencia bajo de 0.7. interval <= 0 usa 5.
func (m *AnchorManager) NeedsReinforcement(ctx context.Context, personaID string, interval int) bool {
	if interval <= 0 {
		interval = defaultReinforcementInterval
	}
	met, ok := m.Metrics(ctx, personaID)
	if !ok {
		return false
	}
	return met.MessagesSinceReinforcement >= interval || met.ConsistencyScore < reinforcementScoreThreshold
}

// TrackMessage evalua una respuesta generada y actualiza el puntaje de coherencia.
// Sin ancla no hace nada.
func (m *AnchorManager) TrackMessage(ctx context.Context, personaID, response string) ([]domain.DriftIndicator, error) {
	anchor, ok, err := m.Anchor(ctx, personaID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	unlock := m.locks.Lock(personaID)
	defer unlock()

	met, ok, err := m.metrics.Get(ctx, personaID)
	if err != nil {
		return nil, fmt.Errorf("load metrics: %w", err)
	}
	if !ok {
		met = domain.NewConsistencyMetrics(personaID)
	}

	indicators := m.drift.Detect(anchor, response, m.now())
	if len(indicators) > 0 {
		met.ConsistencyScore = clamp01(met.ConsistencyScore - driftPenalty)
		met.DriftIndicators = append(met.DriftIndicators, indicators...)
		if len(met.DriftIndicators) > maxDriftLog {
			met.DriftIndicators = append([]domain.DriftIndicator(nil), met.DriftIndicators[len(met.DriftIndicators)-maxDriftLog:]...)
		}
		m.logger.Debug("persona drift detected",
			zap.String("persona_id", personaID),
			zap.Int("indicators", len(indicators)),
			zap.Float64("consistency", met.ConsistencyScore),
		)
	} else {
		met.ConsistencyScore = clamp01(met.ConsistencyScore + cleanRecovery)
	}
	met.MessagesSinceReinforcement++

	if err := m.metrics.Put(ctx, personaID, met); err != nil {
		return nil, fmt.Errorf("store metrics: %w", err)
	}
	return indicators, nil
}

// BuildReinforcement arma el texto de refuerzo y reinicia el contador.
// Sin ancla devuelve "".
func (m *AnchorManager) BuildReinforcement(ctx context.Context, personaID string) string {
	anchor, ok, err := m.Anchor(ctx, personaID)
	if err != nil {
		m.logger.Warn("anchor unavailable for reinforcement", zap.String("persona_id", personaID), zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}

	unlock := m.locks.Lock(personaID)
	defer unlock()

	met, ok, err := m.metrics.Get(ctx, personaID)
	if err != nil {
		m.logger.Warn("consistency metrics read failed", zap.String("persona_id", personaID), zap.Error(err))
	}
	if !ok {
		met = domain.NewConsistencyMetrics(personaID)
	}
	drifting := met.ConsistencyScore < reinforcementScoreThreshold

	text := renderReinforcement(anchor, drifting)

	if drifting {
		met.Corrections++
	}
	met.MessagesSinceReinforcement = 0
	met.LastReinforcementAt = m.now()
	if err := m.metrics.Put(ctx, personaID, met); err != nil {
		m.logger.Warn("consistency metrics write failed", zap.String("persona_id", personaID), zap.Error(err))
	}
	return text
}

func (m *AnchorManager) buildAnchor(def domain.PersonaDefinition) domain.PersonalityAnchor {
	arch, _ := m.catalog.Archetype(def.Archetype)

	traits := dedupeStrings(def.Traits)
	if len(traits) == 0 {
		traits = arch.Traits
	}
	if len(traits) > maxAnchorTraits {
		traits = traits[:maxAnchorTraits]
	}

	speech := arch.Speech
	if def.SpeechPatterns.SentenceLength != "" {
		speech.SentenceLength = def.SpeechPatterns.SentenceLength
	}
	if def.SpeechPatterns.Vocabulary != "" {
		speech.Vocabulary = def.SpeechPatterns.Vocabulary
	}
	if def.SpeechPatterns.EmotionalExpression != "" {
		speech.EmotionalExpression = def.SpeechPatterns.EmotionalExpression
	}
	if def.SpeechPatterns.Humor != "" {
		speech.Humor = def.SpeechPatterns.Humor
	}

	baseline := arch.Baseline
	if e, ok := ParseEmotion(string(def.EmotionalBaseline)); ok {
		baseline = e
	}
	if baseline == "" {
		baseline = domain.EmotionNeutral
	}

	archetype := strings.ToLower(strings.TrimSpace(def.Archetype))
	if archetype == "" {
		archetype = arch.Name
	}

	return domain.PersonalityAnchor{
		PersonaID:         def.ID,
		Name:              def.Name,
		Archetype:         archetype,
		CoreIdentity:      coreIdentity(def.Name, archetype, def.Description, traits),
		Boundaries:        dedupeStrings(append(arch.Boundaries, def.Boundaries...)),
		SignaturePhrases:  dedupeStrings(append(arch.SignaturePhrases, def.SignaturePhrases...)),
		Traits:            traits,
		SpeechPatterns:    speech,
		EmotionalBaseline: baseline,
		CreatedAt:         m.now(),
	}
}

func coreIdentity(name, archetype, description string, traits []string) string {
	if strings.TrimSpace(name) == "" {
		name = "this persona"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a %s.", name, archetype)
	if d := strings.TrimSpace(description); d != "" {
		b.WriteString(" ")
		b.WriteString(d)
	}
	if len(traits) > 0 {
		fmt.Fprintf(&b, " At your core you are %s.", joinList(traits))
	}
	return b.String()
}

func renderReinforcement(a domain.PersonalityAnchor, drifting bool) string {
	var b strings.Builder
	b.WriteString(a.CoreIdentity)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Voice: %s sentences, %s vocabulary, %s emotional expression, %s humor.\n",
		a.SpeechPatterns.SentenceLength,
		a.SpeechPatterns.Vocabulary,
		a.SpeechPatterns.EmotionalExpression,
		a.SpeechPatterns.Humor,
	)
	fmt.Fprintf(&b, "Emotional baseline: %s.\n", a.EmotionalBaseline)
	if len(a.SignaturePhrases) > 0 {
		b.WriteString("Phrases that sound like you: ")
		b.WriteString(quoteList(a.SignaturePhrases))
		b.WriteString("\n")
	}
	if len(a.Boundaries) > 0 {
		b.WriteString("Never say: ")
		b.WriteString(quoteList(a.Boundaries))
		b.WriteString("\n")
	}
	if drifting {
		b.WriteString("Your recent replies drifted from this voice. Return to it now.\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func dedupeStrings(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

func quoteList(list []string) string {
	quoted := make([]string, len(list))
	for i, s := range list {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}

// joinList une con comas y "and" final: "a, b and c".
func joinList(list []string) string {
	switch len(list) {
	case 0:
		return ""
	case 1:
		return list[0]
	}
	return strings.Join(list[:len(list)-1], ", ") + " and " + list[len(list)-1]
}
