package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"persona-engine/internal/domain"
	"persona-engine/internal/llm"
	"persona-engine/internal/repository"
)

const (
	defaultRecallLimit      = 5
	defaultMinSimilarity    = 0.5
	defaultRecencyBoost     = 0.1
	defaultFrequencyBoost   = 0.1
	recallOverfetchFactor   = 2
	defaultMemoryImportance = 0.5
)

// RecallOptions controla Recall. Los campos en cero toman el default;
// MinSimilarity negativa desactiva el umbral (un cero literal no se distingue de "sin valor").
type RecallOptions struct {
	Limit          int                 `json:"limit"`
	MinSimilarity  float64             `json:"min_similarity"`
	MinImportance  float64             `json:"min_importance"`
	RecencyBoost   float64             `json:"recency_boost"`
	FrequencyBoost float64             `json:"frequency_boost"`
	IncludeDecayed bool                `json:"include_decayed"`
	UserID         string              `json:"user_id,omitempty"`
	Types          []domain.MemoryType `json:"types,omitempty"`
}

func (o RecallOptions) withDefaults() RecallOptions {
	if o.Limit <= 0 {
		o.Limit = defaultRecallLimit
	}
	if o.MinSimilarity == 0 {
		o.MinSimilarity = defaultMinSimilarity
	}
	if o.RecencyBoost == 0 {
		o.RecencyBoost = defaultRecencyBoost
	}
	if o.FrequencyBoost == 0 {
		o.FrequencyBoost = defaultFrequencyBoost
	}
	return o
}

// MemoryManager guarda, rankea y olvida recuerdos de largo plazo.
type MemoryManager struct {
	memories  repository.MemoryRepository
	index     VectorIndex
	embedder  llm.Embedder
	completer llm.Completer
	logger    *zap.Logger
	now       func() time.Time
}

// NewMemoryManager arma el manager. completer es opcional (solo lo usa Extract).
func NewMemoryManager(memories repository.MemoryRepository, index VectorIndex, embedder llm.Embedder, completer llm.Completer, logger *zap.Logger) *MemoryManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryManager{
		memories:  memories,
		index:     index,
		embedder:  embedder,
		completer: completer,
		logger:    logger,
		now:       time.Now,
	}
}

// Store guarda un recuerdo nuevo con su embedding.
func (m *MemoryManager) Store(ctx context.Context, personaID, content string, meta domain.MemoryMetadata) (domain.Memory, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Memory{}, ErrEmptyContent
	}

	vec, err := m.embedder.Embed(ctx, content)
	if err != nil {
		return domain.Memory{}, fmt.Errorf("embed memory: %w", err)
	}
	return m.persist(ctx, personaID, content, meta, vec)
}

// persist arma el recuerdo con un embedding ya calculado y lo escribe en el repositorio y el indice.
func (m *MemoryManager) persist(ctx context.Context, personaID, content string, meta domain.MemoryMetadata, vec []float32) (domain.Memory, error) {
	if d := m.embedder.Dimensions(); d > 0 && len(vec) != d {
		return domain.Memory{}, fmt.Errorf("embedding has %d dimensions, %s expects %d", len(vec), m.embedder.Model(), d)
	}

	memType := meta.Type
	if memType == "" {
		memType = domain.MemoryFact
	}

	now := m.now()
	mem := domain.Memory{
		ID:             uuid.New(),
		PersonaID:      personaID,
		UserID:         meta.UserID,
		Content:        content,
		Type:           memType,
		Importance:     metadataScore(meta.Importance, defaultMemoryImportance),
		Confidence:     metadataScore(meta.Confidence, 1),
		AccessCount:    1,
		CreatedAt:      now,
		LastAccessedAt: now,
		Embedding:      pgvector.NewVector(vec),
	}

	if err := m.memories.UpsertMemory(ctx, mem); err != nil {
		return domain.Memory{}, fmt.Errorf("save memory: %w", err)
	}
	if err := m.index.Upsert(ctx, mem); err != nil {
		return domain.Memory{}, fmt.Errorf("index memory: %w", err)
	}
	return mem, nil
}

// metadataScore: 0 toma el default, negativo es un cero explicito.
func metadataScore(v, def float64) float64 {
	switch {
	case v == 0:
		return def
	case v < 0:
		return 0
	}
	return clamp01(v)
}

// Recall devuelve los recuerdos mas relevantes para query, ordenados de mayor a menor relevancia.
func (m *MemoryManager) Recall(ctx context.Context, personaID, query string, opts RecallOptions) ([]domain.RecalledMemory, error) {
	opts = opts.withDefaults()
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	filter := repository.MemoryFilter{UserID: opts.UserID, Types: opts.Types}
	hits, err := m.index.Search(ctx, personaID, vec, opts.Limit*recallOverfetchFactor, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	similarity := make(map[uuid.UUID]float64, len(hits))
	ids := make([]uuid.UUID, 0, len(hits))
	for _, h := range hits {
		if h.Similarity < opts.MinSimilarity {
			continue
		}
		similarity[h.ID] = h.Similarity
		ids = append(ids, h.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	memories, err := m.memories.GetMemories(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load memories: %w", err)
	}

	now := m.now()
	ranked := make([]domain.RecalledMemory, 0, len(memories))
	for _, mem := range memories {
		if mem.Importance < opts.MinImportance {
			continue
		}
		retention := Retention(mem, now)
		if retention < minRetention && !opts.IncludeDecayed {
			continue
		}
		sim := similarity[mem.ID]
		mem.Embedding = pgvector.Vector{}
		ranked = append(ranked, domain.RecalledMemory{
			Memory:     mem,
			Similarity: sim,
			Retention:  retention,
			Relevance:  RelevanceScore(sim, mem, now, opts.RecencyBoost, opts.FrequencyBoost),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Relevance > ranked[j].Relevance })
	if len(ranked) > opts.Limit {
		ranked = ranked[:opts.Limit]
	}

	for _, r := range ranked {
		if _, err := m.memories.TouchMemory(ctx, r.Memory.ID, now); err != nil {
			m.logger.Warn("memory touch failed", zap.String("memory_id", r.Memory.ID.String()), zap.Error(err))
		}
	}
	return ranked, nil
}

// Touch registra un acceso: suma uno al contador y actualiza la fecha de ultimo acceso.
func (m *MemoryManager) Touch(ctx context.Context, id uuid.UUID) (domain.Memory, error) {
	mem, err := m.memories.TouchMemory(ctx, id, m.now())
	if err != nil {
		return domain.Memory{}, fmt.Errorf("touch memory %s: %w", id, err)
	}
	return mem, nil
}

// Forget borra el recuerdo del repositorio y del indice.
func (m *MemoryManager) Forget(ctx context.Context, id uuid.UUID) error {
	if err := m.memories.DeleteMemory(ctx, id); err != nil {
		return fmt.Errorf("delete memory %s: %w", id, err)
	}
	if err := m.index.Delete(ctx, id); err != nil {
		m.logger.Warn("vector index delete failed", zap.String("memory_id", id.String()), zap.Error(err))
	}
	return nil
}

// List devuelve los recuerdos de la persona con su retencion actual.
func (m *MemoryManager) List(ctx context.Context, personaID string, filter repository.MemoryFilter) ([]domain.RecalledMemory, error) {
	memories, err := m.memories.LoadMemories(ctx, personaID, filter)
	if err != nil {
		return nil, fmt.Errorf("load memories: %w", err)
	}
	now := m.now()
	out := make([]domain.RecalledMemory, 0, len(memories))
	for _, mem := range memories {
		mem.Embedding = pgvector.Vector{}
		out = append(out, domain.RecalledMemory{Memory: mem, Retention: Retention(mem, now)})
	}
	return out, nil
}
