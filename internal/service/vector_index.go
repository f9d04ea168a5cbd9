package service

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"persona-engine/internal/domain"
	"persona-engine/internal/repository"
)

// VectorIndex es el proveedor de busqueda por similitud de recuerdos.
type VectorIndex interface {
	Search(ctx context.Context, personaID string, embedding []float32, limit int, filter repository.MemoryFilter) ([]domain.VectorHit, error)
	Upsert(ctx context.Context, memory domain.Memory) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type indexedMemory struct {
	personaID string
	userID    string
	memType   domain.MemoryType
	content   string
	vector    []float32
}

// InMemoryVectorIndex hace busqueda coseno por fuerza bruta. Para CLI y tests.
type InMemoryVectorIndex struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]indexedMemory
}

func NewInMemoryVectorIndex() *InMemoryVectorIndex {
	return &InMemoryVectorIndex{entries: make(map[uuid.UUID]indexedMemory)}
}

func (i *InMemoryVectorIndex) Search(_ context.Context, personaID string, embedding []float32, limit int, filter repository.MemoryFilter) ([]domain.VectorHit, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	var hits []domain.VectorHit
	for id, e := range i.entries {
		if e.personaID != personaID {
			continue
		}
		if filter.UserID != "" && e.userID != filter.UserID {
			continue
		}
		if len(filter.Types) > 0 && !containsMemoryType(filter.Types, e.memType) {
			continue
		}
		hits = append(hits, domain.VectorHit{
			ID:         id,
			Content:    e.content,
			Similarity: cosineSimilarity(embedding, e.vector),
			Metadata:   map[string]string{"type": string(e.memType), "user_id": e.userID},
		})
	}
	sort.Slice(hits, func(a, b int) bool { return hits[a].Similarity > hits[b].Similarity })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (i *InMemoryVectorIndex) Upsert(_ context.Context, memory domain.Memory) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries[memory.ID] = indexedMemory{
		personaID: memory.PersonaID,
		userID:    memory.UserID,
		memType:   memory.Type,
		content:   memory.Content,
		vector:    append([]float32(nil), memory.Embedding.Slice()...),
	}
	return nil
}

func (i *InMemoryVectorIndex) Delete(_ context.Context, id uuid.UUID) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.entries, id)
	return nil
}

func containsMemoryType(list []domain.MemoryType, t domain.MemoryType) bool {
	for _, x := range list {
		if x == t {
			return true
		}
	}
	return false
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
