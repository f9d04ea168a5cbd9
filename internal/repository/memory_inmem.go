package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"persona-engine/internal/domain"
)

// InMemoryMemoryRepository implementa MemoryRepository en memoria para el CLI y tests.
type InMemoryMemoryRepository struct {
	mu       sync.RWMutex
	memories map[uuid.UUID]domain.Memory
}

func NewInMemoryMemoryRepository() *InMemoryMemoryRepository {
	return &InMemoryMemoryRepository{memories: make(map[uuid.UUID]domain.Memory)}
}

func (r *InMemoryMemoryRepository) UpsertMemory(_ context.Context, memory domain.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memories[memory.ID] = copyMemory(memory)
	return nil
}

func (r *InMemoryMemoryRepository) GetMemories(_ context.Context, ids []uuid.UUID) ([]domain.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Memory, 0, len(ids))
	for _, id := range ids {
		if m, ok := r.memories[id]; ok {
			out = append(out, copyMemory(m))
		}
	}
	return out, nil
}

func (r *InMemoryMemoryRepository) LoadMemories(_ context.Context, personaID string, filter MemoryFilter) ([]domain.Memory, error) {
	r.mu.RLock()
	var out []domain.Memory
	for _, m := range r.memories {
		if m.PersonaID != personaID || !matchesFilter(m, filter) || m.Importance < filter.MinImportance {
			continue
		}
		out = append(out, copyMemory(m))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].LastAccessedAt.After(out[j].LastAccessedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *InMemoryMemoryRepository) TouchMemory(_ context.Context, id uuid.UUID, at time.Time) (domain.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memories[id]
	if !ok {
		return domain.Memory{}, pgx.ErrNoRows
	}
	m.AccessCount++
	m.LastAccessedAt = at
	r.memories[id] = m
	return copyMemory(m), nil
}

func (r *InMemoryMemoryRepository) DeleteMemory(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.memories[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.memories, id)
	return nil
}

func matchesFilter(m domain.Memory, filter MemoryFilter) bool {
	if filter.UserID != "" && m.UserID != filter.UserID {
		return false
	}
	if len(filter.Types) == 0 {
		return true
	}
	for _, t := range filter.Types {
		if m.Type == t {
			return true
		}
	}
	return false
}

func copyMemory(m domain.Memory) domain.Memory {
	if s := m.Embedding.Slice(); len(s) > 0 {
		m.Embedding = pgvector.NewVector(append([]float32(nil), s...))
	}
	return m
}
