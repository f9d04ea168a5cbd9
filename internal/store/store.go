// Package store define el almacenamiento por clave de los caches del motor
// (anclas, metricas, contextos emocionales, vinculos) y su serializacion por clave.
package store

import (
	"context"
	"sync"
)

// Store es un almacen clave-valor tipado. Get devuelve ok=false si la clave no existe.
type Store[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	Put(ctx context.Context, key string, value T) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore guarda valores en memoria del proceso.
// Si clone no es nil se aplica al escribir y al leer, para no compartir slices con el caller.
type MemoryStore[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	clone func(T) T
}

func NewMemoryStore[T any](clone func(T) T) *MemoryStore[T] {
	return &MemoryStore[T]{
		items: make(map[string]T),
		clone: clone,
	}
}

func (s *MemoryStore[T]) Get(_ context.Context, key string) (T, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	if !ok {
		var zero T
		return zero, false, nil
	}
	if s.clone != nil {
		v = s.clone(v)
	}
	return v, true, nil
}

func (s *MemoryStore[T]) Put(_ context.Context, key string, value T) error {
	if s.clone != nil {
		value = s.clone(value)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}

func (s *MemoryStore[T]) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// Len devuelve la cantidad de claves guardadas.
func (s *MemoryStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
