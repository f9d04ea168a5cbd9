package domain

import (
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
)

type MemoryType string

const (
	MemoryFact         MemoryType = "fact"
	MemoryPreference   MemoryType = "preference"
	MemoryEvent        MemoryType = "event"
	MemoryRelationship MemoryType = "relationship"
	MemorySkill        MemoryType = "skill"
)

// Memory es un recuerdo de largo plazo de la persona.
// AccessCount no baja nunca; el decaimiento se calcula al leer.
type Memory struct {
	ID             uuid.UUID       `json:"id"`
	PersonaID      string          `json:"persona_id"`
	UserID         string          `json:"user_id,omitempty"`
	Content        string          `json:"content"`
	Type           MemoryType      `json:"type"`
	Importance     float64         `json:"importance"`
	Confidence     float64         `json:"confidence"`
	AccessCount    int             `json:"access_count"`
	CreatedAt      time.Time       `json:"created_at"`
	LastAccessedAt time.Time       `json:"last_accessed_at"`
	Embedding      pgvector.Vector `json:"-"`
}

// MemoryMetadata acompaña a un Store explicito.
// Importance y Confidence en 0 toman el default (0.5 y 1); un valor negativo guarda un cero explicito.
type MemoryMetadata struct {
	UserID     string     `json:"user_id,omitempty"`
	Type       MemoryType `json:"type"`
	Importance float64    `json:"importance"`
	Confidence float64    `json:"confidence"`
}

// RecalledMemory es un recuerdo rankeado por Recall.
type RecalledMemory struct {
	Memory     Memory  `json:"memory"`
	Similarity float64 `json:"similarity"`
	Retention  float64 `json:"retention"`
	Relevance  float64 `json:"relevance"`
}

// MemoryCandidate es un hecho propuesto por el extractor asistido por modelo.
type MemoryCandidate struct {
	Content    string     `json:"content"`
	Type       MemoryType `json:"type"`
	Importance float64    `json:"importance"`
	Confidence float64    `json:"confidence"`
}

// VectorHit es un resultado crudo del indice vectorial.
type VectorHit struct {
	ID         uuid.UUID         `json:"id"`
	Content    string            `json:"content"`
	Similarity float64           `json:"similarity"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
