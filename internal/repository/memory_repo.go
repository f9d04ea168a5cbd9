package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"persona-engine/internal/domain"
)

// MemoryFilter restringe LoadMemories y Search. Campos vacios no filtran.
type MemoryFilter struct {
	UserID        string
	Types         []domain.MemoryType
	MinImportance float64
	Limit         int
}

// MemoryRepository es el registro autoritativo de recuerdos.
// Get, Touch y Delete devuelven pgx.ErrNoRows si el id no existe.
type MemoryRepository interface {
	UpsertMemory(ctx context.Context, memory domain.Memory) error
	GetMemories(ctx context.Context, ids []uuid.UUID) ([]domain.Memory, error)
	LoadMemories(ctx context.Context, personaID string, filter MemoryFilter) ([]domain.Memory, error)
	TouchMemory(ctx context.Context, id uuid.UUID, at time.Time) (domain.Memory, error)
	DeleteMemory(ctx context.Context, id uuid.UUID) error
}

type PgMemoryRepository struct {
	pool *pgxpool.Pool
}

func NewPgMemoryRepository(pool *pgxpool.Pool) *PgMemoryRepository {
	return &PgMemoryRepository{pool: pool}
}

const memoryColumns = `id, persona_id, user_id, content, memory_type, importance, confidence, access_count, created_at, last_accessed_at, embedding`

func (r *PgMemoryRepository) UpsertMemory(ctx context.Context, memory domain.Memory) error {
	const query = `
		INSERT INTO persona_memories (` + memoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content, memory_type = EXCLUDED.memory_type, importance = EXCLUDED.importance,
		    confidence = EXCLUDED.confidence, access_count = EXCLUDED.access_count,
		    last_accessed_at = EXCLUDED.last_accessed_at, embedding = EXCLUDED.embedding
	`
	var embedding interface{}
	if len(memory.Embedding.Slice()) > 0 {
		embedding = memory.Embedding
	}
	_, err := r.pool.Exec(ctx, query,
		memory.ID,
		memory.PersonaID,
		memory.UserID,
		memory.Content,
		string(memory.Type),
		memory.Importance,
		memory.Confidence,
		memory.AccessCount,
		memory.CreatedAt,
		memory.LastAccessedAt,
		embedding,
	)
	return err
}

func (r *PgMemoryRepository) GetMemories(ctx context.Context, ids []uuid.UUID) ([]domain.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT ` + memoryColumns + ` FROM persona_memories WHERE id = ANY($1)`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (r *PgMemoryRepository) LoadMemories(ctx context.Context, personaID string, filter MemoryFilter) ([]domain.Memory, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT ` + memoryColumns + `
		FROM persona_memories
		WHERE persona_id = $1
		  AND ($2 = '' OR user_id = $2)
		  AND (cardinality($3::text[]) = 0 OR memory_type = ANY($3))
		  AND importance >= $4
		ORDER BY importance DESC, last_accessed_at DESC
		LIMIT $5
	`
	rows, err := r.pool.Query(ctx, query, personaID, filter.UserID, memoryTypeStrings(filter.Types), filter.MinImportance, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (r *PgMemoryRepository) TouchMemory(ctx context.Context, id uuid.UUID, at time.Time) (domain.Memory, error) {
	const query = `
		UPDATE persona_memories
		SET access_count = access_count + 1, last_accessed_at = $2
		WHERE id = $1
		RETURNING ` + memoryColumns
	rows, err := r.pool.Query(ctx, query, id, at)
	if err != nil {
		return domain.Memory{}, err
	}
	defer rows.Close()
	list, err := scanMemories(rows)
	if err != nil {
		return domain.Memory{}, err
	}
	if len(list) == 0 {
		return domain.Memory{}, pgx.ErrNoRows
	}
	return list[0], nil
}

func (r *PgMemoryRepository) DeleteMemory(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM persona_memories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// PgVectorIndex busca recuerdos por distancia coseno de pgvector (<=>) sobre la misma tabla.
type PgVectorIndex struct {
	pool *pgxpool.Pool
}

func NewPgVectorIndex(pool *pgxpool.Pool) *PgVectorIndex {
	return &PgVectorIndex{pool: pool}
}

func (i *PgVectorIndex) Search(ctx context.Context, personaID string, embedding []float32, limit int, filter MemoryFilter) ([]domain.VectorHit, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT id, content, 1 - (embedding <=> $2) AS similarity, memory_type, user_id
		FROM persona_memories
		WHERE persona_id = $1
		  AND embedding IS NOT NULL
		  AND ($3 = '' OR user_id = $3)
		  AND (cardinality($4::text[]) = 0 OR memory_type = ANY($4))
		ORDER BY embedding <=> $2
		LIMIT $5
	`
	rows, err := i.pool.Query(ctx, query, personaID, pgvector.NewVector(embedding), filter.UserID, memoryTypeStrings(filter.Types), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []domain.VectorHit
	for rows.Next() {
		var (
			h       domain.VectorHit
			memType string
			userID  string
		)
		if err := rows.Scan(&h.ID, &h.Content, &h.Similarity, &memType, &userID); err != nil {
			return nil, err
		}
		h.Metadata = map[string]string{"type": memType, "user_id": userID}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return hits, nil
}

// Upsert actualiza solo el embedding; la fila la escribe MemoryRepository.
func (i *PgVectorIndex) Upsert(ctx context.Context, memory domain.Memory) error {
	_, err := i.pool.Exec(ctx, `UPDATE persona_memories SET embedding = $2 WHERE id = $1`, memory.ID, memory.Embedding)
	return err
}

func (i *PgVectorIndex) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := i.pool.Exec(ctx, `UPDATE persona_memories SET embedding = NULL WHERE id = $1`, id)
	return err
}

func memoryTypeStrings(types []domain.MemoryType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func scanMemories(rows pgxRows) ([]domain.Memory, error) {
	var memories []domain.Memory
	for rows.Next() {
		var (
			m         domain.Memory
			memType   string
			embedding *pgvector.Vector
		)
		if err := rows.Scan(
			&m.ID,
			&m.PersonaID,
			&m.UserID,
			&m.Content,
			&memType,
			&m.Importance,
			&m.Confidence,
			&m.AccessCount,
			&m.CreatedAt,
			&m.LastAccessedAt,
			&embedding,
		); err != nil {
			return nil, err
		}
		m.Type = domain.MemoryType(memType)
		if embedding != nil {
			m.Embedding = *embedding
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return memories, nil
}

// pgxRows is a minimal interface to allow scanning from pgx rows and simplify testing.
type pgxRows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
	Close()
}
