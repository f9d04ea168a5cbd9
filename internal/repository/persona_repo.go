package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"persona-engine/internal/domain"
)

// PersonaRepository expone las definiciones de persona de las que se derivan las anclas.
type PersonaRepository interface {
	// LoadAnchorSource devuelve nil, nil si la persona no existe.
	LoadAnchorSource(ctx context.Context, personaID string) (*domain.PersonaDefinition, error)
	Upsert(ctx context.Context, def domain.PersonaDefinition) error
}

type PgPersonaRepository struct {
	pool *pgxpool.Pool
}

func NewPgPersonaRepository(pool *pgxpool.Pool) *PgPersonaRepository {
	return &PgPersonaRepository{pool: pool}
}

func (r *PgPersonaRepository) LoadAnchorSource(ctx context.Context, personaID string) (*domain.PersonaDefinition, error) {
	const query = `
		SELECT id, name, archetype, description, traits, speech_patterns, emotional_baseline, boundaries, signature_phrases, updated_at
		FROM personas
		WHERE id = $1
	`
	var (
		def    domain.PersonaDefinition
		speech []byte
	)
	err := r.pool.QueryRow(ctx, query, personaID).Scan(
		&def.ID,
		&def.Name,
		&def.Archetype,
		&def.Description,
		&def.Traits,
		&speech,
		&def.EmotionalBaseline,
		&def.Boundaries,
		&def.SignaturePhrases,
		&def.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(speech) > 0 {
		if err := json.Unmarshal(speech, &def.SpeechPatterns); err != nil {
			return nil, fmt.Errorf("decode speech patterns: %w", err)
		}
	}
	return &def, nil
}

func (r *PgPersonaRepository) Upsert(ctx context.Context, def domain.PersonaDefinition) error {
	speech, err := json.Marshal(def.SpeechPatterns)
	if err != nil {
		return fmt.Errorf("encode speech patterns: %w", err)
	}
	const query = `
		INSERT INTO personas (id, name, archetype, description, traits, speech_patterns, emotional_baseline, boundaries, signature_phrases, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, archetype = EXCLUDED.archetype, description = EXCLUDED.description,
		    traits = EXCLUDED.traits, speech_patterns = EXCLUDED.speech_patterns,
		    emotional_baseline = EXCLUDED.emotional_baseline, boundaries = EXCLUDED.boundaries,
		    signature_phrases = EXCLUDED.signature_phrases, updated_at = EXCLUDED.updated_at
	`
	_, err = r.pool.Exec(ctx, query,
		def.ID,
		def.Name,
		def.Archetype,
		def.Description,
		nonNilStrings(def.Traits),
		speech,
		string(def.EmotionalBaseline),
		nonNilStrings(def.Boundaries),
		nonNilStrings(def.SignaturePhrases),
		def.UpdatedAt,
	)
	return err
}

func nonNilStrings(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
