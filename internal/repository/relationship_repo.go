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

// RelationshipRepository guarda el registro autoritativo de cada pareja (persona, usuario).
type RelationshipRepository interface {
	// LoadRelationship devuelve nil, nil si la pareja nunca interactuo.
	LoadRelationship(ctx context.Context, personaID, userID string) (*domain.RelationshipState, error)
	SaveRelationship(ctx context.Context, state domain.RelationshipState) error
}

type PgRelationshipRepository struct {
	pool *pgxpool.Pool
}

func NewPgRelationshipRepository(pool *pgxpool.Pool) *PgRelationshipRepository {
	return &PgRelationshipRepository{pool: pool}
}

// Las columnas escalares se duplican fuera del JSON para poder consultar por etapa o nivel.
func (r *PgRelationshipRepository) LoadRelationship(ctx context.Context, personaID, userID string) (*domain.RelationshipState, error) {
	const query = `
		SELECT state
		FROM persona_relationships
		WHERE persona_id = $1 AND user_id = $2
	`
	var raw []byte
	err := r.pool.QueryRow(ctx, query, personaID, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state domain.RelationshipState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode relationship state: %w", err)
	}
	return &state, nil
}

func (r *PgRelationshipRepository) SaveRelationship(ctx context.Context, state domain.RelationshipState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode relationship state: %w", err)
	}
	const query = `
		INSERT INTO persona_relationships (persona_id, user_id, stage, level, interaction_count, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (persona_id, user_id) DO UPDATE
		SET stage = EXCLUDED.stage, level = EXCLUDED.level, interaction_count = EXCLUDED.interaction_count,
		    state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`
	_, err = r.pool.Exec(ctx, query,
		state.PersonaID,
		state.UserID,
		string(state.Stage),
		state.Level,
		state.InteractionCount,
		raw,
		state.CreatedAt,
		state.UpdatedAt,
	)
	return err
}
