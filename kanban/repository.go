package kanban

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"deliverydesk/project"
)

// PGRepository implements Repository backed by PostgreSQL. Transactional
// methods operate on the supplied pgx.Tx; history reads use the pool.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) GetCardForMove(ctx context.Context, tx pgx.Tx, deliveryID string) (CardSnapshot, error) {
	const query = `
		SELECT id, project_id, stage, budget, is_archived, error_count, error_solution_time
		FROM deliveries
		WHERE id = $1
		FOR UPDATE
	`

	var card CardSnapshot
	err := tx.QueryRow(ctx, query, deliveryID).Scan(
		&card.ID,
		&card.ProjectID,
		&card.Stage,
		&card.Budget,
		&card.IsArchived,
		&card.ErrorCount,
		&card.ErrorSolutionTime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CardSnapshot{}, ErrDeliveryNotFound
		}
		return CardSnapshot{}, fmt.Errorf("kanban: lock card: %w", err)
	}
	return card, nil
}

func (r *PGRepository) UpdateStage(ctx context.Context, tx pgx.Tx, deliveryID string, stage project.Stage, at time.Time) error {
	const query = `
		UPDATE deliveries
		SET stage = $2, updated_at = $3
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, deliveryID, stage, at)
	if err != nil {
		return fmt.Errorf("kanban: update stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

func (r *PGRepository) AddProjectSpend(ctx context.Context, tx pgx.Tx, projectID string, amount float64) error {
	const query = `
		UPDATE projects
		SET budget_spent = budget_spent + $2, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, projectID, amount)
	if err != nil {
		return fmt.Errorf("kanban: add project spend: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("kanban: add project spend: project %s not found", projectID)
	}
	return nil
}

func (r *PGRepository) AppendTransition(ctx context.Context, tx pgx.Tx, deliveryID string, from *project.Stage, to project.Stage, at time.Time) error {
	const query = `
		INSERT INTO stage_transitions (delivery_id, from_stage, to_stage, moved_at)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := tx.Exec(ctx, query, deliveryID, from, to, at); err != nil {
		return fmt.Errorf("kanban: append transition: %w", err)
	}
	return nil
}

func (r *PGRepository) ListTransitions(ctx context.Context, deliveryID string) ([]StageTransition, error) {
	const query = `
		SELECT id, delivery_id, from_stage, to_stage, moved_at
		FROM stage_transitions
		WHERE delivery_id = $1
		ORDER BY moved_at, id
	`

	rows, err := r.pool.Query(ctx, query, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("kanban: list transitions: %w", err)
	}
	defer rows.Close()

	transitions := make([]StageTransition, 0, 8)
	for rows.Next() {
		var t StageTransition
		if err := rows.Scan(&t.ID, &t.DeliveryID, &t.From, &t.To, &t.MovedAt); err != nil {
			return nil, fmt.Errorf("kanban: scan transition: %w", err)
		}
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kanban: iterate transitions: %w", err)
	}

	return transitions, nil
}
