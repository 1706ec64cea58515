package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// PGRepository implements Repository against PostgreSQL. All methods operate
// inside the caller's transaction so the assessment stays atomic.
type PGRepository struct{}

func NewRepository() *PGRepository {
	return &PGRepository{}
}

// GetDeliveryForAssessment locks the delivery row and returns the latch state.
func (r *PGRepository) GetDeliveryForAssessment(ctx context.Context, tx pgx.Tx, deliveryID string) (DeliverySnapshot, error) {
	const query = `
		SELECT id, project_id, risk_assessed, budget
		FROM deliveries
		WHERE id = $1
		FOR UPDATE
	`

	var snapshot DeliverySnapshot
	err := tx.QueryRow(ctx, query, deliveryID).Scan(
		&snapshot.ID,
		&snapshot.ProjectID,
		&snapshot.Assessed,
		&snapshot.Budget,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DeliverySnapshot{}, ErrDeliveryNotFound
		}
		return DeliverySnapshot{}, fmt.Errorf("risk: load delivery: %w", err)
	}

	return snapshot, nil
}

// GetProjectRisk locks the project row and returns its current risk fields.
func (r *PGRepository) GetProjectRisk(ctx context.Context, tx pgx.Tx, projectID string) (ProjectRisk, error) {
	const query = `
		SELECT id, COALESCE(risk_score, 0), COALESCE(risk_level, 'No Assessment')
		FROM projects
		WHERE id = $1
		FOR UPDATE
	`

	var pr ProjectRisk
	if err := tx.QueryRow(ctx, query, projectID).Scan(&pr.ID, &pr.Score, &pr.Level); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProjectRisk{}, ErrProjectNotFound
		}
		return ProjectRisk{}, fmt.Errorf("risk: load project: %w", err)
	}

	return pr, nil
}

// MarkAssessed latches the delivery and stores its risk fields.
func (r *PGRepository) MarkAssessed(ctx context.Context, tx pgx.Tx, deliveryID string, level Level, score int, at time.Time) error {
	const update = `
		UPDATE deliveries
		SET risk_assessed = TRUE,
		    risk_level = $2,
		    risk_score = $3,
		    risk_assessment_date = $4,
		    updated_at = $4
		WHERE id = $1 AND risk_assessed = FALSE
	`

	tag, err := tx.Exec(ctx, update, deliveryID, level, score, at)
	if err != nil {
		return fmt.Errorf("risk: mark assessed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyAssessed
	}
	return nil
}

// ListAssessed returns the score/budget pairs of every assessed delivery of
// the project, including any row updated earlier in the same transaction.
func (r *PGRepository) ListAssessed(ctx context.Context, tx pgx.Tx, projectID string) ([]AssessedDelivery, error) {
	const query = `
		SELECT COALESCE(risk_score, 0), COALESCE(budget, 0)
		FROM deliveries
		WHERE project_id = $1 AND risk_assessed = TRUE
	`

	rows, err := tx.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("risk: list assessed deliveries: %w", err)
	}
	defer rows.Close()

	assessed := make([]AssessedDelivery, 0, 8)
	for rows.Next() {
		var d AssessedDelivery
		if err := rows.Scan(&d.Score, &d.Budget); err != nil {
			return nil, fmt.Errorf("risk: scan assessed delivery: %w", err)
		}
		assessed = append(assessed, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("risk: iterate assessed deliveries: %w", err)
	}

	return assessed, nil
}

// UpdateProjectRisk overwrites the project risk fields. Idempotent.
func (r *PGRepository) UpdateProjectRisk(ctx context.Context, tx pgx.Tx, projectID string, level Level, score int) error {
	const update = `
		UPDATE projects
		SET risk_level = $2,
		    risk_score = $3,
		    updated_at = NOW()
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, update, projectID, level, score)
	if err != nil {
		return fmt.Errorf("risk: update project risk: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}
