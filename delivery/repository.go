package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const deliveryColumns = `d.id, d.project_id, p.name, d.delivery_number, d.stage, d.budget, d.budget_spent,
	d.estimated_date, d.creation_date, d.actual_start_date, d.actual_delivery_date, d.last_budget_update,
	d.is_archived, d.risk_assessed, d.risk_level, COALESCE(d.risk_score, 0), d.risk_assessment_date,
	d.error_count, d.error_solution_time, d.created_at, d.updated_at`

// PGRepository implements Repository and BudgetRepository backed by
// PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, d Delivery) (Delivery, error) {
	const insertSQL = `
		WITH d AS (
			INSERT INTO deliveries (id, project_id, delivery_number, stage, budget, budget_spent,
			                        estimated_date, creation_date, risk_level, error_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING *
		)
		SELECT ` + deliveryColumns + `
		FROM d
		JOIN projects p ON p.id = d.project_id
	`

	created, err := scanDelivery(r.pool.QueryRow(ctx, insertSQL,
		d.ID,
		d.ProjectID,
		d.DeliveryNumber,
		d.Stage,
		d.Budget,
		d.BudgetSpent,
		d.EstimatedDate,
		d.CreationDate,
		d.RiskLevel,
		d.ErrorCount,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return Delivery{}, ErrDuplicateNumber
			case "23503":
				return Delivery{}, ErrProjectNotFound
			}
		}
		return Delivery{}, fmt.Errorf("delivery: insert: %w", err)
	}

	return created, nil
}

func (r *PGRepository) List(ctx context.Context, filters ListFilters) ([]Delivery, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 1)
	if filters.ProjectID != "" {
		args = append(args, filters.ProjectID)
		where = append(where, fmt.Sprintf("d.project_id = $%d", len(args)))
	}
	if filters.PendingRiskOnly {
		where = append(where, "d.risk_assessed = FALSE")
	}
	if !filters.IncludeArchived {
		where = append(where, "d.is_archived = FALSE")
	}

	query := `
		SELECT ` + deliveryColumns + `
		FROM deliveries d
		JOIN projects p ON p.id = d.project_id
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY d.creation_date DESC, d.delivery_number"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("delivery: list: %w", err)
	}
	defer rows.Close()

	deliveries := make([]Delivery, 0, 16)
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("delivery: scan: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delivery: iterate: %w", err)
	}

	return deliveries, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Delivery, error) {
	const query = `
		SELECT ` + deliveryColumns + `
		FROM deliveries d
		JOIN projects p ON p.id = d.project_id
		WHERE d.id = $1
	`

	d, err := scanDelivery(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Delivery{}, ErrNotFound
		}
		return Delivery{}, fmt.Errorf("delivery: get by id: %w", err)
	}

	return d, nil
}

func (r *PGRepository) Update(ctx context.Context, id string, params UpdateParams) (Delivery, error) {
	sets := make([]string, 0, 7)
	args := []any{id}
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.DeliveryNumber != nil {
		set("delivery_number", *params.DeliveryNumber)
	}
	if params.Budget != nil {
		set("budget", *params.Budget)
	}
	if params.EstimatedDate != nil {
		set("estimated_date", *params.EstimatedDate)
	}
	if params.ActualStartDate != nil {
		set("actual_start_date", *params.ActualStartDate)
	}
	if params.ActualDeliveryDate != nil {
		set("actual_delivery_date", *params.ActualDeliveryDate)
	}
	if params.ErrorCount != nil {
		set("error_count", *params.ErrorCount)
	}
	if params.ErrorSolutionTime != nil {
		set("error_solution_time", *params.ErrorSolutionTime)
	}

	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}

	query := fmt.Sprintf(`
		WITH d AS (
			UPDATE deliveries
			SET %s, updated_at = NOW()
			WHERE id = $1
			RETURNING *
		)
		SELECT %s
		FROM d
		JOIN projects p ON p.id = d.project_id
	`, strings.Join(sets, ", "), deliveryColumns)

	d, err := scanDelivery(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Delivery{}, ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Delivery{}, ErrDuplicateNumber
		}
		return Delivery{}, fmt.Errorf("delivery: update: %w", err)
	}

	return d, nil
}

func (r *PGRepository) SetArchived(ctx context.Context, id string, archived bool) (Delivery, error) {
	const query = `
		WITH d AS (
			UPDATE deliveries
			SET is_archived = $2, updated_at = NOW()
			WHERE id = $1
			RETURNING *
		)
		SELECT ` + deliveryColumns + `
		FROM d
		JOIN projects p ON p.id = d.project_id
	`

	d, err := scanDelivery(r.pool.QueryRow(ctx, query, id, archived))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Delivery{}, ErrNotFound
		}
		return Delivery{}, fmt.Errorf("delivery: set archived: %w", err)
	}

	return d, nil
}

func (r *PGRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM deliveries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delivery: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) GetSpendForUpdate(ctx context.Context, tx pgx.Tx, deliveryID string) (string, float64, error) {
	const query = `
		SELECT project_id, budget_spent
		FROM deliveries
		WHERE id = $1
		FOR UPDATE
	`

	var (
		projectID string
		spent     float64
	)
	if err := tx.QueryRow(ctx, query, deliveryID).Scan(&projectID, &spent); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, ErrNotFound
		}
		return "", 0, fmt.Errorf("delivery: lock for spend update: %w", err)
	}
	return projectID, spent, nil
}

func (r *PGRepository) UpdateSpend(ctx context.Context, tx pgx.Tx, deliveryID string, amount float64, at time.Time) error {
	const query = `
		UPDATE deliveries
		SET budget_spent = $2, last_budget_update = $3, updated_at = $3
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, deliveryID, amount, at)
	if err != nil {
		return fmt.Errorf("delivery: update spend: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) AppendHistory(ctx context.Context, tx pgx.Tx, deliveryID string, amount float64, at time.Time) error {
	const query = `
		INSERT INTO budget_history (delivery_id, amount, update_date)
		VALUES ($1, $2, $3)
	`

	if _, err := tx.Exec(ctx, query, deliveryID, amount, at); err != nil {
		return fmt.Errorf("delivery: append budget history: %w", err)
	}
	return nil
}

func (r *PGRepository) RecomputeProjectSpend(ctx context.Context, tx pgx.Tx, projectID string) (float64, error) {
	const query = `
		UPDATE projects
		SET budget_spent = (
			SELECT COALESCE(SUM(budget_spent), 0)
			FROM deliveries
			WHERE project_id = $1
		), updated_at = NOW()
		WHERE id = $1
		RETURNING budget_spent
	`

	var total float64
	if err := tx.QueryRow(ctx, query, projectID).Scan(&total); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrProjectNotFound
		}
		return 0, fmt.Errorf("delivery: recompute project spend: %w", err)
	}
	return total, nil
}

func (r *PGRepository) ListHistory(ctx context.Context, deliveryID string) ([]BudgetHistoryEntry, error) {
	const query = `
		SELECT id, delivery_id, amount, update_date
		FROM budget_history
		WHERE delivery_id = $1
		ORDER BY update_date DESC, id DESC
	`

	rows, err := r.pool.Query(ctx, query, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("delivery: list budget history: %w", err)
	}
	defer rows.Close()

	entries := make([]BudgetHistoryEntry, 0, 8)
	for rows.Next() {
		var e BudgetHistoryEntry
		if err := rows.Scan(&e.ID, &e.DeliveryID, &e.Amount, &e.UpdateDate); err != nil {
			return nil, fmt.Errorf("delivery: scan budget history: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delivery: iterate budget history: %w", err)
	}

	return entries, nil
}

func scanDelivery(row pgx.Row) (Delivery, error) {
	var d Delivery
	err := row.Scan(
		&d.ID,
		&d.ProjectID,
		&d.ProjectName,
		&d.DeliveryNumber,
		&d.Stage,
		&d.Budget,
		&d.BudgetSpent,
		&d.EstimatedDate,
		&d.CreationDate,
		&d.ActualStartDate,
		&d.ActualDeliveryDate,
		&d.LastBudgetUpdate,
		&d.IsArchived,
		&d.RiskAssessed,
		&d.RiskLevel,
		&d.RiskScore,
		&d.RiskAssessmentDate,
		&d.ErrorCount,
		&d.ErrorSolutionTime,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return Delivery{}, err
	}
	return d, nil
}
