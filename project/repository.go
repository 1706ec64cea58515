package project

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"deliverydesk/risk"
)

const projectColumns = `id, name, description, stage, risk_level, COALESCE(risk_score, 0), budget, budget_spent,
	projected_deliveries, start_date, end_date, owner_id, created_at, updated_at`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, p Project) (Project, error) {
	const insertSQL = `
		INSERT INTO projects (id, name, description, stage, risk_level, budget, budget_spent,
		                      projected_deliveries, start_date, end_date, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + projectColumns

	created, err := scanProject(r.pool.QueryRow(ctx, insertSQL,
		p.ID,
		p.Name,
		p.Description,
		p.Stage,
		p.RiskLevel,
		p.Budget,
		p.BudgetSpent,
		p.ProjectedDeliveries,
		p.StartDate,
		p.EndDate,
		p.OwnerID,
	))
	if err != nil {
		return Project{}, fmt.Errorf("project: insert: %w", err)
	}

	return created, nil
}

func (r *PGRepository) List(ctx context.Context) ([]Project, error) {
	const query = `
		SELECT ` + projectColumns + `
		FROM projects
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("project: list: %w", err)
	}
	defer rows.Close()

	projects := make([]Project, 0, 16)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("project: scan: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("project: iterate: %w", err)
	}

	return projects, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Project, error) {
	const query = `
		SELECT ` + projectColumns + `
		FROM projects
		WHERE id = $1
	`

	p, err := scanProject(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, fmt.Errorf("project: get by id: %w", err)
	}

	return p, nil
}

// Update issues a partial UPDATE built only from the supplied fields. The
// derived risk level accompanies any score change so the pair stays
// consistent with the classification table.
func (r *PGRepository) Update(ctx context.Context, id string, params UpdateParams, riskLevel *risk.Level) (Project, error) {
	sets := make([]string, 0, 10)
	args := []any{id}
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Name != nil {
		set("name", *params.Name)
	}
	if params.Description != nil {
		set("description", *params.Description)
	}
	if params.Stage != nil {
		set("stage", *params.Stage)
	}
	if params.RiskScore != nil {
		set("risk_score", *params.RiskScore)
	}
	if riskLevel != nil {
		set("risk_level", *riskLevel)
	}
	if params.Budget != nil {
		set("budget", *params.Budget)
	}
	if params.BudgetSpent != nil {
		set("budget_spent", *params.BudgetSpent)
	}
	if params.ProjectedDeliveries != nil {
		set("projected_deliveries", *params.ProjectedDeliveries)
	}
	if params.StartDate != nil {
		set("start_date", *params.StartDate)
	}
	if params.EndDate != nil {
		set("end_date", *params.EndDate)
	}
	if params.OwnerID != nil {
		set("owner_id", *params.OwnerID)
	}

	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}

	query := fmt.Sprintf(`
		UPDATE projects
		SET %s, updated_at = NOW()
		WHERE id = $1
		RETURNING %s
	`, strings.Join(sets, ", "), projectColumns)

	p, err := scanProject(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, fmt.Errorf("project: update: %w", err)
	}

	return p, nil
}

func (r *PGRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("project: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProject(row pgx.Row) (Project, error) {
	var (
		p       Project
		ownerID *string
	)
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Stage,
		&p.RiskLevel,
		&p.RiskScore,
		&p.Budget,
		&p.BudgetSpent,
		&p.ProjectedDeliveries,
		&p.StartDate,
		&p.EndDate,
		&ownerID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return Project{}, err
	}

	p.OwnerID = ownerID
	return p, nil
}
