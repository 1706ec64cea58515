package dashboard

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"deliverydesk/project"
	"deliverydesk/risk"
)

// highRiskLevels are the classifications surfaced as portfolio alerts.
var highRiskLevels = []string{
	string(risk.LevelModerateHigh),
	string(risk.LevelAggressive),
	string(risk.LevelVeryAggressive),
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) GetSummary(ctx context.Context) (Summary, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM projects),
			(SELECT COUNT(*) FROM projects WHERE stage <> $1),
			(SELECT COUNT(*) FROM projects WHERE risk_level = ANY($2)),
			(SELECT COALESCE(SUM(budget), 0) FROM projects),
			(SELECT COALESCE(SUM(budget_spent), 0) FROM projects),
			(SELECT COUNT(*) FROM deliveries WHERE stage = $1 AND is_archived = FALSE),
			(SELECT COUNT(*) FROM deliveries WHERE risk_assessed = FALSE AND is_archived = FALSE)
	`

	var s Summary
	err := r.pool.QueryRow(ctx, query, project.StageClosed, highRiskLevels).Scan(
		&s.TotalProjects,
		&s.ActiveProjects,
		&s.HighRiskProjects,
		&s.TotalBudget,
		&s.TotalSpent,
		&s.ClosedDeliveries,
		&s.PendingAssessments,
	)
	if err != nil {
		return Summary{}, fmt.Errorf("dashboard: summary: %w", err)
	}
	return s, nil
}

func (r *PGRepository) ListProjectBudgets(ctx context.Context) ([]ProjectBudget, error) {
	const query = `
		SELECT id, name, stage, risk_level, budget, budget_spent
		FROM projects
		ORDER BY budget DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("dashboard: project budgets: %w", err)
	}
	defer rows.Close()

	budgets := make([]ProjectBudget, 0, 16)
	for rows.Next() {
		var b ProjectBudget
		if err := rows.Scan(&b.ProjectID, &b.Name, &b.Stage, &b.RiskLevel, &b.Budget, &b.Spent); err != nil {
			return nil, fmt.Errorf("dashboard: scan project budget: %w", err)
		}
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dashboard: iterate project budgets: %w", err)
	}

	return budgets, nil
}

func (r *PGRepository) ListPendingAssessments(ctx context.Context) ([]PendingAssessment, error) {
	const query = `
		SELECT d.id, d.project_id, p.name, d.delivery_number, d.stage, d.estimated_date
		FROM deliveries d
		JOIN projects p ON p.id = d.project_id
		WHERE d.risk_assessed = FALSE AND d.is_archived = FALSE
		ORDER BY d.estimated_date, d.delivery_number
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("dashboard: pending assessments: %w", err)
	}
	defer rows.Close()

	pending := make([]PendingAssessment, 0, 16)
	for rows.Next() {
		var p PendingAssessment
		if err := rows.Scan(&p.DeliveryID, &p.ProjectID, &p.ProjectName, &p.DeliveryNumber, &p.Stage, &p.EstimatedDate); err != nil {
			return nil, fmt.Errorf("dashboard: scan pending assessment: %w", err)
		}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dashboard: iterate pending assessments: %w", err)
	}

	return pending, nil
}
