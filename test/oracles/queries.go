package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the consistency checks run against a live database while the
// stress actors are writing. Each query selects VIOLATING rows; an empty
// result means the invariant held. Project budget_spent is deliberately not
// compared against the delivery sum: close-out charges and roll-up
// recomputes are allowed to interleave last-write-wins.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_assessment_complete",
			SQL: `SELECT id FROM deliveries
                  WHERE risk_assessed = TRUE
                    AND (risk_score IS NULL OR risk_assessment_date IS NULL)`,
		},
		{
			Name: "O2_delivery_level_matches_score",
			SQL: `SELECT id, risk_score, risk_level FROM deliveries
                  WHERE risk_score IS NOT NULL
                    AND risk_level <> CASE
                        WHEN risk_score <= 3 THEN 'Muy conservador'
                        WHEN risk_score <= 6 THEN 'Conservador'
                        WHEN risk_score <= 10 THEN 'Moderado'
                        WHEN risk_score <= 14 THEN 'Moderado - alto'
                        WHEN risk_score <= 17 THEN 'Agresivo'
                        ELSE 'Muy Agresivo'
                    END`,
		},
		{
			Name: "O3_project_level_matches_score",
			SQL: `SELECT id, risk_score, risk_level FROM projects
                  WHERE risk_score IS NOT NULL
                    AND risk_level <> CASE
                        WHEN risk_score <= 3 THEN 'Muy conservador'
                        WHEN risk_score <= 6 THEN 'Conservador'
                        WHEN risk_score <= 10 THEN 'Moderado'
                        WHEN risk_score <= 14 THEN 'Moderado - alto'
                        WHEN risk_score <= 17 THEN 'Agresivo'
                        ELSE 'Muy Agresivo'
                    END`,
		},
		{
			Name: "O4_transition_chain_continuous",
			SQL: `WITH chain AS (
                      SELECT id, delivery_id, from_stage, to_stage,
                             LAG(to_stage) OVER (PARTITION BY delivery_id ORDER BY id) AS prev
                      FROM stage_transitions)
                  SELECT id, delivery_id, prev, from_stage FROM chain
                  WHERE prev IS NOT NULL AND from_stage IS DISTINCT FROM prev`,
		},
		{
			Name: "O5_stage_matches_last_transition",
			SQL: `WITH latest AS (
                      SELECT DISTINCT ON (delivery_id) delivery_id, to_stage
                      FROM stage_transitions
                      ORDER BY delivery_id, id DESC)
                  SELECT d.id, d.stage, l.to_stage FROM deliveries d
                  JOIN latest l ON l.delivery_id = d.id
                  WHERE d.stage <> l.to_stage`,
		},
		{
			Name: "O6_latest_history_matches_spend",
			SQL: `WITH latest AS (
                      SELECT DISTINCT ON (delivery_id) delivery_id, amount
                      FROM budget_history
                      ORDER BY delivery_id, id DESC)
                  SELECT d.id, d.budget_spent, l.amount FROM deliveries d
                  JOIN latest l ON l.delivery_id = d.id
                  WHERE d.budget_spent <> l.amount`,
		},
		{
			Name: "O7_history_non_negative",
			SQL:  `SELECT id, delivery_id, amount FROM budget_history WHERE amount < 0`,
		},
		{
			Name: "O8_delivery_number_unique",
			SQL: `SELECT project_id, delivery_number, COUNT(*) FROM deliveries
                  GROUP BY project_id, delivery_number HAVING COUNT(*) > 1`,
		},
		{
			Name: "O9_transition_append_only_guard",
			SQL: `SELECT 'missing_no_mutate_trigger' AS detail
                  WHERE NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname='no_mutate_stage_transitions')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
