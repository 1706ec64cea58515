package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Stress actors for the delivery workflow. Each actor hammers one slice of
// the schema in its own transaction loop so the oracles can check that the
// per-delivery row locks actually serialize competing writers. Lost races
// and chaos-induced disconnects are expected under contention; only real
// SQL errors abort the run.

var stageOrder = []string{
	"Definición",
	"Desarrollo Local",
	"Ambiente DEV",
	"Ambiente TST",
	"Ambiente UAT",
	"Soporte Productivo",
	"Cerrado",
}

func levelFor(score int) string {
	switch {
	case score <= 3:
		return "Muy conservador"
	case score <= 6:
		return "Conservador"
	case score <= 10:
		return "Moderado"
	case score <= 14:
		return "Moderado - alto"
	case score <= 17:
		return "Agresivo"
	default:
		return "Muy Agresivo"
	}
}

// tolerable reports whether an actor loop should shrug the error off and
// retry. Serialization failures, deadlocks and lock timeouts are the whole
// point of the exercise; network errors show up while chaos restarts the
// database.
func tolerable(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}
	// Non-Postgres errors are connection-level noise from chaos.
	return true
}

// Assessor repeatedly races for the risk latch on a delivery. Only the
// writer that still sees risk_assessed = FALSE gets to stamp the score;
// after a successful latch the flag is flipped back off so the next round
// has something to compete for. The project aggregate is recomputed in the
// same transaction.
func Assessor(ctx context.Context, pool *pgxpool.Pool, deliveryID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}

		score := 1 + rand.Intn(25)
		err := withTx(ctx, pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `
				UPDATE deliveries
				SET risk_assessed = TRUE,
				    risk_score = $2,
				    risk_level = $3,
				    risk_assessment_date = NOW(),
				    updated_at = NOW()
				WHERE id = $1 AND risk_assessed = FALSE`,
				deliveryID, score, levelFor(score))
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				// Lost the latch; release it for the next round.
				_, err = tx.Exec(ctx, `
					UPDATE deliveries
					SET risk_assessed = FALSE, updated_at = NOW()
					WHERE id = $1 AND risk_assessed = TRUE`, deliveryID)
				return err
			}
			_, err = tx.Exec(ctx, `
				UPDATE projects p
				SET risk_score = sub.avg_score,
				    risk_level = CASE
				        WHEN sub.avg_score <= 3 THEN 'Muy conservador'
				        WHEN sub.avg_score <= 6 THEN 'Conservador'
				        WHEN sub.avg_score <= 10 THEN 'Moderado'
				        WHEN sub.avg_score <= 14 THEN 'Moderado - alto'
				        WHEN sub.avg_score <= 17 THEN 'Agresivo'
				        ELSE 'Muy Agresivo'
				    END,
				    updated_at = NOW()
				FROM (
				    SELECT project_id, ROUND(AVG(risk_score))::INT AS avg_score
				    FROM deliveries
				    WHERE risk_score IS NOT NULL
				    GROUP BY project_id
				) sub
				WHERE p.id = sub.project_id
				  AND p.id = (SELECT project_id FROM deliveries WHERE id = $1)`,
				deliveryID)
			return err
		})
		if !tolerable(err) {
			return fmt.Errorf("assessor %s: %w", deliveryID, err)
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Mover walks a delivery one stage at a time across the board, recording a
// stage_transitions row in the same transaction as the stage update. It
// reverses direction at either end so the chain oracle always has fresh
// links to verify.
func Mover(ctx context.Context, pool *pgxpool.Pool, deliveryID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}

		err := withTx(ctx, pool, func(tx pgx.Tx) error {
			var current string
			if err := tx.QueryRow(ctx,
				`SELECT stage FROM deliveries WHERE id = $1 FOR UPDATE`, deliveryID,
			).Scan(&current); err != nil {
				return err
			}
			idx := stageIndex(current)
			next := idx + 1
			if idx == len(stageOrder)-1 || (idx > 0 && rand.Intn(3) == 0) {
				next = idx - 1
			}
			to := stageOrder[next]
			if _, err := tx.Exec(ctx,
				`UPDATE deliveries SET stage = $2, updated_at = NOW() WHERE id = $1`,
				deliveryID, to); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO stage_transitions (delivery_id, from_stage, to_stage, moved_at)
				VALUES ($1, $2, $3, NOW())`, deliveryID, current, to)
			return err
		})
		if !tolerable(err) {
			return fmt.Errorf("mover %s: %w", deliveryID, err)
		}
		time.Sleep(time.Duration(5+rand.Intn(15)) * time.Millisecond)
	}
}

// Spender runs the budget roll-up: lock the delivery row, replace its spend,
// append a history entry and recompute the project total from the delivery
// rows. All three writes share one transaction so the history oracle can
// require the latest entry to match the delivery's current spend.
func Spender(ctx context.Context, pool *pgxpool.Pool, deliveryID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}

		amount := float64(rand.Intn(9000)) + 1
		err := withTx(ctx, pool, func(tx pgx.Tx) error {
			var projectID string
			if err := tx.QueryRow(ctx,
				`SELECT project_id FROM deliveries WHERE id = $1 FOR UPDATE`, deliveryID,
			).Scan(&projectID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				UPDATE deliveries
				SET budget_spent = $2, last_budget_update = NOW(), updated_at = NOW()
				WHERE id = $1`, deliveryID, amount); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO budget_history (delivery_id, amount, update_date)
				VALUES ($1, $2, NOW())`, deliveryID, amount); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `
				UPDATE projects
				SET budget_spent = (
				    SELECT COALESCE(SUM(budget_spent), 0) FROM deliveries WHERE project_id = $1
				), updated_at = NOW()
				WHERE id = $1`, projectID)
			return err
		})
		if !tolerable(err) {
			return fmt.Errorf("spender %s: %w", deliveryID, err)
		}
		time.Sleep(time.Duration(15+rand.Intn(25)) * time.Millisecond)
	}
}

// Closer bounces a delivery between Soporte Productivo and Cerrado, charging
// the delivery budget to the project on every close, the way the board does
// when a card lands in the last column.
func Closer(ctx context.Context, pool *pgxpool.Pool, deliveryID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}

		err := withTx(ctx, pool, func(tx pgx.Tx) error {
			var current, projectID string
			var budget float64
			if err := tx.QueryRow(ctx,
				`SELECT stage, project_id, budget FROM deliveries WHERE id = $1 FOR UPDATE`, deliveryID,
			).Scan(&current, &projectID, &budget); err != nil {
				return err
			}
			to := "Cerrado"
			if current == "Cerrado" {
				to = "Soporte Productivo"
			} else if current != "Soporte Productivo" {
				// Card drifted out of this actor's lane; leave it alone.
				return nil
			}
			if _, err := tx.Exec(ctx,
				`UPDATE deliveries SET stage = $2, updated_at = NOW() WHERE id = $1`,
				deliveryID, to); err != nil {
				return err
			}
			if to == "Cerrado" {
				if _, err := tx.Exec(ctx,
					`UPDATE projects SET budget_spent = budget_spent + $2, updated_at = NOW() WHERE id = $1`,
					projectID, budget); err != nil {
					return err
				}
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO stage_transitions (delivery_id, from_stage, to_stage, moved_at)
				VALUES ($1, $2, $3, NOW())`, deliveryID, current, to)
			return err
		})
		if !tolerable(err) {
			return fmt.Errorf("closer %s: %w", deliveryID, err)
		}
		time.Sleep(time.Duration(20+rand.Intn(30)) * time.Millisecond)
	}
}

func stageIndex(stage string) int {
	for i, s := range stageOrder {
		if s == stage {
			return i
		}
	}
	return 0
}

func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
