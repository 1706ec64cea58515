package kanban

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"deliverydesk/project"
)

// TestBoardMove_Integration connects to a real PostgreSQL via DATABASE_URL
// and drives a card across the board end to end: gate rejections, the
// transition log and the close-out budget charge.
func TestBoardMove_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if !tableExists(ctx, t, pool, "projects") || !tableExists(ctx, t, pool, "deliveries") || !tableExists(ctx, t, pool, "stage_transitions") {
		t.Skip("database schema missing; apply the files under migrations/ first")
	}

	suffix := time.Now().UnixNano()
	projectID := fmt.Sprintf("PRJ-itest-%d", suffix)
	deliveryID := fmt.Sprintf("DLV-itest-%d", suffix)

	if _, err := pool.Exec(ctx, `
		INSERT INTO projects (id, name, budget, projected_deliveries, start_date, end_date)
		VALUES ($1, 'Board Integration', 100000, 1, NOW(), NOW() + INTERVAL '60 days')`,
		projectID); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	if _, err := pool.Exec(ctx, `
		INSERT INTO deliveries (id, project_id, delivery_number, stage, budget, estimated_date, error_count, error_solution_time)
		VALUES ($1, $2, 1, 'Ambiente TST', 7500, NOW() + INTERVAL '30 days', 2, 1.5)`,
		deliveryID, projectID); err != nil {
		t.Fatalf("seed delivery: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM stage_transitions WHERE delivery_id = $1`, deliveryID)
		pool.Exec(ctx2, `DELETE FROM deliveries WHERE id = $1`, deliveryID)
		pool.Exec(ctx2, `DELETE FROM projects WHERE id = $1`, projectID)
	})

	svc := NewService(pool, NewRepository(pool), nil)

	// Jumping straight past the test stage from an earlier column is blocked.
	if _, err := pool.Exec(ctx,
		`UPDATE deliveries SET stage = 'Desarrollo Local' WHERE id = $1`, deliveryID); err != nil {
		t.Fatalf("reset stage: %v", err)
	}
	if _, err := svc.Move(ctx, MoveParams{DeliveryID: deliveryID, To: project.StageUATEnv}); !errors.Is(err, ErrSkipsTesting) {
		t.Fatalf("expected ErrSkipsTesting, got %v", err)
	}

	// Walk the card forward legally.
	if _, err := pool.Exec(ctx,
		`UPDATE deliveries SET stage = 'Ambiente TST' WHERE id = $1`, deliveryID); err != nil {
		t.Fatalf("reset stage: %v", err)
	}
	if _, err := svc.Move(ctx, MoveParams{DeliveryID: deliveryID, To: project.StageUATEnv}); err != nil {
		t.Fatalf("move to UAT: %v", err)
	}
	if _, err := svc.Move(ctx, MoveParams{DeliveryID: deliveryID, To: project.StageProdSupport}); err != nil {
		t.Fatalf("move to production support: %v", err)
	}

	res, err := svc.Move(ctx, MoveParams{DeliveryID: deliveryID, To: project.StageClosed})
	if err != nil {
		t.Fatalf("close card: %v", err)
	}
	if res.BudgetCharged != 7500 {
		t.Fatalf("expected close to charge 7500, charged %v", res.BudgetCharged)
	}

	var spent float64
	if err := pool.QueryRow(ctx,
		`SELECT budget_spent FROM projects WHERE id = $1`, projectID).Scan(&spent); err != nil {
		t.Fatalf("verify project spend: %v", err)
	}
	if spent != 7500 {
		t.Fatalf("expected project budget_spent 7500, got %v", spent)
	}

	// The transition log carries the whole path in order.
	history, err := svc.History(ctx, deliveryID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	want := []project.Stage{project.StageUATEnv, project.StageProdSupport, project.StageClosed}
	if len(history) != len(want) {
		t.Fatalf("expected %d transitions, got %d", len(want), len(history))
	}
	for i, tr := range history {
		if tr.To != want[i] {
			t.Fatalf("transition %d: expected to %q, got %q", i, want[i], tr.To)
		}
	}
	if history[0].From == nil || *history[0].From != project.StageTestEnv {
		t.Fatalf("expected first transition to leave the test stage, got %+v", history[0].From)
	}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
