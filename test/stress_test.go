package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"deliverydesk/test/actors"
	"deliverydesk/test/chaos"
	"deliverydesk/test/infra"
	"deliverydesk/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

func TestDeliveryBoardConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("DELIVERYDESK_TEST_PG_DSN") != "":
		dsn = os.Getenv("DELIVERYDESK_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	// migrations
	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	// seed minimal data
	seedData := mustSeed(t, ctx, pool)

	// run actors
	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// assessors battling over the same risk latch
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error { return actors.Assessor(ctx2, pool, seedData.assessedID, stop) })
	}
	// movers walking one card, spenders hammering the roll-up on another
	for i := 0; i < *flConcurrency/2; i++ {
		g.Go(func() error { return actors.Mover(ctx2, pool, seedData.movedID, stop) })
		g.Go(func() error { return actors.Spender(ctx2, pool, seedData.spentID, stop) })
	}
	// closer bouncing a production card in and out of the last column
	g.Go(func() error { return actors.Closer(ctx2, pool, seedData.closedID, stop) })
	// chaos: kill random backend
	go chaos.TerminateRandomBackend(ctx2, pool, stop)

	// schedule oracle checks until duration reached
	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	ownerID    string
	projectID  string
	assessedID string
	movedID    string
	spentID    string
	closedID   string
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	s := seedIDs{
		projectID:  "PRJ-stress",
		assessedID: "DLV-stress-assess",
		movedID:    "DLV-stress-move",
		spentID:    "DLV-stress-spend",
		closedID:   "DLV-stress-close",
	}
	if err := pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, first_name, last_name, role)
		VALUES ($1, 'x', 'Stress', 'Runner', 'admin') RETURNING id`,
		fmt.Sprintf("stress%d@example.com", rand.Int63()),
	).Scan(&s.ownerID); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if _, err := pool.Exec(ctx, `
		INSERT INTO projects (id, name, budget, projected_deliveries, start_date, end_date, owner_id)
		VALUES ($1, 'Stress Portfolio', 500000, 4, NOW(), NOW() + INTERVAL '90 days', $2)`,
		s.projectID, s.ownerID); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	deliveries := []struct {
		id    string
		num   int
		stage string
	}{
		{s.assessedID, 1, "Desarrollo Local"},
		{s.movedID, 2, "Definición"},
		{s.spentID, 3, "Ambiente DEV"},
		{s.closedID, 4, "Soporte Productivo"},
	}
	for _, d := range deliveries {
		if _, err := pool.Exec(ctx, `
			INSERT INTO deliveries (id, project_id, delivery_number, stage, budget, estimated_date, error_count)
			VALUES ($1, $2, $3, $4, 25000, NOW() + INTERVAL '30 days', 0)`,
			d.id, s.projectID, d.num, d.stage); err != nil {
			t.Fatalf("seed delivery %s: %v", d.id, err)
		}
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"deliveries", `SELECT id, stage, budget_spent, risk_assessed, risk_score, risk_level FROM deliveries ORDER BY id`},
		{"stage_transitions", `SELECT id, delivery_id, from_stage, to_stage, moved_at FROM stage_transitions ORDER BY id DESC LIMIT 50`},
		{"budget_history", `SELECT id, delivery_id, amount, update_date FROM budget_history ORDER BY id DESC LIMIT 50`},
		{"projects", `SELECT id, budget_spent, risk_score, risk_level FROM projects ORDER BY id`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
