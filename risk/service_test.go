package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestAssess_ScoresAndAggregates(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeRepo{
		snapshot: DeliverySnapshot{ID: "d1", ProjectID: "p1", Budget: 1000},
		project:  ProjectRisk{ID: "p1", Score: 10, Level: LevelModerate},
	}
	repo.assessedAfterMark = func() []AssessedDelivery {
		return []AssessedDelivery{{Score: repo.markedScore, Budget: 1000}}
	}

	svc := NewService(pool, repo, nil).WithClock(func() time.Time {
		return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	})

	result, err := svc.Assess(context.Background(), AssessParams{
		DeliveryID: "d1",
		Inputs: Inputs{
			TimelineDeviation: f(25),
			HoursToFix:        f(1),
			FunctionalFit:     f(0),
			BlockHours:        f(12),
		},
	})
	if err != nil {
		t.Fatalf("assess: %v", err)
	}

	if result.NewScore != 11 || result.NewLevel != LevelModerateHigh {
		t.Fatalf("unexpected score/level: %d %s", result.NewScore, result.NewLevel)
	}
	if result.PreviousScore != 10 || result.PreviousLevel != LevelModerate {
		t.Fatalf("unexpected previous: %d %s", result.PreviousScore, result.PreviousLevel)
	}
	if result.Direction != DirectionIncreased {
		t.Fatalf("expected Increased, got %s", result.Direction)
	}
	// Single assessed delivery: project takes its score exactly.
	if result.ProjectScore != 11 || result.ProjectLevel != LevelModerateHigh {
		t.Fatalf("unexpected project risk: %d %s", result.ProjectScore, result.ProjectLevel)
	}

	if !repo.marked {
		t.Error("expected delivery to be latched")
	}
	if repo.projectScore != 11 {
		t.Errorf("expected project score 11 persisted, got %d", repo.projectScore)
	}
	if pool.tx == nil || !pool.tx.committed {
		t.Error("expected the assessment transaction to commit")
	}
}

func TestAssess_AlreadyAssessed(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeRepo{
		snapshot: DeliverySnapshot{ID: "d1", ProjectID: "p1", Assessed: true},
	}
	svc := NewService(pool, repo, nil)

	_, err := svc.Assess(context.Background(), AssessParams{DeliveryID: "d1"})
	if !errors.Is(err, ErrAlreadyAssessed) {
		t.Fatalf("expected ErrAlreadyAssessed, got %v", err)
	}

	if repo.marked {
		t.Error("expected no mutation after latch rejection")
	}
	if repo.projectUpdated {
		t.Error("expected project risk untouched")
	}
	if pool.tx.committed {
		t.Error("expected rollback, not commit")
	}
}

func TestAssess_DeliveryNotFound(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeRepo{snapshotErr: ErrDeliveryNotFound}
	svc := NewService(pool, repo, nil)

	_, err := svc.Assess(context.Background(), AssessParams{DeliveryID: "missing"})
	if !errors.Is(err, ErrDeliveryNotFound) {
		t.Fatalf("expected ErrDeliveryNotFound, got %v", err)
	}
}

func TestAssess_BaseDefaultsWhenProjectUnscored(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeRepo{
		snapshot: DeliverySnapshot{ID: "d1", ProjectID: "p1", Budget: 500},
		project:  ProjectRisk{ID: "p1", Score: 0, Level: LevelNone},
	}
	repo.assessedAfterMark = func() []AssessedDelivery {
		return []AssessedDelivery{{Score: repo.markedScore, Budget: 500}}
	}
	svc := NewService(pool, repo, nil)

	result, err := svc.Assess(context.Background(), AssessParams{DeliveryID: "d1"})
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if result.PreviousScore != BaseScore || result.NewScore != BaseScore {
		t.Fatalf("expected default base %d, got prev=%d new=%d", BaseScore, result.PreviousScore, result.NewScore)
	}
}

func TestAssess_NoAssessedDeliveriesLeavesProjectAlone(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeRepo{
		snapshot: DeliverySnapshot{ID: "d1", ProjectID: "p1"},
		project:  ProjectRisk{ID: "p1", Score: 12, Level: LevelModerateHigh},
	}
	// Simulates an aggregation view that comes back empty (e.g. the assessed
	// delivery carries no budget weight).
	repo.assessedAfterMark = func() []AssessedDelivery { return nil }
	svc := NewService(pool, repo, nil)

	result, err := svc.Assess(context.Background(), AssessParams{DeliveryID: "d1"})
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if repo.projectUpdated {
		t.Error("expected project risk untouched when nothing aggregates")
	}
	if result.ProjectScore != 12 || result.ProjectLevel != LevelModerateHigh {
		t.Fatalf("expected prior project risk reported, got %d %s", result.ProjectScore, result.ProjectLevel)
	}
}

type fakeRepo struct {
	snapshot    DeliverySnapshot
	snapshotErr error
	project     ProjectRisk
	projectErr  error

	marked      bool
	markedScore int
	markedLevel Level

	assessedAfterMark func() []AssessedDelivery

	projectUpdated bool
	projectScore   int
	projectLevel   Level
}

func (f *fakeRepo) GetDeliveryForAssessment(context.Context, pgx.Tx, string) (DeliverySnapshot, error) {
	return f.snapshot, f.snapshotErr
}

func (f *fakeRepo) GetProjectRisk(context.Context, pgx.Tx, string) (ProjectRisk, error) {
	return f.project, f.projectErr
}

func (f *fakeRepo) MarkAssessed(_ context.Context, _ pgx.Tx, _ string, level Level, score int, _ time.Time) error {
	f.marked = true
	f.markedScore = score
	f.markedLevel = level
	return nil
}

func (f *fakeRepo) ListAssessed(context.Context, pgx.Tx, string) ([]AssessedDelivery, error) {
	if f.assessedAfterMark != nil {
		return f.assessedAfterMark(), nil
	}
	return nil, nil
}

func (f *fakeRepo) UpdateProjectRisk(_ context.Context, _ pgx.Tx, _ string, level Level, score int) error {
	f.projectUpdated = true
	f.projectScore = score
	f.projectLevel = level
	return nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
