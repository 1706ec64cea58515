package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestUpdateSpend_RollsUpInOneTransaction(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeBudgetRepo{
		projectID: "p1",
		spent:     200,
		total:     1500,
	}
	svc := NewBudgetService(pool, repo, nil).WithClock(func() time.Time {
		return time.Date(2025, 5, 2, 10, 30, 0, 0, time.UTC)
	})

	update, err := svc.UpdateSpend(context.Background(), "d1", 750)
	if err != nil {
		t.Fatalf("update spend: %v", err)
	}

	if update.PreviousAmount != 200 || update.Amount != 750 {
		t.Fatalf("unexpected amounts: prev=%f new=%f", update.PreviousAmount, update.Amount)
	}
	if update.ProjectID != "p1" || update.ProjectSpent != 1500 {
		t.Fatalf("unexpected project roll-up: %s %f", update.ProjectID, update.ProjectSpent)
	}
	if repo.updatedAmount != 750 {
		t.Errorf("expected delivery spend persisted, got %f", repo.updatedAmount)
	}
	if len(repo.history) != 1 || repo.history[0] != 750 {
		t.Errorf("expected one history entry for 750, got %v", repo.history)
	}
	if !repo.recomputed {
		t.Error("expected project spend recomputed")
	}
	if pool.tx == nil || !pool.tx.committed {
		t.Error("expected the roll-up transaction to commit")
	}
}

func TestUpdateSpend_NegativeAmount(t *testing.T) {
	svc := NewBudgetService(&fakePool{}, &fakeBudgetRepo{}, nil)
	_, err := svc.UpdateSpend(context.Background(), "d1", -10)
	if !errors.Is(err, ErrNegativeSpend) {
		t.Fatalf("expected ErrNegativeSpend, got %v", err)
	}
}

func TestUpdateSpend_MissingDeliveryRollsBack(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeBudgetRepo{lockErr: ErrNotFound}
	svc := NewBudgetService(pool, repo, nil)

	_, err := svc.UpdateSpend(context.Background(), "d-missing", 100)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(repo.history) != 0 {
		t.Error("expected no history entry")
	}
	if pool.tx.committed {
		t.Error("expected rollback, not commit")
	}
}

func TestUpdateSpend_HistoryFailureAbortsRollUp(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeBudgetRepo{projectID: "p1", historyErr: errors.New("disk full")}
	svc := NewBudgetService(pool, repo, nil)

	if _, err := svc.UpdateSpend(context.Background(), "d1", 100); err == nil {
		t.Fatal("expected error")
	}
	if repo.recomputed {
		t.Error("expected project recompute skipped after history failure")
	}
	if pool.tx.committed {
		t.Error("expected rollback, not commit")
	}
}

type fakeBudgetRepo struct {
	projectID  string
	spent      float64
	total      float64
	lockErr    error
	historyErr error

	updatedAmount float64
	history       []float64
	recomputed    bool
}

func (f *fakeBudgetRepo) GetSpendForUpdate(context.Context, pgx.Tx, string) (string, float64, error) {
	return f.projectID, f.spent, f.lockErr
}

func (f *fakeBudgetRepo) UpdateSpend(_ context.Context, _ pgx.Tx, _ string, amount float64, _ time.Time) error {
	f.updatedAmount = amount
	return nil
}

func (f *fakeBudgetRepo) AppendHistory(_ context.Context, _ pgx.Tx, _ string, amount float64, _ time.Time) error {
	if f.historyErr != nil {
		return f.historyErr
	}
	f.history = append(f.history, amount)
	return nil
}

func (f *fakeBudgetRepo) RecomputeProjectSpend(context.Context, pgx.Tx, string) (float64, error) {
	f.recomputed = true
	return f.total, nil
}

func (f *fakeBudgetRepo) ListHistory(context.Context, string) ([]BudgetHistoryEntry, error) {
	return nil, nil
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
