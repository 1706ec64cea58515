package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"deliverydesk/metrics"
)

// ErrNegativeSpend is returned when a budget update carries a negative amount.
var ErrNegativeSpend = errors.New("delivery: spent amount must not be negative")

// TxBeginner starts transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// BudgetRepository covers the transactional steps of a spend roll-up.
type BudgetRepository interface {
	// GetSpendForUpdate locks the delivery row and returns its project id
	// and current spend.
	GetSpendForUpdate(ctx context.Context, tx pgx.Tx, deliveryID string) (projectID string, spent float64, err error)
	UpdateSpend(ctx context.Context, tx pgx.Tx, deliveryID string, amount float64, at time.Time) error
	AppendHistory(ctx context.Context, tx pgx.Tx, deliveryID string, amount float64, at time.Time) error
	// RecomputeProjectSpend sets the project's spend to the sum over its
	// deliveries and returns the new total.
	RecomputeProjectSpend(ctx context.Context, tx pgx.Tx, projectID string) (float64, error)
	ListHistory(ctx context.Context, deliveryID string) ([]BudgetHistoryEntry, error)
}

// BudgetService records spend updates and keeps the owning project's
// executed budget equal to the sum of its deliveries.
type BudgetService struct {
	pool TxBeginner
	repo BudgetRepository
	log  *zap.Logger

	now func() time.Time
}

func NewBudgetService(pool TxBeginner, repo BudgetRepository, log *zap.Logger) *BudgetService {
	if log == nil {
		log = zap.NewNop()
	}
	return &BudgetService{pool: pool, repo: repo, log: log, now: time.Now}
}

// WithClock overrides the time source. Used in tests.
func (s *BudgetService) WithClock(now func() time.Time) *BudgetService {
	s.now = now
	return s
}

// UpdateSpend writes the delivery's new spent amount, appends a history
// entry and recomputes the project total, all in one transaction. The
// amount replaces the previous spend rather than adding to it.
func (s *BudgetService) UpdateSpend(ctx context.Context, deliveryID string, amount float64) (SpendUpdate, error) {
	if amount < 0 {
		return SpendUpdate{}, ErrNegativeSpend
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return SpendUpdate{}, fmt.Errorf("delivery: begin spend update: %w", err)
	}
	defer tx.Rollback(ctx)

	projectID, previous, err := s.repo.GetSpendForUpdate(ctx, tx, deliveryID)
	if err != nil {
		return SpendUpdate{}, fmt.Errorf("delivery: spend update %s: %w", deliveryID, err)
	}

	now := s.now()
	if err := s.repo.UpdateSpend(ctx, tx, deliveryID, amount, now); err != nil {
		return SpendUpdate{}, fmt.Errorf("delivery: spend update %s: %w", deliveryID, err)
	}
	if err := s.repo.AppendHistory(ctx, tx, deliveryID, amount, now); err != nil {
		return SpendUpdate{}, fmt.Errorf("delivery: spend history %s: %w", deliveryID, err)
	}
	total, err := s.repo.RecomputeProjectSpend(ctx, tx, projectID)
	if err != nil {
		return SpendUpdate{}, fmt.Errorf("delivery: project spend %s: %w", projectID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return SpendUpdate{}, fmt.Errorf("delivery: commit spend update: %w", err)
	}

	metrics.BudgetUpdates.Inc()
	s.log.Info("delivery spend updated",
		zap.String("delivery_id", deliveryID),
		zap.Float64("amount", amount),
		zap.Float64("previous", previous),
		zap.String("project_id", projectID),
		zap.Float64("project_spent", total))

	return SpendUpdate{
		DeliveryID:     deliveryID,
		Amount:         amount,
		PreviousAmount: previous,
		UpdatedAt:      now,
		ProjectID:      projectID,
		ProjectSpent:   total,
	}, nil
}

// History returns the spend snapshots for a delivery, newest first.
func (s *BudgetService) History(ctx context.Context, deliveryID string) ([]BudgetHistoryEntry, error) {
	entries, err := s.repo.ListHistory(ctx, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("delivery: spend history %s: %w", deliveryID, err)
	}
	return entries, nil
}
