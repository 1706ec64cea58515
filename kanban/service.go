package kanban

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"deliverydesk/metrics"
	"deliverydesk/project"
)

var (
	// ErrDeliveryNotFound is returned when the card does not exist.
	ErrDeliveryNotFound = errors.New("kanban: delivery not found")
	// ErrArchived is returned when moving an archived card.
	ErrArchived = errors.New("kanban: delivery is archived")
	// ErrInvalidStage is returned for a destination outside the board.
	ErrInvalidStage = errors.New("kanban: unknown stage")
	// ErrSkipsTesting is returned when a card tries to jump from a
	// pre-test stage past the test stage.
	ErrSkipsTesting = errors.New("kanban: delivery must pass through the test stage")
	// ErrMissingErrorData is returned when a card leaves the test stage
	// without its error count and solution time recorded.
	ErrMissingErrorData = errors.New("kanban: error count and solution time are required to leave testing")
	// ErrConfirmationRequired is returned when the recorded error data is
	// zero and the move was not explicitly confirmed.
	ErrConfirmationRequired = errors.New("kanban: zero error data requires confirmation")
)

// TxBeginner starts transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository is the persistence surface the board needs.
type Repository interface {
	// GetCardForMove locks the delivery row for the duration of the move.
	GetCardForMove(ctx context.Context, tx pgx.Tx, deliveryID string) (CardSnapshot, error)
	UpdateStage(ctx context.Context, tx pgx.Tx, deliveryID string, stage project.Stage, at time.Time) error
	// AddProjectSpend increments the project's executed budget.
	AddProjectSpend(ctx context.Context, tx pgx.Tx, projectID string, amount float64) error
	AppendTransition(ctx context.Context, tx pgx.Tx, deliveryID string, from *project.Stage, to project.Stage, at time.Time) error
	ListTransitions(ctx context.Context, deliveryID string) ([]StageTransition, error)
}

// Service moves delivery cards across the board, enforcing the quality
// gates around the test stage and charging the project budget on close.
type Service struct {
	pool TxBeginner
	repo Repository
	log  *zap.Logger

	now func() time.Time
}

func NewService(pool TxBeginner, repo Repository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{pool: pool, repo: repo, log: log, now: time.Now}
}

// WithClock overrides the time source. Used in tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Move applies one stage transition. The stage update, the close-out
// budget charge and the history entry commit together or not at all.
// Moving a card onto its current stage is a no-op.
func (s *Service) Move(ctx context.Context, params MoveParams) (MoveResult, error) {
	destIdx := project.StageIndex(params.To)
	if destIdx < 0 {
		return MoveResult{}, fmt.Errorf("%w: %q", ErrInvalidStage, params.To)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return MoveResult{}, fmt.Errorf("kanban: begin move: %w", err)
	}
	defer tx.Rollback(ctx)

	card, err := s.repo.GetCardForMove(ctx, tx, params.DeliveryID)
	if err != nil {
		return MoveResult{}, fmt.Errorf("kanban: move %s: %w", params.DeliveryID, err)
	}
	if card.IsArchived {
		return MoveResult{}, ErrArchived
	}
	if card.Stage == params.To {
		return MoveResult{DeliveryID: card.ID, From: card.Stage, To: card.Stage}, nil
	}

	if err := checkGates(card, params.To, params.Confirmed); err != nil {
		return MoveResult{}, err
	}

	now := s.now()
	if err := s.repo.UpdateStage(ctx, tx, card.ID, params.To, now); err != nil {
		return MoveResult{}, fmt.Errorf("kanban: move %s: %w", params.DeliveryID, err)
	}

	var charged float64
	if params.To == project.StageClosed {
		charged = card.Budget
		if err := s.repo.AddProjectSpend(ctx, tx, card.ProjectID, charged); err != nil {
			return MoveResult{}, fmt.Errorf("kanban: close-out charge %s: %w", card.ProjectID, err)
		}
	}

	from := card.Stage
	if err := s.repo.AppendTransition(ctx, tx, card.ID, &from, params.To, now); err != nil {
		return MoveResult{}, fmt.Errorf("kanban: record transition %s: %w", params.DeliveryID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return MoveResult{}, fmt.Errorf("kanban: commit move: %w", err)
	}

	metrics.StageTransitions.WithLabelValues(string(params.To)).Inc()
	s.log.Info("delivery moved",
		zap.String("delivery_id", card.ID),
		zap.String("from", string(card.Stage)),
		zap.String("to", string(params.To)),
		zap.Float64("budget_charged", charged))

	return MoveResult{
		DeliveryID:    card.ID,
		From:          card.Stage,
		To:            params.To,
		MovedAt:       now,
		BudgetCharged: charged,
	}, nil
}

// History returns a delivery's stage transitions, oldest first.
func (s *Service) History(ctx context.Context, deliveryID string) ([]StageTransition, error) {
	transitions, err := s.repo.ListTransitions(ctx, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("kanban: history %s: %w", deliveryID, err)
	}
	return transitions, nil
}

// checkGates enforces the test-stage rules. A card below the test stage
// cannot jump past it, and a card leaving the test stage forward must
// carry its error figures, with a confirmation step when both are zero.
func checkGates(card CardSnapshot, to project.Stage, confirmed bool) error {
	srcIdx := project.StageIndex(card.Stage)
	destIdx := project.StageIndex(to)
	testIdx := project.StageIndex(project.StageTestEnv)

	if srcIdx < testIdx && destIdx > testIdx {
		metrics.StageMoveRejections.WithLabelValues("skips_test").Inc()
		return ErrSkipsTesting
	}

	if srcIdx == testIdx && destIdx > testIdx {
		if card.ErrorCount == nil || card.ErrorSolutionTime == nil {
			metrics.StageMoveRejections.WithLabelValues("missing_error_data").Inc()
			return ErrMissingErrorData
		}
		if (*card.ErrorCount == 0 || *card.ErrorSolutionTime == 0) && !confirmed {
			metrics.StageMoveRejections.WithLabelValues("needs_confirmation").Inc()
			return ErrConfirmationRequired
		}
	}

	return nil
}
