package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"deliverydesk/metrics"
)

var (
	// ErrAlreadyAssessed signals the one-way latch: a delivery is assessed at
	// most once and the risk fields are immutable afterwards.
	ErrAlreadyAssessed = errors.New("risk: delivery already assessed")
	// ErrDeliveryNotFound is returned when the delivery row does not exist.
	ErrDeliveryNotFound = errors.New("risk: delivery not found")
	// ErrProjectNotFound is returned when the owning project row is missing.
	ErrProjectNotFound = errors.New("risk: project not found")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository defines the data access the assessment transaction needs.
type Repository interface {
	GetDeliveryForAssessment(ctx context.Context, tx pgx.Tx, deliveryID string) (DeliverySnapshot, error)
	GetProjectRisk(ctx context.Context, tx pgx.Tx, projectID string) (ProjectRisk, error)
	MarkAssessed(ctx context.Context, tx pgx.Tx, deliveryID string, level Level, score int, at time.Time) error
	ListAssessed(ctx context.Context, tx pgx.Tx, projectID string) ([]AssessedDelivery, error)
	UpdateProjectRisk(ctx context.Context, tx pgx.Tx, projectID string, level Level, score int) error
}

// Service runs the scoring engine and project aggregator. The delivery latch,
// the delivery risk write, and the project recomputation all happen inside a
// single transaction so a crash can never leave an assessed delivery whose
// project was not re-aggregated.
type Service struct {
	pool TxBeginner
	repo Repository
	log  *zap.Logger
	now  func() time.Time
}

func NewService(pool TxBeginner, repo Repository, log *zap.Logger) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		pool: pool,
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Assess scores a not-yet-assessed delivery from the project's prior score
// and the supplied monitoring inputs, latches the delivery, and recomputes
// the owning project's weighted risk.
func (s *Service) Assess(ctx context.Context, params AssessParams) (Assessment, error) {
	if params.DeliveryID == "" {
		return Assessment{}, fmt.Errorf("risk: missing delivery id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Assessment{}, fmt.Errorf("risk: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	snapshot, err := s.repo.GetDeliveryForAssessment(ctx, tx, params.DeliveryID)
	if err != nil {
		return Assessment{}, err
	}
	if snapshot.Assessed {
		metrics.RiskAssessments.WithLabelValues("already_assessed").Inc()
		return Assessment{}, ErrAlreadyAssessed
	}

	projectRisk, err := s.repo.GetProjectRisk(ctx, tx, snapshot.ProjectID)
	if err != nil {
		return Assessment{}, err
	}

	base := projectRisk.Score
	if base <= 0 {
		base = BaseScore
	}
	previousLevel := Classify(base)

	newScore := Score(base, params.Inputs)
	newLevel := Classify(newScore)
	assessedAt := s.now().UTC()

	if err := s.repo.MarkAssessed(ctx, tx, params.DeliveryID, newLevel, newScore, assessedAt); err != nil {
		return Assessment{}, err
	}

	projectScore, projectLevel, err := s.aggregate(ctx, tx, snapshot.ProjectID)
	if err != nil {
		return Assessment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Assessment{}, fmt.Errorf("risk: commit assessment: %w", err)
	}

	metrics.RiskAssessments.WithLabelValues("assessed").Inc()
	s.log.Info("delivery risk assessed",
		zap.String("delivery_id", params.DeliveryID),
		zap.String("project_id", snapshot.ProjectID),
		zap.Int("score", newScore),
		zap.String("level", string(newLevel)),
	)

	return Assessment{
		DeliveryID:    params.DeliveryID,
		PreviousScore: base,
		PreviousLevel: previousLevel,
		NewScore:      newScore,
		NewLevel:      newLevel,
		Direction:     DirectionOf(previousLevel, newLevel),
		AssessedAt:    assessedAt,
		ProjectScore:  projectScore,
		ProjectLevel:  projectLevel,
	}, nil
}

// AggregateProject recomputes a project's weighted risk outside an assessment,
// for callers that need to repair the roll-up after manual data edits.
func (s *Service) AggregateProject(ctx context.Context, projectID string) (ProjectRisk, error) {
	if projectID == "" {
		return ProjectRisk{}, fmt.Errorf("risk: missing project id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ProjectRisk{}, fmt.Errorf("risk: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	score, level, err := s.aggregate(ctx, tx, projectID)
	if err != nil {
		return ProjectRisk{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ProjectRisk{}, fmt.Errorf("risk: commit aggregate: %w", err)
	}
	return ProjectRisk{ID: projectID, Score: score, Level: level}, nil
}

// aggregate recomputes the project's budget-weighted score from its assessed
// deliveries within the caller's transaction. Zero assessed deliveries is a
// no-op: the project's existing risk is reported back unchanged.
func (s *Service) aggregate(ctx context.Context, tx pgx.Tx, projectID string) (int, Level, error) {
	assessed, err := s.repo.ListAssessed(ctx, tx, projectID)
	if err != nil {
		return 0, LevelNone, err
	}

	avg, ok := WeightedAverage(assessed)
	if !ok {
		current, err := s.repo.GetProjectRisk(ctx, tx, projectID)
		if err != nil {
			return 0, LevelNone, err
		}
		return current.Score, current.Level, nil
	}

	level := Classify(avg)
	if err := s.repo.UpdateProjectRisk(ctx, tx, projectID, level, avg); err != nil {
		return 0, LevelNone, err
	}
	return avg, level, nil
}
