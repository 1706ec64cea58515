package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"deliverydesk/project"
	"deliverydesk/risk"
)

var (
	// ErrNotFound is returned when a delivery does not exist.
	ErrNotFound = errors.New("delivery: not found")
	// ErrDuplicateNumber is returned when the delivery number is already
	// taken within the same project.
	ErrDuplicateNumber = errors.New("delivery: delivery number already in use for project")
	// ErrProjectNotFound is returned when the owning project does not exist.
	ErrProjectNotFound = errors.New("delivery: project not found")
	// ErrArchived is returned when mutating an archived delivery.
	ErrArchived = errors.New("delivery: delivery is archived")
)

// Repository is the persistence surface the service needs.
type Repository interface {
	Create(ctx context.Context, d Delivery) (Delivery, error)
	List(ctx context.Context, filters ListFilters) ([]Delivery, error)
	GetByID(ctx context.Context, id string) (Delivery, error)
	Update(ctx context.Context, id string, params UpdateParams) (Delivery, error)
	SetArchived(ctx context.Context, id string, archived bool) (Delivery, error)
	Delete(ctx context.Context, id string) error
}

// Service implements delivery lifecycle operations.
type Service struct {
	repo Repository
	log  *zap.Logger

	idGenerator func() string
	now         func() time.Time
}

func NewService(repo Repository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:        repo,
		log:         log,
		idGenerator: func() string { return "DLV-" + uuid.NewString() },
		now:         time.Now,
	}
}

// WithIDGenerator overrides ID generation. Used in tests.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// WithClock overrides the time source. Used in tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Create(ctx context.Context, params CreateParams) (Delivery, error) {
	if params.ProjectID == "" {
		return Delivery{}, fmt.Errorf("delivery: project id is required")
	}
	if params.DeliveryNumber <= 0 {
		return Delivery{}, fmt.Errorf("delivery: delivery number must be positive")
	}
	if params.Budget <= 0 {
		return Delivery{}, fmt.Errorf("delivery: budget must be positive")
	}
	if params.EstimatedDate.IsZero() {
		return Delivery{}, fmt.Errorf("delivery: estimated date is required")
	}

	now := s.now()
	zero := 0
	d := Delivery{
		ID:             s.idGenerator(),
		ProjectID:      params.ProjectID,
		DeliveryNumber: params.DeliveryNumber,
		Stage:          project.StageDefinition,
		Budget:         params.Budget,
		BudgetSpent:    0,
		EstimatedDate:  params.EstimatedDate,
		CreationDate:   now,
		RiskAssessed:   false,
		RiskLevel:      risk.LevelNone,
		RiskScore:      0,
		ErrorCount:     &zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := s.repo.Create(ctx, d)
	if err != nil {
		return Delivery{}, fmt.Errorf("delivery: create: %w", err)
	}
	s.log.Info("delivery created",
		zap.String("delivery_id", created.ID),
		zap.String("project_id", created.ProjectID),
		zap.Int("delivery_number", created.DeliveryNumber))
	return created, nil
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Delivery, error) {
	deliveries, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("delivery: list: %w", err)
	}
	return deliveries, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Delivery, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Delivery{}, fmt.Errorf("delivery: get %s: %w", id, err)
	}
	return d, nil
}

func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (Delivery, error) {
	if params.DeliveryNumber != nil && *params.DeliveryNumber <= 0 {
		return Delivery{}, fmt.Errorf("delivery: delivery number must be positive")
	}
	if params.Budget != nil && *params.Budget <= 0 {
		return Delivery{}, fmt.Errorf("delivery: budget must be positive")
	}
	if params.ErrorCount != nil && *params.ErrorCount < 0 {
		return Delivery{}, fmt.Errorf("delivery: error count must not be negative")
	}
	if params.ErrorSolutionTime != nil && *params.ErrorSolutionTime < 0 {
		return Delivery{}, fmt.Errorf("delivery: error solution time must not be negative")
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Delivery{}, fmt.Errorf("delivery: update %s: %w", id, err)
	}
	if current.IsArchived {
		return Delivery{}, ErrArchived
	}

	updated, err := s.repo.Update(ctx, id, params)
	if err != nil {
		return Delivery{}, fmt.Errorf("delivery: update %s: %w", id, err)
	}
	return updated, nil
}

// Archive hides the delivery from active listings. Archiving is one-way
// through this method; Unarchive restores it.
func (s *Service) Archive(ctx context.Context, id string) (Delivery, error) {
	d, err := s.repo.SetArchived(ctx, id, true)
	if err != nil {
		return Delivery{}, fmt.Errorf("delivery: archive %s: %w", id, err)
	}
	s.log.Info("delivery archived", zap.String("delivery_id", id))
	return d, nil
}

func (s *Service) Unarchive(ctx context.Context, id string) (Delivery, error) {
	d, err := s.repo.SetArchived(ctx, id, false)
	if err != nil {
		return Delivery{}, fmt.Errorf("delivery: unarchive %s: %w", id, err)
	}
	return d, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delivery: delete %s: %w", id, err)
	}
	s.log.Info("delivery deleted", zap.String("delivery_id", id))
	return nil
}
