package project

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"deliverydesk/risk"
)

var (
	// ErrNotFound signals the requested project does not exist.
	ErrNotFound = errors.New("project: not found")
)

// Repository handles data access for projects.
type Repository interface {
	Create(ctx context.Context, p Project) (Project, error)
	List(ctx context.Context) ([]Project, error)
	GetByID(ctx context.Context, id string) (Project, error)
	Update(ctx context.Context, id string, params UpdateParams, riskLevel *risk.Level) (Project, error)
	Delete(ctx context.Context, id string) error
}

// Service exposes the project admin operations.
type Service struct {
	repo        Repository
	log         *zap.Logger
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
		idGenerator: func() string { return "PRJ-" + uuid.NewString() },
		now:         time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create registers a new project at the start of the pipeline with no risk
// assessment yet.
func (s *Service) Create(ctx context.Context, params CreateParams) (Project, error) {
	if strings.TrimSpace(params.Name) == "" {
		return Project{}, fmt.Errorf("project: name required")
	}
	if params.Budget <= 0 {
		return Project{}, fmt.Errorf("project: invalid budget")
	}
	if params.ProjectedDeliveries <= 0 {
		return Project{}, fmt.Errorf("project: invalid projected deliveries")
	}
	if !params.EndDate.IsZero() && !params.StartDate.IsZero() && params.EndDate.Before(params.StartDate) {
		return Project{}, fmt.Errorf("project: end date before start date")
	}

	p := Project{
		ID:                  s.idGenerator(),
		Name:                strings.TrimSpace(params.Name),
		Description:         params.Description,
		Stage:               StageDefinition,
		RiskLevel:           risk.LevelNone,
		Budget:              params.Budget,
		BudgetSpent:         0,
		ProjectedDeliveries: params.ProjectedDeliveries,
		StartDate:           params.StartDate,
		EndDate:             params.EndDate,
	}
	if params.OwnerID != "" {
		owner := params.OwnerID
		p.OwnerID = &owner
	}

	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return Project{}, err
	}

	s.log.Info("project created", zap.String("project_id", created.ID), zap.String("name", created.Name))
	return created, nil
}

func (s *Service) List(ctx context.Context) ([]Project, error) {
	return s.repo.List(ctx)
}

func (s *Service) GetByID(ctx context.Context, id string) (Project, error) {
	if id == "" {
		return Project{}, fmt.Errorf("project: missing id")
	}
	return s.repo.GetByID(ctx, id)
}

// Update applies a partial update. When the score changes, the classification
// is rederived from the bucket table so the two can never disagree.
func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (Project, error) {
	if id == "" {
		return Project{}, fmt.Errorf("project: missing id")
	}
	if params.Stage != nil && !IsValidStage(*params.Stage) {
		return Project{}, fmt.Errorf("project: unknown stage %q", *params.Stage)
	}
	if params.Budget != nil && *params.Budget <= 0 {
		return Project{}, fmt.Errorf("project: invalid budget")
	}
	if params.ProjectedDeliveries != nil && *params.ProjectedDeliveries <= 0 {
		return Project{}, fmt.Errorf("project: invalid projected deliveries")
	}

	var level *risk.Level
	if params.RiskScore != nil {
		score := *params.RiskScore
		if score < risk.MinScore || score > risk.MaxScore {
			return Project{}, fmt.Errorf("project: risk score out of range [%d, %d]", risk.MinScore, risk.MaxScore)
		}
		derived := risk.Classify(score)
		level = &derived
	}

	return s.repo.Update(ctx, id, params, level)
}

// Delete removes the project. Deliveries cascade in the persistence layer.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("project: missing id")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("project deleted", zap.String("project_id", id))
	return nil
}
