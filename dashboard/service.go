package dashboard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Repository is the read surface of the dashboard.
type Repository interface {
	GetSummary(ctx context.Context) (Summary, error)
	ListProjectBudgets(ctx context.Context) ([]ProjectBudget, error)
	ListPendingAssessments(ctx context.Context) ([]PendingAssessment, error)
}

// Service aggregates portfolio-wide read models. It performs no writes.
type Service struct {
	repo Repository
	log  *zap.Logger

	now func() time.Time
}

func NewService(repo Repository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, log: log, now: time.Now}
}

// WithClock overrides the time source. Used in tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Summary(ctx context.Context) (Summary, error) {
	summary, err := s.repo.GetSummary(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("dashboard: summary: %w", err)
	}
	return summary, nil
}

func (s *Service) ProjectBudgets(ctx context.Context) ([]ProjectBudget, error) {
	budgets, err := s.repo.ListProjectBudgets(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: project budgets: %w", err)
	}
	for i := range budgets {
		budgets[i].Remaining = budgets[i].Budget - budgets[i].Spent
	}
	return budgets, nil
}

// PendingAssessments lists unassessed deliveries with the working days
// remaining until their estimated dates.
func (s *Service) PendingAssessments(ctx context.Context) ([]PendingAssessment, error) {
	pending, err := s.repo.ListPendingAssessments(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: pending assessments: %w", err)
	}

	now := s.now()
	for i := range pending {
		pending[i].BusinessDaysLeft = BusinessDaysBetween(now, pending[i].EstimatedDate)
	}
	return pending, nil
}
