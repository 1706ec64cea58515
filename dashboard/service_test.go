package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestProjectBudgets_ComputesRemaining(t *testing.T) {
	repo := &fakeRepo{budgets: []ProjectBudget{
		{ProjectID: "p1", Name: "Core Banking", Budget: 10000, Spent: 2500},
		{ProjectID: "p2", Name: "Data Lake", Budget: 5000, Spent: 6000},
	}}
	svc := NewService(repo, nil)

	budgets, err := svc.ProjectBudgets(context.Background())
	if err != nil {
		t.Fatalf("project budgets: %v", err)
	}

	if budgets[0].Remaining != 7500 {
		t.Errorf("expected remaining 7500, got %f", budgets[0].Remaining)
	}
	// Overspent projects report a negative remainder.
	if budgets[1].Remaining != -1000 {
		t.Errorf("expected remaining -1000, got %f", budgets[1].Remaining)
	}
}

func TestPendingAssessments_CountsBusinessDays(t *testing.T) {
	// 2025-06-02 is a Monday.
	repo := &fakeRepo{pending: []PendingAssessment{
		{DeliveryID: "d1", ProjectID: "p1", EstimatedDate: time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)},
		{DeliveryID: "d2", ProjectID: "p1", EstimatedDate: time.Date(2025, 5, 26, 0, 0, 0, 0, time.UTC)},
	}}
	svc := NewService(repo, nil).WithClock(func() time.Time {
		return time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	})

	pending, err := svc.PendingAssessments(context.Background())
	if err != nil {
		t.Fatalf("pending assessments: %v", err)
	}

	// Both endpoints count: Monday to next Monday spans six weekdays.
	if pending[0].BusinessDaysLeft != 6 {
		t.Errorf("expected 6 business days, got %d", pending[0].BusinessDaysLeft)
	}
	if pending[1].BusinessDaysLeft != -6 {
		t.Errorf("expected -6 business days for overdue delivery, got %d", pending[1].BusinessDaysLeft)
	}
}

func TestSummary_PassesThrough(t *testing.T) {
	want := Summary{
		TotalProjects:      4,
		ActiveProjects:     3,
		HighRiskProjects:   1,
		TotalBudget:        25000,
		TotalSpent:         9000,
		ClosedDeliveries:   7,
		PendingAssessments: 2,
	}
	svc := NewService(&fakeRepo{summary: want}, nil)

	got, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if got != want {
		t.Fatalf("unexpected summary %+v", got)
	}
}

func TestSummary_RepositoryError(t *testing.T) {
	svc := NewService(&fakeRepo{err: errors.New("connection refused")}, nil)
	if _, err := svc.Summary(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type fakeRepo struct {
	summary Summary
	budgets []ProjectBudget
	pending []PendingAssessment
	err     error
}

func (f *fakeRepo) GetSummary(context.Context) (Summary, error) {
	return f.summary, f.err
}

func (f *fakeRepo) ListProjectBudgets(context.Context) ([]ProjectBudget, error) {
	return f.budgets, f.err
}

func (f *fakeRepo) ListPendingAssessments(context.Context) ([]PendingAssessment, error) {
	return f.pending, f.err
}
