package project

import (
	"context"
	"errors"
	"testing"
	"time"

	"deliverydesk/risk"
)

func TestService_Create(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil).WithIDGenerator(func() string { return "PRJ-test-1" })

	params := CreateParams{
		Name:                "Core Banking Revamp",
		Description:         "Replatforming",
		Budget:              250000,
		ProjectedDeliveries: 8,
		StartDate:           time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		EndDate:             time.Date(2025, 12, 19, 0, 0, 0, 0, time.UTC),
	}

	created, err := svc.Create(context.Background(), params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if created.ID != "PRJ-test-1" {
		t.Fatalf("unexpected id %q", created.ID)
	}
	if created.Stage != StageDefinition {
		t.Fatalf("expected new project in %s, got %s", StageDefinition, created.Stage)
	}
	if created.RiskLevel != risk.LevelNone {
		t.Fatalf("expected no assessment, got %s", created.RiskLevel)
	}
	if created.BudgetSpent != 0 {
		t.Fatalf("expected zero initial spend, got %f", created.BudgetSpent)
	}
}

func TestService_CreateValidation(t *testing.T) {
	svc := NewService(newFakeRepository(), nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateParams{Name: "  ", Budget: 1000, ProjectedDeliveries: 1}); err == nil {
		t.Error("expected error for blank name")
	}
	if _, err := svc.Create(ctx, CreateParams{Name: "P", Budget: 0, ProjectedDeliveries: 1}); err == nil {
		t.Error("expected error for zero budget")
	}
	// Zero is as invalid as negative; the store enforces a positive count.
	if _, err := svc.Create(ctx, CreateParams{Name: "P", Budget: 1000, ProjectedDeliveries: 0}); err == nil {
		t.Error("expected error for zero projected deliveries")
	}
	if _, err := svc.Create(ctx, CreateParams{Name: "P", Budget: 1000, ProjectedDeliveries: -2}); err == nil {
		t.Error("expected error for negative projected deliveries")
	}
	if _, err := svc.Create(ctx, CreateParams{
		Name:                "P",
		Budget:              1000,
		ProjectedDeliveries: 1,
		StartDate:           time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:             time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}); err == nil {
		t.Error("expected error for inverted dates")
	}
}

func TestService_UpdateDerivesRiskLevel(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil).WithIDGenerator(func() string { return "PRJ-1" })

	if _, err := svc.Create(context.Background(), CreateParams{Name: "P", Budget: 1000, ProjectedDeliveries: 2}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	score := 16
	updated, err := svc.Update(context.Background(), "PRJ-1", UpdateParams{RiskScore: &score})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if updated.RiskScore != 16 {
		t.Fatalf("expected score 16, got %d", updated.RiskScore)
	}
	if updated.RiskLevel != risk.LevelAggressive {
		t.Fatalf("expected derived level %s, got %s", risk.LevelAggressive, updated.RiskLevel)
	}
}

func TestService_UpdateRejectsOutOfRangeScore(t *testing.T) {
	svc := NewService(newFakeRepository(), nil)

	for _, score := range []int{0, 26, -3} {
		s := score
		if _, err := svc.Update(context.Background(), "PRJ-1", UpdateParams{RiskScore: &s}); err == nil {
			t.Errorf("expected rejection for score %d", score)
		}
	}
}

func TestService_UpdateRejectsNonPositiveProjectedDeliveries(t *testing.T) {
	svc := NewService(newFakeRepository(), nil)

	for _, n := range []int{0, -1} {
		count := n
		if _, err := svc.Update(context.Background(), "PRJ-1", UpdateParams{ProjectedDeliveries: &count}); err == nil {
			t.Errorf("expected rejection for projected deliveries %d", n)
		}
	}
}

func TestService_UpdateRejectsUnknownStage(t *testing.T) {
	svc := NewService(newFakeRepository(), nil)

	bad := Stage("Producción")
	if _, err := svc.Update(context.Background(), "PRJ-1", UpdateParams{Stage: &bad}); err == nil {
		t.Error("expected rejection for unknown stage")
	}
}

func TestService_DeleteMissing(t *testing.T) {
	svc := NewService(newFakeRepository(), nil)

	if err := svc.Delete(context.Background(), "PRJ-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStageIndex_Ordering(t *testing.T) {
	for i, s := range Stages() {
		if StageIndex(s) != i {
			t.Fatalf("stage %s expected index %d, got %d", s, i, StageIndex(s))
		}
	}
	if StageIndex(Stage("Unknown")) != -1 {
		t.Fatal("expected -1 for unknown stage")
	}
}

type fakeRepository struct {
	projects map[string]Project
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{projects: make(map[string]Project)}
}

func (f *fakeRepository) Create(_ context.Context, p Project) (Project, error) {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	f.projects[p.ID] = p
	return p, nil
}

func (f *fakeRepository) List(context.Context) ([]Project, error) {
	out := make([]Project, 0, len(f.projects))
	for _, p := range f.projects {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeRepository) GetByID(_ context.Context, id string) (Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeRepository) Update(_ context.Context, id string, params UpdateParams, riskLevel *risk.Level) (Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	if params.Name != nil {
		p.Name = *params.Name
	}
	if params.Stage != nil {
		p.Stage = *params.Stage
	}
	if params.RiskScore != nil {
		p.RiskScore = *params.RiskScore
	}
	if riskLevel != nil {
		p.RiskLevel = *riskLevel
	}
	if params.Budget != nil {
		p.Budget = *params.Budget
	}
	if params.BudgetSpent != nil {
		p.BudgetSpent = *params.BudgetSpent
	}
	p.UpdatedAt = time.Now().UTC()
	f.projects[id] = p
	return p, nil
}

func (f *fakeRepository) Delete(_ context.Context, id string) error {
	if _, ok := f.projects[id]; !ok {
		return ErrNotFound
	}
	delete(f.projects, id)
	return nil
}
