package delivery

import (
	"time"

	"deliverydesk/project"
	"deliverydesk/risk"
)

// Delivery mirrors the deliveries table. ProjectName is read-side only,
// joined from the owning project.
type Delivery struct {
	ID                 string
	ProjectID          string
	ProjectName        string
	DeliveryNumber     int
	Stage              project.Stage
	Budget             float64
	BudgetSpent        float64
	EstimatedDate      time.Time
	CreationDate       time.Time
	ActualStartDate    *time.Time
	ActualDeliveryDate *time.Time
	LastBudgetUpdate   *time.Time
	IsArchived         bool
	RiskAssessed       bool
	RiskLevel          risk.Level
	RiskScore          int
	RiskAssessmentDate *time.Time
	ErrorCount         *int
	ErrorSolutionTime  *float64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CreateParams contains the admin-form fields for a new delivery card.
type CreateParams struct {
	ProjectID      string
	DeliveryNumber int
	Budget         float64
	EstimatedDate  time.Time
}

// UpdateParams carries a partial update; nil fields are left untouched.
// Stage is deliberately absent: stage changes go through the kanban guard.
type UpdateParams struct {
	DeliveryNumber     *int
	Budget             *float64
	EstimatedDate      *time.Time
	ActualStartDate    *time.Time
	ActualDeliveryDate *time.Time
	ErrorCount         *int
	ErrorSolutionTime  *float64
}

// ListFilters narrows List results.
type ListFilters struct {
	ProjectID       string
	PendingRiskOnly bool
	IncludeArchived bool
}

// BudgetHistoryEntry is one append-only snapshot of a delivery's spend.
type BudgetHistoryEntry struct {
	ID         int64
	DeliveryID string
	Amount     float64
	UpdateDate time.Time
}

// SpendUpdate reports the outcome of a budget roll-up.
type SpendUpdate struct {
	DeliveryID     string
	Amount         float64
	PreviousAmount float64
	UpdatedAt      time.Time
	ProjectID      string
	ProjectSpent   float64
}
