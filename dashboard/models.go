package dashboard

import (
	"time"

	"deliverydesk/project"
	"deliverydesk/risk"
)

// Summary is the headline KPI row of the portfolio dashboard.
type Summary struct {
	TotalProjects      int
	ActiveProjects     int
	HighRiskProjects   int
	TotalBudget        float64
	TotalSpent         float64
	ClosedDeliveries   int
	PendingAssessments int
}

// ProjectBudget compares a project's planned budget against its
// executed spend.
type ProjectBudget struct {
	ProjectID string
	Name      string
	Stage     project.Stage
	RiskLevel risk.Level
	Budget    float64
	Spent     float64
	Remaining float64
}

// PendingAssessment is a delivery still waiting for its risk assessment.
type PendingAssessment struct {
	DeliveryID     string
	ProjectID      string
	ProjectName    string
	DeliveryNumber int
	Stage          project.Stage
	EstimatedDate  time.Time
	// BusinessDaysLeft counts working days until the estimated date,
	// negative when the delivery is overdue.
	BusinessDaysLeft int
}
