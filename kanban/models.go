package kanban

import (
	"time"

	"deliverydesk/project"
)

// MoveParams describes a card drag on the board. Confirmed acknowledges
// the zero-error prompt when leaving the test stage.
type MoveParams struct {
	DeliveryID string
	To         project.Stage
	Confirmed  bool
}

// MoveResult reports the applied transition.
type MoveResult struct {
	DeliveryID string
	From       project.Stage
	To         project.Stage
	MovedAt    time.Time
	// BudgetCharged is the amount added to the project's executed budget,
	// non-zero only when the card entered the closed stage.
	BudgetCharged float64
}

// StageTransition is one append-only entry in a delivery's stage history.
type StageTransition struct {
	ID         int64
	DeliveryID string
	From       *project.Stage
	To         project.Stage
	MovedAt    time.Time
}

// CardSnapshot is what the guard needs to know about a delivery before
// letting it move.
type CardSnapshot struct {
	ID                string
	ProjectID         string
	Stage             project.Stage
	Budget            float64
	IsArchived        bool
	ErrorCount        *int
	ErrorSolutionTime *float64
}
