package risk

import "time"

// DeliverySnapshot is the slice of a delivery row the assessment reads under
// lock before deciding whether the latch permits a new assessment.
type DeliverySnapshot struct {
	ID        string
	ProjectID string
	Assessed  bool
	Budget    float64
}

// ProjectRisk mirrors the project columns touched by the aggregator.
type ProjectRisk struct {
	ID    string
	Score int
	Level Level
}

// AssessParams carries one assessment request for a delivery.
type AssessParams struct {
	DeliveryID string
	Inputs     Inputs
}

// Assessment reports the outcome of a successful delivery assessment,
// including the recomputed project-level risk.
type Assessment struct {
	DeliveryID    string
	PreviousScore int
	PreviousLevel Level
	NewScore      int
	NewLevel      Level
	Direction     Direction
	AssessedAt    time.Time
	ProjectScore  int
	ProjectLevel  Level
}
