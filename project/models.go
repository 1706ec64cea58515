package project

import (
	"time"

	"deliverydesk/risk"
)

// Stage is one of the seven ordered pipeline states shared by projects and
// their deliveries.
type Stage string

const (
	StageDefinition  Stage = "Definición"
	StageLocalDev    Stage = "Desarrollo Local"
	StageDevEnv      Stage = "Ambiente DEV"
	StageTestEnv     Stage = "Ambiente TST"
	StageUATEnv      Stage = "Ambiente UAT"
	StageProdSupport Stage = "Soporte Productivo"
	StageClosed      Stage = "Cerrado"
)

var stages = []Stage{
	StageDefinition,
	StageLocalDev,
	StageDevEnv,
	StageTestEnv,
	StageUATEnv,
	StageProdSupport,
	StageClosed,
}

// Stages returns the pipeline in order, index 0 through 6.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}

// StageIndex returns the pipeline position of a stage, or -1 when unknown.
func StageIndex(s Stage) int {
	for i, candidate := range stages {
		if candidate == s {
			return i
		}
	}
	return -1
}

// IsValidStage reports whether s names one of the seven pipeline stages.
func IsValidStage(s Stage) bool {
	return StageIndex(s) >= 0
}

// Project mirrors the projects table. Risk fields obey the classification
// table: whenever riskScore is present, riskLevel is its bucket.
type Project struct {
	ID                  string
	Name                string
	Description         string
	Stage               Stage
	RiskLevel           risk.Level
	RiskScore           int
	Budget              float64
	BudgetSpent         float64
	ProjectedDeliveries int
	StartDate           time.Time
	EndDate             time.Time
	OwnerID             *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CreateParams contains the admin-form fields for a new project.
type CreateParams struct {
	Name                string
	Description         string
	Budget              float64
	ProjectedDeliveries int
	StartDate           time.Time
	EndDate             time.Time
	OwnerID             string
}

// UpdateParams carries a partial update; nil fields are left untouched.
type UpdateParams struct {
	Name                *string
	Description         *string
	Stage               *Stage
	RiskScore           *int
	Budget              *float64
	BudgetSpent         *float64
	ProjectedDeliveries *int
	StartDate           *time.Time
	EndDate             *time.Time
	OwnerID             *string
}
