package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"deliverydesk/auth"
	"deliverydesk/delivery"
	"deliverydesk/kanban"
	"deliverydesk/project"
	"deliverydesk/risk"
)

type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type userResponse struct {
	ID                 string   `json:"id"`
	Email              string   `json:"email"`
	FirstName          string   `json:"firstName"`
	LastName           string   `json:"lastName"`
	Avatar             *string  `json:"avatar,omitempty"`
	Role               string   `json:"role"`
	AssignedProjectIDs []string `json:"assignedProjectIds"`
	CreatedAt          string   `json:"createdAt"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type updateUserRequest struct {
	FirstName          *string  `json:"firstName"`
	LastName           *string  `json:"lastName"`
	Avatar             *string  `json:"avatar"`
	Role               *string  `json:"role"`
	AssignedProjectIDs []string `json:"assignedProjectIds"`
}

type createProjectRequest struct {
	Name                string    `json:"name"`
	Description         string    `json:"description"`
	Budget              float64   `json:"budget"`
	ProjectedDeliveries int       `json:"projectedDeliveries"`
	StartDate           time.Time `json:"startDate"`
	EndDate             time.Time `json:"endDate"`
	OwnerID             string    `json:"ownerId"`
}

type updateProjectRequest struct {
	Name                *string    `json:"name"`
	Description         *string    `json:"description"`
	Stage               *string    `json:"stage"`
	RiskScore           *int       `json:"riskScore"`
	Budget              *float64   `json:"budget"`
	BudgetSpent         *float64   `json:"budgetSpent"`
	ProjectedDeliveries *int       `json:"projectedDeliveries"`
	StartDate           *time.Time `json:"startDate"`
	EndDate             *time.Time `json:"endDate"`
	OwnerID             *string    `json:"ownerId"`
}

type projectResponse struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Description         string  `json:"description"`
	Stage               string  `json:"stage"`
	RiskLevel           string  `json:"riskLevel"`
	RiskScore           int     `json:"riskScore"`
	Budget              float64 `json:"budget"`
	BudgetSpent         float64 `json:"budgetSpent"`
	ProjectedDeliveries int     `json:"projectedDeliveries"`
	StartDate           string  `json:"startDate"`
	EndDate             string  `json:"endDate"`
	OwnerID             *string `json:"ownerId,omitempty"`
	CreatedAt           string  `json:"createdAt"`
}

type projectRiskResponse struct {
	ProjectID string `json:"projectId"`
	RiskScore int    `json:"riskScore"`
	RiskLevel string `json:"riskLevel"`
}

type createDeliveryRequest struct {
	ProjectID      string    `json:"projectId"`
	DeliveryNumber int       `json:"deliveryNumber"`
	Budget         float64   `json:"budget"`
	EstimatedDate  time.Time `json:"estimatedDate"`
}

type updateDeliveryRequest struct {
	DeliveryNumber     *int       `json:"deliveryNumber"`
	Budget             *float64   `json:"budget"`
	EstimatedDate      *time.Time `json:"estimatedDate"`
	ActualStartDate    *time.Time `json:"actualStartDate"`
	ActualDeliveryDate *time.Time `json:"actualDeliveryDate"`
	ErrorCount         *int       `json:"errorCount"`
	ErrorSolutionTime  *float64   `json:"errorSolutionTime"`
}

type deliveryResponse struct {
	ID                string   `json:"id"`
	ProjectID         string   `json:"projectId"`
	ProjectName       string   `json:"projectName"`
	DeliveryNumber    int      `json:"deliveryNumber"`
	Stage             string   `json:"stage"`
	Budget            float64  `json:"budget"`
	BudgetSpent       float64  `json:"budgetSpent"`
	EstimatedDate     string   `json:"estimatedDate"`
	CreationDate      string   `json:"creationDate"`
	LastBudgetUpdate  *string  `json:"lastBudgetUpdate,omitempty"`
	IsArchived        bool     `json:"isArchived"`
	RiskAssessed      bool     `json:"riskAssessed"`
	RiskLevel         string   `json:"riskLevel"`
	RiskScore         int      `json:"riskScore"`
	ErrorCount        *int     `json:"errorCount,omitempty"`
	ErrorSolutionTime *float64 `json:"errorSolutionTime,omitempty"`
}

type assessRequest struct {
	TimelineDeviation  *float64 `json:"timelineDeviation"`
	HoursToFix         *float64 `json:"hoursToFix"`
	FunctionalFit      *float64 `json:"functionalFit"`
	FeatureAdjustments *float64 `json:"featureAdjustments"`
	BlockHours         *float64 `json:"blockHours"`
}

type assessmentResponse struct {
	DeliveryID    string `json:"deliveryId"`
	PreviousScore int    `json:"previousScore"`
	PreviousLevel string `json:"previousLevel"`
	NewScore      int    `json:"newScore"`
	NewLevel      string `json:"newLevel"`
	Direction     string `json:"direction"`
	AssessedAt    string `json:"assessedAt"`
	ProjectScore  int    `json:"projectScore"`
	ProjectLevel  string `json:"projectLevel"`
}

type moveRequest struct {
	To        string `json:"to"`
	Confirmed bool   `json:"confirmed"`
}

type moveResponse struct {
	DeliveryID    string  `json:"deliveryId"`
	From          string  `json:"from"`
	To            string  `json:"to"`
	MovedAt       string  `json:"movedAt,omitempty"`
	BudgetCharged float64 `json:"budgetCharged"`
}

type transitionResponse struct {
	ID         int64   `json:"id"`
	DeliveryID string  `json:"deliveryId"`
	From       *string `json:"from,omitempty"`
	To         string  `json:"to"`
	MovedAt    string  `json:"movedAt"`
}

type spendRequest struct {
	Amount float64 `json:"amount"`
}

type spendResponse struct {
	DeliveryID     string  `json:"deliveryId"`
	Amount         float64 `json:"amount"`
	PreviousAmount float64 `json:"previousAmount"`
	UpdatedAt      string  `json:"updatedAt"`
	ProjectID      string  `json:"projectId"`
	ProjectSpent   float64 `json:"projectSpent"`
}

type budgetHistoryResponse struct {
	ID         int64   `json:"id"`
	DeliveryID string  `json:"deliveryId"`
	Amount     float64 `json:"amount"`
	UpdateDate string  `json:"updateDate"`
}

type summaryResponse struct {
	TotalProjects      int     `json:"totalProjects"`
	ActiveProjects     int     `json:"activeProjects"`
	HighRiskProjects   int     `json:"highRiskProjects"`
	TotalBudget        float64 `json:"totalBudget"`
	TotalSpent         float64 `json:"totalSpent"`
	ClosedDeliveries   int     `json:"closedDeliveries"`
	PendingAssessments int     `json:"pendingAssessments"`
}

type projectBudgetResponse struct {
	ProjectID string  `json:"projectId"`
	Name      string  `json:"name"`
	Stage     string  `json:"stage"`
	RiskLevel string  `json:"riskLevel"`
	Budget    float64 `json:"budget"`
	Spent     float64 `json:"spent"`
	Remaining float64 `json:"remaining"`
}

type pendingAssessmentResponse struct {
	DeliveryID       string `json:"deliveryId"`
	ProjectID        string `json:"projectId"`
	ProjectName      string `json:"projectName"`
	DeliveryNumber   int    `json:"deliveryNumber"`
	Stage            string `json:"stage"`
	EstimatedDate    string `json:"estimatedDate"`
	BusinessDaysLeft int    `json:"businessDaysLeft"`
}

func toUserResponse(u auth.User) userResponse {
	assigned := u.AssignedProjectIDs
	if assigned == nil {
		assigned = []string{}
	}
	return userResponse{
		ID:                 u.ID,
		Email:              u.Email,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		Avatar:             u.Avatar,
		Role:               string(u.Role),
		AssignedProjectIDs: assigned,
		CreatedAt:          u.CreatedAt.Format(time.RFC3339),
	}
}

func toProjectResponse(p project.Project) projectResponse {
	return projectResponse{
		ID:                  p.ID,
		Name:                p.Name,
		Description:         p.Description,
		Stage:               string(p.Stage),
		RiskLevel:           string(p.RiskLevel),
		RiskScore:           p.RiskScore,
		Budget:              p.Budget,
		BudgetSpent:         p.BudgetSpent,
		ProjectedDeliveries: p.ProjectedDeliveries,
		StartDate:           p.StartDate.Format(time.RFC3339),
		EndDate:             p.EndDate.Format(time.RFC3339),
		OwnerID:             p.OwnerID,
		CreatedAt:           p.CreatedAt.Format(time.RFC3339),
	}
}

func toDeliveryResponse(d delivery.Delivery) deliveryResponse {
	resp := deliveryResponse{
		ID:                d.ID,
		ProjectID:         d.ProjectID,
		ProjectName:       d.ProjectName,
		DeliveryNumber:    d.DeliveryNumber,
		Stage:             string(d.Stage),
		Budget:            d.Budget,
		BudgetSpent:       d.BudgetSpent,
		EstimatedDate:     d.EstimatedDate.Format(time.RFC3339),
		CreationDate:      d.CreationDate.Format(time.RFC3339),
		IsArchived:        d.IsArchived,
		RiskAssessed:      d.RiskAssessed,
		RiskLevel:         string(d.RiskLevel),
		RiskScore:         d.RiskScore,
		ErrorCount:        d.ErrorCount,
		ErrorSolutionTime: d.ErrorSolutionTime,
	}
	if d.LastBudgetUpdate != nil {
		formatted := d.LastBudgetUpdate.Format(time.RFC3339)
		resp.LastBudgetUpdate = &formatted
	}
	return resp
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondDomainError maps domain sentinels onto HTTP statuses. Anything
// unmapped is a 500 and gets logged; validation failures arrive as plain
// fmt errors and fall back to 400 via the errors.Is checks below.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, project.ErrNotFound),
		errors.Is(err, delivery.ErrNotFound),
		errors.Is(err, risk.ErrDeliveryNotFound),
		errors.Is(err, risk.ErrProjectNotFound),
		errors.Is(err, kanban.ErrDeliveryNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, delivery.ErrDuplicateNumber),
		errors.Is(err, auth.ErrDuplicateEmail),
		errors.Is(err, risk.ErrAlreadyAssessed),
		errors.Is(err, kanban.ErrConfirmationRequired):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, kanban.ErrSkipsTesting),
		errors.Is(err, kanban.ErrMissingErrorData):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, delivery.ErrProjectNotFound):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, delivery.ErrArchived),
		errors.Is(err, kanban.ErrArchived):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, kanban.ErrInvalidStage),
		errors.Is(err, delivery.ErrNegativeSpend),
		isValidationError(err):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger().Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// isValidationError treats non-wrapped service errors as caller mistakes.
// Services return bare fmt errors only for input validation; infrastructure
// failures always wrap an underlying error.
func isValidationError(err error) bool {
	return errors.Unwrap(err) == nil
}
