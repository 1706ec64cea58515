package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"deliverydesk/auth"
	"deliverydesk/dashboard"
	"deliverydesk/delivery"
	"deliverydesk/kanban"
	"deliverydesk/project"
	"deliverydesk/risk"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyRole
)

// Service interfaces are declared by the consumer so the handler tests can
// substitute stubs.

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
	ListUsers(ctx context.Context) ([]auth.User, error)
	UpdateUser(ctx context.Context, userID string, params auth.UpdateUserParams) (*auth.User, error)
	DeleteUser(ctx context.Context, userID string) error
	VerifyToken(token string) (string, auth.Role, error)
}

type projectService interface {
	Create(ctx context.Context, params project.CreateParams) (project.Project, error)
	List(ctx context.Context) ([]project.Project, error)
	GetByID(ctx context.Context, id string) (project.Project, error)
	Update(ctx context.Context, id string, params project.UpdateParams) (project.Project, error)
	Delete(ctx context.Context, id string) error
}

type deliveryService interface {
	Create(ctx context.Context, params delivery.CreateParams) (delivery.Delivery, error)
	List(ctx context.Context, filters delivery.ListFilters) ([]delivery.Delivery, error)
	GetByID(ctx context.Context, id string) (delivery.Delivery, error)
	Update(ctx context.Context, id string, params delivery.UpdateParams) (delivery.Delivery, error)
	Archive(ctx context.Context, id string) (delivery.Delivery, error)
	Unarchive(ctx context.Context, id string) (delivery.Delivery, error)
	Delete(ctx context.Context, id string) error
}

type budgetService interface {
	UpdateSpend(ctx context.Context, deliveryID string, amount float64) (delivery.SpendUpdate, error)
	History(ctx context.Context, deliveryID string) ([]delivery.BudgetHistoryEntry, error)
}

type riskService interface {
	Assess(ctx context.Context, params risk.AssessParams) (risk.Assessment, error)
	AggregateProject(ctx context.Context, projectID string) (risk.ProjectRisk, error)
}

type kanbanService interface {
	Move(ctx context.Context, params kanban.MoveParams) (kanban.MoveResult, error)
	History(ctx context.Context, deliveryID string) ([]kanban.StageTransition, error)
}

type dashboardService interface {
	Summary(ctx context.Context) (dashboard.Summary, error)
	ProjectBudgets(ctx context.Context) ([]dashboard.ProjectBudget, error)
	PendingAssessments(ctx context.Context) ([]dashboard.PendingAssessment, error)
}

// Server wires the domain services into the HTTP API.
type Server struct {
	authService      authService
	projectService   projectService
	deliveryService  deliveryService
	budgetService    budgetService
	riskService      riskService
	kanbanService    kanbanService
	dashboardService dashboardService
	log              *zap.Logger
}

func (s *Server) logger() *zap.Logger {
	if s.log == nil {
		return zap.NewNop()
	}
	return s.log
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /api/auth/me", s.requireAuth(s.handleMe))

	mux.HandleFunc("GET /api/users", s.requireAuth(s.handleListUsers))
	mux.HandleFunc("GET /api/users/{id}", s.requireAuth(s.handleGetUser))
	mux.HandleFunc("PATCH /api/users/{id}", s.requireRole(s.handleUpdateUser, auth.RoleAdmin))
	mux.HandleFunc("DELETE /api/users/{id}", s.requireRole(s.handleDeleteUser, auth.RoleAdmin))

	mux.HandleFunc("GET /api/projects", s.requireAuth(s.handleListProjects))
	mux.HandleFunc("POST /api/projects", s.requireRole(s.handleCreateProject, auth.RoleAdmin, auth.RolePortfolioManager))
	mux.HandleFunc("GET /api/projects/{id}", s.requireAuth(s.handleGetProject))
	mux.HandleFunc("PATCH /api/projects/{id}", s.requireRole(s.handleUpdateProject, auth.RoleAdmin, auth.RolePortfolioManager))
	mux.HandleFunc("DELETE /api/projects/{id}", s.requireRole(s.handleDeleteProject, auth.RoleAdmin))

	mux.HandleFunc("GET /api/deliveries", s.requireAuth(s.handleListDeliveries))
	mux.HandleFunc("POST /api/deliveries", s.requireRole(s.handleCreateDelivery, auth.RoleAdmin, auth.RolePortfolioManager))
	mux.HandleFunc("GET /api/deliveries/{id}", s.requireAuth(s.handleGetDelivery))
	mux.HandleFunc("PATCH /api/deliveries/{id}", s.requireAuth(s.handleUpdateDelivery))
	mux.HandleFunc("DELETE /api/deliveries/{id}", s.requireRole(s.handleDeleteDelivery, auth.RoleAdmin))
	mux.HandleFunc("POST /api/deliveries/{id}/archive", s.requireAuth(s.handleArchiveDelivery))
	mux.HandleFunc("POST /api/deliveries/{id}/unarchive", s.requireAuth(s.handleUnarchiveDelivery))
	mux.HandleFunc("POST /api/deliveries/{id}/assess", s.requireAuth(s.handleAssessDelivery))
	mux.HandleFunc("POST /api/deliveries/{id}/move", s.requireAuth(s.handleMoveDelivery))
	mux.HandleFunc("PUT /api/deliveries/{id}/budget", s.requireAuth(s.handleUpdateSpend))
	mux.HandleFunc("GET /api/deliveries/{id}/budget-history", s.requireAuth(s.handleBudgetHistory))
	mux.HandleFunc("GET /api/deliveries/{id}/transitions", s.requireAuth(s.handleTransitions))

	mux.HandleFunc("POST /api/projects/{id}/aggregate-risk", s.requireRole(s.handleAggregateRisk, auth.RoleAdmin, auth.RolePortfolioManager))

	mux.HandleFunc("GET /api/dashboard/summary", s.requireAuth(s.handleDashboardSummary))
	mux.HandleFunc("GET /api/dashboard/budgets", s.requireAuth(s.handleDashboardBudgets))
	mux.HandleFunc("GET /api/dashboard/pending-assessments", s.requireAuth(s.handlePendingAssessments))

	return s.withRequestMetrics(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- auth ---

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateEmail):
			respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, auth.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			s.respondDomainError(w, err)
		}
		return
	}

	respondJSON(w, http.StatusCreated, toUserResponse(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		s.respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, loginResponse{
		Token: result.Token,
		User:  toUserResponse(result.User),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value(ctxKeyUserID).(string)
	user, err := s.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(*user))
}

// --- users ---

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.authService.ListUsers(r.Context())
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	items := make([]userResponse, 0, len(users))
	for _, u := range users {
		items = append(items, toUserResponse(u))
	}
	respondJSON(w, http.StatusOK, listResponse[userResponse]{Items: items, Total: len(items)})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.authService.GetUserByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(*user))
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	params := auth.UpdateUserParams{
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Avatar:             req.Avatar,
		AssignedProjectIDs: req.AssignedProjectIDs,
	}
	if req.Role != nil {
		role := auth.Role(*req.Role)
		params.Role = &role
	}

	user, err := s.authService.UpdateUser(r.Context(), r.PathValue("id"), params)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(*user))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.authService.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		s.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- projects ---

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projectService.List(r.Context())
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	items := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		items = append(items, toProjectResponse(p))
	}
	respondJSON(w, http.StatusOK, listResponse[projectResponse]{Items: items, Total: len(items)})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := s.projectService.Create(r.Context(), project.CreateParams{
		Name:                req.Name,
		Description:         req.Description,
		Budget:              req.Budget,
		ProjectedDeliveries: req.ProjectedDeliveries,
		StartDate:           req.StartDate,
		EndDate:             req.EndDate,
		OwnerID:             req.OwnerID,
	})
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toProjectResponse(created))
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectService.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toProjectResponse(p))
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req updateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	params := project.UpdateParams{
		Name:                req.Name,
		Description:         req.Description,
		RiskScore:           req.RiskScore,
		Budget:              req.Budget,
		BudgetSpent:         req.BudgetSpent,
		ProjectedDeliveries: req.ProjectedDeliveries,
		StartDate:           req.StartDate,
		EndDate:             req.EndDate,
		OwnerID:             req.OwnerID,
	}
	if req.Stage != nil {
		stage := project.Stage(*req.Stage)
		params.Stage = &stage
	}

	p, err := s.projectService.Update(r.Context(), r.PathValue("id"), params)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toProjectResponse(p))
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.projectService.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAggregateRisk(w http.ResponseWriter, r *http.Request) {
	result, err := s.riskService.AggregateProject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, projectRiskResponse{
		ProjectID: result.ID,
		RiskScore: result.Score,
		RiskLevel: string(result.Level),
	})
}

// --- deliveries ---

func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	filters := delivery.ListFilters{
		ProjectID:       r.URL.Query().Get("projectId"),
		PendingRiskOnly: r.URL.Query().Get("pendingRisk") == "true",
		IncludeArchived: r.URL.Query().Get("includeArchived") == "true",
	}

	deliveries, err := s.deliveryService.List(r.Context(), filters)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	items := make([]deliveryResponse, 0, len(deliveries))
	for _, d := range deliveries {
		items = append(items, toDeliveryResponse(d))
	}
	respondJSON(w, http.StatusOK, listResponse[deliveryResponse]{Items: items, Total: len(items)})
}

func (s *Server) handleCreateDelivery(w http.ResponseWriter, r *http.Request) {
	var req createDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := s.deliveryService.Create(r.Context(), delivery.CreateParams{
		ProjectID:      req.ProjectID,
		DeliveryNumber: req.DeliveryNumber,
		Budget:         req.Budget,
		EstimatedDate:  req.EstimatedDate,
	})
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toDeliveryResponse(created))
}

func (s *Server) handleGetDelivery(w http.ResponseWriter, r *http.Request) {
	d, err := s.deliveryService.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toDeliveryResponse(d))
}

func (s *Server) handleUpdateDelivery(w http.ResponseWriter, r *http.Request) {
	var req updateDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	d, err := s.deliveryService.Update(r.Context(), r.PathValue("id"), delivery.UpdateParams{
		DeliveryNumber:     req.DeliveryNumber,
		Budget:             req.Budget,
		EstimatedDate:      req.EstimatedDate,
		ActualStartDate:    req.ActualStartDate,
		ActualDeliveryDate: req.ActualDeliveryDate,
		ErrorCount:         req.ErrorCount,
		ErrorSolutionTime:  req.ErrorSolutionTime,
	})
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toDeliveryResponse(d))
}

func (s *Server) handleDeleteDelivery(w http.ResponseWriter, r *http.Request) {
	if err := s.deliveryService.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleArchiveDelivery(w http.ResponseWriter, r *http.Request) {
	d, err := s.deliveryService.Archive(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toDeliveryResponse(d))
}

func (s *Server) handleUnarchiveDelivery(w http.ResponseWriter, r *http.Request) {
	d, err := s.deliveryService.Unarchive(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toDeliveryResponse(d))
}

func (s *Server) handleAssessDelivery(w http.ResponseWriter, r *http.Request) {
	var req assessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	assessment, err := s.riskService.Assess(r.Context(), risk.AssessParams{
		DeliveryID: r.PathValue("id"),
		Inputs: risk.Inputs{
			TimelineDeviation:  req.TimelineDeviation,
			HoursToFix:         req.HoursToFix,
			FunctionalFit:      req.FunctionalFit,
			FeatureAdjustments: req.FeatureAdjustments,
			BlockHours:         req.BlockHours,
		},
	})
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, assessmentResponse{
		DeliveryID:    assessment.DeliveryID,
		PreviousScore: assessment.PreviousScore,
		PreviousLevel: string(assessment.PreviousLevel),
		NewScore:      assessment.NewScore,
		NewLevel:      string(assessment.NewLevel),
		Direction:     string(assessment.Direction),
		AssessedAt:    assessment.AssessedAt.Format(time.RFC3339),
		ProjectScore:  assessment.ProjectScore,
		ProjectLevel:  string(assessment.ProjectLevel),
	})
}

func (s *Server) handleMoveDelivery(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.kanbanService.Move(r.Context(), kanban.MoveParams{
		DeliveryID: r.PathValue("id"),
		To:         project.Stage(req.To),
		Confirmed:  req.Confirmed,
	})
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	resp := moveResponse{
		DeliveryID:    result.DeliveryID,
		From:          string(result.From),
		To:            string(result.To),
		BudgetCharged: result.BudgetCharged,
	}
	if !result.MovedAt.IsZero() {
		resp.MovedAt = result.MovedAt.Format(time.RFC3339)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateSpend(w http.ResponseWriter, r *http.Request) {
	var req spendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	update, err := s.budgetService.UpdateSpend(r.Context(), r.PathValue("id"), req.Amount)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, spendResponse{
		DeliveryID:     update.DeliveryID,
		Amount:         update.Amount,
		PreviousAmount: update.PreviousAmount,
		UpdatedAt:      update.UpdatedAt.Format(time.RFC3339),
		ProjectID:      update.ProjectID,
		ProjectSpent:   update.ProjectSpent,
	})
}

func (s *Server) handleBudgetHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.budgetService.History(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	items := make([]budgetHistoryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, budgetHistoryResponse{
			ID:         e.ID,
			DeliveryID: e.DeliveryID,
			Amount:     e.Amount,
			UpdateDate: e.UpdateDate.Format(time.RFC3339),
		})
	}
	respondJSON(w, http.StatusOK, listResponse[budgetHistoryResponse]{Items: items, Total: len(items)})
}

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	transitions, err := s.kanbanService.History(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	items := make([]transitionResponse, 0, len(transitions))
	for _, t := range transitions {
		item := transitionResponse{
			ID:         t.ID,
			DeliveryID: t.DeliveryID,
			To:         string(t.To),
			MovedAt:    t.MovedAt.Format(time.RFC3339),
		}
		if t.From != nil {
			from := string(*t.From)
			item.From = &from
		}
		items = append(items, item)
	}
	respondJSON(w, http.StatusOK, listResponse[transitionResponse]{Items: items, Total: len(items)})
}

// --- dashboard ---

func (s *Server) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.dashboardService.Summary(r.Context())
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summaryResponse{
		TotalProjects:      summary.TotalProjects,
		ActiveProjects:     summary.ActiveProjects,
		HighRiskProjects:   summary.HighRiskProjects,
		TotalBudget:        summary.TotalBudget,
		TotalSpent:         summary.TotalSpent,
		ClosedDeliveries:   summary.ClosedDeliveries,
		PendingAssessments: summary.PendingAssessments,
	})
}

func (s *Server) handleDashboardBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.dashboardService.ProjectBudgets(r.Context())
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	items := make([]projectBudgetResponse, 0, len(budgets))
	for _, b := range budgets {
		items = append(items, projectBudgetResponse{
			ProjectID: b.ProjectID,
			Name:      b.Name,
			Stage:     string(b.Stage),
			RiskLevel: string(b.RiskLevel),
			Budget:    b.Budget,
			Spent:     b.Spent,
			Remaining: b.Remaining,
		})
	}
	respondJSON(w, http.StatusOK, listResponse[projectBudgetResponse]{Items: items, Total: len(items)})
}

func (s *Server) handlePendingAssessments(w http.ResponseWriter, r *http.Request) {
	pending, err := s.dashboardService.PendingAssessments(r.Context())
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	items := make([]pendingAssessmentResponse, 0, len(pending))
	for _, p := range pending {
		items = append(items, pendingAssessmentResponse{
			DeliveryID:       p.DeliveryID,
			ProjectID:        p.ProjectID,
			ProjectName:      p.ProjectName,
			DeliveryNumber:   p.DeliveryNumber,
			Stage:            string(p.Stage),
			EstimatedDate:    p.EstimatedDate.Format(time.RFC3339),
			BusinessDaysLeft: p.BusinessDaysLeft,
		})
	}
	respondJSON(w, http.StatusOK, listResponse[pendingAssessmentResponse]{Items: items, Total: len(items)})
}
