package auth

import "time"

type Role string

const (
	RoleAdmin            Role = "admin"
	RolePortfolioManager Role = "portfolio_manager"
	RoleProjectManager   Role = "pm_sm"
)

// User is the domain representation of an authenticated user.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID                 string
	Email              string
	FirstName          string
	LastName           string
	PasswordHash       string
	Avatar             *string
	Role               Role
	AssignedProjectIDs []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateUserParams carries a partial user update; nil fields are left
// untouched.
type UpdateUserParams struct {
	FirstName          *string
	LastName           *string
	Avatar             *string
	Role               *Role
	AssignedProjectIDs []string
}
