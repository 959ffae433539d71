package auth

import "time"

// Role enumerates the marketplace roles a user can register with.
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleBroker        Role = "broker"
	RoleContractor    Role = "contractor"
	RoleInvestor      Role = "investor"
	RoleSourcingAgent Role = "sourcing_agent"
	RoleClient        Role = "client"
)

// ValidRole reports whether role is one of the six marketplace roles.
func ValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleBroker, RoleContractor, RoleInvestor, RoleSourcingAgent, RoleClient:
		return true
	default:
		return false
	}
}

// User is the domain representation of a registered account. It mirrors the
// users table and carries no JSON annotations so it can be reused by
// different presentation layers.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	KYCVerified  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor identifies the authenticated caller of a workflow operation.
type Actor struct {
	UserID      string
	Role        Role
	KYCVerified bool
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
