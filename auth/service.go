package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"orderflow/fault"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
	// ErrNoAdmin signals that no admin account exists.
	ErrNoAdmin = errors.New("auth: no admin account exists")
	// ErrMultipleAdmins signals that more than one admin account exists.
	ErrMultipleAdmins = errors.New("auth: multiple admin accounts exist")
)

const tokenTTL = 24 * time.Hour

// Service handles registration, login, and account administration.
type Service struct {
	repo      Repository
	jwtSecret []byte
}

// LoginResult bundles the token and domain user returned after a successful login.
type LoginResult struct {
	Token string
	User  User
}

// NewService creates a new authentication service.
func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
	}
}

// Register creates a new user account. The profile row is the same row as the
// credential row, so registration can never leave an authenticated user
// without a profile.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if req.Email == "" {
		return nil, fault.Validation("auth.register", "email is required")
	}
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}

	role := Role(strings.TrimSpace(string(req.Role)))
	if !ValidRole(role) {
		return nil, fault.Validation("auth.register", fmt.Sprintf("invalid role %q", role))
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Email:        req.Email,
		PasswordHash: string(passwordHash),
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, fault.Wrap(fault.KindValidation, "auth.register", err)
		}
		return nil, err
	}

	return &user, nil
}

// Login authenticates a user and returns a JWT token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.generateToken(user.ID, user.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}

	return LoginResult{Token: token, User: user}, nil
}

// GetUserByID retrieves user information by ID.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns every account; admin only.
func (s *Service) ListUsers(ctx context.Context, actor Actor) ([]User, error) {
	if !actor.IsAdmin() {
		return nil, fault.Unauthorized("auth.list_users", "admin role required")
	}
	return s.repo.ListUsers(ctx)
}

// VerifyKYC flips the KYC flag for the target user; admin only.
func (s *Service) VerifyKYC(ctx context.Context, actor Actor, userID string) (User, error) {
	if !actor.IsAdmin() {
		return User{}, fault.Unauthorized("auth.verify_kyc", "admin role required")
	}
	user, err := s.repo.SetKYCVerified(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, fault.Wrap(fault.KindNotFound, "auth.verify_kyc", err)
		}
		return User{}, err
	}
	return user, nil
}

// DeleteUser removes the target account; admin only.
func (s *Service) DeleteUser(ctx context.Context, actor Actor, userID string) error {
	if !actor.IsAdmin() {
		return fault.Unauthorized("auth.delete_user", "admin role required")
	}
	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return fault.Wrap(fault.KindNotFound, "auth.delete_user", err)
		}
		return err
	}
	return nil
}

// ResolveAdmin returns the single admin account. Zero or more than one admin
// is an explicit error rather than an arbitrary pick.
func (s *Service) ResolveAdmin(ctx context.Context) (User, error) {
	admins, err := s.repo.ListByRole(ctx, RoleAdmin)
	if err != nil {
		return User{}, err
	}
	switch len(admins) {
	case 0:
		return User{}, ErrNoAdmin
	case 1:
		return admins[0], nil
	default:
		return User{}, ErrMultipleAdmins
	}
}

// ActorFromToken validates a JWT and loads the current account state behind
// it. KYC status is read from the database, not the token, so a mid-session
// KYC grant or revocation takes effect immediately.
func (s *Service) ActorFromToken(ctx context.Context, tokenString string) (Actor, error) {
	userID, _, err := s.verifyToken(tokenString)
	if err != nil {
		return Actor{}, err
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Actor{}, fault.Wrap(fault.KindUnauthorized, "auth.actor", err)
		}
		return Actor{}, err
	}

	return Actor{UserID: user.ID, Role: user.Role, KYCVerified: user.KYCVerified}, nil
}

func (s *Service) verifyToken(tokenString string) (string, Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("auth: parse token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		userID, ok := claims["user_id"].(string)
		if !ok {
			return "", "", fmt.Errorf("auth: invalid user_id in token")
		}
		roleStr, ok := claims["role"].(string)
		if !ok {
			return "", "", fmt.Errorf("auth: invalid role in token")
		}
		role := Role(roleStr)
		if !ValidRole(role) {
			return "", "", fmt.Errorf("auth: invalid role %q in token", roleStr)
		}
		return userID, role, nil
	}

	return "", "", fmt.Errorf("auth: invalid token")
}

func (s *Service) generateToken(userID string, role Role) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(tokenTTL).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// RequireKYC rejects actors that have not completed KYC verification. Admins
// are exempt since they are the ones granting it.
func RequireKYC(op string, actor Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	if !actor.KYCVerified {
		return fault.Unauthorized(op, "KYC verification required")
	}
	return nil
}
