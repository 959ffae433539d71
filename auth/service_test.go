package auth

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"orderflow/fault"
)

type fakeRepo struct {
	users     map[string]User
	createErr error
	deleted   []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[string]User)}
}

func (f *fakeRepo) CreateUser(_ context.Context, params CreateUserParams) (User, error) {
	if f.createErr != nil {
		return User{}, f.createErr
	}
	for _, u := range f.users {
		if u.Email == params.Email {
			return User{}, ErrDuplicateEmail
		}
	}
	u := User{
		ID:           "user-" + params.Email,
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		Role:         params.Role,
	}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeRepo) GetUserByEmail(_ context.Context, email string) (User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (f *fakeRepo) GetUserByID(_ context.Context, userID string) (User, error) {
	u, ok := f.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeRepo) ListUsers(context.Context) ([]User, error) {
	out := []User{}
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeRepo) ListByRole(_ context.Context, role Role) ([]User, error) {
	out := []User{}
	for _, u := range f.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeRepo) SetKYCVerified(_ context.Context, userID string) (User, error) {
	u, ok := f.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	u.KYCVerified = true
	f.users[userID] = u
	return u, nil
}

func (f *fakeRepo) DeleteUser(_ context.Context, userID string) error {
	if _, ok := f.users[userID]; !ok {
		return ErrUserNotFound
	}
	delete(f.users, userID)
	f.deleted = append(f.deleted, userID)
	return nil
}

func TestRegister_WeakPassword(t *testing.T) {
	svc := NewService(newFakeRepo(), "secret")

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "a@example.com",
		Password: "short",
		Role:     RoleBroker,
	})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestRegister_InvalidRole(t *testing.T) {
	svc := NewService(newFakeRepo(), "secret")

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "a@example.com",
		Password: "longenough",
		Role:     "superuser",
	})
	if !fault.IsKind(err, fault.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, "secret")

	req := RegisterRequest{Email: "a@example.com", Password: "longenough", Role: RoleBroker}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.Register(context.Background(), req)
	if !fault.IsKind(err, fault.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail in chain, got %v", err)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, "secret")

	hash, _ := bcrypt.GenerateFromPassword([]byte("rightpass"), bcrypt.MinCost)
	repo.users["u1"] = User{ID: "u1", Email: "a@example.com", PasswordHash: string(hash), Role: RoleBroker}

	cases := []LoginRequest{
		{Email: "a@example.com", Password: "wrongpass"},
		{Email: "nobody@example.com", Password: "rightpass"},
	}
	for _, req := range cases {
		if _, err := svc.Login(context.Background(), req); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("login %+v: expected ErrInvalidCredentials, got %v", req, err)
		}
	}
}

func TestLoginThenActorFromToken(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, "secret")

	hash, _ := bcrypt.GenerateFromPassword([]byte("rightpass"), bcrypt.MinCost)
	repo.users["u1"] = User{ID: "u1", Email: "a@example.com", PasswordHash: string(hash), Role: RoleInvestor}

	result, err := svc.Login(context.Background(), LoginRequest{Email: "a@example.com", Password: "rightpass"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	actor, err := svc.ActorFromToken(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("actor from token: %v", err)
	}
	if actor.UserID != "u1" || actor.Role != RoleInvestor || actor.KYCVerified {
		t.Fatalf("unexpected actor %+v", actor)
	}

	// A KYC grant after token issuance is visible on the next request.
	if _, err := repo.SetKYCVerified(context.Background(), "u1"); err != nil {
		t.Fatalf("set kyc: %v", err)
	}
	actor, err = svc.ActorFromToken(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("actor from token: %v", err)
	}
	if !actor.KYCVerified {
		t.Fatalf("expected fresh KYC state from the database")
	}
}

func TestActorFromToken_WrongSecret(t *testing.T) {
	repo := newFakeRepo()
	issuer := NewService(repo, "secret-a")
	verifier := NewService(repo, "secret-b")

	hash, _ := bcrypt.GenerateFromPassword([]byte("rightpass"), bcrypt.MinCost)
	repo.users["u1"] = User{ID: "u1", Email: "a@example.com", PasswordHash: string(hash), Role: RoleBroker}

	result, err := issuer.Login(context.Background(), LoginRequest{Email: "a@example.com", Password: "rightpass"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := verifier.ActorFromToken(context.Background(), result.Token); err == nil {
		t.Fatalf("expected verification failure with a different secret")
	}
}

func TestResolveAdmin(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, "secret")

	if _, err := svc.ResolveAdmin(context.Background()); !errors.Is(err, ErrNoAdmin) {
		t.Fatalf("expected ErrNoAdmin, got %v", err)
	}

	repo.users["a1"] = User{ID: "a1", Role: RoleAdmin}
	admin, err := svc.ResolveAdmin(context.Background())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if admin.ID != "a1" {
		t.Fatalf("unexpected admin %+v", admin)
	}

	repo.users["a2"] = User{ID: "a2", Role: RoleAdmin}
	if _, err := svc.ResolveAdmin(context.Background()); !errors.Is(err, ErrMultipleAdmins) {
		t.Fatalf("expected ErrMultipleAdmins, got %v", err)
	}
}

func TestAdminOnlyOperations(t *testing.T) {
	repo := newFakeRepo()
	repo.users["u1"] = User{ID: "u1", Role: RoleBroker}
	svc := NewService(repo, "secret")

	notAdmin := Actor{UserID: "u1", Role: RoleBroker, KYCVerified: true}

	if _, err := svc.ListUsers(context.Background(), notAdmin); !fault.IsKind(err, fault.KindUnauthorized) {
		t.Errorf("list users: expected unauthorized, got %v", err)
	}
	if _, err := svc.VerifyKYC(context.Background(), notAdmin, "u1"); !fault.IsKind(err, fault.KindUnauthorized) {
		t.Errorf("verify kyc: expected unauthorized, got %v", err)
	}
	if err := svc.DeleteUser(context.Background(), notAdmin, "u1"); !fault.IsKind(err, fault.KindUnauthorized) {
		t.Errorf("delete user: expected unauthorized, got %v", err)
	}

	admin := Actor{UserID: "a1", Role: RoleAdmin}
	user, err := svc.VerifyKYC(context.Background(), admin, "u1")
	if err != nil {
		t.Fatalf("verify kyc as admin: %v", err)
	}
	if !user.KYCVerified {
		t.Fatalf("expected KYC flag set")
	}

	if _, err := svc.VerifyKYC(context.Background(), admin, "missing"); !fault.IsKind(err, fault.KindNotFound) {
		t.Errorf("verify kyc missing: expected not found, got %v", err)
	}
}

func TestRequireKYC(t *testing.T) {
	if err := RequireKYC("op", Actor{Role: RoleAdmin}); err != nil {
		t.Errorf("expected admin exemption, got %v", err)
	}
	if err := RequireKYC("op", Actor{Role: RoleBroker, KYCVerified: true}); err != nil {
		t.Errorf("expected verified actor to pass, got %v", err)
	}
	if err := RequireKYC("op", Actor{Role: RoleBroker}); !fault.IsKind(err, fault.KindUnauthorized) {
		t.Errorf("expected unauthorized for unverified actor, got %v", err)
	}
}
