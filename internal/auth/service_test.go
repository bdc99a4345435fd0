package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"portal-api/internal/cache"
	"portal-api/internal/model"
	"portal-api/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if _, err := st.CreateUser(context.Background(), model.User{
		Email: "analyst@portal.local", PasswordHash: hash, FullName: "SOC Analyst",
		Role: model.RoleClient, IsActive: true,
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	return NewService(st, cache.NewMemoryRevocationCache(), "test-secret", time.Hour), st
}

func TestLoginAndVerify(t *testing.T) {
	svc, _ := newTestService(t)

	token, user, err := svc.Login(context.Background(), "Analyst@Portal.Local", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.Email != "analyst@portal.local" {
		t.Fatalf("unexpected user email %q", user.Email)
	}

	claims, err := svc.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Role != model.RoleClient {
		t.Fatalf("expected client role, got %s", claims.Role)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)

	if _, _, err := svc.Login(context.Background(), "analyst@portal.local", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "nobody@portal.local", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, st := newTestService(t)

	hash, _ := HashPassword("pw")
	if _, err := st.CreateUser(context.Background(), model.User{
		Email: "gone@portal.local", PasswordHash: hash, FullName: "Gone", Role: model.RoleClient, IsActive: false,
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "gone@portal.local", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for inactive account, got %v", err)
	}
}

func TestVerifyFailsAfterLogout(t *testing.T) {
	svc, _ := newTestService(t)

	token, _, err := svc.Login(context.Background(), "analyst@portal.local", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.Verify(context.Background(), token); err != nil {
		t.Fatalf("verify before logout: %v", err)
	}

	if err := svc.Logout(context.Background(), token); err != nil {
		t.Fatalf("logout: %v", err)
	}

	// The token's embedded expiry is an hour away, yet verification must fail.
	if _, err := svc.Verify(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after logout, got %v", err)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	svc, _ := newTestService(t)

	token, _, err := svc.Login(context.Background(), "analyst@portal.local", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	tampered := token[:len(token)-2] + "xx"
	if _, err := svc.Verify(context.Background(), tampered); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for tampered token, got %v", err)
	}
}

func TestRequireRole(t *testing.T) {
	claims := &Claims{Role: model.RoleClient}
	if err := RequireRole(claims, model.RoleAdmin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := RequireRole(claims, model.RoleClient); err != nil {
		t.Fatalf("expected client role to pass, got %v", err)
	}
	if err := RequireRole(nil, model.RoleAdmin); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for missing claims, got %v", err)
	}
}
