package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/Edson1589/pixel-retro-store-sub000/internal/domain"
	"github.com/Edson1589/pixel-retro-store-sub000/internal/store/memory"
)

func seededAuth(t *testing.T) *AuthManager {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-test-pw")
	t.Setenv("SEED_CLERK_PASSWORD", "clerk-test-pw")
	return NewAuthManager("unit-test-secret", time.Hour, memory.NewSeeded())
}

func TestLoginAndParseTokenRoundtrip(t *testing.T) {
	auth := seededAuth(t)

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin-test-pw"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != "admin" {
		t.Fatalf("expected role admin, got %s", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth := seededAuth(t)

	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "nope"}); err == nil {
		t.Fatalf("expected error for wrong password")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "whatever"}); err == nil {
		t.Fatalf("expected error for unknown user")
	}
}

func TestParseTokenRejectsForgedToken(t *testing.T) {
	auth := seededAuth(t)
	other := NewAuthManager("different-secret", time.Hour, nil)

	token, err := other.sign("admin", "admin", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
	if _, err := auth.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected garbage token to be rejected")
	}
}

func TestParseTokenRejectsExpiredToken(t *testing.T) {
	auth := seededAuth(t)

	token, err := auth.sign("admin", "admin", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestBootstrapUpgradesPlaintextPassword(t *testing.T) {
	repo := memory.New()
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username:  "legacy",
		Password:  "plain-text-pw",
		Role:      "clerk",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	auth := NewAuthManager("unit-test-secret", time.Hour, repo)
	if _, err := auth.Login(domain.LoginRequest{Username: "legacy", Password: "plain-text-pw"}); err != nil {
		t.Fatalf("login after upgrade: %v", err)
	}

	users, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	for _, user := range users {
		if user.Username == "legacy" && !isPasswordHash(user.Password) {
			t.Fatalf("expected stored password to be hashed")
		}
	}
}

func TestInactiveAccountCannotLogin(t *testing.T) {
	repo := memory.New()
	hash, err := hashPassword("secret-pw")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username:  "former",
		Password:  hash,
		Role:      "clerk",
		Active:    false,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	auth := NewAuthManager("unit-test-secret", time.Hour, repo)
	if _, err := auth.Login(domain.LoginRequest{Username: "former", Password: "secret-pw"}); err == nil {
		t.Fatalf("expected inactive account to be rejected")
	}
}
