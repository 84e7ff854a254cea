package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"dorixona/backend/internal/domain"
	"dorixona/backend/internal/store/memory"
)

func TestLoginAndParseTokenRoundTrip(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", memory.NewSeeded())

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "admin" {
		t.Fatalf("expected admin role, got %s", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", memory.NewSeeded())

	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "nope"}); err == nil {
		t.Fatalf("expected login to fail with wrong password")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager("secret-one", time.Hour, "123456", memory.NewSeeded())
	verifier := NewAuthManager("secret-two", time.Hour, "123456", nil)

	resp, err := issuer.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with other secret to be rejected")
	}
}

func TestValidateManagerPIN(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", nil)

	if !auth.ValidateManagerPIN("123456") {
		t.Fatalf("expected configured pin to validate")
	}
	if auth.ValidateManagerPIN("654321") {
		t.Fatalf("expected wrong pin to fail")
	}
	if auth.ValidateManagerPIN("") {
		t.Fatalf("expected empty pin to fail")
	}
}

func TestCreateOperatorValidation(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", memory.NewSeeded())

	if _, err := auth.CreateOperator(domain.OperatorCreateRequest{Username: "ab", Password: "secret1"}); err == nil {
		t.Fatalf("expected short username to be rejected")
	}
	if _, err := auth.CreateOperator(domain.OperatorCreateRequest{Username: "navbatchi", Password: "123"}); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
	if _, err := auth.CreateOperator(domain.OperatorCreateRequest{Username: "operator", Password: "secret1"}); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}

	created, err := auth.CreateOperator(domain.OperatorCreateRequest{Username: "Navbatchi", Password: "secret1"})
	if err != nil {
		t.Fatalf("create operator failed: %v", err)
	}
	if created.Username != "navbatchi" {
		t.Fatalf("expected lowercased username, got %s", created.Username)
	}
	if created.Role != "operator" {
		t.Fatalf("expected operator role, got %s", created.Role)
	}

	found := false
	for _, op := range auth.ListOperators() {
		if op.Username == "navbatchi" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected created operator in listing")
	}
}

func TestBootstrapUpgradesPlainTextPasswords(t *testing.T) {
	repo := memory.NewSeeded()
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username: "legacy",
		Password: "plain-text-password",
		Role:     "operator",
		Active:   true,
	}); err != nil {
		t.Fatalf("seed legacy user: %v", err)
	}

	auth := NewAuthManager("test-secret-key", time.Hour, "123456", repo)

	if _, err := auth.Login(domain.LoginRequest{Username: "legacy", Password: "plain-text-password"}); err != nil {
		t.Fatalf("legacy login failed: %v", err)
	}

	stored, err := repo.GetUser(context.Background(), "legacy")
	if err != nil {
		t.Fatalf("get legacy user: %v", err)
	}
	if !strings.HasPrefix(stored.Password, "$2") {
		t.Fatalf("expected stored password to be upgraded to bcrypt, got %q", stored.Password)
	}
}
