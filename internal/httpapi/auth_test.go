package httpapi

import (
	"strings"
	"testing"
	"time"

	"pustaka/backend/internal/domain"
	"pustaka/backend/internal/store/memory"
)

func TestTokenRoundTrip(t *testing.T) {
	auth := NewAuthManager("roundtrip-secret", time.Hour, "123456", memory.NewSeeded())

	resp, err := auth.Login(domain.LoginRequest{Username: "Admin", Password: "admin123"})
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

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager("secret-one", time.Hour, "", nil)
	verifier := NewAuthManager("secret-two", time.Hour, "", nil)

	token, err := issuer.sign("admin", "admin", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := verifier.ParseToken(token); err == nil {
		t.Fatalf("expected token from foreign secret to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := NewAuthManager("expiry-secret", time.Hour, "", nil)

	token, err := auth.sign("staff", "staff", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestLoginRejectsUnknownCredentials(t *testing.T) {
	repo := memory.NewSeeded()
	auth := NewAuthManager("creds-secret", time.Hour, "", repo)

	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "not-the-password"}); err == nil {
		t.Fatalf("expected bad password to fail")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "nobody", Password: "admin123"}); err == nil {
		t.Fatalf("expected unknown user to fail")
	}
}

func TestValidateManagerPIN(t *testing.T) {
	auth := NewAuthManager("pin-secret", time.Hour, "765432", nil)

	if !auth.ValidateManagerPIN("765432") {
		t.Fatalf("expected configured pin to validate")
	}
	if auth.ValidateManagerPIN("111111") {
		t.Fatalf("expected wrong pin to fail")
	}
	if auth.ValidateManagerPIN("") {
		t.Fatalf("expected empty pin to fail")
	}
	if auth.ValidateManagerPIN(" 765432 ") != true {
		t.Fatalf("expected surrounding whitespace to be trimmed")
	}
}

func TestCreateStaffValidation(t *testing.T) {
	auth := NewAuthManager("staff-secret", time.Hour, "", memory.NewSeeded())

	cases := []struct {
		name string
		req  domain.StaffCreateRequest
		want string
	}{
		{"short username", domain.StaffCreateRequest{Username: "ab", Password: "secret123"}, "at least 4 characters"},
		{"username with space", domain.StaffCreateRequest{Username: "two words", Password: "secret123"}, "spaces"},
		{"short password", domain.StaffCreateRequest{Username: "valid", Password: "abc"}, "at least 6 characters"},
		{"existing username", domain.StaffCreateRequest{Username: "staff", Password: "secret123"}, "already exists"},
	}
	for _, tc := range cases {
		_, err := auth.CreateStaff(tc.req)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}

	staff, err := auth.CreateStaff(domain.StaffCreateRequest{Username: "Madhav", Password: "secret123"})
	if err != nil {
		t.Fatalf("valid create failed: %v", err)
	}
	if staff.Username != "madhav" || staff.Role != "staff" || !staff.Active {
		t.Fatalf("unexpected staff user: %+v", staff)
	}

	if _, err := auth.Login(domain.LoginRequest{Username: "madhav", Password: "secret123"}); err != nil {
		t.Fatalf("new staff login failed: %v", err)
	}
}
