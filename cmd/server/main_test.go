package main

import (
	"strings"
	"testing"

	"pustaka/backend/internal/config"
)

func TestValidateSecurityConfig(t *testing.T) {
	strongSecret := strings.Repeat("s", 32)

	cases := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{"valid", config.Config{AuthSecret: strongSecret, ManagerPIN: "294817"}, false},
		{"missing secret", config.Config{ManagerPIN: "294817"}, true},
		{"short secret", config.Config{AuthSecret: "short", ManagerPIN: "294817"}, true},
		{"missing pin", config.Config{AuthSecret: strongSecret}, true},
		{"short pin", config.Config{AuthSecret: strongSecret, ManagerPIN: "1234"}, true},
		{"weak pin", config.Config{AuthSecret: strongSecret, ManagerPIN: "123456"}, true},
	}
	for _, tc := range cases {
		err := validateSecurityConfig(tc.cfg)
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestValidatePINStrength(t *testing.T) {
	for _, pin := range []string{"123456", "654321", "000000", "999999", "121212", "112233"} {
		if err := validatePINStrength(pin); err == nil {
			t.Fatalf("expected known-weak pin %s to be rejected", pin)
		}
	}
	if err := validatePINStrength("777777"); err == nil {
		t.Fatalf("expected all-same-digit pin to be rejected")
	}
	if err := validatePINStrength("345678"); err == nil {
		t.Fatalf("expected ascending pin to be rejected")
	}
	if err := validatePINStrength("876543"); err == nil {
		t.Fatalf("expected descending pin to be rejected")
	}
	for _, pin := range []string{"294817", "730194", "508263"} {
		if err := validatePINStrength(pin); err != nil {
			t.Fatalf("expected pin %s to pass, got %v", pin, err)
		}
	}
}
