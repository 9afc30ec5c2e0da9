package main

import (
	"testing"

	"salonpos/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", CronSecret: "0123456789abcdef0123456789abcdef"})
	if err == nil {
		t.Fatalf("expected weak auth secret to be rejected")
	}

	err = validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", CronSecret: "cron"})
	if err == nil {
		t.Fatalf("expected weak cron secret to be rejected")
	}
}

func TestValidateSecurityConfigRejectsSharedSecret(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"
	if err := validateSecurityConfig(config.Config{AuthSecret: secret, CronSecret: secret}); err == nil {
		t.Fatalf("expected reused secret to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret: "0123456789abcdef0123456789abcdef",
		CronSecret: "$2a$10$abcdefghijklmnopqrstuu8bCQ0m3RNxeF9xq2U4rM1e6iVdb0F7W",
	})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}
