package httpapi

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParseToken(t *testing.T) {
	auth := NewAuthManager("unit-test-secret-unit-test-secret", time.Hour)

	token, expiresAt, err := auth.Issue("maria", RoleManager)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiry, got %s", expiresAt)
	}

	actor, err := auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if actor.Username != "maria" || actor.Role != RoleManager {
		t.Fatalf("unexpected actor %+v", actor)
	}

	other := NewAuthManager("another-secret-another-secret-xx", time.Hour)
	if _, err := other.ParseToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsUnknownRoleAndExpiry(t *testing.T) {
	secret := []byte("unit-test-secret-unit-test-secret")
	auth := NewAuthManager(string(secret), time.Hour)

	sign := func(claims salonClaims) string {
		signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(secret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return signed
	}

	intruder := sign(salonClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "eve", ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour))},
		Role:             "superuser",
	})
	if _, err := auth.ParseToken(intruder); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}

	expired := sign(salonClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "bob", ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(-time.Minute))},
		Role:             RoleCashier,
	})
	if _, err := auth.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}

	noExpiry := sign(salonClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "bob"},
		Role:             RoleCashier,
	})
	if _, err := auth.ParseToken(noExpiry); err == nil {
		t.Fatalf("expected token without expiry to be rejected")
	}

	if _, _, err := auth.Issue("bob", "superuser"); err == nil {
		t.Fatalf("expected issue with unknown role to fail")
	}
}

func TestCronGuardAcceptsPlainOrHashedSecret(t *testing.T) {
	hashed := mustHashSecret(t, "plain-secret")
	guard, err := NewCronGuard(hashed)
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	if !guard.valid("plain-secret") || guard.valid(hashed) || guard.valid("") {
		t.Fatalf("hashed guard accepted the wrong inputs")
	}

	plain, err := NewCronGuard("plain-secret")
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	if !isPasswordHash(string(plain.hash)) {
		t.Fatalf("expected plain secret to be stored hashed")
	}
	if !plain.valid("plain-secret") {
		t.Fatalf("expected plain secret to validate")
	}

	if _, err := NewCronGuard("   "); err == nil {
		t.Fatalf("expected empty secret to fail")
	}
}

func TestAttemptLimiterWindow(t *testing.T) {
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	limiter := newAttemptLimiter(2, time.Minute)
	limiter.now = func() time.Time { return now }

	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatalf("expected first two attempts to pass")
	}
	if limiter.Allow("a") || !limiter.Exhausted("a") {
		t.Fatalf("expected third attempt to be limited")
	}
	if limiter.Exhausted("b") {
		t.Fatalf("limits must be per key")
	}

	now = now.Add(61 * time.Second)
	if limiter.Exhausted("a") || !limiter.Allow("a") {
		t.Fatalf("expected window to reset")
	}
}
