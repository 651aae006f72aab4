package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/punchamoorthee/promoledger/internal/domain"
)

func TestValidatePassword(t *testing.T) {
	for _, pw := range []string{"", "12345"} {
		if err := ValidatePassword(pw); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("ValidatePassword(%q) expected validation error, got %v", pw, err)
		}
	}
	if err := ValidatePassword("123456"); err != nil {
		t.Fatalf("six characters should pass: %v", err)
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := CheckPassword(hash, "secret1"); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := CheckPassword(hash, "secret2"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour)
	token, expires, err := iss.Issue(domain.Profile{ID: "user-1", Email: "a@b.co", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expiry should be in the future")
	}
	actor, err := iss.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if actor.UserID != "user-1" || !actor.IsAdmin() || actor.Email != "a@b.co" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestTokenRejections(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour)
	token, _, _ := iss.Issue(domain.Profile{ID: "user-1", Role: domain.RoleUser})

	other := NewIssuer("other-secret", time.Hour)
	if _, err := other.Verify(token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("wrong secret should be rejected, got %v", err)
	}

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	if _, err := iss.Verify(tampered); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("tampered token should be rejected, got %v", err)
	}

	expired := NewIssuer("test-secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _, _ := expired.Issue(domain.Profile{ID: "user-1"})
	if _, err := iss.Verify(old); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expired token should be rejected, got %v", err)
	}
}
