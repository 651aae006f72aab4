package ledger

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/punchamoorthee/promoledger/internal/domain"
)

func TestValidateCode(t *testing.T) {
	cases := []struct {
		code string
		ok   bool
	}{
		{"ABC123", true},
		{"Z", true},
		{"0000", true},
		{"", false},
		{"abc123", false},
		{"ABc123", false},
		{"ABC 123", false},
		{"ABC-123", false},
		{"ABC_123", false},
		{"ÄBC", false},
	}
	for _, tc := range cases {
		got, err := ValidateCode(tc.code)
		if tc.ok {
			if err != nil {
				t.Fatalf("ValidateCode(%q) unexpected error: %v", tc.code, err)
			}
			if got != tc.code {
				t.Fatalf("ValidateCode(%q) = %q", tc.code, got)
			}
			continue
		}
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("ValidateCode(%q) expected validation error, got %v", tc.code, err)
		}
	}
}

func TestIsUniqueIsCaseSensitive(t *testing.T) {
	existing := []string{"ABC123", "XYZ"}
	if IsUnique("ABC123", existing) {
		t.Fatalf("expected existing code to be rejected")
	}
	if !IsUnique("abc123", existing) {
		t.Fatalf("expected case-different code to be unique")
	}
	if !IsUnique("NEW1", nil) {
		t.Fatalf("expected code to be unique against empty set")
	}
}

func TestReferralTokenRoundTrip(t *testing.T) {
	for _, code := range []string{"A", "ABC123", "ZZ9", "1234567890ABCDEF"} {
		token := EncodeReferralToken(code)
		got, err := DecodeReferralToken(token)
		if err != nil {
			t.Fatalf("decode %q: %v", code, err)
		}
		if got != code {
			t.Fatalf("round trip: got %q want %q", got, code)
		}
	}
}

func TestReferralTokenFormat(t *testing.T) {
	want := base64.StdEncoding.EncodeToString([]byte("ABC123|321CBA"))
	if got := EncodeReferralToken("ABC123"); got != want {
		t.Fatalf("token = %q, want %q", got, want)
	}
}

func TestDecodeReferralTokenRejectsTampering(t *testing.T) {
	enc := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }
	cases := map[string]string{
		"not base64":       "%%%",
		"no separator":     enc("ABC123"),
		"bad checksum":     enc("ABC123|ABC123"),
		"swapped code":     enc("XYZ|321CBA"),
		"extra separator":  enc("AB|BA|X"),
		"lowercase code":   enc("abc|cba"),
		"empty both sides": enc("|"),
	}
	for name, token := range cases {
		if _, err := DecodeReferralToken(token); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}
