package ledger

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/punchamoorthee/promoledger/internal/domain"
)

var promoCodePattern = regexp.MustCompile(`^[A-Z0-9]+$`)

// ValidateCode accepts only non-empty uppercase alphanumeric codes.
func ValidateCode(code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("%w: promo code is required", domain.ErrValidation)
	}
	if !promoCodePattern.MatchString(code) {
		return "", fmt.Errorf("%w: promo code must contain only uppercase letters and numbers", domain.ErrValidation)
	}
	return code, nil
}

// IsUnique reports whether code is absent from existing. Comparison is exact
// and case-sensitive.
func IsUnique(code string, existing []string) bool {
	for _, c := range existing {
		if c == code {
			return false
		}
	}
	return true
}

const tokenSeparator = "|"

// EncodeReferralToken builds the shareable link token base64(code|reverse(code)).
// The reversed half is a tamper check for copy-pasted links, not a signature.
func EncodeReferralToken(code string) string {
	return base64.StdEncoding.EncodeToString([]byte(code + tokenSeparator + reverse(code)))
}

// DecodeReferralToken returns the promo code carried by token after checking
// the reversed half and the code format.
func DecodeReferralToken(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: referral token is not valid base64", domain.ErrValidation)
	}
	code, checksum, ok := strings.Cut(string(raw), tokenSeparator)
	if !ok {
		return "", fmt.Errorf("%w: referral token is malformed", domain.ErrValidation)
	}
	if checksum != reverse(code) {
		return "", fmt.Errorf("%w: referral token checksum mismatch", domain.ErrValidation)
	}
	return ValidateCode(code)
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
