package key

import (
	"strings"
	"time"
)

const hexDigits = "0123456789abcdef"

// Validate checks whether k may authenticate a request at now.
// A revoked key reports ReasonRevoked even when it has also expired.
// This is a PURE function.
func Validate(k Key, now time.Time) ValidationResult {
	switch {
	case k.RevokedAt != nil:
		return ValidationResult{Reason: ReasonRevoked}
	case k.ExpiresAt != nil && now.After(*k.ExpiresAt):
		return ValidationResult{Reason: ReasonExpired}
	default:
		return ValidationResult{Valid: true, Key: k}
	}
}

// ValidateFormat reports whether rawKey looks like a key issued with
// expectedPrefix and returns its lookup prefix. Anything else is rejected
// before the store is consulted.
// This is a PURE function.
func ValidateFormat(rawKey string, expectedPrefix string) (prefix string, valid bool) {
	body, ok := strings.CutPrefix(rawKey, expectedPrefix)
	if !ok || len(body) != 64 || len(rawKey) < LookupLen {
		return "", false
	}
	if strings.Trim(body, hexDigits) != "" {
		return "", false
	}
	return rawKey[:LookupLen], true
}
