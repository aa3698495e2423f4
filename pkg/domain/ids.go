package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	dErrors "referral/pkg/domain-errors"
)

// MaxAccountIDLength bounds identifiers accepted from the account directory.
const MaxAccountIDLength = 128

// AccountID is the opaque identifier the account directory assigns to an
// authenticated user. This service never interprets its contents.
type AccountID string

// ParseAccountID validates an identifier at a trust boundary.
// It must be valid UTF-8, non-empty, at most MaxAccountIDLength bytes and
// free of whitespace and control characters.
func ParseAccountID(s string) (AccountID, error) {
	if s == "" || strings.TrimSpace(s) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id is required")
	}
	if len(s) > MaxAccountIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id is too long")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id must be valid utf-8")
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "account id contains invalid characters")
		}
	}
	return AccountID(s), nil
}

func (id AccountID) String() string {
	return string(id)
}

// IsNil reports whether the id is unset.
func (id AccountID) IsNil() bool {
	return id == ""
}
