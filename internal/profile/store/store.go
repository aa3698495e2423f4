// Package store holds the facts every profile store backend reports.
// Backends live in subpackages; the service declares the interface it needs.
package store

import (
	"fmt"

	"referral/pkg/platform/sentinel"
)

// Create and SetReferredBy report these. All conflicts wrap sentinel.ErrConflict
// so callers that only care about "someone else wrote first" can test for that.
var (
	ErrAccountExists = fmt.Errorf("profile already exists for account: %w", sentinel.ErrConflict)
	ErrCodeTaken     = fmt.Errorf("referral code already assigned: %w", sentinel.ErrConflict)
	ErrAlreadyLinked = fmt.Errorf("profile already has a referrer: %w", sentinel.ErrConflict)
	ErrSelfReferral  = fmt.Errorf("profile cannot refer itself: %w", sentinel.ErrInvalidInput)
)
