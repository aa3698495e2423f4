package models

import (
	"strings"
	"time"
	"unicode/utf8"

	id "referral/pkg/domain"
	dErrors "referral/pkg/domain-errors"
)

// MaxDisplayNameLength bounds display names in runes.
const MaxDisplayNameLength = 64

// Profile is the application-owned record for an account's display identity
// and referral state.
//
// Invariants:
//   - AccountID is non-empty, immutable and unique (one profile per account)
//   - DisplayName is non-empty after trimming and at most 64 runes
//   - ReferralCode is immutable and unique across every profile ever created
//   - ReferredBy, when set, names another account and is never overwritten
//   - CreatedAt is immutable after construction
//
// ReferredBy is a weak back-reference: the referrer's profile is not owned
// by this one and its absence never affects this profile.
type Profile struct {
	AccountID    id.AccountID  `json:"account_id"`
	DisplayName  string        `json:"display_name"`
	ReferralCode ReferralCode  `json:"referral_code"`
	ReferredBy   *id.AccountID `json:"referred_by,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NewProfile constructs an unlinked profile after validating its invariants.
func NewProfile(accountID id.AccountID, displayName string, code ReferralCode, now time.Time) (*Profile, error) {
	if accountID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "account id cannot be empty")
	}
	name, err := NormalizeDisplayName(displayName)
	if err != nil {
		return nil, err
	}
	if !code.Valid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "referral code is malformed")
	}
	return &Profile{
		AccountID:    accountID,
		DisplayName:  name,
		ReferralCode: code,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeDisplayName trims and validates a display name.
func NormalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "display name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "display name must be 64 characters or less")
	}
	return name, nil
}

// IsLinked reports whether the profile has recorded a referrer.
func (p *Profile) IsLinked() bool {
	return p.ReferredBy != nil
}

// CanLinkTo checks whether referrer may be recorded as this profile's referrer.
// Use with ApplyLink inside store callbacks that hold the record lock.
func (p *Profile) CanLinkTo(referrer id.AccountID) error {
	if referrer == p.AccountID {
		return dErrors.New(dErrors.CodeSelfReferral, "a profile cannot refer itself")
	}
	if p.IsLinked() {
		return dErrors.New(dErrors.CodeAlreadyLinked, "profile already has a referrer")
	}
	return nil
}

// ApplyLink records referrer. Call CanLinkTo first.
func (p *Profile) ApplyLink(referrer id.AccountID, now time.Time) {
	ref := referrer
	p.ReferredBy = &ref
	p.UpdatedAt = now
}

// ApplyRename replaces the display name. The caller validates the name.
func (p *Profile) ApplyRename(name string, now time.Time) {
	p.DisplayName = name
	p.UpdatedAt = now
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	if p.ReferredBy != nil {
		ref := *p.ReferredBy
		c.ReferredBy = &ref
	}
	return &c
}
