// Package redemption links a redeeming profile to the owner of a referral
// code. A link is write-once; the store arbitrates concurrent attempts.
package redemption

import (
	"context"
	"errors"
	"time"

	"referral/internal/profile/models"
	"referral/internal/profile/store"
	id "referral/pkg/domain"
	dErrors "referral/pkg/domain-errors"
	"referral/pkg/platform/sentinel"
	"referral/pkg/requestcontext"
)

// Store is the subset of the profile store the engine reads and writes.
type Store interface {
	FindByAccountID(ctx context.Context, accountID id.AccountID) (*models.Profile, error)
	FindByCode(ctx context.Context, code models.ReferralCode) (*models.Profile, error)
	SetReferredBy(ctx context.Context, accountID, referrerID id.AccountID, now time.Time) (*models.Profile, error)
}

// Engine validates and applies redemptions.
type Engine struct {
	store Store
}

// New creates a redemption engine.
func New(store Store) *Engine {
	return &Engine{store: store}
}

// Redeem records the owner of rawCode as the redeemer's referrer.
//
// Checks run in this order: code format and lookup, self-referral, redeemer
// existence, existing link. A link lost to a concurrent redemption is
// reported as already_linked and never retried.
func (e *Engine) Redeem(ctx context.Context, redeemerID id.AccountID, rawCode string) (*models.RedemptionResult, error) {
	code := models.NormalizeCode(rawCode)
	if !code.Valid() {
		return nil, dErrors.New(dErrors.CodeReferralCodeNotFound, "referral code not found")
	}

	owner, err := e.ResolveCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if owner.AccountID == redeemerID {
		return nil, dErrors.New(dErrors.CodeSelfReferral, "cannot redeem your own referral code")
	}

	redeemer, err := e.store.FindByAccountID(ctx, redeemerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
	}
	if err := redeemer.CanLinkTo(owner.AccountID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	linked, err := e.store.SetReferredBy(ctx, redeemerID, owner.AccountID, now)
	if err != nil {
		return nil, translateLinkErr(err)
	}

	return &models.RedemptionResult{
		Profile:             linked,
		ReferrerAccountID:   owner.AccountID,
		ReferrerDisplayName: owner.DisplayName,
		RedeemedAt:          now,
	}, nil
}

// ResolveCode returns the profile that owns code.
func (e *Engine) ResolveCode(ctx context.Context, code models.ReferralCode) (*models.Profile, error) {
	if !code.Valid() {
		return nil, dErrors.New(dErrors.CodeReferralCodeNotFound, "referral code not found")
	}
	owner, err := e.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeReferralCodeNotFound, "referral code not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve referral code")
	}
	return owner, nil
}

func translateLinkErr(err error) error {
	switch {
	case errors.Is(err, store.ErrAlreadyLinked):
		return dErrors.New(dErrors.CodeAlreadyLinked, "profile already has a referrer")
	case errors.Is(err, store.ErrSelfReferral):
		return dErrors.New(dErrors.CodeSelfReferral, "cannot redeem your own referral code")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "profile not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "redemption cancelled")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record referral")
	}
}
