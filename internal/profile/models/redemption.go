package models

import (
	"time"

	id "referral/pkg/domain"
)

// RedemptionResult describes a successful redemption from the redeemer's side.
// The referrer's profile is never modified by a redemption.
type RedemptionResult struct {
	Profile             *Profile     `json:"profile"`
	ReferrerAccountID   id.AccountID `json:"referrer_account_id"`
	ReferrerDisplayName string       `json:"referrer_display_name"`
	RedeemedAt          time.Time    `json:"redeemed_at"`
}
