package handler

import (
	"time"

	"referral/internal/profile/models"
	id "referral/pkg/domain"
)

type ProfileResponse struct {
	AccountID    string    `json:"account_id"`
	DisplayName  string    `json:"display_name"`
	ReferralCode string    `json:"referral_code"`
	ReferredBy   string    `json:"referred_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ReferrerResponse struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
}

type RedemptionResponse struct {
	Profile    ProfileResponse  `json:"profile"`
	Referrer   ReferrerResponse `json:"referrer"`
	RedeemedAt time.Time        `json:"redeemed_at"`
}

type ReferralEntry struct {
	AccountID   string    `json:"account_id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

type ReferralsResponse struct {
	Count     int             `json:"count"`
	Referrals []ReferralEntry `json:"referrals"`
}

type ReferralCount struct {
	AccountID string `json:"account_id"`
	Referrals int    `json:"referrals"`
}

type ReferralStatsResponse struct {
	Accounts []ReferralCount `json:"accounts"`
}

func toProfileResponse(p *models.Profile) ProfileResponse {
	resp := ProfileResponse{
		AccountID:    p.AccountID.String(),
		DisplayName:  p.DisplayName,
		ReferralCode: p.ReferralCode.String(),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if p.ReferredBy != nil {
		resp.ReferredBy = p.ReferredBy.String()
	}
	return resp
}

func toRedemptionResponse(r *models.RedemptionResult) RedemptionResponse {
	return RedemptionResponse{
		Profile: toProfileResponse(r.Profile),
		Referrer: ReferrerResponse{
			AccountID:   r.ReferrerAccountID.String(),
			DisplayName: r.ReferrerDisplayName,
		},
		RedeemedAt: r.RedeemedAt,
	}
}

func toReferralsResponse(referrals []*models.Profile) ReferralsResponse {
	entries := make([]ReferralEntry, 0, len(referrals))
	for _, p := range referrals {
		entries = append(entries, ReferralEntry{
			AccountID:   p.AccountID.String(),
			DisplayName: p.DisplayName,
			JoinedAt:    p.CreatedAt,
		})
	}
	return ReferralsResponse{Count: len(entries), Referrals: entries}
}

// toReferralStatsResponse keeps the caller's ordering.
func toReferralStatsResponse(ids []id.AccountID, counts map[id.AccountID]int) ReferralStatsResponse {
	out := make([]ReferralCount, 0, len(ids))
	for _, accountID := range ids {
		out = append(out, ReferralCount{AccountID: accountID.String(), Referrals: counts[accountID]})
	}
	return ReferralStatsResponse{Accounts: out}
}
