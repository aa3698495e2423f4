// Package handler exposes the profile lifecycle over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"referral/internal/accounts"
	"referral/internal/profile/models"
	"referral/internal/profile/service"
	id "referral/pkg/domain"
	dErrors "referral/pkg/domain-errors"
	"referral/pkg/platform/httputil"
	pstrings "referral/pkg/platform/strings"
	"referral/pkg/requestcontext"
)

// Service defines the profile operations the handler needs.
type Service interface {
	EnsureProfile(ctx context.Context, accountID id.AccountID, displayName string, opts ...service.EnsureOption) (*models.Profile, bool, error)
	GetProfile(ctx context.Context, accountID id.AccountID) (*models.Profile, error)
	RenameProfile(ctx context.Context, accountID id.AccountID, newName string) (*models.Profile, error)
	Redeem(ctx context.Context, accountID id.AccountID, rawCode string) (*models.RedemptionResult, error)
	ListReferrals(ctx context.Context, accountID id.AccountID) ([]*models.Profile, error)
	ReferralStats(ctx context.Context, accountIDs []id.AccountID) (map[id.AccountID]int, error)
}

// Handler handles profile and referral endpoints.
type Handler struct {
	profiles  Service
	directory accounts.Directory
	logger    *slog.Logger
}

// New creates a profile Handler.
func New(profiles Service, directory accounts.Directory, logger *slog.Logger) *Handler {
	return &Handler{
		profiles:  profiles,
		directory: directory,
		logger:    logger,
	}
}

// Register mounts the routes on r. Authentication is applied by the caller.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/profile", func(r chi.Router) {
		r.Put("/", h.handleEnsureProfile)
		r.Get("/", h.handleGetProfile)
		r.Patch("/", h.handleRenameProfile)
		r.Post("/redeem", h.handleRedeem)
		r.Get("/referrals", h.handleListReferrals)
	})
	r.Get("/v1/referrals/stats", h.handleReferralStats)
}

func (h *Handler) handleEnsureProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID, ok := h.currentAccount(ctx, w)
	if !ok {
		return
	}

	var req EnsureProfileRequest
	if !h.decode(ctx, w, r, &req) {
		return
	}

	var opts []service.EnsureOption
	if req.ReferralCode != "" {
		opts = append(opts, service.WithReferralCode(req.ReferralCode))
	}
	profile, created, err := h.profiles.EnsureProfile(ctx, accountID, req.DisplayName, opts...)
	if err != nil {
		h.writeError(ctx, w, err, "failed to ensure profile")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, toProfileResponse(profile))
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID, ok := h.currentAccount(ctx, w)
	if !ok {
		return
	}

	profile, err := h.profiles.GetProfile(ctx, accountID)
	if err != nil {
		h.writeError(ctx, w, err, "failed to get profile")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toProfileResponse(profile))
}

func (h *Handler) handleRenameProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID, ok := h.currentAccount(ctx, w)
	if !ok {
		return
	}

	var req RenameProfileRequest
	if !h.decode(ctx, w, r, &req) {
		return
	}

	profile, err := h.profiles.RenameProfile(ctx, accountID, req.DisplayName)
	if err != nil {
		h.writeError(ctx, w, err, "failed to rename profile")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toProfileResponse(profile))
}

func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID, ok := h.currentAccount(ctx, w)
	if !ok {
		return
	}

	var req RedeemRequest
	if !h.decode(ctx, w, r, &req) {
		return
	}

	result, err := h.profiles.Redeem(ctx, accountID, req.Code)
	if err != nil {
		h.writeError(ctx, w, err, "failed to redeem referral code")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRedemptionResponse(result))
}

func (h *Handler) handleListReferrals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID, ok := h.currentAccount(ctx, w)
	if !ok {
		return
	}

	referrals, err := h.profiles.ListReferrals(ctx, accountID)
	if err != nil {
		h.writeError(ctx, w, err, "failed to list referrals")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toReferralsResponse(referrals))
}

// handleReferralStats accepts repeated or comma-separated account_id values.
func (h *Handler) handleReferralStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.currentAccount(ctx, w); !ok {
		return
	}

	ids, err := parseAccountIDs(r.URL.Query()["account_id"])
	if err != nil {
		h.writeError(ctx, w, err, "invalid account ids")
		return
	}
	counts, err := h.profiles.ReferralStats(ctx, ids)
	if err != nil {
		h.writeError(ctx, w, err, "failed to load referral stats")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toReferralStatsResponse(ids, counts))
}

func (h *Handler) currentAccount(ctx context.Context, w http.ResponseWriter) (id.AccountID, bool) {
	accountID, err := h.directory.CurrentAccountID(ctx)
	if err != nil {
		h.writeError(ctx, w, err, "no authenticated account")
		return "", false
	}
	return accountID, true
}

type validatable interface {
	Validate() error
}

func (h *Handler) decode(ctx context.Context, w http.ResponseWriter, r *http.Request, req validatable) bool {
	if err := httputil.DecodeJSON(r, req); err != nil {
		h.writeError(ctx, w, err, "invalid request body")
		return false
	}
	if err := req.Validate(); err != nil {
		h.writeError(ctx, w, err, "invalid request")
		return false
	}
	return true
}

// writeError logs at warn for client errors and error for server errors.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	status := httputil.StatusFor(dErrors.CodeOf(err))
	args := []any{
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, args...)
	} else {
		h.logger.WarnContext(ctx, msg, args...)
	}
	httputil.WriteError(w, err)
}

func parseAccountIDs(values []string) ([]id.AccountID, error) {
	raw := pstrings.SplitList(values, ",")
	if len(raw) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "at least one account_id is required")
	}
	ids := make([]id.AccountID, 0, len(raw))
	for _, value := range raw {
		accountID, err := id.ParseAccountID(value)
		if err != nil {
			return nil, err
		}
		ids = append(ids, accountID)
	}
	return ids, nil
}
