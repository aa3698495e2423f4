// Package service implements the profile lifecycle: lazily creating one
// profile per account, renaming it, and redeeming referral codes.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"referral/internal/profile/metrics"
	"referral/internal/profile/models"
	"referral/internal/profile/store"
	id "referral/pkg/domain"
	dErrors "referral/pkg/domain-errors"
	audit "referral/pkg/platform/audit"
	"referral/pkg/platform/sentinel"
	"referral/pkg/requestcontext"
)

// MaxStatsAccounts bounds a single ReferralStats request.
const MaxStatsAccounts = 100

type Store interface {
	FindByAccountID(ctx context.Context, accountID id.AccountID) (*models.Profile, error)
	Create(ctx context.Context, profile *models.Profile) error
	UpdateDisplayName(ctx context.Context, accountID id.AccountID, name string, now time.Time) (*models.Profile, error)
	ListReferrals(ctx context.Context, referrerID id.AccountID) ([]*models.Profile, error)
	CountReferrals(ctx context.Context, referrerIDs []id.AccountID) (map[id.AccountID]int, error)
}

type CodeGenerator interface {
	Generate(ctx context.Context, budget int) (code models.ReferralCode, drawn int, err error)
	MaxAttempts() int
}

type Redeemer interface {
	Redeem(ctx context.Context, redeemerID id.AccountID, rawCode string) (*models.RedemptionResult, error)
	ResolveCode(ctx context.Context, code models.ReferralCode) (*models.Profile, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates the profile lifecycle.
type Service struct {
	store          Store
	codes          CodeGenerator
	redeemer       Redeemer
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New constructs a Service.
func New(store Store, codes CodeGenerator, redeemer Redeemer, opts ...Option) *Service {
	s := &Service{
		store:    store,
		codes:    codes,
		redeemer: redeemer,
		tracer:   otel.Tracer("referral/internal/profile/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureOption adjusts profile creation. Options are ignored when the
// profile already exists.
type EnsureOption func(*ensureConfig)

type ensureConfig struct {
	referralCode string
}

// WithReferralCode records the owner of code as the new profile's referrer.
func WithReferralCode(code string) EnsureOption {
	return func(c *ensureConfig) {
		c.referralCode = code
	}
}

// EnsureProfile returns the account's profile, creating it on first call.
// created reports whether this call created it. An existing profile is
// returned unchanged regardless of displayName.
//
// Codes drawn by the generator and codes lost at insert spend one budget of
// MaxAttempts draws.
func (s *Service) EnsureProfile(ctx context.Context, accountID id.AccountID, displayName string, opts ...EnsureOption) (profile *models.Profile, created bool, err error) {
	ctx, span := s.tracer.Start(ctx, "profile.ensure", trace.WithAttributes(attribute.String("account_id", accountID.String())))
	defer func() { endSpan(span, err) }()
	if s.metrics != nil {
		defer s.metrics.ObserveEnsure(time.Now())
	}

	if accountID.IsNil() {
		return nil, false, dErrors.New(dErrors.CodeInvalidInput, "account id is required")
	}
	existing, err := s.findProfile(ctx, accountID)
	if err == nil {
		return existing, false, nil
	}
	if !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil, false, err
	}

	name, err := models.NormalizeDisplayName(displayName)
	if err != nil {
		return nil, false, err
	}

	cfg := ensureConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	var referrer *models.Profile
	if cfg.referralCode != "" {
		referrer, err = s.redeemer.ResolveCode(ctx, models.NormalizeCode(cfg.referralCode))
		if err != nil {
			return nil, false, err
		}
	}

	now := requestcontext.Now(ctx)
	remaining := s.codes.MaxAttempts()
	for remaining > 0 {
		code, drawn, err := s.codes.Generate(ctx, remaining)
		if err != nil {
			return nil, false, err
		}
		remaining -= max(drawn, 1)
		p, err := models.NewProfile(accountID, name, code, now)
		if err != nil {
			return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build profile")
		}
		if referrer != nil {
			ref := referrer.AccountID
			p.ReferredBy = &ref
		}

		err = s.store.Create(ctx, p)
		switch {
		case err == nil:
			s.recordCreated(ctx, p, referrer)
			return p, true, nil
		case errors.Is(err, store.ErrAccountExists):
			// Lost the race to a concurrent first request for the same account.
			winner, findErr := s.findProfile(ctx, accountID)
			if findErr != nil {
				return nil, false, findErr
			}
			return winner, false, nil
		case errors.Is(err, store.ErrCodeTaken):
			if s.metrics != nil {
				s.metrics.IncrementCodeCollisions()
			}
			s.logDebug(ctx, "referral code taken at insert, regenerating", "remaining_attempts", remaining)
			continue
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, false, dErrors.New(dErrors.CodeReferralCodeNotFound, "referral code not found")
		default:
			return nil, false, translateStoreErr(err, "failed to create profile")
		}
	}
	if s.metrics != nil {
		s.metrics.IncrementCodesExhausted()
	}
	return nil, false, dErrors.New(dErrors.CodeExhaustedRetries, "could not allocate a unique referral code")
}

// GetProfile returns the account's profile.
func (s *Service) GetProfile(ctx context.Context, accountID id.AccountID) (profile *models.Profile, err error) {
	ctx, span := s.tracer.Start(ctx, "profile.get", trace.WithAttributes(attribute.String("account_id", accountID.String())))
	defer func() { endSpan(span, err) }()

	return s.findProfile(ctx, accountID)
}

// RenameProfile replaces the display name. The referral code and referrer
// are untouched.
func (s *Service) RenameProfile(ctx context.Context, accountID id.AccountID, newName string) (profile *models.Profile, err error) {
	ctx, span := s.tracer.Start(ctx, "profile.rename", trace.WithAttributes(attribute.String("account_id", accountID.String())))
	defer func() { endSpan(span, err) }()

	name, err := models.NormalizeDisplayName(newName)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateDisplayName(ctx, accountID, name, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
		}
		return nil, translateStoreErr(err, "failed to rename profile")
	}
	s.logAudit(ctx, audit.EventProfileRenamed, accountID, "", "")
	return updated, nil
}

// Redeem links the account's profile to the owner of rawCode.
func (s *Service) Redeem(ctx context.Context, accountID id.AccountID, rawCode string) (result *models.RedemptionResult, err error) {
	ctx, span := s.tracer.Start(ctx, "profile.redeem", trace.WithAttributes(attribute.String("account_id", accountID.String())))
	defer func() { endSpan(span, err) }()
	if s.metrics != nil {
		defer s.metrics.ObserveRedeem(time.Now())
	}

	result, err = s.redeemer.Redeem(ctx, accountID, rawCode)
	if err != nil {
		code := dErrors.CodeOf(err)
		s.incrementRedemption(string(code))
		switch code {
		case dErrors.CodeSelfReferral, dErrors.CodeAlreadyLinked, dErrors.CodeReferralCodeNotFound:
			s.logAudit(ctx, audit.EventRedemptionRejected, accountID, "", string(code))
		}
		return nil, err
	}
	s.incrementRedemption("linked")
	span.SetAttributes(attribute.String("referrer_account_id", result.ReferrerAccountID.String()))
	s.logAudit(ctx, audit.EventReferralRedeemed, accountID, result.ReferrerAccountID.String(), "")
	return result, nil
}

// ListReferrals returns the profiles that name accountID as their referrer,
// oldest first.
func (s *Service) ListReferrals(ctx context.Context, accountID id.AccountID) (referrals []*models.Profile, err error) {
	ctx, span := s.tracer.Start(ctx, "profile.list_referrals", trace.WithAttributes(attribute.String("account_id", accountID.String())))
	defer func() { endSpan(span, err) }()

	if _, err := s.findProfile(ctx, accountID); err != nil {
		return nil, err
	}
	referrals, err = s.store.ListReferrals(ctx, accountID)
	if err != nil {
		return nil, translateStoreErr(err, "failed to list referrals")
	}
	if referrals == nil {
		referrals = []*models.Profile{}
	}
	return referrals, nil
}

// ReferralStats returns how many profiles each account referred. Counts are
// derived from links at query time; unknown accounts count zero.
func (s *Service) ReferralStats(ctx context.Context, accountIDs []id.AccountID) (counts map[id.AccountID]int, err error) {
	ctx, span := s.tracer.Start(ctx, "profile.referral_stats", trace.WithAttributes(attribute.Int("accounts", len(accountIDs))))
	defer func() { endSpan(span, err) }()

	if len(accountIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "at least one account id is required")
	}
	if len(accountIDs) > MaxStatsAccounts {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "too many account ids")
	}
	counts, err = s.store.CountReferrals(ctx, accountIDs)
	if err != nil {
		return nil, translateStoreErr(err, "failed to count referrals")
	}
	return counts, nil
}

func (s *Service) findProfile(ctx context.Context, accountID id.AccountID) (*models.Profile, error) {
	p, err := s.store.FindByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
		}
		return nil, translateStoreErr(err, "failed to load profile")
	}
	return p, nil
}

func (s *Service) recordCreated(ctx context.Context, p *models.Profile, referrer *models.Profile) {
	if s.metrics != nil {
		s.metrics.IncrementProfilesCreated()
	}
	s.logAudit(ctx, audit.EventProfileCreated, p.AccountID, "", "")
	if referrer != nil {
		s.incrementRedemption("linked")
		s.logAudit(ctx, audit.EventReferralRedeemed, p.AccountID, referrer.AccountID.String(), "at_creation")
	}
}

func (s *Service) incrementRedemption(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementRedemption(outcome)
	}
}

// logAudit writes an audit log line and hands the event to the publisher.
// Audit delivery is best-effort and never fails the operation.
func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, accountID id.AccountID, subject, reason string) {
	requestID := requestcontext.RequestID(ctx)
	if s.logger != nil {
		args := []any{
			"event", string(event),
			"log_type", "audit",
			"account_id", accountID.String(),
		}
		if subject != "" {
			args = append(args, "subject", subject)
		}
		if reason != "" {
			args = append(args, "reason", reason)
		}
		if requestID != "" {
			args = append(args, "request_id", requestID)
		}
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	var traceID string
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		traceID = sc.TraceID().String()
	}
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		Category:  event.Category(),
		Timestamp: requestcontext.Now(ctx),
		AccountID: accountID,
		Action:    string(event),
		Subject:   subject,
		Reason:    reason,
		RequestID: requestID,
		ClientIP:  requestcontext.ClientIP(ctx),
		Device:    requestcontext.Device(ctx),
		TraceID:   traceID,
	})
}

func (s *Service) logDebug(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	s.logger.DebugContext(ctx, msg, args...)
}

func translateStoreErr(err error, msg string) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "request cancelled")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "profile store unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}
