// Package codegen mints referral codes that are unique across every profile
// ever created. Uniqueness is probed against the store before use; the
// store's unique index remains the final arbiter at insert time.
package codegen

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"

	"referral/internal/profile/metrics"
	"referral/internal/profile/models"
	dErrors "referral/pkg/domain-errors"
	"referral/pkg/requestcontext"
)

// DefaultMaxAttempts bounds how many codes are drawn before giving up.
const DefaultMaxAttempts = 5

// acceptBelow is the largest multiple of the alphabet size that fits in a
// byte. Bytes at or above it are discarded so every symbol is equally likely.
const acceptBelow = 256 - 256%len(models.CodeAlphabet)

// CodeChecker reports whether a code is already assigned or retired.
type CodeChecker interface {
	CodeExists(ctx context.Context, code models.ReferralCode) (bool, error)
}

// Generator draws random referral codes and probes them for uniqueness.
type Generator struct {
	checker     CodeChecker
	random      io.Reader
	maxAttempts int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures a Generator.
type Option func(*Generator)

// WithRandom replaces crypto/rand as the entropy source.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) {
		g.random = r
	}
}

// WithMaxAttempts sets the draw budget. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) {
		g.metrics = m
	}
}

// New creates a Generator backed by checker.
func New(checker CodeChecker, opts ...Option) *Generator {
	g := &Generator{
		checker:     checker,
		random:      rand.Reader,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MaxAttempts is the draw budget shared by Generate and by callers that
// retry an insert after losing a code race.
func (g *Generator) MaxAttempts() int {
	return g.maxAttempts
}

// Generate returns a code that was free when probed, drawing at most budget
// codes. A budget outside 1..MaxAttempts is clamped to MaxAttempts. drawn
// reports the draws spent so a caller retrying an insert can pass on what
// remains. A code taken between the probe and the insert surfaces later as a
// store conflict.
func (g *Generator) Generate(ctx context.Context, budget int) (code models.ReferralCode, drawn int, err error) {
	if budget < 1 || budget > g.maxAttempts {
		budget = g.maxAttempts
	}
	for drawn < budget {
		drawn++
		code, err = g.Draw()
		if err != nil {
			return "", drawn, err
		}
		taken, probeErr := g.checker.CodeExists(ctx, code)
		if probeErr != nil {
			return "", drawn, dErrors.Wrap(probeErr, dErrors.CodeInternal, "failed to check referral code")
		}
		if !taken {
			return code, drawn, nil
		}
		g.recordCollision(ctx, drawn)
	}
	if g.metrics != nil {
		g.metrics.IncrementCodesExhausted()
	}
	return "", drawn, ErrExhaustedRetries()
}

// Draw produces one uniformly random code without probing the store.
func (g *Generator) Draw() (models.ReferralCode, error) {
	code := make([]byte, 0, models.CodeLength)
	buf := make([]byte, models.CodeLength*2)
	for len(code) < models.CodeLength {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to read randomness")
		}
		for _, b := range buf {
			if int(b) >= acceptBelow {
				continue
			}
			code = append(code, models.CodeAlphabet[int(b)%len(models.CodeAlphabet)])
			if len(code) == models.CodeLength {
				break
			}
		}
	}
	return models.ReferralCode(code), nil
}

// ErrExhaustedRetries is returned when every drawn code was already taken.
func ErrExhaustedRetries() error {
	return dErrors.New(dErrors.CodeExhaustedRetries, "could not allocate a unique referral code")
}

func (g *Generator) recordCollision(ctx context.Context, attempt int) {
	if g.metrics != nil {
		g.metrics.IncrementCodeCollisions()
	}
	if g.logger != nil {
		g.logger.DebugContext(ctx, "referral code collision",
			"attempt", attempt,
			"max_attempts", g.maxAttempts,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}
