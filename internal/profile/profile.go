// Package profile wires the profile store, code generator, redemption engine
// and lifecycle service together.
package profile

import (
	"log/slog"

	"referral/internal/accounts"
	"referral/internal/profile/codegen"
	"referral/internal/profile/handler"
	"referral/internal/profile/metrics"
	"referral/internal/profile/redemption"
	"referral/internal/profile/service"
)

// Service exposes the profile lifecycle.
type Service = service.Service

// Handler wires HTTP endpoints to the profile service.
type Handler = handler.Handler

// Store is everything the module needs from a storage backend. The memory,
// postgres, redis and sqlite stores all satisfy it.
type Store interface {
	service.Store
	redemption.Store
	codegen.CodeChecker
}

// Deps carries the optional collaborators. Zero values disable the concern.
type Deps struct {
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
	Audit           service.AuditPublisher
	CodeMaxAttempts int
}

// NewService constructs the lifecycle service over store.
func NewService(store Store, deps Deps) *Service {
	genOpts := []codegen.Option{codegen.WithMaxAttempts(deps.CodeMaxAttempts)}
	svcOpts := []service.Option{}
	if deps.Logger != nil {
		genOpts = append(genOpts, codegen.WithLogger(deps.Logger))
		svcOpts = append(svcOpts, service.WithLogger(deps.Logger))
	}
	if deps.Metrics != nil {
		genOpts = append(genOpts, codegen.WithMetrics(deps.Metrics))
		svcOpts = append(svcOpts, service.WithMetrics(deps.Metrics))
	}
	if deps.Audit != nil {
		svcOpts = append(svcOpts, service.WithAuditPublisher(deps.Audit))
	}
	return service.New(store, codegen.New(store, genOpts...), redemption.New(store), svcOpts...)
}

// NewHandler constructs the HTTP handler for profile routes.
func NewHandler(s *Service, directory accounts.Directory, logger *slog.Logger) *Handler {
	return handler.New(s, directory, logger)
}
