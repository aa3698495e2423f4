package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"referral/internal/accounts"
	"referral/internal/platform/config"
	"referral/internal/platform/httpserver"
	"referral/internal/platform/logger"
	"referral/internal/platform/metrics"
	"referral/internal/profile"
	profilemetrics "referral/internal/profile/metrics"
	"referral/pkg/platform/audit/publisher"
	"referral/pkg/platform/circuit"
	authmw "referral/pkg/platform/middleware/auth"
	"referral/pkg/platform/middleware/metadata"
	"referral/pkg/platform/middleware/request"
	"referral/pkg/platform/middleware/requesttime"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "referral: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	if cfg.UsesDevSigningKey() {
		log.Warn("JWT_SIGNING_KEY not set, using development key")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeQuietly(log, "profile store", backend.close)

	sink, err := openAuditSink(ctx, cfg, backend, log)
	if err != nil {
		return err
	}
	defer closeQuietly(log, "audit sink", sink.close)

	auditPublisher := publisher.NewPublisher(sink.store,
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics()),
		publisher.WithAsyncBuffer(cfg.Audit.BufferSize),
		publisher.WithBreaker(circuit.New("audit-sink",
			circuit.WithFailureThreshold(5),
			circuit.WithSuccessThreshold(2),
			circuit.WithCooldown(30*time.Second),
		)),
	)
	// Runs before the sink closes so buffered events are flushed.
	defer closeQuietly(log, "audit publisher", auditPublisher.Close)

	svc := profile.NewService(backend.store, profile.Deps{
		Logger:          log,
		Metrics:         profilemetrics.New(),
		Audit:           auditPublisher,
		CodeMaxAttempts: cfg.Referral.CodeMaxAttempts,
	})
	tokens := accounts.NewTokenService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer)
	h := profile.NewHandler(svc, accounts.ContextDirectory{}, log)

	router := newRouter(log, metrics.New(), tokens, h, healthChecks{backend.health, sink.health})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting referral service", "addr", cfg.Addr, "store", cfg.Store.Driver)
		return httpserver.Run(gctx, srv, cfg.ShutdownTimeout)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	log.Info("referral service stopped")
	return nil
}

func newRouter(log *slog.Logger, httpMetrics *metrics.Metrics, tokens authmw.JWTValidator, h *profile.Handler, health healthChecks) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Recover(log))
	r.Use(request.Logger(log))
	r.Use(httpMetrics.Middleware)

	r.Get("/healthz", health.handle)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(tokens, log))
		h.Register(r)
	})
	return r
}

type healthCheck func(ctx context.Context) error

type healthChecks []healthCheck

func (hc healthChecks) handle(w http.ResponseWriter, r *http.Request) {
	for _, check := range hc {
		if check == nil {
			continue
		}
		if err := check(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func closeQuietly(log *slog.Logger, name string, closeFn func() error) {
	if closeFn == nil {
		return
	}
	if err := closeFn(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("failed to close "+name, "error", err)
	}
}
