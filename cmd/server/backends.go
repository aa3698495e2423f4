package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"referral/internal/platform/config"
	"referral/internal/platform/postgres"
	platformredis "referral/internal/platform/redis"
	"referral/internal/profile"
	"referral/internal/profile/store/memory"
	pgstore "referral/internal/profile/store/postgres"
	redisstore "referral/internal/profile/store/redis"
	"referral/internal/profile/store/sqlite"
	audit "referral/pkg/platform/audit"
	auditkafka "referral/pkg/platform/audit/kafka"
	auditmemory "referral/pkg/platform/audit/store/memory"
	auditpg "referral/pkg/platform/audit/store/postgres"
)

type storeBackend struct {
	store  profile.Store
	health healthCheck
	close  func() error

	// db is set for the postgres driver so audit events can share the database.
	db *sql.DB
}

func openStore(ctx context.Context, cfg config.Server, log *slog.Logger) (storeBackend, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return storeBackend{}, err
		}
		if err := pgstore.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return storeBackend{}, fmt.Errorf("migrate profiles schema: %w", err)
		}
		log.Info("using postgres profile store")
		return storeBackend{store: pgstore.NewPostgres(db), health: pingDB(db), close: db.Close, db: db}, nil
	case config.DriverRedis:
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return storeBackend{}, err
		}
		log.Info("using redis profile store")
		return storeBackend{store: redisstore.NewRedis(client.Client), health: client.Health, close: client.Close}, nil
	case config.DriverSQLite:
		st, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return storeBackend{}, err
		}
		log.Info("using sqlite profile store", "path", cfg.Store.SQLitePath)
		return storeBackend{store: st, health: st.Health, close: st.Close}, nil
	default:
		log.Warn("using in-memory profile store; profiles are lost on restart")
		return storeBackend{store: memory.New()}, nil
	}
}

func pingDB(db *sql.DB) healthCheck {
	return db.PingContext
}

type auditSink struct {
	store  audit.Store
	health healthCheck
	close  func() error
}

// openAuditSink prefers Kafka, then the profile database, then process memory.
func openAuditSink(ctx context.Context, cfg config.Server, backend storeBackend, log *slog.Logger) (auditSink, error) {
	if len(cfg.Audit.KafkaBrokers) == 0 {
		if backend.db != nil {
			if err := auditpg.Migrate(ctx, backend.db); err != nil {
				return auditSink{}, fmt.Errorf("migrate audit schema: %w", err)
			}
			log.Info("audit events stored in postgres")
			return auditSink{store: auditpg.New(backend.db)}, nil
		}
		log.Info("audit events kept in process memory")
		return auditSink{store: auditmemory.NewInMemoryStore()}, nil
	}
	sink, err := auditkafka.NewSink(cfg.Audit.KafkaBrokers, cfg.Audit.Topic)
	if err != nil {
		return auditSink{}, err
	}
	if err := sink.EnsureTopic(ctx, 3, 1); err != nil {
		_ = sink.Close()
		return auditSink{}, fmt.Errorf("ensure audit topic: %w", err)
	}
	log.Info("publishing audit events to kafka", "topic", cfg.Audit.Topic)
	return auditSink{store: sink, health: sink.Health, close: sink.Close}, nil
}
