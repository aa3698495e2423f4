// Package postgres stores audit events in an append-only PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "referral/pkg/domain"
	audit "referral/pkg/platform/audit"
	txcontext "referral/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// Store implements audit.Store. Appends join a transaction carried on the
// context so an event can commit or roll back with the write it describes.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the audit_events table if absent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply audit schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts event. Re-delivering an event with the same ID is a no-op.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		eventID = uuid.New()
	}
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}
	occurredAt := event.Timestamp
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	query := `
		INSERT INTO audit_events (id, category, action, account_id, subject, reason, request_id, client_ip, device, trace_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		eventID,
		string(category),
		event.Action,
		event.AccountID.String(),
		event.Subject,
		event.Reason,
		event.RequestID,
		event.ClientIP,
		event.Device,
		event.TraceID,
		occurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByAccount returns up to limit events for accountID, oldest first.
func (s *Store) ListByAccount(ctx context.Context, accountID id.AccountID, limit int) ([]audit.Event, error) {
	query := `
		SELECT id, category, action, account_id, subject, reason, request_id, client_ip, device, trace_id, occurred_at
		FROM audit_events
		WHERE account_id = $1
		ORDER BY occurred_at, id
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, accountID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e         audit.Event
			eventID   uuid.UUID
			category  string
			accountID string
		)
		if err := rows.Scan(&eventID, &category, &e.Action, &accountID, &e.Subject, &e.Reason,
			&e.RequestID, &e.ClientIP, &e.Device, &e.TraceID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.ID = eventID.String()
		e.Category = audit.EventCategory(category)
		e.AccountID = id.AccountID(accountID)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
