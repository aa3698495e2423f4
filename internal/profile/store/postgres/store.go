package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"referral/internal/profile/models"
	"referral/internal/profile/store"
	id "referral/pkg/domain"
	"referral/pkg/platform/sentinel"
	txcontext "referral/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"

	constraintPrimaryKey   = "profiles_pkey"
	constraintReferralCode = "profiles_referral_code_key"
)

const profileColumns = `account_id, display_name, referral_code, referred_by, created_at, updated_at`

// PostgresStore persists profiles in PostgreSQL. The primary key and the
// UNIQUE(referral_code) constraint are the source of truth for both
// uniqueness invariants; no application-level locking is involved.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed profile store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the profiles table and its indexes if absent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply profile schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByAccountID(ctx context.Context, accountID id.AccountID) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE account_id = $1`
	p, err := scanProfile(s.db.QueryRowContext(ctx, query, string(accountID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find profile by account: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) FindByCode(ctx context.Context, code models.ReferralCode) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE referral_code = $1`
	p, err := scanProfile(s.db.QueryRowContext(ctx, query, string(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find profile by code: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) CodeExists(ctx context.Context, code models.ReferralCode) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE referral_code = $1)`, string(code)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check referral code: %w", err)
	}
	return exists, nil
}

// Create inserts a profile in a single statement. When ReferredBy is set the
// referrer must already exist; the guard is part of the same INSERT.
func (s *PostgresStore) Create(ctx context.Context, profile *models.Profile) error {
	query := `
		INSERT INTO profiles (` + profileColumns + `)
		SELECT $1, $2, $3, $4::text, $5, $6
		WHERE $4::text IS NULL OR EXISTS (SELECT 1 FROM profiles WHERE account_id = $4::text)
	`
	result, err := s.db.ExecContext(ctx, query,
		string(profile.AccountID),
		profile.DisplayName,
		string(profile.ReferralCode),
		nullAccountID(profile.ReferredBy),
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		return classifyWriteErr(err, "create profile")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("create profile rows affected: %w", err)
	}
	if rows == 0 {
		return s.explainSkippedInsert(ctx, profile)
	}
	return nil
}

// explainSkippedInsert reports why the referrer guard skipped an insert.
// Account and code conflicts win over a missing referrer.
func (s *PostgresStore) explainSkippedInsert(ctx context.Context, profile *models.Profile) error {
	var accountTaken, codeTaken bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM profiles WHERE account_id = $1),
		       EXISTS (SELECT 1 FROM profiles WHERE referral_code = $2)`,
		string(profile.AccountID), string(profile.ReferralCode),
	).Scan(&accountTaken, &codeTaken)
	if err != nil {
		return fmt.Errorf("check create conflicts: %w", err)
	}
	switch {
	case accountTaken:
		return store.ErrAccountExists
	case codeTaken:
		return store.ErrCodeTaken
	default:
		return sentinel.ErrNotFound
	}
}

func (s *PostgresStore) UpdateDisplayName(ctx context.Context, accountID id.AccountID, name string, now time.Time) (*models.Profile, error) {
	query := `
		UPDATE profiles SET display_name = $2, updated_at = $3
		WHERE account_id = $1
		RETURNING ` + profileColumns
	p, err := scanProfile(s.db.QueryRowContext(ctx, query, string(accountID), name, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("update display name: %w", err)
	}
	return p, nil
}

// SetReferredBy locks the redeemer row, checks the write-once rule and
// writes the link in one transaction.
func (s *PostgresStore) SetReferredBy(ctx context.Context, accountID, referrerID id.AccountID, now time.Time) (*models.Profile, error) {
	if accountID == referrerID {
		return nil, store.ErrSelfReferral
	}
	var linked *models.Profile
	err := txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var referredBy sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT referred_by FROM profiles WHERE account_id = $1 FOR UPDATE`, string(accountID)).Scan(&referredBy)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("lock redeemer profile: %w", err)
		}
		if referredBy.Valid {
			return store.ErrAlreadyLinked
		}

		var referrerExists bool
		err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE account_id = $1)`, string(referrerID)).Scan(&referrerExists)
		if err != nil {
			return fmt.Errorf("check referrer profile: %w", err)
		}
		if !referrerExists {
			return sentinel.ErrNotFound
		}

		query := `
			UPDATE profiles SET referred_by = $2, updated_at = $3
			WHERE account_id = $1 AND referred_by IS NULL
			RETURNING ` + profileColumns
		p, err := scanProfile(tx.QueryRowContext(ctx, query, string(accountID), string(referrerID), now))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrAlreadyLinked
			}
			return classifyWriteErr(err, "set referred by")
		}
		linked = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return linked, nil
}

func (s *PostgresStore) ListReferrals(ctx context.Context, referrerID id.AccountID) ([]*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE referred_by = $1 ORDER BY created_at, account_id`
	rows, err := s.db.QueryContext(ctx, query, string(referrerID))
	if err != nil {
		return nil, fmt.Errorf("list referrals: %w", err)
	}
	defer rows.Close()

	var out []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate referrals: %w", err)
	}
	return out, nil
}

// CountReferrals derives counts with one grouped query over the referred_by index.
func (s *PostgresStore) CountReferrals(ctx context.Context, referrerIDs []id.AccountID) (map[id.AccountID]int, error) {
	counts := make(map[id.AccountID]int, len(referrerIDs))
	if len(referrerIDs) == 0 {
		return counts, nil
	}
	ids := make([]string, len(referrerIDs))
	for i, referrer := range referrerIDs {
		ids[i] = string(referrer)
		counts[referrer] = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT referred_by, COUNT(*)
		FROM profiles
		WHERE referred_by = ANY($1::text[])
		GROUP BY referred_by
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("count referrals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var referrer string
		var n int
		if err := rows.Scan(&referrer, &n); err != nil {
			return nil, fmt.Errorf("scan referral count: %w", err)
		}
		counts[id.AccountID(referrer)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate referral counts: %w", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.Profile, error) {
	var (
		accountID, displayName, code string
		referredBy                   sql.NullString
		createdAt, updatedAt         time.Time
	)
	if err := row.Scan(&accountID, &displayName, &code, &referredBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p := &models.Profile{
		AccountID:    id.AccountID(accountID),
		DisplayName:  displayName,
		ReferralCode: models.ReferralCode(code),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}
	if referredBy.Valid {
		ref := id.AccountID(referredBy.String)
		p.ReferredBy = &ref
	}
	return p, nil
}

func nullAccountID(accountID *id.AccountID) sql.NullString {
	if accountID == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*accountID), Valid: true}
}

// classifyWriteErr maps constraint violations onto store facts.
func classifyWriteErr(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintPrimaryKey:
			return store.ErrAccountExists
		case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintReferralCode:
			return store.ErrCodeTaken
		case pgErr.Code == pgUniqueViolation:
			return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
		case pgErr.Code == pgCheckViolation:
			return store.ErrSelfReferral
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
