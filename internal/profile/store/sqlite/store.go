// Package sqlite provides a single-file SQLite profile store for local and
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"referral/internal/profile/models"
	"referral/internal/profile/store"
	id "referral/pkg/domain"
	"referral/pkg/platform/sentinel"
)

//go:embed schema.sql
var schema string

const profileColumns = `account_id, display_name, referral_code, referred_by, created_at, updated_at`

// Store persists profiles in SQLite. Writes go through a single connection,
// so the table constraints are checked against a serialized history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database file and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply profile schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Health pings the database.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) FindByAccountID(ctx context.Context, accountID id.AccountID) (*models.Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE account_id = ?`, string(accountID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find profile by account: %w", err)
	}
	return p, nil
}

func (s *Store) FindByCode(ctx context.Context, code models.ReferralCode) (*models.Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE referral_code = ?`, string(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find profile by code: %w", err)
	}
	return p, nil
}

func (s *Store) CodeExists(ctx context.Context, code models.ReferralCode) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE referral_code = ?)`, string(code)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check referral code: %w", err)
	}
	return exists, nil
}

func (s *Store) Create(ctx context.Context, profile *models.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	referredBy := nullAccountID(profile.ReferredBy)
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`)
		 SELECT ?, ?, ?, ?, ?, ?
		 WHERE ? IS NULL OR EXISTS (SELECT 1 FROM profiles WHERE account_id = ?)`,
		string(profile.AccountID),
		profile.DisplayName,
		string(profile.ReferralCode),
		referredBy,
		toMillis(profile.CreatedAt),
		toMillis(profile.UpdatedAt),
		referredBy,
		referredBy,
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
func (s *Store) explainSkippedInsert(ctx context.Context, profile *models.Profile) error {
	var accountTaken, codeTaken bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM profiles WHERE account_id = ?),
		        EXISTS (SELECT 1 FROM profiles WHERE referral_code = ?)`,
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

func (s *Store) UpdateDisplayName(ctx context.Context, accountID id.AccountID, name string, now time.Time) (*models.Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx,
		`UPDATE profiles SET display_name = ?, updated_at = ? WHERE account_id = ? RETURNING `+profileColumns,
		name, toMillis(now), string(accountID),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("update display name: %w", err)
	}
	return p, nil
}

func (s *Store) SetReferredBy(ctx context.Context, accountID, referrerID id.AccountID, now time.Time) (*models.Profile, error) {
	if accountID == referrerID {
		return nil, store.ErrSelfReferral
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin link tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var referredBy sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT referred_by FROM profiles WHERE account_id = ?`, string(accountID)).Scan(&referredBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load redeemer profile: %w", err)
	}
	var referrerExists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE account_id = ?)`, string(referrerID)).Scan(&referrerExists); err != nil {
		return nil, fmt.Errorf("check referrer profile: %w", err)
	}
	if !referrerExists {
		return nil, sentinel.ErrNotFound
	}
	if referredBy.Valid {
		return nil, store.ErrAlreadyLinked
	}

	p, err := scanProfile(tx.QueryRowContext(ctx,
		`UPDATE profiles SET referred_by = ?, updated_at = ?
		 WHERE account_id = ? AND referred_by IS NULL
		 RETURNING `+profileColumns,
		string(referrerID), toMillis(now), string(accountID),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAlreadyLinked
		}
		return nil, classifyWriteErr(err, "set referred by")
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit link tx: %w", err)
	}
	return p, nil
}

func (s *Store) ListReferrals(ctx context.Context, referrerID id.AccountID) ([]*models.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE referred_by = ? ORDER BY created_at, account_id`,
		string(referrerID),
	)
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

func (s *Store) CountReferrals(ctx context.Context, referrerIDs []id.AccountID) (map[id.AccountID]int, error) {
	counts := make(map[id.AccountID]int, len(referrerIDs))
	if len(referrerIDs) == 0 {
		return counts, nil
	}
	placeholders := make([]string, len(referrerIDs))
	args := make([]any, len(referrerIDs))
	for i, referrer := range referrerIDs {
		placeholders[i] = "?"
		args[i] = string(referrer)
		counts[referrer] = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT referred_by, COUNT(*) FROM profiles
		 WHERE referred_by IN (`+strings.Join(placeholders, ", ")+`)
		 GROUP BY referred_by`,
		args...,
	)
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
		createdAt, updatedAt         int64
	)
	if err := row.Scan(&accountID, &displayName, &code, &referredBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p := &models.Profile{
		AccountID:    id.AccountID(accountID),
		DisplayName:  displayName,
		ReferralCode: models.ReferralCode(code),
		CreatedAt:    fromMillis(createdAt),
		UpdatedAt:    fromMillis(updatedAt),
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

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// classifyWriteErr maps constraint failures onto store facts. SQLite names
// the offending column in the message, which tells the two unique keys apart.
func classifyWriteErr(err error, op string) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		message := err.Error()
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			switch {
			case strings.Contains(message, "profiles.referral_code"):
				return store.ErrCodeTaken
			case strings.Contains(message, "profiles.account_id"):
				return store.ErrAccountExists
			}
			return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
		case sqlite3lib.SQLITE_CONSTRAINT_CHECK:
			return store.ErrSelfReferral
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
