package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/internal"
)

// Store is the PostgreSQL adapter. It is safe for concurrent use.
type Store struct {
	db        *sql.DB
	retention time.Duration
	newID     func(time.Time) (string, error)
}

var (
	_ goGuard.SubjectProvider         = (*Store)(nil)
	_ goGuard.ActivityStore           = (*Store)(nil)
	_ goGuard.CredentialRecoveryStore = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithRetention trims activity rows older than d on every Record. Zero keeps
// everything.
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// Open connects through the pgx stdlib driver with pool defaults.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, opts...), nil
}

// New wraps an existing handle.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, newID: internal.NewID}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// GetSubjectByUsername implements goGuard.SubjectProvider.
func (s *Store) GetSubjectByUsername(ctx context.Context, username string) (goGuard.Subject, error) {
	var (
		sub    goGuard.Subject
		banned sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select id, username, email, created_at, is_admin, is_staff, is_active, banned_until
		from guard_subjects
		where username = $1
	`, username).Scan(&sub.ID, &sub.Username, &sub.Email, &sub.CreatedAt, &sub.IsAdmin, &sub.IsStaff, &sub.IsActive, &banned)
	if errors.Is(err, sql.ErrNoRows) {
		return goGuard.Subject{}, goGuard.ErrSubjectNotFound
	}
	if err != nil {
		return goGuard.Subject{}, err
	}
	sub.CreatedAt = sub.CreatedAt.UTC()
	if banned.Valid {
		sub.BannedUntil = banned.Time.UTC()
	}
	return sub, nil
}

// UpdateCredential implements goGuard.SubjectProvider.
func (s *Store) UpdateCredential(ctx context.Context, subjectID, credentialHash string) error {
	return updateCredential(ctx, s.db, subjectID, credentialHash)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateCredential(ctx context.Context, db execer, subjectID, credentialHash string) error {
	res, err := db.ExecContext(ctx, `update guard_subjects set credential_hash = $2 where id = $1`, subjectID, credentialHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return goGuard.ErrSubjectNotFound
	}
	return nil
}
