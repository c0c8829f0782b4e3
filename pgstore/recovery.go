package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
)

// Issue implements goGuard.RecoveryStore. The subject_id key makes the
// upsert replace any earlier grant in one statement. grant.Retain is not
// needed here; Sweep removes expired rows.
func (s *Store) Issue(ctx context.Context, grant goGuard.RecoveryGrant) error {
	_, err := s.db.ExecContext(ctx, `
		insert into guard_recovery(subject_id, token_hash, expires_at) values ($1, $2, $3)
		on conflict (subject_id) do update
		set token_hash = excluded.token_hash, expires_at = excluded.expires_at
	`, grant.SubjectID, grant.TokenHash[:], grant.ExpiresAt.UTC())
	if err != nil {
		return recoveryErr(err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func consumeRow(ctx context.Context, q queryRower, tokenHash [32]byte, now time.Time) (string, error) {
	var (
		subjectID string
		expiresAt time.Time
	)
	err := q.QueryRowContext(ctx, `
		delete from guard_recovery where token_hash = $1
		returning subject_id, expires_at
	`, tokenHash[:]).Scan(&subjectID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", goGuard.ErrTokenInvalid
	}
	if err != nil {
		return "", recoveryErr(err)
	}
	if now.After(expiresAt) {
		return "", goGuard.ErrTokenExpired
	}
	return subjectID, nil
}

// Consume implements goGuard.RecoveryStore.
func (s *Store) Consume(ctx context.Context, tokenHash [32]byte, now time.Time) (string, error) {
	return consumeRow(ctx, s.db, tokenHash, now)
}

// ConsumeWithCredential implements goGuard.CredentialRecoveryStore. A failed
// credential write rolls back and leaves the token live.
func (s *Store) ConsumeWithCredential(ctx context.Context, tokenHash [32]byte, now time.Time, credentialHash string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", recoveryErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	subjectID, err := consumeRow(ctx, tx, tokenHash, now)
	if errors.Is(err, goGuard.ErrTokenExpired) {
		if cerr := tx.Commit(); cerr != nil {
			return "", recoveryErr(cerr)
		}
		return "", err
	}
	if err != nil {
		return "", err
	}

	if err := updateCredential(ctx, tx, subjectID, credentialHash); err != nil {
		return "", recoveryErr(err)
	}
	if err := tx.Commit(); err != nil {
		return "", recoveryErr(err)
	}
	return subjectID, nil
}

// Peek implements goGuard.RecoveryStore. An expired row is deleted.
func (s *Store) Peek(ctx context.Context, tokenHash [32]byte, now time.Time) (string, error) {
	var (
		subjectID string
		expiresAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		select subject_id, expires_at from guard_recovery where token_hash = $1
	`, tokenHash[:]).Scan(&subjectID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", goGuard.ErrTokenInvalid
	}
	if err != nil {
		return "", recoveryErr(err)
	}
	if now.After(expiresAt) {
		if _, err := s.db.ExecContext(ctx, `delete from guard_recovery where token_hash = $1`, tokenHash[:]); err != nil {
			return "", recoveryErr(err)
		}
		return "", goGuard.ErrTokenExpired
	}
	return subjectID, nil
}

// Sweep implements goGuard.RecoveryStore, removing at most limit expired
// rows when limit > 0.
func (s *Store) Sweep(ctx context.Context, now time.Time, limit int) (int, error) {
	var (
		res sql.Result
		err error
	)
	if limit > 0 {
		res, err = s.db.ExecContext(ctx, `
			delete from guard_recovery where subject_id in (
				select subject_id from guard_recovery where expires_at < $1
				order by expires_at limit $2
			)
		`, now.UTC(), limit)
	} else {
		res, err = s.db.ExecContext(ctx, `delete from guard_recovery where expires_at < $1`, now.UTC())
	}
	if err != nil {
		return 0, recoveryErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, recoveryErr(err)
	}
	return int(n), nil
}

func recoveryErr(err error) error {
	return fmt.Errorf("%w: %v", goGuard.ErrRecoveryUnavailable, err)
}
