package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
)

// Record implements goGuard.ActivityStore. The lifetime total lives in its
// own table so retention trimming never lowers it.
func (s *Store) Record(ctx context.Context, subjectID string, at time.Time) error {
	id, err := s.newID(at)
	if err != nil {
		return activityErr(err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return activityErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `insert into guard_activity(id, subject_id, at) values ($1, $2, $3)`, id, subjectID, at.UTC()); err != nil {
		return activityErr(err)
	}
	if _, err := tx.ExecContext(ctx, `
		insert into guard_activity_totals(subject_id, total) values ($1, 1)
		on conflict (subject_id) do update set total = guard_activity_totals.total + 1
	`, subjectID); err != nil {
		return activityErr(err)
	}
	if s.retention > 0 {
		if _, err := tx.ExecContext(ctx, `delete from guard_activity where subject_id = $1 and at < $2`, subjectID, at.Add(-s.retention).UTC()); err != nil {
			return activityErr(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return activityErr(err)
	}
	return nil
}

// Window implements goGuard.ActivityStore. Both bounds are inclusive.
func (s *Store) Window(ctx context.Context, subjectID string, since, until time.Time) (goGuard.ActivityWindow, error) {
	var (
		count  int64
		oldest sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select count(*), min(at)
		from guard_activity
		where subject_id = $1 and at >= $2 and at <= $3
	`, subjectID, since.UTC(), until.UTC()).Scan(&count, &oldest)
	if err != nil {
		return goGuard.ActivityWindow{}, activityErr(err)
	}
	w := goGuard.ActivityWindow{Count: count}
	if oldest.Valid {
		w.Oldest = oldest.Time.UTC()
	}
	return w, nil
}

// Lifetime implements goGuard.ActivityStore.
func (s *Store) Lifetime(ctx context.Context, subjectID string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		select coalesce((select total from guard_activity_totals where subject_id = $1), 0)
	`, subjectID).Scan(&total)
	if err != nil {
		return 0, activityErr(err)
	}
	return total, nil
}

func activityErr(err error) error {
	return fmt.Errorf("%w: %v", goGuard.ErrActivityUnavailable, err)
}
