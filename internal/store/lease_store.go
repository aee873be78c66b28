package store

import (
	"context"
	"fmt"
	"time"
)

// AcquireJobLease takes the named lease for holder until the given time.
// An expired lease is taken over; a live one held by anyone else is not.
// It reports whether holder now owns the lease.
func (s *SQLStore) AcquireJobLease(ctx context.Context, name, holder string, now, until time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO job_leases (name, holder, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE
		SET holder = excluded.holder, expires_at = excluded.expires_at
		WHERE job_leases.expires_at <= ?`),
		name, holder, until.UTC(), now.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("acquiring lease %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquiring lease %s: %w", name, err)
	}
	return n > 0, nil
}

// ReleaseJobLease drops the lease if holder still owns it.
func (s *SQLStore) ReleaseJobLease(ctx context.Context, name, holder string) error {
	_, err := s.db.ExecContext(ctx,
		s.q("DELETE FROM job_leases WHERE name = ? AND holder = ?"), name, holder)
	if err != nil {
		return fmt.Errorf("releasing lease %s: %w", name, err)
	}
	return nil
}
