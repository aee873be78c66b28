package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/bizops/tests/testutil"
)

func TestJobLeases(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	ok, err := s.AcquireJobLease(ctx, "overdue_tasks", "serve", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireJobLease(ctx, "overdue_tasks", "scan", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "a live lease is not taken over")

	ok, err = s.AcquireJobLease(ctx, "ledger", "scan", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "leases are per name")

	// Releasing with the wrong holder leaves the lease in place.
	require.NoError(t, s.ReleaseJobLease(ctx, "overdue_tasks", "scan"))
	ok, err = s.AcquireJobLease(ctx, "overdue_tasks", "scan", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	later := now.Add(2 * time.Minute)
	ok, err = s.AcquireJobLease(ctx, "overdue_tasks", "scan", later, later.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "an expired lease is taken over")

	require.NoError(t, s.ReleaseJobLease(ctx, "overdue_tasks", "scan"))
	ok, err = s.AcquireJobLease(ctx, "overdue_tasks", "serve", later, later.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
}
