package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/bizops/internal/model"
	"github.com/nhle/bizops/internal/store"
	"github.com/nhle/bizops/tests/testutil"
)

func TestMigrationsAreIdempotent(t *testing.T) {
	path := t.TempDir() + "/bizops.db"

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	again, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, v, again)
	assert.Equal(t, 3, again)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := store.Open("oracle", "whatever")
	assert.ErrorContains(t, err, "unknown database driver")
}

func TestDueTasksFiltersGateStatusAndAssignee(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	u := testutil.SeedUser(t, s, model.RoleEmployee)

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	tomorrow := now.Add(20 * time.Hour)

	overdue := testutil.SeedTask(t, s, "File report", &yesterday, u.ID)
	testutil.SeedTask(t, s, "Unassigned", &yesterday, "")
	testutil.SeedTask(t, s, "No date", nil, u.ID)
	testutil.SeedTask(t, s, "Future", &tomorrow, u.ID)

	done := testutil.SeedTask(t, s, "Done", &yesterday, u.ID)
	require.NoError(t, s.UpdateTaskStatus(ctx, done.ID, model.TaskStatusCompleted))

	reminded := testutil.SeedTask(t, s, "Reminded", &yesterday, u.ID)
	require.NoError(t, s.MarkTaskReminded(ctx, reminded.ID))

	due, err := s.DueTasks(ctx, store.DueTaskQuery{Before: now})
	require.NoError(t, err)
	require.Len(t, due, 1)

	got := due[0]
	assert.Equal(t, overdue.ID, got.TaskID)
	assert.Equal(t, "File report", got.Title)
	assert.Equal(t, u.ID, got.AssigneeID)
	assert.Equal(t, u.Email, got.AssigneeEmail)
	assert.Equal(t, u.FirstName, got.AssigneeFirst)
	assert.True(t, yesterday.Equal(got.DueDate))
}

func TestDueTasksWindow(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	u := testutil.SeedUser(t, s, model.RoleEmployee)

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	soon := now.Add(3 * time.Hour)
	edge := now.Add(24 * time.Hour)
	later := now.Add(48 * time.Hour)

	testutil.SeedTask(t, s, "past", &past, u.ID)
	a := testutil.SeedTask(t, s, "soon", &soon, u.ID)
	b := testutil.SeedTask(t, s, "edge", &edge, u.ID)
	testutil.SeedTask(t, s, "later", &later, u.ID)

	due, err := s.DueTasks(ctx, store.DueTaskQuery{
		After:         &now,
		Before:        edge,
		IncludeBefore: true,
	})
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, a.ID, due[0].TaskID)
	assert.Equal(t, b.ID, due[1].TaskID)
}

func TestUpdateTaskDueDateRearmsOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	u := testutil.SeedUser(t, s, model.RoleEmployee)

	due := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	task := testutil.SeedTask(t, s, "Invoice client", &due, u.ID)
	require.NoError(t, s.MarkTaskReminded(ctx, task.ID))

	same := due
	require.NoError(t, s.UpdateTaskDueDate(ctx, task.ID, &same))
	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, got.ReminderSent, "same date keeps the gate")

	moved := due.AddDate(0, 0, 3)
	require.NoError(t, s.UpdateTaskDueDate(ctx, task.ID, &moved))
	got, err = s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, got.ReminderSent, "new date re-arms the gate")
	require.NotNil(t, got.DueDate)
	assert.True(t, moved.Equal(*got.DueDate))

	err = s.UpdateTaskDueDate(ctx, "missing", &moved)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTaskValidationAndNotFound(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	assert.Error(t, s.CreateTask(ctx, &model.Task{Title: "  "}))

	_, err := s.GetTask(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.MarkTaskReminded(ctx, "nope"), store.ErrNotFound)
	assert.ErrorIs(t, s.UpdateTaskStatus(ctx, "nope", model.TaskStatusCompleted), store.ErrNotFound)
}

func TestTasksDueBeforeIgnoresGateAndAssignment(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	u := testutil.SeedUser(t, s, model.RoleEmployee)

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	d1 := now.Add(time.Hour)
	d2 := now.Add(72 * time.Hour)
	horizon := now.Add(48 * time.Hour)

	a := testutil.SeedTask(t, s, "a", &d1, "")
	b := testutil.SeedTask(t, s, "b", &d1, u.ID)
	require.NoError(t, s.MarkTaskReminded(ctx, b.ID))
	testutil.SeedTask(t, s, "c", &d2, u.ID)
	edge := testutil.SeedTask(t, s, "edge", &horizon, u.ID)

	tasks, err := s.TasksDueBefore(ctx, horizon)
	require.NoError(t, err)

	var ids []string
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	assert.ElementsMatch(t, []string{a.ID, b.ID, edge.ID}, ids, "a task due exactly at the horizon is included")
}
