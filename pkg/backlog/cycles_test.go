package backlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitgov-io/gitgov/pkg/record"
)

func TestCreateCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.adapter.CreateCycle(ctx, record.CycleDraft{Title: "Sprint 1"})
	require.NoError(t, err)
	assert.Equal(t, record.CycleStatusPlanning, rec.Payload.Status)
	assert.Empty(t, rec.Payload.TaskIDs)
	require.NoError(t, record.Verify(rec, f.identity.Resolver(ctx)))
}

func TestCycleStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.adapter.CreateCycle(ctx, record.CycleDraft{Title: "Sprint 1"})
	require.NoError(t, err)
	id := rec.Payload.ID

	// planning cannot complete directly
	_, err = f.adapter.UpdateCycleStatus(ctx, id, record.CycleStatusCompleted)
	assert.True(t, record.HasCode(err, record.CodeIllegalTransition))

	active, err := f.adapter.UpdateCycleStatus(ctx, id, record.CycleStatusActive)
	require.NoError(t, err)
	assert.Equal(t, record.CycleStatusActive, active.Payload.Status)

	completed, err := f.adapter.UpdateCycleStatus(ctx, id, record.CycleStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, record.CycleStatusCompleted, completed.Payload.Status)

	archived, err := f.adapter.UpdateCycleStatus(ctx, id, record.CycleStatusArchived)
	require.NoError(t, err)
	assert.Equal(t, record.CycleStatusArchived, archived.Payload.Status)

	// same-status update is a no-op, not an error
	again, err := f.adapter.UpdateCycleStatus(ctx, id, record.CycleStatusArchived)
	require.NoError(t, err)
	assert.Equal(t, record.CycleStatusArchived, again.Payload.Status)
}

func TestCycleCompletionDoesNotCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	taskID := f.newActiveTask(t)

	cycle, err := f.adapter.CreateCycle(ctx, record.CycleDraft{Title: "Sprint 1"})
	require.NoError(t, err)
	require.NoError(t, f.adapter.AddTaskToCycle(ctx, cycle.Payload.ID, taskID))
	_, err = f.adapter.UpdateCycleStatus(ctx, cycle.Payload.ID, record.CycleStatusActive)
	require.NoError(t, err)
	_, err = f.adapter.UpdateCycleStatus(ctx, cycle.Payload.ID, record.CycleStatusCompleted)
	require.NoError(t, err)
	f.settle(t)

	assert.Equal(t, record.TaskStatusActive, f.taskStatus(t, taskID))
}

func TestAddTaskToCycleLinksBothSides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.adapter.CreateTask(ctx, record.TaskDraft{Title: "T", Description: "D"})
	require.NoError(t, err)
	cycle, err := f.adapter.CreateCycle(ctx, record.CycleDraft{Title: "Sprint 1"})
	require.NoError(t, err)

	require.NoError(t, f.adapter.AddTaskToCycle(ctx, cycle.Payload.ID, task.Payload.ID))

	gotCycle, err := f.adapter.GetCycle(ctx, cycle.Payload.ID)
	require.NoError(t, err)
	assert.True(t, gotCycle.Payload.HasTask(task.Payload.ID))
	gotTask, err := f.adapter.GetTask(ctx, task.Payload.ID)
	require.NoError(t, err)
	assert.True(t, gotTask.Payload.InCycle(cycle.Payload.ID))

	// relinking is idempotent
	require.NoError(t, f.adapter.AddTaskToCycle(ctx, cycle.Payload.ID, task.Payload.ID))
	gotCycle, err = f.adapter.GetCycle(ctx, cycle.Payload.ID)
	require.NoError(t, err)
	assert.Len(t, gotCycle.Payload.TaskIDs, 1)
}

func TestAddTaskToCycleMissingEnds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.adapter.CreateTask(ctx, record.TaskDraft{Title: "T", Description: "D"})
	require.NoError(t, err)
	cycle, err := f.adapter.CreateCycle(ctx, record.CycleDraft{Title: "Sprint 1"})
	require.NoError(t, err)

	err = f.adapter.AddTaskToCycle(ctx, "1700000000-cycle-ghost", task.Payload.ID)
	assert.True(t, record.HasCode(err, record.CodeCycleNotFound))
	err = f.adapter.AddTaskToCycle(ctx, cycle.Payload.ID, "1700000000-task-ghost")
	assert.True(t, record.HasCode(err, record.CodeTaskNotFound))
}

func TestRemoveTasksFromCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1, err := f.adapter.CreateTask(ctx, record.TaskDraft{Title: "One", Description: "x"})
	require.NoError(t, err)
	t2, err := f.adapter.CreateTask(ctx, record.TaskDraft{Title: "Two", Description: "x"})
	require.NoError(t, err)
	cycle, err := f.adapter.CreateCycle(ctx, record.CycleDraft{Title: "Sprint 1"})
	require.NoError(t, err)
	require.NoError(t, f.adapter.AddTaskToCycle(ctx, cycle.Payload.ID, t1.Payload.ID))
	require.NoError(t, f.adapter.AddTaskToCycle(ctx, cycle.Payload.ID, t2.Payload.ID))

	require.NoError(t, f.adapter.RemoveTasksFromCycle(ctx, cycle.Payload.ID, []string{t1.Payload.ID}))

	gotCycle, err := f.adapter.GetCycle(ctx, cycle.Payload.ID)
	require.NoError(t, err)
	assert.False(t, gotCycle.Payload.HasTask(t1.Payload.ID))
	assert.True(t, gotCycle.Payload.HasTask(t2.Payload.ID))
	gotTask, err := f.adapter.GetTask(ctx, t1.Payload.ID)
	require.NoError(t, err)
	assert.False(t, gotTask.Payload.InCycle(cycle.Payload.ID))
}

func TestMoveTasksBetweenCycles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.adapter.CreateTask(ctx, record.TaskDraft{Title: "T", Description: "D"})
	require.NoError(t, err)
	src, err := f.adapter.CreateCycle(ctx, record.CycleDraft{Title: "Sprint 1"})
	require.NoError(t, err)
	dst, err := f.adapter.CreateCycle(ctx, record.CycleDraft{Title: "Sprint 2"})
	require.NoError(t, err)
	require.NoError(t, f.adapter.AddTaskToCycle(ctx, src.Payload.ID, task.Payload.ID))

	require.NoError(t, f.adapter.MoveTasksBetweenCycles(ctx, src.Payload.ID, dst.Payload.ID, []string{task.Payload.ID}))

	gotSrc, err := f.adapter.GetCycle(ctx, src.Payload.ID)
	require.NoError(t, err)
	assert.False(t, gotSrc.Payload.HasTask(task.Payload.ID))
	gotDst, err := f.adapter.GetCycle(ctx, dst.Payload.ID)
	require.NoError(t, err)
	assert.True(t, gotDst.Payload.HasTask(task.Payload.ID))
	gotTask, err := f.adapter.GetTask(ctx, task.Payload.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{dst.Payload.ID}, gotTask.Payload.CycleIDs)

	// moving into a missing cycle fails before any unlinking
	err = f.adapter.MoveTasksBetweenCycles(ctx, dst.Payload.ID, "1700000000-cycle-ghost", []string{task.Payload.ID})
	assert.True(t, record.HasCode(err, record.CodeCycleNotFound))
	gotDst, err = f.adapter.GetCycle(ctx, dst.Payload.ID)
	require.NoError(t, err)
	assert.True(t, gotDst.Payload.HasTask(task.Payload.ID))
}
