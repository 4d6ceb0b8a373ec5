package backlog

import (
	"context"
	"sort"

	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/identity"
	"github.com/gitgov-io/gitgov/pkg/record"
)

// identitySign signs any record kind as actorID with the author role.
func identitySign[T any](ctx context.Context, a *Adapter, rec *record.Record[T], actorID string) error {
	return identity.SignRecord(ctx, a.identity, rec, actorID, "author")
}

// legal cycle status edges; cycles are not methodology-gated
var cycleEdges = map[record.CycleStatus][]record.CycleStatus{
	record.CycleStatusPlanning:  {record.CycleStatusActive, record.CycleStatusArchived},
	record.CycleStatusActive:    {record.CycleStatusCompleted},
	record.CycleStatusCompleted: {record.CycleStatusArchived},
}

// CreateCycle writes a new planning cycle signed by the current actor.
func (a *Adapter) CreateCycle(ctx context.Context, draft record.CycleDraft) (*record.Record[record.CyclePayload], error) {
	payload, err := record.NewCycle(draft, a.now())
	if err != nil {
		return nil, err
	}
	actorID, err := a.identity.ResolveCurrentActorID(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := record.New(record.KindCycle, *payload)
	if err != nil {
		return nil, err
	}
	if err := identitySign(ctx, a, rec, actorID); err != nil {
		return nil, err
	}
	if err := a.cycles.Put(ctx, payload.ID, rec); err != nil {
		return nil, err
	}
	a.log.Info("cycle created", "cycle", payload.ID)
	return rec, nil
}

// GetCycle loads one cycle.
func (a *Adapter) GetCycle(ctx context.Context, id string) (*record.Record[record.CyclePayload], error) {
	rec, err := a.cycles.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, record.E(record.CodeCycleNotFound, "cycle %s not found", id)
	}
	return rec, nil
}

// ListCycles loads every cycle, oldest first.
func (a *Adapter) ListCycles(ctx context.Context) ([]*record.Record[record.CyclePayload], error) {
	ids, err := a.cycles.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*record.Record[record.CyclePayload], 0, len(ids))
	for _, id := range ids {
		rec, err := a.cycles.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Payload.ID < out[j].Payload.ID })
	return out, nil
}

// UpdateCycleStatus moves a cycle along planning -> active -> completed ->
// archived and emits cycle.status.changed. What happens to the cycle's
// tasks is a policy decision left to subscribers; the backlog itself does
// not cascade.
func (a *Adapter) UpdateCycleStatus(ctx context.Context, id string, to record.CycleStatus) (*record.Record[record.CyclePayload], error) {
	if !record.ValidCycleStatus(to) {
		return nil, record.E(record.CodeInvalidData, "cycle status %q is unknown", to)
	}
	rec, err := a.GetCycle(ctx, id)
	if err != nil {
		return nil, err
	}
	from := rec.Payload.Status
	if from == to {
		return rec, nil
	}
	legal := false
	for _, next := range cycleEdges[from] {
		if next == to {
			legal = true
			break
		}
	}
	if !legal {
		return nil, record.E(record.CodeIllegalTransition, "no %s -> %s transition for cycle %s", from, to, id)
	}

	rec.Payload.Status = to
	rec, err = a.putCycle(ctx, rec)
	if err != nil {
		return nil, err
	}
	a.log.Info("cycle transitioned", "cycle", id, "from", from, "to", to)
	a.bus.Publish(eventbus.NewEvent(eventbus.TypeCycleStatusChanged, "backlog_adapter", map[string]any{
		"cycleId": id,
		"from":    string(from),
		"to":      string(to),
	}))
	return rec, nil
}

// AddTaskToCycle links a task into a cycle, updating both sides of the
// bidirectional reference. If the second write fails the first is rolled
// back; when even the rollback fails the error is LINK_INCONSISTENT and
// the tree needs a manual fix.
func (a *Adapter) AddTaskToCycle(ctx context.Context, cycleID, taskID string) error {
	cycle, err := a.GetCycle(ctx, cycleID)
	if err != nil {
		return err
	}
	task, err := a.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if cycle.Payload.HasTask(taskID) && task.Payload.InCycle(cycleID) {
		return nil
	}

	if !cycle.Payload.HasTask(taskID) {
		cycle.Payload.TaskIDs = append(cycle.Payload.TaskIDs, taskID)
		if _, err := a.putCycle(ctx, cycle); err != nil {
			return err
		}
	}
	if !task.Payload.InCycle(cycleID) {
		task.Payload.CycleIDs = append(task.Payload.CycleIDs, cycleID)
		if _, err := a.putTask(ctx, task, "author"); err != nil {
			return a.rollbackCycleLink(ctx, cycleID, taskID, err)
		}
	}
	return nil
}

// RemoveTasksFromCycle unlinks tasks from a cycle on both sides.
func (a *Adapter) RemoveTasksFromCycle(ctx context.Context, cycleID string, taskIDs []string) error {
	cycle, err := a.GetCycle(ctx, cycleID)
	if err != nil {
		return err
	}
	drop := map[string]bool{}
	for _, id := range taskIDs {
		drop[id] = true
	}
	kept := cycle.Payload.TaskIDs[:0]
	for _, id := range cycle.Payload.TaskIDs {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	cycle.Payload.TaskIDs = kept
	if _, err := a.putCycle(ctx, cycle); err != nil {
		return err
	}

	for _, taskID := range taskIDs {
		task, err := a.tasks.Get(ctx, taskID)
		if err != nil {
			return record.Wrap(record.CodeLinkInconsistent, err,
				"cycle %s updated but task %s unreadable", cycleID, taskID)
		}
		if task == nil || !task.Payload.InCycle(cycleID) {
			continue
		}
		keptCycles := task.Payload.CycleIDs[:0]
		for _, cid := range task.Payload.CycleIDs {
			if cid != cycleID {
				keptCycles = append(keptCycles, cid)
			}
		}
		task.Payload.CycleIDs = keptCycles
		if _, err := a.putTask(ctx, task, "author"); err != nil {
			return record.Wrap(record.CodeLinkInconsistent, err,
				"cycle %s updated but task %s still references it", cycleID, taskID)
		}
	}
	return nil
}

// MoveTasksBetweenCycles relinks tasks from one cycle to another.
func (a *Adapter) MoveTasksBetweenCycles(ctx context.Context, fromCycleID, toCycleID string, taskIDs []string) error {
	if _, err := a.GetCycle(ctx, toCycleID); err != nil {
		return err
	}
	if err := a.RemoveTasksFromCycle(ctx, fromCycleID, taskIDs); err != nil {
		return err
	}
	for _, taskID := range taskIDs {
		if err := a.AddTaskToCycle(ctx, toCycleID, taskID); err != nil {
			return record.Wrap(record.CodeLinkInconsistent, err,
				"task %s unlinked from %s but not linked to %s", taskID, fromCycleID, toCycleID)
		}
	}
	return nil
}

func (a *Adapter) rollbackCycleLink(ctx context.Context, cycleID, taskID string, cause error) error {
	cycle, err := a.GetCycle(ctx, cycleID)
	if err != nil {
		return record.Wrap(record.CodeLinkInconsistent, cause,
			"task link failed and cycle %s unreadable for rollback", cycleID)
	}
	kept := cycle.Payload.TaskIDs[:0]
	for _, id := range cycle.Payload.TaskIDs {
		if id != taskID {
			kept = append(kept, id)
		}
	}
	cycle.Payload.TaskIDs = kept
	if _, err := a.putCycle(ctx, cycle); err != nil {
		return record.Wrap(record.CodeLinkInconsistent, cause,
			"task link failed and rollback of cycle %s failed too", cycleID)
	}
	return cause
}

// putCycle rechecksums, re-signs as the current actor and persists.
func (a *Adapter) putCycle(ctx context.Context, rec *record.Record[record.CyclePayload]) (*record.Record[record.CyclePayload], error) {
	actorID, err := a.identity.ResolveCurrentActorID(ctx)
	if err != nil {
		return nil, err
	}
	if err := record.Rechecksum(rec); err != nil {
		return nil, err
	}
	rec.Header.Signatures = nil
	if err := identitySign(ctx, a, rec, actorID); err != nil {
		return nil, err
	}
	if err := a.cycles.Put(ctx, rec.Payload.ID, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
