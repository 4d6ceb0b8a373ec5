// Package execution manages the append-only work evidence records:
// execution entries (what was done on a task) and changelogs (what
// shipped). Both feed the backlog's event-driven transitions, first
// execution activates a ready task, a changelog archives its done tasks.
package execution

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/identity"
	"github.com/gitgov-io/gitgov/pkg/record"
	"github.com/gitgov-io/gitgov/pkg/store"
)

// Adapter is the execution module.
type Adapter struct {
	executions store.Store[record.ExecutionPayload]
	changelogs store.Store[record.ChangelogPayload]
	tasks      store.Store[record.TaskPayload]
	identity   *identity.Adapter
	bus        *eventbus.Bus
	log        *slog.Logger
	now        func() time.Time
}

// Option configures the adapter.
type Option func(*Adapter)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// New wires the execution adapter.
func New(executions store.Store[record.ExecutionPayload], changelogs store.Store[record.ChangelogPayload], tasks store.Store[record.TaskPayload], id *identity.Adapter, bus *eventbus.Bus, opts ...Option) *Adapter {
	a := &Adapter{
		executions: executions,
		changelogs: changelogs,
		tasks:      tasks,
		identity:   id,
		bus:        bus,
		log:        slog.Default().With("component", "execution_adapter"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CreateExecution appends an execution entry to a task's history. The task
// must exist; whether this activates it is the backlog's decision, made
// from the emitted event.
func (a *Adapter) CreateExecution(ctx context.Context, draft record.ExecutionDraft) (*record.Record[record.ExecutionPayload], error) {
	payload, err := record.NewExecution(draft, a.now())
	if err != nil {
		return nil, err
	}
	task, err := a.tasks.Get(ctx, payload.TaskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, record.E(record.CodeTaskNotFound, "task %s not found", payload.TaskID)
	}
	isFirst, err := a.isFirstExecution(ctx, payload.TaskID)
	if err != nil {
		return nil, err
	}

	actorID, err := a.identity.ResolveCurrentActorID(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := record.New(record.KindExecution, *payload)
	if err != nil {
		return nil, err
	}
	if err := identity.SignRecord(ctx, a.identity, rec, actorID, "executor"); err != nil {
		return nil, err
	}
	if err := a.executions.Put(ctx, payload.ID, rec); err != nil {
		return nil, err
	}

	a.log.Info("execution recorded", "execution", payload.ID, "task", payload.TaskID, "result", payload.Result)
	a.bus.Publish(eventbus.NewEvent(eventbus.TypeExecutionCreated, "execution_adapter", map[string]any{
		"executionId":      payload.ID,
		"taskId":           payload.TaskID,
		"result":           string(payload.Result),
		"isFirstExecution": isFirst,
		"actorId":          actorID,
	}))
	return rec, nil
}

// GetExecution loads one execution entry.
func (a *Adapter) GetExecution(ctx context.Context, id string) (*record.Record[record.ExecutionPayload], error) {
	rec, err := a.executions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, record.E(record.CodeRecordNotFound, "execution %s not found", id)
	}
	return rec, nil
}

// ListExecutions returns a task's execution history, oldest first.
func (a *Adapter) ListExecutions(ctx context.Context, taskID string) ([]*record.Record[record.ExecutionPayload], error) {
	ids, err := a.executions.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*record.Record[record.ExecutionPayload]
	for _, id := range ids {
		rec, err := a.executions.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil && (taskID == "" || rec.Payload.TaskID == taskID) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Payload.ID < out[j].Payload.ID })
	return out, nil
}

// CreateChangelog publishes a shipped-change record. Related done tasks
// are archived by the backlog when it sees the event.
func (a *Adapter) CreateChangelog(ctx context.Context, draft record.ChangelogDraft) (*record.Record[record.ChangelogPayload], error) {
	payload, err := record.NewChangelog(draft, a.now())
	if err != nil {
		return nil, err
	}
	actorID, err := a.identity.ResolveCurrentActorID(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := record.New(record.KindChangelog, *payload)
	if err != nil {
		return nil, err
	}
	if err := identity.SignRecord(ctx, a.identity, rec, actorID, "author"); err != nil {
		return nil, err
	}
	if err := a.changelogs.Put(ctx, payload.ID, rec); err != nil {
		return nil, err
	}

	a.log.Info("changelog published", "changelog", payload.ID, "tasks", len(payload.RelatedTasks))
	a.bus.Publish(eventbus.NewEvent(eventbus.TypeChangelogCreated, "execution_adapter", map[string]any{
		"changelogId":  payload.ID,
		"relatedTasks": payload.RelatedTasks,
		"relatedCycle": payload.RelatedCycle,
		"actorId":      actorID,
	}))
	return rec, nil
}

// GetChangelog loads one changelog record.
func (a *Adapter) GetChangelog(ctx context.Context, id string) (*record.Record[record.ChangelogPayload], error) {
	rec, err := a.changelogs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, record.E(record.CodeRecordNotFound, "changelog %s not found", id)
	}
	return rec, nil
}

// ListChangelogs loads every changelog, oldest first.
func (a *Adapter) ListChangelogs(ctx context.Context) ([]*record.Record[record.ChangelogPayload], error) {
	ids, err := a.changelogs.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*record.Record[record.ChangelogPayload], 0, len(ids))
	for _, id := range ids {
		rec, err := a.changelogs.Get(ctx, id)
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

func (a *Adapter) isFirstExecution(ctx context.Context, taskID string) (bool, error) {
	existing, err := a.ListExecutions(ctx, taskID)
	if err != nil {
		return false, err
	}
	return len(existing) == 0, nil
}
