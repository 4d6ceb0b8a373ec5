// Package backlog is the task and cycle engine: CRUD over both record
// kinds, the methodology-gated task lifecycle, task/cycle linking, and
// the event handlers that drive automatic transitions (pause on blocking
// feedback, activate on first execution, archive on changelog).
package backlog

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/gitgov-io/gitgov/pkg/config"
	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/feedback"
	"github.com/gitgov-io/gitgov/pkg/identity"
	"github.com/gitgov-io/gitgov/pkg/record"
	"github.com/gitgov-io/gitgov/pkg/store"
	"github.com/gitgov-io/gitgov/pkg/workflow"
)

// Adapter is the backlog module.
type Adapter struct {
	tasks      store.Store[record.TaskPayload]
	cycles     store.Store[record.CyclePayload]
	workflow   *workflow.Adapter
	identity   *identity.Adapter
	feedback   *feedback.Adapter
	bus        *eventbus.Bus
	thresholds config.HealthThresholds
	log        *slog.Logger
	now        func() time.Time

	// caps how many stale-task suggestions one sweep may emit
	sweepLimiter *rate.Limiter
}

// Option configures the adapter.
type Option func(*Adapter)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// WithSweepLimit overrides the stale-sweep rate limiter.
func WithSweepLimit(l *rate.Limiter) Option {
	return func(a *Adapter) { a.sweepLimiter = l }
}

// New wires the backlog adapter.
func New(tasks store.Store[record.TaskPayload], cycles store.Store[record.CyclePayload], wf *workflow.Adapter, id *identity.Adapter, fb *feedback.Adapter, bus *eventbus.Bus, thresholds config.HealthThresholds, opts ...Option) *Adapter {
	a := &Adapter{
		tasks:        tasks,
		cycles:       cycles,
		workflow:     wf,
		identity:     id,
		feedback:     fb,
		bus:          bus,
		thresholds:   thresholds,
		log:          slog.Default().With("component", "backlog_adapter"),
		now:          time.Now,
		sweepLimiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CreateTask writes a new draft task signed by the current actor.
func (a *Adapter) CreateTask(ctx context.Context, draft record.TaskDraft) (*record.Record[record.TaskPayload], error) {
	payload, err := record.NewTask(draft, a.now())
	if err != nil {
		return nil, err
	}
	actorID, err := a.identity.ResolveCurrentActorID(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := record.New(record.KindTask, *payload)
	if err != nil {
		return nil, err
	}
	if err := identity.SignRecord(ctx, a.identity, rec, actorID, "author"); err != nil {
		return nil, err
	}
	if err := a.tasks.Put(ctx, payload.ID, rec); err != nil {
		return nil, err
	}
	a.log.Info("task created", "task", payload.ID, "priority", payload.Priority)
	return rec, nil
}

// GetTask loads one task.
func (a *Adapter) GetTask(ctx context.Context, id string) (*record.Record[record.TaskPayload], error) {
	rec, err := a.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, record.E(record.CodeTaskNotFound, "task %s not found", id)
	}
	return rec, nil
}

// ListTasks loads every task, oldest first.
func (a *Adapter) ListTasks(ctx context.Context) ([]*record.Record[record.TaskPayload], error) {
	ids, err := a.tasks.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*record.Record[record.TaskPayload], 0, len(ids))
	for _, id := range ids {
		rec, err := a.tasks.Get(ctx, id)
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

// UpdateTask edits the descriptive fields of a task still in draft or
// review. Status, id and cycle links are not editable here.
func (a *Adapter) UpdateTask(ctx context.Context, id string, draft record.TaskDraft) (*record.Record[record.TaskPayload], error) {
	rec, err := a.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Payload.Status != record.TaskStatusDraft && rec.Payload.Status != record.TaskStatusReview {
		return nil, record.E(record.CodeIllegalTransition, "task %s is %s, editable only in draft or review", id, rec.Payload.Status)
	}
	if draft.Title != "" {
		rec.Payload.Title = draft.Title
	}
	if draft.Description != "" {
		rec.Payload.Description = draft.Description
	}
	if draft.Priority != "" {
		rec.Payload.Priority = draft.Priority
	}
	if draft.Tags != nil {
		rec.Payload.Tags = draft.Tags
	}
	if draft.References != nil {
		rec.Payload.References = draft.References
	}
	if draft.Notes != "" {
		rec.Payload.Notes = draft.Notes
	}
	if draft.Metadata != nil {
		rec.Payload.Metadata = draft.Metadata
	}
	if err := rec.Payload.Validate(); err != nil {
		return nil, err
	}
	return a.putTask(ctx, rec, "author")
}

// Lifecycle verbs. Each is a methodology-gated transition signed by the
// current actor.

// SubmitTask moves a draft into review.
func (a *Adapter) SubmitTask(ctx context.Context, id string) (*record.Record[record.TaskPayload], error) {
	return a.transition(ctx, id, string(record.TaskStatusReview), false)
}

// ApproveTask moves a reviewed task to ready. Under a threshold above one
// the call records a partial approval and leaves the status unchanged
// until enough approvals accumulate.
func (a *Adapter) ApproveTask(ctx context.Context, id string) (*record.Record[record.TaskPayload], error) {
	return a.transition(ctx, id, string(record.TaskStatusReady), false)
}

// ActivateTask moves a ready task to active.
func (a *Adapter) ActivateTask(ctx context.Context, id string) (*record.Record[record.TaskPayload], error) {
	return a.transition(ctx, id, string(record.TaskStatusActive), false)
}

// CompleteTask moves an active task to done.
func (a *Adapter) CompleteTask(ctx context.Context, id string) (*record.Record[record.TaskPayload], error) {
	return a.transition(ctx, id, string(record.TaskStatusDone), false)
}

// PauseTask manually pauses an active task.
func (a *Adapter) PauseTask(ctx context.Context, id string) (*record.Record[record.TaskPayload], error) {
	return a.transition(ctx, id, string(record.TaskStatusPaused), false)
}

// ResumeTask manually resumes a paused task. A task with open blocking
// feedback stays paused: resolve the blockers first.
func (a *Adapter) ResumeTask(ctx context.Context, id string) (*record.Record[record.TaskPayload], error) {
	blocking, err := a.feedback.OpenBlocking(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(blocking) > 0 {
		return nil, record.E(record.CodePreconditionFailed,
			"task %s has %d open blocking feedback(s)", id, len(blocking))
	}
	return a.transition(ctx, id, string(record.TaskStatusActive), false)
}

// DiscardTask abandons a task from draft, review or paused.
func (a *Adapter) DiscardTask(ctx context.Context, id string) (*record.Record[record.TaskPayload], error) {
	return a.transition(ctx, id, string(record.TaskStatusDiscarded), false)
}

// transition applies one state change. Manual transitions (viaEvent false)
// pass the full methodology gate: legality, signature rule, custom rules.
// Event-driven transitions check legality only; the triggering record
// already carries its own signatures.
func (a *Adapter) transition(ctx context.Context, taskID, to string, viaEvent bool) (*record.Record[record.TaskPayload], error) {
	rec, err := a.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	from := string(rec.Payload.Status)
	if from == to {
		// re-delivered events land here; nothing to do
		return rec, nil
	}
	if a.workflow.GetTransitionRule(from, to) == nil {
		return nil, record.E(record.CodeIllegalTransition,
			"no %s -> %s transition for task %s", from, to, taskID)
	}

	signRole := "author"
	signerID := ""
	if !viaEvent {
		actor, err := a.identity.GetCurrentActor(ctx)
		if err != nil {
			return nil, err
		}
		signerID = actor.Payload.ID
		wctx, err := a.workflowContext(ctx, rec, &actor.Payload, to)
		if err != nil {
			return nil, err
		}
		sigRule, err := a.workflow.ResolveSignatureRule(wctx)
		if err != nil {
			return nil, err
		}
		ok, err := a.workflow.ValidateCustomRules(wctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, record.E(record.CodePreconditionFailed,
				"custom rules reject %s -> %s for task %s", from, to, taskID)
		}
		if sigRule != nil {
			signRole = sigRule.Role
			have := countRole(rec.Header.Signatures, sigRule.Role)
			if have+1 < sigRule.MinApprovals {
				// partial approval: sign without moving; the payload is
				// unchanged so earlier signatures stay valid
				if err := identity.SignRecord(ctx, a.identity, rec, signerID, signRole); err != nil {
					return nil, err
				}
				if err := a.tasks.Put(ctx, taskID, rec); err != nil {
					return nil, err
				}
				a.log.Info("partial approval recorded", "task", taskID, "to", to,
					"have", have+1, "need", sigRule.MinApprovals)
				return rec, nil
			}
		}
	} else {
		// sign as the session actor when one exists, mock otherwise
		if current, err := a.identity.ResolveCurrentActorID(ctx); err == nil {
			signerID = current
		}
		signRole = "system"
	}

	rec.Payload.Status = record.TaskStatus(to)
	if err := record.Rechecksum(rec); err != nil {
		return nil, err
	}
	rec.Header.Signatures = nil
	if signerID != "" {
		if err := identity.SignRecord(ctx, a.identity, rec, signerID, signRole); err != nil {
			return nil, err
		}
	} else {
		rec.Header.Signatures = []record.Signature{{
			KeyID:     "system",
			Role:      "system",
			Signature: "mock:system",
			Timestamp: a.now().Unix(),
		}}
	}
	if err := a.tasks.Put(ctx, taskID, rec); err != nil {
		return nil, err
	}

	a.log.Info("task transitioned", "task", taskID, "from", from, "to", to, "viaEvent", viaEvent)
	a.bus.Publish(eventbus.NewEvent(eventbus.TypeTaskStatusChanged, "backlog_adapter", map[string]any{
		"taskId":   taskID,
		"from":     from,
		"to":       to,
		"viaEvent": viaEvent,
	}))
	return rec, nil
}

// workflowContext assembles the validation context: the task, actor, and
// the feedback and cycle records custom rules inspect.
func (a *Adapter) workflowContext(ctx context.Context, rec *record.Record[record.TaskPayload], actor *record.ActorPayload, to string) (workflow.Context, error) {
	fb, err := a.feedback.ListByEntity(ctx, rec.Payload.ID)
	if err != nil {
		return workflow.Context{}, err
	}
	feedbackPayloads := make([]*record.FeedbackPayload, 0, len(fb))
	for _, f := range fb {
		p := f.Payload
		resolved, err := a.feedback.IsResolved(ctx, p.ID)
		if err != nil {
			return workflow.Context{}, err
		}
		if resolved {
			p.Status = record.FeedbackStatusResolved
		}
		feedbackPayloads = append(feedbackPayloads, &p)
	}
	var cyclePayloads []*record.CyclePayload
	for _, cid := range rec.Payload.CycleIDs {
		c, err := a.cycles.Get(ctx, cid)
		if err != nil {
			return workflow.Context{}, err
		}
		if c != nil {
			p := c.Payload
			cyclePayloads = append(cyclePayloads, &p)
		}
	}
	return workflow.Context{
		TransitionTo: to,
		Task:         &rec.Payload,
		Actor:        actor,
		Signatures:   rec.Header.Signatures,
		Feedback:     feedbackPayloads,
		Cycles:       cyclePayloads,
	}, nil
}

// GetTasksAssignedToActor returns the tasks with an assignment feedback
// naming the actor, resolved or still open.
func (a *Adapter) GetTasksAssignedToActor(ctx context.Context, actorID string) ([]*record.Record[record.TaskPayload], error) {
	all, err := a.feedback.List(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []*record.Record[record.TaskPayload]
	for _, fb := range all {
		if fb.Payload.Type != record.FeedbackTypeAssignment || fb.Payload.Assignee != actorID {
			continue
		}
		if fb.Payload.EntityType != record.FeedbackEntityTask || seen[fb.Payload.EntityID] {
			continue
		}
		seen[fb.Payload.EntityID] = true
		task, err := a.tasks.Get(ctx, fb.Payload.EntityID)
		if err != nil {
			return nil, err
		}
		if task != nil {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Payload.ID < out[j].Payload.ID })
	return out, nil
}

// putTask rechecksums, re-signs as the current actor and persists.
func (a *Adapter) putTask(ctx context.Context, rec *record.Record[record.TaskPayload], role string) (*record.Record[record.TaskPayload], error) {
	actorID, err := a.identity.ResolveCurrentActorID(ctx)
	if err != nil {
		return nil, err
	}
	if err := record.Rechecksum(rec); err != nil {
		return nil, err
	}
	rec.Header.Signatures = nil
	if err := identity.SignRecord(ctx, a.identity, rec, actorID, role); err != nil {
		return nil, err
	}
	if err := a.tasks.Put(ctx, rec.Payload.ID, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func countRole(sigs []record.Signature, role string) int {
	n := 0
	for _, s := range sigs {
		if s.Role == role {
			n++
		}
	}
	return n
}
