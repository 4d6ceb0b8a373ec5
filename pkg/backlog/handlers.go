package backlog

import (
	"context"
	"fmt"
	"strings"

	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/metrics"
	"github.com/gitgov-io/gitgov/pkg/record"
)

// staleSweepMarker prefixes the content of sweep-generated suggestions so
// re-runs can recognize and skip tasks already flagged.
const staleSweepMarker = "[staleness sweep]"

// RegisterHandlers subscribes the backlog's automatic transitions on the
// bus. Call once during wiring, after the feedback adapter exists.
func (a *Adapter) RegisterHandlers(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.TypeFeedbackCreated, a.handleFeedbackCreated)
	bus.Subscribe(eventbus.TypeFeedbackStatus, a.handleFeedbackStatusChanged)
	bus.Subscribe(eventbus.TypeExecutionCreated, a.handleExecutionCreated)
	bus.Subscribe(eventbus.TypeChangelogCreated, a.handleChangelogCreated)
	bus.Subscribe(eventbus.TypeCycleStatusChanged, a.handleCycleStatusChanged)
	bus.Subscribe(eventbus.TypeDailyTick, a.handleDailyTick)
}

// handleFeedbackCreated pauses an active task when blocking feedback
// lands on it.
func (a *Adapter) handleFeedbackCreated(ctx context.Context, evt eventbus.Event) error {
	if evt.Str("feedbackType") != string(record.FeedbackTypeBlocking) {
		return nil
	}
	if evt.Str("entityType") != string(record.FeedbackEntityTask) {
		return nil
	}
	if evt.Str("resolvesFeedbackId") != "" {
		return nil
	}
	taskID := evt.Str("entityId")
	task, err := a.tasks.Get(ctx, taskID)
	if err != nil || task == nil {
		return err
	}
	if task.Payload.Status != record.TaskStatusActive {
		// blocking feedback on a non-active task records the objection
		// but moves nothing
		return nil
	}
	_, err = a.transition(ctx, taskID, string(record.TaskStatusPaused), true)
	return err
}

// handleFeedbackStatusChanged resumes a paused task once its last open
// blocking feedback is resolved.
func (a *Adapter) handleFeedbackStatusChanged(ctx context.Context, evt eventbus.Event) error {
	if evt.Str("feedbackType") != string(record.FeedbackTypeBlocking) {
		return nil
	}
	if evt.Str("entityType") != string(record.FeedbackEntityTask) {
		return nil
	}
	taskID := evt.Str("entityId")
	task, err := a.tasks.Get(ctx, taskID)
	if err != nil || task == nil {
		return err
	}
	if task.Payload.Status != record.TaskStatusPaused {
		return nil
	}
	blocking, err := a.feedback.OpenBlocking(ctx, taskID)
	if err != nil {
		return err
	}
	if len(blocking) > 0 {
		a.log.Info("task stays paused", "task", taskID, "openBlockers", len(blocking))
		return nil
	}
	_, err = a.transition(ctx, taskID, string(record.TaskStatusActive), true)
	return err
}

// handleExecutionCreated activates a ready task on its first recorded
// execution.
func (a *Adapter) handleExecutionCreated(ctx context.Context, evt eventbus.Event) error {
	taskID := evt.Str("taskId")
	task, err := a.tasks.Get(ctx, taskID)
	if err != nil || task == nil {
		return err
	}
	if task.Payload.Status != record.TaskStatusReady {
		return nil
	}
	_, err = a.transition(ctx, taskID, string(record.TaskStatusActive), true)
	return err
}

// handleChangelogCreated archives the done tasks a changelog relates to.
func (a *Adapter) handleChangelogCreated(ctx context.Context, evt eventbus.Event) error {
	related, _ := evt.Payload["relatedTasks"].([]string)
	if related == nil {
		// events that crossed a JSON boundary carry []any
		if anys, ok := evt.Payload["relatedTasks"].([]any); ok {
			for _, v := range anys {
				if s, ok := v.(string); ok {
					related = append(related, s)
				}
			}
		}
	}
	for _, taskID := range related {
		task, err := a.tasks.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if task == nil || task.Payload.Status != record.TaskStatusDone {
			continue
		}
		if _, err := a.transition(ctx, taskID, string(record.TaskStatusArchived), true); err != nil {
			return err
		}
	}
	return nil
}

// handleCycleStatusChanged observes cycle moves. Completing a cycle does
// not cascade to its tasks: a task may belong to several cycles, so bulk
// status changes are an explicit operator action, not an automatic one.
func (a *Adapter) handleCycleStatusChanged(_ context.Context, evt eventbus.Event) error {
	a.log.Info("cycle status observed", "cycle", evt.Str("cycleId"),
		"from", evt.Str("from"), "to", evt.Str("to"))
	return nil
}

// handleDailyTick sweeps the backlog for tasks that overstayed their
// stage or whose health score fell below the configured floor, and files
// one suggestion feedback per such task, rate-limited so a long-neglected
// backlog does not flood the tree.
func (a *Adapter) handleDailyTick(ctx context.Context, _ eventbus.Event) error {
	tasks, err := a.ListTasks(ctx)
	if err != nil {
		return err
	}
	now := a.now()
	for _, task := range tasks {
		switch task.Payload.Status {
		case record.TaskStatusReview, record.TaskStatusReady, record.TaskStatusActive, record.TaskStatusPaused:
		default:
			continue
		}
		open, err := a.feedback.OpenBlocking(ctx, task.Payload.ID)
		if err != nil {
			return err
		}
		days := metrics.TimeInCurrentStage(task, now)
		score := metrics.HealthScore(task, len(open), a.thresholds.MaxDaysInStage, now)
		stale := days > a.thresholds.MaxDaysInStage
		unhealthy := score < a.thresholds.TaskMinScore
		if !stale && !unhealthy {
			continue
		}
		flagged, err := a.alreadyFlagged(ctx, task.Payload.ID)
		if err != nil {
			return err
		}
		if flagged {
			continue
		}
		if !a.sweepLimiter.Allow() {
			a.log.Warn("stale sweep rate limited", "task", task.Payload.ID)
			continue
		}
		_, err = a.feedback.Create(ctx, record.FeedbackDraft{
			EntityType: record.FeedbackEntityTask,
			EntityID:   task.Payload.ID,
			Type:       record.FeedbackTypeSuggestion,
			Content: fmt.Sprintf("%s task is %s with health %d after %d days in stage (min score %d, max days %d)",
				staleSweepMarker, task.Payload.Status, score, days,
				a.thresholds.TaskMinScore, a.thresholds.MaxDaysInStage),
		})
		if err != nil {
			return err
		}
		a.log.Info("unhealthy task flagged", "task", task.Payload.ID,
			"status", task.Payload.Status, "score", score, "days", days)
	}
	return nil
}

func (a *Adapter) alreadyFlagged(ctx context.Context, taskID string) (bool, error) {
	fbs, err := a.feedback.ListByEntity(ctx, taskID)
	if err != nil {
		return false, err
	}
	for _, fb := range fbs {
		if fb.Payload.Type != record.FeedbackTypeSuggestion {
			continue
		}
		if !strings.HasPrefix(fb.Payload.Content, staleSweepMarker) {
			continue
		}
		resolved, err := a.feedback.IsResolved(ctx, fb.Payload.ID)
		if err != nil {
			return false, err
		}
		if !resolved {
			return true, nil
		}
	}
	return false, nil
}
