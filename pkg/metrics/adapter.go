package metrics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/gitgov-io/gitgov/pkg/config"
	"github.com/gitgov-io/gitgov/pkg/record"
	"github.com/gitgov-io/gitgov/pkg/store"
)

// cycleTimeFactor estimates hands-on cycle time from lead time. Without
// per-stage timestamps the tree cannot distinguish waiting from working;
// the factor is the observed industry ratio the original tooling used.
const cycleTimeFactor = 0.3

// throughputWindow is the trailing window for throughput and active-agent
// counts.
const throughputWindow = 7 * day

// Adapter computes metrics straight from the stores; it holds no state of
// its own.
type Adapter struct {
	stores     *store.Stores
	thresholds config.HealthThresholds
	log        *slog.Logger
	now        func() time.Time
}

// Option configures the adapter.
type Option func(*Adapter)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// New wires the metrics adapter.
func New(stores *store.Stores, thresholds config.HealthThresholds, opts ...Option) *Adapter {
	a := &Adapter{
		stores:     stores,
		thresholds: thresholds,
		log:        slog.Default().With("component", "metrics_adapter"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TaskHealth is the per-task health report.
type TaskHealth struct {
	TaskID          string            `json:"taskId"`
	Status          record.TaskStatus `json:"status"`
	TimeInStageDays int               `json:"timeInStageDays"`
	StalenessDays   int               `json:"stalenessDays"`
	OpenBlocking    int               `json:"openBlocking"`
	BlockingAgeDays int               `json:"blockingAgeDays"`
	Score           int               `json:"score"`
	Healthy         bool              `json:"healthy"`
}

// SystemStatus is the whole-project health report.
type SystemStatus struct {
	TaskCount         int                       `json:"taskCount"`
	Distribution      map[record.TaskStatus]int `json:"distribution"` // percent per status
	TasksCreatedToday int                       `json:"tasksCreatedToday"`
	AverageHealth     int                       `json:"averageHealth"`
	Healthy           bool                      `json:"healthy"`
}

// ProductivityMetrics is the throughput report.
type ProductivityMetrics struct {
	Throughput7d  int     `json:"throughput7d"` // tasks finished in the window
	LeadTimeDays  float64 `json:"leadTimeDays"` // average over finished tasks
	CycleTimeDays float64 `json:"cycleTimeDays"`
	ActiveAgents  int     `json:"activeAgents"` // distinct executors in the window
}

// CollaborationMetrics is the feedback-flow report.
type CollaborationMetrics struct {
	FeedbackByType map[record.FeedbackType]int `json:"feedbackByType"`
	OpenFeedback   int                         `json:"openFeedback"`
	Resolved       int                         `json:"resolved"`
	TopAssignees   []string                    `json:"topAssignees"`
}

// GetTaskHealth scores one task.
func (a *Adapter) GetTaskHealth(ctx context.Context, taskID string) (*TaskHealth, error) {
	task, err := a.stores.Tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, record.E(record.CodeTaskNotFound, "task %s not found", taskID)
	}
	open, err := a.openBlocking(ctx, taskID)
	if err != nil {
		return nil, err
	}
	now := a.now()
	score := HealthScore(task, len(open), a.thresholds.MaxDaysInStage, now)
	return &TaskHealth{
		TaskID:          taskID,
		Status:          task.Payload.Status,
		TimeInStageDays: TimeInCurrentStage(task, now),
		StalenessDays:   StalenessIndex(task, a.thresholds.MaxDaysInStage, now),
		OpenBlocking:    len(open),
		BlockingAgeDays: BlockingFeedbackAge(open, now),
		Score:           score,
		Healthy:         score >= a.thresholds.TaskMinScore,
	}, nil
}

// GetSystemStatus aggregates health over the whole backlog. An empty
// backlog is healthy with zero counts.
func (a *Adapter) GetSystemStatus(ctx context.Context) (*SystemStatus, error) {
	tasks, err := a.allTasks(ctx)
	if err != nil {
		return nil, err
	}
	status := &SystemStatus{
		TaskCount:         len(tasks),
		Distribution:      BacklogDistribution(tasks),
		TasksCreatedToday: TasksCreatedToday(tasks, a.now()),
	}
	if len(tasks) == 0 {
		status.Healthy = true
		return status, nil
	}
	total := 0
	now := a.now()
	for _, task := range tasks {
		open, err := a.openBlocking(ctx, task.Payload.ID)
		if err != nil {
			return nil, err
		}
		total += HealthScore(task, len(open), a.thresholds.MaxDaysInStage, now)
	}
	status.AverageHealth = total / len(tasks)
	status.Healthy = status.AverageHealth >= a.thresholds.SystemMinScore
	return status, nil
}

// GetProductivityMetrics reports throughput over the trailing window.
// Zero tasks yield zeros, not an error.
func (a *Adapter) GetProductivityMetrics(ctx context.Context) (*ProductivityMetrics, error) {
	tasks, err := a.allTasks(ctx)
	if err != nil {
		return nil, err
	}
	now := a.now()
	out := &ProductivityMetrics{}
	var leadSum float64
	finished := 0
	for _, task := range tasks {
		lead := LeadTimeDays(task)
		switch task.Payload.Status {
		case record.TaskStatusDone, record.TaskStatusArchived:
			finished++
			leadSum += lead
			if now.Sub(StageEnteredAt(task)) <= throughputWindow {
				out.Throughput7d++
			}
		}
	}
	if finished > 0 {
		out.LeadTimeDays = leadSum / float64(finished)
		out.CycleTimeDays = out.LeadTimeDays * cycleTimeFactor
	}

	executors := map[string]bool{}
	execIDs, err := a.stores.Executions.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range execIDs {
		exec, err := a.stores.Executions.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if exec == nil {
			continue
		}
		ts, err := record.IDTimestamp(exec.Payload.ID)
		if err != nil || now.Sub(ts) > throughputWindow {
			continue
		}
		for _, sig := range exec.Header.Signatures {
			executors[sig.KeyID] = true
		}
	}
	out.ActiveAgents = len(executors)
	return out, nil
}

// GetCollaborationMetrics reports the feedback flow.
func (a *Adapter) GetCollaborationMetrics(ctx context.Context) (*CollaborationMetrics, error) {
	ids, err := a.stores.Feedback.List(ctx)
	if err != nil {
		return nil, err
	}
	out := &CollaborationMetrics{FeedbackByType: map[record.FeedbackType]int{}}
	resolves := map[string]bool{}
	assignees := map[string]int{}
	var all []*record.Record[record.FeedbackPayload]
	for _, id := range ids {
		fb, err := a.stores.Feedback.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if fb == nil {
			continue
		}
		all = append(all, fb)
		out.FeedbackByType[fb.Payload.Type]++
		if fb.Payload.ResolvesFeedbackID != "" {
			resolves[fb.Payload.ResolvesFeedbackID] = true
		}
		if fb.Payload.Assignee != "" {
			assignees[fb.Payload.Assignee]++
		}
	}
	for _, fb := range all {
		if fb.Payload.Status == record.FeedbackStatusResolved || resolves[fb.Payload.ID] {
			out.Resolved++
		} else {
			out.OpenFeedback++
		}
	}
	for name := range assignees {
		out.TopAssignees = append(out.TopAssignees, name)
	}
	sort.Slice(out.TopAssignees, func(i, j int) bool {
		ai, aj := out.TopAssignees[i], out.TopAssignees[j]
		if assignees[ai] != assignees[aj] {
			return assignees[ai] > assignees[aj]
		}
		return ai < aj
	})
	return out, nil
}

// GetAdvancedAnalytics (per-cycle burndown, flow efficiency) is a later
// tier and not implemented.
func (a *Adapter) GetAdvancedAnalytics(context.Context) error {
	return record.E(record.CodeNotImplemented, "advanced analytics are not implemented")
}

// GetPredictiveInsights (completion forecasting) is a later tier and not
// implemented.
func (a *Adapter) GetPredictiveInsights(context.Context) error {
	return record.E(record.CodeNotImplemented, "predictive insights are not implemented")
}

func (a *Adapter) allTasks(ctx context.Context) ([]*record.Record[record.TaskPayload], error) {
	ids, err := a.stores.Tasks.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*record.Record[record.TaskPayload], 0, len(ids))
	for _, id := range ids {
		task, err := a.stores.Tasks.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if task != nil {
			out = append(out, task)
		}
	}
	return out, nil
}

// openBlocking loads the unresolved blocking feedback targeting a task.
// Duplicated from the feedback adapter on purpose: metrics depend only on
// stores, so they stay usable in read-only contexts with no identity.
func (a *Adapter) openBlocking(ctx context.Context, taskID string) ([]*record.Record[record.FeedbackPayload], error) {
	ids, err := a.stores.Feedback.List(ctx)
	if err != nil {
		return nil, err
	}
	resolves := map[string]bool{}
	var candidates []*record.Record[record.FeedbackPayload]
	for _, id := range ids {
		fb, err := a.stores.Feedback.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if fb == nil {
			continue
		}
		if fb.Payload.ResolvesFeedbackID != "" {
			resolves[fb.Payload.ResolvesFeedbackID] = true
		}
		if fb.Payload.EntityID == taskID && fb.Payload.Type == record.FeedbackTypeBlocking {
			candidates = append(candidates, fb)
		}
	}
	var out []*record.Record[record.FeedbackPayload]
	for _, fb := range candidates {
		if fb.Payload.Status != record.FeedbackStatusResolved && !resolves[fb.Payload.ID] {
			out = append(out, fb)
		}
	}
	return out, nil
}
