// Package metrics derives read-only health and productivity indicators
// from the record tree. Nothing here writes records; the daily sweep that
// acts on these numbers lives in the backlog.
package metrics

import (
	"time"

	"github.com/gitgov-io/gitgov/pkg/record"
)

// statusWeights are the base health score per task status. Paused scores
// zero: a paused task is by definition not making progress.
var statusWeights = map[record.TaskStatus]int{
	record.TaskStatusDone:      100,
	record.TaskStatusArchived:  100,
	record.TaskStatusActive:    80,
	record.TaskStatusReady:     60,
	record.TaskStatusReview:    40,
	record.TaskStatusDraft:     20,
	record.TaskStatusPaused:    0,
	record.TaskStatusDiscarded: 0,
}

const day = 24 * time.Hour

// stalenessPenalty is the score deduction per day beyond the stage
// threshold; blockingPenalty per open blocking feedback.
const (
	stalenessPenalty = 5
	blockingPenalty  = 10
)

// StageEnteredAt approximates when a task entered its current stage: the
// newest signature timestamp, since every transition re-signs. Unsigned
// records fall back to the id's creation timestamp.
func StageEnteredAt(task *record.Record[record.TaskPayload]) time.Time {
	var latest int64
	for _, sig := range task.Header.Signatures {
		if sig.Timestamp > latest {
			latest = sig.Timestamp
		}
	}
	if latest > 0 {
		return time.Unix(latest, 0)
	}
	if ts, err := record.IDTimestamp(task.Payload.ID); err == nil {
		return ts
	}
	return time.Time{}
}

// TimeInCurrentStage returns whole days the task has sat in its current
// stage.
func TimeInCurrentStage(task *record.Record[record.TaskPayload], now time.Time) int {
	entered := StageEnteredAt(task)
	if entered.IsZero() || now.Before(entered) {
		return 0
	}
	return int(now.Sub(entered) / day)
}

// StalenessIndex returns how many days the task has overstayed the
// per-stage threshold, zero while within it. Terminal statuses are never
// stale.
func StalenessIndex(task *record.Record[record.TaskPayload], maxDaysInStage int, now time.Time) int {
	switch task.Payload.Status {
	case record.TaskStatusDone, record.TaskStatusArchived, record.TaskStatusDiscarded:
		return 0
	}
	over := TimeInCurrentStage(task, now) - maxDaysInStage
	if over < 0 {
		return 0
	}
	return over
}

// BlockingFeedbackAge returns the age in days of the oldest open blocking
// feedback in the slice, zero when none.
func BlockingFeedbackAge(open []*record.Record[record.FeedbackPayload], now time.Time) int {
	oldest := 0
	for _, fb := range open {
		if fb.Payload.Type != record.FeedbackTypeBlocking {
			continue
		}
		ts, err := record.IDTimestamp(fb.Payload.ID)
		if err != nil {
			continue
		}
		age := int(now.Sub(ts) / day)
		if age > oldest {
			oldest = age
		}
	}
	return oldest
}

// HealthScore scores one task 0..100: the status base weight minus
// penalties for staleness and open blockers.
func HealthScore(task *record.Record[record.TaskPayload], openBlocking int, maxDaysInStage int, now time.Time) int {
	score := statusWeights[task.Payload.Status]
	score -= StalenessIndex(task, maxDaysInStage, now) * stalenessPenalty
	score -= openBlocking * blockingPenalty
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// BacklogDistribution returns the percentage of tasks per status, integer
// truncated. Tasks carrying an unknown status are excluded from both the
// total and the output.
func BacklogDistribution(tasks []*record.Record[record.TaskPayload]) map[record.TaskStatus]int {
	counts := make(map[record.TaskStatus]int, len(record.TaskStatuses))
	total := 0
	for _, task := range tasks {
		if !record.ValidTaskStatus(task.Payload.Status) {
			continue
		}
		counts[task.Payload.Status]++
		total++
	}
	out := make(map[record.TaskStatus]int, len(counts))
	if total == 0 {
		return out
	}
	for status, n := range counts {
		out[status] = n * 100 / total
	}
	return out
}

// TasksCreatedToday counts tasks whose id timestamp lies within the
// trailing 24 hours.
func TasksCreatedToday(tasks []*record.Record[record.TaskPayload], now time.Time) int {
	n := 0
	for _, task := range tasks {
		ts, err := record.IDTimestamp(task.Payload.ID)
		if err != nil {
			continue
		}
		age := now.Sub(ts)
		if age >= 0 && age < day {
			n++
		}
	}
	return n
}

// LeadTimeDays is creation to completion for one finished task, zero for
// unfinished ones.
func LeadTimeDays(task *record.Record[record.TaskPayload]) float64 {
	switch task.Payload.Status {
	case record.TaskStatusDone, record.TaskStatusArchived:
	default:
		return 0
	}
	created, err := record.IDTimestamp(task.Payload.ID)
	if err != nil {
		return 0
	}
	finished := StageEnteredAt(task)
	if finished.Before(created) {
		return 0
	}
	return finished.Sub(created).Hours() / 24
}
