package record

import (
	"encoding/json"
	"time"
)

// TaskStatus is a task workflow state. Which transitions are legal is not
// fixed here; the workflow methodology document declares the state machine.
type TaskStatus string

const (
	TaskStatusDraft     TaskStatus = "draft"
	TaskStatusReview    TaskStatus = "review"
	TaskStatusReady     TaskStatus = "ready"
	TaskStatusActive    TaskStatus = "active"
	TaskStatusDone      TaskStatus = "done"
	TaskStatusPaused    TaskStatus = "paused"
	TaskStatusArchived  TaskStatus = "archived"
	TaskStatusDiscarded TaskStatus = "discarded"
)

// TaskStatuses enumerates every valid task status.
var TaskStatuses = []TaskStatus{
	TaskStatusDraft, TaskStatusReview, TaskStatusReady, TaskStatusActive,
	TaskStatusDone, TaskStatusPaused, TaskStatusArchived, TaskStatusDiscarded,
}

// ValidTaskStatus reports whether s is a known task status.
func ValidTaskStatus(s TaskStatus) bool {
	for _, v := range TaskStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// TaskPriority orders tasks within a backlog view.
type TaskPriority string

const (
	TaskPriorityCritical TaskPriority = "critical"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityMedium   TaskPriority = "medium"
	TaskPriorityLow      TaskPriority = "low"
)

// TaskPayload is a unit of work tracked by the backlog.
type TaskPayload struct {
	ID          string          `json:"id"` // {epochSeconds}-task-{slug}
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      TaskStatus      `json:"status"`
	Priority    TaskPriority    `json:"priority"`
	Tags        []string        `json:"tags"`
	References  []string        `json:"references"`
	CycleIDs    []string        `json:"cycleIds"` // back-references; dual of CyclePayload.TaskIDs
	Notes       string          `json:"notes,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// TaskDraft is the caller-supplied portion of a new task.
type TaskDraft struct {
	Title       string
	Description string
	Priority    TaskPriority
	Tags        []string
	References  []string
	Notes       string
	Metadata    json.RawMessage
}

// NewTask builds a complete task payload from a draft. New tasks start in
// draft with a freshly minted timestamped id.
func NewTask(d TaskDraft, now time.Time) (*TaskPayload, error) {
	if d.Title == "" {
		return nil, E(CodeInvalidData, "task title is required")
	}
	if d.Description == "" {
		return nil, E(CodeInvalidData, "task description is required")
	}
	priority := d.Priority
	if priority == "" {
		priority = TaskPriorityMedium
	}
	p := &TaskPayload{
		ID:          GenerateTaskID(d.Title, now),
		Title:       d.Title,
		Description: d.Description,
		Status:      TaskStatusDraft,
		Priority:    priority,
		Tags:        orEmpty(d.Tags),
		References:  orEmpty(d.References),
		CycleIDs:    []string{},
		Notes:       d.Notes,
		Metadata:    d.Metadata,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate enforces the task payload schema.
func (p *TaskPayload) Validate() error {
	if !ValidTimedID(p.ID) {
		return E(CodeInvalidData, "task id %q is not a valid timestamped id", p.ID)
	}
	if p.Title == "" {
		return E(CodeInvalidData, "task title is required")
	}
	if p.Description == "" {
		return E(CodeInvalidData, "task description is required")
	}
	if !ValidTaskStatus(p.Status) {
		return E(CodeInvalidData, "task status %q is unknown", p.Status)
	}
	switch p.Priority {
	case TaskPriorityCritical, TaskPriorityHigh, TaskPriorityMedium, TaskPriorityLow:
	default:
		return E(CodeInvalidData, "task priority %q is unknown", p.Priority)
	}
	return nil
}

// HasTag reports whether the task carries the exact tag.
func (p *TaskPayload) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// InCycle reports whether the task back-references the cycle.
func (p *TaskPayload) InCycle(cycleID string) bool {
	for _, id := range p.CycleIDs {
		if id == cycleID {
			return true
		}
	}
	return false
}
