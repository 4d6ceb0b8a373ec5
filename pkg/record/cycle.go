package record

import "time"

// CycleStatus is the cycle (iteration/epic) lifecycle state.
type CycleStatus string

const (
	CycleStatusPlanning  CycleStatus = "planning"
	CycleStatusActive    CycleStatus = "active"
	CycleStatusCompleted CycleStatus = "completed"
	CycleStatusArchived  CycleStatus = "archived"
)

// ValidCycleStatus reports whether s is a known cycle status.
func ValidCycleStatus(s CycleStatus) bool {
	switch s {
	case CycleStatusPlanning, CycleStatusActive, CycleStatusCompleted, CycleStatusArchived:
		return true
	}
	return false
}

// CyclePayload groups tasks into an iteration or epic. TaskIDs are forward
// references; the dual back-reference lives in TaskPayload.CycleIDs and the
// backlog adapter keeps the two sides consistent.
type CyclePayload struct {
	ID            string      `json:"id"` // {epochSeconds}-cycle-{slug}
	Title         string      `json:"title"`
	Status        CycleStatus `json:"status"`
	TaskIDs       []string    `json:"taskIds"`
	ChildCycleIDs []string    `json:"childCycleIds"`
	Tags          []string    `json:"tags"`
	Notes         string      `json:"notes,omitempty"`
}

// CycleDraft is the caller-supplied portion of a new cycle.
type CycleDraft struct {
	Title string
	Tags  []string
	Notes string
}

// NewCycle builds a complete cycle payload from a draft. New cycles start
// in planning with no linked tasks.
func NewCycle(d CycleDraft, now time.Time) (*CyclePayload, error) {
	if d.Title == "" {
		return nil, E(CodeInvalidData, "cycle title is required")
	}
	p := &CyclePayload{
		ID:            GenerateCycleID(d.Title, now),
		Title:         d.Title,
		Status:        CycleStatusPlanning,
		TaskIDs:       []string{},
		ChildCycleIDs: []string{},
		Tags:          orEmpty(d.Tags),
		Notes:         d.Notes,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate enforces the cycle payload schema.
func (p *CyclePayload) Validate() error {
	if !ValidTimedID(p.ID) {
		return E(CodeInvalidData, "cycle id %q is not a valid timestamped id", p.ID)
	}
	if p.Title == "" {
		return E(CodeInvalidData, "cycle title is required")
	}
	if !ValidCycleStatus(p.Status) {
		return E(CodeInvalidData, "cycle status %q is unknown", p.Status)
	}
	return nil
}

// HasTask reports whether the cycle forward-references the task.
func (p *CyclePayload) HasTask(taskID string) bool {
	for _, id := range p.TaskIDs {
		if id == taskID {
			return true
		}
	}
	return false
}
