package record

import "time"

// ExecutionResult tags the outcome of one execution attempt.
type ExecutionResult string

const (
	ExecutionResultSuccess ExecutionResult = "success"
	ExecutionResultFailure ExecutionResult = "failure"
	ExecutionResultPartial ExecutionResult = "partial"
)

// ExecutionPayload is one append-only entry in a task's execution history.
type ExecutionPayload struct {
	ID         string          `json:"id"` // {epochSeconds}-exec-{slug}
	TaskID     string          `json:"taskId"`
	Summary    string          `json:"summary"`
	Result     ExecutionResult `json:"result"`
	References []string        `json:"references"`
	Notes      string          `json:"notes,omitempty"`
}

// ExecutionDraft is the caller-supplied portion of a new execution entry.
type ExecutionDraft struct {
	TaskID     string
	Summary    string
	Result     ExecutionResult
	References []string
	Notes      string
}

// NewExecution builds a complete execution payload from a draft.
func NewExecution(d ExecutionDraft, now time.Time) (*ExecutionPayload, error) {
	if d.TaskID == "" {
		return nil, E(CodeInvalidData, "execution taskId is required")
	}
	if d.Summary == "" {
		return nil, E(CodeInvalidData, "execution summary is required")
	}
	result := d.Result
	if result == "" {
		result = ExecutionResultSuccess
	}
	p := &ExecutionPayload{
		ID:         GenerateExecutionID(d.Summary, now),
		TaskID:     d.TaskID,
		Summary:    d.Summary,
		Result:     result,
		References: orEmpty(d.References),
		Notes:      d.Notes,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate enforces the execution payload schema.
func (p *ExecutionPayload) Validate() error {
	if !ValidTimedID(p.ID) {
		return E(CodeInvalidData, "execution id %q is not a valid timestamped id", p.ID)
	}
	if p.TaskID == "" {
		return E(CodeInvalidData, "execution taskId is required")
	}
	if p.Summary == "" {
		return E(CodeInvalidData, "execution summary is required")
	}
	switch p.Result {
	case ExecutionResultSuccess, ExecutionResultFailure, ExecutionResultPartial:
	default:
		return E(CodeInvalidData, "execution result %q is unknown", p.Result)
	}
	return nil
}
