package record

import "time"

// FeedbackEntityType names the kind of record a feedback targets.
type FeedbackEntityType string

const (
	FeedbackEntityTask      FeedbackEntityType = "task"
	FeedbackEntityExecution FeedbackEntityType = "execution"
	FeedbackEntityChangelog FeedbackEntityType = "changelog"
	FeedbackEntityFeedback  FeedbackEntityType = "feedback"
)

// ValidFeedbackEntityType reports whether t is a known target kind.
func ValidFeedbackEntityType(t FeedbackEntityType) bool {
	switch t {
	case FeedbackEntityTask, FeedbackEntityExecution, FeedbackEntityChangelog, FeedbackEntityFeedback:
		return true
	}
	return false
}

// FeedbackType is the feedback intent. A blocking feedback forces its
// target task into paused while it stays open.
type FeedbackType string

const (
	FeedbackTypeBlocking      FeedbackType = "blocking"
	FeedbackTypeSuggestion    FeedbackType = "suggestion"
	FeedbackTypeQuestion      FeedbackType = "question"
	FeedbackTypeAssignment    FeedbackType = "assignment"
	FeedbackTypeApproval      FeedbackType = "approval"
	FeedbackTypeRejection     FeedbackType = "rejection"
	FeedbackTypeClarification FeedbackType = "clarification"
)

// ValidFeedbackType reports whether t is a known feedback type.
func ValidFeedbackType(t FeedbackType) bool {
	switch t {
	case FeedbackTypeBlocking, FeedbackTypeSuggestion, FeedbackTypeQuestion,
		FeedbackTypeAssignment, FeedbackTypeApproval, FeedbackTypeRejection,
		FeedbackTypeClarification:
		return true
	}
	return false
}

// FeedbackStatus is open or resolved. Feedback records are immutable:
// resolution writes a NEW record pointing back via ResolvesFeedbackID, it
// never edits the original.
type FeedbackStatus string

const (
	FeedbackStatusOpen     FeedbackStatus = "open"
	FeedbackStatusResolved FeedbackStatus = "resolved"
)

// FeedbackPayload is a signed statement about another record.
type FeedbackPayload struct {
	ID                 string             `json:"id"` // {epochSeconds}-feedback-{slug}
	EntityType         FeedbackEntityType `json:"entityType"`
	EntityID           string             `json:"entityId"`
	Type               FeedbackType       `json:"type"`
	Status             FeedbackStatus     `json:"status"`
	Content            string             `json:"content"`
	Assignee           string             `json:"assignee,omitempty"`           // actor id, for assignments
	ResolvesFeedbackID string             `json:"resolvesFeedbackId,omitempty"` // set on resolution records
}

// FeedbackDraft is the caller-supplied portion of a new feedback.
type FeedbackDraft struct {
	EntityType         FeedbackEntityType
	EntityID           string
	Type               FeedbackType
	Content            string
	Assignee           string
	Status             FeedbackStatus // defaults to open
	ResolvesFeedbackID string
}

// NewFeedback builds a complete feedback payload from a draft.
func NewFeedback(d FeedbackDraft, now time.Time) (*FeedbackPayload, error) {
	if d.EntityID == "" {
		return nil, E(CodeInvalidData, "feedback entityId is required")
	}
	if !ValidFeedbackEntityType(d.EntityType) {
		return nil, E(CodeInvalidData, "feedback entityType %q is unknown", d.EntityType)
	}
	if d.Content == "" {
		return nil, E(CodeInvalidData, "feedback content is required")
	}
	status := d.Status
	if status == "" {
		status = FeedbackStatusOpen
	}
	p := &FeedbackPayload{
		ID:                 GenerateFeedbackID(d.Content, now),
		EntityType:         d.EntityType,
		EntityID:           d.EntityID,
		Type:               d.Type,
		Status:             status,
		Content:            d.Content,
		Assignee:           d.Assignee,
		ResolvesFeedbackID: d.ResolvesFeedbackID,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate enforces the feedback payload schema.
func (p *FeedbackPayload) Validate() error {
	if !ValidTimedID(p.ID) {
		return E(CodeInvalidData, "feedback id %q is not a valid timestamped id", p.ID)
	}
	if !ValidFeedbackEntityType(p.EntityType) {
		return E(CodeInvalidData, "feedback entityType %q is unknown", p.EntityType)
	}
	if p.EntityID == "" {
		return E(CodeInvalidData, "feedback entityId is required")
	}
	if !ValidFeedbackType(p.Type) {
		return E(CodeInvalidData, "feedback type %q is unknown", p.Type)
	}
	if p.Status != FeedbackStatusOpen && p.Status != FeedbackStatusResolved {
		return E(CodeInvalidData, "feedback status %q is not open or resolved", p.Status)
	}
	if p.Content == "" {
		return E(CodeInvalidData, "feedback content is required")
	}
	return nil
}
