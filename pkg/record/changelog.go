package record

import "time"

// ChangelogPayload records a shipped change. Changelogs are append-only;
// publishing one archives every done task it relates to.
type ChangelogPayload struct {
	ID           string   `json:"id"` // {epochSeconds}-changelog-{slug}
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	RelatedTasks []string `json:"relatedTasks"`
	RelatedCycle string   `json:"relatedCycle,omitempty"`
	References   []string `json:"references"`
}

// ChangelogDraft is the caller-supplied portion of a new changelog.
type ChangelogDraft struct {
	Title        string
	Description  string
	RelatedTasks []string
	RelatedCycle string
	References   []string
}

// NewChangelog builds a complete changelog payload from a draft.
func NewChangelog(d ChangelogDraft, now time.Time) (*ChangelogPayload, error) {
	if d.Title == "" {
		return nil, E(CodeInvalidData, "changelog title is required")
	}
	p := &ChangelogPayload{
		ID:           GenerateChangelogID(d.Title, now),
		Title:        d.Title,
		Description:  d.Description,
		RelatedTasks: orEmpty(d.RelatedTasks),
		RelatedCycle: d.RelatedCycle,
		References:   orEmpty(d.References),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate enforces the changelog payload schema.
func (p *ChangelogPayload) Validate() error {
	if !ValidTimedID(p.ID) {
		return E(CodeInvalidData, "changelog id %q is not a valid timestamped id", p.ID)
	}
	if p.Title == "" {
		return E(CodeInvalidData, "changelog title is required")
	}
	return nil
}
