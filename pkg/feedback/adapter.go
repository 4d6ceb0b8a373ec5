// Package feedback manages feedback records: signed statements about
// other records (blocking objections, suggestions, assignments,
// approvals). Feedback is immutable; resolving one writes a new record
// pointing back at the original, the original file is never edited.
package feedback

import (
	"context"
	"log/slog"
	"time"

	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/identity"
	"github.com/gitgov-io/gitgov/pkg/record"
	"github.com/gitgov-io/gitgov/pkg/store"
)

// Adapter is the feedback module.
type Adapter struct {
	feedback store.Store[record.FeedbackPayload]
	identity *identity.Adapter
	bus      *eventbus.Bus
	log      *slog.Logger
	now      func() time.Time
}

// Option configures the adapter.
type Option func(*Adapter)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// New wires the feedback adapter.
func New(feedback store.Store[record.FeedbackPayload], id *identity.Adapter, bus *eventbus.Bus, opts ...Option) *Adapter {
	a := &Adapter{
		feedback: feedback,
		identity: id,
		bus:      bus,
		log:      slog.Default().With("component", "feedback_adapter"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Create writes a new feedback record signed by the current actor.
// Assignment feedback is deduplicated: a second open assignment of the
// same assignee to the same entity is DUPLICATE_ASSIGNMENT.
func (a *Adapter) Create(ctx context.Context, draft record.FeedbackDraft) (*record.Record[record.FeedbackPayload], error) {
	payload, err := record.NewFeedback(draft, a.now())
	if err != nil {
		return nil, err
	}
	if payload.Type == record.FeedbackTypeAssignment {
		dup, err := a.openAssignmentExists(ctx, payload.EntityID, payload.Assignee)
		if err != nil {
			return nil, err
		}
		if dup {
			return nil, record.E(record.CodeDuplicateAssignment,
				"%s is already assigned to %s", payload.Assignee, payload.EntityID)
		}
	}

	actorID, err := a.identity.ResolveCurrentActorID(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := record.New(record.KindFeedback, *payload)
	if err != nil {
		return nil, err
	}
	if err := identity.SignRecord(ctx, a.identity, rec, actorID, "author"); err != nil {
		return nil, err
	}
	if err := a.feedback.Put(ctx, payload.ID, rec); err != nil {
		return nil, err
	}

	a.log.Info("feedback created", "feedback", payload.ID, "type", payload.Type, "entity", payload.EntityID)
	a.bus.Publish(eventbus.NewEvent(eventbus.TypeFeedbackCreated, "feedback_adapter", map[string]any{
		"feedbackId":         payload.ID,
		"entityType":         string(payload.EntityType),
		"entityId":           payload.EntityID,
		"feedbackType":       string(payload.Type),
		"assignee":           payload.Assignee,
		"resolvesFeedbackId": payload.ResolvesFeedbackID,
		"actorId":            actorID,
	}))
	return rec, nil
}

// Resolve closes an open feedback by writing a resolution record pointing
// back at it. Resolving twice is ALREADY_RESOLVED.
func (a *Adapter) Resolve(ctx context.Context, feedbackID, content string) (*record.Record[record.FeedbackPayload], error) {
	original, err := a.Get(ctx, feedbackID)
	if err != nil {
		return nil, err
	}
	resolved, err := a.IsResolved(ctx, feedbackID)
	if err != nil {
		return nil, err
	}
	if resolved {
		return nil, record.E(record.CodeAlreadyResolved, "feedback %s is already resolved", feedbackID)
	}
	if content == "" {
		content = "resolved " + feedbackID
	}

	rec, err := a.Create(ctx, record.FeedbackDraft{
		EntityType:         record.FeedbackEntityFeedback,
		EntityID:           feedbackID,
		Type:               original.Payload.Type,
		Status:             record.FeedbackStatusResolved,
		Content:            content,
		ResolvesFeedbackID: feedbackID,
	})
	if err != nil {
		return nil, err
	}

	a.bus.Publish(eventbus.NewEvent(eventbus.TypeFeedbackStatus, "feedback_adapter", map[string]any{
		"feedbackId":   feedbackID,
		"status":       string(record.FeedbackStatusResolved),
		"resolvedBy":   rec.Payload.ID,
		"feedbackType": string(original.Payload.Type),
		"entityType":   string(original.Payload.EntityType),
		"entityId":     original.Payload.EntityID,
	}))
	return rec, nil
}

// Get loads one feedback record.
func (a *Adapter) Get(ctx context.Context, id string) (*record.Record[record.FeedbackPayload], error) {
	rec, err := a.feedback.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, record.E(record.CodeFeedbackNotFound, "feedback %s not found", id)
	}
	return rec, nil
}

// List loads every feedback record.
func (a *Adapter) List(ctx context.Context) ([]*record.Record[record.FeedbackPayload], error) {
	ids, err := a.feedback.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*record.Record[record.FeedbackPayload], 0, len(ids))
	for _, id := range ids {
		rec, err := a.feedback.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ListByEntity returns the feedback targeting one record.
func (a *Adapter) ListByEntity(ctx context.Context, entityID string) ([]*record.Record[record.FeedbackPayload], error) {
	all, err := a.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*record.Record[record.FeedbackPayload]
	for _, rec := range all {
		if rec.Payload.EntityID == entityID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// IsResolved reports whether some record resolves the given feedback, or
// the record itself was born resolved.
func (a *Adapter) IsResolved(ctx context.Context, feedbackID string) (bool, error) {
	rec, err := a.Get(ctx, feedbackID)
	if err != nil {
		return false, err
	}
	if rec.Payload.Status == record.FeedbackStatusResolved {
		return true, nil
	}
	all, err := a.List(ctx)
	if err != nil {
		return false, err
	}
	for _, r := range all {
		if r.Payload.ResolvesFeedbackID == feedbackID {
			return true, nil
		}
	}
	return false, nil
}

// OpenBlocking returns the still-open blocking feedback targeting the
// entity. The backlog resumes a paused task only when this is empty.
func (a *Adapter) OpenBlocking(ctx context.Context, entityID string) ([]*record.Record[record.FeedbackPayload], error) {
	targeting, err := a.ListByEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	var out []*record.Record[record.FeedbackPayload]
	for _, rec := range targeting {
		if rec.Payload.Type != record.FeedbackTypeBlocking {
			continue
		}
		resolved, err := a.IsResolved(ctx, rec.Payload.ID)
		if err != nil {
			return nil, err
		}
		if !resolved {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (a *Adapter) openAssignmentExists(ctx context.Context, entityID, assignee string) (bool, error) {
	targeting, err := a.ListByEntity(ctx, entityID)
	if err != nil {
		return false, err
	}
	for _, rec := range targeting {
		if rec.Payload.Type != record.FeedbackTypeAssignment || rec.Payload.Assignee != assignee {
			continue
		}
		resolved, err := a.IsResolved(ctx, rec.Payload.ID)
		if err != nil {
			return false, err
		}
		if !resolved {
			return true, nil
		}
	}
	return false, nil
}
