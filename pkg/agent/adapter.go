// Package agent manages agent manifests: the engine, triggers and
// knowledge requirements of actors of type "agent". A manifest is
// anchored to its actor record; it cannot outlive it and its id is the
// actor's id.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/identity"
	"github.com/gitgov-io/gitgov/pkg/record"
	"github.com/gitgov-io/gitgov/pkg/store"
)

// Adapter is the agent module.
type Adapter struct {
	agents   store.Store[record.AgentPayload]
	identity *identity.Adapter
	keys     store.KeyProvider
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

// New wires the agent adapter.
func New(agents store.Store[record.AgentPayload], id *identity.Adapter, keys store.KeyProvider, bus *eventbus.Bus, opts ...Option) *Adapter {
	a := &Adapter{
		agents:   agents,
		identity: id,
		keys:     keys,
		bus:      bus,
		log:      slog.Default().With("component", "agent_adapter"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CreateAgent registers a manifest for an existing agent actor. The actor
// must exist, be of type agent, and hold a real private key: agent
// manifests are never mock-signed, an agent that cannot sign cannot act.
func (a *Adapter) CreateAgent(ctx context.Context, draft record.AgentDraft) (*record.Record[record.AgentPayload], error) {
	if draft.ID == "" {
		return nil, record.E(record.CodeInvalidData, "agent id is required")
	}
	payload, err := record.NewAgent(draft)
	if err != nil {
		return nil, err
	}
	actor, err := a.identity.GetActor(ctx, payload.ID)
	if err != nil {
		return nil, err
	}
	if actor.Payload.Type != record.ActorTypeAgent {
		return nil, record.E(record.CodeActorNotAgent, "actor %s is %s, not agent", payload.ID, actor.Payload.Type)
	}
	if exists, err := a.agents.Exists(ctx, payload.ID); err != nil {
		return nil, err
	} else if exists {
		return nil, record.E(record.CodeInvalidData, "agent %s already registered", payload.ID)
	}
	has, err := a.keys.Has(ctx, payload.ID)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, record.E(record.CodePrivateKeyNotFound, "agent %s has no private key", payload.ID)
	}

	rec, err := record.New(record.KindAgent, *payload)
	if err != nil {
		return nil, err
	}
	if err := identity.SignRecord(ctx, a.identity, rec, payload.ID, "author"); err != nil {
		return nil, err
	}
	if err := a.agents.Put(ctx, payload.ID, rec); err != nil {
		return nil, err
	}

	a.log.Info("agent registered", "agent", payload.ID, "engine", payload.Engine.Type)
	a.bus.Publish(eventbus.NewEvent(eventbus.TypeAgentRegistered, "agent_adapter", map[string]any{
		"agentId":    payload.ID,
		"engineType": string(payload.Engine.Type),
	}))
	return rec, nil
}

// GetAgent loads one manifest.
func (a *Adapter) GetAgent(ctx context.Context, id string) (*record.Record[record.AgentPayload], error) {
	rec, err := a.agents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, record.E(record.CodeRecordNotFound, "agent %s not found", id)
	}
	return rec, nil
}

// ListAgents loads every manifest.
func (a *Adapter) ListAgents(ctx context.Context) ([]*record.Record[record.AgentPayload], error) {
	ids, err := a.agents.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*record.Record[record.AgentPayload], 0, len(ids))
	for _, id := range ids {
		rec, err := a.agents.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// UpdateAgent replaces the mutable manifest fields. The id and status are
// not updatable here; archiving goes through ArchiveAgent.
func (a *Adapter) UpdateAgent(ctx context.Context, id string, draft record.AgentDraft) (*record.Record[record.AgentPayload], error) {
	if draft.ID != "" && draft.ID != id {
		return nil, record.E(record.CodeInvalidData, "agent id cannot change (got %s, want %s)", draft.ID, id)
	}
	rec, err := a.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Payload.Engine = draft.Engine
	rec.Payload.Triggers = orEmpty(draft.Triggers)
	rec.Payload.KnowledgeDependencies = orEmpty(draft.KnowledgeDependencies)
	rec.Payload.PromptEngineRequirements = draft.PromptEngineRequirements
	rec.Payload.Metadata = draft.Metadata
	if err := rec.Payload.Validate(); err != nil {
		return nil, err
	}
	return a.resignAndPut(ctx, id, rec)
}

// ArchiveAgent retires the manifest. The anchoring actor is untouched.
func (a *Adapter) ArchiveAgent(ctx context.Context, id string) (*record.Record[record.AgentPayload], error) {
	rec, err := a.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Payload.Status == record.AgentStatusArchived {
		return rec, nil
	}
	rec.Payload.Status = record.AgentStatusArchived
	rec, err = a.resignAndPut(ctx, id, rec)
	if err != nil {
		return nil, err
	}
	a.log.Info("agent archived", "agent", id)
	return rec, nil
}

func (a *Adapter) resignAndPut(ctx context.Context, id string, rec *record.Record[record.AgentPayload]) (*record.Record[record.AgentPayload], error) {
	if err := record.Rechecksum(rec); err != nil {
		return nil, err
	}
	rec.Header.Signatures = nil
	if err := identity.SignRecord(ctx, a.identity, rec, id, "author"); err != nil {
		return nil, err
	}
	if err := a.agents.Put(ctx, id, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
