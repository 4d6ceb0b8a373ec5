package record

import "encoding/json"

// AgentStatus is the agent manifest lifecycle state.
type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusArchived AgentStatus = "archived"
)

// EngineType tags the agent execution engine variant.
type EngineType string

const (
	EngineTypeLocal EngineType = "local"
	EngineTypeAPI   EngineType = "api"
	EngineTypeMCP   EngineType = "mcp"
)

// Engine is the tagged variant describing how an agent executes.
// Exactly the fields for its type are set.
type Engine struct {
	Type       EngineType `json:"type"`
	Entrypoint string     `json:"entrypoint,omitempty"` // local
	Function   string     `json:"function,omitempty"`   // local
	URL        string     `json:"url,omitempty"`        // api, mcp
}

// Validate enforces the per-variant required fields.
func (e Engine) Validate() error {
	switch e.Type {
	case EngineTypeLocal:
		if e.Entrypoint == "" || e.Function == "" {
			return E(CodeInvalidData, "local engine requires entrypoint and function")
		}
	case EngineTypeAPI, EngineTypeMCP:
		if e.URL == "" {
			return E(CodeInvalidData, "%s engine requires url", e.Type)
		}
	default:
		return E(CodeInvalidData, "unknown engine type %q", e.Type)
	}
	return nil
}

// AgentPayload is the manifest for an actor of type "agent": its engine,
// triggers and knowledge requirements. The id is the anchoring actor's id;
// an agent record exists only while that actor does.
type AgentPayload struct {
	ID                       string          `json:"id"`
	Engine                   Engine          `json:"engine"`
	Status                   AgentStatus     `json:"status"`
	Triggers                 []string        `json:"triggers"`
	KnowledgeDependencies    []string        `json:"knowledge_dependencies"`
	PromptEngineRequirements json.RawMessage `json:"prompt_engine_requirements,omitempty"`
	Metadata                 json.RawMessage `json:"metadata,omitempty"`
}

// AgentDraft is the caller-supplied portion of a new agent manifest.
type AgentDraft struct {
	ID                       string
	Engine                   Engine
	Triggers                 []string
	KnowledgeDependencies    []string
	PromptEngineRequirements json.RawMessage
	Metadata                 json.RawMessage
}

// NewAgent builds a complete agent payload from a draft.
func NewAgent(d AgentDraft) (*AgentPayload, error) {
	p := &AgentPayload{
		ID:                       d.ID,
		Engine:                   d.Engine,
		Status:                   AgentStatusActive,
		Triggers:                 orEmpty(d.Triggers),
		KnowledgeDependencies:    orEmpty(d.KnowledgeDependencies),
		PromptEngineRequirements: d.PromptEngineRequirements,
		Metadata:                 d.Metadata,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate enforces the agent payload schema.
func (p *AgentPayload) Validate() error {
	if !ValidActorID(p.ID) {
		return E(CodeInvalidData, "agent id %q is not a valid actor id", p.ID)
	}
	if err := p.Engine.Validate(); err != nil {
		return err
	}
	if p.Status != AgentStatusActive && p.Status != AgentStatusArchived {
		return E(CodeInvalidData, "agent status %q is not active or archived", p.Status)
	}
	return nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
