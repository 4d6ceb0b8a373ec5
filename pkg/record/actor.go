package record

// ActorType discriminates human principals from autonomous agents.
type ActorType string

const (
	ActorTypeHuman ActorType = "human"
	ActorTypeAgent ActorType = "agent"
)

// ActorStatus is the actor lifecycle state. The only transition is
// active -> revoked; revoked is terminal.
type ActorStatus string

const (
	ActorStatusActive  ActorStatus = "active"
	ActorStatusRevoked ActorStatus = "revoked"
)

// RevocationReason says why an actor was revoked.
type RevocationReason string

const (
	RevocationCompromised RevocationReason = "compromised"
	RevocationRotation    RevocationReason = "rotation"
	RevocationManual      RevocationReason = "manual"
)

// Valid reports whether r is a known revocation reason.
func (r RevocationReason) Valid() bool {
	switch r {
	case RevocationCompromised, RevocationRotation, RevocationManual:
		return true
	}
	return false
}

// ActorPayload is the payload of an actor record: a cryptographic
// principal with its Ed25519 public key and capability roles.
type ActorPayload struct {
	ID           string      `json:"id"`
	Type         ActorType   `json:"type"`
	DisplayName  string      `json:"displayName"`
	PublicKey    string      `json:"publicKey"` // base64 Ed25519
	Roles        []string    `json:"roles"`     // ordered, non-empty, e.g. "author", "approver:product"
	Status       ActorStatus `json:"status"`
	SupersededBy string      `json:"supersededBy,omitempty"` // successor after key rotation
}

// ActorDraft is the caller-supplied portion of a new actor.
type ActorDraft struct {
	ID          string // optional; generated from Type+DisplayName when empty
	Type        ActorType
	DisplayName string
	PublicKey   string
	Roles       []string
}

// NewActor builds a complete actor payload from a draft, filling the
// defaults (roles=["author"], status=active) and validating the result.
func NewActor(d ActorDraft) (*ActorPayload, error) {
	if d.Type == "" {
		return nil, E(CodeInvalidData, "actor type is required")
	}
	if d.DisplayName == "" {
		return nil, E(CodeInvalidData, "actor displayName is required")
	}
	id := d.ID
	if id == "" {
		id = GenerateActorID(d.Type, d.DisplayName)
	}
	roles := d.Roles
	if len(roles) == 0 {
		roles = []string{"author"}
	}
	p := &ActorPayload{
		ID:          id,
		Type:        d.Type,
		DisplayName: d.DisplayName,
		PublicKey:   d.PublicKey,
		Roles:       roles,
		Status:      ActorStatusActive,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate enforces the actor payload schema.
func (p *ActorPayload) Validate() error {
	if !ValidActorID(p.ID) {
		return E(CodeInvalidData, "actor id %q does not match ^(human|agent)(:[a-z0-9-]+)+$", p.ID)
	}
	if p.Type != ActorTypeHuman && p.Type != ActorTypeAgent {
		return E(CodeInvalidData, "actor type %q is not human or agent", p.Type)
	}
	if p.DisplayName == "" {
		return E(CodeInvalidData, "actor displayName is required")
	}
	if p.PublicKey == "" {
		return E(CodeInvalidData, "actor publicKey is required")
	}
	if len(p.Roles) == 0 {
		return E(CodeInvalidData, "actor roles must be non-empty")
	}
	if p.Status != ActorStatusActive && p.Status != ActorStatusRevoked {
		return E(CodeInvalidData, "actor status %q is not active or revoked", p.Status)
	}
	return nil
}

// HasRole reports whether the actor carries the exact role.
func (p *ActorPayload) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
