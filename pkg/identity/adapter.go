// Package identity manages cryptographic principals: actor records, their
// Ed25519 keys, signing, and the session pointer that says who this
// process acts as. Every other adapter that needs a signature goes
// through here.
package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/record"
	"github.com/gitgov-io/gitgov/pkg/session"
	"github.com/gitgov-io/gitgov/pkg/store"
)

// maxRotationDepth caps supersededBy chain walks so a corrupted record
// tree cannot loop resolution forever.
const maxRotationDepth = 10

var versionSuffix = regexp.MustCompile(`-v(\d+)$`)

// Adapter is the identity module. It owns actor records, private keys and
// the session pointer.
type Adapter struct {
	actors  store.Store[record.ActorPayload]
	keys    store.KeyProvider
	session session.Manager
	bus     *eventbus.Bus
	log     *slog.Logger
	now     func() time.Time
}

// Option configures the adapter.
type Option func(*Adapter)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Adapter) { a.log = log }
}

// New wires the identity adapter.
func New(actors store.Store[record.ActorPayload], keys store.KeyProvider, sess session.Manager, bus *eventbus.Bus, opts ...Option) *Adapter {
	a := &Adapter{
		actors:  actors,
		keys:    keys,
		session: sess,
		bus:     bus,
		log:     slog.Default().With("component", "identity_adapter"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CreateActor mints a new actor record. When the draft carries no public
// key a fresh Ed25519 pair is generated and the private key handed to the
// key provider. The first actor in an empty project is the bootstrap
// actor: it self-signs and becomes the session's current actor.
func (a *Adapter) CreateActor(ctx context.Context, draft record.ActorDraft) (*record.Record[record.ActorPayload], error) {
	var priv ed25519.PrivateKey
	if draft.PublicKey == "" {
		pub, pk, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, record.Wrap(record.CodeIOError, err, "generate keypair")
		}
		draft.PublicKey = base64.StdEncoding.EncodeToString(pub)
		priv = pk
	}
	payload, err := record.NewActor(draft)
	if err != nil {
		return nil, err
	}
	if exists, err := a.actors.Exists(ctx, payload.ID); err != nil {
		return nil, err
	} else if exists {
		return nil, record.E(record.CodeInvalidData, "actor %s already exists", payload.ID)
	}
	if priv != nil {
		if err := a.keys.Set(ctx, payload.ID, priv); err != nil {
			return nil, err
		}
	}

	ids, err := a.actors.List(ctx)
	if err != nil {
		return nil, err
	}
	isBootstrap := len(ids) == 0

	signerID := payload.ID
	if !isBootstrap {
		if current, err := a.ResolveCurrentActorID(ctx); err == nil {
			signerID = current
		}
	}
	rec, err := record.New(record.KindActor, *payload)
	if err != nil {
		return nil, err
	}
	if err := SignRecord(ctx, a, rec, signerID, "author"); err != nil {
		return nil, err
	}
	if err := a.actors.Put(ctx, payload.ID, rec); err != nil {
		return nil, err
	}
	if isBootstrap {
		if err := a.session.SetCurrentActor(ctx, payload.ID); err != nil {
			a.log.Warn("bootstrap actor created but session not updated", "actor", payload.ID, "err", err)
		}
	}

	a.log.Info("actor created", "actor", payload.ID, "type", payload.Type, "bootstrap", isBootstrap)
	a.bus.Publish(eventbus.NewEvent(eventbus.TypeActorCreated, "identity_adapter", map[string]any{
		"actorId":     payload.ID,
		"actorType":   string(payload.Type),
		"isBootstrap": isBootstrap,
	}))
	return rec, nil
}

// GetActor loads one actor record.
func (a *Adapter) GetActor(ctx context.Context, id string) (*record.Record[record.ActorPayload], error) {
	rec, err := a.actors.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, record.E(record.CodeActorNotFound, "actor %s not found", id)
	}
	return rec, nil
}

// ListActors loads every actor record.
func (a *Adapter) ListActors(ctx context.Context) ([]*record.Record[record.ActorPayload], error) {
	ids, err := a.actors.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*record.Record[record.ActorPayload], 0, len(ids))
	for _, id := range ids {
		rec, err := a.actors.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// RevokeActor marks an actor revoked with the given reason, optionally
// naming a successor. Revocation is terminal; revoking a revoked actor is
// ACTOR_ALREADY_REVOKED. The revoker (the current actor) co-signs the
// mutated record.
func (a *Adapter) RevokeActor(ctx context.Context, id string, reason record.RevocationReason, supersededBy string) (*record.Record[record.ActorPayload], error) {
	signerID := id
	if current, err := a.ResolveCurrentActorID(ctx); err == nil {
		signerID = current
	}
	return a.revoke(ctx, id, reason, supersededBy, signerID)
}

func (a *Adapter) revoke(ctx context.Context, id string, reason record.RevocationReason, supersededBy, signerID string) (*record.Record[record.ActorPayload], error) {
	if !reason.Valid() {
		return nil, record.E(record.CodeInvalidData, "revocation reason %q is not compromised, rotation or manual", reason)
	}
	rec, err := a.GetActor(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Payload.Status == record.ActorStatusRevoked {
		return nil, record.E(record.CodeActorAlreadyRevoked, "actor %s is already revoked", id)
	}
	rec.Payload.Status = record.ActorStatusRevoked
	if supersededBy != "" {
		rec.Payload.SupersededBy = supersededBy
	}
	if err := record.Rechecksum(rec); err != nil {
		return nil, err
	}
	// the mutation invalidates prior signatures; re-sign from scratch,
	// the old signed version stays in git history
	rec.Header.Signatures = nil

	if err := SignRecord(ctx, a, rec, signerID, "revoker"); err != nil {
		return nil, err
	}
	if err := a.actors.Put(ctx, id, rec); err != nil {
		return nil, err
	}

	a.log.Info("actor revoked", "actor", id, "by", signerID, "reason", reason)
	a.bus.Publish(eventbus.NewEvent(eventbus.TypeActorRevoked, "identity_adapter", map[string]any{
		"actorId":      id,
		"revokedBy":    signerID,
		"reason":       string(reason),
		"supersededBy": supersededBy,
	}))
	return rec, nil
}

// RotateActorKey retires an actor's key by minting a successor actor with
// a fresh keypair and a versioned id ("human:ada" -> "human:ada-v2" ->
// "human:ada-v3"). The old actor is revoked with reason rotation and
// supersededBy pointing at the successor; session state and the stale
// private key are cleaned up best-effort, failures there are logged, not
// fatal.
func (a *Adapter) RotateActorKey(ctx context.Context, id string) (*record.Record[record.ActorPayload], error) {
	old, err := a.GetActor(ctx, id)
	if err != nil {
		return nil, err
	}
	if old.Payload.Status == record.ActorStatusRevoked {
		return nil, record.E(record.CodeActorAlreadyRevoked, "cannot rotate revoked actor %s", id)
	}
	if old.Payload.SupersededBy != "" {
		return nil, record.E(record.CodeInvalidData, "actor %s is already superseded by %s", id, old.Payload.SupersededBy)
	}

	successorID := nextVersionID(id)
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, record.Wrap(record.CodeIOError, err, "generate rotation keypair")
	}
	payload := record.ActorPayload{
		ID:          successorID,
		Type:        old.Payload.Type,
		DisplayName: old.Payload.DisplayName,
		PublicKey:   base64.StdEncoding.EncodeToString(pub),
		Roles:       old.Payload.Roles,
		Status:      record.ActorStatusActive,
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	if err := a.keys.Set(ctx, successorID, priv); err != nil {
		return nil, err
	}
	rec, err := record.New(record.KindActor, payload)
	if err != nil {
		return nil, err
	}
	if err := SignRecord(ctx, a, rec, successorID, "author"); err != nil {
		return nil, err
	}
	if err := a.actors.Put(ctx, successorID, rec); err != nil {
		return nil, err
	}

	// the successor signs the old actor's revocation
	if _, err := a.revoke(ctx, id, record.RevocationRotation, successorID, successorID); err != nil {
		return nil, err
	}

	// best-effort cleanup; the new identity is already durable
	if current, err := a.session.CurrentActorID(ctx); err == nil && current == id {
		if err := a.session.SetCurrentActor(ctx, successorID); err != nil {
			a.log.Warn("session still points at rotated actor", "actor", id, "err", err)
		}
	}
	if err := a.session.RemoveActorState(ctx, id); err != nil {
		a.log.Warn("stale session state not removed", "actor", id, "err", err)
	}
	if err := a.keys.Delete(ctx, id); err != nil {
		a.log.Warn("stale private key not removed", "actor", id, "err", err)
	}

	a.log.Info("actor key rotated", "actor", id, "successor", successorID)
	a.bus.Publish(eventbus.NewEvent(eventbus.TypeActorCreated, "identity_adapter", map[string]any{
		"actorId":    successorID,
		"actorType":  string(payload.Type),
		"supersedes": id,
	}))
	return rec, nil
}

// nextVersionID appends or bumps the rotation suffix: "human:ada" becomes
// "human:ada-v2", "human:ada-v2" becomes "human:ada-v3".
func nextVersionID(id string) string {
	if m := versionSuffix.FindStringSubmatch(id); m != nil {
		n, _ := strconv.Atoi(m[1])
		return versionSuffix.ReplaceAllString(id, fmt.Sprintf("-v%d", n+1))
	}
	return id + "-v2"
}

// ResolveCurrentActorID returns the effective current actor id: the
// session pointer with supersededBy chains followed to their end.
func (a *Adapter) ResolveCurrentActorID(ctx context.Context) (string, error) {
	id, err := a.session.CurrentActorID(ctx)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", record.E(record.CodeNoActiveActor, "no current actor in session")
	}
	return a.resolveChain(ctx, id)
}

func (a *Adapter) resolveChain(ctx context.Context, id string) (string, error) {
	for i := 0; i < maxRotationDepth; i++ {
		rec, err := a.GetActor(ctx, id)
		if err != nil {
			return "", err
		}
		if rec.Payload.SupersededBy == "" {
			return id, nil
		}
		id = rec.Payload.SupersededBy
	}
	return "", record.E(record.CodeInvalidData, "supersededBy chain from %s exceeds depth %d", id, maxRotationDepth)
}

// GetCurrentActor loads the effective current actor record. With no
// session pointer it falls back to the first active actor.
func (a *Adapter) GetCurrentActor(ctx context.Context) (*record.Record[record.ActorPayload], error) {
	id, err := a.ResolveCurrentActorID(ctx)
	if err == nil {
		return a.GetActor(ctx, id)
	}
	if !record.HasCode(err, record.CodeNoActiveActor) {
		return nil, err
	}
	actors, lerr := a.ListActors(ctx)
	if lerr != nil {
		return nil, lerr
	}
	for _, rec := range actors {
		if rec.Payload.Status == record.ActorStatusActive {
			return rec, nil
		}
	}
	return nil, record.E(record.CodeNoActiveActor, "no active actor in the project")
}

// SetCurrentActor points the session at an existing actor.
func (a *Adapter) SetCurrentActor(ctx context.Context, id string) error {
	if _, err := a.GetActor(ctx, id); err != nil {
		return err
	}
	return a.session.SetCurrentActor(ctx, id)
}

// GetEffectiveActorForAgent resolves the actor an agent acts as: the agent
// actor itself, with rotation chains followed. The final actor must be
// active.
func (a *Adapter) GetEffectiveActorForAgent(ctx context.Context, agentActorID string) (*record.Record[record.ActorPayload], error) {
	effectiveID, err := a.resolveChain(ctx, agentActorID)
	if err != nil {
		return nil, err
	}
	rec, err := a.GetActor(ctx, effectiveID)
	if err != nil {
		return nil, err
	}
	if rec.Payload.Type != record.ActorTypeAgent {
		return nil, record.E(record.CodeActorNotAgent, "actor %s is not an agent", effectiveID)
	}
	if rec.Payload.Status != record.ActorStatusActive {
		return nil, record.E(record.CodeActorAlreadyRevoked, "agent actor %s is revoked with no successor", effectiveID)
	}
	return rec, nil
}

// Resolver exposes public-key lookup for envelope verification. Lookup
// errors resolve to "not found"; Verify turns that into KEY_NOT_FOUND.
func (a *Adapter) Resolver(ctx context.Context) record.PublicKeyResolver {
	return func(keyID string) (string, bool) {
		rec, err := a.actors.Get(ctx, keyID)
		if err != nil || rec == nil {
			return "", false
		}
		return rec.Payload.PublicKey, true
	}
}

// GetActorPublicKey returns the base64 public key for an actor id.
func (a *Adapter) GetActorPublicKey(ctx context.Context, id string) (string, error) {
	rec, err := a.GetActor(ctx, id)
	if err != nil {
		return "", err
	}
	return rec.Payload.PublicKey, nil
}

// SignRecord signs rec's payload as actorID with the given role and
// attaches the signature to the header. A pending placeholder slot is
// replaced in place; otherwise the signature appends. When no private key
// is available a mock signature is attached instead so offline flows keep
// moving; mock-signed records fail verification until re-signed.
func SignRecord[T any](ctx context.Context, a *Adapter, rec *record.Record[T], actorID, role string) error {
	priv, err := a.keys.Get(ctx, actorID)
	if err != nil {
		return err
	}
	var sig record.Signature
	if priv == nil {
		a.log.Warn("no private key, attaching mock signature", "actor", actorID, "role", role)
		sig = record.Signature{
			KeyID:     actorID,
			Role:      role,
			Signature: "mock:" + actorID,
			Timestamp: a.now().Unix(),
		}
	} else {
		sig, err = record.Sign(rec.Payload, priv, actorID, role, "", a.now())
		if err != nil {
			return err
		}
	}
	for i := range rec.Header.Signatures {
		if rec.Header.Signatures[i].Signature == record.PlaceholderSignature {
			rec.Header.Signatures[i] = sig
			return nil
		}
	}
	rec.Header.Signatures = append(rec.Header.Signatures, sig)
	return nil
}
