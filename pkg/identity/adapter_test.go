package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/record"
	"github.com/gitgov-io/gitgov/pkg/session"
	"github.com/gitgov-io/gitgov/pkg/store"
)

type fixture struct {
	adapter *Adapter
	stores  *store.Stores
	keys    *store.MemoryKeyProvider
	session *session.MemoryManager
	bus     *eventbus.Bus

	mu     sync.Mutex
	events []eventbus.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		stores:  store.NewMemoryStores(),
		keys:    store.NewMemoryKeyProvider(),
		session: session.NewMemoryManager(),
		bus:     eventbus.New(),
	}
	f.bus.Subscribe(eventbus.TypeAny, func(_ context.Context, evt eventbus.Event) error {
		f.mu.Lock()
		f.events = append(f.events, evt)
		f.mu.Unlock()
		return nil
	})
	f.adapter = New(f.stores.Actors, f.keys, f.session, f.bus)
	return f
}

func (f *fixture) eventTypes(t *testing.T) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.bus.WaitForIdle(ctx))
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

func (f *fixture) eventOfType(t *testing.T, typ string) eventbus.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.bus.WaitForIdle(ctx))
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.Type == typ {
			return e
		}
	}
	t.Fatalf("no %s event published", typ)
	return eventbus.Event{}
}

func TestCreateActorBootstrap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.adapter.CreateActor(ctx, record.ActorDraft{
		Type:        record.ActorTypeHuman,
		DisplayName: "Ada Lovelace",
	})
	require.NoError(t, err)
	assert.Equal(t, "human:ada-lovelace", rec.Payload.ID)
	assert.Equal(t, []string{"author"}, rec.Payload.Roles)
	assert.Equal(t, record.ActorStatusActive, rec.Payload.Status)

	// self-signed bootstrap verifies against its own key
	require.Len(t, rec.Header.Signatures, 1)
	assert.Equal(t, rec.Payload.ID, rec.Header.Signatures[0].KeyID)
	require.NoError(t, record.Verify(rec, f.adapter.Resolver(ctx)))

	// bootstrap becomes the session's current actor
	current, err := f.adapter.ResolveCurrentActorID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "human:ada-lovelace", current)

	// private key landed in the provider
	priv, err := f.keys.Get(ctx, rec.Payload.ID)
	require.NoError(t, err)
	assert.Len(t, priv, ed25519.PrivateKeySize)

	assert.Contains(t, f.eventTypes(t), eventbus.TypeActorCreated)
}

func TestCreateActorSecondSignedByCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	boot, err := f.adapter.CreateActor(ctx, record.ActorDraft{
		Type: record.ActorTypeHuman, DisplayName: "Ada",
	})
	require.NoError(t, err)

	second, err := f.adapter.CreateActor(ctx, record.ActorDraft{
		Type:        record.ActorTypeAgent,
		DisplayName: "Helper Bot",
		Roles:       []string{"executor"},
	})
	require.NoError(t, err)
	require.Len(t, second.Header.Signatures, 1)
	assert.Equal(t, boot.Payload.ID, second.Header.Signatures[0].KeyID)
	require.NoError(t, record.Verify(second, f.adapter.Resolver(ctx)))

	// session still points at the bootstrap actor
	current, err := f.adapter.ResolveCurrentActorID(ctx)
	require.NoError(t, err)
	assert.Equal(t, boot.Payload.ID, current)
}

func TestCreateActorDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.adapter.CreateActor(ctx, record.ActorDraft{
		Type: record.ActorTypeHuman, DisplayName: "Ada",
	})
	require.NoError(t, err)
	_, err = f.adapter.CreateActor(ctx, record.ActorDraft{
		Type: record.ActorTypeHuman, DisplayName: "Ada",
	})
	assert.True(t, record.HasCode(err, record.CodeInvalidData))
}

func TestCreateActorSuppliedPublicKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	rec, err := f.adapter.CreateActor(ctx, record.ActorDraft{
		Type:        record.ActorTypeHuman,
		DisplayName: "External",
		PublicKey:   base64.StdEncoding.EncodeToString(pub),
	})
	require.NoError(t, err)

	// no key generated for us, so the signature is a mock
	has, err := f.keys.Has(ctx, rec.Payload.ID)
	require.NoError(t, err)
	assert.False(t, has)
	assert.Contains(t, rec.Header.Signatures[0].Signature, "mock:")
}

func TestGetActorNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.adapter.GetActor(context.Background(), "human:nobody")
	assert.True(t, record.HasCode(err, record.CodeActorNotFound))
}

func TestListActors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.adapter.CreateActor(ctx, record.ActorDraft{Type: record.ActorTypeHuman, DisplayName: "Ada"})
	require.NoError(t, err)
	_, err = f.adapter.CreateActor(ctx, record.ActorDraft{Type: record.ActorTypeHuman, DisplayName: "Grace"})
	require.NoError(t, err)

	all, err := f.adapter.ListActors(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRevokeActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.adapter.CreateActor(ctx, record.ActorDraft{Type: record.ActorTypeHuman, DisplayName: "Ada"})
	require.NoError(t, err)

	revoked, err := f.adapter.RevokeActor(ctx, rec.Payload.ID, record.RevocationManual, "")
	require.NoError(t, err)
	assert.Equal(t, record.ActorStatusRevoked, revoked.Payload.Status)
	assert.Empty(t, revoked.Payload.SupersededBy)
	require.NoError(t, record.Verify(revoked, f.adapter.Resolver(ctx)))

	_, err = f.adapter.RevokeActor(ctx, rec.Payload.ID, record.RevocationManual, "")
	assert.True(t, record.HasCode(err, record.CodeActorAlreadyRevoked))

	evt := f.eventOfType(t, eventbus.TypeActorRevoked)
	assert.Equal(t, rec.Payload.ID, evt.Str("actorId"))
	assert.Equal(t, string(record.RevocationManual), evt.Str("reason"))
	assert.Equal(t, rec.Payload.ID, evt.Str("revokedBy"))
}

func TestRevokeActorRejectsUnknownReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.adapter.CreateActor(ctx, record.ActorDraft{Type: record.ActorTypeHuman, DisplayName: "Ada"})
	require.NoError(t, err)

	_, err = f.adapter.RevokeActor(ctx, rec.Payload.ID, "retired", "")
	assert.True(t, record.HasCode(err, record.CodeInvalidData))
}

func TestRevokeActorRecordsSuccessor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old, err := f.adapter.CreateActor(ctx, record.ActorDraft{Type: record.ActorTypeHuman, DisplayName: "Ada"})
	require.NoError(t, err)
	heir, err := f.adapter.CreateActor(ctx, record.ActorDraft{Type: record.ActorTypeHuman, DisplayName: "Grace"})
	require.NoError(t, err)

	revoked, err := f.adapter.RevokeActor(ctx, old.Payload.ID, record.RevocationCompromised, heir.Payload.ID)
	require.NoError(t, err)
	assert.Equal(t, heir.Payload.ID, revoked.Payload.SupersededBy)

	evt := f.eventOfType(t, eventbus.TypeActorRevoked)
	assert.Equal(t, heir.Payload.ID, evt.Str("supersededBy"))
	assert.Equal(t, string(record.RevocationCompromised), evt.Str("reason"))
}

func TestRotateActorKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	boot, err := f.adapter.CreateActor(ctx, record.ActorDraft{
		Type: record.ActorTypeHuman, DisplayName: "Ada",
		Roles: []string{"author", "approver:product"},
	})
	require.NoError(t, err)

	successor, err := f.adapter.RotateActorKey(ctx, boot.Payload.ID)
	require.NoError(t, err)
	assert.Equal(t, boot.Payload.ID+"-v2", successor.Payload.ID)
	assert.Equal(t, boot.Payload.Roles, successor.Payload.Roles)
	require.NoError(t, record.Verify(successor, f.adapter.Resolver(ctx)))

	// old record is revoked with the successor recorded, and still verifies
	old, err := f.adapter.GetActor(ctx, boot.Payload.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ActorStatusRevoked, old.Payload.Status)
	assert.Equal(t, successor.Payload.ID, old.Payload.SupersededBy)
	require.NoError(t, record.Verify(old, f.adapter.Resolver(ctx)))

	evt := f.eventOfType(t, eventbus.TypeActorRevoked)
	assert.Equal(t, boot.Payload.ID, evt.Str("actorId"))
	assert.Equal(t, string(record.RevocationRotation), evt.Str("reason"))
	assert.Equal(t, successor.Payload.ID, evt.Str("supersededBy"))

	// session migrated, old key gone
	current, err := f.adapter.ResolveCurrentActorID(ctx)
	require.NoError(t, err)
	assert.Equal(t, successor.Payload.ID, current)
	has, err := f.keys.Has(ctx, boot.Payload.ID)
	require.NoError(t, err)
	assert.False(t, has)

	// rotating the revoked actor again is rejected
	_, err = f.adapter.RotateActorKey(ctx, boot.Payload.ID)
	assert.True(t, record.HasCode(err, record.CodeActorAlreadyRevoked))
}

func TestRotateActorKeyVersionBump(t *testing.T) {
	assert.Equal(t, "human:ada-v2", nextVersionID("human:ada"))
	assert.Equal(t, "human:ada-v3", nextVersionID("human:ada-v2"))
	assert.Equal(t, "agent:bot-v10", nextVersionID("agent:bot-v9"))
}

func TestResolveCurrentActorFollowsChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	boot, err := f.adapter.CreateActor(ctx, record.ActorDraft{Type: record.ActorTypeHuman, DisplayName: "Ada"})
	require.NoError(t, err)
	v2, err := f.adapter.RotateActorKey(ctx, boot.Payload.ID)
	require.NoError(t, err)
	v3, err := f.adapter.RotateActorKey(ctx, v2.Payload.ID)
	require.NoError(t, err)

	// even if the session still names the original id, resolution lands
	// on the chain's end
	require.NoError(t, f.session.SetCurrentActor(ctx, boot.Payload.ID))
	current, err := f.adapter.ResolveCurrentActorID(ctx)
	require.NoError(t, err)
	assert.Equal(t, v3.Payload.ID, current)
}

func TestResolveCurrentActorEmptySession(t *testing.T) {
	f := newFixture(t)
	_, err := f.adapter.ResolveCurrentActorID(context.Background())
	assert.True(t, record.HasCode(err, record.CodeNoActiveActor))
}

func TestGetCurrentActorFallsBackToFirstActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	boot, err := f.adapter.CreateActor(ctx, record.ActorDraft{Type: record.ActorTypeHuman, DisplayName: "Ada"})
	require.NoError(t, err)

	// an empty session is not fatal while an active actor exists
	require.NoError(t, f.session.RemoveActorState(ctx, boot.Payload.ID))
	id, err := f.session.CurrentActorID(ctx)
	require.NoError(t, err)
	require.Empty(t, id)

	current, err := f.adapter.GetCurrentActor(ctx)
	require.NoError(t, err)
	assert.Equal(t, boot.Payload.ID, current.Payload.ID)
}

func TestGetCurrentActorNoActiveActors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	boot, err := f.adapter.CreateActor(ctx, record.ActorDraft{Type: record.ActorTypeHuman, DisplayName: "Ada"})
	require.NoError(t, err)
	_, err = f.adapter.RevokeActor(ctx, boot.Payload.ID, record.RevocationManual, "")
	require.NoError(t, err)
	require.NoError(t, f.session.RemoveActorState(ctx, boot.Payload.ID))

	_, err = f.adapter.GetCurrentActor(ctx)
	assert.True(t, record.HasCode(err, record.CodeNoActiveActor))
}

func TestGetEffectiveActorForAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.adapter.CreateActor(ctx, record.ActorDraft{Type: record.ActorTypeHuman, DisplayName: "Ada"})
	require.NoError(t, err)
	bot, err := f.adapter.CreateActor(ctx, record.ActorDraft{
		Type: record.ActorTypeAgent, DisplayName: "Helper Bot", Roles: []string{"executor"},
	})
	require.NoError(t, err)

	eff, err := f.adapter.GetEffectiveActorForAgent(ctx, bot.Payload.ID)
	require.NoError(t, err)
	assert.Equal(t, bot.Payload.ID, eff.Payload.ID)

	// rotated agents resolve to their successor
	v2, err := f.adapter.RotateActorKey(ctx, bot.Payload.ID)
	require.NoError(t, err)
	eff, err = f.adapter.GetEffectiveActorForAgent(ctx, bot.Payload.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.Payload.ID, eff.Payload.ID)

	// humans are not agents
	_, err = f.adapter.GetEffectiveActorForAgent(ctx, "human:ada")
	assert.True(t, record.HasCode(err, record.CodeActorNotAgent))
}

func TestSignRecordReplacesPlaceholder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	boot, err := f.adapter.CreateActor(ctx, record.ActorDraft{Type: record.ActorTypeHuman, DisplayName: "Ada"})
	require.NoError(t, err)

	task, err := record.NewTask(record.TaskDraft{Title: "T", Description: "D"}, time.Now())
	require.NoError(t, err)
	rec, err := record.New(record.KindTask, *task, record.Signature{
		KeyID:     boot.Payload.ID,
		Role:      "author",
		Signature: record.PlaceholderSignature,
	})
	require.NoError(t, err)
	require.True(t, record.HasPlaceholder(rec.Header))

	require.NoError(t, SignRecord(ctx, f.adapter, rec, boot.Payload.ID, "author"))
	assert.False(t, record.HasPlaceholder(rec.Header))
	require.Len(t, rec.Header.Signatures, 1)
	require.NoError(t, record.Verify(rec, f.adapter.Resolver(ctx)))
}

func TestSignRecordMockFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	boot, err := f.adapter.CreateActor(ctx, record.ActorDraft{Type: record.ActorTypeHuman, DisplayName: "Ada"})
	require.NoError(t, err)
	require.NoError(t, f.keys.Delete(ctx, boot.Payload.ID))

	task, err := record.NewTask(record.TaskDraft{Title: "T", Description: "D"}, time.Now())
	require.NoError(t, err)
	rec, err := record.New(record.KindTask, *task)
	require.NoError(t, err)

	require.NoError(t, SignRecord(ctx, f.adapter, rec, boot.Payload.ID, "author"))
	require.Len(t, rec.Header.Signatures, 1)
	assert.Equal(t, "mock:"+boot.Payload.ID, rec.Header.Signatures[0].Signature)

	// mock signatures do not verify
	assert.Error(t, record.Verify(rec, f.adapter.Resolver(ctx)))
}
