package record

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marshalTaskRecord(t *testing.T) ([]byte, *Record[TaskPayload]) {
	t.Helper()
	payload, err := NewTask(TaskDraft{Title: "Fix the gate", Description: "It squeaks"}, time.Unix(1700000000, 0))
	require.NoError(t, err)
	rec, err := New(KindTask, *payload, Signature{
		KeyID: "human:ada", Role: "author", Signature: "c2ln", Timestamp: 1700000000,
	})
	require.NoError(t, err)
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	return data, rec
}

func TestLoadTaskRoundTrip(t *testing.T) {
	data, rec := marshalTaskRecord(t)
	got, err := LoadTask(data)
	require.NoError(t, err)
	assert.Equal(t, rec.Payload, got.Payload)
	assert.Equal(t, rec.Header.PayloadChecksum, got.Header.PayloadChecksum)
}

func TestLoadRejectsWrongKind(t *testing.T) {
	data, _ := marshalTaskRecord(t)
	_, err := LoadCycle(data)
	assert.True(t, HasCode(err, CodeInvalidData))
}

func TestLoadRejectsWrongVersion(t *testing.T) {
	data, rec := marshalTaskRecord(t)
	rec.Header.Version = "2.0"
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	_, err = LoadTask(data)
	assert.True(t, HasCode(err, CodeInvalidData))
}

func TestLoadRejectsUnsigned(t *testing.T) {
	_, rec := marshalTaskRecord(t)
	rec.Header.Signatures = nil
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	_, err = LoadTask(data)
	assert.True(t, HasCode(err, CodeInvalidData))
}

func TestLoadRejectsChecksumMismatch(t *testing.T) {
	_, rec := marshalTaskRecord(t)
	rec.Payload.Title = "tampered"
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	_, err = LoadTask(data)
	assert.True(t, HasCode(err, CodeChecksumMismatch))
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	_, rec := marshalTaskRecord(t)
	rec.Payload.Status = "flying"
	require.NoError(t, Rechecksum(rec))
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	_, err = LoadTask(data)
	assert.True(t, HasCode(err, CodeInvalidData))
}

func TestLoadRejectsGarbage(t *testing.T) {
	_, err := LoadTask([]byte("{not json"))
	assert.True(t, HasCode(err, CodeInvalidData))
}

func TestEveryKindLoads(t *testing.T) {
	now := time.Unix(1700000000, 0)
	sig := Signature{KeyID: "human:ada", Role: "author", Signature: "c2ln", Timestamp: now.Unix()}

	actor, err := NewActor(ActorDraft{Type: ActorTypeHuman, DisplayName: "Ada", PublicKey: "cHVi"})
	require.NoError(t, err)
	checkLoad(t, KindActor, *actor, sig, func(b []byte) error { _, err := LoadActor(b); return err })

	agent, err := NewAgent(AgentDraft{ID: "agent:bot", Engine: Engine{Type: EngineTypeLocal, Entrypoint: "main.py", Function: "run"}})
	require.NoError(t, err)
	checkLoad(t, KindAgent, *agent, sig, func(b []byte) error { _, err := LoadAgent(b); return err })

	cycle, err := NewCycle(CycleDraft{Title: "Sprint 1"}, now)
	require.NoError(t, err)
	checkLoad(t, KindCycle, *cycle, sig, func(b []byte) error { _, err := LoadCycle(b); return err })

	fb, err := NewFeedback(FeedbackDraft{EntityType: FeedbackEntityTask, EntityID: "1700000000-task-a", Type: FeedbackTypeBlocking, Content: "stop"}, now)
	require.NoError(t, err)
	checkLoad(t, KindFeedback, *fb, sig, func(b []byte) error { _, err := LoadFeedback(b); return err })

	exec, err := NewExecution(ExecutionDraft{TaskID: "1700000000-task-a", Summary: "did it"}, now)
	require.NoError(t, err)
	checkLoad(t, KindExecution, *exec, sig, func(b []byte) error { _, err := LoadExecution(b); return err })

	cl, err := NewChangelog(ChangelogDraft{Title: "release 1"}, now)
	require.NoError(t, err)
	checkLoad(t, KindChangelog, *cl, sig, func(b []byte) error { _, err := LoadChangelog(b); return err })
}

func checkLoad[T any](t *testing.T, kind Kind, payload T, sig Signature, loadFn func([]byte) error) {
	t.Helper()
	rec, err := New(kind, payload, sig)
	require.NoError(t, err)
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, loadFn(data), "kind %s", kind)
}

func TestNewActorDefaults(t *testing.T) {
	actor, err := NewActor(ActorDraft{Type: ActorTypeHuman, DisplayName: "Ada Lovelace", PublicKey: "cHVi"})
	require.NoError(t, err)
	assert.Equal(t, "human:ada-lovelace", actor.ID)
	assert.Equal(t, []string{"author"}, actor.Roles)
	assert.Equal(t, ActorStatusActive, actor.Status)
	assert.True(t, actor.HasRole("author"))
	assert.False(t, actor.HasRole("approver:product"))
}

func TestNewTaskDefaults(t *testing.T) {
	task, err := NewTask(TaskDraft{Title: "T", Description: "D"}, time.Unix(1700000000, 0))
	require.NoError(t, err)
	assert.Equal(t, TaskStatusDraft, task.Status)
	assert.Equal(t, TaskPriorityMedium, task.Priority)
	assert.NotNil(t, task.Tags)
	assert.NotNil(t, task.CycleIDs)

	_, err = NewTask(TaskDraft{Description: "D"}, time.Unix(1700000000, 0))
	assert.True(t, HasCode(err, CodeInvalidData))
	_, err = NewTask(TaskDraft{Title: "T"}, time.Unix(1700000000, 0))
	assert.True(t, HasCode(err, CodeInvalidData))
}

func TestEngineValidate(t *testing.T) {
	assert.NoError(t, Engine{Type: EngineTypeLocal, Entrypoint: "a.py", Function: "f"}.Validate())
	assert.Error(t, Engine{Type: EngineTypeLocal, Entrypoint: "a.py"}.Validate())
	assert.NoError(t, Engine{Type: EngineTypeAPI, URL: "https://x"}.Validate())
	assert.Error(t, Engine{Type: EngineTypeMCP}.Validate())
	assert.Error(t, Engine{Type: "wasm"}.Validate())
}

func TestNewFeedbackDefaults(t *testing.T) {
	now := time.Unix(1700000000, 0)
	fb, err := NewFeedback(FeedbackDraft{EntityType: FeedbackEntityTask, EntityID: "1700000000-task-a", Type: FeedbackTypeQuestion, Content: "why"}, now)
	require.NoError(t, err)
	assert.Equal(t, FeedbackStatusOpen, fb.Status)

	_, err = NewFeedback(FeedbackDraft{EntityType: "ticket", EntityID: "x", Type: FeedbackTypeQuestion, Content: "why"}, now)
	assert.True(t, HasCode(err, CodeInvalidData))
	_, err = NewFeedback(FeedbackDraft{EntityType: FeedbackEntityTask, EntityID: "x", Type: "praise", Content: "nice"}, now)
	assert.True(t, HasCode(err, CodeInvalidData))
}

func TestNewExecutionDefaults(t *testing.T) {
	now := time.Unix(1700000000, 0)
	exec, err := NewExecution(ExecutionDraft{TaskID: "1700000000-task-a", Summary: "ran"}, now)
	require.NoError(t, err)
	assert.Equal(t, ExecutionResultSuccess, exec.Result)

	_, err = NewExecution(ExecutionDraft{Summary: "ran"}, now)
	assert.True(t, HasCode(err, CodeInvalidData))
}
