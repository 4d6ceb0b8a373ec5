package record

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlug(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Fix the gate", "fix-the-gate"},
		{"  spaced   out  ", "spaced-out"},
		{"Café Über", "cafe-uber"},
		{"MiXeD CaSe 42", "mixed-case-42"},
		{"__only--punct!!", "only-punct"},
		{"!!!", "untitled"},
		{"", "untitled"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Slug(tc.in), "Slug(%q)", tc.in)
	}
}

func TestSlugTruncates(t *testing.T) {
	long := strings.Repeat("abcde ", 30)
	out := Slug(long)
	assert.LessOrEqual(t, len(out), 64)
	assert.False(t, strings.HasSuffix(out, "-"))
	assert.False(t, strings.HasPrefix(out, "-"))
}

func TestGeneratedIDsValidate(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ids := []string{
		GenerateTaskID("Fix the gate", now),
		GenerateCycleID("Sprint 1", now),
		GenerateFeedbackID("looks wrong", now),
		GenerateExecutionID("deployed it", now),
		GenerateChangelogID("release 1.2", now),
	}
	for _, id := range ids {
		assert.True(t, ValidTimedID(id), "id %q", id)
		ts, err := IDTimestamp(id)
		require.NoError(t, err)
		assert.Equal(t, now.Unix(), ts.Unix())
	}
	assert.Equal(t, "1700000000-task-fix-the-gate", ids[0])
}

func TestActorIDs(t *testing.T) {
	assert.Equal(t, "human:ada-lovelace", GenerateActorID(ActorTypeHuman, "Ada Lovelace"))
	assert.Equal(t, "agent:deploy-bot", GenerateActorID(ActorTypeAgent, "Deploy Bot"))

	assert.True(t, ValidActorID("human:ada"))
	assert.True(t, ValidActorID("agent:bot:staging"))
	assert.False(t, ValidActorID("robot:ada"))
	assert.False(t, ValidActorID("human:"))
	assert.False(t, ValidActorID("human:Ada"))
	assert.False(t, ValidActorID("human"))
}

func TestValidTimedID(t *testing.T) {
	assert.True(t, ValidTimedID("1700000000-task-a"))
	assert.True(t, ValidTimedID("1700000000-exec-run-1"))
	assert.False(t, ValidTimedID("task-a"))
	assert.False(t, ValidTimedID("1700000000-ticket-a"))
	assert.False(t, ValidTimedID("1700000000-task-"))
	assert.False(t, ValidTimedID("1700000000-task-UPPER"))
}

func TestIDTimestampErrors(t *testing.T) {
	_, err := IDTimestamp("nodash")
	assert.True(t, HasCode(err, CodeInvalidData))
	_, err = IDTimestamp("abc-task-x")
	assert.True(t, HasCode(err, CodeInvalidData))
	_, err = IDTimestamp("0-task-x")
	assert.True(t, HasCode(err, CodeInvalidData))
}
